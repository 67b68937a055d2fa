package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"sharedplay/models"

	"github.com/redis/go-redis/v9"
)

// DefaultSnapshotTTL bounds how long a cached session snapshot may be served.
const DefaultSnapshotTTL = 30 * time.Second

// CachedSessionStore serves Get from a Redis snapshot of the session and
// falls back to the wrapped store. Writes go to the wrapped store and drop
// the snapshot.
type CachedSessionStore struct {
	SessionStore
	client *redis.Client
	ttl    time.Duration
}

func NewCachedSessionStore(inner SessionStore, client *redis.Client, ttl time.Duration) *CachedSessionStore {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &CachedSessionStore{SessionStore: inner, client: client, ttl: ttl}
}

func snapshotKey(id string) string {
	return "session_state:" + id
}

// Get returns the cached snapshot when present.
func (s *CachedSessionStore) Get(ctx context.Context, id string) (*models.GameSession, error) {
	data, err := s.client.Get(ctx, snapshotKey(id)).Bytes()
	if err == nil {
		var sess models.GameSession
		if err := json.Unmarshal(data, &sess); err == nil {
			return &sess, nil
		}
		log.Printf("Discarding unreadable snapshot of session %s", id)
	} else if !errors.Is(err, redis.Nil) {
		log.Printf("Error reading snapshot of session %s: %v", id, err)
	}

	sess, err := s.SessionStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.store(ctx, sess)
	return sess, nil
}

// Update applies fn through the wrapped store and invalidates the snapshot.
func (s *CachedSessionStore) Update(ctx context.Context, id string, fn MutateFunc) (*models.GameSession, error) {
	sess, err := s.SessionStore.Update(ctx, id, fn)
	if err != nil {
		return nil, err
	}
	if err := s.client.Del(ctx, snapshotKey(id)).Err(); err != nil {
		log.Printf("Error invalidating snapshot of session %s: %v", id, err)
	}
	return sess, nil
}

func (s *CachedSessionStore) store(ctx context.Context, sess *models.GameSession) {
	data, err := json.Marshal(sess)
	if err != nil {
		log.Printf("Error marshaling snapshot of session %s: %v", sess.ID, err)
		return
	}
	if err := s.client.Set(ctx, snapshotKey(sess.ID), data, s.ttl).Err(); err != nil {
		log.Printf("Error storing snapshot of session %s: %v", sess.ID, err)
	}
}

var _ SessionStore = (*CachedSessionStore)(nil)
