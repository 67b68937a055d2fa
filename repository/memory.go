package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"sharedplay/models"
)

// MemoryStore implements SessionStore, StatsStore, GameCatalog and LessonStore
// with in-memory maps. Each session has its own mutex so that Update calls on
// the same session are serialized while different sessions proceed in parallel.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.GameSession
	locks    map[string]*sync.Mutex
	stats    map[string]*models.GameStats
	recomp   map[string]*sync.Mutex
	games    map[string]*models.Game
	links    map[string][]models.LessonGame
	nextLink uint
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*models.GameSession),
		locks:    make(map[string]*sync.Mutex),
		stats:    make(map[string]*models.GameStats),
		recomp:   make(map[string]*sync.Mutex),
		games:    make(map[string]*models.Game),
		links:    make(map[string][]models.LessonGame),
	}
}

// Create persists a new session.
func (s *MemoryStore) Create(_ context.Context, sess *models.GameSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now
	s.sessions[sess.ID] = sess.Clone()
	s.locks[sess.ID] = &sync.Mutex{}
	return nil
}

// Get retrieves a session by ID.
func (s *MemoryStore) Get(_ context.Context, id string) (*models.GameSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess.Clone(), nil
}

// FindByToken returns the most recently created session holding token.
func (s *MemoryStore) FindByToken(_ context.Context, token string) (*models.GameSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *models.GameSession
	for _, sess := range s.sessions {
		if sess.ShareToken == nil || *sess.ShareToken != token {
			continue
		}
		if found == nil || sess.CreatedAt.After(found.CreatedAt) {
			found = sess
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found.Clone(), nil
}

// TokenInUse reports whether a live session holds token.
func (s *MemoryStore) TokenInUse(_ context.Context, token string, now time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sess := range s.sessions {
		if sess.ShareToken == nil || *sess.ShareToken != token {
			continue
		}
		if sess.TokenExpiresAt != nil && sess.TokenExpiresAt.After(now) {
			return true, nil
		}
	}
	return false, nil
}

// Update applies fn under the session's lock.
func (s *MemoryStore) Update(_ context.Context, id string, fn MutateFunc) (*models.GameSession, error) {
	s.mu.RLock()
	lock, ok := s.locks[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	current := s.sessions[id]
	s.mu.RUnlock()

	work := current.Clone()
	if err := fn(work); err != nil {
		return nil, err
	}
	work.UpdatedAt = time.Now()

	s.mu.Lock()
	s.sessions[id] = work
	s.mu.Unlock()

	return work.Clone(), nil
}

// ListByGame returns every session of a game ordered by creation time.
func (s *MemoryStore) ListByGame(_ context.Context, gameID string) ([]*models.GameSession, error) {
	return s.filter(func(sess *models.GameSession) bool { return sess.GameID == gameID }), nil
}

// ListOpen returns sessions that are waiting or in progress.
func (s *MemoryStore) ListOpen(_ context.Context) ([]*models.GameSession, error) {
	return s.filter(func(sess *models.GameSession) bool { return !sess.Status.IsTerminal() }), nil
}

func (s *MemoryStore) filter(keep func(*models.GameSession) bool) []*models.GameSession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.GameSession
	for _, sess := range s.sessions {
		if keep(sess) {
			result = append(result, sess.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// SaveStats replaces the stats of a game.
func (s *MemoryStore) SaveStats(_ context.Context, stats *models.GameStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *stats
	s.stats[stats.GameID] = &cp
	return nil
}

// GetStats returns the stats of a game.
func (s *MemoryStore) GetStats(_ context.Context, gameID string) (*models.GameStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats, ok := s.stats[gameID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *stats
	return &cp, nil
}

// WithStatsLock runs fn under the game's recompute mutex.
func (s *MemoryStore) WithStatsLock(_ context.Context, gameID string, fn func() error) error {
	s.mu.Lock()
	lock, ok := s.recomp[gameID]
	if !ok {
		lock = &sync.Mutex{}
		s.recomp[gameID] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return fn()
}

// PutGame adds or replaces a game definition.
func (s *MemoryStore) PutGame(game *models.Game) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *game
	s.games[game.ID] = &cp
}

// GetGame returns a game definition.
func (s *MemoryStore) GetGame(_ context.Context, id string) (*models.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	game, ok := s.games[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *game
	return &cp, nil
}

// ListGames returns the known games among ids, in the order of ids.
func (s *MemoryStore) ListGames(_ context.Context, ids []string) ([]*models.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Game, 0, len(ids))
	for _, id := range ids {
		if game, ok := s.games[id]; ok {
			cp := *game
			result = append(result, &cp)
		}
	}
	return result, nil
}

// Link adds a lesson link.
func (s *MemoryStore) Link(_ context.Context, link *models.LessonGame, max int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.links[link.LessonID]
	for _, l := range existing {
		if l.GameID == link.GameID {
			return ErrDuplicateLink
		}
	}
	if len(existing) >= max {
		return ErrCapacityExceeded
	}

	s.nextLink++
	link.ID = s.nextLink
	if link.Order == 0 {
		link.Order = len(existing) + 1
	}
	now := time.Now()
	link.CreatedAt = now
	link.UpdatedAt = now
	s.links[link.LessonID] = append(existing, *link)
	return nil
}

// Unlink removes a lesson link.
func (s *MemoryStore) Unlink(_ context.Context, lessonID, gameID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.links[lessonID]
	for i, l := range existing {
		if l.GameID == gameID {
			s.links[lessonID] = append(existing[:i:i], existing[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// ListLinks returns the links of a lesson ordered by Order.
func (s *MemoryStore) ListLinks(_ context.Context, lessonID string) ([]models.LessonGame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := append([]models.LessonGame(nil), s.links[lessonID]...)
	sort.SliceStable(result, func(i, j int) bool { return result[i].Order < result[j].Order })
	return result, nil
}

// Verify interface compliance.
var (
	_ SessionStore = (*MemoryStore)(nil)
	_ StatsStore   = (*MemoryStore)(nil)
	_ GameCatalog  = (*MemoryStore)(nil)
	_ LessonStore  = (*MemoryStore)(nil)
)
