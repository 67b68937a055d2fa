package services

import (
	"context"
	"fmt"
	"time"

	"sharedplay/models"
	"sharedplay/repository"

	"github.com/samber/lo"
)

// PresenceTracker records participant heartbeats. Staleness is decided by
// readers through ActiveParticipants; see Reaper for the optional sweep.
type PresenceTracker struct {
	sessions repository.SessionStore
	now      func() time.Time
}

func NewPresenceTracker(sessions repository.SessionStore) *PresenceTracker {
	return &PresenceTracker{sessions: sessions, now: time.Now}
}

// Heartbeat marks the participant as active and seen now.
func (p *PresenceTracker) Heartbeat(ctx context.Context, sessionID, participantID string) error {
	_, err := p.sessions.Update(ctx, sessionID, func(sess *models.GameSession) error {
		if !sess.Touch(participantID, p.now()) {
			return fmt.Errorf("participant %s: %w", participantID, ErrNotFound)
		}
		return nil
	})
	return err
}

// ActiveParticipants returns participants flagged active and seen within threshold.
func ActiveParticipants(sess *models.GameSession, threshold time.Duration, now time.Time) []models.Participant {
	cutoff := now.Add(-threshold)
	return lo.Filter(sess.Participants, func(p models.Participant, _ int) bool {
		return p.IsActive && !p.LastSeenAt.Before(cutoff)
	})
}
