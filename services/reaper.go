package services

import (
	"context"
	"log"
	"time"

	"sharedplay/models"
	"sharedplay/repository"
)

// Reaper periodically marks participants inactive once their last heartbeat
// is older than the timeout. It never changes a session's status.
type Reaper struct {
	sessions repository.SessionStore
	notifier Notifier
	timeout  time.Duration
	now      func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func NewReaper(sessions repository.SessionStore, notifier Notifier, timeout time.Duration) *Reaper {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Reaper{sessions: sessions, notifier: notifier, timeout: timeout, now: time.Now}
}

// Sweep runs one pass over open sessions and returns how many participants
// were timed out.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	open, err := r.sessions.ListOpen(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, candidate := range open {
		if !hasStale(candidate, r.now().Add(-r.timeout)) {
			continue
		}

		timedOut := 0
		sess, err := r.sessions.Update(ctx, candidate.ID, func(sess *models.GameSession) error {
			now := r.now()
			cutoff := now.Add(-r.timeout)
			for i := range sess.Participants {
				p := &sess.Participants[i]
				if !p.IsActive || !p.LastSeenAt.Before(cutoff) {
					continue
				}
				p.IsActive = false
				timedOut++
				sess.AppendEvent(models.EventParticipantTimedOut, now, map[string]any{
					"participant_id": p.ParticipantID,
					"last_seen_at":   p.LastSeenAt,
				})
			}
			return nil
		})
		if err != nil {
			log.Printf("Presence sweep failed for session %s: %v", candidate.ID, err)
			continue
		}
		if timedOut > 0 {
			total += timedOut
			r.notifier.Publish(ctx, sess.ID, MessageParticipantUpdate, sess.Participants)
		}
	}
	return total, nil
}

func hasStale(sess *models.GameSession, cutoff time.Time) bool {
	for _, p := range sess.Participants {
		if p.IsActive && p.LastSeenAt.Before(cutoff) {
			return true
		}
	}
	return false
}

// Start runs Sweep every interval until Close is called.
func (r *Reaper) Start(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := r.Sweep(ctx)
				if err != nil {
					log.Printf("Presence sweep failed: %v", err)
				} else if n > 0 {
					log.Printf("Timed out %d idle participants", n)
				}
			}
		}
	}()
	log.Printf("Started presence reaper (timeout %s, interval %s)", r.timeout, interval)
}

// Close stops the sweep goroutine. Safe to call when Start was never called.
func (r *Reaper) Close() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}
