package services

import (
	"context"
	"time"

	"sharedplay/models"
	"sharedplay/repository"

	"github.com/samber/lo"
)

// StatsService maintains per-game aggregates. Every recompute reads the full
// session history of the game rather than applying increments.
type StatsService struct {
	sessions repository.SessionStore
	store    repository.StatsStore
	now      func() time.Time
}

func NewStatsService(sessions repository.SessionStore, store repository.StatsStore) *StatsService {
	return &StatsService{sessions: sessions, store: store, now: time.Now}
}

// Recompute rebuilds and saves the stats of gameID. Recomputes of one game
// are serialized so a slower, older one cannot overwrite a newer result.
func (s *StatsService) Recompute(ctx context.Context, gameID string) (*models.GameStats, error) {
	var stats *models.GameStats
	err := s.store.WithStatsLock(ctx, gameID, func() error {
		sessions, err := s.sessions.ListByGame(ctx, gameID)
		if err != nil {
			return err
		}
		stats = ComputeStats(gameID, sessions)
		stats.UpdatedAt = s.now()
		return s.store.SaveStats(ctx, stats)
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// Get returns the last computed stats of gameID.
func (s *StatsService) Get(ctx context.Context, gameID string) (*models.GameStats, error) {
	return s.store.GetStats(ctx, gameID)
}

// ComputeStats aggregates sessions of one game.
func ComputeStats(gameID string, sessions []*models.GameSession) *models.GameStats {
	stats := &models.GameStats{GameID: gameID, TotalPlays: len(sessions)}

	completed := lo.Filter(sessions, func(sess *models.GameSession, _ int) bool {
		return sess.Status == models.StatusCompleted
	})
	stats.CompletedPlays = len(completed)
	stats.AbandonedPlays = lo.CountBy(sessions, func(sess *models.GameSession) bool {
		return sess.Status == models.StatusAbandoned
	})
	if stats.TotalPlays > 0 {
		stats.CompletionRate = float64(stats.CompletedPlays) / float64(stats.TotalPlays) * 100
	}

	stars := lo.FilterMap(completed, func(sess *models.GameSession, _ int) (float64, bool) {
		if sess.Stars == nil {
			return 0, false
		}
		return float64(*sess.Stars), true
	})
	if len(stars) > 0 {
		stats.AverageStars = lo.Sum(stars) / float64(len(stars))
	}

	times := lo.FilterMap(completed, func(sess *models.GameSession, _ int) (float64, bool) {
		if sess.TotalTimeSeconds == nil {
			return 0, false
		}
		return float64(*sess.TotalTimeSeconds), true
	})
	if len(times) > 0 {
		stats.AverageTimeSeconds = lo.Sum(times) / float64(len(times))
	}
	return stats
}
