package models

import "time"

// GameStats aggregates every session ever played for a game.
type GameStats struct {
	GameID             string    `json:"game_id" gorm:"primaryKey;type:varchar(64)"`
	TotalPlays         int       `json:"total_plays"`
	CompletedPlays     int       `json:"completed_plays"`
	AbandonedPlays     int       `json:"abandoned_plays"`
	CompletionRate     float64   `json:"completion_rate"`
	AverageStars       float64   `json:"average_stars"`
	AverageTimeSeconds float64   `json:"average_time_seconds"`
	UpdatedAt          time.Time `json:"updated_at"`
}
