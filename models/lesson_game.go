package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MaxGamesPerLesson caps how many games a lesson can link.
const MaxGamesPerLesson = 20

// Lesson trigger types.
const (
	TriggerManual      = "manual"
	TriggerAfterSlide  = "after_slide"
	TriggerOnKeyword   = "on_keyword"
	TriggerEndOfLesson = "end_of_lesson"
)

// LessonGame links a game to a lesson in a given order.
type LessonGame struct {
	ID            uint           `json:"id" gorm:"primaryKey"`
	LessonID      string         `json:"lesson_id" gorm:"not null;index;uniqueIndex:idx_lesson_games_lesson_game,where:deleted_at IS NULL"`
	GameID        string         `json:"game_id" gorm:"not null;index;uniqueIndex:idx_lesson_games_lesson_game,where:deleted_at IS NULL"`
	Order         int            `json:"order" gorm:"not null"`
	TriggerType   string         `json:"trigger_type" gorm:"not null;default:'manual'"`
	TriggerConfig datatypes.JSON `json:"trigger_config,omitempty" gorm:"type:jsonb"`
	IsRequired    bool           `json:"is_required" gorm:"not null;default:false"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-" gorm:"index"`
}
