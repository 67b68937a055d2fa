package models

import (
	"time"
)

// SessionStatus is the lifecycle state of a game session.
type SessionStatus string

const (
	StatusWaiting    SessionStatus = "waiting"
	StatusInProgress SessionStatus = "in_progress"
	StatusCompleted  SessionStatus = "completed"
	StatusAbandoned  SessionStatus = "abandoned"
)

// IsTerminal reports whether no further transition is possible.
func (s SessionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusAbandoned
}

// Session event types appended to GameSession.Events.
const (
	EventSessionCreated      = "session_created"
	EventParticipantJoined   = "participant_joined"
	EventParticipantRejoined = "participant_rejoined"
	EventParticipantLeft     = "participant_left"
	EventParticipantTimedOut = "participant_timed_out"
	EventGameStarted         = "game_started"
	EventSessionEnded        = "session_ended"
	EventGameCompleted       = "game_completed"
	EventGameAbandoned       = "game_abandoned"
	EventTokenRevoked        = "token_revoked"
	EventControlGranted      = "control_granted"
	EventControlModeChanged  = "control_mode_changed"
	EventAnswerSubmitted     = "answer_submitted"
	EventHintUsed            = "hint_used"
)

// GameSession is one play-through of a game, single- or multi-participant.
// Participants, SharedState and Events are stored as jsonb documents on the
// session row so that a session is always read and written as one aggregate.
type GameSession struct {
	ID             string        `json:"id" gorm:"primaryKey;type:varchar(36)"`
	GameID         string        `json:"game_id" gorm:"not null;index"`
	Status         SessionStatus `json:"status" gorm:"not null;default:'waiting';index"`
	IsMultiplayer  bool          `json:"is_multiplayer" gorm:"not null;default:false"`
	ShareToken     *string       `json:"share_token,omitempty" gorm:"index;size:12"`
	TokenExpiresAt *time.Time    `json:"token_expires_at,omitempty"`
	HostUserID     *string       `json:"host_user_id,omitempty" gorm:"index"`
	AllowSelfStart bool          `json:"allow_self_start" gorm:"not null;default:true"`

	Participants []Participant `json:"participants" gorm:"serializer:json;type:jsonb"`
	SharedState  SharedState   `json:"shared_state" gorm:"serializer:json;type:jsonb"`

	CurrentItemIndex int      `json:"current_item_index" gorm:"not null;default:0"`
	TotalItems       int      `json:"total_items" gorm:"not null;default:1"`
	CorrectAnswers   int      `json:"correct_answers" gorm:"not null;default:0"`
	IncorrectAnswers int      `json:"incorrect_answers" gorm:"not null;default:0"`
	HintsUsed        int      `json:"hints_used" gorm:"not null;default:0"`
	Stars            *int     `json:"stars,omitempty"`
	ScorePercent     *float64 `json:"score_percent,omitempty"`

	Events []SessionEvent `json:"events" gorm:"serializer:json;type:jsonb"`

	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	TotalTimeSeconds *int       `json:"total_time_seconds,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Participant is a member of a session roster. Entries are never removed.
type Participant struct {
	ParticipantID string    `json:"participant_id"`
	DisplayName   string    `json:"display_name"`
	UserID        *string   `json:"user_id,omitempty"`
	JoinedAt      time.Time `json:"joined_at"`
	IsHost        bool      `json:"is_host"`
	IsActive      bool      `json:"is_active"`
	LastSeenAt    time.Time `json:"last_seen_at"`
}

// SessionEvent is one entry of the append-only session log.
type SessionEvent struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// AppendEvent adds an entry to the session log.
func (s *GameSession) AppendEvent(eventType string, at time.Time, data map[string]any) {
	s.Events = append(s.Events, SessionEvent{Type: eventType, Timestamp: at, Data: data})
}

// Participant returns a pointer into the roster, or nil.
func (s *GameSession) Participant(participantID string) *Participant {
	for i := range s.Participants {
		if s.Participants[i].ParticipantID == participantID {
			return &s.Participants[i]
		}
	}
	return nil
}

// Host returns the host participant, or nil for sessions without a roster.
func (s *GameSession) Host() *Participant {
	for i := range s.Participants {
		if s.Participants[i].IsHost {
			return &s.Participants[i]
		}
	}
	return nil
}

// Touch marks a participant as seen. It reports false for unknown ids.
func (s *GameSession) Touch(participantID string, at time.Time) bool {
	p := s.Participant(participantID)
	if p == nil {
		return false
	}
	p.LastSeenAt = at
	p.IsActive = true
	return true
}

// Elapsed returns whole seconds since StartedAt.
func (s *GameSession) Elapsed(now time.Time) int {
	d := now.Sub(s.StartedAt)
	if d < 0 {
		return 0
	}
	return int(d.Seconds())
}

// PercentComplete is CurrentItemIndex over TotalItems, in [0,100].
func (s *GameSession) PercentComplete() float64 {
	if s.TotalItems <= 0 {
		return 0
	}
	pct := float64(s.CurrentItemIndex) / float64(s.TotalItems) * 100
	if pct > 100 {
		return 100
	}
	return pct
}

// Clone returns a copy that shares no mutable state with s.
func (s *GameSession) Clone() *GameSession {
	c := *s
	c.Participants = append([]Participant(nil), s.Participants...)
	c.Events = append([]SessionEvent(nil), s.Events...)
	c.SharedState = s.SharedState.Clone()
	return &c
}
