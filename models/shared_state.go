package models

import "time"

// GameMode describes how participants play together.
type GameMode string

const (
	ModeCollaborative GameMode = "collaborative"
	ModeCompetitive   GameMode = "competitive"
	ModeTurnBased     GameMode = "turn_based"
)

// Valid reports whether m is a known mode.
func (m GameMode) Valid() bool {
	switch m {
	case ModeCollaborative, ModeCompetitive, ModeTurnBased:
		return true
	}
	return false
}

// ControlMode is the policy deciding who may write elements and grid state.
type ControlMode string

const (
	ControlFree     ControlMode = "free"
	ControlSingle   ControlMode = "single"
	ControlHostOnly ControlMode = "host_only"
)

// Valid reports whether m is a known control mode.
func (m ControlMode) Valid() bool {
	switch m {
	case ControlFree, ControlSingle, ControlHostOnly:
		return true
	}
	return false
}

// Sub-resources of SharedState. Each has its own write version.
const (
	ResourceCursors       = "cursors"
	ResourceInputs        = "inputs"
	ResourceElements      = "elements"
	ResourceCrosswordGrid = "crossword_grid"
	ResourceControl       = "control"
	ResourceGame          = "game"
)

// SharedState is the mutable, frequently updated part of a session.
type SharedState struct {
	GameMode        GameMode               `json:"game_mode"`
	SyncedItemIndex int                    `json:"synced_item_index"`
	Answers         map[string]any         `json:"answers,omitempty"`
	CurrentTurn     *string                `json:"current_turn,omitempty"`
	Cursors         map[string]CursorState `json:"cursors"`
	Inputs          map[string]InputState  `json:"inputs"`
	Elements        *ElementsState         `json:"elements,omitempty"`
	CrosswordGrid   *GridState             `json:"crossword_grid,omitempty"`
	ControlMode     ControlMode            `json:"control_mode"`
	ControlledBy    *string                `json:"controlled_by,omitempty"`
	Versions        map[string]int64       `json:"versions"`
}

type CursorState struct {
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
	LastUpdate time.Time `json:"last_update"`
}

type InputState struct {
	Value      string    `json:"value"`
	ItemIndex  int       `json:"item_index"`
	LastUpdate time.Time `json:"last_update"`
}

// ElementPosition is one draggable element in a drag-and-drop layout.
type ElementPosition struct {
	ID   string  `json:"id"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Slot *int    `json:"slot,omitempty"`
}

type ElementsState struct {
	ItemIndex  int               `json:"item_index"`
	Positions  []ElementPosition `json:"positions"`
	LastUpdate time.Time         `json:"last_update"`
	UpdatedBy  string            `json:"updated_by"`
}

type GridState struct {
	ItemIndex  int       `json:"item_index"`
	GridState  string    `json:"grid_state"`
	LastUpdate time.Time `json:"last_update"`
	UpdatedBy  string    `json:"updated_by"`
}

// NewSharedState returns an empty state in free control mode.
func NewSharedState(mode GameMode) SharedState {
	if !mode.Valid() {
		mode = ModeCollaborative
	}
	return SharedState{
		GameMode:    mode,
		Cursors:     make(map[string]CursorState),
		Inputs:      make(map[string]InputState),
		ControlMode: ControlFree,
		Versions:    make(map[string]int64),
	}
}

// Bump increments the version of a sub-resource and returns it.
func (s *SharedState) Bump(resource string) int64 {
	if s.Versions == nil {
		s.Versions = make(map[string]int64)
	}
	s.Versions[resource]++
	return s.Versions[resource]
}

// Clone copies the maps and sub-resources of s.
func (s SharedState) Clone() SharedState {
	c := s
	c.Cursors = make(map[string]CursorState, len(s.Cursors))
	for k, v := range s.Cursors {
		c.Cursors[k] = v
	}
	c.Inputs = make(map[string]InputState, len(s.Inputs))
	for k, v := range s.Inputs {
		c.Inputs[k] = v
	}
	c.Versions = make(map[string]int64, len(s.Versions))
	for k, v := range s.Versions {
		c.Versions[k] = v
	}
	if s.Answers != nil {
		c.Answers = make(map[string]any, len(s.Answers))
		for k, v := range s.Answers {
			c.Answers[k] = v
		}
	}
	if s.Elements != nil {
		e := *s.Elements
		e.Positions = append([]ElementPosition(nil), s.Elements.Positions...)
		c.Elements = &e
	}
	if s.CrosswordGrid != nil {
		g := *s.CrosswordGrid
		c.CrosswordGrid = &g
	}
	return c
}
