package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GameType identifies the rules a game definition follows.
type GameType string

const (
	GameSentenceBuilder GameType = "sentence_builder"
	GameFillInBlank     GameType = "fill_in_blank"
	GameWordOrdering    GameType = "word_ordering"
	GameMatchingPairs   GameType = "matching_pairs"
	GameWordScramble    GameType = "word_scramble"
	GameMultipleChoice  GameType = "multiple_choice"
	GameFlashcards      GameType = "flashcards"
	GameHangman         GameType = "hangman"
	GameCrossword       GameType = "crossword"
)

// Game catalog statuses.
const (
	GameStatusDraft     = "draft"
	GameStatusPublished = "published"
	GameStatusArchived  = "archived"
)

// Game is a game definition owned by the content catalog. Sessions only read it.
type Game struct {
	ID        string         `json:"id" gorm:"primaryKey;type:varchar(64)"`
	Title     string         `json:"title"`
	Type      GameType       `json:"type" gorm:"not null;index"`
	Status    string         `json:"status" gorm:"not null;default:'draft'"`
	Config    datatypes.JSON `json:"config" gorm:"type:jsonb"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// GameConfig is the typed content of a game definition, one variant per GameType.
type GameConfig interface {
	GameType() GameType
	ItemCount() int
}

type SentenceItem struct {
	Words           []string `json:"words"`
	CorrectSentence string   `json:"correctSentence"`
}

type FillInBlankItem struct {
	Sentence      string `json:"sentence"`
	CorrectAnswer string `json:"correctAnswer"`
}

type MatchingPair struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
}

type ScrambleItem struct {
	Word      string `json:"word"`
	Scrambled string `json:"scrambled"`
}

type MultipleChoiceItem struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
}

type Flashcard struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

type HangmanItem struct {
	Word string `json:"word"`
	Hint string `json:"hint"`
}

type CrosswordClue struct {
	Number    int    `json:"number"`
	Clue      string `json:"clue"`
	Answer    string `json:"answer"`
	Direction string `json:"direction"`
	Row       int    `json:"row"`
	Col       int    `json:"col"`
}

type CrosswordPuzzle struct {
	Rows  int             `json:"rows"`
	Cols  int             `json:"cols"`
	Clues []CrosswordClue `json:"clues"`
}

type SentenceBuilderConfig struct {
	Items []SentenceItem `json:"items"`
}

type FillInBlankConfig struct {
	Items []FillInBlankItem `json:"items"`
}

type WordOrderingConfig struct {
	Items []SentenceItem `json:"items"`
}

type MatchingPairsConfig struct {
	Pairs []MatchingPair `json:"pairs"`
}

type WordScrambleConfig struct {
	Items []ScrambleItem `json:"items"`
}

type MultipleChoiceConfig struct {
	Items []MultipleChoiceItem `json:"items"`
}

type FlashcardsConfig struct {
	Cards []Flashcard `json:"cards"`
}

type HangmanConfig struct {
	Items []HangmanItem `json:"items"`
	Words []string      `json:"words"`
}

type CrosswordConfig struct {
	Items []CrosswordPuzzle `json:"items"`
}

// LegacyConfig covers definitions whose type is not one of the known variants.
// The first non-empty list wins: items, pairs, cards, words.
type LegacyConfig struct {
	Type  GameType          `json:"-"`
	Items []json.RawMessage `json:"items"`
	Pairs []json.RawMessage `json:"pairs"`
	Cards []json.RawMessage `json:"cards"`
	Words []string          `json:"words"`
}

func (SentenceBuilderConfig) GameType() GameType { return GameSentenceBuilder }
func (FillInBlankConfig) GameType() GameType     { return GameFillInBlank }
func (WordOrderingConfig) GameType() GameType    { return GameWordOrdering }
func (MatchingPairsConfig) GameType() GameType   { return GameMatchingPairs }
func (WordScrambleConfig) GameType() GameType    { return GameWordScramble }
func (MultipleChoiceConfig) GameType() GameType  { return GameMultipleChoice }
func (FlashcardsConfig) GameType() GameType      { return GameFlashcards }
func (HangmanConfig) GameType() GameType         { return GameHangman }
func (CrosswordConfig) GameType() GameType       { return GameCrossword }
func (c LegacyConfig) GameType() GameType        { return c.Type }

func (c SentenceBuilderConfig) ItemCount() int { return len(c.Items) }
func (c FillInBlankConfig) ItemCount() int     { return len(c.Items) }
func (c WordOrderingConfig) ItemCount() int    { return len(c.Items) }
func (c MatchingPairsConfig) ItemCount() int   { return len(c.Pairs) }
func (c WordScrambleConfig) ItemCount() int    { return len(c.Items) }
func (c MultipleChoiceConfig) ItemCount() int  { return len(c.Items) }
func (c FlashcardsConfig) ItemCount() int      { return len(c.Cards) }
func (c CrosswordConfig) ItemCount() int       { return len(c.Items) }

func (c HangmanConfig) ItemCount() int {
	if len(c.Items) > 0 {
		return len(c.Items)
	}
	return len(c.Words)
}

func (c LegacyConfig) ItemCount() int {
	switch {
	case len(c.Items) > 0:
		return len(c.Items)
	case len(c.Pairs) > 0:
		return len(c.Pairs)
	case len(c.Cards) > 0:
		return len(c.Cards)
	default:
		return len(c.Words)
	}
}

// ParseConfig decodes Config into the variant selected by Type.
func (g *Game) ParseConfig() (GameConfig, error) {
	var cfg GameConfig
	switch g.Type {
	case GameSentenceBuilder:
		cfg = &SentenceBuilderConfig{}
	case GameFillInBlank:
		cfg = &FillInBlankConfig{}
	case GameWordOrdering:
		cfg = &WordOrderingConfig{}
	case GameMatchingPairs:
		cfg = &MatchingPairsConfig{}
	case GameWordScramble:
		cfg = &WordScrambleConfig{}
	case GameMultipleChoice:
		cfg = &MultipleChoiceConfig{}
	case GameFlashcards:
		cfg = &FlashcardsConfig{}
	case GameHangman:
		cfg = &HangmanConfig{}
	case GameCrossword:
		cfg = &CrosswordConfig{}
	default:
		cfg = &LegacyConfig{Type: g.Type}
	}

	if len(g.Config) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(g.Config, cfg); err != nil {
		return nil, fmt.Errorf("decoding %s config for game %s: %w", g.Type, g.ID, err)
	}
	return cfg, nil
}

// TotalItems is the number of playable items, never less than 1.
func (g *Game) TotalItems() int {
	cfg, err := g.ParseConfig()
	if err != nil {
		return 1
	}
	if n := cfg.ItemCount(); n > 0 {
		return n
	}
	return 1
}
