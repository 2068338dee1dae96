package progress

import (
	"fmt"
	"strings"
	"time"
)

type Proficiency string

const (
	ProficiencyNew                Proficiency = "new"
	ProficiencyLearning           Proficiency = "learning"
	ProficiencyFamiliar           Proficiency = "familiar"
	ProficiencyMastered           Proficiency = "mastered"
	ProficiencyFlaggedForPractice Proficiency = "flaggedForPractice"
)

// legacyMastered is the label older clients used for the mastered state.
const legacyMastered = "learned"

// ParseProficiency accepts the stored labels, including the legacy "learned".
func ParseProficiency(value string) (Proficiency, error) {
	switch p := Proficiency(strings.TrimSpace(value)); p {
	case ProficiencyNew, ProficiencyLearning, ProficiencyFamiliar, ProficiencyMastered, ProficiencyFlaggedForPractice:
		return p, nil
	case legacyMastered:
		return ProficiencyMastered, nil
	default:
		return "", fmt.Errorf("%w: unknown proficiency %q", ErrInvalidEvent, value)
	}
}

// rank orders the classifier-driven states. Flagged words sit outside the
// forward chain and rank as -1.
func (p Proficiency) rank() int {
	switch p {
	case ProficiencyNew:
		return 0
	case ProficiencyLearning:
		return 1
	case ProficiencyFamiliar:
		return 2
	case ProficiencyMastered:
		return 3
	default:
		return -1
	}
}

type Level string

const (
	LevelA1 Level = "A1"
	LevelA2 Level = "A2"
	LevelB1 Level = "B1"
	LevelB2 Level = "B2"
)

var Levels = []Level{LevelA1, LevelA2, LevelB1, LevelB2}

func ParseLevel(value string) (Level, error) {
	switch l := Level(strings.ToUpper(strings.TrimSpace(value))); l {
	case LevelA1, LevelA2, LevelB1, LevelB2:
		return l, nil
	default:
		return "", fmt.Errorf("%w: unknown level %q", ErrInvalidEvent, value)
	}
}

type Outcome string

const (
	OutcomeCorrect   Outcome = "correct"
	OutcomeIncorrect Outcome = "incorrect"
)

type EventType string

const (
	EventFlashcard   EventType = "flashcard"
	EventQuiz        EventType = "quiz"
	EventTranslation EventType = "translation"
	EventSentence    EventType = "sentence"
)

// activitySession labels practice-session completions in the daily record.
const activitySession = "session"

// PracticeEvent is one answered word. EventID is an optional idempotency key.
type PracticeEvent struct {
	EventID   string
	UserID    string
	WordID    string
	Level     Level
	Topic     string
	Outcome   Outcome
	EventType EventType
	Timestamp time.Time
}

// Validate normalizes the event in place. An empty event type means flashcard.
func (e *PracticeEvent) Validate() error {
	e.WordID = strings.TrimSpace(e.WordID)
	if e.WordID == "" {
		return fmt.Errorf("%w: word id is required", ErrInvalidEvent)
	}
	level, err := ParseLevel(string(e.Level))
	if err != nil {
		return err
	}
	e.Level = level
	e.Topic = strings.TrimSpace(e.Topic)

	switch e.Outcome {
	case OutcomeCorrect, OutcomeIncorrect:
	default:
		return fmt.Errorf("%w: unknown outcome %q", ErrInvalidEvent, e.Outcome)
	}

	switch e.EventType {
	case "":
		e.EventType = EventFlashcard
	case EventFlashcard, EventQuiz, EventTranslation, EventSentence:
	default:
		return fmt.Errorf("%w: unknown event type %q", ErrInvalidEvent, e.EventType)
	}
	return nil
}
