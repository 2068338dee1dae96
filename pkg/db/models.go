// pkg/db/models.go
package db

import (
	"time"

	"gorm.io/datatypes"
)

const (
	DefaultEaseFactor = 2.5
	MinEaseFactor     = 1.3
)

// UserStats is the per-user aggregate. Counter columns carry no gorm default:
// gorm omits zero-valued fields that have one, and a recount may write zero.
type UserStats struct {
	ID                         uint       `gorm:"primaryKey"`
	UserID                     string     `gorm:"not null;uniqueIndex"`
	TotalXP                    int        `gorm:"column:total_xp;not null"`
	CurrentStreak              int        `gorm:"not null"`
	LongestStreak              int        `gorm:"not null"`
	LastActiveDate             *time.Time `gorm:"type:date;index"`
	TotalWordsLearned          int        `gorm:"not null"`
	TotalWordsMastered         int        `gorm:"not null"`
	TotalPracticeSessions      int        `gorm:"not null"`
	TotalPracticeTimeMinutes   int        `gorm:"not null"`
	TotalQuizzesCompleted      int        `gorm:"not null"`
	TotalQuizQuestionsAnswered int        `gorm:"not null"`
	CreatedAt                  time.Time
	UpdatedAt                  time.Time
}

func (UserStats) TableName() string {
	return "user_stats"
}

type WordProgress struct {
	ID                 uint       `gorm:"primaryKey"`
	UserID             string     `gorm:"not null;uniqueIndex:idx_user_word;index:idx_user_review"`
	WordID             string     `gorm:"not null;uniqueIndex:idx_user_word"`
	Level              string     `gorm:"not null"`
	Topic              string     `gorm:"not null;default:''"`
	Proficiency        string     `gorm:"not null;default:new;index"`
	TimesPracticed     int        `gorm:"not null"`
	CorrectCount       int        `gorm:"not null"`
	IncorrectCount     int        `gorm:"not null"`
	LastPracticedAt    *time.Time
	MasteredAt         *time.Time
	EaseFactor         float64    `gorm:"not null"`
	ReviewIntervalDays int        `gorm:"not null"`
	NextReviewDate     *time.Time `gorm:"type:date;index:idx_user_review"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (WordProgress) TableName() string {
	return "word_progress"
}

// DailyStreakRecord accumulates one row per user and calendar day.
type DailyStreakRecord struct {
	ID            uint      `gorm:"primaryKey"`
	UserID        string    `gorm:"not null;uniqueIndex:idx_user_day"`
	Date          time.Time `gorm:"type:date;not null;uniqueIndex:idx_user_day"`
	XPEarned      int       `gorm:"column:xp_earned;not null"`
	SessionsCount int       `gorm:"not null"`
	EventTypes    datatypes.JSON
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// WordProgressFilter narrows ListWordProgress. Zero values mean "no filter".
type WordProgressFilter struct {
	Proficiency string
	// DueBy selects rows whose next review date is on or before the given day.
	DueBy *time.Time
	Limit int
}
