package progress

import (
	"context"
	"time"

	"github.com/smith3v/wortschatz/pkg/db"
)

// Store is the persistence the engine needs. db.ProgressStore implements it;
// absent rows surface as db.ErrNotFound.
type Store interface {
	GetUserStats(ctx context.Context, userID string) (*db.UserStats, error)
	UpsertUserStats(ctx context.Context, stats *db.UserStats) error
	GetWordProgress(ctx context.Context, userID, wordID string) (*db.WordProgress, error)
	UpsertWordProgress(ctx context.Context, progress *db.WordProgress) error
	DeleteWordProgress(ctx context.Context, userID, wordID string) error
	ListWordProgress(ctx context.Context, userID string, filter db.WordProgressFilter) ([]db.WordProgress, error)
	AppendDailyStreakRecord(ctx context.Context, record db.DailyStreakRecord) error
	ListDailyStreakRecords(ctx context.Context, userID string, from, to time.Time) ([]db.DailyStreakRecord, error)
	ResetLapsedStreaks(ctx context.Context, before time.Time) (int64, error)
}

var _ Store = (*db.ProgressStore)(nil)

// Deduper claims idempotency keys. Claim reports false when the key was
// already claimed; Release gives a key back after a failed attempt.
type Deduper interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}
