package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("record not found")

const eventTypeMergeAttempts = 5

// ProgressStore persists learner progress through gorm. Each method touches a
// single logical row, except ListWordProgress and ResetLapsedStreaks.
type ProgressStore struct {
	db *gorm.DB
}

func NewProgressStore(gdb *gorm.DB) *ProgressStore {
	return &ProgressStore{db: gdb}
}

func (s *ProgressStore) GetUserStats(ctx context.Context, userID string) (*UserStats, error) {
	var stats UserStats
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&stats).Error; err != nil {
		return nil, notFound(err)
	}
	return &stats, nil
}

func (s *ProgressStore) UpsertUserStats(ctx context.Context, stats *UserStats) error {
	if stats == nil {
		return nil
	}
	if stats.ID != 0 {
		return s.db.WithContext(ctx).Save(stats).Error
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, UpdateAll: true}).
		Create(stats).Error
}

func (s *ProgressStore) GetWordProgress(ctx context.Context, userID, wordID string) (*WordProgress, error) {
	var progress WordProgress
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND word_id = ?", userID, wordID).
		First(&progress).Error; err != nil {
		return nil, notFound(err)
	}
	return &progress, nil
}

func (s *ProgressStore) UpsertWordProgress(ctx context.Context, progress *WordProgress) error {
	if progress == nil {
		return nil
	}
	if progress.ID != 0 {
		return s.db.WithContext(ctx).Save(progress).Error
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "word_id"}},
			UpdateAll: true,
		}).
		Create(progress).Error
}

func (s *ProgressStore) DeleteWordProgress(ctx context.Context, userID, wordID string) error {
	return s.db.WithContext(ctx).
		Where("user_id = ? AND word_id = ?", userID, wordID).
		Delete(&WordProgress{}).Error
}

func (s *ProgressStore) ListWordProgress(ctx context.Context, userID string, filter WordProgressFilter) ([]WordProgress, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if filter.Proficiency != "" {
		query = query.Where("proficiency = ?", filter.Proficiency)
	}
	if filter.DueBy != nil {
		query = query.
			Where("next_review_date IS NOT NULL AND next_review_date <= ?", *filter.DueBy).
			Order("next_review_date ASC, id ASC")
	} else {
		query = query.Order("word_id ASC")
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []WordProgress
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// AppendDailyStreakRecord adds the record's XP, sessions and event types to
// the user's row for that day, creating the row on first use. The counters
// are added in a single upsert; event types are merged afterwards with a
// compare-and-swap so concurrent appends do not drop a label.
func (s *ProgressStore) AppendDailyStreakRecord(ctx context.Context, record DailyStreakRecord) error {
	gdb := s.db.WithContext(ctx)
	record.ID = 0
	if err := gdb.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"xp_earned":      gorm.Expr("daily_streak_records.xp_earned + excluded.xp_earned"),
			"sessions_count": gorm.Expr("daily_streak_records.sessions_count + excluded.sessions_count"),
			"updated_at":     gorm.Expr("excluded.updated_at"),
		}),
	}).Create(&record).Error; err != nil {
		return err
	}
	return mergeDailyEventTypes(gdb, record)
}

func mergeDailyEventTypes(gdb *gorm.DB, record DailyStreakRecord) error {
	added, err := DecodeEventTypes(record.EventTypes)
	if err != nil || len(added) == 0 {
		return err
	}
	for attempt := 0; attempt < eventTypeMergeAttempts; attempt++ {
		var current DailyStreakRecord
		if err := gdb.Where("user_id = ? AND date = ?", record.UserID, record.Date).First(&current).Error; err != nil {
			return err
		}
		existing, err := DecodeEventTypes(current.EventTypes)
		if err != nil {
			return err
		}
		if containsAll(existing, added) {
			return nil
		}

		query := gdb.Model(&DailyStreakRecord{}).Where("id = ?", current.ID)
		if len(current.EventTypes) == 0 {
			query = query.Where("event_types IS NULL")
		} else {
			query = query.Where("event_types = ?", current.EventTypes)
		}
		res := query.Update("event_types", EncodeEventTypes(append(existing, added...)...))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			return nil
		}
	}
	return fmt.Errorf("merge event types for %s on %s: row kept changing", record.UserID, record.Date.Format(time.DateOnly))
}

func containsAll(set, items []string) bool {
	for _, item := range items {
		if !slices.Contains(set, item) {
			return false
		}
	}
	return true
}

func (s *ProgressStore) ListDailyStreakRecords(ctx context.Context, userID string, from, to time.Time) ([]DailyStreakRecord, error) {
	var rows []DailyStreakRecord
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND date >= ? AND date <= ?", userID, from, to).
		Order("date ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ResetLapsedStreaks zeroes the current streak of every user whose last
// active day is before the given day.
func (s *ProgressStore) ResetLapsedStreaks(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&UserStats{}).
		Where("current_streak > 0 AND (last_active_date IS NULL OR last_active_date < ?)", before).
		Update("current_streak", 0)
	return res.RowsAffected, res.Error
}

// EncodeEventTypes stores a set of event type labels as a JSON array.
func EncodeEventTypes(types ...string) datatypes.JSON {
	unique := make([]string, 0, len(types))
	for _, t := range types {
		if t != "" && !slices.Contains(unique, t) {
			unique = append(unique, t)
		}
	}
	slices.Sort(unique)
	raw, err := json.Marshal(unique)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(raw)
}

// DecodeEventTypes is the inverse of EncodeEventTypes; empty input yields nil.
func DecodeEventTypes(raw datatypes.JSON) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var types []string
	if err := json.Unmarshal(raw, &types); err != nil {
		return nil, err
	}
	return types, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
