package progress

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smith3v/wortschatz/pkg/db"
	"github.com/smith3v/wortschatz/pkg/logger"
)

// Engine is the single writer of learner progress. It holds no per-user state;
// concurrent events for the same user race on the store rows.
type Engine struct {
	store  Store
	dedup  Deduper
	now    func() time.Time
	loc    *time.Location
	strict bool
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLocation sets the time zone that decides when a learner's day starts.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithStrictCounters makes inconsistent stored counters an error instead of
// being repaired.
func WithStrictCounters(strict bool) Option {
	return func(e *Engine) { e.strict = strict }
}

func WithDeduper(d Deduper) Option {
	return func(e *Engine) { e.dedup = d }
}

func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		now:   time.Now,
		loc:   time.UTC,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Today is the current calendar day in the engine's time zone.
func (e *Engine) Today() time.Time {
	return CivilDay(e.now(), e.loc)
}

// RecordPracticeAnswer applies one answered word to the learner's progress and
// returns the stored word state. Anonymous events are dropped with a nil result.
func (e *Engine) RecordPracticeAnswer(ctx context.Context, event PracticeEvent) (_ *db.WordProgress, err error) {
	if anonymous(event.UserID) {
		logger.Debug("skipping practice answer for anonymous user", "word_id", event.WordID)
		return nil, nil
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}

	if key := dedupKey(event); key != "" && e.dedup != nil {
		claimed, claimErr := e.dedup.Claim(ctx, key)
		switch {
		case claimErr != nil:
			logger.Warn("failed to claim practice event, processing anyway", "user_id", event.UserID, "event_id", event.EventID, "error", claimErr)
		case !claimed:
			logger.Info("skipping duplicate practice event", "user_id", event.UserID, "event_id", event.EventID)
			return e.existingWordProgress(ctx, event.UserID, event.WordID)
		default:
			defer func() {
				if err == nil {
					return
				}
				// Released even when the caller has gone away, so its retry is not a duplicate.
				if releaseErr := e.dedup.Release(context.WithoutCancel(ctx), key); releaseErr != nil {
					logger.Warn("failed to release practice event claim", "user_id", event.UserID, "event_id", event.EventID, "error", releaseErr)
				}
			}()
		}
	}

	now := e.now()
	today := CivilDay(now, e.loc)
	practicedAt := now
	if !event.Timestamp.IsZero() && !event.Timestamp.After(now) {
		practicedAt = event.Timestamp
	}

	wp, err := e.loadOrInitWordProgress(ctx, event.UserID, event.WordID, event.Level, event.Topic)
	if err != nil {
		return nil, err
	}
	if err := e.checkCounters(wp); err != nil {
		return nil, err
	}

	prevProficiency := Proficiency(wp.Proficiency)
	firstPractice := wp.TimesPracticed == 0 && prevProficiency != ProficiencyMastered

	wp.TimesPracticed++
	if event.Outcome == OutcomeCorrect {
		wp.CorrectCount++
	} else {
		wp.IncorrectCount++
	}
	wp.LastPracticedAt = &practicedAt

	classified, err := Classify(Counters{Correct: wp.CorrectCount, Incorrect: wp.IncorrectCount, TotalPracticed: wp.TimesPracticed})
	if err != nil {
		logger.Error("failed to classify word progress", "user_id", event.UserID, "word_id", event.WordID, "error", err)
		return nil, err
	}
	wp.Proficiency = string(advance(prevProficiency, classified))

	schedule := NextReview(ReviewState{EaseFactor: wp.EaseFactor, IntervalDays: wp.ReviewIntervalDays}, QualityFor(event.Outcome), today)
	wp.EaseFactor = schedule.EaseFactor
	wp.ReviewIntervalDays = schedule.IntervalDays
	wp.NextReviewDate = &schedule.NextReviewDate

	newlyMastered := prevProficiency != ProficiencyMastered && Proficiency(wp.Proficiency) == ProficiencyMastered
	firstMastery := newlyMastered && wp.MasteredAt == nil
	if firstMastery {
		wp.MasteredAt = &now
	}

	if err := e.store.UpsertWordProgress(ctx, wp); err != nil {
		logger.Error("failed to persist word progress", "user_id", event.UserID, "word_id", event.WordID, "error", err)
		return nil, writeRejected(err)
	}

	xp := ComputeXP(XPEvent{Kind: XPPracticeAnswer, EventType: event.EventType, Outcome: event.Outcome})
	if firstMastery {
		xp += ComputeXP(XPEvent{Kind: XPFirstMastery})
	}

	stats, err := e.loadOrInitStats(ctx, event.UserID)
	if err != nil {
		return nil, err
	}
	stats.TotalXP += xp
	if newlyMastered {
		stats.TotalWordsMastered++
	}
	if firstPractice {
		stats.TotalWordsLearned++
	}
	e.touchStreak(stats, today)
	if err := e.saveStats(ctx, stats); err != nil {
		return nil, err
	}

	if err := e.appendDay(ctx, event.UserID, today, xp, 0, string(event.EventType)); err != nil {
		return nil, err
	}

	logger.Debug("recorded practice answer",
		"user_id", event.UserID,
		"word_id", event.WordID,
		"outcome", event.Outcome,
		"proficiency", wp.Proficiency,
		"xp", xp,
	)
	return wp, nil
}

// MarkWordLearned moves a word straight to mastered. No XP is awarded; the
// aggregate word counts are recounted.
func (e *Engine) MarkWordLearned(ctx context.Context, userID, wordID string, level Level, topic string) error {
	if anonymous(userID) {
		logger.Debug("skipping mark learned for anonymous user", "word_id", wordID)
		return nil
	}
	wordID, level, err := validateWordRef(wordID, level)
	if err != nil {
		return err
	}

	wp, err := e.loadOrInitWordProgress(ctx, userID, wordID, level, topic)
	if err != nil {
		return err
	}
	wp.Proficiency = string(ProficiencyMastered)
	if wp.MasteredAt == nil {
		now := e.now()
		wp.MasteredAt = &now
	}
	if err := e.store.UpsertWordProgress(ctx, wp); err != nil {
		logger.Error("failed to mark word learned", "user_id", userID, "word_id", wordID, "error", err)
		return writeRejected(err)
	}
	return e.recountWords(ctx, userID)
}

// UnmarkWordLearned deletes a mastered word's record, returning it to new.
// Records that are absent or not mastered are left alone.
func (e *Engine) UnmarkWordLearned(ctx context.Context, userID, wordID string) error {
	if anonymous(userID) {
		logger.Debug("skipping unmark learned for anonymous user", "word_id", wordID)
		return nil
	}
	wordID = strings.TrimSpace(wordID)
	if wordID == "" {
		return fmt.Errorf("%w: word id is required", ErrInvalidEvent)
	}

	wp, err := e.store.GetWordProgress(ctx, userID, wordID)
	if errors.Is(err, db.ErrNotFound) {
		return nil
	}
	if err != nil {
		logger.Error("failed to load word progress", "user_id", userID, "word_id", wordID, "error", err)
		return unavailable(err)
	}
	if Proficiency(wp.Proficiency) != ProficiencyMastered {
		return nil
	}
	if err := e.store.DeleteWordProgress(ctx, userID, wordID); err != nil {
		logger.Error("failed to delete word progress", "user_id", userID, "word_id", wordID, "error", err)
		return writeRejected(err)
	}
	return e.recountWords(ctx, userID)
}

// FlagForPractice demotes a word to flaggedForPractice without touching its
// counters.
func (e *Engine) FlagForPractice(ctx context.Context, userID, wordID string, level Level, topic string) error {
	if anonymous(userID) {
		logger.Debug("skipping flag for anonymous user", "word_id", wordID)
		return nil
	}
	wordID, level, err := validateWordRef(wordID, level)
	if err != nil {
		return err
	}

	wp, err := e.loadOrInitWordProgress(ctx, userID, wordID, level, topic)
	if err != nil {
		return err
	}
	wasMastered := Proficiency(wp.Proficiency) == ProficiencyMastered
	wp.Proficiency = string(ProficiencyFlaggedForPractice)
	if err := e.store.UpsertWordProgress(ctx, wp); err != nil {
		logger.Error("failed to flag word for practice", "user_id", userID, "word_id", wordID, "error", err)
		return writeRejected(err)
	}
	if wasMastered {
		return e.recountWords(ctx, userID)
	}
	return nil
}

// CompleteQuiz credits a finished quiz of totalQuestions with score correct.
func (e *Engine) CompleteQuiz(ctx context.Context, userID string, level Level, score, totalQuestions int) error {
	if anonymous(userID) {
		logger.Debug("skipping quiz completion for anonymous user")
		return nil
	}
	if _, err := ParseLevel(string(level)); err != nil {
		return err
	}
	if totalQuestions <= 0 || score < 0 || score > totalQuestions {
		return fmt.Errorf("%w: score %d of %d", ErrInvalidEvent, score, totalQuestions)
	}

	today := e.Today()
	xp := ComputeXP(XPEvent{Kind: XPQuizCompletion, Correct: score, Total: totalQuestions})

	stats, err := e.loadOrInitStats(ctx, userID)
	if err != nil {
		return err
	}
	stats.TotalXP += xp
	stats.TotalQuizzesCompleted++
	stats.TotalQuizQuestionsAnswered += totalQuestions
	e.touchStreak(stats, today)
	if err := e.saveStats(ctx, stats); err != nil {
		return err
	}
	if err := e.appendDay(ctx, userID, today, xp, 0, string(EventQuiz)); err != nil {
		return err
	}
	logger.Info("quiz completed", "user_id", userID, "level", level, "score", score, "total", totalQuestions, "xp", xp)
	return nil
}

// CompletePracticeSession records a finished session of the given length.
func (e *Engine) CompletePracticeSession(ctx context.Context, userID string, minutes int) error {
	if anonymous(userID) {
		logger.Debug("skipping practice session for anonymous user")
		return nil
	}
	if minutes < 0 {
		return fmt.Errorf("%w: negative session duration %d", ErrInvalidEvent, minutes)
	}

	today := e.Today()
	xp := ComputeXP(XPEvent{Kind: XPPracticeSession, Minutes: minutes})

	stats, err := e.loadOrInitStats(ctx, userID)
	if err != nil {
		return err
	}
	stats.TotalXP += xp
	stats.TotalPracticeSessions++
	stats.TotalPracticeTimeMinutes += minutes
	e.touchStreak(stats, today)
	if err := e.saveStats(ctx, stats); err != nil {
		return err
	}
	return e.appendDay(ctx, userID, today, xp, 1, activitySession)
}

// Stats returns the learner's aggregate; unknown users get zeroed stats.
func (e *Engine) Stats(ctx context.Context, userID string) (*db.UserStats, error) {
	if anonymous(userID) {
		return nil, ErrUserNotAuthenticated
	}
	stats, err := e.store.GetUserStats(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return &db.UserStats{UserID: userID}, nil
	}
	if err != nil {
		logger.Error("failed to load user stats", "user_id", userID, "error", err)
		return nil, unavailable(err)
	}
	return stats, nil
}

// WordProgress returns db.ErrNotFound for a word the learner never touched.
func (e *Engine) WordProgress(ctx context.Context, userID, wordID string) (*db.WordProgress, error) {
	if anonymous(userID) {
		return nil, ErrUserNotAuthenticated
	}
	wp, err := e.store.GetWordProgress(ctx, userID, wordID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		logger.Error("failed to load word progress", "user_id", userID, "word_id", wordID, "error", err)
		return nil, unavailable(err)
	}
	return wp, nil
}

// Words lists the learner's word records, optionally of one proficiency.
func (e *Engine) Words(ctx context.Context, userID string, proficiency Proficiency) ([]db.WordProgress, error) {
	if anonymous(userID) {
		return nil, ErrUserNotAuthenticated
	}
	filter := db.WordProgressFilter{}
	if proficiency != "" {
		p, err := ParseProficiency(string(proficiency))
		if err != nil {
			return nil, err
		}
		filter.Proficiency = string(p)
	}
	return e.list(ctx, userID, filter)
}

// DueWords lists words due for review today or earlier, most overdue first.
func (e *Engine) DueWords(ctx context.Context, userID string, limit int) ([]db.WordProgress, error) {
	if anonymous(userID) {
		return nil, ErrUserNotAuthenticated
	}
	today := e.Today()
	return e.list(ctx, userID, db.WordProgressFilter{DueBy: &today, Limit: limit})
}

// StreakHistory returns the daily records between from and to inclusive.
func (e *Engine) StreakHistory(ctx context.Context, userID string, from, to time.Time) ([]db.DailyStreakRecord, error) {
	if anonymous(userID) {
		return nil, ErrUserNotAuthenticated
	}
	from, to = dateOf(from), dateOf(to)
	if to.Before(from) {
		return nil, fmt.Errorf("%w: history range ends before it starts", ErrInvalidEvent)
	}
	records, err := e.store.ListDailyStreakRecords(ctx, userID, from, to)
	if err != nil {
		logger.Error("failed to load streak history", "user_id", userID, "error", err)
		return nil, unavailable(err)
	}
	return records, nil
}

// ResetLapsedStreaks zeroes the current streak of learners who were not
// active yesterday or today.
func (e *Engine) ResetLapsedStreaks(ctx context.Context) (int64, error) {
	yesterday := e.Today().AddDate(0, 0, -1)
	reset, err := e.store.ResetLapsedStreaks(ctx, yesterday)
	if err != nil {
		logger.Error("failed to reset lapsed streaks", "error", err)
		return 0, writeRejected(err)
	}
	logger.Info("reset lapsed streaks", "users", reset, "inactive_since_before", yesterday.Format(time.DateOnly))
	return reset, nil
}

func (e *Engine) existingWordProgress(ctx context.Context, userID, wordID string) (*db.WordProgress, error) {
	wp, err := e.store.GetWordProgress(ctx, userID, wordID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		logger.Error("failed to load word progress", "user_id", userID, "word_id", wordID, "error", err)
		return nil, unavailable(err)
	}
	return wp, nil
}

func (e *Engine) loadOrInitWordProgress(ctx context.Context, userID, wordID string, level Level, topic string) (*db.WordProgress, error) {
	wp, err := e.store.GetWordProgress(ctx, userID, wordID)
	if errors.Is(err, db.ErrNotFound) {
		return &db.WordProgress{
			UserID:      userID,
			WordID:      wordID,
			Level:       string(level),
			Topic:       strings.TrimSpace(topic),
			Proficiency: string(ProficiencyNew),
			EaseFactor:  DefaultEase,
		}, nil
	}
	if err != nil {
		logger.Error("failed to load word progress", "user_id", userID, "word_id", wordID, "error", err)
		return nil, unavailable(err)
	}
	if level != "" {
		wp.Level = string(level)
	}
	if topic = strings.TrimSpace(topic); topic != "" {
		wp.Topic = topic
	}
	if p, parseErr := ParseProficiency(wp.Proficiency); parseErr == nil {
		wp.Proficiency = string(p)
	}
	return wp, nil
}

func (e *Engine) loadOrInitStats(ctx context.Context, userID string) (*db.UserStats, error) {
	stats, err := e.store.GetUserStats(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return &db.UserStats{UserID: userID}, nil
	}
	if err != nil {
		logger.Error("failed to load user stats", "user_id", userID, "error", err)
		return nil, unavailable(err)
	}
	return stats, nil
}

func (e *Engine) saveStats(ctx context.Context, stats *db.UserStats) error {
	if err := e.store.UpsertUserStats(ctx, stats); err != nil {
		logger.Error("failed to persist user stats", "user_id", stats.UserID, "error", err)
		return writeRejected(err)
	}
	return nil
}

// touchStreak counts today at most once per learner.
func (e *Engine) touchStreak(stats *db.UserStats, today time.Time) {
	if activeOn(stats.LastActiveDate, today) {
		return
	}
	next := UpdateStreak(Streak{
		Current:    stats.CurrentStreak,
		Longest:    stats.LongestStreak,
		LastActive: stats.LastActiveDate,
	}, today)
	stats.CurrentStreak = next.Current
	stats.LongestStreak = next.Longest
	stats.LastActiveDate = next.LastActive
}

func (e *Engine) appendDay(ctx context.Context, userID string, today time.Time, xp, sessions int, activity string) error {
	record := db.DailyStreakRecord{
		UserID:        userID,
		Date:          today,
		XPEarned:      xp,
		SessionsCount: sessions,
		EventTypes:    db.EncodeEventTypes(activity),
	}
	if err := e.store.AppendDailyStreakRecord(ctx, record); err != nil {
		logger.Error("failed to append daily streak record", "user_id", userID, "date", today.Format(time.DateOnly), "error", err)
		return writeRejected(err)
	}
	return nil
}

// recountWords overwrites the word aggregates from a full scan of the
// learner's records.
func (e *Engine) recountWords(ctx context.Context, userID string) error {
	rows, err := e.list(ctx, userID, db.WordProgressFilter{})
	if err != nil {
		return err
	}
	learned, mastered := 0, 0
	for _, row := range rows {
		isMastered := Proficiency(row.Proficiency) == ProficiencyMastered
		if isMastered {
			mastered++
		}
		if isMastered || row.TimesPracticed > 0 {
			learned++
		}
	}

	stats, err := e.loadOrInitStats(ctx, userID)
	if err != nil {
		return err
	}
	stats.TotalWordsLearned = learned
	stats.TotalWordsMastered = mastered
	return e.saveStats(ctx, stats)
}

func (e *Engine) list(ctx context.Context, userID string, filter db.WordProgressFilter) ([]db.WordProgress, error) {
	rows, err := e.store.ListWordProgress(ctx, userID, filter)
	if err != nil {
		logger.Error("failed to list word progress", "user_id", userID, "error", err)
		return nil, unavailable(err)
	}
	return rows, nil
}

// checkCounters enforces timesPracticed = correct + incorrect on a stored row.
// Outside strict mode the row is repaired and the repair logged.
func (e *Engine) checkCounters(wp *db.WordProgress) error {
	if wp.CorrectCount >= 0 && wp.IncorrectCount >= 0 && wp.TimesPracticed == wp.CorrectCount+wp.IncorrectCount {
		return nil
	}
	err := fmt.Errorf("%w: times=%d correct=%d incorrect=%d", ErrInvalidCounters, wp.TimesPracticed, wp.CorrectCount, wp.IncorrectCount)
	if e.strict {
		logger.Error("inconsistent word progress counters", "user_id", wp.UserID, "word_id", wp.WordID, "error", err)
		return err
	}
	logger.Warn("repairing inconsistent word progress counters", "user_id", wp.UserID, "word_id", wp.WordID, "error", err)
	wp.CorrectCount = max(wp.CorrectCount, 0)
	wp.IncorrectCount = max(wp.IncorrectCount, 0)
	wp.TimesPracticed = wp.CorrectCount + wp.IncorrectCount
	return nil
}

func validateWordRef(wordID string, level Level) (string, Level, error) {
	wordID = strings.TrimSpace(wordID)
	if wordID == "" {
		return "", "", fmt.Errorf("%w: word id is required", ErrInvalidEvent)
	}
	parsed, err := ParseLevel(string(level))
	if err != nil {
		return "", "", err
	}
	return wordID, parsed, nil
}

func anonymous(userID string) bool {
	return strings.TrimSpace(userID) == ""
}

func dedupKey(event PracticeEvent) string {
	id := strings.TrimSpace(event.EventID)
	if id == "" {
		return ""
	}
	return "practice:" + event.UserID + ":" + id
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

func writeRejected(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreWriteRejected, err)
}
