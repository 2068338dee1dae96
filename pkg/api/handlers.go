package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/smith3v/wortschatz/pkg/catalog"
	"github.com/smith3v/wortschatz/pkg/db"
	"github.com/smith3v/wortschatz/pkg/progress"
)

const (
	headerEventID      = "X-Event-ID"
	defaultDueLimit    = 50
	maxDueLimit        = 500
	defaultHistoryDays = 30
)

type Handler struct {
	engine  *progress.Engine
	catalog *catalog.Catalog
}

func NewHandler(engine *progress.Engine, words *catalog.Catalog) *Handler {
	return &Handler{engine: engine, catalog: words}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "catalog_words": h.catalog.Len()})
}

func (h *Handler) LevelWords(c *gin.Context) {
	words, err := h.catalog.WordsByLevelTopic(c.Param("level"), "")
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"words": words})
}

func (h *Handler) TopicWords(c *gin.Context) {
	words, err := h.catalog.WordsByLevelTopic(c.Param("level"), c.Param("topic"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"words": words})
}

func (h *Handler) LevelTopics(c *gin.Context) {
	topics, err := h.catalog.Topics(c.Param("level"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"topics": topics})
}

type practiceRequest struct {
	EventID   string     `json:"event_id"`
	WordID    string     `json:"word_id" binding:"required"`
	Level     string     `json:"level"`
	Topic     string     `json:"topic"`
	Outcome   string     `json:"outcome" binding:"required"`
	EventType string     `json:"event_type"`
	Timestamp *time.Time `json:"timestamp"`
}

func (h *Handler) RecordPractice(c *gin.Context) {
	var req practiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, codeInvalidRequest, err)
		return
	}
	eventID, err := eventIDFrom(c, req.EventID)
	if err != nil {
		RespondError(c, http.StatusBadRequest, codeInvalidRequest, err)
		return
	}
	uid := userID(c)
	if uid == "" {
		respondUntracked(c)
		return
	}
	level, topic, err := h.resolveWord(req.WordID, req.Level, req.Topic)
	if err != nil {
		respondErr(c, err)
		return
	}

	event := progress.PracticeEvent{
		EventID:   eventID,
		UserID:    uid,
		WordID:    req.WordID,
		Level:     progress.Level(level),
		Topic:     topic,
		Outcome:   progress.Outcome(strings.ToLower(strings.TrimSpace(req.Outcome))),
		EventType: progress.EventType(strings.ToLower(strings.TrimSpace(req.EventType))),
	}
	if req.Timestamp != nil {
		event.Timestamp = *req.Timestamp
	}

	wp, err := h.engine.RecordPracticeAnswer(c.Request.Context(), event)
	if err != nil {
		respondErr(c, err)
		return
	}
	if wp == nil {
		c.JSON(http.StatusOK, gin.H{"tracked": true})
		return
	}
	c.JSON(http.StatusOK, newWordProgressView(wp))
}

type wordRefRequest struct {
	Level string `json:"level"`
	Topic string `json:"topic"`
}

func (h *Handler) MarkLearned(c *gin.Context) {
	h.wordAction(c, h.engine.MarkWordLearned)
}

func (h *Handler) FlagForPractice(c *gin.Context) {
	h.wordAction(c, h.engine.FlagForPractice)
}

type wordActionFunc func(ctx context.Context, userID, wordID string, level progress.Level, topic string) error

func (h *Handler) wordAction(c *gin.Context, action wordActionFunc) {
	var req wordRefRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		RespondError(c, http.StatusBadRequest, codeInvalidRequest, err)
		return
	}
	uid := userID(c)
	if uid == "" {
		respondUntracked(c)
		return
	}
	wordID := c.Param("wordID")
	level, topic, err := h.resolveWord(wordID, req.Level, req.Topic)
	if err != nil {
		respondErr(c, err)
		return
	}
	if err := action(c.Request.Context(), uid, wordID, progress.Level(level), topic); err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) UnmarkLearned(c *gin.Context) {
	uid := userID(c)
	if uid == "" {
		respondUntracked(c)
		return
	}
	if err := h.engine.UnmarkWordLearned(c.Request.Context(), uid, c.Param("wordID")); err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type quizRequest struct {
	Level          string `json:"level" binding:"required"`
	Score          int    `json:"score"`
	TotalQuestions int    `json:"total_questions" binding:"required"`
}

func (h *Handler) CompleteQuiz(c *gin.Context) {
	var req quizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, codeInvalidRequest, err)
		return
	}
	uid := userID(c)
	if uid == "" {
		respondUntracked(c)
		return
	}
	if err := h.engine.CompleteQuiz(c.Request.Context(), uid, progress.Level(req.Level), req.Score, req.TotalQuestions); err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type sessionRequest struct {
	Minutes int `json:"minutes"`
}

func (h *Handler) CompleteSession(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, codeInvalidRequest, err)
		return
	}
	uid := userID(c)
	if uid == "" {
		respondUntracked(c)
		return
	}
	if err := h.engine.CompletePracticeSession(c.Request.Context(), uid, req.Minutes); err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) MyStats(c *gin.Context) {
	stats, err := h.engine.Stats(c.Request.Context(), userID(c))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, newStatsView(stats))
}

func (h *Handler) MyWords(c *gin.Context) {
	rows, err := h.engine.Words(c.Request.Context(), userID(c), progress.Proficiency(c.Query("proficiency")))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"words": newWordProgressViews(rows)})
}

func (h *Handler) MyWord(c *gin.Context) {
	wp, err := h.engine.WordProgress(c.Request.Context(), userID(c), c.Param("wordID"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, newWordProgressView(wp))
}

func (h *Handler) MyDueWords(c *gin.Context) {
	limit := defaultDueLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			RespondError(c, http.StatusBadRequest, codeInvalidRequest, fmt.Errorf("limit must be a positive integer"))
			return
		}
		limit = min(n, maxDueLimit)
	}
	rows, err := h.engine.DueWords(c.Request.Context(), userID(c), limit)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"words": newWordProgressViews(rows)})
}

func (h *Handler) MyStreak(c *gin.Context) {
	to := h.engine.Today()
	from := to.AddDate(0, 0, -(defaultHistoryDays - 1))
	var err error
	if raw := c.Query("from"); raw != "" {
		if from, err = time.Parse(time.DateOnly, raw); err != nil {
			RespondError(c, http.StatusBadRequest, codeInvalidRequest, fmt.Errorf("from must be YYYY-MM-DD"))
			return
		}
	}
	if raw := c.Query("to"); raw != "" {
		if to, err = time.Parse(time.DateOnly, raw); err != nil {
			RespondError(c, http.StatusBadRequest, codeInvalidRequest, fmt.Errorf("to must be YYYY-MM-DD"))
			return
		}
	}

	records, err := h.engine.StreakHistory(c.Request.Context(), userID(c), from, to)
	if err != nil {
		respondErr(c, err)
		return
	}
	days := make([]dayView, 0, len(records))
	for _, r := range records {
		days = append(days, newDayView(r))
	}
	c.JSON(http.StatusOK, gin.H{"from": from.Format(time.DateOnly), "to": to.Format(time.DateOnly), "days": days})
}

// resolveWord fills level and topic from the catalog when the caller left
// them out. A caller-supplied level is trusted as is.
func (h *Handler) resolveWord(wordID, level, topic string) (string, string, error) {
	level, topic = strings.TrimSpace(level), strings.TrimSpace(topic)
	if level != "" {
		return level, topic, nil
	}
	w, err := h.catalog.Find(wordID)
	if err != nil {
		return "", "", err
	}
	if topic == "" {
		topic = w.Topic
	}
	return w.Level, topic, nil
}

func eventIDFrom(c *gin.Context, fromBody string) (string, error) {
	id := strings.TrimSpace(c.GetHeader(headerEventID))
	if id == "" {
		id = strings.TrimSpace(fromBody)
	}
	if id == "" {
		return "", nil
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("event id must be a UUID: %w", err)
	}
	return parsed.String(), nil
}

func bindOptionalJSON(c *gin.Context, dst interface{}) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

type statsView struct {
	TotalXP                    int     `json:"total_xp"`
	CurrentStreak              int     `json:"current_streak"`
	LongestStreak              int     `json:"longest_streak"`
	LastActiveDate             *string `json:"last_active_date"`
	TotalWordsLearned          int     `json:"total_words_learned"`
	TotalWordsMastered         int     `json:"total_words_mastered"`
	TotalPracticeSessions      int     `json:"total_practice_sessions"`
	TotalPracticeTimeMinutes   int     `json:"total_practice_time_minutes"`
	TotalQuizzesCompleted      int     `json:"total_quizzes_completed"`
	TotalQuizQuestionsAnswered int     `json:"total_quiz_questions_answered"`
}

func newStatsView(s *db.UserStats) statsView {
	return statsView{
		TotalXP:                    s.TotalXP,
		CurrentStreak:              s.CurrentStreak,
		LongestStreak:              s.LongestStreak,
		LastActiveDate:             formatDate(s.LastActiveDate),
		TotalWordsLearned:          s.TotalWordsLearned,
		TotalWordsMastered:         s.TotalWordsMastered,
		TotalPracticeSessions:      s.TotalPracticeSessions,
		TotalPracticeTimeMinutes:   s.TotalPracticeTimeMinutes,
		TotalQuizzesCompleted:      s.TotalQuizzesCompleted,
		TotalQuizQuestionsAnswered: s.TotalQuizQuestionsAnswered,
	}
}

type wordProgressView struct {
	WordID             string     `json:"word_id"`
	Level              string     `json:"level"`
	Topic              string     `json:"topic"`
	Proficiency        string     `json:"proficiency"`
	TimesPracticed     int        `json:"times_practiced"`
	CorrectCount       int        `json:"correct_count"`
	IncorrectCount     int        `json:"incorrect_count"`
	LastPracticedAt    *time.Time `json:"last_practiced_at"`
	MasteredAt         *time.Time `json:"mastered_at"`
	EaseFactor         float64    `json:"ease_factor"`
	ReviewIntervalDays int        `json:"review_interval_days"`
	NextReviewDate     *string    `json:"next_review_date"`
}

func newWordProgressView(wp *db.WordProgress) wordProgressView {
	return wordProgressView{
		WordID:             wp.WordID,
		Level:              wp.Level,
		Topic:              wp.Topic,
		Proficiency:        wp.Proficiency,
		TimesPracticed:     wp.TimesPracticed,
		CorrectCount:       wp.CorrectCount,
		IncorrectCount:     wp.IncorrectCount,
		LastPracticedAt:    wp.LastPracticedAt,
		MasteredAt:         wp.MasteredAt,
		EaseFactor:         wp.EaseFactor,
		ReviewIntervalDays: wp.ReviewIntervalDays,
		NextReviewDate:     formatDate(wp.NextReviewDate),
	}
}

func newWordProgressViews(rows []db.WordProgress) []wordProgressView {
	views := make([]wordProgressView, 0, len(rows))
	for i := range rows {
		views = append(views, newWordProgressView(&rows[i]))
	}
	return views
}

type dayView struct {
	Date          string   `json:"date"`
	XPEarned      int      `json:"xp_earned"`
	SessionsCount int      `json:"sessions_count"`
	EventTypes    []string `json:"event_types"`
}

func newDayView(r db.DailyStreakRecord) dayView {
	types, err := db.DecodeEventTypes(r.EventTypes)
	if err != nil || types == nil {
		types = []string{}
	}
	return dayView{
		Date:          r.Date.Format(time.DateOnly),
		XPEarned:      r.XPEarned,
		SessionsCount: r.SessionsCount,
		EventTypes:    types,
	}
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.DateOnly)
	return &s
}
