package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/smith3v/wortschatz/pkg/catalog"
	"github.com/smith3v/wortschatz/pkg/db"
	"github.com/smith3v/wortschatz/pkg/internal/testutil"
	"github.com/smith3v/wortschatz/pkg/progress"
)

const testSecret = "test-secret"

type setDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (d *setDeduper) Claim(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[key] {
		return false, nil
	}
	d.seen[key] = true
	return true, nil
}

func (d *setDeduper) Release(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
	return nil
}

type testServer struct {
	router *gin.Engine
	store  *db.ProgressStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := db.NewProgressStore(testutil.SetupTestDB(t))
	now := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	engine := progress.NewEngine(store,
		progress.WithClock(func() time.Time { return now }),
		progress.WithDeduper(&setDeduper{seen: map[string]bool{}}),
	)
	words := catalog.New([]catalog.Word{
		{ID: "a1-apfel", Level: "A1", Topic: "food", Word: "Apfel", Article: "der", Meaning: "apple"},
		{ID: "a1-brot", Level: "A1", Topic: "food", Word: "Brot", Article: "das", Meaning: "bread"},
		{ID: "a1-hund", Level: "A1", Topic: "animals", Word: "Hund", Article: "der", Meaning: "dog"},
		{ID: "b1-miete", Level: "B1", Topic: "home", Word: "Miete", Article: "die", Meaning: "rent"},
	})
	return &testServer{router: NewRouter(NewHandler(engine, words), testSecret), store: store}
}

func signToken(t *testing.T, subject, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("failed to decode %q: %v", rec.Body.String(), err)
	}
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func expectErrorCode(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	expectStatus(t, rec, status)
	var env ErrorEnvelope
	decode(t, rec, &env)
	if env.Error.Code != code || env.Error.Message == "" {
		t.Fatalf("expected error code %q with a message, got %+v", code, env)
	}
}

func TestHealthAndRequestID(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/healthz", "", nil)
	expectStatus(t, rec, http.StatusOK)
	if _, err := uuid.Parse(rec.Header().Get("X-Request-ID")); err != nil {
		t.Fatalf("expected a generated request id, got %q", rec.Header().Get("X-Request-ID"))
	}

	rec = s.do(t, http.MethodGet, "/healthz", "", nil, "X-Request-ID", "abc-123")
	if rec.Header().Get("X-Request-ID") != "abc-123" {
		t.Fatalf("expected request id to be propagated, got %q", rec.Header().Get("X-Request-ID"))
	}
}

func TestCatalogRoutes(t *testing.T) {
	s := newTestServer(t)

	var words struct {
		Words []catalog.Word `json:"words"`
	}
	rec := s.do(t, http.MethodGet, "/api/v1/words/A1", "", nil)
	expectStatus(t, rec, http.StatusOK)
	decode(t, rec, &words)
	if len(words.Words) != 3 {
		t.Fatalf("expected 3 A1 words, got %d", len(words.Words))
	}

	rec = s.do(t, http.MethodGet, "/api/v1/words/a1/food", "", nil)
	expectStatus(t, rec, http.StatusOK)
	decode(t, rec, &words)
	if len(words.Words) != 2 || words.Words[0].ID != "a1-apfel" {
		t.Fatalf("unexpected food words: %+v", words.Words)
	}

	var topics struct {
		Topics []string `json:"topics"`
	}
	rec = s.do(t, http.MethodGet, "/api/v1/levels/A1/topics", "", nil)
	expectStatus(t, rec, http.StatusOK)
	decode(t, rec, &topics)
	if strings.Join(topics.Topics, ",") != "animals,food" {
		t.Fatalf("unexpected topics: %v", topics.Topics)
	}

	expectErrorCode(t, s.do(t, http.MethodGet, "/api/v1/words/C2", "", nil), http.StatusNotFound, codeNotFound)
}

func TestAnonymousWritesAreAcceptedButNotTracked(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/practice", "", map[string]string{"word_id": "a1-apfel", "outcome": "correct"})
	expectStatus(t, rec, http.StatusAccepted)
	var body map[string]bool
	decode(t, rec, &body)
	if body["tracked"] {
		t.Fatalf("expected tracked=false, got %v", body)
	}

	expectStatus(t, s.do(t, http.MethodPost, "/api/v1/quizzes", "", map[string]interface{}{"level": "A1", "score": 1, "total_questions": 2}), http.StatusAccepted)
	expectStatus(t, s.do(t, http.MethodPost, "/api/v1/words/a1-apfel/learned", "", nil), http.StatusAccepted)

	expectErrorCode(t, s.do(t, http.MethodGet, "/api/v1/me/stats", "", nil), http.StatusUnauthorized, codeUnauthorized)
}

func TestInvalidTokenIsRejected(t *testing.T) {
	s := newTestServer(t)

	bad := signToken(t, "u1", "wrong-secret")
	expectErrorCode(t, s.do(t, http.MethodGet, "/api/v1/me/stats", bad, nil), http.StatusUnauthorized, codeUnauthorized)

	noSubject := signToken(t, "", testSecret)
	expectErrorCode(t, s.do(t, http.MethodGet, "/api/v1/me/stats", noSubject, nil), http.StatusUnauthorized, codeUnauthorized)
}

func TestRecordPracticeFlow(t *testing.T) {
	s := newTestServer(t)
	token := signToken(t, "u1", testSecret)

	var view wordProgressView
	for i := 0; i < 2; i++ {
		rec := s.do(t, http.MethodPost, "/api/v1/practice", token, map[string]string{
			"word_id":    "a1-apfel",
			"outcome":    "correct",
			"event_type": "flashcard",
		})
		expectStatus(t, rec, http.StatusOK)
		decode(t, rec, &view)
	}
	if view.TimesPracticed != 2 || view.Proficiency != "learning" || view.Level != "A1" || view.Topic != "food" {
		t.Fatalf("unexpected progress view: %+v", view)
	}
	if view.NextReviewDate == nil || *view.NextReviewDate != "2025-09-07" {
		t.Fatalf("expected next review 2025-09-07, got %v", view.NextReviewDate)
	}

	var stats statsView
	rec := s.do(t, http.MethodGet, "/api/v1/me/stats", token, nil)
	expectStatus(t, rec, http.StatusOK)
	decode(t, rec, &stats)
	if stats.TotalXP != 10 || stats.CurrentStreak != 1 || stats.TotalWordsLearned != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.LastActiveDate == nil || *stats.LastActiveDate != "2025-09-01" {
		t.Fatalf("unexpected last active date: %v", stats.LastActiveDate)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/me/words/a1-apfel", token, nil)
	expectStatus(t, rec, http.StatusOK)
	expectErrorCode(t, s.do(t, http.MethodGet, "/api/v1/me/words/a1-hund", token, nil), http.StatusNotFound, codeNotFound)
}

func TestRecordPracticeValidation(t *testing.T) {
	s := newTestServer(t)
	token := signToken(t, "u1", testSecret)

	expectErrorCode(t, s.do(t, http.MethodPost, "/api/v1/practice", token, map[string]string{"outcome": "correct"}), http.StatusBadRequest, codeInvalidRequest)
	expectErrorCode(t, s.do(t, http.MethodPost, "/api/v1/practice", token, map[string]string{"word_id": "a1-apfel", "outcome": "meh"}), http.StatusBadRequest, codeInvalidRequest)
	expectErrorCode(t, s.do(t, http.MethodPost, "/api/v1/practice", token, map[string]string{"word_id": "unknown", "outcome": "correct"}), http.StatusNotFound, codeNotFound)
	expectErrorCode(t, s.do(t, http.MethodPost, "/api/v1/practice", token,
		map[string]string{"word_id": "a1-apfel", "outcome": "correct"}, "X-Event-ID", "not-a-uuid"),
		http.StatusBadRequest, codeInvalidRequest)

	rec := s.do(t, http.MethodPost, "/api/v1/practice", token, map[string]string{"word_id": "custom", "level": "B2", "outcome": "incorrect"})
	expectStatus(t, rec, http.StatusOK)
}

func TestDuplicateEventIDCountsOnce(t *testing.T) {
	s := newTestServer(t)
	token := signToken(t, "u1", testSecret)
	eventID := uuid.NewString()

	for i := 0; i < 2; i++ {
		rec := s.do(t, http.MethodPost, "/api/v1/practice", token,
			map[string]string{"word_id": "a1-brot", "outcome": "correct"}, "X-Event-ID", eventID)
		expectStatus(t, rec, http.StatusOK)
	}

	wp, err := s.store.GetWordProgress(context.Background(), "u1", "a1-brot")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if wp.TimesPracticed != 1 {
		t.Fatalf("expected a retried event to count once, got %d", wp.TimesPracticed)
	}
}

func TestLearnedAndFlagRoutes(t *testing.T) {
	s := newTestServer(t)
	token := signToken(t, "u1", testSecret)

	expectStatus(t, s.do(t, http.MethodPost, "/api/v1/words/a1-hund/learned", token, nil), http.StatusNoContent)
	expectStatus(t, s.do(t, http.MethodPost, "/api/v1/words/b1-miete/learned", token, map[string]string{"level": "B1"}), http.StatusNoContent)

	var stats statsView
	rec := s.do(t, http.MethodGet, "/api/v1/me/stats", token, nil)
	expectStatus(t, rec, http.StatusOK)
	decode(t, rec, &stats)
	if stats.TotalWordsMastered != 2 {
		t.Fatalf("expected two mastered words, got %+v", stats)
	}

	expectStatus(t, s.do(t, http.MethodPost, "/api/v1/words/a1-hund/flag", token, nil), http.StatusNoContent)
	var words struct {
		Words []wordProgressView `json:"words"`
	}
	rec = s.do(t, http.MethodGet, "/api/v1/me/words?proficiency=flaggedForPractice", token, nil)
	expectStatus(t, rec, http.StatusOK)
	decode(t, rec, &words)
	if len(words.Words) != 1 || words.Words[0].WordID != "a1-hund" {
		t.Fatalf("unexpected flagged words: %+v", words.Words)
	}
	expectErrorCode(t, s.do(t, http.MethodGet, "/api/v1/me/words?proficiency=guru", token, nil), http.StatusBadRequest, codeInvalidRequest)

	expectStatus(t, s.do(t, http.MethodDelete, "/api/v1/words/b1-miete/learned", token, nil), http.StatusNoContent)
	rec = s.do(t, http.MethodGet, "/api/v1/me/stats", token, nil)
	decode(t, rec, &stats)
	if stats.TotalWordsMastered != 0 {
		t.Fatalf("expected no mastered words after unmark, got %+v", stats)
	}
}

func TestQuizSessionAndStreakRoutes(t *testing.T) {
	s := newTestServer(t)
	token := signToken(t, "u1", testSecret)

	expectStatus(t, s.do(t, http.MethodPost, "/api/v1/quizzes", token, map[string]interface{}{"level": "A1", "score": 10, "total_questions": 10}), http.StatusNoContent)
	expectErrorCode(t, s.do(t, http.MethodPost, "/api/v1/quizzes", token, map[string]interface{}{"level": "A1", "score": 11, "total_questions": 10}), http.StatusBadRequest, codeInvalidRequest)
	expectStatus(t, s.do(t, http.MethodPost, "/api/v1/sessions", token, map[string]int{"minutes": 7}), http.StatusNoContent)

	var stats statsView
	rec := s.do(t, http.MethodGet, "/api/v1/me/stats", token, nil)
	decode(t, rec, &stats)
	if stats.TotalXP != 160 || stats.TotalQuizzesCompleted != 1 || stats.TotalPracticeSessions != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	var streak struct {
		From string    `json:"from"`
		To   string    `json:"to"`
		Days []dayView `json:"days"`
	}
	rec = s.do(t, http.MethodGet, "/api/v1/me/streak", token, nil)
	expectStatus(t, rec, http.StatusOK)
	decode(t, rec, &streak)
	if streak.To != "2025-09-01" || streak.From != "2025-08-03" {
		t.Fatalf("unexpected default range %s..%s", streak.From, streak.To)
	}
	if len(streak.Days) != 1 || streak.Days[0].XPEarned != 160 || streak.Days[0].SessionsCount != 1 {
		t.Fatalf("unexpected streak days: %+v", streak.Days)
	}

	expectErrorCode(t, s.do(t, http.MethodGet, "/api/v1/me/streak?from=yesterday", token, nil), http.StatusBadRequest, codeInvalidRequest)
	expectErrorCode(t, s.do(t, http.MethodGet, "/api/v1/me/streak?from=2025-09-02&to=2025-09-01", token, nil), http.StatusBadRequest, codeInvalidRequest)
}

func TestDueRoute(t *testing.T) {
	s := newTestServer(t)
	token := signToken(t, "u1", testSecret)

	yesterday := time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC)
	if err := s.store.UpsertWordProgress(context.Background(), &db.WordProgress{
		UserID: "u1", WordID: "a1-apfel", Level: "A1", Proficiency: "learning",
		TimesPracticed: 2, CorrectCount: 2, EaseFactor: db.DefaultEaseFactor, ReviewIntervalDays: 1, NextReviewDate: &yesterday,
	}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	var words struct {
		Words []wordProgressView `json:"words"`
	}
	rec := s.do(t, http.MethodGet, "/api/v1/me/due?limit=5", token, nil)
	expectStatus(t, rec, http.StatusOK)
	decode(t, rec, &words)
	if len(words.Words) != 1 || words.Words[0].WordID != "a1-apfel" {
		t.Fatalf("unexpected due words: %+v", words.Words)
	}

	expectErrorCode(t, s.do(t, http.MethodGet, "/api/v1/me/due?limit=0", token, nil), http.StatusBadRequest, codeInvalidRequest)
}
