package api

import (
	"github.com/gin-gonic/gin"
)

// NewRouter wires the HTTP surface. Catalog reads are public; progress writes
// from callers without a token are acknowledged but not tracked.
func NewRouter(h *Handler, jwtSecret string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), RequestLogger())

	r.GET("/healthz", h.Health)

	v1 := r.Group("/api/v1")
	v1.GET("/words/:level", h.LevelWords)
	v1.GET("/words/:level/:topic", h.TopicWords)
	v1.GET("/levels/:level/topics", h.LevelTopics)

	tracked := v1.Group("")
	tracked.Use(Authenticate(jwtSecret))
	tracked.POST("/practice", h.RecordPractice)
	tracked.POST("/words/:wordID/learned", h.MarkLearned)
	tracked.DELETE("/words/:wordID/learned", h.UnmarkLearned)
	tracked.POST("/words/:wordID/flag", h.FlagForPractice)
	tracked.POST("/quizzes", h.CompleteQuiz)
	tracked.POST("/sessions", h.CompleteSession)

	tracked.GET("/me/stats", h.MyStats)
	tracked.GET("/me/words", h.MyWords)
	tracked.GET("/me/words/:wordID", h.MyWord)
	tracked.GET("/me/due", h.MyDueWords)
	tracked.GET("/me/streak", h.MyStreak)

	return r
}
