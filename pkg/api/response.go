package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smith3v/wortschatz/pkg/catalog"
	"github.com/smith3v/wortschatz/pkg/db"
	"github.com/smith3v/wortschatz/pkg/progress"
)

const (
	codeInvalidRequest   = "invalid_request"
	codeUnauthorized     = "unauthorized"
	codeNotFound         = "not_found"
	codeStoreUnavailable = "store_unavailable"
	codeInternal         = "internal"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// respondErr maps engine, store and catalog errors onto HTTP statuses.
func respondErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, progress.ErrInvalidEvent), errors.Is(err, progress.ErrInvalidCounters):
		RespondError(c, http.StatusBadRequest, codeInvalidRequest, err)
	case errors.Is(err, progress.ErrUserNotAuthenticated):
		RespondError(c, http.StatusUnauthorized, codeUnauthorized, err)
	case errors.Is(err, db.ErrNotFound), errors.Is(err, catalog.ErrWordNotFound), errors.Is(err, catalog.ErrUnknownLevel):
		RespondError(c, http.StatusNotFound, codeNotFound, err)
	case errors.Is(err, progress.ErrStoreUnavailable), errors.Is(err, progress.ErrStoreWriteRejected):
		RespondError(c, http.StatusServiceUnavailable, codeStoreUnavailable, err)
	default:
		RespondError(c, http.StatusInternalServerError, codeInternal, err)
	}
}

// respondUntracked answers writes from anonymous callers, which are accepted
// but not persisted.
func respondUntracked(c *gin.Context) {
	c.JSON(http.StatusAccepted, gin.H{"tracked": false})
}
