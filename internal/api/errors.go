package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ayushdsd/spotlight-sub000/internal/logger"
	"github.com/ayushdsd/spotlight-sub000/internal/messaging"
)

// Error codes sent in every error body next to the message
const (
	CodeInvalidRequest       = "invalid_request"
	CodeUnauthorized         = "unauthorized"
	CodeForbidden            = "forbidden"
	CodeMutualFollowRequired = "mutual_follow_required"
	CodeNotFound             = "not_found"
	CodeConflict             = "conflict"
	CodeRateLimited          = "rate_limited"
	CodeInternal             = "internal"
)

var log = logger.New("api")

// ErrorResponse is the single error body shape of the API
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func abortWithError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: msg, Code: code})
}

// respondError maps the messaging error taxonomy onto a status and code.
// Anything outside the taxonomy is logged and reported as a bare 500.
func respondError(c *gin.Context, err error) {
	msg := messaging.Message(err)

	switch {
	case errors.Is(err, messaging.ErrMutualFollowRequired):
		abortWithError(c, http.StatusForbidden, CodeMutualFollowRequired, msg)
	case errors.Is(err, messaging.ErrForbidden):
		abortWithError(c, http.StatusForbidden, CodeForbidden, msg)
	case errors.Is(err, messaging.ErrInvalidRequest):
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, msg)
	case errors.Is(err, messaging.ErrUnauthorized):
		abortWithError(c, http.StatusUnauthorized, CodeUnauthorized, msg)
	case errors.Is(err, messaging.ErrNotFound):
		abortWithError(c, http.StatusNotFound, CodeNotFound, msg)
	case errors.Is(err, messaging.ErrConflict):
		abortWithError(c, http.StatusConflict, CodeConflict, msg)
	default:
		log.Error("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
		abortWithError(c, http.StatusInternalServerError, CodeInternal, "Internal server error")
	}
}

func badRequest(c *gin.Context, msg string) {
	abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, msg)
}
