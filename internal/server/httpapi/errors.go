package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oasis-water/oasis-backend/internal/common"
)

// statusFor maps the service-layer sentinel errors onto HTTP status codes.
// Unknown jobs and jobs owned by someone else both map to 404: ownership is
// never disclosed.
func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrValidation),
		errors.Is(err, common.ErrInvalidStatus):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrSessionNotFound),
		errors.Is(err, common.ErrSessionRevoked),
		errors.Is(err, common.ErrSessionExpired):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrInactiveUser),
		errors.Is(err, common.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, common.ErrNotFound),
		errors.Is(err, common.ErrUnknownJob),
		errors.Is(err, common.ErrArtifactMissing):
		return http.StatusNotFound
	case errors.Is(err, common.ErrAlreadyExists),
		errors.Is(err, common.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		// internal details stay in the logs
		msg = common.ErrInternal.Error()
	}
	c.JSON(status, gin.H{"error": msg})
}

func abortWithError(c *gin.Context, err error) {
	writeError(c, err)
	c.Abort()
}
