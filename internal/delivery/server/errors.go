package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"nudge/internal/app/geofence"
	"nudge/internal/app/reminder"
	"nudge/internal/infra/platform"
)

// APIResponse is the envelope for every JSON response.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// mapDomainError translates a service error into a status code. It returns
// 0 for errors it does not recognise.
func mapDomainError(err error) int {
	var verrs validator.ValidationErrors
	switch {
	case err == nil:
		return 0
	case errors.As(err, &verrs), errors.Is(err, reminder.ErrInvalidTrigger):
		return http.StatusBadRequest
	case errors.Is(err, geofence.ErrLocationNotFound):
		return http.StatusNotFound
	case errors.Is(err, geofence.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, platform.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return 0
	}
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data})
}

func fail(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, APIResponse{Error: err.Error()})
}

// failMapped uses the mapped status for known errors and 500 otherwise.
func failMapped(c *gin.Context, err error) {
	status := mapDomainError(err)
	if status == 0 {
		status = http.StatusInternalServerError
	}
	fail(c, status, err)
}
