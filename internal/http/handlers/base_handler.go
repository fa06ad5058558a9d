// README: Base handler utilities (JSON helpers, binding, error mapping).
package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"

	"ridesafe/internal/http/middleware"
	"ridesafe/internal/modules/emergency"
	"ridesafe/internal/modules/location"
	"ridesafe/internal/modules/profile"
	"ridesafe/internal/modules/ride"
	"ridesafe/internal/pkg/validator"
	"ridesafe/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

var errBadBody = errors.New("invalid request body")

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func init() {
	binding.EnableDecoderDisallowUnknownFields = true
}

// bindJSON binds a strict JSON body and runs struct validation.
func bindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	if err := validator.ValidateStruct(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	return nil
}

// pathID reads the :id segment. Remote ids are UUIDs, so anything else is
// answered with 404 before hitting the store.
func pathID(c *gin.Context) (types.ID, bool) {
	raw := c.Param("id")
	if _, err := uuid.Parse(raw); err != nil {
		writeError(c, http.StatusNotFound, "not found")
		return "", false
	}
	return types.ID(raw), true
}

func caller(c *gin.Context) types.ID {
	return types.ID(middleware.CallerUID(c))
}

func writeRideError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ride.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, ride.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, ride.ErrSessionActive):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, location.ErrPermissionDenied):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, location.ErrPositionUnavailable):
		writeError(c, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

func writeProfileError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, profile.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, profile.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

func writeEmergencyError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, emergency.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, emergency.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, emergency.ErrInvalidState):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, location.ErrPermissionDenied):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, location.ErrPositionUnavailable):
		writeError(c, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
