// README: SOS trigger and paramedic incident handlers.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ridesafe/internal/http/middleware"
	"ridesafe/internal/infra"
	"ridesafe/internal/modules/emergency"
	"ridesafe/internal/types"
)

type EmergencyService interface {
	TriggerForUser(ctx context.Context, userID types.ID, routeContext string) (types.ID, error)
	Resolve(ctx context.Context, incidentID, paramedicID types.ID) (*emergency.Incident, error)
	Get(ctx context.Context, incidentID types.ID) (*emergency.Incident, []emergency.Event, error)
	ListPending(ctx context.Context, near *types.Coordinate, limit int) ([]emergency.Incident, error)
}

type EmergencyHandler struct {
	emergencies EmergencyService
}

func NewEmergencyHandler(emergencies EmergencyService) *EmergencyHandler {
	return &EmergencyHandler{emergencies: emergencies}
}

type triggerRequest struct {
	RouteContext string `json:"route_context" validate:"max=200"`
}

// Trigger records an SOS for the caller. A partial failure still answers 201
// with the incident id so the client can show it was raised.
func (h *EmergencyHandler) Trigger(c *gin.Context) {
	var req triggerRequest
	if c.Request.ContentLength != 0 {
		if err := bindJSON(c, &req); err != nil {
			writeError(c, http.StatusBadRequest, err.Error())
			return
		}
	}
	id, err := h.emergencies.TriggerForUser(c.Request.Context(), caller(c), req.RouteContext)
	var partial *emergency.PartialFailureError
	switch {
	case errors.As(err, &partial):
		writeJSON(c, http.StatusCreated, gin.H{"id": partial.IncidentID, "event_recorded": false})
	case err != nil:
		writeEmergencyError(c, err)
	default:
		writeJSON(c, http.StatusCreated, gin.H{"id": id, "event_recorded": true})
	}
}

// List returns pending incidents, optionally near lat/lng.
func (h *EmergencyHandler) List(c *gin.Context) {
	near, ok := queryCoordinate(c)
	if !ok {
		writeError(c, http.StatusBadRequest, "invalid lat/lng")
		return
	}
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(c, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	incidents, err := h.emergencies.ListPending(c.Request.Context(), near, limit)
	if err != nil {
		writeEmergencyError(c, err)
		return
	}
	if incidents == nil {
		incidents = []emergency.Incident{}
	}
	writeJSON(c, http.StatusOK, gin.H{"incidents": incidents})
}

// Get is open to the triggering user and to paramedics.
func (h *EmergencyHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	inc, events, err := h.emergencies.Get(c.Request.Context(), id)
	if err != nil {
		writeEmergencyError(c, err)
		return
	}
	if inc.TriggerUserID != caller(c) && !isResponder(c) {
		writeError(c, http.StatusNotFound, emergency.ErrNotFound.Error())
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"incident": inc, "events": events})
}

func (h *EmergencyHandler) Resolve(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	inc, err := h.emergencies.Resolve(c.Request.Context(), id, caller(c))
	if err != nil {
		writeEmergencyError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, inc)
}

func isResponder(c *gin.Context) bool {
	role := middleware.CallerRole(c)
	return role == infra.RoleParamedic || role == infra.RoleAdmin
}
