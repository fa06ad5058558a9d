// README: Ride session handlers (start, stop, current, history).
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"ridesafe/internal/modules/ride"
	"ridesafe/internal/types"
)

type RideService interface {
	Start(ctx context.Context, riderID types.ID) (*ride.Session, error)
	Stop(ctx context.Context, riderID types.ID) (*ride.Session, error)
	Current(ctx context.Context, riderID types.ID) (*ride.Session, error)
	Snapshot(riderID types.ID) (ride.Snapshot, bool)
	Get(ctx context.Context, riderID, id types.ID) (*ride.Session, []ride.Point, error)
}

type RideHandler struct {
	rides RideService
}

func NewRideHandler(rides RideService) *RideHandler {
	return &RideHandler{rides: rides}
}

func (h *RideHandler) Start(c *gin.Context) {
	sess, err := h.rides.Start(c.Request.Context(), caller(c))
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, sess)
}

// Stop ends the running session. A rider with no running session gets 204.
// When the remote close fails the final totals are still returned.
func (h *RideHandler) Stop(c *gin.Context) {
	sess, err := h.rides.Stop(c.Request.Context(), caller(c))
	if err != nil && sess == nil {
		writeRideError(c, err)
		return
	}
	if sess == nil {
		c.Status(http.StatusNoContent)
		return
	}
	if err != nil {
		writeJSON(c, http.StatusAccepted, gin.H{"session": sess, "warning": "session not closed remotely"})
		return
	}
	writeJSON(c, http.StatusOK, sess)
}

func (h *RideHandler) Current(c *gin.Context) {
	uid := caller(c)
	if snap, ok := h.rides.Snapshot(uid); ok {
		writeJSON(c, http.StatusOK, snap)
		return
	}
	sess, err := h.rides.Current(c.Request.Context(), uid)
	if err != nil {
		writeRideError(c, err)
		return
	}
	if sess == nil {
		c.Status(http.StatusNoContent)
		return
	}
	writeJSON(c, http.StatusOK, ride.Snapshot{Session: sess})
}

func (h *RideHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	sess, points, err := h.rides.Get(c.Request.Context(), caller(c), id)
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"session": sess, "points": points})
}
