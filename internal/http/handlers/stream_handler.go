// README: WebSocket endpoints for live ride and incident streams.
package handlers

import (
	"github.com/gin-gonic/gin"

	"ridesafe/internal/modules/emergency"
	"ridesafe/internal/stream"
)

type StreamHandler struct {
	hub   *stream.Hub
	rides RideService
}

func NewStreamHandler(hub *stream.Hub, rides RideService) *StreamHandler {
	return &StreamHandler{hub: hub, rides: rides}
}

// Ride streams point and ended messages of one session. Riders may follow
// only their own sessions; paramedics may follow any.
func (h *StreamHandler) Ride(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if !isResponder(c) {
		if _, _, err := h.rides.Get(c.Request.Context(), caller(c), id); err != nil {
			writeRideError(c, err)
			return
		}
	}
	stream.Serve(h.hub, stream.RideTopic(id), c)
}

func (h *StreamHandler) Emergencies(c *gin.Context) {
	stream.Serve(h.hub, emergency.NotifyTopic, c)
}
