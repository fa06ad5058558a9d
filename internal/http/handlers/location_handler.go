// README: Device position ingestion and live nearby-rider lookup.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"ridesafe/internal/modules/location"
	"ridesafe/internal/types"
)

const maxSamplesPerRequest = 100

// FeedSource hands out the per-rider device feed.
type FeedSource interface {
	For(riderID types.ID) *location.Feed
}

type NearbyFinder interface {
	Nearby(ctx context.Context, origin types.Coordinate, radiusKm float64) ([]location.RiderLocation, error)
}

type LocationHandler struct {
	feeds  FeedSource
	nearby NearbyFinder
}

func NewLocationHandler(feeds FeedSource, nearby NearbyFinder) *LocationHandler {
	return &LocationHandler{feeds: feeds, nearby: nearby}
}

type permissionRequest struct {
	Granted bool `json:"granted"`
}

type sampleRequest struct {
	Coordinate types.Coordinate `json:"coordinate"`
	CapturedAt time.Time        `json:"captured_at"`
}

type samplesRequest struct {
	Samples []sampleRequest `json:"samples" validate:"required,min=1,dive"`
}

func (h *LocationHandler) SetPermission(c *gin.Context) {
	var req permissionRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	h.feeds.For(caller(c)).SetPermission(req.Granted)
	writeJSON(c, http.StatusOK, req)
}

// PushSamples forwards device fixes, in body order, to the rider's feed.
func (h *LocationHandler) PushSamples(c *gin.Context) {
	var req samplesRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Samples) > maxSamplesPerRequest {
		writeError(c, http.StatusRequestEntityTooLarge, "too many samples")
		return
	}
	feed := h.feeds.For(caller(c))
	now := time.Now().UTC()
	for _, s := range req.Samples {
		at := s.CapturedAt
		if at.IsZero() {
			at = now
		}
		if err := feed.Push(location.Sample{Coordinate: s.Coordinate, CapturedAt: at}); err != nil {
			if errors.Is(err, location.ErrPermissionDenied) {
				writeError(c, http.StatusForbidden, err.Error())
				return
			}
			writeError(c, http.StatusInternalServerError, "internal error")
			return
		}
	}
	writeJSON(c, http.StatusAccepted, gin.H{"accepted": len(req.Samples)})
}

// Nearby lists riders with a live position within radius_km (default 5).
func (h *LocationHandler) Nearby(c *gin.Context) {
	origin, ok := queryCoordinate(c)
	if !ok || origin == nil {
		writeError(c, http.StatusBadRequest, "lat and lng are required")
		return
	}
	radius := 5.0
	if v := c.Query("radius_km"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid radius_km")
			return
		}
		radius = r
	}
	riders, err := h.nearby.Nearby(c.Request.Context(), *origin, radius)
	if err != nil {
		if errors.Is(err, location.ErrBadRadius) {
			writeError(c, http.StatusBadRequest, err.Error())
			return
		}
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"riders": riders})
}

// queryCoordinate parses lat/lng query values. Absent values yield (nil, true).
func queryCoordinate(c *gin.Context) (*types.Coordinate, bool) {
	latRaw, lngRaw := c.Query("lat"), c.Query("lng")
	if latRaw == "" && lngRaw == "" {
		return nil, true
	}
	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil {
		return nil, false
	}
	lng, err := strconv.ParseFloat(lngRaw, 64)
	if err != nil {
		return nil, false
	}
	coord := types.Coordinate{Lat: lat, Lng: lng}
	if !coord.Valid() {
		return nil, false
	}
	return &coord, true
}
