// README: Nearest-hospital lookup for riders and responders.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ridesafe/internal/maps"
	"ridesafe/internal/types"
)

type HospitalFinder interface {
	NearestHospital(ctx context.Context, c types.Coordinate, radiusM uint) (*maps.Place, error)
}

type HospitalHandler struct {
	finder HospitalFinder
}

func NewHospitalHandler(finder HospitalFinder) *HospitalHandler {
	return &HospitalHandler{finder: finder}
}

func (h *HospitalHandler) Nearest(c *gin.Context) {
	origin, ok := queryCoordinate(c)
	if !ok || origin == nil {
		writeError(c, http.StatusBadRequest, "lat and lng are required")
		return
	}
	place, err := h.finder.NearestHospital(c.Request.Context(), *origin, 0)
	if err != nil {
		if errors.Is(err, maps.ErrNoResult) {
			writeError(c, http.StatusNotFound, "no hospital nearby")
			return
		}
		writeError(c, http.StatusBadGateway, "maps unavailable")
		return
	}
	writeJSON(c, http.StatusOK, place)
}
