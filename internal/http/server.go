// README: API gateway; registers gin routes and delegates to module services.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ridesafe/internal/http/handlers"
	"ridesafe/internal/http/middleware"
	"ridesafe/internal/infra"
	"ridesafe/internal/stream"
)

// HealthProbe reports remote store reachability.
type HealthProbe interface {
	Online(ctx context.Context) bool
}

type ServerDeps struct {
	Rides       handlers.RideService
	Profiles    handlers.ProfileService
	Emergencies handlers.EmergencyService
	Feeds       handlers.FeedSource
	Nearby      handlers.NearbyFinder
	Hospitals   handlers.HospitalFinder
	Hub         *stream.Hub
	Verifier    infra.TokenVerifier
	Limiter     *middleware.RateLimiter
	Health      HealthProbe
	Logger      *slog.Logger
}

type Server struct {
	deps ServerDeps
}

func NewServer(deps ServerDeps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Server{deps: deps}
}

func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(s.deps.Logger), middleware.Logging(s.deps.Logger))

	r.GET("/health", s.health)

	auth := middleware.Auth(s.deps.Verifier)
	paramedic := middleware.RequireRole(infra.RoleParamedic, infra.RoleAdmin)

	api := r.Group("/api", auth)
	if s.deps.Limiter != nil {
		api.Use(s.deps.Limiter.Middleware())
	}

	rides := handlers.NewRideHandler(s.deps.Rides)
	api.POST("/rides/start", rides.Start)
	api.POST("/rides/stop", rides.Stop)
	api.GET("/rides/current", rides.Current)
	api.GET("/rides/:id", rides.Get)

	loc := handlers.NewLocationHandler(s.deps.Feeds, s.deps.Nearby)
	api.PUT("/location/permission", loc.SetPermission)
	api.POST("/location/samples", loc.PushSamples)
	api.GET("/riders/nearby", paramedic, loc.Nearby)

	prof := handlers.NewProfileHandler(s.deps.Profiles)
	api.GET("/profile", prof.GetProfile)
	api.PUT("/profile", prof.PutProfile)
	api.GET("/medical", prof.GetMedical)
	api.PUT("/medical", prof.PutMedical)
	api.GET("/paramedic/status", paramedic, prof.GetStatus)
	api.PUT("/paramedic/status", paramedic, prof.PutStatus)
	api.POST("/sync/warmup", prof.WarmUp)
	api.POST("/sync/push", prof.Push)
	api.GET("/sync/pending", prof.Pending)

	em := handlers.NewEmergencyHandler(s.deps.Emergencies)
	api.POST("/emergencies", em.Trigger)
	api.GET("/emergencies", paramedic, em.List)
	api.GET("/emergencies/:id", em.Get)
	api.POST("/emergencies/:id/resolve", paramedic, em.Resolve)

	if s.deps.Hospitals != nil {
		hosp := handlers.NewHospitalHandler(s.deps.Hospitals)
		api.GET("/hospitals/nearest", hosp.Nearest)
	}

	if s.deps.Hub != nil {
		ws := r.Group("/ws", auth)
		st := handlers.NewStreamHandler(s.deps.Hub, s.deps.Rides)
		ws.GET("/rides/:id", st.Ride)
		ws.GET("/emergencies", paramedic, st.Emergencies)
	}
	return r
}

func (s *Server) health(c *gin.Context) {
	remote := "unknown"
	if s.deps.Health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		remote = "offline"
		if s.deps.Health.Online(ctx) {
			remote = "online"
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "remote": remote})
}
