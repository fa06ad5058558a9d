// README: Entry point; loads config, wires services, runs the HTTP API until signalled.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ridesafe/internal/config"
	httptransport "ridesafe/internal/http"
	"ridesafe/internal/http/handlers"
	"ridesafe/internal/http/middleware"
	"ridesafe/internal/infra"
	"ridesafe/internal/maps"
	"ridesafe/internal/modules/emergency"
	"ridesafe/internal/modules/location"
	"ridesafe/internal/modules/profile"
	"ridesafe/internal/modules/ride"
	"ridesafe/internal/stream"
	"ridesafe/internal/types"
)

func main() {
	if err := run(); err != nil {
		slog.Error("ridesafe-api stopped", slog.Any("err", err))
		os.Exit(1)
	}
}

func newLogger(env string) *slog.Logger {
	if env == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Firebase.ProjectID == "" {
		return errors.New("RIDESAFE_FIREBASE_PROJECT_ID is required")
	}
	verifier, err := infra.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
	if err != nil {
		return err
	}

	if err := infra.MigrateRemote(cfg.DB.DSN); err != nil {
		return err
	}
	pool, err := infra.NewDB(ctx, cfg.DB.DSN, cfg.DB.MaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	localDB, err := infra.OpenLocal(ctx, cfg.Local.Path)
	if err != nil {
		return err
	}
	defer localDB.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer redisClient.Close()

	hub, err := stream.NewHub(ctx, redisClient, logger)
	if err != nil {
		return err
	}
	defer hub.Close()

	locationSvc := location.NewService(location.NewStore(redisClient))
	feeds := location.NewFeeds(logger)

	rideStore := ride.NewStore(pool)
	registry := ride.NewRegistry(ride.TrackerDeps{
		Store:  rideStore,
		Live:   locationSvc,
		Hub:    hub,
		Config: cfg.Tracking,
		Logger: logger,
	}, func(riderID types.ID) location.Provider { return feeds.For(riderID) })
	defer func() {
		if err := registry.Close(); err != nil {
			logger.Warn("close ride trackers", slog.Any("err", err))
		}
	}()
	rideSvc := ride.NewService(registry, rideStore)

	probe := infra.NewPingProbe(pool, 2*time.Second)
	profileSvc := profile.New(localDB, pool, probe, logger)

	deps := emergency.Deps{
		Store:     emergency.NewStore(pool),
		Profiles:  profileSvc,
		Positions: rideSvc,
		Fallback: func(ctx context.Context, riderID types.ID) (types.Coordinate, error) {
			return feeds.For(riderID).CurrentPosition(ctx)
		},
		Notifier: hub,
		Logger:   logger,
	}
	var hospitals handlers.HospitalFinder
	if cfg.Maps.APIKey != "" {
		mapsSvc, err := maps.NewService(cfg.Maps.APIKey)
		if err != nil {
			return err
		}
		deps.Geocoder = mapsSvc
		hospitals = mapsSvc
	} else {
		logger.Info("maps key not set, SOS events carry no address")
	}
	emergencySvc := emergency.NewService(deps)

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, cfg.RateLimit.TTL, logger)
	go limiter.Run(ctx)

	srv := httptransport.NewServer(httptransport.ServerDeps{
		Rides:       rideSvc,
		Profiles:    profileSvc,
		Emergencies: emergencySvc,
		Feeds:       feeds,
		Nearby:      locationSvc,
		Hospitals:   hospitals,
		Hub:         hub,
		Verifier:    verifier,
		Limiter:     limiter,
		Health:      probe,
		Logger:      logger,
	})
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", slog.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	logger.Info("shutting down")
	return server.Shutdown(shutdownCtx)
}
