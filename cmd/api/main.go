package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"peopleops.org/internal/audit"
	"peopleops.org/internal/auth"
	"peopleops.org/internal/config"
	"peopleops.org/internal/httpapi"
	"peopleops.org/internal/obs"
	"peopleops.org/internal/store/mem"
	"peopleops.org/internal/store/pg"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		obs.Init("production")
		obs.Logger().Fatal().Err(err).Msg("load config")
	}

	obs.Init(cfg.Environment)
	obs.InitMetrics()
	obs.InitBuildInfo(version, commit)
	log := obs.Logger()

	// Postgres when a DSN is configured; in-memory otherwise (development).
	var store auth.Store
	probe := httpapi.ReadyProbe{}
	if cfg.PostgresDSN != "" {
		pgStore, err := pg.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("open postgres")
		}
		defer pgStore.Close()
		store = pgStore
		probe.DB = pgStore.DB()
	} else {
		log.Warn().Msg("no PEOPLEOPS_PG_DSN set, using in-memory store")
		store = mem.New()
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret,
		auth.WithIssuer(cfg.TokenIssuer),
		auth.WithAccessTTL(cfg.AccessTTL),
		auth.WithRefreshTTL(cfg.RefreshTTL),
		auth.WithRememberMeTTL(cfg.RememberMeTTL),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("token service")
	}

	hasher := auth.NewPasswordHasher(auth.PasswordPolicy{
		MinLength:      cfg.PasswordPolicy.MinLength,
		RequireUpper:   cfg.PasswordPolicy.RequireUpper,
		RequireLower:   cfg.PasswordPolicy.RequireLower,
		RequireDigit:   cfg.PasswordPolicy.RequireDigit,
		RequireSpecial: cfg.PasswordPolicy.RequireSpecial,
	})
	recorder := audit.NewRecorder(store.LoginLogs(), store.AuditLogs())
	svc, err := auth.NewService(store, tokens, hasher, auth.NewResolver(store), recorder)
	if err != nil {
		log.Fatal().Err(err).Msg("auth service")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := svc.EnsureBuiltins(ctx); err != nil {
		cancel()
		log.Fatal().Err(err).Msg("ensure permission catalog")
	}
	cancel()

	api := httpapi.New(svc, recorder, probe, version, httpapi.Options{
		RateBurst:  cfg.RateBurst,
		RatePerSec: cfg.RatePerSec,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("starting peopleops-auth")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info().Msg("stopped")
}
