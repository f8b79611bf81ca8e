package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	router "github.com/dkeye/LiveClass/internal/adapters/http"
	sig "github.com/dkeye/LiveClass/internal/adapters/signal"
	"github.com/dkeye/LiveClass/internal/adapters/store"
	"github.com/dkeye/LiveClass/internal/adapters/turn"
	"github.com/dkeye/LiveClass/internal/app"
	"github.com/dkeye/LiveClass/internal/app/orch"
	"github.com/dkeye/LiveClass/internal/auth"
	"github.com/dkeye/LiveClass/internal/config"
	"github.com/dkeye/LiveClass/internal/core"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and signaling server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	issuer, err := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}

	bookings, closeStore, err := openBookings(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRoomManager(),
		Policy:   app.SimplePolicy{},
		Bookings: bookings,
	}

	iceServers := func() []config.ICEServer { return cfg.ICE.Servers }
	var relay *turn.Server
	if cfg.TURN.Enabled {
		relay = turn.New(cfg.TURN)
		if err := relay.Start(); err != nil {
			return fmt.Errorf("start turn: %w", err)
		}
		defer func() { _ = relay.Close() }()
		iceServers = func() []config.ICEServer {
			return append(append([]config.ICEServer(nil), cfg.ICE.Servers...), relay.ICEServer())
		}
	}

	r := router.SetupRouter(ctx, router.Deps{
		Cfg:        cfg,
		Orch:       o,
		Issuer:     issuer,
		Bookings:   bookings,
		Limiter:    sig.NewRoomRateLimiter(cfg.Signaling.RateLimit, cfg.Signaling.RateInterval),
		ICEServers: iceServers,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("LiveClass server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}

// openBookings uses Postgres when a DSN is configured and the config seed otherwise.
func openBookings(ctx context.Context, cfg *config.Config) (core.BookingDirectory, func(), error) {
	if cfg.Database.DSN == "" {
		mem := store.FromSeeds(cfg.Bookings)
		log.Info().Str("module", "store").Int("bookings", len(cfg.Bookings)).Msg("using in-memory bookings")
		return mem, func() {}, nil
	}
	db, err := store.OpenPostgres(ctx, cfg.Database.DSN, cfg.Database.MaxOpenConns)
	if err != nil {
		return nil, nil, err
	}
	log.Info().Str("module", "store").Msg("using postgres bookings")
	return store.NewPostgresBookings(db), func() { _ = db.Close() }, nil
}
