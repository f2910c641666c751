package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/infrawatch/infrawatch/internal/auth"
	"github.com/infrawatch/infrawatch/internal/config"
	"github.com/infrawatch/infrawatch/internal/database"
	"github.com/infrawatch/infrawatch/internal/events"
	"github.com/infrawatch/infrawatch/internal/hub"
	"github.com/infrawatch/infrawatch/internal/metrics"
	"github.com/infrawatch/infrawatch/internal/server"
	"github.com/infrawatch/infrawatch/internal/store"
	"github.com/infrawatch/infrawatch/internal/version"
)

func serveCmd() *cobra.Command {
	var inMemory bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API and realtime endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, inMemory)
		},
	}
	cmd.Flags().BoolVar(&inMemory, "in-memory", false, "use the in-memory store instead of PostgreSQL")
	return cmd
}

func runServe(ctx context.Context, inMemory bool) error {
	logger.Info("starting infrawatch",
		"version", version.Version,
		"commit", version.Commit,
		"config", configPath,
	)

	cfg, err := config.LoadWithDefaults(configPath)
	if err != nil {
		return err
	}
	cfg.ApplyEnvOverrides(os.LookupEnv)
	validate := cfg.Validate
	if inMemory {
		validate = cfg.ValidateWithoutDatabase
	}
	if err := validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	tokens, err := auth.NewTokens(auth.Config{
		Secret:   []byte(cfg.Auth.JWTSecret),
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
		TTL:      cfg.Auth.TokenTTL,
	})
	if err != nil {
		return err
	}

	var st store.Store
	if inMemory {
		logger.Warn("using in-memory store, data is lost on exit")
		st = store.NewMemory()
	} else {
		pool, err := database.Connect(ctx, cfg.Database.Postgres, logger)
		if err != nil {
			return err
		}
		defer pool.Close()
		st = store.NewPostgres(pool, logger.With("component", "store"))
	}

	hubCfg := hub.DefaultConfig()
	hubCfg.AllowedOrigins = cfg.Server.AllowedOrigins
	rt := hub.New(hubCfg, tokens, m, logger.With("component", "hub"))

	sinks := []events.Sink{{Name: "realtime", Publisher: events.NewHubPublisher(rt)}}
	if len(cfg.Events.Brokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.Events.Brokers, cfg.Events.Topic, logger.With("component", "kafka"))
		if err != nil {
			return err
		}
		defer kp.Close()
		sinks = append(sinks, events.Sink{Name: "kafka", Publisher: kp})
		logger.Info("kafka publishing enabled", "brokers", cfg.Events.Brokers, "topic", cfg.Events.Topic)
	}

	srvCfg := server.DefaultConfig()
	srvCfg.RealtimePath = cfg.Server.RealtimePath
	srvCfg.MetricsPath = ""
	if cfg.Metrics.Enabled {
		srvCfg.MetricsPath = cfg.Metrics.Path
	}
	srv := server.New(srvCfg, st, tokens,
		server.WithPublisher(events.NewFanout(m, logger, sinks...)),
		server.WithRealtime(rt),
		server.WithMetrics(m),
		server.WithLogger(logger.With("component", "http")),
	)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", cfg.Server.Addr, "realtime_path", srvCfg.RealtimePath)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		rt.Close()
		err := httpServer.Shutdown(shutdownCtx)
		if werr := srv.Wait(shutdownCtx); werr != nil {
			logger.Warn("change events still pending at shutdown", "error", werr)
		}
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("infrawatch stopped")
	return nil
}
