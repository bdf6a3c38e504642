// Package main provides the queue worker binary that runs the matchmaker,
// the session lifecycle scheduler, and the HTTP edge.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kynortleon/TableHop/internal/broadcast"
	"github.com/kynortleon/TableHop/internal/config"
	"github.com/kynortleon/TableHop/internal/httpapi"
	"github.com/kynortleon/TableHop/internal/lifecycle"
	"github.com/kynortleon/TableHop/internal/match"
	"github.com/kynortleon/TableHop/internal/observability"
	"github.com/kynortleon/TableHop/internal/rules"
	"github.com/kynortleon/TableHop/internal/server"
	"github.com/kynortleon/TableHop/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting queue worker",
		zap.String("http_addr", cfg.HTTP.Addr()),
		zap.Duration("cycle_interval", cfg.Match.CycleInterval),
	)

	// Connect to PostgreSQL for queue and session persistence.
	dbStart := time.Now()
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("connecting to database", zap.Error(err))
	}
	logger.Info("database connected",
		zap.String("host", cfg.Database.Host),
		zap.Duration("elapsed", time.Since(dbStart)),
	)
	store := postgres.NewStore(pool.DB())

	// Build the pairing validator. Scripted rules are optional; without a
	// script any player with a character is eligible.
	var validator match.Validator = match.AllowAll{}
	var luaValidator *rules.LuaValidator
	if cfg.Rules.ScriptPath != "" {
		catalog, err := rules.LoadCatalog(cfg.Rules.CatalogPath)
		if err != nil {
			logger.Fatal("loading scenario catalog",
				zap.String("path", cfg.Rules.CatalogPath), zap.Error(err))
		}
		logger.Info("scenario catalog loaded", zap.Int("scenarios", catalog.Len()))

		luaValidator, err = rules.NewLuaValidator(catalog, cfg.Rules.ScriptPath, cfg.Rules.InstructionLimit, logger)
		if err != nil {
			logger.Fatal("loading rules script",
				zap.String("path", cfg.Rules.ScriptPath), zap.Error(err))
		}
		validator = luaValidator
		logger.Info("rules script loaded", zap.String("path", cfg.Rules.ScriptPath))
	}

	hub := broadcast.NewHub()
	events := broadcast.NewBroadcaster(hub, store, logger)

	scheduler := lifecycle.NewScheduler(
		store, events,
		cfg.Match.AdDuration, cfg.Match.SessionDuration,
		cfg.Match.MinSessionMinutes,
		logger,
	)

	engine := match.NewEngine(store, validator, events, scheduler, cfg.Match.GroupSize, logger)
	driver := match.NewDriver(engine, cfg.Match.CycleInterval, logger)

	api := httpapi.New(store, events, hub, driver.Kick, func(ctx context.Context) error {
		return pool.Health(ctx, 5*time.Second)
	}, logger)

	httpServer := &http.Server{
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Wire lifecycle
	lc := server.NewLifecycle(logger)

	lc.Add("http", &server.FuncService{
		StartFn: func() error {
			lis, err := net.Listen("tcp", cfg.HTTP.Addr())
			if err != nil {
				return fmt.Errorf("listening on %s: %w", cfg.HTTP.Addr(), err)
			}
			logger.Info("http server listening",
				zap.String("addr", lis.Addr().String()),
			)
			return httpServer.Serve(lis)
		},
		StopFn: func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = httpServer.Shutdown(shutdownCtx)
		},
	})

	lc.Add("matchmaker", &server.FuncService{
		StartFn: driver.Start,
		StopFn: func() {
			driver.Stop()
			scheduler.Stop()
			hub.Close()
			if luaValidator != nil {
				luaValidator.Close()
			}
		},
	})

	healthDone := make(chan struct{})
	lc.Add("postgres", &server.FuncService{
		StartFn: func() error {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-healthDone:
					return nil
				case <-ticker.C:
					if err := pool.Health(ctx, 5*time.Second); err != nil {
						logger.Warn("database health check failed", zap.Error(err))
					}
				}
			}
		},
		StopFn: func() {
			close(healthDone)
			pool.Close()
		},
	})

	// Seed the queue gauges before the first cycle completes.
	events.PublishQueueCounts(ctx)

	logger.Info("queue worker initialized",
		zap.Duration("startup", time.Since(start)),
		zap.String("http_addr", cfg.HTTP.Addr()),
	)

	if err := lc.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
