package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/royale-arena/backend/internal/auth"
	"github.com/royale-arena/backend/internal/broadcast"
	"github.com/royale-arena/backend/internal/config"
	"github.com/royale-arena/backend/internal/game"
	"github.com/royale-arena/backend/internal/httpapi"
	"github.com/royale-arena/backend/internal/hub"
	"github.com/royale-arena/backend/internal/session"
	"github.com/royale-arena/backend/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := buildLogger(cfg.Debug)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync() //nolint:errcheck

	var st *store.Store
	var persister store.Persister = store.Discard{}
	if cfg.DatabaseURL != "" {
		st, err = store.Open(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("open store", zap.Error(err))
		}
		persister = st
	} else {
		logger.Warn("DATABASE_URL not set, running without persistence")
	}
	saver := store.NewSaver(persister, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := session.NewRegistry(logger)
	broadcaster := broadcast.New(registry, logger)
	h := hub.NewHub(ctx, broadcaster, saver, logger)

	// a reaped session tells the match so everyone else hears about it
	registry.OnDisconnect(func(gameID, participantID string, _ game.Role) {
		h.NotifyDisconnect(gameID, participantID)
	})

	authSvc := auth.NewService(cfg.JWTSecret, cfg.TokenTTL)
	handler := httpapi.SetupRoutes(h, st, authSvc, registry, cfg.WindowDuration, logger)

	server := &http.Server{Addr: cfg.Addr, Handler: handler}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		h.Inbox() <- hub.ShutdownHub{}
		saver.Close()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func buildLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
