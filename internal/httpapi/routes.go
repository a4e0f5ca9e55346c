package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/royale-arena/backend/internal/auth"
	"github.com/royale-arena/backend/internal/hub"
	"github.com/royale-arena/backend/internal/session"
	"github.com/royale-arena/backend/internal/store"
	"github.com/royale-arena/backend/internal/ws"
	"go.uber.org/zap"
)

type API struct {
	hub            *hub.Hub
	store          *store.Store // nil when running without a database
	auth           *auth.Service
	log            *zap.Logger
	windowDuration time.Duration
}

func SetupRoutes(h *hub.Hub, st *store.Store, authSvc *auth.Service, reg *session.Registry, windowDuration time.Duration, log *zap.Logger) http.Handler {
	a := &API{
		hub:            h,
		store:          st,
		auth:           authSvc,
		log:            log,
		windowDuration: windowDuration,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.healthz)
	r.Get("/templates", a.listTemplates)
	r.Post("/games", a.createGame)
	r.Get("/games/{id}", a.getGame)
	r.Post("/games/{id}/auth", a.authGame)
	r.Get("/ws", ws.Handler(authSvc, h, reg, log))
	return r
}
