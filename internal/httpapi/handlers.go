// Package httpapi is the thin request/response surface around the live
// engine: game setup, token exchange, health. The real traffic happens
// on the websocket.
package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/royale-arena/backend/internal/game"
	"github.com/royale-arena/backend/internal/hub"
	"github.com/royale-arena/backend/internal/match"
	"github.com/royale-arena/backend/internal/store"
	"go.uber.org/zap"
)

type createGameRequest struct {
	ID               string             `json:"id"`
	Name             string             `json:"name"`
	DirectorID       string             `json:"director_id"`
	DirectorPassword string             `json:"director_password"`
	MaxPlayers       int                `json:"max_players"`
	RuleTemplateID   string             `json:"rule_template_id"`
	Players          []createGamePlayer `json:"players"`
}

type createGamePlayer struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Zone     string `json:"zone"`
}

func (req *createGameRequest) validate() error {
	if req.Name == "" {
		return errors.New("name is required")
	}
	if len(req.DirectorPassword) < 6 {
		return errors.New("director_password must be at least 6 characters")
	}
	if req.MaxPlayers < 1 || req.MaxPlayers > 1000 {
		return errors.New("max_players must be between 1 and 1000")
	}
	if len(req.Players) > req.MaxPlayers {
		return fmt.Errorf("more than %d players", req.MaxPlayers)
	}
	return nil
}

func (a *API) createGame(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		httpError(w, http.StatusServiceUnavailable, "database not configured")
		return
	}

	var req createGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "bad json")
		return
	}
	if err := req.validate(); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.DirectorID == "" {
		req.DirectorID = "director"
	}

	rulesConfig := ""
	if req.RuleTemplateID != "" {
		tmpl, err := a.store.GetTemplate(req.RuleTemplateID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				httpError(w, http.StatusBadRequest, "unknown rule template")
				return
			}
			a.fail(w, "load rule template", err)
			return
		}
		rulesConfig = tmpl.Config
	}
	rules, err := game.ParseRules([]byte(rulesConfig))
	if err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}

	gameRow := &store.Game{
		ID:               req.ID,
		Name:             req.Name,
		DirectorID:       req.DirectorID,
		DirectorPassword: req.DirectorPassword,
		MaxPlayers:       req.MaxPlayers,
		Status:           "waiting",
		RulesConfig:      rulesConfig,
	}
	playerRows := make([]store.Player, 0, len(req.Players))
	seeds := make([]game.PlayerSeed, 0, len(req.Players))
	for _, p := range req.Players {
		playerRows = append(playerRows, store.Player{
			GameID:   req.ID,
			ID:       p.ID,
			Name:     p.Name,
			Password: p.Password,
			Zone:     p.Zone,
		})
		seeds = append(seeds, game.PlayerSeed{ID: p.ID, Name: p.Name, Zone: p.Zone})
	}
	if err := a.store.CreateGame(gameRow, playerRows); err != nil {
		a.fail(w, "create game", err)
		return
	}

	reply := make(chan *match.Match, 1)
	a.hub.Inbox() <- hub.CreateMatch{
		Opts: match.Options{
			GameID:         req.ID,
			Rules:          rules,
			DirectorID:     req.DirectorID,
			Players:        seeds,
			WindowDuration: a.windowDuration,
		},
		Reply: reply,
	}
	<-reply

	writeJSON(w, http.StatusCreated, map[string]string{"id": req.ID})
}

type authRequest struct {
	ParticipantID string `json:"participant_id"`
	Password      string `json:"password"`
}

// authGame exchanges a game password for a websocket token. Directors
// authenticate against the game row, players against their own row.
func (a *API) authGame(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		httpError(w, http.StatusServiceUnavailable, "database not configured")
		return
	}

	gameID := chi.URLParam(r, "id")
	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "bad json")
		return
	}

	g, err := a.store.GetGame(gameID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpError(w, http.StatusNotFound, "game not found")
			return
		}
		a.fail(w, "load game", err)
		return
	}

	role := game.RolePlayer
	var expected string
	if req.ParticipantID == g.DirectorID {
		role = game.RoleDirector
		expected = g.DirectorPassword
	} else {
		p, err := a.store.FindPlayer(gameID, req.ParticipantID)
		if err != nil {
			httpError(w, http.StatusUnauthorized, "bad credentials")
			return
		}
		expected = p.Password
	}
	if subtle.ConstantTimeCompare([]byte(req.Password), []byte(expected)) != 1 {
		httpError(w, http.StatusUnauthorized, "bad credentials")
		return
	}

	token, err := a.auth.Issue(gameID, req.ParticipantID, role)
	if err != nil {
		a.fail(w, "issue token", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token, "role": string(role)})
}

func (a *API) getGame(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "id")

	resp := map[string]any{"id": gameID}
	if a.store != nil {
		g, err := a.store.GetGame(gameID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				httpError(w, http.StatusNotFound, "game not found")
				return
			}
			a.fail(w, "load game", err)
			return
		}
		resp["name"] = g.Name
		resp["status"] = g.Status
		resp["max_players"] = g.MaxPlayers
	}

	if m := a.hub.Get(gameID); m != nil {
		reply := make(chan match.View, 1)
		m.Inbox() <- match.GetView{Reply: reply}
		select {
		case v := <-reply:
			resp["phase"] = v.Phase
			resp["round"] = v.Round
			resp["paused"] = v.Paused
		case <-time.After(time.Second):
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) listTemplates(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		httpError(w, http.StatusServiceUnavailable, "database not configured")
		return
	}
	templates, err := a.store.ListTemplates()
	if err != nil {
		a.fail(w, "list templates", err)
		return
	}
	writeJSON(w, http.StatusOK, templates)
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (a *API) fail(w http.ResponseWriter, what string, err error) {
	a.log.Error(what, zap.Error(err))
	httpError(w, http.StatusInternalServerError, "internal error")
}

func httpError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
