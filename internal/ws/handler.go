// Package ws upgrades client connections and pumps frames between the
// socket and the owning match.
package ws

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
	"github.com/royale-arena/backend/internal/auth"
	"github.com/royale-arena/backend/internal/codec"
	"github.com/royale-arena/backend/internal/game"
	"github.com/royale-arena/backend/internal/hub"
	"github.com/royale-arena/backend/internal/match"
	"github.com/royale-arena/backend/internal/session"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// inbound frame budget per session; a client spamming past this gets
// error frames instead of engine time
const (
	frameRate  = 10
	frameBurst = 20
)

func Handler(verifier *auth.Service, h *hub.Hub, reg *session.Registry, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		claims, err := verifier.Verify(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		m := h.Get(claims.GameID)
		if m == nil {
			http.Error(w, "game not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		sess := reg.Register(claims.GameID, claims.ParticipantID, claims.Role, &transport{conn: conn})
		// covers explicit close and dead-transport detection alike
		defer reg.Unregister(sess)

		m.Inbox() <- match.Connected{ParticipantID: claims.ParticipantID}

		log.Info("session opened",
			zap.String("game_id", claims.GameID),
			zap.String("participant_id", claims.ParticipantID),
			zap.String("role", string(claims.Role)))

		limiter := rate.NewLimiter(rate.Limit(frameRate), frameBurst)

		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			if !limiter.Allow() {
				reply(sess, codec.ErrorMessage("rate_limited", "slow down"))
				continue
			}

			env, err := codec.Decode(data)
			if err != nil {
				reply(sess, codec.ErrorMessage("unrecognized_type", err.Error()))
				continue
			}

			switch env.Type {
			case codec.TypePlayerAction:
				handlePlayerAction(r.Context(), sess, m, claims, env)
			case codec.TypeDirectorAction:
				handleDirectorAction(r.Context(), sess, m, claims, env)
			}
		}
	}
}

func handlePlayerAction(ctx context.Context, sess *session.Session, m *match.Match, claims *auth.Claims, env codec.Envelope) {
	data, err := env.PlayerAction()
	if err != nil {
		reply(sess, codec.ErrorMessage("bad_action", err.Error()))
		return
	}
	action := game.Action{
		Actor:  claims.ParticipantID,
		Kind:   codec.ParseKind(data.Action),
		Target: data.Target,
		Item:   data.Item,
		Zone:   data.Zone,
	}
	errCh := make(chan error, 1)
	m.Inbox() <- match.SubmitAction{Action: action, Reply: errCh}
	if err := await(ctx, errCh); err != nil {
		reply(sess, codec.EngineError(err))
		return
	}
	reply(sess, codec.SystemMessage("action queued: "+data.Action))
}

func handleDirectorAction(ctx context.Context, sess *session.Session, m *match.Match, claims *auth.Claims, env codec.Envelope) {
	cmd, err := env.DirectorAction()
	if err != nil {
		reply(sess, codec.ErrorMessage("bad_command", err.Error()))
		return
	}
	errCh := make(chan error, 1)
	m.Inbox() <- match.DirectorCommand{ActorID: claims.ParticipantID, Cmd: cmd, Reply: errCh}
	if err := await(ctx, errCh); err != nil {
		reply(sess, codec.EngineError(err))
	}
}

func await(ctx context.Context, errCh <-chan error) error {
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func reply(sess *session.Session, env codec.Envelope) {
	frame, err := env.Marshal()
	if err != nil {
		return
	}
	sess.Enqueue(frame)
}

// transport adapts a websocket connection to the session write side.
type transport struct {
	conn *websocket.Conn
}

func (t *transport) Write(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, data)
}

func (t *transport) Close(reason string) error {
	status := websocket.StatusNormalClosure
	if reason == "duplicate_session" {
		status = websocket.StatusPolicyViolation
	}
	return t.conn.Close(status, reason)
}
