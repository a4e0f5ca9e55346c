// Package hub owns the live matches. It is a single actor goroutine
// mapping game id -> match, so creation and removal never race.
package hub

import (
	"context"

	"github.com/royale-arena/backend/internal/match"
	"go.uber.org/zap"
)

type HubMsg interface{ isHubMsg() }

type CreateMatch struct {
	Opts  match.Options
	Reply chan *match.Match
}

type GetMatch struct {
	GameID string
	Reply  chan *match.Match
}

type RemoveMatch struct {
	GameID string
}

type ShutdownHub struct{}

func (CreateMatch) isHubMsg() {}
func (GetMatch) isHubMsg()    {}
func (RemoveMatch) isHubMsg() {}
func (ShutdownHub) isHubMsg() {}

type Hub struct {
	inbox   chan HubMsg
	matches map[string]*match.Match
	bc      match.Broadcaster
	saver   match.Saver
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewHub(parent context.Context, bc match.Broadcaster, saver match.Saver, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		matches: make(map[string]*match.Match),
		bc:      bc,
		saver:   saver,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Get is convenience around GetMatch for callers outside the actor.
func (h *Hub) Get(gameID string) *match.Match {
	reply := make(chan *match.Match, 1)
	h.inbox <- GetMatch{GameID: gameID, Reply: reply}
	return <-reply
}

// NotifyDisconnect forwards a session-ended event to the owning match,
// if the game is still live. Wired to the session registry at startup.
func (h *Hub) NotifyDisconnect(gameID, participantID string) {
	if m := h.Get(gameID); m != nil {
		m.Inbox() <- match.Disconnected{ParticipantID: participantID}
	}
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case raw := <-h.inbox:
			switch msg := raw.(type) {
			case CreateMatch:
				if m := h.matches[msg.Opts.GameID]; m != nil {
					msg.Reply <- m
					break
				}
				// an ended game retires itself from the map
				msg.Opts.OnEnd = func(gameID string) {
					h.inbox <- RemoveMatch{GameID: gameID}
				}
				m := match.New(h.ctx, msg.Opts, h.bc, h.saver, h.log)
				h.matches[msg.Opts.GameID] = m
				h.log.Info("match created", zap.String("game_id", msg.Opts.GameID))
				msg.Reply <- m

			case GetMatch:
				msg.Reply <- h.matches[msg.GameID] // may be nil

			case RemoveMatch:
				if m := h.matches[msg.GameID]; m != nil {
					m.Inbox() <- match.Shutdown{}
					delete(h.matches, msg.GameID)
				}

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) shutdown() {
	for _, m := range h.matches {
		m.Inbox() <- match.Shutdown{}
	}
	clear(h.matches)
	h.cancel()
}
