// Package broadcast fans envelopes out to the live sessions of a game.
// Delivery is best-effort per session; one stuck client never blocks the
// rest, it just gets reaped.
package broadcast

import (
	"github.com/royale-arena/backend/internal/codec"
	"github.com/royale-arena/backend/internal/game"
	"github.com/royale-arena/backend/internal/session"
	"go.uber.org/zap"
)

type Broadcaster struct {
	reg *session.Registry
	log *zap.Logger
}

func New(reg *session.Registry, log *zap.Logger) *Broadcaster {
	return &Broadcaster{reg: reg, log: log}
}

func (b *Broadcaster) Broadcast(gameID string, env codec.Envelope) {
	b.deliver(gameID, env, func(*session.Session) bool { return true })
}

func (b *Broadcaster) BroadcastExcept(gameID string, env codec.Envelope, excludedParticipantID string) {
	b.deliver(gameID, env, func(s *session.Session) bool {
		return s.ParticipantID != excludedParticipantID
	})
}

// BroadcastDirectors sends to director sessions only, for payloads
// players must not see.
func (b *Broadcaster) BroadcastDirectors(gameID string, env codec.Envelope) {
	b.deliver(gameID, env, func(s *session.Session) bool {
		return s.Role == game.RoleDirector
	})
}

func (b *Broadcaster) SendTo(gameID, participantID string, env codec.Envelope) {
	s := b.reg.Find(gameID, participantID)
	if s == nil {
		return
	}
	frame, err := env.Marshal()
	if err != nil {
		b.log.Error("marshal envelope", zap.String("type", env.Type), zap.Error(err))
		return
	}
	if !s.Enqueue(frame) {
		b.reap(s)
	}
}

func (b *Broadcaster) deliver(gameID string, env codec.Envelope, include func(*session.Session) bool) {
	frame, err := env.Marshal()
	if err != nil {
		b.log.Error("marshal envelope", zap.String("type", env.Type), zap.Error(err))
		return
	}
	for _, s := range b.reg.SessionsFor(gameID) {
		if !include(s) {
			continue
		}
		if !s.Enqueue(frame) {
			b.reap(s)
		}
	}
}

// reap schedules a failed session for unregistration off the broadcast
// path, so delivery to the remaining sessions is never held up.
func (b *Broadcaster) reap(s *session.Session) {
	b.log.Info("dropping unresponsive session",
		zap.String("game_id", s.GameID),
		zap.String("participant_id", s.ParticipantID))
	go b.reg.Unregister(s)
}
