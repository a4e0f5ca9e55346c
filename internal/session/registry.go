// Package session owns the set of live transport sessions per game.
// A session binds exactly one connection to one (game, participant);
// the participant's game state lives elsewhere and survives disconnects.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/royale-arena/backend/internal/game"
	"go.uber.org/zap"
)

const (
	outboxSize   = 16
	writeTimeout = 3 * time.Second
)

// Transport is the write side of a client connection. The websocket
// layer adapts its connection to this; tests plug in fakes.
type Transport interface {
	Write(ctx context.Context, data []byte) error
	Close(reason string) error
}

type Session struct {
	ID            string
	GameID        string
	ParticipantID string
	Role          game.Role

	transport Transport
	outbox    chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// Enqueue hands a frame to the session's writer. It never blocks: a full
// outbox means the client cannot keep up and the send is refused so the
// caller can reap the session.
func (s *Session) Enqueue(frame []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.outbox <- frame:
		return true
	default:
		return false
	}
}

func (s *Session) close(reason string) {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.transport.Close(reason)
	})
}

// DisconnectHandler observes a session ending, however it ended. The
// participant's game record is untouched; this is transport news only.
type DisconnectHandler func(gameID, participantID string, role game.Role)

type Registry struct {
	mu           sync.Mutex
	byGame       map[string]map[string]*Session
	onDisconnect DisconnectHandler
	log          *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		byGame: make(map[string]map[string]*Session),
		log:    log,
	}
}

// OnDisconnect installs the handler invoked after every unregistration.
// Set it once during wiring, before traffic starts.
func (r *Registry) OnDisconnect(fn DisconnectHandler) { r.onDisconnect = fn }

// Register binds a transport to (gameID, participantID). If the
// participant already has a live session the newer connection wins: the
// old transport is closed and its session unregistered, so a reconnect
// replaces a stale link instead of being refused.
func (r *Registry) Register(gameID, participantID string, role game.Role, t Transport) *Session {
	s := &Session{
		ID:            uuid.NewString(),
		GameID:        gameID,
		ParticipantID: participantID,
		Role:          role,
		transport:     t,
		outbox:        make(chan []byte, outboxSize),
		done:          make(chan struct{}),
	}

	r.mu.Lock()
	sessions, ok := r.byGame[gameID]
	if !ok {
		sessions = make(map[string]*Session)
		r.byGame[gameID] = sessions
	}
	evicted := sessions[participantID]
	sessions[participantID] = s
	r.mu.Unlock()

	if evicted != nil {
		r.log.Info("evicting stale session",
			zap.String("game_id", gameID),
			zap.String("participant_id", participantID))
		evicted.close("duplicate_session")
	}

	go r.writeLoop(s)
	return s
}

// Unregister removes a session and fires the disconnect handler. It is
// idempotent: unregistering a session that is already gone is a no-op.
func (r *Registry) Unregister(s *Session) {
	r.mu.Lock()
	sessions := r.byGame[s.GameID]
	current, ok := sessions[s.ParticipantID]
	if !ok || current.ID != s.ID {
		r.mu.Unlock()
		s.close("session_ended")
		return
	}
	delete(sessions, s.ParticipantID)
	if len(sessions) == 0 {
		delete(r.byGame, s.GameID)
	}
	r.mu.Unlock()

	s.close("session_ended")
	if r.onDisconnect != nil {
		r.onDisconnect(s.GameID, s.ParticipantID, s.Role)
	}
}

func (r *Registry) SessionsFor(gameID string) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	sessions := make([]*Session, 0, len(r.byGame[gameID]))
	for _, s := range r.byGame[gameID] {
		sessions = append(sessions, s)
	}
	return sessions
}

func (r *Registry) Find(gameID, participantID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byGame[gameID][participantID]
}

// writeLoop drains the outbox in FIFO order. Any write failure is
// treated the same as an explicit close: the session is unregistered.
func (r *Registry) writeLoop(s *Session) {
	for {
		select {
		case <-s.done:
			return
		case frame := <-s.outbox:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := s.transport.Write(ctx, frame)
			cancel()
			if err != nil {
				r.log.Debug("session write failed",
					zap.String("game_id", s.GameID),
					zap.String("participant_id", s.ParticipantID),
					zap.Error(err))
				r.Unregister(s)
				return
			}
		}
	}
}
