// Package match runs one live game. Every match is a single goroutine
// with a typed message inbox; all mutation of the game state happens on
// that goroutine, so submits, window closes and settlement for one game
// never interleave while separate games run fully in parallel.
package match

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/royale-arena/backend/internal/codec"
	"github.com/royale-arena/backend/internal/game"
	"go.uber.org/zap"
)

// Broadcaster is the fan-out surface the match announces through.
type Broadcaster interface {
	Broadcast(gameID string, env codec.Envelope)
	BroadcastExcept(gameID string, env codec.Envelope, excludedParticipantID string)
	BroadcastDirectors(gameID string, env codec.Envelope)
	SendTo(gameID, participantID string, env codec.Envelope)
}

// Saver accepts fire-and-forget persistence work. It must never block;
// the live match state stays authoritative whether or not a save lands.
type Saver interface {
	QueueSnapshot(gameID string, round int, payload []byte)
	QueueRoundLog(gameID string, round int, message string)
}

type Msg interface{ isMatchMsg() }

type Connected struct{ ParticipantID string }

type Disconnected struct{ ParticipantID string }

type SubmitAction struct {
	Action game.Action
	Reply  chan error
}

type DirectorCommand struct {
	ActorID string
	Cmd     codec.DirectorActionData
	Reply   chan error
}

// GetView reflects internal state without data races; used by tests and
// the HTTP glue.
type GetView struct{ Reply chan View }

type Shutdown struct{}

type windowExpired struct{ Epoch int }

func (Connected) isMatchMsg()       {}
func (Disconnected) isMatchMsg()    {}
func (SubmitAction) isMatchMsg()    {}
func (DirectorCommand) isMatchMsg() {}
func (GetView) isMatchMsg()         {}
func (Shutdown) isMatchMsg()        {}
func (windowExpired) isMatchMsg()   {}

type View struct {
	Phase      game.Phase
	Round      int
	Paused     bool
	WindowOpen bool
	QueueLen   int
	Snapshot   game.StateSnapshot
}

type Options struct {
	GameID     string
	Rules      game.RuleSet
	DirectorID string
	Players    []game.PlayerSeed

	// WindowDuration applies when an open_night_window command does not
	// carry its own duration.
	WindowDuration time.Duration

	// OnEnd is invoked once after end_game so the owner can retire the
	// match. May be nil.
	OnEnd func(gameID string)
}

type Match struct {
	gameID string
	inbox  chan Msg
	state  *game.State
	bc     Broadcaster
	saver  Saver
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc

	windowTimer   *time.Timer
	defaultWindow time.Duration
	now           func() time.Time
	onEnd         func(gameID string)
}

func New(parent context.Context, opts Options, bc Broadcaster, saver Saver, log *zap.Logger) *Match {
	ctx, cancel := context.WithCancel(parent)
	if opts.WindowDuration <= 0 {
		opts.WindowDuration = 60 * time.Second
	}
	m := &Match{
		gameID:        opts.GameID,
		inbox:         make(chan Msg, 64),
		state:         game.NewState(opts.GameID, opts.Rules, opts.DirectorID, opts.Players),
		bc:            bc,
		saver:         saver,
		log:           log.With(zap.String("game_id", opts.GameID)),
		ctx:           ctx,
		cancel:        cancel,
		defaultWindow: opts.WindowDuration,
		now:           time.Now,
		onEnd:         opts.OnEnd,
	}
	go m.loop()
	return m
}

func (m *Match) Inbox() chan<- Msg { return m.inbox }

func (m *Match) GameID() string { return m.gameID }

func (m *Match) loop() {
	for {
		select {
		case <-m.ctx.Done():
			m.shutdown()
			return

		case raw := <-m.inbox:
			switch msg := raw.(type) {
			case Connected:
				m.handleConnected(msg.ParticipantID)

			case Disconnected:
				m.handleDisconnected(msg.ParticipantID)

			case SubmitAction:
				action := msg.Action
				if action.SubmittedAt.IsZero() {
					action.SubmittedAt = m.now()
				}
				err := m.state.SubmitAction(action)
				if err == nil {
					m.log.Debug("action queued",
						zap.String("actor", action.Actor),
						zap.String("kind", string(action.Kind)))
				}
				msg.Reply <- err

			case DirectorCommand:
				msg.Reply <- m.handleDirectorCommand(msg.ActorID, msg.Cmd)

			case windowExpired:
				m.closeWindow(msg.Epoch, "the night is over")

			case GetView:
				msg.Reply <- View{
					Phase:      m.state.Phase,
					Round:      m.state.Round,
					Paused:     m.state.Paused,
					WindowOpen: m.state.WindowOpen(),
					QueueLen:   m.state.QueueLen(),
					Snapshot:   m.state.Snapshot(),
				}

			case Shutdown:
				m.shutdown()
				return
			}
		}
	}
}

func (m *Match) handleConnected(participantID string) {
	if !m.state.SetConnected(participantID, true) {
		m.log.Warn("connect for unknown participant", zap.String("participant_id", participantID))
		return
	}
	m.bc.SendTo(m.gameID, participantID, codec.GameState(m.state.Snapshot()))
	m.bc.BroadcastExcept(m.gameID,
		codec.SystemMessage(fmt.Sprintf("%s connected", participantID)), participantID)
}

func (m *Match) handleDisconnected(participantID string) {
	if !m.state.SetConnected(participantID, false) {
		return
	}
	m.bc.Broadcast(m.gameID,
		codec.SystemMessage(fmt.Sprintf("%s disconnected", participantID)))
}

func (m *Match) handleDirectorCommand(actorID string, cmd codec.DirectorActionData) error {
	actor, ok := m.state.Participants[actorID]
	if !ok {
		return game.ErrUnknownActor
	}
	if actor.Role != game.RoleDirector {
		return game.ErrNotDirector
	}

	switch cmd.Command {
	case "start_game":
		if err := m.state.StartGame(); err != nil {
			return err
		}
		m.announce("the game has begun")

	case "open_night_window":
		epoch, err := m.state.OpenNightWindow()
		if err != nil {
			return err
		}
		duration := m.defaultWindow
		if cmd.DurationSec > 0 {
			duration = time.Duration(cmd.DurationSec) * time.Second
		}
		m.armWindowTimer(epoch, duration)
		m.announce(fmt.Sprintf("night %d: submit your actions within %s", m.state.Round, duration))

	case "force_close_window":
		// an expiry timer that won the race has already moved us out of
		// the window phase; the director gets told instead of a silent nil
		if m.state.Phase != game.PhaseNightWindow {
			return game.ErrInvalidPhaseTransition
		}
		m.closeWindow(0, "the director calls the night early")

	case "end_game":
		if err := m.state.EndGame(); err != nil {
			return err
		}
		m.stopWindowTimer()
		m.announce("the game has ended")
		m.persistSnapshot()
		if m.onEnd != nil {
			go m.onEnd(m.gameID)
		}

	case "pause":
		if err := m.state.Pause(); err != nil {
			return err
		}
		m.bc.Broadcast(m.gameID, codec.SystemMessage("the game is paused"))

	case "resume":
		if err := m.state.Resume(); err != nil {
			return err
		}
		m.bc.Broadcast(m.gameID, codec.SystemMessage("the game resumes"))

	case "broadcast":
		m.bc.Broadcast(m.gameID, codec.SystemMessage(cmd.Message))

	case "message_to_player":
		m.bc.SendTo(m.gameID, cmd.PlayerID, codec.SystemMessage(cmd.Message))

	default:
		return fmt.Errorf("%w: %q", game.ErrUnsupportedCommand, cmd.Command)
	}
	return nil
}

// closeWindow is the single close path shared by the expiry timer and
// the director's forced close. Whichever fires first wins; the loser
// finds the window already closed and does nothing.
func (m *Match) closeWindow(epoch int, reason string) {
	actions, closed := m.state.CloseWindow(epoch)
	if !closed {
		return
	}
	m.stopWindowTimer()

	delta := game.Resolve(m.state, actions)
	if err := m.state.FinishSettlement(); err != nil {
		// CloseWindow left us in night_settling; anything else is a bug.
		m.log.Error("settlement finished in unexpected phase", zap.Error(err))
	}

	m.log.Info("night settled",
		zap.Int("round", delta.Round),
		zap.Int("actions", len(actions)),
		zap.Int("events", len(delta.Events)))

	m.bc.Broadcast(m.gameID, codec.SystemMessage(reason))
	m.bc.Broadcast(m.gameID, codec.GameState(settlementPayload{
		Snapshot: m.state.Snapshot(),
		Events:   delta.Events,
	}))
	// directors see the full before/after delta; players only get the
	// public event log above
	m.bc.BroadcastDirectors(m.gameID, codec.GameState(directorSettlementPayload{
		Snapshot: m.state.Snapshot(),
		Delta:    delta,
	}))
	m.bc.Broadcast(m.gameID, codec.SystemMessage(delta.Summary()))

	m.persistSnapshot()
	if len(delta.Events) > 0 {
		m.saver.QueueRoundLog(m.gameID, delta.Round, strings.Join(delta.Events, "\n"))
	}
}

type settlementPayload struct {
	Snapshot game.StateSnapshot `json:"snapshot"`
	Events   []string           `json:"events"`
}

type directorSettlementPayload struct {
	Snapshot game.StateSnapshot `json:"snapshot"`
	Delta    game.Delta         `json:"delta"`
}

func (m *Match) armWindowTimer(epoch int, duration time.Duration) {
	m.stopWindowTimer()
	m.windowTimer = time.AfterFunc(duration, func() {
		select {
		case m.inbox <- windowExpired{Epoch: epoch}:
		case <-m.ctx.Done():
		}
	})
}

func (m *Match) stopWindowTimer() {
	if m.windowTimer != nil {
		m.windowTimer.Stop()
		m.windowTimer = nil
	}
}

func (m *Match) announce(message string) {
	m.bc.Broadcast(m.gameID, codec.SystemMessage(message))
	m.bc.Broadcast(m.gameID, codec.GameState(m.state.Snapshot()))
}

func (m *Match) persistSnapshot() {
	payload, err := json.Marshal(m.state.Snapshot())
	if err != nil {
		m.log.Error("marshal snapshot", zap.Error(err))
		return
	}
	m.saver.QueueSnapshot(m.gameID, m.state.Round, payload)
}

func (m *Match) shutdown() {
	m.stopWindowTimer()
	m.cancel()
}
