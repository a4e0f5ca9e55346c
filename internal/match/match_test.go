package match

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/royale-arena/backend/internal/codec"
	"github.com/royale-arena/backend/internal/game"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeBroadcaster records every envelope so tests can assert on the
// announcement stream without a real registry. Frames delivered to
// everyone and frames for directors only are tracked separately.
type fakeBroadcaster struct {
	mu       sync.Mutex
	sent     []codec.Envelope
	public   []codec.Envelope
	director []codec.Envelope
}

func (f *fakeBroadcaster) record(env codec.Envelope) {
	f.mu.Lock()
	f.sent = append(f.sent, env)
	f.mu.Unlock()
}

func (f *fakeBroadcaster) Broadcast(gameID string, env codec.Envelope) {
	f.mu.Lock()
	f.sent = append(f.sent, env)
	f.public = append(f.public, env)
	f.mu.Unlock()
}

func (f *fakeBroadcaster) BroadcastExcept(gameID string, env codec.Envelope, excluded string) {
	f.record(env)
}

func (f *fakeBroadcaster) BroadcastDirectors(gameID string, env codec.Envelope) {
	f.mu.Lock()
	f.sent = append(f.sent, env)
	f.director = append(f.director, env)
	f.mu.Unlock()
}

func (f *fakeBroadcaster) SendTo(gameID, pid string, env codec.Envelope) { f.record(env) }

type fakeSaver struct {
	mu        sync.Mutex
	snapshots int
	logs      []string
}

func (f *fakeSaver) QueueSnapshot(gameID string, round int, payload []byte) {
	f.mu.Lock()
	f.snapshots++
	f.mu.Unlock()
}

func (f *fakeSaver) QueueRoundLog(gameID string, round int, message string) {
	f.mu.Lock()
	f.logs = append(f.logs, message)
	f.mu.Unlock()
}

func newTestMatch(t *testing.T, opts Options) (*Match, *fakeBroadcaster, *fakeSaver) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	if opts.GameID == "" {
		opts.GameID = "g1"
	}
	if opts.DirectorID == "" {
		opts.DirectorID = "dir"
	}
	if opts.Rules.MaxHealth == 0 {
		opts.Rules = game.DefaultRules()
	}
	if opts.Players == nil {
		opts.Players = []game.PlayerSeed{
			{ID: "alice", Name: "Alice", Zone: "forest"},
			{ID: "bob", Name: "Bob", Zone: "ruins"},
		}
	}

	bc := &fakeBroadcaster{}
	saver := &fakeSaver{}
	return New(ctx, opts, bc, saver, zap.NewNop()), bc, saver
}

func recvErr(t *testing.T, ch <-chan error, within time.Duration) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(within):
		t.Fatalf("timed out waiting for reply")
		return nil
	}
}

func view(t *testing.T, m *Match) View {
	t.Helper()
	reply := make(chan View, 1)
	m.Inbox() <- GetView{Reply: reply}
	select {
	case v := <-reply:
		return v
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for view")
		return View{}
	}
}

func direct(t *testing.T, m *Match, cmd codec.DirectorActionData) error {
	t.Helper()
	reply := make(chan error, 1)
	m.Inbox() <- DirectorCommand{ActorID: "dir", Cmd: cmd, Reply: reply}
	return recvErr(t, reply, time.Second)
}

func submit(t *testing.T, m *Match, a game.Action) error {
	t.Helper()
	reply := make(chan error, 1)
	m.Inbox() <- SubmitAction{Action: a, Reply: reply}
	return recvErr(t, reply, time.Second)
}

func ts(sec int) time.Time {
	return time.Date(2025, 6, 1, 21, 0, sec, 0, time.UTC)
}

func TestMatch_DefendBeatsAttackScenario(t *testing.T) {
	m, _, saver := newTestMatch(t, Options{})

	require.NoError(t, direct(t, m, codec.DirectorActionData{Command: "start_game"}))
	require.NoError(t, direct(t, m, codec.DirectorActionData{Command: "open_night_window"}))

	require.NoError(t, submit(t, m, game.Action{Actor: "alice", Kind: game.KindAttack, Target: "bob", SubmittedAt: ts(1)}))
	require.NoError(t, submit(t, m, game.Action{Actor: "bob", Kind: game.KindDefend, SubmittedAt: ts(2)}))

	require.NoError(t, direct(t, m, codec.DirectorActionData{Command: "force_close_window"}))

	v := view(t, m)
	require.Equal(t, game.PhaseDay, v.Phase)
	require.Equal(t, 2, v.Round)
	for _, p := range v.Snapshot.Players {
		if p.ID == "bob" {
			require.True(t, p.Alive)
			require.Equal(t, 100, p.Health)
		}
	}

	saver.mu.Lock()
	defer saver.mu.Unlock()
	require.Len(t, saver.logs, 1)
	require.Contains(t, saver.logs[0], "nullified")
}

func TestMatch_SubmitAfterForceCloseRejected(t *testing.T) {
	m, _, _ := newTestMatch(t, Options{})

	require.NoError(t, direct(t, m, codec.DirectorActionData{Command: "start_game"}))
	require.NoError(t, direct(t, m, codec.DirectorActionData{Command: "open_night_window"}))
	require.NoError(t, direct(t, m, codec.DirectorActionData{Command: "force_close_window"}))

	err := submit(t, m, game.Action{Actor: "alice", Kind: game.KindAttack, Target: "bob"})
	require.ErrorIs(t, err, game.ErrWindowClosed)
	require.Zero(t, view(t, m).QueueLen)
}

func TestMatch_TimerAndForcedCloseSettleExactlyOnce(t *testing.T) {
	m, bc, saver := newTestMatch(t, Options{WindowDuration: 30 * time.Millisecond})

	require.NoError(t, direct(t, m, codec.DirectorActionData{Command: "start_game"}))
	require.NoError(t, direct(t, m, codec.DirectorActionData{Command: "open_night_window"}))
	require.NoError(t, direct(t, m, codec.DirectorActionData{Command: "force_close_window"}))

	// let the armed timer fire into the already-closed window
	time.Sleep(100 * time.Millisecond)

	v := view(t, m)
	require.Equal(t, 2, v.Round)
	require.Equal(t, game.PhaseDay, v.Phase)

	saver.mu.Lock()
	snapshots := saver.snapshots
	saver.mu.Unlock()
	require.Equal(t, 1, snapshots)
	require.Equal(t, 1, countSettlements(bc))
}

// countSettlements counts game_state frames carrying a settlement delta.
func countSettlements(bc *fakeBroadcaster) int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return deltaFrames(bc.sent)
}

func deltaFrames(envs []codec.Envelope) int {
	n := 0
	for _, env := range envs {
		if env.Type != codec.TypeGameState {
			continue
		}
		var payload struct {
			Delta *game.Delta `json:"delta"`
		}
		if err := json.Unmarshal(env.Data, &payload); err == nil && payload.Delta != nil {
			n++
		}
	}
	return n
}

func TestMatch_SettlementDeltaGoesToDirectorsOnly(t *testing.T) {
	m, bc, _ := newTestMatch(t, Options{})

	require.NoError(t, direct(t, m, codec.DirectorActionData{Command: "start_game"}))
	require.NoError(t, direct(t, m, codec.DirectorActionData{Command: "open_night_window"}))
	require.NoError(t, submit(t, m, game.Action{Actor: "alice", Kind: game.KindAttack, Target: "bob", SubmittedAt: ts(1)}))
	require.NoError(t, direct(t, m, codec.DirectorActionData{Command: "force_close_window"}))

	bc.mu.Lock()
	defer bc.mu.Unlock()
	require.Equal(t, 1, deltaFrames(bc.director))
	require.Zero(t, deltaFrames(bc.public))

	// players still see the public event log
	sawEvents := false
	for _, env := range bc.public {
		if env.Type != codec.TypeGameState {
			continue
		}
		var payload struct {
			Events []string `json:"events"`
		}
		if err := json.Unmarshal(env.Data, &payload); err == nil && len(payload.Events) > 0 {
			sawEvents = true
		}
	}
	require.True(t, sawEvents)
}

func TestMatch_ForceCloseWithoutOpenWindowRejected(t *testing.T) {
	m, _, _ := newTestMatch(t, Options{})

	err := direct(t, m, codec.DirectorActionData{Command: "force_close_window"})
	require.ErrorIs(t, err, game.ErrInvalidPhaseTransition)

	require.NoError(t, direct(t, m, codec.DirectorActionData{Command: "start_game"}))
	err = direct(t, m, codec.DirectorActionData{Command: "force_close_window"})
	require.ErrorIs(t, err, game.ErrInvalidPhaseTransition)
	require.Equal(t, 1, view(t, m).Round)
}

func TestMatch_WindowExpiryRunsSettlement(t *testing.T) {
	m, _, _ := newTestMatch(t, Options{WindowDuration: 20 * time.Millisecond})

	require.NoError(t, direct(t, m, codec.DirectorActionData{Command: "start_game"}))
	require.NoError(t, direct(t, m, codec.DirectorActionData{Command: "open_night_window"}))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if view(t, m).Round == 2 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("window expiry never settled the round")
}

func TestMatch_NonDirectorCannotDrivePhases(t *testing.T) {
	m, _, _ := newTestMatch(t, Options{})

	reply := make(chan error, 1)
	m.Inbox() <- DirectorCommand{ActorID: "alice", Cmd: codec.DirectorActionData{Command: "start_game"}, Reply: reply}
	require.ErrorIs(t, recvErr(t, reply, time.Second), game.ErrNotDirector)

	reply = make(chan error, 1)
	m.Inbox() <- DirectorCommand{ActorID: "ghost", Cmd: codec.DirectorActionData{Command: "start_game"}, Reply: reply}
	require.ErrorIs(t, recvErr(t, reply, time.Second), game.ErrUnknownActor)

	require.Equal(t, game.PhaseLobby, view(t, m).Phase)
}

func TestMatch_PauseRejectsSubmissionsUntilResume(t *testing.T) {
	m, _, _ := newTestMatch(t, Options{})

	require.NoError(t, direct(t, m, codec.DirectorActionData{Command: "start_game"}))
	require.NoError(t, direct(t, m, codec.DirectorActionData{Command: "open_night_window"}))
	require.NoError(t, direct(t, m, codec.DirectorActionData{Command: "pause"}))

	err := submit(t, m, game.Action{Actor: "alice", Kind: game.KindDefend})
	require.ErrorIs(t, err, game.ErrGamePaused)

	require.NoError(t, direct(t, m, codec.DirectorActionData{Command: "resume"}))
	require.NoError(t, submit(t, m, game.Action{Actor: "alice", Kind: game.KindDefend}))
}

func TestMatch_EndGameRejectsFurtherSubmissions(t *testing.T) {
	m, _, _ := newTestMatch(t, Options{})

	require.NoError(t, direct(t, m, codec.DirectorActionData{Command: "start_game"}))
	require.NoError(t, direct(t, m, codec.DirectorActionData{Command: "open_night_window"}))
	require.NoError(t, direct(t, m, codec.DirectorActionData{Command: "end_game"}))

	err := submit(t, m, game.Action{Actor: "alice", Kind: game.KindAttack, Target: "bob"})
	require.ErrorIs(t, err, game.ErrGameEnded)
}

func TestMatch_ReconnectRetainsDeadState(t *testing.T) {
	rules := game.DefaultRules()
	rules.AttackDamage = 500
	m, _, _ := newTestMatch(t, Options{Rules: rules})

	require.NoError(t, direct(t, m, codec.DirectorActionData{Command: "start_game"}))
	require.NoError(t, direct(t, m, codec.DirectorActionData{Command: "open_night_window"}))
	require.NoError(t, submit(t, m, game.Action{Actor: "alice", Kind: game.KindAttack, Target: "bob", SubmittedAt: ts(1)}))
	require.NoError(t, direct(t, m, codec.DirectorActionData{Command: "force_close_window"}))

	m.Inbox() <- Disconnected{ParticipantID: "bob"}
	m.Inbox() <- Connected{ParticipantID: "bob"}

	v := view(t, m)
	for _, p := range v.Snapshot.Players {
		if p.ID == "bob" {
			require.False(t, p.Alive)
			require.True(t, p.Connected)
			require.Zero(t, p.Health)
		}
	}
	require.Equal(t, 2, v.Round)
}
