package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/royale-arena/backend/internal/codec"
	"github.com/royale-arena/backend/internal/game"
	"github.com/royale-arena/backend/internal/session"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingTransport struct {
	mu     sync.Mutex
	frames []string
	fail   bool
}

func (r *recordingTransport) Write(ctx context.Context, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("gone")
	}
	r.frames = append(r.frames, string(data))
	return nil
}

func (r *recordingTransport) Close(reason string) error { return nil }

func (r *recordingTransport) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func setup(t *testing.T) (*session.Registry, *Broadcaster) {
	t.Helper()
	reg := session.NewRegistry(zap.NewNop())
	return reg, New(reg, zap.NewNop())
}

func TestBroadcast_ReachesAllSessionsOfOneGame(t *testing.T) {
	reg, b := setup(t)

	t1, t2, other := &recordingTransport{}, &recordingTransport{}, &recordingTransport{}
	reg.Register("g1", "alice", game.RolePlayer, t1)
	reg.Register("g1", "dir", game.RoleDirector, t2)
	reg.Register("g2", "carol", game.RolePlayer, other)

	b.Broadcast("g1", codec.SystemMessage("night falls"))

	eventually(t, func() bool { return t1.count() == 1 && t2.count() == 1 }, "g1 sessions did not receive broadcast")
	require.Zero(t, other.count())
}

func TestBroadcastExcept_SkipsTheActor(t *testing.T) {
	reg, b := setup(t)

	t1, t2 := &recordingTransport{}, &recordingTransport{}
	reg.Register("g1", "alice", game.RolePlayer, t1)
	reg.Register("g1", "bob", game.RolePlayer, t2)

	b.BroadcastExcept("g1", codec.SystemMessage("alice acted"), "alice")

	eventually(t, func() bool { return t2.count() == 1 }, "bob did not receive broadcast")
	require.Zero(t, t1.count())
}

func TestBroadcastDirectors_FiltersByRole(t *testing.T) {
	reg, b := setup(t)

	player, director := &recordingTransport{}, &recordingTransport{}
	reg.Register("g1", "alice", game.RolePlayer, player)
	reg.Register("g1", "dir", game.RoleDirector, director)

	b.BroadcastDirectors("g1", codec.SystemMessage("for your eyes only"))

	eventually(t, func() bool { return director.count() == 1 }, "director did not receive message")
	require.Zero(t, player.count())
}

func TestBroadcast_FailingSessionDoesNotAbortOthers(t *testing.T) {
	reg, b := setup(t)

	dead := &recordingTransport{fail: true}
	live := &recordingTransport{}
	reg.Register("g1", "alice", game.RolePlayer, dead)
	reg.Register("g1", "bob", game.RolePlayer, live)

	b.Broadcast("g1", codec.SystemMessage("one"))
	b.Broadcast("g1", codec.SystemMessage("two"))

	eventually(t, func() bool { return live.count() == 2 }, "healthy session missed broadcasts")
	eventually(t, func() bool { return reg.Find("g1", "alice") == nil }, "dead session was not reaped")
}

func TestSendTo_TargetsOneParticipant(t *testing.T) {
	reg, b := setup(t)

	t1, t2 := &recordingTransport{}, &recordingTransport{}
	reg.Register("g1", "alice", game.RolePlayer, t1)
	reg.Register("g1", "bob", game.RolePlayer, t2)

	b.SendTo("g1", "bob", codec.SystemMessage("psst"))
	// unknown participant is a silent no-op
	b.SendTo("g1", "nobody", codec.SystemMessage("void"))

	eventually(t, func() bool { return t2.count() == 1 }, "bob did not receive direct message")
	require.Zero(t, t1.count())
}
