package game

import (
	"sort"
	"time"
)

type Phase string

const (
	PhaseLobby         Phase = "lobby"
	PhaseDay           Phase = "day"
	PhaseNightWindow   Phase = "night_action_window"
	PhaseNightSettling Phase = "night_settling"
	PhaseEnded         Phase = "ended"
)

type Role string

const (
	RoleDirector Role = "director"
	RolePlayer   Role = "player"
)

type Kind string

const (
	KindDefend  Kind = "defend"
	KindUseItem Kind = "use_item"
	KindAttack  Kind = "attack"
	KindMove    Kind = "move"
)

// Action is a submitted player intent. Immutable once accepted; the
// resolver consumes it without mutating it.
type Action struct {
	Actor       string    `json:"actor"`
	Kind        Kind      `json:"kind"`
	Target      string    `json:"target,omitempty"`
	Item        string    `json:"item,omitempty"`
	Zone        string    `json:"zone,omitempty"`
	Round       int       `json:"round"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type Participant struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Role      Role         `json:"role"`
	Health    int          `json:"health"`
	MaxHealth int          `json:"max_health"`
	Inventory []string     `json:"inventory"`
	Zone      string       `json:"zone"`
	Alive     bool         `json:"alive"`
	Connected bool         `json:"connected"`
	Cooldowns map[Kind]int `json:"cooldowns,omitempty"`
}

// queueKey gives the latest-submission-wins queue its replace semantics:
// one slot per (actor, kind).
type queueKey struct {
	actor string
	kind  Kind
}

// State is the authoritative in-memory representation of one match.
// It is only ever touched from the owning match goroutine.
type State struct {
	GameID       string
	Phase        Phase
	Round        int
	Paused       bool
	windowOpen   bool
	windowEpoch  int
	Participants map[string]*Participant
	Rules        RuleSet
	queue        map[queueKey]Action
}

// PlayerSeed describes a player known to the match before anyone connects.
type PlayerSeed struct {
	ID   string
	Name string
	Zone string
}

func NewState(gameID string, rules RuleSet, directorID string, players []PlayerSeed) *State {
	s := &State{
		GameID:       gameID,
		Phase:        PhaseLobby,
		Round:        0,
		Participants: make(map[string]*Participant),
		Rules:        rules,
		queue:        make(map[queueKey]Action),
	}
	s.Participants[directorID] = &Participant{
		ID:    directorID,
		Name:  directorID,
		Role:  RoleDirector,
		Alive: true,
	}
	for _, seed := range players {
		s.Participants[seed.ID] = &Participant{
			ID:        seed.ID,
			Name:      seed.Name,
			Role:      RolePlayer,
			Health:    rules.MaxHealth,
			MaxHealth: rules.MaxHealth,
			Inventory: []string{},
			Zone:      seed.Zone,
			Alive:     true,
			Cooldowns: map[Kind]int{},
		}
	}
	return s
}

func (s *State) WindowOpen() bool { return s.windowOpen }

// WindowEpoch identifies the current window so a stale timer fire can be
// told apart from the live one.
func (s *State) WindowEpoch() int { return s.windowEpoch }

func (s *State) QueueLen() int { return len(s.queue) }

// QueuedActions returns the pending queue in deterministic resolution
// order. Map iteration order never leaks out of here.
func (s *State) QueuedActions() []Action {
	actions := make([]Action, 0, len(s.queue))
	for _, a := range s.queue {
		actions = append(actions, a)
	}
	sort.Slice(actions, func(i, j int) bool {
		pi, pj := s.Rules.priority(actions[i].Kind), s.Rules.priority(actions[j].Kind)
		if pi != pj {
			return pi < pj
		}
		if !actions[i].SubmittedAt.Equal(actions[j].SubmittedAt) {
			return actions[i].SubmittedAt.Before(actions[j].SubmittedAt)
		}
		return actions[i].Actor < actions[j].Actor
	})
	return actions
}

// ParticipantSnapshot is the per-player view carried in state broadcasts
// and settlement deltas.
type ParticipantSnapshot struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Health    int      `json:"health"`
	Inventory []string `json:"inventory"`
	Zone      string   `json:"zone"`
	Alive     bool     `json:"alive"`
	Connected bool     `json:"connected"`
}

// StateSnapshot is a consistent point-in-time copy of the match, safe to
// hand to the broadcaster while the next mutation is being prepared.
type StateSnapshot struct {
	GameID  string                `json:"game_id"`
	Phase   Phase                 `json:"phase"`
	Round   int                   `json:"round"`
	Paused  bool                  `json:"paused"`
	Players []ParticipantSnapshot `json:"players"`
}

func snapshotOf(p *Participant) ParticipantSnapshot {
	inv := make([]string, len(p.Inventory))
	copy(inv, p.Inventory)
	return ParticipantSnapshot{
		ID:        p.ID,
		Name:      p.Name,
		Health:    p.Health,
		Inventory: inv,
		Zone:      p.Zone,
		Alive:     p.Alive,
		Connected: p.Connected,
	}
}

func (s *State) Snapshot() StateSnapshot {
	snap := StateSnapshot{
		GameID: s.GameID,
		Phase:  s.Phase,
		Round:  s.Round,
		Paused: s.Paused,
	}
	for _, id := range s.playerIDs() {
		snap.Players = append(snap.Players, snapshotOf(s.Participants[id]))
	}
	return snap
}

// playerIDs returns player participants in stable lexicographic order.
func (s *State) playerIDs() []string {
	ids := make([]string, 0, len(s.Participants))
	for id, p := range s.Participants {
		if p.Role == RolePlayer {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// SetConnected flips the transport-liveness flag. Game-liveness (Alive)
// is untouched so a disconnected player can reconnect mid-match.
func (s *State) SetConnected(participantID string, connected bool) bool {
	p, ok := s.Participants[participantID]
	if !ok {
		return false
	}
	p.Connected = connected
	return true
}
