package game

import "fmt"

// Delta is the single atomic outcome of settling one round: per-player
// before/after snapshots plus the ordered, human-readable event log.
type Delta struct {
	Round  int                            `json:"round"`
	Before map[string]ParticipantSnapshot `json:"before"`
	After  map[string]ParticipantSnapshot `json:"after"`
	Events []string                       `json:"events"`
}

// Resolve settles a closed window's actions against the state. Actions
// must already be in resolution order (see QueuedActions); processing is
// a single pass where earlier effects are visible to later ones, so a
// defend raises a shield that absorbs attacks on the same target this
// round. Deaths are marked after the pass unless the immediate-death
// rule hook is on.
func Resolve(s *State, actions []Action) Delta {
	delta := Delta{
		Round:  s.Round,
		Before: make(map[string]ParticipantSnapshot),
		After:  make(map[string]ParticipantSnapshot),
	}
	for _, id := range s.playerIDs() {
		delta.Before[id] = snapshotOf(s.Participants[id])
	}

	shields := make(map[string]int)

	for _, a := range actions {
		actor, ok := s.Participants[a.Actor]
		if !ok {
			continue
		}
		if !actor.Alive {
			// Only reachable mid-pass under the immediate-death rule:
			// the actor was alive when the action was accepted.
			delta.log("%s can no longer act this night", actor.Name)
			continue
		}

		switch a.Kind {
		case KindDefend:
			shields[a.Actor] += s.Rules.DefendShield
			delta.log("%s takes a defensive stance", actor.Name)

		case KindUseItem:
			if !removeItem(actor, a.Item) {
				delta.log("%s fumbles for a missing %s", actor.Name, a.Item)
				continue
			}
			healed := min(s.Rules.HealAmount, actor.MaxHealth-actor.Health)
			actor.Health += healed
			delta.log("%s uses %s and recovers %d health", actor.Name, a.Item, healed)

		case KindAttack:
			target, ok := s.Participants[a.Target]
			if !ok || target.Role != RolePlayer || !target.Alive {
				delta.log("%s attacks into the dark and hits nothing", actor.Name)
				continue
			}
			damage := s.Rules.AttackDamage
			if absorbed := min(damage, shields[a.Target]); absorbed > 0 {
				shields[a.Target] -= absorbed
				damage -= absorbed
			}
			if damage == 0 {
				delta.log("%s attacks %s but the blow is nullified", actor.Name, target.Name)
				continue
			}
			target.Health -= damage
			delta.log("%s attacks %s for %d damage", actor.Name, target.Name, damage)
			if s.Rules.ImmediateDeath && target.Health <= 0 {
				target.Health = 0
				target.Alive = false
				delta.log("%s is killed by %s", target.Name, actor.Name)
			}

		case KindMove:
			if a.Zone == "" {
				delta.log("%s hesitates and stays in %s", actor.Name, actor.Zone)
				continue
			}
			actor.Zone = a.Zone
			delta.log("%s moves to %s", actor.Name, a.Zone)

		default:
			delta.log("%s attempts something unintelligible", actor.Name)
		}
	}

	// Deferred deaths: everyone dropped to zero during the pass dies
	// together once all effects are in.
	for _, id := range s.playerIDs() {
		p := s.Participants[id]
		if p.Alive && p.Health <= 0 {
			p.Health = 0
			p.Alive = false
			delta.log("%s did not survive the night", p.Name)
		}
	}

	for _, id := range s.playerIDs() {
		delta.After[id] = snapshotOf(s.Participants[id])
	}
	return delta
}

// Summary renders the one-line system message that accompanies the
// settlement broadcast.
func (d Delta) Summary() string {
	survivors := 0
	for _, snap := range d.After {
		if snap.Alive {
			survivors++
		}
	}
	return fmt.Sprintf("night %d settled: %d events, %d players alive", d.Round, len(d.Events), survivors)
}

func (d *Delta) log(format string, args ...any) {
	d.Events = append(d.Events, fmt.Sprintf(format, args...))
}

func removeItem(p *Participant, item string) bool {
	for i, have := range p.Inventory {
		if have == item {
			p.Inventory = append(p.Inventory[:i], p.Inventory[i+1:]...)
			return true
		}
	}
	return false
}
