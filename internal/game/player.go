package game

// SubmitAction validates and queues a player action for the open window.
// A resubmission of the same kind by the same actor replaces the earlier
// one; changing your mind before the window closes is not an error.
func (s *State) SubmitAction(a Action) error {
	if s.Phase == PhaseEnded {
		return ErrGameEnded
	}
	if s.Paused {
		return ErrGamePaused
	}
	if !s.windowOpen {
		return ErrWindowClosed
	}
	p, ok := s.Participants[a.Actor]
	if !ok || p.Role != RolePlayer {
		return ErrUnknownActor
	}
	if !p.Alive {
		return ErrActorNotAlive
	}

	a.Round = s.Round
	s.queue[queueKey{actor: a.Actor, kind: a.Kind}] = a
	return nil
}
