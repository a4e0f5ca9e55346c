package game

// Director-driven phase transitions. Each operation validates the current
// phase and either applies fully or leaves the state untouched.

// StartGame moves the lobby into the first day.
func (s *State) StartGame() error {
	if s.Phase == PhaseEnded {
		return ErrGameEnded
	}
	if s.Phase != PhaseLobby {
		return ErrInvalidPhaseTransition
	}
	s.Phase = PhaseDay
	s.Round = 1
	return nil
}

// OpenNightWindow opens the action window for the current round and
// returns the new window epoch for timer correlation.
func (s *State) OpenNightWindow() (int, error) {
	if s.Phase == PhaseEnded {
		return 0, ErrGameEnded
	}
	if s.Phase != PhaseDay {
		return 0, ErrInvalidPhaseTransition
	}
	s.Phase = PhaseNightWindow
	s.windowOpen = true
	s.windowEpoch++
	return s.windowEpoch, nil
}

// CloseWindow closes the action window and drains the queue for
// settlement. epoch 0 is a forced close; a non-zero epoch is a timer fire
// and only matches the window it was armed for. Close is edge-triggered:
// a second close of the same window reports closed=false and does nothing.
func (s *State) CloseWindow(epoch int) (actions []Action, closed bool) {
	if !s.windowOpen || s.Phase != PhaseNightWindow {
		return nil, false
	}
	if epoch != 0 && epoch != s.windowEpoch {
		return nil, false
	}
	s.windowOpen = false
	s.Phase = PhaseNightSettling
	actions = s.QueuedActions()
	s.queue = make(map[queueKey]Action)
	return actions, true
}

// FinishSettlement advances into the next round's day.
func (s *State) FinishSettlement() error {
	if s.Phase != PhaseNightSettling {
		return ErrInvalidPhaseTransition
	}
	s.Phase = PhaseDay
	s.Round++
	return nil
}

// EndGame is terminal and legal from any live phase. It does not touch
// sessions; connection cleanup is the registry's problem.
func (s *State) EndGame() error {
	if s.Phase == PhaseEnded {
		return ErrInvalidPhaseTransition
	}
	s.Phase = PhaseEnded
	s.windowOpen = false
	return nil
}

// Pause and Resume are side transitions orthogonal to phase progression.
func (s *State) Pause() error {
	if s.Phase == PhaseEnded {
		return ErrGameEnded
	}
	s.Paused = true
	return nil
}

func (s *State) Resume() error {
	if s.Phase == PhaseEnded {
		return ErrGameEnded
	}
	s.Paused = false
	return nil
}
