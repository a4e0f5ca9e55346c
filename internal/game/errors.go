package game

import "errors"

var ErrWindowClosed = errors.New("action window closed")
var ErrActorNotAlive = errors.New("actor not alive")
var ErrUnknownActor = errors.New("unknown actor")
var ErrInvalidPhaseTransition = errors.New("invalid phase transition")
var ErrGamePaused = errors.New("game paused")
var ErrGameEnded = errors.New("game ended")
var ErrNotDirector = errors.New("director role required")
var ErrUnsupportedCommand = errors.New("unsupported command")

// ErrorCode maps an engine error to the machine-readable reason code
// carried on outbound error frames.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrWindowClosed):
		return "window_closed"
	case errors.Is(err, ErrActorNotAlive):
		return "actor_not_alive"
	case errors.Is(err, ErrUnknownActor):
		return "unknown_actor"
	case errors.Is(err, ErrInvalidPhaseTransition):
		return "invalid_phase_transition"
	case errors.Is(err, ErrGamePaused):
		return "game_paused"
	case errors.Is(err, ErrGameEnded):
		return "game_ended"
	case errors.Is(err, ErrNotDirector):
		return "not_director"
	case errors.Is(err, ErrUnsupportedCommand):
		return "unsupported_command"
	default:
		return "internal"
	}
}
