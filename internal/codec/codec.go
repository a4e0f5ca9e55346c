// Package codec builds and parses the wire envelope exchanged on every
// game connection.
//
// Every frame, inbound or outbound, is a JSON object:
//
//	{"type": <string>, "data": <object>}
//
// Outbound types: "system_message", "game_state", "error".
// Inbound types:  "player_action", "director_action". Anything else is
// answered with an error frame and the connection stays open.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/royale-arena/backend/internal/game"
)

const (
	TypeSystemMessage  = "system_message"
	TypeGameState      = "game_state"
	TypeError          = "error"
	TypePlayerAction   = "player_action"
	TypeDirectorAction = "director_action"
)

var ErrUnrecognizedType = errors.New("unrecognized message type")

type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

func envelope(msgType string, data any) Envelope {
	raw, err := json.Marshal(data)
	if err != nil {
		// All payload types here are plain structs and maps; a marshal
		// failure is a programming error, not a runtime condition.
		panic(fmt.Sprintf("codec: marshal %s payload: %v", msgType, err))
	}
	return Envelope{Type: msgType, Data: raw}
}

func SystemMessage(message string) Envelope {
	return envelope(TypeSystemMessage, map[string]string{"message": message})
}

func GameState(snapshot any) Envelope {
	return envelope(TypeGameState, snapshot)
}

func ErrorMessage(code, message string) Envelope {
	return envelope(TypeError, map[string]string{"code": code, "message": message})
}

// EngineError renders an engine validation error as an error frame for
// the originating session.
func EngineError(err error) Envelope {
	return ErrorMessage(game.ErrorCode(err), err.Error())
}

// PlayerActionData is the payload of an inbound player_action frame.
type PlayerActionData struct {
	Action string `json:"action"`
	Target string `json:"target,omitempty"`
	Item   string `json:"item,omitempty"`
	Zone   string `json:"zone,omitempty"`
}

// DirectorActionData is the payload of an inbound director_action frame.
type DirectorActionData struct {
	Command     string `json:"command"`
	DurationSec int    `json:"duration_sec,omitempty"`
	PlayerID    string `json:"player_id,omitempty"`
	Message     string `json:"message,omitempty"`
}

func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode frame: %w", err)
	}
	switch env.Type {
	case TypePlayerAction, TypeDirectorAction:
		return env, nil
	default:
		return env, fmt.Errorf("%w: %q", ErrUnrecognizedType, env.Type)
	}
}

func (e Envelope) PlayerAction() (PlayerActionData, error) {
	var data PlayerActionData
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return PlayerActionData{}, fmt.Errorf("decode player action: %w", err)
	}
	if ParseKind(data.Action) == "" {
		return PlayerActionData{}, fmt.Errorf("decode player action: unknown action %q", data.Action)
	}
	return data, nil
}

func (e Envelope) DirectorAction() (DirectorActionData, error) {
	var data DirectorActionData
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return DirectorActionData{}, fmt.Errorf("decode director action: %w", err)
	}
	if data.Command == "" {
		return DirectorActionData{}, errors.New("decode director action: missing command")
	}
	return data, nil
}

// ParseKind maps a wire action name to an engine kind; empty means
// unknown.
func ParseKind(action string) game.Kind {
	switch action {
	case "attack":
		return game.KindAttack
	case "defend":
		return game.KindDefend
	case "use_item":
		return game.KindUseItem
	case "move":
		return game.KindMove
	default:
		return ""
	}
}
