package protocol

import (
	"encoding/json"
	"fmt"
)

// validClientTypes is the closed set of allowed client→server event types.
// Session management types are included here: they parse as valid frames
// and are rejected later by the channel policy, with a specific error.
var validClientTypes = map[string]bool{
	TypeCreateSession:  true,
	TypeSendInput:      true,
	TypeRequestHistory: true,
	TypeResize:         true,
	TypeCloseSession:   true,
}

// ValidateClientEvent validates a raw frame from a client: well-formed
// JSON, a known type, and the required payload fields for that type.
func ValidateClientEvent(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	if env.Type == "" {
		return nil, fmt.Errorf("missing 'type' field")
	}
	if !validClientTypes[env.Type] {
		return nil, fmt.Errorf("unknown event type: %s", env.Type)
	}
	if env.Data == nil {
		return nil, fmt.Errorf("missing 'data' field")
	}

	switch env.Type {
	case TypeSendInput:
		var p SendInputData
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("invalid payload for %s: %w", env.Type, err)
		}
		if p.SessionID == "" {
			return nil, fmt.Errorf("missing required field 'session_id' in %s payload", env.Type)
		}

	case TypeRequestHistory:
		var p RequestHistoryData
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("invalid payload for %s: %w", env.Type, err)
		}
		if p.SessionID == "" {
			return nil, fmt.Errorf("missing required field 'session_id' in %s payload", env.Type)
		}

	case TypeResize:
		var p ResizeData
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("invalid payload for %s: %w", env.Type, err)
		}
		if p.SessionID == "" {
			return nil, fmt.Errorf("missing required field 'session_id' in %s payload", env.Type)
		}
		if p.Cols == 0 || p.Rows == 0 {
			return nil, fmt.Errorf("invalid dimensions %dx%d in %s payload", p.Cols, p.Rows, env.Type)
		}

	case TypeCloseSession:
		var p CloseSessionData
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("invalid payload for %s: %w", env.Type, err)
		}
		if p.SessionID == "" {
			return nil, fmt.Errorf("missing required field 'session_id' in %s payload", env.Type)
		}

	case TypeCreateSession:
		var p CreateSessionData
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("invalid payload for %s: %w", env.Type, err)
		}
	}

	return &env, nil
}
