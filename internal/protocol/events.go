// Package protocol defines the tagged event vocabulary of the streaming
// plane. Every frame is an Envelope whose Type selects the payload shape
// carried in Data; events are self-contained.
package protocol

import (
	"encoding/json"
	"fmt"

	"termhub/internal/session"
)

// Envelope is the wire form of every streaming-plane event.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Client → Server event types.
const (
	TypeCreateSession  = "CreateSession"
	TypeSendInput      = "SendInput"
	TypeRequestHistory = "RequestHistory"
	TypeResize         = "Resize"
	TypeCloseSession   = "CloseSession"
)

// Server → Client event types.
const (
	TypeSessionCreated = "SessionCreated"
	TypeSessionList    = "SessionList"
	TypeTerminalOutput = "TerminalOutput"
	TypeSessionClosed  = "SessionClosed"
	TypeError          = "Error"
)

// Client → Server payloads.

type SendInputData struct {
	SessionID string `json:"session_id"`
	Input     string `json:"input"`
}

type RequestHistoryData struct {
	SessionID string `json:"session_id"`
}

type CloseSessionData struct {
	SessionID string `json:"session_id"`
}

type ResizeData struct {
	SessionID string `json:"session_id"`
	Cols      uint16 `json:"cols"`
	Rows      uint16 `json:"rows"`
}

type CreateSessionData struct {
	Name      string `json:"name"`
	Directory string `json:"directory"`
}

// Server → Client payloads.

type SessionCreatedData struct {
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
	Directory string `json:"directory"`
}

type SessionListData struct {
	Sessions []session.Info `json:"sessions"`
}

type TerminalOutputData struct {
	SessionID string `json:"session_id"`
	Data      string `json:"data"`
}

type SessionClosedData struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason,omitempty"`
}

type ErrorData struct {
	Message string `json:"message"`
}

// NewEnvelope wraps a payload in a typed envelope.
func NewEnvelope(eventType string, payload interface{}) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{Type: eventType, Data: data}, nil
}

// TerminalOutput builds a TerminalOutput event.
func TerminalOutput(sessionID, data string) (Envelope, error) {
	return NewEnvelope(TypeTerminalOutput, TerminalOutputData{SessionID: sessionID, Data: data})
}

// SessionList builds the session-list event pushed on connect.
func SessionList(sessions []session.Info) (Envelope, error) {
	if sessions == nil {
		sessions = []session.Info{}
	}
	return NewEnvelope(TypeSessionList, SessionListData{Sessions: sessions})
}

// SessionCreated builds a SessionCreated event.
func SessionCreated(info session.Info) (Envelope, error) {
	return NewEnvelope(TypeSessionCreated, SessionCreatedData{
		SessionID: info.ID,
		Name:      info.Name,
		Directory: info.Directory,
	})
}

// SessionClosed builds a SessionClosed event.
func SessionClosed(sessionID, reason string) (Envelope, error) {
	return NewEnvelope(TypeSessionClosed, SessionClosedData{SessionID: sessionID, Reason: reason})
}

// ErrorEvent builds an Error event.
func ErrorEvent(message string) (Envelope, error) {
	return NewEnvelope(TypeError, ErrorData{Message: message})
}
