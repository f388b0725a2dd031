package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Header tags carried in the envelope "header" field.
const (
	HeaderChatMessage      = "chat_message"
	HeaderJoin             = "join"
	HeaderRead             = "read"
	HeaderCreateRoom       = "create_room"
	HeaderRPS              = "rps"
	HeaderUserConnected    = "user_connected"
	HeaderUserDisconnected = "user_disconnected"
	HeaderSession          = "session"
	HeaderUsers            = "users"
	HeaderRoom             = "room"
)

var (
	ErrMalformedEnvelope = errors.New("malformed envelope")
	ErrUnknownHeader     = errors.New("unknown header")
)

// Envelope is the frame exchanged in both directions
type Envelope struct {
	Header string          `json:"header"`
	Data   json.RawMessage `json:"data"`
}

// Encode marshals data under the given header
func Encode(header string, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", header, err)
	}

	frame, err := json.Marshal(Envelope{Header: header, Data: payload})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s envelope: %w", header, err)
	}
	return frame, nil
}

// Decode parses a raw frame. The header must be present; data may be empty.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(bytes.TrimSpace(frame), &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Header == "" {
		return Envelope{}, fmt.Errorf("%w: missing header", ErrMalformedEnvelope)
	}
	return env, nil
}

// Bind unmarshals the envelope payload into v
func (e Envelope) Bind(v any) error {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return fmt.Errorf("%w: %s has no data", ErrMalformedEnvelope, e.Header)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedEnvelope, e.Header, err)
	}
	return nil
}
