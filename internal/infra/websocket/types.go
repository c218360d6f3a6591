// Package websocket pushes live scan status events to connected users.
package websocket

import (
	"encoding/json"
	"time"
)

// MessageType defines the type of WebSocket message.
type MessageType string

const (
	// Client -> Server
	MessageTypePing MessageType = "ping"

	// Server -> Client
	MessageTypePong  MessageType = "pong"
	MessageTypeEvent MessageType = "event"
	MessageTypeError MessageType = "error"
)

// Message is the WebSocket message envelope.
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
	RequestID string          `json:"request_id,omitempty"`
}

// NewMessage creates a message stamped with the current time.
func NewMessage(msgType MessageType) *Message {
	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
	}
}

// WithData sets the JSON payload of the message.
func (m *Message) WithData(data any) *Message {
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			m.Data = raw
		}
	}
	return m
}

// WithRequestID sets the request ID for the message.
func (m *Message) WithRequestID(id string) *Message {
	m.RequestID = id
	return m
}

// ErrorData represents error information sent to client.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
