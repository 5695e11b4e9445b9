package queue

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// MessageVersion is stamped on every message this package produces.
const MessageVersion = 1

// Kind names the background job a message asks for.
type Kind string

const (
	KindDetect   Kind = "detect"
	KindComplete Kind = "complete"
)

// Valid reports whether k is a known job kind.
func (k Kind) Valid() bool {
	return k == KindDetect || k == KindComplete
}

var (
	ErrMissingDocumentID = errors.New("missing document id")
	ErrUnknownKind       = errors.New("unknown job kind")
)

// Message is the payload sent to document job consumers.
type Message struct {
	Kind       Kind   `json:"kind"`
	DocumentID string `json:"documentId"`
	OwnerID    string `json:"ownerId"`
	RequestID  string `json:"requestId,omitempty"`
	EnqueuedAt string `json:"enqueuedAt"`
	Version    int    `json:"version"`
}

// NewMessage builds a message stamped with the current version and time.
func NewMessage(kind Kind, documentID, ownerID, requestID string, now time.Time) Message {
	return Message{
		Kind:       kind,
		DocumentID: documentID,
		OwnerID:    ownerID,
		RequestID:  requestID,
		EnqueuedAt: now.UTC().Format(time.RFC3339),
		Version:    MessageVersion,
	}
}

// Validate checks the fields a consumer needs before processing.
func (m Message) Validate() error {
	if strings.TrimSpace(m.DocumentID) == "" {
		return ErrMissingDocumentID
	}
	if !m.Kind.Valid() {
		return ErrUnknownKind
	}
	return nil
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
