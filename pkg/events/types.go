// Package events defines the newline-delimited JSON stream written by
// extconf watch --events. Each line is one Message; its Data holds the
// payload matching the message type.
package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType represents the type of message in the stream.
type MessageType string

const (
	// MessageTypeReady is sent once the first resolution is about to run
	MessageTypeReady MessageType = "READY"
	// MessageTypeResolved carries a merged region
	MessageTypeResolved MessageType = "RESOLVED"
	// MessageTypeError reports a failed resolution; watching continues
	MessageTypeError MessageType = "ERROR"
	// MessageTypeExit is the last message of a stream
	MessageTypeExit MessageType = "EXIT"
)

// Validate checks if the message type is valid.
func (mt MessageType) Validate() error {
	switch mt {
	case MessageTypeReady, MessageTypeResolved, MessageTypeError, MessageTypeExit:
		return nil
	default:
		return fmt.Errorf("invalid message type: %s", mt)
	}
}

// Message is the envelope of every line.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ReadyMessage names what is being watched.
type ReadyMessage struct {
	Version string `json:"version"`
	File    string `json:"file"`
	Package string `json:"package"`
	Profile string `json:"profile"`
	PID     int    `json:"pid"`
}

// ResolvedMessage carries one resolution of the watched profile.
type ResolvedMessage struct {
	Region string `json:"region"`

	// Changed lists the files whose change triggered the resolution.
	// It is empty for the first one.
	Changed []string `json:"changed,omitempty"`

	// Digest identifies Data; equal digests mean an unchanged region.
	Digest string                 `json:"digest"`
	Data   map[string]interface{} `json:"data"`
}

// ErrorMessage reports a failed resolution.
type ErrorMessage struct {
	Class   string   `json:"class,omitempty"`
	Code    string   `json:"code,omitempty"`
	Message string   `json:"message"`
	Source  string   `json:"source,omitempty"`
	Changed []string `json:"changed,omitempty"`
}

// ExitMessage is sent before the stream ends.
type ExitMessage struct {
	Reason      string `json:"reason"`
	Resolutions int    `json:"resolutions"`
	Failures    int    `json:"failures"`
}
