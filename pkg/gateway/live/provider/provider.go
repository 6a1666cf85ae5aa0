// Package provider abstracts the generative-AI live stream behind a small
// connector/stream pair so sessions can be exercised against fakes.
package provider

import "context"

// VoiceSettings selects the spoken-response voice for a stream.
type VoiceSettings struct {
	LanguageCode string
	VoiceName    string
}

type ConnectConfig struct {
	Voice VoiceSettings
}

// Part is one piece of a model turn: inline audio bytes, text, or both.
type Part struct {
	Text  string
	Audio []byte
}

// ServerMessage is one push-event from the provider stream.
type ServerMessage struct {
	SetupComplete bool
	Parts         []Part
	TurnComplete  bool
}

// Stream is a single live conversation with the provider. SendText is
// fire-and-forget; failures of an already-open stream surface through
// Receive. Receive blocks until the next push-event or a terminal error.
// Close is idempotent.
type Stream interface {
	SendText(text string) error
	Receive() (*ServerMessage, error)
	Close() error
}

// Connector opens provider streams. Implementations must return an open,
// ready-to-receive stream or an error; there is no partial state.
type Connector interface {
	Connect(ctx context.Context, cfg ConnectConfig) (Stream, error)
}
