package live

import "github.com/vango-go/vai-wellness/pkg/core/types"

// Event is the interface for all live session events.
type Event interface {
	// EventType returns the event type string.
	EventType() string
}

// StateChangedEvent is emitted when the session state changes.
type StateChangedEvent struct {
	From SessionState `json:"from"`
	To   SessionState `json:"to"`
}

func (e *StateChangedEvent) EventType() string { return "state.changed" }

// LevelEvent is emitted by the input level meter.
type LevelEvent struct {
	RMS  float64 `json:"rms"`
	Peak float64 `json:"peak"`
}

func (e *LevelEvent) EventType() string { return "input.level" }

// TranscriptEvent is emitted whenever a transcript grows.
type TranscriptEvent struct {
	Role types.Role `json:"role"`
	// Text is the whole transcript of the current turn so far.
	Text string `json:"text"`
}

func (e *TranscriptEvent) EventType() string { return "transcript.delta" }

// TurnCompleteEvent is emitted when the model finishes a turn.
type TurnCompleteEvent struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

func (e *TurnCompleteEvent) EventType() string { return "turn.complete" }

// InterruptedEvent is emitted on barge-in.
type InterruptedEvent struct {
	// Stopped is the number of audio sources cut off.
	Stopped int `json:"stopped"`
}

func (e *InterruptedEvent) EventType() string { return "interrupted" }

// ErrorEvent is emitted when the session fails.
type ErrorEvent struct {
	Err error `json:"-"`
}

func (e *ErrorEvent) EventType() string { return "error" }

// SessionClosedEvent is emitted when teardown finishes.
type SessionClosedEvent struct {
	Reason string `json:"reason,omitempty"`
}

func (e *SessionClosedEvent) EventType() string { return "session.closed" }
