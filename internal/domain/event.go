package domain

import "time"

type EventKind string

const (
	EventStatus        EventKind = "status"
	EventAudio         EventKind = "audio"
	EventInterrupted   EventKind = "interrupted"
	EventError         EventKind = "error"
	EventTranscription EventKind = "transcription"
	EventToolCall      EventKind = "tool_call"
	EventLock          EventKind = "lock"
)

// DisconnectReason says who ended a session; it is only set on disconnected
// status events.
type DisconnectReason string

const (
	ReasonRemote   DisconnectReason = "remote"
	ReasonClient   DisconnectReason = "client"
	ReasonShutdown DisconnectReason = "shutdown"
)

// Event is the single tagged type published by the session manager. Only the
// fields relevant to Kind are set.
type Event struct {
	Kind      EventKind
	SessionID string
	At        time.Time

	Status Status
	Reason DisconnectReason
	Audio  string
	Err    error

	Text   string
	IsUser bool

	ToolCall *ToolCall
	Locked   bool
}
