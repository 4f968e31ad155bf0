// Package model holds the engine's immutable domain records: events, TOC
// nodes, grips, outbox entries, and checkpoints, along with their byte
// serialization. Nothing in this package talks to storage directly.
package model

import "encoding/json"

// EventType enumerates the lifecycle and turn markers a conversation emits.
type EventType string

const (
	EventSessionStart     EventType = "SessionStart"
	EventUserMessage      EventType = "UserMessage"
	EventAssistantMessage EventType = "AssistantMessage"
	EventToolResult       EventType = "ToolResult"
	EventAssistantStop    EventType = "AssistantStop"
	EventSubagentStart    EventType = "SubagentStart"
	EventSubagentStop     EventType = "SubagentStop"
	EventSessionEnd       EventType = "SessionEnd"
)

// Role identifies who produced an event.
type Role string

const (
	RoleUser      Role = "User"
	RoleAssistant Role = "Assistant"
	RoleSystem    Role = "System"
	RoleTool      Role = "Tool"
)

// Event is the atomic, immutable record of one conversation turn.
//
// Events are created once and never mutated; EventID is globally unique and
// its first 48 bits embed the creation millisecond (see internal/idgen).
type Event struct {
	EventID     string            `json:"event_id"`
	SessionID   string            `json:"session_id"`
	TimestampMs int64             `json:"timestamp_ms"`
	EventType   EventType         `json:"event_type"`
	Role        Role              `json:"role"`
	Text        string            `json:"text,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Agent       string            `json:"agent,omitempty"`
}

// Marshal serializes an Event to bytes for storage.
func (e *Event) Marshal() ([]byte, error) { return json.Marshal(e) }

// UnmarshalEvent deserializes an Event previously written by Marshal.
func UnmarshalEvent(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// OverlayFlag is the metadata key the TOC builder sets on events copied into
// a segment's overlap window, so the summarizer may weight them differently
// without re-summarizing them as new material (spec.md §4.6 step 2).
const OverlayFlag = "_overlap"

// IsOverlay reports whether this event was carried into a segment as
// overlap context rather than being one of its primary events.
func (e *Event) IsOverlay() bool {
	return e.Metadata != nil && e.Metadata[OverlayFlag] == "true"
}
