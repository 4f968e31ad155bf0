package model

import "encoding/json"

// OutboxAction names the kind of work a pending OutboxEntry represents.
type OutboxAction string

const (
	ActionIndexEvent OutboxAction = "IndexEvent"
	ActionUpdateToc  OutboxAction = "UpdateToc"
)

// OutboxEntry is a pending work unit written atomically with its triggering
// event and deleted only after successful processing (spec.md §3).
type OutboxEntry struct {
	Sequence    uint64       `json:"sequence"`
	EventID     string       `json:"event_id"`
	TimestampMs int64        `json:"timestamp_ms"`
	Action      OutboxAction `json:"action"`
}

func (o *OutboxEntry) Marshal() ([]byte, error) { return json.Marshal(o) }

func UnmarshalOutboxEntry(data []byte) (*OutboxEntry, error) {
	var o OutboxEntry
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, err
	}
	return &o, nil
}
