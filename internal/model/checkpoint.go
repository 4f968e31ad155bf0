package model

import "encoding/json"

// Checkpoint is a crash-safe progress marker for a background job. One per
// job name (or job+level); overwritten on progress (spec.md §3).
type Checkpoint struct {
	JobName          string `json:"job_name"`
	Level            Level  `json:"level,omitempty"`
	LastProcessedTime int64 `json:"last_processed_time"`
	ProcessedCount   int64  `json:"processed_count"`
	CreatedAt        int64  `json:"created_at"`
}

func (c *Checkpoint) Marshal() ([]byte, error) { return json.Marshal(c) }

func UnmarshalCheckpoint(data []byte) (*Checkpoint, error) {
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
