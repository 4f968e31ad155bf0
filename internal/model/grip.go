package model

import "encoding/json"

// Grip is a provenance anchor linking a summary bullet back to a precise,
// inclusive range of source events (spec.md §3). Grips are immutable once
// written.
type Grip struct {
	GripID        string `json:"grip_id"`
	Excerpt       string `json:"excerpt"`
	EventIDStart  string `json:"event_id_start"`
	EventIDEnd    string `json:"event_id_end"`
	TimestampMs   int64  `json:"timestamp_ms"`
	Source        string `json:"source"`
	TocNodeID     string `json:"toc_node_id,omitempty"`
}

func (g *Grip) Marshal() ([]byte, error) { return json.Marshal(g) }

func UnmarshalGrip(data []byte) (*Grip, error) {
	var g Grip
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, err
	}
	return &g, nil
}
