package model

import "encoding/json"

// Level is one of the five TOC node levels, strictly ordered
// Year > Month > Week > Day > Segment (spec.md §3).
type Level string

const (
	LevelYear    Level = "Year"
	LevelMonth   Level = "Month"
	LevelWeek    Level = "Week"
	LevelDay     Level = "Day"
	LevelSegment Level = "Segment"
)

// ChildLevel returns the level immediately below l, or "" for Segment,
// which has no TOC children.
func (l Level) ChildLevel() Level {
	switch l {
	case LevelYear:
		return LevelMonth
	case LevelMonth:
		return LevelWeek
	case LevelWeek:
		return LevelDay
	case LevelDay:
		return LevelSegment
	default:
		return ""
	}
}

// Bullet is one summary line with its provenance anchors.
type Bullet struct {
	Text    string   `json:"text"`
	GripIDs []string `json:"grip_ids,omitempty"`
}

// TocNode is a versioned summary covering a time interval. Updates never
// mutate an existing version; a new version is appended and the
// "latest" pointer is swapped atomically alongside it (spec.md §3).
type TocNode struct {
	NodeID        string   `json:"node_id"`
	Level         Level    `json:"level"`
	Title         string   `json:"title"`
	Bullets       []Bullet `json:"bullets,omitempty"`
	Keywords      []string `json:"keywords,omitempty"`
	ChildNodeIDs  []string `json:"child_node_ids,omitempty"`
	StartTime     int64    `json:"start_time"`
	EndTime       int64    `json:"end_time"`
	Version       uint32   `json:"version"`
	CreatedAt     int64    `json:"created_at"`
	// Placeholder marks a node created only to satisfy parent lineage
	// (spec.md §4.6 step 5, §9) before it has ever been summarized. Rollup
	// jobs use this to tell "never summarized" apart from "summarized, due
	// for another pass" — both can have sparse bullets.
	Placeholder bool `json:"placeholder,omitempty"`
}

func (n *TocNode) Marshal() ([]byte, error) { return json.Marshal(n) }

func UnmarshalTocNode(data []byte) (*TocNode, error) {
	var n TocNode
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// AddChildOnce appends childID to ChildNodeIDs if it is not already present,
// preserving insertion order (spec.md §4.6 step 5: "appears exactly once").
func (n *TocNode) AddChildOnce(childID string) {
	for _, id := range n.ChildNodeIDs {
		if id == childID {
			return
		}
	}
	n.ChildNodeIDs = append(n.ChildNodeIDs, childID)
}
