package toc

import (
	"context"
	"testing"

	"github.com/nextlevelbuilder/agentmemory/internal/idgen"
	"github.com/nextlevelbuilder/agentmemory/internal/model"
	"github.com/nextlevelbuilder/agentmemory/internal/storage"
	"github.com/nextlevelbuilder/agentmemory/internal/summarizer"
)

func openEngine(t *testing.T) *storage.Engine {
	t.Helper()
	eng, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(eng.Close)
	return eng
}

func fixedClock(ts int64) func() int64 { return func() int64 { return ts } }

func testSegment(startMs int64) *model.Segment {
	return &model.Segment{
		SegmentID: "seg-1",
		StartTime: startMs,
		EndTime:   startMs + 1000,
		Events: []model.Event{
			{EventID: "01", SessionID: "s1", TimestampMs: startMs, EventType: model.EventUserMessage, Role: model.RoleUser, Text: "asked about rocksdb compaction"},
			{EventID: "02", SessionID: "s1", TimestampMs: startMs + 1000, EventType: model.EventAssistantMessage, Role: model.RoleAssistant, Text: "explained rocksdb compaction styles"},
		},
	}
}

func TestBuildSegmentWritesNodeAndLatestPointer(t *testing.T) {
	eng := openEngine(t)
	b := NewBuilder(eng, summarizer.MockCapability{}, fixedClock(1000))

	nodeID, err := b.BuildSegment(context.Background(), testSegment(0))
	if err != nil {
		t.Fatalf("BuildSegment: %v", err)
	}

	data, found, err := eng.Get(storage.PartitionTocLatest, idgen.TocLatestKey(nodeID))
	if err != nil || !found {
		t.Fatalf("latest pointer missing: found=%v err=%v", found, err)
	}
	node, err := model.UnmarshalTocNode(data)
	if err != nil {
		t.Fatalf("UnmarshalTocNode: %v", err)
	}
	if node.Level != model.LevelSegment || node.Version != 1 {
		t.Errorf("node = %+v, want Level=Segment Version=1", node)
	}
	if node.Placeholder {
		t.Errorf("a summarized segment node must not be marked Placeholder")
	}
}

func TestBuildSegmentCreatesParentLineage(t *testing.T) {
	eng := openEngine(t)
	b := NewBuilder(eng, summarizer.MockCapability{}, fixedClock(1000))

	seg := testSegment(0) // epoch: 1970-01-01 UTC
	nodeID, err := b.BuildSegment(context.Background(), seg)
	if err != nil {
		t.Fatalf("BuildSegment: %v", err)
	}

	dayID := idgen.DayNodeID(0)
	weekID := idgen.WeekNodeID(0)
	monthID := idgen.MonthNodeID(0)
	yearID := idgen.YearNodeID(0)

	for _, id := range []string{dayID, weekID, monthID, yearID} {
		data, found, err := eng.Get(storage.PartitionTocLatest, idgen.TocLatestKey(id))
		if err != nil || !found {
			t.Fatalf("parent node %s missing: found=%v err=%v", id, found, err)
		}
		node, err := model.UnmarshalTocNode(data)
		if err != nil {
			t.Fatalf("UnmarshalTocNode(%s): %v", id, err)
		}
		if !node.Placeholder {
			t.Errorf("freshly created parent %s should be a placeholder", id)
		}
	}

	dayData, _, _ := eng.Get(storage.PartitionTocLatest, idgen.TocLatestKey(dayID))
	day, _ := model.UnmarshalTocNode(dayData)
	if len(day.ChildNodeIDs) != 1 || day.ChildNodeIDs[0] != nodeID {
		t.Errorf("day.ChildNodeIDs = %v, want [%s]", day.ChildNodeIDs, nodeID)
	}
}

func TestBuildSegmentTwiceSameDayAppendsChildOnceAndBumpsDayVersion(t *testing.T) {
	eng := openEngine(t)
	b := NewBuilder(eng, summarizer.MockCapability{}, fixedClock(1000))

	seg1 := testSegment(0)
	node1, err := b.BuildSegment(context.Background(), seg1)
	if err != nil {
		t.Fatalf("BuildSegment 1: %v", err)
	}

	seg2 := testSegment(2_000_000) // later same UTC day
	node2, err := b.BuildSegment(context.Background(), seg2)
	if err != nil {
		t.Fatalf("BuildSegment 2: %v", err)
	}

	dayID := idgen.DayNodeID(0)
	dayData, found, err := eng.Get(storage.PartitionTocLatest, idgen.TocLatestKey(dayID))
	if err != nil || !found {
		t.Fatalf("day node missing: found=%v err=%v", found, err)
	}
	day, err := model.UnmarshalTocNode(dayData)
	if err != nil {
		t.Fatalf("UnmarshalTocNode: %v", err)
	}
	if day.Version != 2 {
		t.Errorf("day.Version = %d, want 2 after a second segment adds a child", day.Version)
	}
	if len(day.ChildNodeIDs) != 2 {
		t.Fatalf("day.ChildNodeIDs = %v, want 2 entries", day.ChildNodeIDs)
	}
	if day.ChildNodeIDs[0] != node1 || day.ChildNodeIDs[1] != node2 {
		t.Errorf("day.ChildNodeIDs = %v, want [%s, %s]", day.ChildNodeIDs, node1, node2)
	}
}

func TestBuildSegmentRejectsEmptySegment(t *testing.T) {
	eng := openEngine(t)
	b := NewBuilder(eng, summarizer.MockCapability{}, fixedClock(1000))

	if _, err := b.BuildSegment(context.Background(), &model.Segment{}); err == nil {
		t.Errorf("expected an error for a segment with no events")
	}
}
