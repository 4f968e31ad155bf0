package outbox_test

import (
	"context"
	"testing"
	"time"

	"github.com/nextlevelbuilder/agentmemory/internal/config"
	"github.com/nextlevelbuilder/agentmemory/internal/idgen"
	"github.com/nextlevelbuilder/agentmemory/internal/ingest"
	"github.com/nextlevelbuilder/agentmemory/internal/model"
	"github.com/nextlevelbuilder/agentmemory/internal/outbox"
	"github.com/nextlevelbuilder/agentmemory/internal/segment"
	"github.com/nextlevelbuilder/agentmemory/internal/storage"
	"github.com/nextlevelbuilder/agentmemory/internal/summarizer"
	"github.com/nextlevelbuilder/agentmemory/internal/toc"
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

func newEvent(id string, ts int64, sessionID, text string) model.Event {
	return model.Event{EventID: id, SessionID: sessionID, TimestampMs: ts, EventType: model.EventUserMessage, Role: model.RoleUser, Text: text}
}

func TestDrainFeedsEventsAndEmitsNoSegmentBelowThreshold(t *testing.T) {
	eng := openEngine(t)
	seq, err := outbox.NewSequencer(eng)
	if err != nil {
		t.Fatalf("NewSequencer: %v", err)
	}
	svc := ingest.New(eng, seq)

	ev := newEvent(idgen.NewEventID(1000), 1000, "session-1", "hello there")
	if _, err := svc.IngestEvent(ev); err != nil {
		t.Fatalf("IngestEvent: %v", err)
	}

	cfg := config.SegmentationConfig{TimeThresholdMs: 1_800_000, TokenThreshold: 4000, OverlapTimeMs: 300_000, OverlapTokens: 500}
	registry := segment.NewRegistry(cfg, nil)
	tocBuilder := toc.NewBuilder(eng, summarizer.MockCapability{}, func() int64 { return 2000 })
	proc := outbox.NewProcessor(eng, registry, tocBuilder, 0)

	processed, err := proc.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if processed != 1 {
		t.Fatalf("processed = %d, want 1", processed)
	}

	remaining, err := eng.PrefixScan(storage.PartitionOutbox, idgen.OutboxKeyPrefix(), idgen.PrefixUpperBound(idgen.OutboxKeyPrefix()), 0)
	if err != nil {
		t.Fatalf("PrefixScan: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("outbox still has %d entries after a successful drain, want 0", len(remaining))
	}
}

func TestDrainEmitsSegmentAndBuildsTocNodeOnTimeGap(t *testing.T) {
	eng := openEngine(t)
	seq, err := outbox.NewSequencer(eng)
	if err != nil {
		t.Fatalf("NewSequencer: %v", err)
	}
	svc := ingest.New(eng, seq)

	session := "session-1"
	times := []int64{0, 60_000, 120_000, 1_920_001}
	for i, ts := range times {
		ev := newEvent(idgen.NewEventID(ts), ts, session, "message")
		if _, err := svc.IngestEvent(ev); err != nil {
			t.Fatalf("IngestEvent %d: %v", i, err)
		}
	}

	cfg := config.SegmentationConfig{TimeThresholdMs: 1_800_000, TokenThreshold: 4000, OverlapTimeMs: 300_000, OverlapTokens: 500}
	registry := segment.NewRegistry(cfg, nil)
	tocBuilder := toc.NewBuilder(eng, summarizer.MockCapability{}, func() int64 { return 2_000_000 })
	proc := outbox.NewProcessor(eng, registry, tocBuilder, 0)

	processed, err := proc.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if processed != len(times) {
		t.Fatalf("processed = %d, want %d", processed, len(times))
	}

	dayID := idgen.DayNodeID(0)
	data, found, err := eng.Get(storage.PartitionTocLatest, idgen.TocLatestKey(dayID))
	if err != nil || !found {
		t.Fatalf("day node missing after drain: found=%v err=%v", found, err)
	}
	day, err := model.UnmarshalTocNode(data)
	if err != nil {
		t.Fatalf("UnmarshalTocNode: %v", err)
	}
	if len(day.ChildNodeIDs) != 1 {
		t.Fatalf("day.ChildNodeIDs = %v, want exactly 1 segment (the 4th event stays in progress)", day.ChildNodeIDs)
	}
}

func TestDrainIsIdempotentOnReprocessing(t *testing.T) {
	eng := openEngine(t)
	seq, err := outbox.NewSequencer(eng)
	if err != nil {
		t.Fatalf("NewSequencer: %v", err)
	}
	svc := ingest.New(eng, seq)

	ev := newEvent(idgen.NewEventID(1000), 1000, "session-1", "hello")
	if _, err := svc.IngestEvent(ev); err != nil {
		t.Fatalf("IngestEvent: %v", err)
	}

	cfg := config.SegmentationConfig{TimeThresholdMs: 1_800_000, TokenThreshold: 4000, OverlapTimeMs: 300_000, OverlapTokens: 500}
	registry := segment.NewRegistry(cfg, nil)
	tocBuilder := toc.NewBuilder(eng, summarizer.MockCapability{}, func() int64 { return 2000 })
	proc := outbox.NewProcessor(eng, registry, tocBuilder, 0)

	if _, err := proc.Drain(context.Background()); err != nil {
		t.Fatalf("first Drain: %v", err)
	}
	processed, err := proc.Drain(context.Background())
	if err != nil {
		t.Fatalf("second Drain: %v", err)
	}
	if processed != 0 {
		t.Errorf("second Drain processed %d entries, want 0 (outbox already empty)", processed)
	}
}

func TestDrainHonorsContextCancellationBetweenEntries(t *testing.T) {
	eng := openEngine(t)
	seq, err := outbox.NewSequencer(eng)
	if err != nil {
		t.Fatalf("NewSequencer: %v", err)
	}
	svc := ingest.New(eng, seq)

	for i, ts := range []int64{1000, 2000} {
		ev := newEvent(idgen.NewEventID(ts), ts, "session-1", "msg")
		if _, err := svc.IngestEvent(ev); err != nil {
			t.Fatalf("IngestEvent %d: %v", i, err)
		}
	}

	cfg := config.SegmentationConfig{TimeThresholdMs: 1_800_000, TokenThreshold: 4000, OverlapTimeMs: 300_000, OverlapTokens: 500}
	registry := segment.NewRegistry(cfg, nil)
	tocBuilder := toc.NewBuilder(eng, summarizer.MockCapability{}, func() int64 { return 3000 })
	proc := outbox.NewProcessor(eng, registry, tocBuilder, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	time.Sleep(time.Millisecond)

	_, err = proc.Drain(ctx)
	if err == nil {
		t.Fatalf("expected an error from an already-canceled context")
	}
}
