// Package segment implements the segmentation engine (spec.md §4.3): it
// partitions a session's chronological event stream into coherent
// conversational segments, each distinct, with a bounded overlap window
// carried into the next segment for summarizer context.
package segment

import (
	"github.com/nextlevelbuilder/agentmemory/internal/config"
	"github.com/nextlevelbuilder/agentmemory/internal/model"
)

// Builder accumulates one session's events into Segments, applying the
// boundary algorithm in priority order on every Push (spec.md §4.3):
//  1. a time gap strictly greater than TimeThresholdMs from the previous
//     event forces an emit before the new event is appended;
//  2. otherwise, appending the new event's tokens would exceed
//     TokenThreshold, which also forces an emit first;
//  3. otherwise, the event is simply appended.
//
// Builder is not safe for concurrent use; callers needing concurrent
// per-session builders should use Registry.
type Builder struct {
	cfg     config.SegmentationConfig
	counter TokenCounter

	events  []model.Event
	overlap []model.Event // carried from the previous emission, for the *next* segment to start with
	tokens  int
	last    *model.Event
}

// NewBuilder creates a Builder for a fresh session with no prior segment.
func NewBuilder(cfg config.SegmentationConfig, counter TokenCounter) *Builder {
	if counter == nil {
		counter = ApproxTokenCounter{}
	}
	return &Builder{cfg: cfg, counter: counter}
}

func (b *Builder) tokenCost(ev model.Event) int {
	text := ev.Text
	if len(text) > b.cfg.MaxToolResultChars && ev.EventType == model.EventToolResult {
		text = text[:b.cfg.MaxToolResultChars]
	}
	return b.counter.Count(text)
}

// Push appends ev to the in-progress segment, possibly emitting the
// previous segment first. emitted is non-nil exactly when a boundary fired.
// Events must be supplied per session in (timestamp_ms, event_id) order
// (spec.md §5); ties are broken lexicographically by event_id, which is the
// caller's ordering responsibility, not the Builder's — Push simply trusts
// its input order.
func (b *Builder) Push(ev model.Event) (emitted *model.Segment) {
	cost := b.tokenCost(ev)

	if b.last != nil {
		gap := ev.TimestampMs - b.last.TimestampMs
		switch {
		case gap > b.cfg.TimeThresholdMs:
			emitted = b.emit()
		case b.tokens+cost > b.cfg.TokenThreshold:
			emitted = b.emit()
		}
	}

	b.events = append(b.events, ev)
	b.tokens += cost
	b.last = &ev
	return emitted
}

// Flush emits whatever segment is in progress, or nil if empty (spec.md §8:
// "Empty segment: never emitted"). Used when a session ends or the builder
// is evicted from a registry.
func (b *Builder) Flush() *model.Segment {
	if len(b.events) == 0 {
		return nil
	}
	return b.emit()
}

// emit finalizes the current segment, computes the next segment's overlap
// window by walking backward from the tail, and resets internal state.
func (b *Builder) emit() *model.Segment {
	events := b.events
	startTime := events[0].TimestampMs
	endTime := events[len(events)-1].TimestampMs

	seg := &model.Segment{
		SegmentID:     segmentID(events[0], events[len(events)-1]),
		Events:        events,
		OverlapEvents: b.overlap,
		StartTime:     startTime,
		EndTime:       endTime,
		TokenCount:    b.tokens,
	}

	b.overlap = computeOverlap(events, b.cfg, b.counter)
	b.events = nil
	b.tokens = 0
	b.last = nil

	return seg
}

// computeOverlap walks backward from the tail of a just-emitted segment's
// events, collecting events until either OverlapTimeMs worth of time or
// OverlapTokens worth of tokens is covered, whichever bound is reached
// first (spec.md §4.3). The returned events are copies for the next
// segment; they are tagged with the overlay metadata flag so the
// summarizer can weight them as context rather than new material
// (spec.md §4.6 step 2).
func computeOverlap(events []model.Event, cfg config.SegmentationConfig, counter TokenCounter) []model.Event {
	if len(events) == 0 {
		return nil
	}
	tailTime := events[len(events)-1].TimestampMs

	var picked []model.Event
	tokens := 0
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		if tailTime-ev.TimestampMs > cfg.OverlapTimeMs {
			break
		}
		picked = append(picked, markOverlay(ev))
		tokens += counter.Count(ev.Text)
		if tokens >= cfg.OverlapTokens {
			break
		}
	}

	// picked was built tail-to-head; reverse to chronological order.
	for i, j := 0, len(picked)-1; i < j; i, j = i+1, j-1 {
		picked[i], picked[j] = picked[j], picked[i]
	}
	return picked
}

func markOverlay(ev model.Event) model.Event {
	cp := ev
	md := make(map[string]string, len(ev.Metadata)+1)
	for k, v := range ev.Metadata {
		md[k] = v
	}
	md[model.OverlayFlag] = "true"
	cp.Metadata = md
	return cp
}

// segmentID derives a stable internal identifier for a just-emitted segment
// from its first and last event; this is distinct from the TOC segment
// node id (idgen.SegmentNodeID), which the hierarchy builder assigns only
// once the segment is turned into a TocNode.
func segmentID(first, last model.Event) string {
	return first.EventID + ":" + last.EventID
}
