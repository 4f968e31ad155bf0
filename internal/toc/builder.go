// Package toc implements the TOC hierarchy builder (spec.md §4.6): turns a
// freshly emitted segment into a versioned segment node plus grips, and
// ensures the Day/Week/Month/Year parent lineage above it exists.
package toc

import (
	"context"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/agentmemory/internal/apperr"
	"github.com/nextlevelbuilder/agentmemory/internal/grip"
	"github.com/nextlevelbuilder/agentmemory/internal/idgen"
	"github.com/nextlevelbuilder/agentmemory/internal/model"
	"github.com/nextlevelbuilder/agentmemory/internal/storage"
	"github.com/nextlevelbuilder/agentmemory/internal/summarizer"
)

// Builder turns emitted segments into TOC nodes (spec.md §4.6).
type Builder struct {
	eng   *storage.Engine
	capa  summarizer.Capability
	clock func() int64
}

// NewBuilder returns a Builder writing through eng and summarizing with
// capa. clock supplies CreatedAt timestamps for new node versions; pass
// nil to use time.Now.
func NewBuilder(eng *storage.Engine, capa summarizer.Capability, clock func() int64) *Builder {
	if clock == nil {
		clock = func() int64 { return time.Now().UnixMilli() }
	}
	return &Builder{eng: eng, capa: capa, clock: clock}
}

// BuildSegment runs the full §4.6 algorithm for one just-emitted segment,
// writes it in its own atomic batch, and returns the segment node id it
// created. Callers that must fold this write into a larger atomic batch
// (the outbox processor, which deletes the triggering entry in the same
// batch) should call BuildSegmentOps instead.
func (b *Builder) BuildSegment(ctx context.Context, seg *model.Segment) (string, error) {
	nodeID, ops, err := b.BuildSegmentOps(ctx, seg)
	if err != nil {
		return "", err
	}
	if err := b.eng.WriteBatch(ops); err != nil {
		return "", err
	}
	return nodeID, nil
}

// BuildSegmentOps runs the full §4.6 algorithm and returns the write
// batch without applying it, so the caller can combine it with other ops
// into one atomic commit.
func (b *Builder) BuildSegmentOps(ctx context.Context, seg *model.Segment) (string, []storage.WriteOp, error) {
	if seg == nil || len(seg.Events) == 0 {
		return "", nil, apperr.New(apperr.KindValidation, "toc.BuildSegmentOps", fmt.Errorf("segment has no events"))
	}

	nodeID := idgen.SegmentNodeID(seg.StartTime)
	title := segmentTitle(seg)

	allEvents := markOverlap(seg)

	summary, err := b.capa.SummarizeEvents(ctx, allEvents)
	if err != nil {
		return "", nil, apperr.New(apperr.KindSummarizer, "toc.BuildSegmentOps: summarize_events", err)
	}

	var grips []model.Grip
	bullets := make([]model.Bullet, 0, len(summary.Bullets))
	for _, text := range summary.Bullets {
		bulletGrips := grip.ExtractForBullet(text, allEvents, nodeID)
		ids := make([]string, 0, len(bulletGrips))
		for _, g := range bulletGrips {
			ids = append(ids, g.GripID)
		}
		grips = append(grips, bulletGrips...)
		bullets = append(bullets, model.Bullet{Text: text, GripIDs: ids})
	}

	node := &model.TocNode{
		NodeID:    nodeID,
		Level:     model.LevelSegment,
		Title:     title,
		Bullets:   bullets,
		Keywords:  summary.Keywords,
		StartTime: seg.StartTime,
		EndTime:   seg.EndTime,
		Version:   1,
		CreatedAt: b.clock(),
	}

	nodeOps, err := putNodeOps(node)
	if err != nil {
		return "", nil, err
	}
	ops := append([]storage.WriteOp{}, nodeOps...)
	for _, g := range grips {
		gg := g
		gripOps, err := putGripOps(&gg)
		if err != nil {
			return "", nil, err
		}
		ops = append(ops, gripOps...)
	}

	parentOps, err := b.ensureLineage(nodeID, model.LevelSegment, seg.StartTime)
	if err != nil {
		return "", nil, err
	}
	ops = append(ops, parentOps...)

	return nodeID, ops, nil
}

// markOverlap returns overlap events followed by primary events, copying
// overlap events so the `_overlap` metadata flag never mutates the
// original records (spec.md §4.6 step 2).
func markOverlap(seg *model.Segment) []model.Event {
	out := make([]model.Event, 0, len(seg.OverlapEvents)+len(seg.Events))
	for _, ev := range seg.OverlapEvents {
		marked := ev
		meta := make(map[string]string, len(ev.Metadata)+1)
		for k, v := range ev.Metadata {
			meta[k] = v
		}
		meta[model.OverlayFlag] = "true"
		marked.Metadata = meta
		out = append(out, marked)
	}
	out = append(out, seg.Events...)
	return out
}

func segmentTitle(seg *model.Segment) string {
	t := time.UnixMilli(seg.StartTime).UTC()
	return fmt.Sprintf("Segment %s", t.Format("2006-01-02 15:04"))
}

func putNodeOps(node *model.TocNode) ([]storage.WriteOp, error) {
	data, err := node.Marshal()
	if err != nil {
		return nil, apperr.New(apperr.KindSerialization, "toc.putNodeOps", err)
	}
	return []storage.WriteOp{
		{Partition: storage.PartitionTocNodes, Key: idgen.TocNodeVersionKey(node.NodeID, node.Version), Value: data},
		{Partition: storage.PartitionTocLatest, Key: idgen.TocLatestKey(node.NodeID), Value: data},
	}, nil
}

func putGripOps(g *model.Grip) ([]storage.WriteOp, error) {
	data, err := g.Marshal()
	if err != nil {
		return nil, apperr.New(apperr.KindSerialization, "toc.putGripOps", err)
	}
	return []storage.WriteOp{
		{Partition: storage.PartitionGrips, Key: idgen.GripKey(g.GripID), Value: data},
		{Partition: storage.PartitionGrips, Key: idgen.GripNodeIndexKey(g.TocNodeID, g.GripID), Value: []byte{}},
	}, nil
}
