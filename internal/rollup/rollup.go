// Package rollup implements the Day/Week/Month/Year rollup jobs (spec.md
// §4.7): one job per non-Segment level, each folding its due children's
// summaries into a new parent node version.
package rollup

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/nextlevelbuilder/agentmemory/internal/apperr"
	"github.com/nextlevelbuilder/agentmemory/internal/idgen"
	"github.com/nextlevelbuilder/agentmemory/internal/model"
	"github.com/nextlevelbuilder/agentmemory/internal/storage"
	"github.com/nextlevelbuilder/agentmemory/internal/summarizer"
)

// Job rolls up one TOC level (spec.md §4.7).
type Job struct {
	eng     *storage.Engine
	capa    summarizer.Capability
	level   model.Level
	jobName string
	minAge  time.Duration
	clock   func() int64
}

// NewJob returns a Job for level, named jobName for checkpointing, using
// minAge as the period-close grace window before a node becomes eligible.
// clock supplies both "now" and new-version CreatedAt timestamps; nil uses
// time.Now.
func NewJob(eng *storage.Engine, capa summarizer.Capability, level model.Level, jobName string, minAge time.Duration, clock func() int64) *Job {
	if clock == nil {
		clock = func() int64 { return time.Now().UnixMilli() }
	}
	return &Job{eng: eng, capa: capa, level: level, jobName: jobName, minAge: minAge, clock: clock}
}

// Run executes one pass: loads the checkpoint, finds due candidates, rolls
// each one up in turn, and returns how many it processed. A summarizer
// failure on one candidate stops the pass there, leaving that candidate (and
// everything after it) at its prior version — the checkpoint already
// reflects every candidate processed before the failure (spec.md §4.4,
// §4.7 step 5).
func (j *Job) Run(ctx context.Context) (int, error) {
	checkpoint, found, err := j.loadCheckpoint()
	if err != nil {
		return 0, err
	}
	since := int64(0)
	processedCount := int64(0)
	if found {
		since = checkpoint.LastProcessedTime
		processedCount = checkpoint.ProcessedCount
	}

	now := j.clock()
	candidates, err := j.findCandidates(since, now)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, candidate := range candidates {
		if err := j.rollupOne(ctx, candidate, &processedCount); err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

func (j *Job) rollupOne(ctx context.Context, candidate *model.TocNode, processedCount *int64) error {
	children, err := j.loadChildren(candidate.ChildNodeIDs)
	if err != nil {
		return err
	}
	sortChildren(children)

	childSummaries := make([]summarizer.Summary, 0, len(children))
	for _, c := range children {
		childSummaries = append(childSummaries, nodeToSummary(c))
	}

	result, err := j.capa.SummarizeChildren(ctx, childSummaries)
	if err != nil {
		return apperr.New(apperr.KindSummarizer, fmt.Sprintf("rollup[%s]: summarize_children", j.jobName), err)
	}

	// Re-read the candidate immediately before writing so a concurrently
	// appended child (added after discovery, before this write) is not lost.
	fresh, foundFresh, err := j.getLatestNode(candidate.NodeID)
	if err != nil {
		return err
	}
	if !foundFresh {
		fresh = candidate
	}

	bullets := make([]model.Bullet, 0, len(result.Bullets))
	for _, b := range result.Bullets {
		bullets = append(bullets, model.Bullet{Text: b})
	}

	updated := &model.TocNode{
		NodeID:       fresh.NodeID,
		Level:        fresh.Level,
		Title:        result.Title,
		Bullets:      bullets,
		Keywords:     result.Keywords,
		ChildNodeIDs: fresh.ChildNodeIDs,
		StartTime:    fresh.StartTime,
		EndTime:      fresh.EndTime,
		Version:      fresh.Version + 1,
		CreatedAt:    j.clock(),
		Placeholder:  false,
	}

	*processedCount++
	checkpoint := &model.Checkpoint{
		JobName:           j.jobName,
		Level:             j.level,
		LastProcessedTime: updated.EndTime,
		ProcessedCount:    *processedCount,
		CreatedAt:         j.clock(),
	}

	ops, err := putNodeAndCheckpointOps(updated, checkpoint)
	if err != nil {
		return err
	}
	return j.eng.WriteBatch(ops)
}

func sortChildren(children []*model.TocNode) {
	sort.Slice(children, func(i, k int) bool {
		if children[i].StartTime != children[k].StartTime {
			return children[i].StartTime < children[k].StartTime
		}
		return children[i].NodeID < children[k].NodeID
	})
}

func nodeToSummary(n *model.TocNode) summarizer.Summary {
	bullets := make([]string, 0, len(n.Bullets))
	for _, b := range n.Bullets {
		bullets = append(bullets, b.Text)
	}
	return summarizer.Summary{Title: n.Title, Bullets: bullets, Keywords: n.Keywords}
}

func (j *Job) loadChildren(ids []string) ([]*model.TocNode, error) {
	out := make([]*model.TocNode, 0, len(ids))
	for _, id := range ids {
		node, found, err := j.getLatestNode(id)
		if err != nil {
			return nil, err
		}
		if found {
			out = append(out, node)
		}
	}
	return out, nil
}

func (j *Job) getLatestNode(nodeID string) (*model.TocNode, bool, error) {
	data, found, err := j.eng.Get(storage.PartitionTocLatest, idgen.TocLatestKey(nodeID))
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	node, err := model.UnmarshalTocNode(data)
	if err != nil {
		return nil, false, apperr.New(apperr.KindSerialization, "rollup.getLatestNode", err)
	}
	return node, true, nil
}

// findCandidates scans every latest node at j.level and keeps those with
// end_time > since and end_time + min_age < now (spec.md §4.7 step 3),
// ordered by node id (which for Day/Week/Month/Year node id grammar is
// also chronological order).
func (j *Job) findCandidates(since, now int64) ([]*model.TocNode, error) {
	prefix := idgen.TocLatestLevelPrefix(levelSegment(j.level))
	entries, err := j.eng.PrefixScan(storage.PartitionTocLatest, prefix, idgen.PrefixUpperBound(prefix), 0)
	if err != nil {
		return nil, err
	}

	var out []*model.TocNode
	for _, kv := range entries {
		node, err := model.UnmarshalTocNode(kv.Value)
		if err != nil {
			return nil, apperr.New(apperr.KindSerialization, "rollup.findCandidates", err)
		}
		if node.EndTime > since && node.EndTime+int64(j.minAge/time.Millisecond) < now {
			out = append(out, node)
		}
	}
	return out, nil
}

func (j *Job) loadCheckpoint() (*model.Checkpoint, bool, error) {
	data, found, err := j.eng.Get(storage.PartitionCheckpoints, idgen.CheckpointKey(j.jobName))
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	cp, err := model.UnmarshalCheckpoint(data)
	if err != nil {
		return nil, false, apperr.New(apperr.KindSerialization, "rollup.loadCheckpoint", err)
	}
	return cp, true, nil
}

func putNodeAndCheckpointOps(node *model.TocNode, checkpoint *model.Checkpoint) ([]storage.WriteOp, error) {
	nodeData, err := node.Marshal()
	if err != nil {
		return nil, apperr.New(apperr.KindSerialization, "rollup: marshal node", err)
	}
	cpData, err := checkpoint.Marshal()
	if err != nil {
		return nil, apperr.New(apperr.KindSerialization, "rollup: marshal checkpoint", err)
	}
	return []storage.WriteOp{
		{Partition: storage.PartitionTocNodes, Key: idgen.TocNodeVersionKey(node.NodeID, node.Version), Value: nodeData},
		{Partition: storage.PartitionTocLatest, Key: idgen.TocLatestKey(node.NodeID), Value: nodeData},
		{Partition: storage.PartitionCheckpoints, Key: idgen.CheckpointKey(checkpoint.JobName), Value: cpData},
	}, nil
}

func levelSegment(level model.Level) string {
	switch level {
	case model.LevelDay:
		return "day"
	case model.LevelWeek:
		return "week"
	case model.LevelMonth:
		return "month"
	case model.LevelYear:
		return "year"
	default:
		return ""
	}
}
