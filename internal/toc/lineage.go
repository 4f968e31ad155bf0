package toc

import (
	"fmt"
	"time"

	"github.com/nextlevelbuilder/agentmemory/internal/apperr"
	"github.com/nextlevelbuilder/agentmemory/internal/idgen"
	"github.com/nextlevelbuilder/agentmemory/internal/model"
	"github.com/nextlevelbuilder/agentmemory/internal/storage"
)

// ensureLineage walks Day, Week, Month, Year in order (spec.md §4.6 step
// 5), creating a version-1 placeholder for any level that does not yet
// exist and wiring each node's id into its parent's child_node_ids. The
// caller's childID (the segment node id) is always added to the Day
// node's children, even when the Day node already exists.
func (b *Builder) ensureLineage(childID string, childLevel model.Level, tsMs int64) ([]storage.WriteOp, error) {
	if childLevel != model.LevelSegment {
		return nil, apperr.New(apperr.KindValidation, "toc.ensureLineage", fmt.Errorf("unsupported child level %q", childLevel))
	}

	levels := []struct {
		level  model.Level
		nodeID string
	}{
		{model.LevelDay, idgen.DayNodeID(tsMs)},
		{model.LevelWeek, idgen.WeekNodeID(tsMs)},
		{model.LevelMonth, idgen.MonthNodeID(tsMs)},
		{model.LevelYear, idgen.YearNodeID(tsMs)},
	}

	var ops []storage.WriteOp
	currentChildID := childID

	for _, lv := range levels {
		node, existed, err := b.getLatestNode(lv.nodeID)
		if err != nil {
			return nil, err
		}

		created := false
		if !existed {
			node = &model.TocNode{
				NodeID:      lv.nodeID,
				Level:       lv.level,
				Title:       placeholderTitle(lv.level, tsMs),
				StartTime:   periodStart(lv.level, tsMs),
				EndTime:     periodEnd(lv.level, tsMs),
				Version:     1,
				CreatedAt:   b.clock(),
				Placeholder: true,
			}
			created = true
		}

		before := len(node.ChildNodeIDs)
		node.AddChildOnce(currentChildID)
		mutated := created || len(node.ChildNodeIDs) != before

		if mutated {
			if !created {
				node.Version++
			}
			nodeOps, err := putNodeOps(node)
			if err != nil {
				return nil, err
			}
			ops = append(ops, nodeOps...)
		}

		currentChildID = lv.nodeID
	}

	return ops, nil
}

func (b *Builder) getLatestNode(nodeID string) (*model.TocNode, bool, error) {
	data, found, err := b.eng.Get(storage.PartitionTocLatest, idgen.TocLatestKey(nodeID))
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	node, err := model.UnmarshalTocNode(data)
	if err != nil {
		return nil, false, apperr.New(apperr.KindSerialization, "toc.getLatestNode", err)
	}
	return node, true, nil
}

func placeholderTitle(level model.Level, tsMs int64) string {
	t := time.UnixMilli(tsMs).UTC()
	switch level {
	case model.LevelDay:
		return t.Format("2006-01-02")
	case model.LevelWeek:
		isoYear, isoWeek := t.ISOWeek()
		return fmt.Sprintf("%04d, Week %02d", isoYear, isoWeek)
	case model.LevelMonth:
		return t.Format("January 2006")
	case model.LevelYear:
		return t.Format("2006")
	default:
		return string(level)
	}
}

func periodStart(level model.Level, tsMs int64) int64 {
	t := time.UnixMilli(tsMs).UTC()
	switch level {
	case model.LevelDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).UnixMilli()
	case model.LevelWeek:
		weekday := int(t.Weekday())
		if weekday == 0 { // Sunday: ISO week starts Monday, so treat Sunday as day 7
			weekday = 7
		}
		monday := t.AddDate(0, 0, -(weekday - 1))
		return time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, time.UTC).UnixMilli()
	case model.LevelMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	case model.LevelYear:
		return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	default:
		return tsMs
	}
}

func periodEnd(level model.Level, tsMs int64) int64 {
	start := time.UnixMilli(periodStart(level, tsMs)).UTC()
	var next time.Time
	switch level {
	case model.LevelDay:
		next = start.AddDate(0, 0, 1)
	case model.LevelWeek:
		next = start.AddDate(0, 0, 7)
	case model.LevelMonth:
		next = start.AddDate(0, 1, 0)
	case model.LevelYear:
		next = start.AddDate(1, 0, 0)
	default:
		return tsMs
	}
	return next.UnixMilli() - 1
}
