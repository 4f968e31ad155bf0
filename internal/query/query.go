// Package query implements the progressive-disclosure read surface (spec.md
// §4.10): TOC root listing, single-node fetch, paginated child browsing,
// event range scans, and bounded grip expansion. Nothing here writes.
package query

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/nextlevelbuilder/agentmemory/internal/apperr"
	"github.com/nextlevelbuilder/agentmemory/internal/idgen"
	"github.com/nextlevelbuilder/agentmemory/internal/model"
	"github.com/nextlevelbuilder/agentmemory/internal/storage"
)

// gripExpansionWindow bounds ExpandGrip's context window regardless of the
// requested before/after counts (spec.md §4.10).
const gripExpansionWindow = time.Hour

// Service answers read queries against the storage engine. It holds no
// state of its own beyond the engine handle.
type Service struct {
	eng *storage.Engine
}

// New returns a Service reading through eng.
func New(eng *storage.Engine) *Service {
	return &Service{eng: eng}
}

// BrowseResult is BrowseToc's response shape.
type BrowseResult struct {
	Children  []*model.TocNode
	NextToken string
	HasMore   bool
}

// EventsResult is GetEvents's response shape.
type EventsResult struct {
	Events  []model.Event
	HasMore bool
}

// GripExpansion is ExpandGrip's response shape.
type GripExpansion struct {
	Grip          *model.Grip
	EventsBefore  []model.Event
	ExcerptEvents []model.Event
	EventsAfter   []model.Event
}

// GetTocRoot returns every Year node, most recent first.
func (s *Service) GetTocRoot() ([]*model.TocNode, error) {
	prefix := idgen.TocLatestLevelPrefix("year")
	kvs, err := s.eng.PrefixScan(storage.PartitionTocLatest, prefix, idgen.PrefixUpperBound(prefix), 0)
	if err != nil {
		return nil, apperr.New(apperr.KindStorage, "query.GetTocRoot", err)
	}

	nodes := make([]*model.TocNode, 0, len(kvs))
	for _, kv := range kvs {
		n, err := model.UnmarshalTocNode(kv.Value)
		if err != nil {
			continue // spec.md §7: broken stored data is skipped, not fatal
		}
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].NodeID > nodes[j].NodeID })
	return nodes, nil
}

// GetNode returns the latest version of nodeID, or nil if it does not exist.
func (s *Service) GetNode(nodeID string) (*model.TocNode, error) {
	if nodeID == "" {
		return nil, apperr.New(apperr.KindValidation, "query.GetNode", fmt.Errorf("node_id is empty"))
	}
	return s.getLatest(nodeID)
}

// BrowseToc returns up to limit of parentID's children, starting after the
// position continuationToken encodes (empty token means the start). Children
// are returned in child_node_ids order, which is chronological.
func (s *Service) BrowseToc(parentID string, limit int, continuationToken string) (BrowseResult, error) {
	if parentID == "" {
		return BrowseResult{}, apperr.New(apperr.KindValidation, "query.BrowseToc", fmt.Errorf("parent_id is empty"))
	}

	parent, err := s.getLatest(parentID)
	if err != nil {
		return BrowseResult{}, err
	}
	if parent == nil {
		return BrowseResult{}, nil
	}

	offset, err := decodeToken(continuationToken)
	if err != nil {
		return BrowseResult{}, apperr.New(apperr.KindValidation, "query.BrowseToc", err)
	}

	ids := parent.ChildNodeIDs
	if offset > len(ids) {
		offset = len(ids)
	}
	remaining := ids[offset:]

	if limit <= 0 {
		return BrowseResult{HasMore: len(remaining) > 0}, nil
	}

	take := remaining
	hasMore := false
	if len(take) > limit {
		take = take[:limit]
		hasMore = true
	}

	children := make([]*model.TocNode, 0, len(take))
	for _, id := range take {
		n, err := s.getLatest(id)
		if err != nil {
			return BrowseResult{}, err
		}
		if n != nil {
			children = append(children, n)
		}
	}

	result := BrowseResult{Children: children, HasMore: hasMore}
	if hasMore {
		result.NextToken = encodeToken(offset + limit)
	}
	return result, nil
}

// GetEvents returns every event with fromMs <= timestamp_ms <= toMs,
// ascending, up to limit.
func (s *Service) GetEvents(fromMs, toMs int64, limit int) (EventsResult, error) {
	if fromMs < 0 || toMs < fromMs {
		return EventsResult{}, apperr.New(apperr.KindValidation, "query.GetEvents", fmt.Errorf("invalid range [%d, %d]", fromMs, toMs))
	}

	start := idgen.EventKeyForTime(fromMs)
	end := idgen.EventKeyForTime(toMs + 1)

	scanLimit := 0
	if limit > 0 {
		scanLimit = limit + 1
	}
	kvs, err := s.eng.PrefixScan(storage.PartitionEvents, start, end, scanLimit)
	if err != nil {
		return EventsResult{}, apperr.New(apperr.KindStorage, "query.GetEvents", err)
	}

	hasMore := false
	if limit > 0 && len(kvs) > limit {
		kvs = kvs[:limit]
		hasMore = true
	}

	events := make([]model.Event, 0, len(kvs))
	for _, kv := range kvs {
		ev, err := model.UnmarshalEvent(kv.Value)
		if err != nil {
			continue
		}
		events = append(events, *ev)
	}
	return EventsResult{Events: events, HasMore: hasMore}, nil
}

// ExpandGrip returns the grip's anchored excerpt events plus up to
// eventsBefore/eventsAfter neighbors, all bounded to ±1 hour around the
// grip's timestamp (spec.md §4.10).
func (s *Service) ExpandGrip(gripID string, eventsBefore, eventsAfter int) (GripExpansion, error) {
	if gripID == "" {
		return GripExpansion{}, apperr.New(apperr.KindValidation, "query.ExpandGrip", fmt.Errorf("grip_id is empty"))
	}

	data, found, err := s.eng.Get(storage.PartitionGrips, idgen.GripKey(gripID))
	if err != nil {
		return GripExpansion{}, apperr.New(apperr.KindStorage, "query.ExpandGrip", err)
	}
	if !found {
		return GripExpansion{}, nil
	}
	g, err := model.UnmarshalGrip(data)
	if err != nil {
		return GripExpansion{}, nil // spec.md §7: broken stored data is skipped, not fatal
	}

	windowMs := gripExpansionWindow.Milliseconds()
	from := g.TimestampMs - windowMs
	if from < 0 {
		from = 0
	}
	to := g.TimestampMs + windowMs

	window, err := s.eng.PrefixScan(storage.PartitionEvents, idgen.EventKeyForTime(from), idgen.EventKeyForTime(to+1), 0)
	if err != nil {
		return GripExpansion{}, apperr.New(apperr.KindStorage, "query.ExpandGrip", err)
	}

	events := make([]model.Event, 0, len(window))
	for _, kv := range window {
		ev, err := model.UnmarshalEvent(kv.Value)
		if err != nil {
			continue
		}
		events = append(events, *ev)
	}

	startIdx, endIdx := -1, -1
	for i, ev := range events {
		if ev.EventID == g.EventIDStart {
			startIdx = i
		}
		if ev.EventID == g.EventIDEnd {
			endIdx = i
		}
	}

	result := GripExpansion{Grip: g}
	if startIdx == -1 || endIdx == -1 || endIdx < startIdx {
		return result, nil
	}

	result.ExcerptEvents = events[startIdx : endIdx+1]

	beforeStart := startIdx - eventsBefore
	if beforeStart < 0 {
		beforeStart = 0
	}
	result.EventsBefore = events[beforeStart:startIdx]

	afterEnd := endIdx + 1 + eventsAfter
	if afterEnd > len(events) {
		afterEnd = len(events)
	}
	result.EventsAfter = events[endIdx+1 : afterEnd]

	return result, nil
}

// GripsForNode returns every grip indexed under nodeID (spec.md §4.5's
// node:{node_id}:{grip_id} secondary index), in grip id order.
func (s *Service) GripsForNode(nodeID string) ([]*model.Grip, error) {
	if nodeID == "" {
		return nil, apperr.New(apperr.KindValidation, "query.GripsForNode", fmt.Errorf("node_id is empty"))
	}

	prefix := idgen.GripNodeIndexPrefix(nodeID)
	kvs, err := s.eng.PrefixScan(storage.PartitionGrips, prefix, idgen.PrefixUpperBound(prefix), 0)
	if err != nil {
		return nil, apperr.New(apperr.KindStorage, "query.GripsForNode", err)
	}

	grips := make([]*model.Grip, 0, len(kvs))
	for _, kv := range kvs {
		gripID := string(kv.Key[len(prefix):])
		data, found, err := s.eng.Get(storage.PartitionGrips, idgen.GripKey(gripID))
		if err != nil {
			return nil, apperr.New(apperr.KindStorage, "query.GripsForNode", err)
		}
		if !found {
			continue
		}
		g, err := model.UnmarshalGrip(data)
		if err != nil {
			continue // spec.md §7: broken stored data is skipped, not fatal
		}
		grips = append(grips, g)
	}
	return grips, nil
}

func (s *Service) getLatest(nodeID string) (*model.TocNode, error) {
	data, found, err := s.eng.Get(storage.PartitionTocLatest, idgen.TocLatestKey(nodeID))
	if err != nil {
		return nil, apperr.New(apperr.KindStorage, "query.getLatest", err)
	}
	if !found {
		return nil, nil
	}
	n, err := model.UnmarshalTocNode(data)
	if err != nil {
		return nil, nil // spec.md §7: broken stored data is skipped, not fatal
	}
	return n, nil
}

// encodeToken/decodeToken keep the continuation token opaque to callers
// (spec.md §4.10) while staying a plain integer offset underneath.
func encodeToken(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.Itoa(offset)))
}

func decodeToken(token string) (int, error) {
	if token == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, fmt.Errorf("malformed continuation token")
	}
	offset, err := strconv.Atoi(string(raw))
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("malformed continuation token")
	}
	return offset, nil
}
