// Package ingest implements the durable, idempotent IngestEvent operation
// (spec.md §4.2): validate, deduplicate, and atomically persist an event
// with its paired outbox entry.
package ingest

import (
	"time"

	"github.com/nextlevelbuilder/agentmemory/internal/apperr"
	"github.com/nextlevelbuilder/agentmemory/internal/idgen"
	"github.com/nextlevelbuilder/agentmemory/internal/model"
	"github.com/nextlevelbuilder/agentmemory/internal/outbox"
	"github.com/nextlevelbuilder/agentmemory/internal/storage"
)

// Service ingests events into the durable log, pairing each with an outbox
// entry in the same atomic batch (spec.md §4.2).
type Service struct {
	eng *storage.Engine
	seq *outbox.Sequencer
	// now is overridable in tests; defaults to time.Now().
	now func() time.Time
}

// New builds an ingest Service over eng, using seq for outbox sequence
// assignment (spec.md §4.2 step 5).
func New(eng *storage.Engine, seq *outbox.Sequencer) *Service {
	return &Service{eng: eng, seq: seq, now: time.Now}
}

// Result is the IngestEvent response (spec.md §6's ingest contract).
type Result struct {
	EventID string
	Created bool
}

// IngestEvent validates, deduplicates, and durably persists ev, pairing it
// with an UpdateToc outbox entry (spec.md §4.2). Duplicate EventID is a
// successful no-op: Created is false and no error is returned.
func (s *Service) IngestEvent(ev model.Event) (Result, error) {
	if err := validate(ev, s.now()); err != nil {
		return Result{}, err
	}

	u, err := idgen.ULIDFromEventID(ev.EventID)
	if err != nil {
		return Result{}, apperr.New(apperr.KindValidation, "ingest.IngestEvent", err)
	}
	// Normalize to the canonical ULID string so the key this event is
	// stored under and the EventID recorded in its outbox entry always
	// agree, even when the caller supplied a non-canonical (e.g. lowercase)
	// ULID string.
	ev.EventID = u.String()
	key := idgen.EventKey(ev.TimestampMs, ev.EventID)

	if _, found, err := s.eng.Get(storage.PartitionEvents, key); err != nil {
		return Result{}, apperr.New(apperr.KindStorage, "ingest.IngestEvent", err)
	} else if found {
		return Result{EventID: ev.EventID, Created: false}, nil
	}

	eventBytes, err := ev.Marshal()
	if err != nil {
		return Result{}, apperr.New(apperr.KindSerialization, "ingest.IngestEvent", err)
	}

	entry := model.OutboxEntry{
		Sequence:    s.seq.Next(),
		EventID:     ev.EventID,
		TimestampMs: ev.TimestampMs,
		Action:      model.ActionUpdateToc,
	}
	entryBytes, err := entry.Marshal()
	if err != nil {
		return Result{}, apperr.New(apperr.KindSerialization, "ingest.IngestEvent", err)
	}

	ops := []storage.WriteOp{
		{Partition: storage.PartitionEvents, Key: key, Value: eventBytes},
		{Partition: storage.PartitionOutbox, Key: idgen.OutboxKey(entry.Sequence), Value: entryBytes},
	}
	if err := s.eng.WriteBatch(ops); err != nil {
		return Result{}, apperr.New(apperr.KindStorage, "ingest.IngestEvent", err)
	}

	return Result{EventID: ev.EventID, Created: true}, nil
}

func validate(ev model.Event, now time.Time) error {
	if ev.EventID == "" {
		return apperr.Newf(apperr.KindValidation, "ingest.validate", "event_id is required")
	}
	if _, err := idgen.ULIDFromEventID(ev.EventID); err != nil {
		return apperr.Newf(apperr.KindValidation, "ingest.validate", "event_id %q is not a valid ulid: %v", ev.EventID, err)
	}
	if ev.SessionID == "" {
		return apperr.Newf(apperr.KindValidation, "ingest.validate", "session_id is required")
	}
	if ev.TimestampMs < 0 {
		return apperr.Newf(apperr.KindValidation, "ingest.validate", "timestamp_ms must not be negative")
	}
	if ev.TimestampMs > now.UnixMilli() {
		return apperr.Newf(apperr.KindValidation, "ingest.validate", "timestamp_ms %d is in the future", ev.TimestampMs)
	}
	return nil
}
