package outbox

import (
	"context"

	"github.com/nextlevelbuilder/agentmemory/internal/apperr"
	"github.com/nextlevelbuilder/agentmemory/internal/idgen"
	"github.com/nextlevelbuilder/agentmemory/internal/model"
	"github.com/nextlevelbuilder/agentmemory/internal/segment"
	"github.com/nextlevelbuilder/agentmemory/internal/storage"
	"github.com/nextlevelbuilder/agentmemory/internal/toc"
)

// Processor is the scheduled outbox-drain job (spec.md §4.8): it scans the
// outbox from the smallest unprocessed sequence, feeds each event to the
// session's segment builder, and hands any emitted segment to the TOC
// builder, deleting the outbox entry once that work is durable.
type Processor struct {
	eng        *storage.Engine
	registry   *segment.Registry
	tocBuilder *toc.Builder
	batchSize  int
}

// NewProcessor returns a Processor driving registry/tocBuilder from entries
// read through eng. batchSize bounds how many entries one Drain call reads
// at once; 0 means unbounded.
func NewProcessor(eng *storage.Engine, registry *segment.Registry, tocBuilder *toc.Builder, batchSize int) *Processor {
	return &Processor{eng: eng, registry: registry, tocBuilder: tocBuilder, batchSize: batchSize}
}

// Drain processes every pending outbox entry reachable in one pass (bounded
// by batchSize), honoring ctx between entries (spec.md §5: "between
// batches in the outbox drain"). It returns how many entries it processed.
func (p *Processor) Drain(ctx context.Context) (int, error) {
	entries, err := p.eng.PrefixScan(storage.PartitionOutbox, idgen.OutboxKeyPrefix(), idgen.PrefixUpperBound(idgen.OutboxKeyPrefix()), p.batchSize)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, kv := range entries {
		if ctx.Err() != nil {
			return processed, apperr.New(apperr.KindStorage, "outbox.Drain", ctx.Err())
		}
		entry, err := model.UnmarshalOutboxEntry(kv.Value)
		if err != nil {
			return processed, apperr.New(apperr.KindSerialization, "outbox.Drain", err)
		}
		if err := p.processOne(ctx, kv.Key, entry); err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

func (p *Processor) processOne(ctx context.Context, key []byte, entry *model.OutboxEntry) error {
	if entry.Action != model.ActionUpdateToc {
		// No action currently produces IndexEvent (spec.md §4.2 step 4
		// always writes UpdateToc); delete it rather than reprocessing it
		// forever if one is ever seen.
		return p.eng.WriteBatch([]storage.WriteOp{{Partition: storage.PartitionOutbox, Key: key, Delete: true}})
	}

	event, err := p.loadEvent(entry)
	if err != nil {
		return err
	}

	builder := p.registry.GetOrCreate(event.SessionID)
	emitted := builder.Push(*event)

	ops := []storage.WriteOp{{Partition: storage.PartitionOutbox, Key: key, Delete: true}}

	if emitted != nil {
		_, tocOps, err := p.tocBuilder.BuildSegmentOps(ctx, emitted)
		if err != nil {
			return err
		}
		ops = append(ops, tocOps...)
	}

	return p.eng.WriteBatch(ops)
}

func (p *Processor) loadEvent(entry *model.OutboxEntry) (*model.Event, error) {
	key := idgen.EventKey(entry.TimestampMs, entry.EventID)
	data, found, err := p.eng.Get(storage.PartitionEvents, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperr.Newf(apperr.KindStorage, "outbox.loadEvent", "event %s missing for outbox entry", entry.EventID)
	}
	return model.UnmarshalEvent(data)
}
