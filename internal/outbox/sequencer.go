// Package outbox owns the pending-work queue's sequence numbering and the
// drain job that turns outbox entries into segment/TOC updates (spec.md
// §4.2 step 5, §4.8, §5, §9).
package outbox

import (
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/nextlevelbuilder/agentmemory/internal/apperr"
	"github.com/nextlevelbuilder/agentmemory/internal/idgen"
	"github.com/nextlevelbuilder/agentmemory/internal/storage"
)

// Sequencer hands out monotonic outbox sequence numbers. It is process-local
// and initialized once at startup from the maximum extant sequence already
// in the outbox partition (spec.md §4.2 step 5, §5, §9).
type Sequencer struct {
	next atomic.Uint64
}

// NewSequencer scans the outbox partition's largest key under a single read
// and initializes the counter to one past it, reconstructing process state
// after a crash (spec.md §5 "Crash model").
func NewSequencer(eng *storage.Engine) (*Sequencer, error) {
	entries, err := eng.PrefixScan(storage.PartitionOutbox, idgen.OutboxKeyPrefix(), idgen.PrefixUpperBound(idgen.OutboxKeyPrefix()), 0)
	if err != nil {
		return nil, apperr.New(apperr.KindStorage, "outbox.NewSequencer", err)
	}

	var maxSeq uint64
	for _, kv := range entries {
		seq, ok := parseSeqFromKey(kv.Key)
		if ok && seq > maxSeq {
			maxSeq = seq
		}
	}

	s := &Sequencer{}
	if len(entries) > 0 {
		s.next.Store(maxSeq + 1)
	}
	return s, nil
}

// Next returns the next monotonic sequence number.
func (s *Sequencer) Next() uint64 {
	return s.next.Add(1) - 1
}

func parseSeqFromKey(key []byte) (uint64, bool) {
	s := string(key)
	s = strings.TrimPrefix(s, "outbox:")
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
