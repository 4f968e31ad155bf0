// Package idgen generates the engine's identifiers: ULID-class event ids,
// grip ids, and the structured TOC node-id grammar (spec.md §3, §6).
package idgen

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// entropy is a single mutex-guarded ULID entropy source. ULID generation is
// cheap and off the hot path for typical ingest rates, so a shared
// monotonic source (rather than one per goroutine) keeps ids sortable even
// under a burst of same-millisecond events.
var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewEventID returns a 26-character lexicographically-sortable id whose
// first 48 bits embed tsMs (spec.md §3: "ULID-class").
func NewEventID(tsMs int64) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(time.UnixMilli(tsMs)), entropy)
	return id.String()
}

// ULIDFromEventID extracts the raw ULID, used by ingest to validate an
// event id and build the (timestamp_ms, ulid) event key (spec.md §4.2 step 2).
func ULIDFromEventID(eventID string) (ulid.ULID, error) {
	return ulid.ParseStrict(eventID)
}

// randomSuffix returns a short lowercase alphanumeric token for grip ids,
// matching the "random" component in spec.md §6's grip id grammar.
func randomSuffix(n int) string {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	var sb strings.Builder
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			// crypto/rand failure is unrecoverable; fall back to a
			// time-derived digit rather than panicking mid-ingest.
			sb.WriteByte(alphabet[time.Now().UnixNano()%int64(len(alphabet))])
			continue
		}
		sb.WriteByte(alphabet[idx.Int64()])
	}
	return sb.String()
}

// NewGripID returns a grip id: grip:{timestamp_ms}:{random} (spec.md §6).
func NewGripID(tsMs int64) string {
	return fmt.Sprintf("grip:%d:%s", tsMs, randomSuffix(8))
}

// NewSegmentULID returns a bare ULID for embedding in a segment node id.
func NewSegmentULID(tsMs int64) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.UnixMilli(tsMs)), entropy).String()
}
