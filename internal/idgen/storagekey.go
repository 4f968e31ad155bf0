package idgen

import "fmt"

// Storage key formats (spec.md §4.1, §6). Zero-padded decimal components
// keep lexicographic byte order equal to numeric order, which is the one
// trick that lets range scans double as chronological scans.

// EventKey returns the events-partition key: evt:{ts_ms:013}:{ulid}.
func EventKey(tsMs int64, ulidStr string) []byte {
	return []byte(fmt.Sprintf("evt:%013d:%s", tsMs, ulidStr))
}

// EventKeyForTime returns the smallest possible event key at exactly tsMs,
// used as a range-scan boundary (the empty ulid component sorts before every
// real one).
func EventKeyForTime(tsMs int64) []byte {
	return []byte(fmt.Sprintf("evt:%013d:", tsMs))
}

// TocNodeVersionKey returns the toc_nodes-partition key for one version:
// toc:{node_id}:v{version:06}.
func TocNodeVersionKey(nodeID string, version uint32) []byte {
	return []byte(fmt.Sprintf("toc:%s:v%06d", nodeID, version))
}

// TocLatestKey returns the toc_latest-partition key: latest:{node_id}.
func TocLatestKey(nodeID string) []byte {
	return []byte(fmt.Sprintf("latest:%s", nodeID))
}

// TocLatestLevelPrefix returns the toc_latest-partition prefix covering
// every node id at the given grammar segment (e.g. "day", "week", "month",
// "year"), used by the rollup jobs to enumerate candidates at one level
// without touching any other (spec.md §4.7 step 3).
func TocLatestLevelPrefix(levelSegment string) []byte {
	return []byte(fmt.Sprintf("latest:toc:%s:", levelSegment))
}

// GripKey returns the grips-partition key for a grip record: {grip_id}.
func GripKey(gripID string) []byte { return []byte(gripID) }

// GripNodeIndexKey returns the grips-partition secondary index key:
// node:{node_id}:{grip_id} → empty value.
func GripNodeIndexKey(nodeID, gripID string) []byte {
	return []byte(fmt.Sprintf("node:%s:%s", nodeID, gripID))
}

// GripNodeIndexPrefix returns the prefix covering every grip indexed under nodeID.
func GripNodeIndexPrefix(nodeID string) []byte {
	return []byte(fmt.Sprintf("node:%s:", nodeID))
}

// OutboxKey returns the outbox-partition key: outbox:{seq:020}.
func OutboxKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("outbox:%020d", seq))
}

// OutboxKeyPrefix returns the "outbox:" prefix shared by all outbox keys.
func OutboxKeyPrefix() []byte { return []byte("outbox:") }

// CheckpointKey returns the checkpoints-partition key: checkpoint:{job_name}.
func CheckpointKey(jobName string) []byte {
	return []byte(fmt.Sprintf("checkpoint:%s", jobName))
}

// PrefixUpperBound returns the smallest byte string lexicographically
// greater than every string starting with prefix, for use as a range
// scan's exclusive end bound (every *KeyPrefix function above pairs with
// this to bound a PrefixScan).
func PrefixUpperBound(prefix []byte) []byte {
	out := make([]byte, len(prefix))
	copy(out, prefix)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] != 0xff {
			out[i]++
			return out[:i+1]
		}
	}
	// prefix was all 0xff bytes; no finite upper bound exists, so scan to
	// the end of the partition.
	return nil
}
