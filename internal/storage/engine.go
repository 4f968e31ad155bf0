package storage

import (
	"github.com/jgraettinger/gorocksdb"

	"github.com/nextlevelbuilder/agentmemory/internal/apperr"
)

// Engine is the shared storage handle: one RocksDB database, six column
// families, held by reference across ingest, scheduler, query, and rollups
// for the life of the process (spec.md §9 — "shared by {ingest, scheduler,
// query, rollups}; lifetime = service lifetime").
type Engine struct {
	db  *gorocksdb.DB
	cfs map[Partition]*gorocksdb.ColumnFamilyHandle
	ro  *gorocksdb.ReadOptions
	wo  *gorocksdb.WriteOptions
}

// Open opens (or creates) the database at dir, creating any column family
// that does not yet exist with the compaction policy spec.md §4.1 assigns
// it: universal compaction + strong compression for the hot, append-only
// events partition; FIFO for the outbox, which is a bounded pending-work
// queue; leveled for everything else.
func Open(dir string) (*Engine, error) {
	dbOpts := gorocksdb.NewDefaultOptions()
	dbOpts.SetCreateIfMissing(true)
	dbOpts.SetCreateIfMissingColumnFamilies(true)

	cfNames := make([]string, 0, len(partitions)+1)
	cfOpts := make([]*gorocksdb.Options, 0, len(partitions)+1)

	// Column family index 0 must be "default" for gorocksdb's
	// OpenDbColumnFamilies; the engine never writes to it directly.
	cfNames = append(cfNames, "default")
	cfOpts = append(cfOpts, gorocksdb.NewDefaultOptions())

	for _, p := range partitions {
		cfNames = append(cfNames, string(p))
		cfOpts = append(cfOpts, optionsForPartition(p))
	}

	db, handles, err := gorocksdb.OpenDbColumnFamilies(dbOpts, dir, cfNames, cfOpts)
	if err != nil {
		return nil, apperr.New(apperr.KindStorage, "storage.Open", err)
	}

	cfs := make(map[Partition]*gorocksdb.ColumnFamilyHandle, len(partitions))
	for i, name := range cfNames {
		if name == "default" {
			continue
		}
		cfs[Partition(name)] = handles[i]
	}

	ro := gorocksdb.NewDefaultReadOptions()
	wo := gorocksdb.NewDefaultWriteOptions()
	wo.SetSync(true) // every batch must be durable before the engine reports success

	return &Engine{db: db, cfs: cfs, ro: ro, wo: wo}, nil
}

func optionsForPartition(p Partition) *gorocksdb.Options {
	opts := gorocksdb.NewDefaultOptions()
	switch p {
	case PartitionEvents:
		opts.SetCompactionStyle(gorocksdb.UniversalCompactionStyle)
		opts.SetCompression(gorocksdb.ZSTDCompression)
	case PartitionOutbox:
		opts.SetCompactionStyle(gorocksdb.FIFOCompactionStyle)
	default:
		opts.SetCompactionStyle(gorocksdb.LevelCompactionStyle)
	}
	return opts
}

// Close releases the database and its column family handles.
func (e *Engine) Close() {
	for _, cf := range e.cfs {
		cf.Destroy()
	}
	e.ro.Destroy()
	e.wo.Destroy()
	e.db.Close()
}

func (e *Engine) handle(p Partition) (*gorocksdb.ColumnFamilyHandle, error) {
	cf, ok := e.cfs[p]
	if !ok {
		return nil, apperr.Newf(apperr.KindStorage, "storage.handle", "unknown partition %q", p)
	}
	return cf, nil
}

// Get reads one key from a partition. found is false (with a nil error) if
// the key does not exist — a not-found read is never an error here; callers
// decide whether that means NotFound or something else.
func (e *Engine) Get(p Partition, key []byte) (value []byte, found bool, err error) {
	cf, err := e.handle(p)
	if err != nil {
		return nil, false, err
	}
	slice, err := e.db.GetCF(e.ro, cf, key)
	if err != nil {
		return nil, false, apperr.New(apperr.KindStorage, "storage.Get", err)
	}
	defer slice.Free()
	if !slice.Exists() {
		return nil, false, nil
	}
	out := make([]byte, len(slice.Data()))
	copy(out, slice.Data())
	return out, true, nil
}

// WriteOp is one (partition, key, value) tuple in an atomic batch, or a
// deletion when Delete is true (Value is ignored for deletions).
type WriteOp struct {
	Partition Partition
	Key       []byte
	Value     []byte
	Delete    bool
}

// WriteBatch applies every op durably together or not at all (spec.md
// §4.1's atomic batch write contract). Fails with apperr.KindStorage if the
// underlying engine reports failure; the batch is then observable as absent.
func (e *Engine) WriteBatch(ops []WriteOp) error {
	batch := gorocksdb.NewWriteBatch()
	defer batch.Destroy()

	for _, op := range ops {
		cf, err := e.handle(op.Partition)
		if err != nil {
			return err
		}
		if op.Delete {
			batch.DeleteCF(cf, op.Key)
		} else {
			batch.PutCF(cf, op.Key, op.Value)
		}
	}

	if err := e.db.Write(e.wo, batch); err != nil {
		return apperr.New(apperr.KindStorage, "storage.WriteBatch", err)
	}
	return nil
}

// KV is one entry returned from a prefix/range scan.
type KV struct {
	Key   []byte
	Value []byte
}

// PrefixScan returns ordered entries whose keys sit in [start, end), the
// caller supplying limit (storage does not impose one of its own, per
// spec.md §4.1). A limit <= 0 means unlimited.
func (e *Engine) PrefixScan(p Partition, start, end []byte, limit int) ([]KV, error) {
	cf, err := e.handle(p)
	if err != nil {
		return nil, err
	}

	it := e.db.NewIteratorCF(e.ro, cf)
	defer it.Close()

	var out []KV
	for it.Seek(start); it.Valid(); it.Next() {
		keySlice := it.Key()
		key := keySlice.Data()
		if end != nil && compareBytes(key, end) >= 0 {
			keySlice.Free()
			break
		}
		kCopy := make([]byte, len(key))
		copy(kCopy, key)
		keySlice.Free()

		valSlice := it.Value()
		vCopy := make([]byte, len(valSlice.Data()))
		copy(vCopy, valSlice.Data())
		valSlice.Free()

		out = append(out, KV{Key: kCopy, Value: vCopy})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	if err := it.Err(); err != nil {
		return nil, apperr.New(apperr.KindStorage, "storage.PrefixScan", err)
	}
	return out, nil
}

// CompactPartition triggers a full-range manual compaction of one
// partition's column family. A nil Range start/limit compacts the entire
// keyspace of that column family.
func (e *Engine) CompactPartition(p Partition) error {
	cf, err := e.handle(p)
	if err != nil {
		return err
	}
	e.db.CompactRangeCF(cf, gorocksdb.Range{Start: nil, Limit: nil})
	return nil
}

// CompactAll triggers a full-range manual compaction of every partition, in
// the fixed order partitions are opened in.
func (e *Engine) CompactAll() error {
	for _, p := range partitions {
		if err := e.CompactPartition(p); err != nil {
			return err
		}
	}
	return nil
}

func compareBytes(a, b []byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}
