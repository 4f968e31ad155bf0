package storage

import (
	"testing"
)

func TestWriteBatchAtomicAndGet(t *testing.T) {
	dir := t.TempDir()
	eng, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer eng.Close()

	ops := []WriteOp{
		{Partition: PartitionEvents, Key: []byte("evt:0000000000001:a"), Value: []byte("one")},
		{Partition: PartitionOutbox, Key: []byte("outbox:00000000000000000001"), Value: []byte("pending")},
	}
	if err := eng.WriteBatch(ops); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}

	val, found, err := eng.Get(PartitionEvents, []byte("evt:0000000000001:a"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found || string(val) != "one" {
		t.Errorf("Get = (%q, %v), want (\"one\", true)", val, found)
	}

	_, found, err = eng.Get(PartitionEvents, []byte("evt:0000000000002:z"))
	if err != nil {
		t.Fatalf("Get missing key: %v", err)
	}
	if found {
		t.Errorf("Get missing key: found = true, want false")
	}
}

func TestPrefixScanOrderAndLimit(t *testing.T) {
	dir := t.TempDir()
	eng, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer eng.Close()

	keys := []string{
		"evt:0000000000001:a",
		"evt:0000000000002:b",
		"evt:0000000000003:c",
	}
	var ops []WriteOp
	for _, k := range keys {
		ops = append(ops, WriteOp{Partition: PartitionEvents, Key: []byte(k), Value: []byte(k)})
	}
	if err := eng.WriteBatch(ops); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}

	got, err := eng.PrefixScan(PartitionEvents, []byte("evt:"), []byte("evu:"), 0)
	if err != nil {
		t.Fatalf("PrefixScan: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("PrefixScan returned %d entries, want 3", len(got))
	}
	for i, kv := range got {
		if string(kv.Key) != keys[i] {
			t.Errorf("entry %d key = %q, want %q", i, kv.Key, keys[i])
		}
	}

	limited, err := eng.PrefixScan(PartitionEvents, []byte("evt:"), []byte("evu:"), 2)
	if err != nil {
		t.Fatalf("PrefixScan limited: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("PrefixScan with limit=2 returned %d entries", len(limited))
	}
}

func TestWriteBatchDelete(t *testing.T) {
	dir := t.TempDir()
	eng, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer eng.Close()

	key := []byte("outbox:00000000000000000001")
	if err := eng.WriteBatch([]WriteOp{{Partition: PartitionOutbox, Key: key, Value: []byte("x")}}); err != nil {
		t.Fatalf("WriteBatch put: %v", err)
	}
	if err := eng.WriteBatch([]WriteOp{{Partition: PartitionOutbox, Key: key, Delete: true}}); err != nil {
		t.Fatalf("WriteBatch delete: %v", err)
	}
	_, found, err := eng.Get(PartitionOutbox, key)
	if err != nil {
		t.Fatalf("Get after delete: %v", err)
	}
	if found {
		t.Errorf("key still present after delete batch")
	}
}
