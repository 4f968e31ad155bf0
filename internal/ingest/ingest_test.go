package ingest

import (
	"strings"
	"testing"

	"github.com/nextlevelbuilder/agentmemory/internal/idgen"
	"github.com/nextlevelbuilder/agentmemory/internal/model"
	"github.com/nextlevelbuilder/agentmemory/internal/outbox"
	"github.com/nextlevelbuilder/agentmemory/internal/storage"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	eng, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(eng.Close)
	seq, err := outbox.NewSequencer(eng)
	if err != nil {
		t.Fatalf("outbox.NewSequencer: %v", err)
	}
	return New(eng, seq)
}

func TestIngestEventDedup(t *testing.T) {
	svc := newTestService(t)
	ev := model.Event{
		EventID:     idgen.NewEventID(1000),
		SessionID:   "S",
		TimestampMs: 1000,
		EventType:   model.EventUserMessage,
		Role:        model.RoleUser,
		Text:        "hi",
	}

	res, err := svc.IngestEvent(ev)
	if err != nil {
		t.Fatalf("IngestEvent first: %v", err)
	}
	if !res.Created {
		t.Errorf("first ingest: Created = false, want true")
	}

	res2, err := svc.IngestEvent(ev)
	if err != nil {
		t.Fatalf("IngestEvent second: %v", err)
	}
	if res2.Created {
		t.Errorf("second ingest: Created = true, want false")
	}
}

func TestIngestEventNormalizesEventIDCasing(t *testing.T) {
	svc := newTestService(t)
	canonical := idgen.NewEventID(1000)
	lower := model.Event{
		EventID:     strings.ToLower(canonical),
		SessionID:   "S",
		TimestampMs: 1000,
		EventType:   model.EventUserMessage,
		Role:        model.RoleUser,
		Text:        "hi",
	}

	res, err := svc.IngestEvent(lower)
	if err != nil {
		t.Fatalf("IngestEvent: %v", err)
	}
	if res.EventID != canonical {
		t.Errorf("EventID = %q, want canonical %q", res.EventID, canonical)
	}

	// A second ingest under the canonical-cased id must be recognized as
	// the same event, not stored under a second, differently-cased key.
	res2, err := svc.IngestEvent(model.Event{
		EventID:     canonical,
		SessionID:   "S",
		TimestampMs: 1000,
		EventType:   model.EventUserMessage,
		Role:        model.RoleUser,
		Text:        "hi",
	})
	if err != nil {
		t.Fatalf("IngestEvent canonical: %v", err)
	}
	if res2.Created {
		t.Errorf("second ingest under canonical casing: Created = true, want false (same event)")
	}
}

func TestIngestEventValidation(t *testing.T) {
	svc := newTestService(t)

	tests := []struct {
		name string
		ev   model.Event
	}{
		{"empty event id", model.Event{SessionID: "S", TimestampMs: 1}},
		{"empty session id", model.Event{EventID: idgen.NewEventID(1000), TimestampMs: 1000}},
		{"negative timestamp", model.Event{EventID: idgen.NewEventID(1000), SessionID: "S", TimestampMs: -1}},
		{"future timestamp", model.Event{EventID: idgen.NewEventID(1000), SessionID: "S", TimestampMs: 9999999999999}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.IngestEvent(tt.ev); err == nil {
				t.Errorf("IngestEvent(%+v) succeeded, want validation error", tt.ev)
			}
		})
	}
}
