package grip

import (
	"testing"

	"github.com/nextlevelbuilder/agentmemory/internal/model"
)

func ev(id string, ts int64, text string) model.Event {
	return model.Event{EventID: id, TimestampMs: ts, Text: text}
}

func TestExtractForBulletFindsHighestScoringRun(t *testing.T) {
	events := []model.Event{
		ev("01", 0, "let's talk about the weather today"),
		ev("02", 1000, "the user asked about JWT token expiry"),
		ev("03", 2000, "JWT refresh tokens and expiry handling"),
		ev("04", 3000, "unrelated closing remarks"),
	}
	grips := ExtractForBullet("User asked about JWT expiry", events, "toc:segment:2026-01-01:abc")
	if len(grips) != 1 {
		t.Fatalf("got %d grips, want 1", len(grips))
	}
	g := grips[0]
	// Only event 02 reaches the maximum score (5 bullet terms); 03 scores 2,
	// so the maximal-score run is the single event 02.
	if g.EventIDStart != "02" || g.EventIDEnd != "02" {
		t.Errorf("range = [%s,%s], want [02,02]", g.EventIDStart, g.EventIDEnd)
	}
	if g.Source != Source {
		t.Errorf("Source = %q, want %q", g.Source, Source)
	}
	if g.TocNodeID != "toc:segment:2026-01-01:abc" {
		t.Errorf("TocNodeID = %q", g.TocNodeID)
	}
	if g.TimestampMs != 1000 {
		t.Errorf("TimestampMs = %d, want 1000 (start event's timestamp)", g.TimestampMs)
	}
}

func TestExtractForBulletNoOverlapProducesNoGrip(t *testing.T) {
	events := []model.Event{ev("01", 0, "completely different vocabulary")}
	grips := ExtractForBullet("JWT refresh tokens", events, "node")
	if len(grips) != 0 {
		t.Errorf("got %d grips, want 0 when no term overlap exists", len(grips))
	}
}

func TestExtractForBulletEmptyBulletProducesNoGrip(t *testing.T) {
	events := []model.Event{ev("01", 0, "some text")}
	if grips := ExtractForBullet("   ", events, "node"); len(grips) != 0 {
		t.Errorf("got %d grips for an empty bullet, want 0", len(grips))
	}
}

func TestExtractAllFlattensAcrossBullets(t *testing.T) {
	events := []model.Event{
		ev("01", 0, "discussed rocksdb compaction policy"),
		ev("02", 1000, "discussed cron scheduling jitter"),
	}
	grips := ExtractAll([]string{"rocksdb compaction", "cron jitter"}, events, "node")
	if len(grips) != 2 {
		t.Fatalf("got %d grips, want 2", len(grips))
	}
}

func TestExcerptTruncation(t *testing.T) {
	long := make([]byte, ExcerptMaxChars*2)
	for i := range long {
		long[i] = 'a'
	}
	events := []model.Event{ev("01", 0, "token "+string(long))}
	grips := ExtractForBullet("token", events, "node")
	if len(grips) != 1 {
		t.Fatalf("got %d grips, want 1", len(grips))
	}
	if len([]rune(grips[0].Excerpt)) > ExcerptMaxChars+1 {
		t.Errorf("excerpt length %d exceeds bound", len([]rune(grips[0].Excerpt)))
	}
}
