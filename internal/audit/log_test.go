package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jcarden/arbscan/internal/domain"
)

func testRecord(gameID string) domain.ClosedOpportunity {
	return domain.ClosedOpportunity{
		Opportunity: domain.Opportunity{
			ID:        "rec-" + gameID,
			GameID:    gameID,
			LegID:     domain.LegKalshiHome,
			HomeTeam:  "Boston Celtics",
			AwayTeam:  "Miami Heat",
			ProfitPct: 2.5,
			OpenedAt:  time.Date(2026, 2, 10, 23, 0, 0, 0, time.UTC),
		},
		ClosedAt:        time.Date(2026, 2, 10, 23, 1, 30, 0, time.UTC),
		DurationSeconds: 90,
	}
}

func TestAppendRewritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arb-log.json")

	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := l.Append(testRecord("g1")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := l.Append(testRecord("g2")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var records []domain.ClosedOpportunity
	if err := json.Unmarshal(data, &records); err != nil {
		t.Fatalf("parse log: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("log holds %d records, want 2", len(records))
	}
	if records[1].GameID != "g2" || records[1].DurationSeconds != 90 {
		t.Errorf("unexpected second record: %+v", records[1])
	}
}

func TestOpenLoadsExistingLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arb-log.json")

	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := l.Append(testRecord("g1")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	// Reopen and keep appending; history must survive.
	l2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if l2.Len() != 1 {
		t.Fatalf("reopened log holds %d records, want 1", l2.Len())
	}
	if err := l2.Append(testRecord("g2")); err != nil {
		t.Fatalf("Append after reopen: %v", err)
	}
	if got := l2.Len(); got != 2 {
		t.Fatalf("log holds %d records, want 2", got)
	}
}

func TestOpenRejectsCorruptLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arb-log.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Open(path); err == nil {
		t.Fatal("corrupt log must fail Open, not be clobbered")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "arb-log.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := l.Append(testRecord("g1")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	snap := l.Snapshot()
	snap[0].GameID = "mutated"

	if l.Snapshot()[0].GameID != "g1" {
		t.Error("mutating a snapshot must not touch the log")
	}
}
