package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/dokzlo13/boblightd/internal/db"
)

func openLedger(t *testing.T) *Ledger {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return New(database.DB)
}

func TestLedger_AppendRecent(t *testing.T) {
	l := openLedger(t)

	records := []Record{
		{EventType: EventServerConnected, DeviceID: "srv"},
		{EventType: EventActionCompleted, DeviceID: "ch0", Source: "api", Payload: map[string]any{"action": "power"}},
		{EventType: EventActionFailed, DeviceID: "ch1", Source: "lua"},
	}
	for _, r := range records {
		if err := l.Append(r); err != nil {
			t.Fatalf("Append(%s) error = %v", r.EventType, err)
		}
	}

	entries, err := l.Recent(10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len(Recent()) = %d, want 3", len(entries))
	}
	if entries[0].EventType != EventActionFailed {
		t.Errorf("newest entry = %s, want %s", entries[0].EventType, EventActionFailed)
	}
	if entries[1].Payload["action"] != "power" {
		t.Errorf("payload = %v, want action=power", entries[1].Payload)
	}
	if entries[1].Source != "api" {
		t.Errorf("Source = %q, want %q", entries[1].Source, "api")
	}

	limited, _ := l.Recent(1)
	if len(limited) != 1 {
		t.Errorf("len(Recent(1)) = %d, want 1", len(limited))
	}

	byDevice, _ := l.ByDevice("ch0", 10)
	if len(byDevice) != 1 || byDevice[0].DeviceID != "ch0" {
		t.Errorf("ByDevice(ch0) = %v", byDevice)
	}
}

func TestLedger_IdempotentCompletion(t *testing.T) {
	l := openLedger(t)

	if l.HasCompleted("k1") {
		t.Fatal("HasCompleted() = true before append")
	}
	for i := 0; i < 3; i++ {
		if err := l.Append(Record{EventType: EventActionCompleted, IdempotencyKey: "k1"}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	if !l.HasCompleted("k1") {
		t.Error("HasCompleted() = false after append")
	}
	if l.HasCompleted("") {
		t.Error("HasCompleted(\"\") = true, empty keys never dedupe")
	}

	entries, _ := l.Recent(10)
	if len(entries) != 1 {
		t.Errorf("completed entries = %d, want 1", len(entries))
	}
}

func TestLedger_DeleteOlderThan(t *testing.T) {
	l := openLedger(t)
	l.Append(Record{EventType: EventServerDisconnected})

	n, err := l.DeleteOlderThan(time.Hour)
	if err != nil {
		t.Fatalf("DeleteOlderThan() error = %v", err)
	}
	if n != 0 {
		t.Errorf("deleted %d fresh entries, want 0", n)
	}

	n, _ = l.DeleteOlderThan(-time.Second)
	if n != 1 {
		t.Errorf("deleted %d entries, want 1", n)
	}
}
