package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"dsync-go/internal/config"
)

func newTestJournal(t *testing.T) *SQLiteJournal {
	t.Helper()
	j, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestSQLiteJournal_OperationLifecycle(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return at }

	op, err := j.StartOperation(ctx, "upload", "/data/report.pdf")
	if err != nil {
		t.Fatalf("StartOperation() error = %v", err)
	}
	if op.ID == 0 || op.Status != StatusRunning {
		t.Fatalf("StartOperation() = %+v", op)
	}

	if err := j.RecordResult(ctx, op.ID, "report.pdf", nil); err != nil {
		t.Fatalf("RecordResult() error = %v", err)
	}
	if err := j.RecordResult(ctx, op.ID, "broken.bin", errors.New("chunk 1 unavailable")); err != nil {
		t.Fatalf("RecordResult() error = %v", err)
	}
	if err := j.FinishOperation(ctx, op.ID, StatusError); err != nil {
		t.Fatalf("FinishOperation() error = %v", err)
	}

	ops, err := j.RecentOperations(ctx, 10)
	if err != nil {
		t.Fatalf("RecentOperations() error = %v", err)
	}
	if len(ops) != 1 {
		t.Fatalf("len(ops) = %d, want 1", len(ops))
	}
	got := ops[0]
	if got.Operation != "upload" || got.Parameters != "/data/report.pdf" || got.Status != StatusError {
		t.Errorf("operation = %+v", got)
	}
	if !got.StartedAt.Equal(at) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, at)
	}
	if got.FinishedAt == nil || !got.FinishedAt.Equal(at) {
		t.Errorf("FinishedAt = %v, want %v", got.FinishedAt, at)
	}

	results, err := j.Results(ctx, op.ID)
	if err != nil {
		t.Fatalf("Results() error = %v", err)
	}
	tests := []struct {
		path    string
		ok      bool
		message string
	}{
		{"report.pdf", true, ""},
		{"broken.bin", false, "chunk 1 unavailable"},
	}
	if len(results) != len(tests) {
		t.Fatalf("len(results) = %d, want %d", len(results), len(tests))
	}
	for i, tt := range tests {
		r := results[i]
		if r.Path != tt.path || r.OK != tt.ok || r.Message != tt.message {
			t.Errorf("results[%d] = %+v, want %+v", i, r, tt)
		}
	}
}

func TestSQLiteJournal_RecentOperationsNewestFirst(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	for _, name := range []string{"scan", "download", "verify"} {
		if _, err := j.StartOperation(ctx, name, ""); err != nil {
			t.Fatalf("StartOperation(%s) error = %v", name, err)
		}
	}

	ops, err := j.RecentOperations(ctx, 2)
	if err != nil {
		t.Fatalf("RecentOperations() error = %v", err)
	}
	if len(ops) != 2 || ops[0].Operation != "verify" || ops[1].Operation != "download" {
		t.Fatalf("RecentOperations() = %v %v", ops[0], ops[1])
	}
	if ops[0].FinishedAt != nil {
		t.Error("unfinished operation has FinishedAt set")
	}
}

func TestSQLiteJournal_FinishUnknownOperation(t *testing.T) {
	j := newTestJournal(t)
	if err := j.FinishOperation(context.Background(), 42, StatusSuccess); err == nil {
		t.Fatal("FinishOperation() expected error for unknown id")
	}
}

func TestSQLiteJournal_ResultRequiresOperation(t *testing.T) {
	j := newTestJournal(t)
	if err := j.RecordResult(context.Background(), 99, "a.txt", nil); err == nil {
		t.Fatal("RecordResult() expected foreign key error")
	}
}

func TestOpen_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := j.StartOperation(ctx, "upload", ""); err != nil {
		t.Fatalf("StartOperation() error = %v", err)
	}
	j.Close()

	j, err = Open(path)
	if err != nil {
		t.Fatalf("second Open() error = %v", err)
	}
	defer j.Close()
	if err := j.CheckMigrations(); err != nil {
		t.Errorf("CheckMigrations() error = %v", err)
	}
	ops, err := j.RecentOperations(ctx, 10)
	if err != nil {
		t.Fatalf("RecentOperations() error = %v", err)
	}
	if len(ops) != 1 {
		t.Errorf("len(ops) = %d, want 1", len(ops))
	}
}

func TestNewJournalFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.JournalConfig
		wantErr bool
	}{
		{"sqlite", config.JournalConfig{Type: "sqlite", Path: filepath.Join(t.TempDir(), "j.db")}, false},
		{"memory", config.JournalConfig{Type: "memory"}, false},
		{"sqlite without path", config.JournalConfig{Type: "sqlite"}, true},
		{"unknown", config.JournalConfig{Type: "postgres"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j, err := NewJournalFromConfig(tt.cfg)
			if tt.wantErr {
				if err == nil {
					j.Close()
					t.Fatal("NewJournalFromConfig() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewJournalFromConfig() error = %v", err)
			}
			j.Close()
		})
	}
}
