package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dsync-go/internal/config"
	"dsync-go/internal/dsync"
	"dsync-go/internal/testutil"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig(t.TempDir())
	cfg.Transport.Type = "memory"
	cfg.Encryption.Type = "test"
	cfg.Journal = config.JournalConfig{Type: "memory"}
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, operation string) *DSyncApp {
	t.Helper()
	a, err := newApp(context.Background(), cfg, NewOperation(operation, ""), testutil.NewRecordingLogger())
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestDSyncApp_UploadFilesIsJournaled(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg, "upload")
	ctx := context.Background()

	good := testutil.WriteFile(t, cfg.SyncDir, "docs/a.txt", []byte("a"))
	outside := testutil.WriteFile(t, t.TempDir(), "b.txt", []byte("b"))

	report, err := a.Upload(ctx, []string{good, outside})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if report.Succeeded() != 1 || report.Failed() != 1 {
		t.Fatalf("Succeeded/Failed = %d/%d, want 1/1", report.Succeeded(), report.Failed())
	}
	if report.Results[0].Path != "docs/a.txt" {
		t.Errorf("Results[0].Path = %q, want docs/a.txt", report.Results[0].Path)
	}
	if a.op.Status != "error" {
		t.Errorf("operation status = %q, want error", a.op.Status)
	}

	results, err := a.Results(ctx, a.op.JournalID)
	if err != nil {
		t.Fatalf("Results() error = %v", err)
	}
	if len(results) != 2 || !results[0].OK || results[1].OK {
		t.Fatalf("journal results = %+v", results)
	}

	if err := a.journal.FinishOperation(ctx, a.op.JournalID, a.op.Status); err != nil {
		t.Fatalf("FinishOperation() error = %v", err)
	}
	ops, err := a.History(ctx, 5)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(ops) != 1 || ops[0].Operation != "upload" || ops[0].Status != "error" {
		t.Errorf("History() = %+v", ops)
	}
}

func TestDSyncApp_UploadWithoutPathsScans(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg, "upload")
	testutil.WriteFile(t, cfg.SyncDir, "one.txt", []byte("1"))
	testutil.WriteFile(t, cfg.SyncDir, "sub/two.txt", []byte("2"))

	report, err := a.Upload(context.Background(), nil)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if report.Transferred() != 2 {
		t.Errorf("Transferred() = %d, want 2", report.Transferred())
	}
	if got := a.Catalog().Active(); got != 2 {
		t.Errorf("Catalog().Active() = %d, want 2", got)
	}
}

func TestDSyncApp_DeleteThenDownload(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg, "delete")
	ctx := context.Background()
	p := testutil.WriteFile(t, cfg.SyncDir, "a.txt", []byte("a"))
	if _, err := a.Upload(ctx, []string{p}); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	out := filepath.Join(t.TempDir(), "a.txt")
	if err := a.Download(ctx, "a.txt", out); err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if data, _ := os.ReadFile(out); string(data) != "a" {
		t.Errorf("downloaded %q, want a", data)
	}

	if err := a.Delete(ctx, "a.txt"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := a.Download(ctx, "a.txt", out); !errors.Is(err, dsync.ErrGone) {
		t.Errorf("Download() after delete error = %v, want ErrGone", err)
	}
	if err := a.Delete(ctx, "missing.txt"); !errors.Is(err, dsync.ErrNotFound) {
		t.Errorf("Delete(missing) error = %v, want ErrNotFound", err)
	}
}

func TestDSyncApp_PullIndex(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg, "index-pull")
	ctx := context.Background()
	p := testutil.WriteFile(t, cfg.SyncDir, "kept.txt", []byte("kept"))
	if _, err := a.Upload(ctx, []string{p}); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	err := a.PullIndex(ctx, false)
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("PullIndex() with existing index error = %v", err)
	}

	if err := os.Remove(cfg.Index.FilesPath); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := a.PullIndex(ctx, false); err != nil {
		t.Fatalf("PullIndex() error = %v", err)
	}
	data, err := os.ReadFile(cfg.Index.FilesPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	ix, err := dsync.DecodeIndex(data)
	if err != nil {
		t.Fatalf("DecodeIndex() error = %v", err)
	}
	if _, ok := ix.Get("kept.txt"); !ok {
		t.Error("pulled index is missing kept.txt")
	}

	if err := a.PullIndex(ctx, true); err != nil {
		t.Errorf("PullIndex(force) error = %v", err)
	}
}

func TestDSyncApp_Verify(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg, "verify")
	p := testutil.WriteFile(t, cfg.SyncDir, "v.txt", []byte("v"))
	if _, err := a.Upload(context.Background(), []string{p}); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	results, err := a.Verify(context.Background())
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if len(results) != 1 || !results[0].OK() {
		t.Errorf("Verify() = %+v", results)
	}
}

func TestDSyncApp_WatchUploadsUntilCancelled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Watch.DebounceMillis = 50
	a := newTestApp(t, cfg, "watch")
	testutil.WriteFile(t, cfg.SyncDir, "early.txt", []byte("early"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Watch(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, ok := a.Engine().Lookup("early.txt"); ok {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("early.txt was not uploaded by the watch loop")
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch() did not return after cancel")
	}
}

func TestNewDSyncApp_WritesOperationLog(t *testing.T) {
	cfg := testConfig(t)

	a, err := NewDSyncApp(context.Background(), cfg, "status")
	if err != nil {
		t.Fatalf("NewDSyncApp() error = %v", err)
	}
	if _, err := a.Status(""); err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(cfg.LogDir, "status.log"))
	if err != nil {
		t.Fatalf("reading operation log: %v", err)
	}
	if !strings.Contains(string(data), a.op.ID) {
		t.Errorf("log does not carry operation id %s:\n%s", a.op.ID, data)
	}
}

func TestNewDSyncApp_BadConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Encryption.Type = "rot13"

	if _, err := NewDSyncApp(context.Background(), cfg, "upload"); err == nil {
		t.Fatal("NewDSyncApp() expected error for unknown encryption type")
	}
}
