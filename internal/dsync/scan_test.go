package dsync_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"dsync-go/internal/dsync"
)

func TestEngine_Scan(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	env.write(t, "a.txt", []byte("a"))
	env.write(t, "photos/b.jpg", []byte("b"))
	env.write(t, "photos/2024/c.jpg", []byte("c"))
	env.write(t, ".hidden", []byte("h"))
	env.write(t, "meta.json", []byte("{}"))
	env.write(t, "partial.crdownload", []byte("p"))
	env.write(t, "__pycache__/x.pyc", []byte("x"))

	report, err := env.engine.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if report.Failed() != 0 {
		t.Fatalf("Failed() = %d: %v", report.Failed(), report.Err())
	}

	var uploaded []string
	for _, r := range report.Results {
		uploaded = append(uploaded, r.Path)
	}
	sort.Strings(uploaded)
	want := []string{"a.txt", "photos/2024/c.jpg", "photos/b.jpg"}
	if strings.Join(uploaded, ",") != strings.Join(want, ",") {
		t.Errorf("uploaded = %v, want %v", uploaded, want)
	}

	folders := env.engine.Folders()
	if len(folders) != 2 {
		t.Fatalf("len(Folders()) = %d, want 2", len(folders))
	}
	photos := folders[0]
	if photos.FolderPath != "photos" || photos.FileCount != 2 || photos.FolderCount != 1 {
		t.Errorf("photos = %+v, want 2 files and 1 folder", photos)
	}
	if photos.Locator == nil {
		t.Error("photos snapshot locator not recorded")
	}

	// A second pass transfers nothing.
	blobs := env.transport.Len()
	report, err = env.engine.Scan(ctx)
	if err != nil {
		t.Fatalf("second Scan() error = %v", err)
	}
	if report.Transferred() != 0 || report.Succeeded() != 3 {
		t.Errorf("second scan transferred %d, succeeded %d", report.Transferred(), report.Succeeded())
	}
	if env.transport.Len() != blobs {
		t.Errorf("second scan uploaded %d new blobs", env.transport.Len()-blobs)
	}
}

func TestEngine_ScanContinuesPastFailures(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.write(t, "good.txt", []byte("good"))
	bad := env.write(t, "bad.txt", []byte("bad"))
	if err := os.Chmod(bad, 0); err != nil {
		t.Fatalf("Chmod() error = %v", err)
	}
	if _, err := os.ReadFile(bad); err == nil {
		t.Skip("running with permissions that ignore file modes")
	}

	report, err := env.engine.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if report.Succeeded() != 1 || report.Failed() != 1 {
		t.Errorf("Succeeded() = %d, Failed() = %d, want 1 and 1", report.Succeeded(), report.Failed())
	}
	if _, ok := env.engine.Lookup("good.txt"); !ok {
		t.Error("good.txt not uploaded")
	}
}

func TestEngine_ScanCancelled(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.write(t, "a.txt", []byte("a"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := env.engine.Scan(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Scan() error = %v, want context.Canceled", err)
	}
}

func TestEngine_TrackFolderSnapshot(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	env.write(t, "music/albums/one/track.mp3", []byte("t"))

	m, err := env.engine.TrackFolder(ctx, filepath.Join(env.syncDir, "music", "albums"))
	if err != nil {
		t.Fatalf("TrackFolder() error = %v", err)
	}
	if m.FolderPath != "music/albums" || m.FileCount != 1 || m.FolderCount != 1 {
		t.Errorf("manifest = %+v", m)
	}

	snapshot, err := env.transport.Fetch(ctx, *m.Locator)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	var decoded dsync.FolderManifest
	if err := json.Unmarshal(snapshot, &decoded); err != nil {
		t.Fatalf("snapshot is not JSON: %v", err)
	}
	if decoded.FolderPath != "music/albums" {
		t.Errorf("snapshot folder_path = %q", decoded.FolderPath)
	}
	if dsync.FolderSnapshotName("music/albums") != "folder_metadata_music_albums.json" {
		t.Errorf("FolderSnapshotName() = %q", dsync.FolderSnapshotName("music/albums"))
	}
}

func TestEngine_TrackFolderWithoutSnapshot(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.write(t, "docs/readme.md", []byte("r"))
	env.transport.OmitLocators(true)

	m, err := env.engine.TrackFolder(context.Background(), filepath.Join(env.syncDir, "docs"))
	if err != nil {
		t.Fatalf("TrackFolder() error = %v", err)
	}
	if m.Locator != nil {
		t.Errorf("Locator = %q, want nil", *m.Locator)
	}
}

func TestEngine_DownloadAll(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	env.upload(t, "one.txt", []byte("1"))
	env.upload(t, "sub/two.txt", []byte("2"))
	env.upload(t, "gone.txt", []byte("g"))
	if err := env.engine.MarkDeleted(ctx, "gone.txt"); err != nil {
		t.Fatalf("MarkDeleted() error = %v", err)
	}

	out := t.TempDir()
	report, err := env.engine.DownloadAll(ctx, out)
	if err != nil {
		t.Fatalf("DownloadAll() error = %v", err)
	}
	if report.Succeeded() != 2 || report.Failed() != 0 {
		t.Errorf("Succeeded() = %d, Failed() = %d", report.Succeeded(), report.Failed())
	}
	got, err := os.ReadFile(filepath.Join(out, "sub", "two.txt"))
	if err != nil || !bytes.Equal(got, []byte("2")) {
		t.Errorf("sub/two.txt = %q, %v", got, err)
	}
	if _, err := os.Stat(filepath.Join(out, "gone.txt")); !os.IsNotExist(err) {
		t.Error("deleted file was downloaded")
	}
}

func TestEngine_DownloadAllContinuesPastFailures(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	broken := env.upload(t, "broken.txt", []byte("broken"))
	env.upload(t, "fine.txt", []byte("fine"))
	env.transport.FailFetches(func(loc string) error {
		if loc == broken.Chunks[0].Locator {
			return errors.New("expired")
		}
		return nil
	})

	report, err := env.engine.DownloadAll(ctx, t.TempDir())
	if err != nil {
		t.Fatalf("DownloadAll() error = %v", err)
	}
	if report.Succeeded() != 1 || report.Failed() != 1 {
		t.Errorf("Succeeded() = %d, Failed() = %d, want 1 and 1", report.Succeeded(), report.Failed())
	}
	if !errors.Is(report.Err(), dsync.ErrChunkUnavailable) {
		t.Errorf("Err() = %v, want ErrChunkUnavailable", report.Err())
	}
}
