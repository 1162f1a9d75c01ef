package app

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDsyncHandler_Handle(t *testing.T) {
	ts := time.Date(2025, 3, 1, 9, 30, 45, 0, time.UTC)

	tests := []struct {
		name    string
		opID    string
		level   slog.Level
		message string
		attrs   []slog.Attr
		want    string
	}{
		{
			name:    "basic info message",
			opID:    "op-123",
			level:   slog.LevelInfo,
			message: "file uploaded",
			want:    "2025-03-01T09:30:45Z\tINFO\top-123\tfile uploaded\n",
		},
		{
			name:    "warn level",
			opID:    "op-456",
			level:   slog.LevelWarn,
			message: "mirroring files index failed",
			want:    "2025-03-01T09:30:45Z\tWARN\top-456\tmirroring files index failed\n",
		},
		{
			name:    "with record attrs",
			opID:    "op-789",
			level:   slog.LevelInfo,
			message: "file uploaded",
			attrs:   []slog.Attr{slog.String("path", "docs/a.pdf"), slog.Int("chunks", 2)},
			want:    "2025-03-01T09:30:45Z\tINFO\top-789\tfile uploaded\tpath=docs/a.pdf\tchunks=2\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := &dsyncHandler{w: &buf, opID: tt.opID}

			r := slog.NewRecord(ts, tt.level, tt.message, 0)
			r.AddAttrs(tt.attrs...)

			if err := h.Handle(context.Background(), r); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}
			if got := buf.String(); got != tt.want {
				t.Errorf("Handle() output =\n%q\nwant:\n%q", got, tt.want)
			}
		})
	}
}

func TestDsyncHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := &dsyncHandler{w: &buf, opID: "op-1", attrs: []slog.Attr{slog.String("a", "1")}}

	h2 := h.WithAttrs([]slog.Attr{slog.String("component", "mirror")}).(*dsyncHandler)
	if len(h.attrs) != 1 {
		t.Errorf("original handler attrs modified: got %d, want 1", len(h.attrs))
	}

	r := slog.NewRecord(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), slog.LevelInfo, "patched", 0)
	r.AddAttrs(slog.String("id", "abc"))
	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := buf.String()
	for _, want := range []string{"a=1", "component=mirror", "id=abc"} {
		if !strings.Contains(got, want) {
			t.Errorf("output %q missing %s", got, want)
		}
	}
}

func TestDsyncHandler_Enabled(t *testing.T) {
	tests := []struct {
		name  string
		level slog.Leveler
		check slog.Level
		want  bool
	}{
		{"nil level enables debug", nil, slog.LevelDebug, true},
		{"info hides debug", slog.LevelInfo, slog.LevelDebug, false},
		{"info shows warn", slog.LevelInfo, slog.LevelWarn, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &dsyncHandler{level: tt.level}
			if got := h.Enabled(context.Background(), tt.check); got != tt.want {
				t.Errorf("Enabled(%v) = %v, want %v", tt.check, got, tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	dir := t.TempDir()

	logger, closer, err := newLogger(dir, "upload", "op-1", slog.LevelInfo)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	logger.Info("hello", "k", "v")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "upload.log"))
	if err != nil {
		t.Fatalf("reading log through link: %v", err)
	}
	if !strings.Contains(string(data), "op-1\thello\tk=v") {
		t.Errorf("log file = %q", data)
	}
}
