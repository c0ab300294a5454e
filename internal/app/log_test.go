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

func TestDriveHandler_Handle(t *testing.T) {
	ts := time.Date(2026, 3, 10, 9, 15, 30, 0, time.UTC)

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
			opID:    "sync-20260310T091530Z",
			level:   slog.LevelInfo,
			message: "manifest adopted",
			want:    "2026-03-10T09:15:30Z\tINFO\tsync-20260310T091530Z\tmanifest adopted\n",
		},
		{
			name:    "debug level",
			opID:    "get-1",
			level:   slog.LevelDebug,
			message: "blob download failed",
			want:    "2026-03-10T09:15:30Z\tDEBUG\tget-1\tblob download failed\n",
		},
		{
			name:    "with record attrs",
			opID:    "put-1",
			level:   slog.LevelInfo,
			message: "uploaded",
			attrs:   []slog.Attr{slog.String("path", "/docs/file.txt"), slog.Int("size", 42)},
			want:    "2026-03-10T09:15:30Z\tINFO\tput-1\tuploaded\tpath=/docs/file.txt\tsize=42\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := &driveHandler{w: &buf, opID: tt.opID}

			r := slog.NewRecord(ts, tt.level, tt.message, 0)
			for _, a := range tt.attrs {
				r.AddAttrs(a)
			}

			if err := h.Handle(context.Background(), r); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}

			if got := buf.String(); got != tt.want {
				t.Errorf("Handle() output =\n%q\nwant:\n%q", got, tt.want)
			}
		})
	}
}

func TestDriveHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := &driveHandler{w: &buf, opID: "op-1"}

	h2 := h.WithAttrs([]slog.Attr{slog.String("server", "https://cdn.example.com")}).(*driveHandler)

	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := slog.NewRecord(ts, slog.LevelInfo, "upload", 0)
	r.AddAttrs(slog.String("sha256", "abc"))

	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "server=https://cdn.example.com") {
		t.Errorf("expected pre-set attr, got: %q", got)
	}
	if !strings.Contains(got, "sha256=abc") {
		t.Errorf("expected record attr, got: %q", got)
	}
}

func TestNewLogger(t *testing.T) {
	logDir := filepath.Join(t.TempDir(), "log")

	logger, f, err := newLogger(logDir, "test-op")
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	defer f.Close()

	logger.Info("hello", "key", "value")

	data, err := os.ReadFile(filepath.Join(logDir, "blossom.log"))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	line := string(data)
	if !strings.Contains(line, "\tINFO\ttest-op\thello\tkey=value\n") {
		t.Errorf("log line = %q", line)
	}
}
