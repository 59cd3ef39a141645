package logger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNewWritesToFileAtLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "indicator.log")
	l, err := New("warn", path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Info("hidden message")
	l.Warn("refresh failed", zap.String("category", "Parse error"))
	_ = l.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if strings.Contains(out, "hidden message") {
		t.Fatalf("info line should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "refresh failed") || !strings.Contains(out, "Parse error") {
		t.Fatalf("expected warn line with field, got %s", out)
	}
	if !strings.Contains(out, "WARN") {
		t.Fatalf("expected capitalized level, got %s", out)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New("chatty", ""); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	if ValidLevel("chatty") {
		t.Fatalf("expected chatty to be invalid")
	}
	for _, lvl := range []string{"debug", "info", "warn", "error"} {
		if !ValidLevel(lvl) {
			t.Fatalf("expected %s to be valid", lvl)
		}
	}
}

func TestNewDiscard(t *testing.T) {
	l, err := New("debug", "discard")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if l.Core().Enabled(zap.ErrorLevel) {
		t.Fatalf("expected no-op logger")
	}
}

func TestFromContext(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatalf("expected nop fallback")
	}
	l := zap.NewExample()
	ctx := ContextWithLogger(context.Background(), l)
	if FromContext(ctx) != l {
		t.Fatalf("expected stored logger")
	}
}
