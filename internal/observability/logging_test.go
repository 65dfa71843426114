package observability

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestWithDocumentID(t *testing.T) {
	ctx := WithDocumentID(context.Background(), "doc-123")

	lc := GetContext(ctx)
	if lc.DocumentID != "doc-123" {
		t.Errorf("expected doc-123, got %s", lc.DocumentID)
	}
}

func TestContextChaining(t *testing.T) {
	ctx := context.Background()
	ctx = WithDocumentID(ctx, "doc-1")
	ctx = WithRenderer(ctx, "markdown")
	ctx = WithSource(ctx, "watcher")

	lc := GetContext(ctx)
	if lc.DocumentID != "doc-1" || lc.Renderer != "markdown" || lc.Source != "watcher" {
		t.Errorf("context values lost in chaining: %+v", lc)
	}
}

func TestOverwriteContextValue(t *testing.T) {
	ctx := WithRenderer(context.Background(), "a")
	ctx = WithRenderer(ctx, "b")

	if got := GetContext(ctx).Renderer; got != "b" {
		t.Errorf("expected b, got %s", got)
	}
}

func TestInfoContext(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	ctx := WithDocumentID(context.Background(), "doc-9")
	InfoContext(ctx, "rendered", slog.String("extra", "value"))

	output := buf.String()
	for _, want := range []string{"doc-9", "rendered", "value"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in log output: %s", want, output)
		}
	}
}

func TestDebugContextFilteredByLevel(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(NewLogger(&buf, "info", "text"))
	defer slog.SetDefault(prev)

	DebugContext(context.Background(), "hidden")
	WarnContext(context.Background(), "shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("debug message should be filtered at info level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("warn message should be logged")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "info", "json").Info("hello")
	if !strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Errorf("expected JSON output, got %s", buf.String())
	}
}
