package requestctx

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestLoggerDefaultsToNoop(t *testing.T) {
	if got := Logger(context.Background()); got != NoopLogger() {
		t.Fatalf("expected noop logger, got %v", got)
	}
	logger := zap.NewExample()
	ctx := WithLogger(context.Background(), logger)
	if got := Logger(ctx); got != logger {
		t.Fatalf("expected stored logger")
	}
}

func TestViewerRoundTrip(t *testing.T) {
	if _, ok := Viewer(context.Background()); ok {
		t.Fatalf("expected no viewer on empty context")
	}
	ctx := WithViewer(context.Background(), "  42  ")
	viewer, ok := Viewer(ctx)
	if !ok || viewer != "42" {
		t.Fatalf("expected trimmed viewer 42, got %q (ok=%v)", viewer, ok)
	}
	if _, ok := Viewer(WithViewer(context.Background(), "   ")); ok {
		t.Fatalf("expected blank viewer to be treated as absent")
	}
}

func TestTraceID(t *testing.T) {
	ctx := WithTrace(context.Background(), TraceInfo{TraceID: "abc", SpanID: "def", Sampled: true})
	if got := TraceID(ctx); got != "abc" {
		t.Fatalf("expected trace id abc, got %q", got)
	}
	if got := TraceID(context.Background()); got != "" {
		t.Fatalf("expected empty trace id, got %q", got)
	}
}
