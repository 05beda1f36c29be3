package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-42")
	if got := RequestID(ctx); got != "req-42" {
		t.Fatalf("expected req-42, got %q", got)
	}
	if got := RequestID(context.Background()); got != "unknown" {
		t.Fatalf("expected unknown for empty context, got %q", got)
	}
}

func TestLogInfoUsesContextLogger(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf)
	ctx := WithContext(context.Background(), &l)
	ctx = WithRequestID(ctx, "req-7")

	LogInfo(ctx, "payin created", "payin_id", "p-1", 42, "ignored")

	out := buf.String()
	if !strings.Contains(out, `"request_id":"req-7"`) {
		t.Fatalf("expected request id in log line, got %s", out)
	}
	if !strings.Contains(out, `"payin_id":"p-1"`) {
		t.Fatalf("expected payin_id field, got %s", out)
	}
}
