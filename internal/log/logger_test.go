package log

import (
	"bytes"
	"context"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLoggerTagsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelDebug, Component: ComponentLedger, Output: &buf})

	logger.Info("Transaction applied", FieldTransactionID, "t1")
	out := buf.String()
	if !strings.Contains(out, "component=ledger") || !strings.Contains(out, "transaction_id=t1") {
		t.Fatalf("unexpected output %q", out)
	}

	buf.Reset()
	logger.WithComponent(ComponentAudit).Warn("drift")
	if !strings.Contains(buf.String(), "component=audit") {
		t.Fatalf("component not switched: %q", buf.String())
	}
}

func TestLogHTTPEndLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Output: &buf})
	ctx := context.WithValue(context.Background(), LoggerContextKey, logger)
	r := httptest.NewRequest("POST", "/transactions?x=1", nil)

	LogHTTPEnd(ctx, r, 422, 3)
	out := buf.String()
	for _, want := range []string{"level=WARN", "status_code=422", "component=http", "path=/transactions", "success=false"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %q", want, out)
		}
	}

	buf.Reset()
	LogHTTPEnd(ctx, r, 500, 3)
	if !strings.Contains(buf.String(), "level=ERROR") {
		t.Errorf("expected error level: %q", buf.String())
	}
}

func TestFromContextFallsBack(t *testing.T) {
	if l := FromContext(context.Background()); l.Component() != "unknown" {
		t.Fatalf("unexpected fallback component %q", l.Component())
	}
}
