package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
)

func TestContextLoggingCarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "info").With("component", "test")

	ctx := WithRequestID(context.Background(), "req-42")
	logger.InfoContext(ctx, "hello")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if rec["request_id"] != "req-42" || rec["component"] != "test" {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestInvalidLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "loud")
	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug record written at default level: %s", buf.String())
	}
	logger.Info("shown")
	if buf.Len() == 0 {
		t.Fatalf("info record missing")
	}
}
