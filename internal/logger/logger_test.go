package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRedactsSecretKeys(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := &Logger{SugaredLogger: zap.New(core).Sugar()}

	log.With("request_id", "r1").Info("upload", "authorization", "Bearer abc", "kind", "machines")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("entries = %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["authorization"] != "[REDACTED]" {
		t.Fatalf("authorization = %v", fields["authorization"])
	}
	if fields["kind"] != "machines" || fields["request_id"] != "r1" {
		t.Fatalf("fields = %v", fields)
	}
}

func TestOddKeyValues(t *testing.T) {
	got := redact([]interface{}{"a", 1, "dangling"})
	if len(got) != 3 || got[2] != "dangling" {
		t.Fatalf("redact = %v", got)
	}
}
