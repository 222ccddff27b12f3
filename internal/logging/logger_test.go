// Package logging tests for structured logging.
package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

// TestInfo verifies info messages are emitted as JSON with fields.
func TestInfo(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf, "info")

	Info("queue updated", map[string]interface{}{"count": 3})

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Log output is not valid JSON: %v", err)
	}

	if entry["msg"] != "queue updated" {
		t.Errorf("msg = %v, want 'queue updated'", entry["msg"])
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v, want info", entry["level"])
	}
	if entry["count"] != float64(3) {
		t.Errorf("count = %v, want 3", entry["count"])
	}
}

// TestDebug_belowMinLevel verifies debug messages are suppressed at info level.
func TestDebug_belowMinLevel(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf, "info")

	Debug("should not appear", nil)

	if buf.Len() != 0 {
		t.Errorf("Expected no output for debug at info level, got %q", buf.String())
	}
}

// TestDebug_atDebugLevel verifies debug messages appear at debug level.
func TestDebug_atDebugLevel(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf, "debug")

	Debug("probe tick", nil)

	if !strings.Contains(buf.String(), "probe tick") {
		t.Errorf("Expected debug output, got %q", buf.String())
	}
}

// TestError_includesError verifies the error value is attached.
func TestError_includesError(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf, "info")

	Error("sync failed", errTest("boom"), map[string]interface{}{"attempt": 1})

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Log output is not valid JSON: %v", err)
	}

	if entry["error"] != "boom" {
		t.Errorf("error = %v, want boom", entry["error"])
	}
}

// TestErrorWithCode verifies the code field is attached.
func TestErrorWithCode(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf, "info")

	ErrorWithCode("sync failed", "SYNC_FAILED", errTest("boom"), nil)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Log output is not valid JSON: %v", err)
	}

	if entry["code"] != "SYNC_FAILED" {
		t.Errorf("code = %v, want SYNC_FAILED", entry["code"])
	}
}

// TestSetup_invalidLevel verifies unknown levels fall back to info.
func TestSetup_invalidLevel(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf, "verbose")

	Debug("hidden", nil)
	Info("visible", nil)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("Debug output should be suppressed after invalid level fallback")
	}
	if !strings.Contains(out, "visible") {
		t.Error("Info output should be emitted after invalid level fallback")
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
