package telemetry

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestInfoWritesJSONLine(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, logrus.InfoLevel)
	t.Cleanup(func() { SetOutput(os.Stdout, logrus.InfoLevel) })

	Info("job.status", map[string]any{"job_id": "job-1", "status": "processing"})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if entry["msg"] != "job.status" {
		t.Fatalf("expected msg job.status, got %v", entry["msg"])
	}
	if entry["level"] != "info" {
		t.Fatalf("expected level info, got %v", entry["level"])
	}
	if entry["job_id"] != "job-1" {
		t.Fatalf("expected job_id field, got %v", entry["job_id"])
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("expected ts field")
	}
}

func TestLevelFiltersInfo(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, logrus.ErrorLevel)
	t.Cleanup(func() { SetOutput(os.Stdout, logrus.InfoLevel) })

	Info("dropped", nil)
	Warn("dropped", nil)
	if buf.Len() != 0 {
		t.Fatalf("expected info/warn to be filtered, got %q", buf.String())
	}
	Error("kept", nil)
	if buf.Len() == 0 {
		t.Fatalf("expected error line")
	}
}
