package queue

import (
	"testing"
)

func TestDecodeMessageReadsJobID(t *testing.T) {
	got, err := DecodeMessage([]byte(`{"jobId":"job-1","projectId":"p1","requestId":"r1","version":1}`))
	if err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if got.JobID != "job-1" || got.ProjectID != "p1" || got.Version != MessageVersion {
		t.Fatalf("unexpected message %+v", got)
	}
}

func TestDecodeMessageRejectsGarbage(t *testing.T) {
	if _, err := DecodeMessage([]byte("not json")); err == nil {
		t.Fatalf("expected decode error")
	}
}
