package health

import (
	"context"
	"errors"
	"testing"
)

func TestStatusWithoutChecks(t *testing.T) {
	if r := NewService().Status(context.Background()); !r.OK || r.Checks != nil {
		t.Fatalf("unexpected report %+v", r)
	}
}

func TestStatusReportsFailingCheck(t *testing.T) {
	svc := NewService()
	svc.Add("database", func(context.Context) error { return nil })
	svc.Add("redis", func(context.Context) error { return errors.New("dial tcp: refused") })
	svc.Add("skipped", nil)

	r := svc.Status(context.Background())
	if r.OK {
		t.Fatalf("expected not ok")
	}
	if r.Checks["database"] != "ok" || r.Checks["redis"] != "dial tcp: refused" {
		t.Fatalf("unexpected checks %+v", r.Checks)
	}
	if _, ok := r.Checks["skipped"]; ok {
		t.Fatalf("nil check must not be registered")
	}
}
