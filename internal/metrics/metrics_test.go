package metrics

import (
	"testing"
	"time"
)

func TestStopIsIdempotent(t *testing.T) {
	report := NewReport(nil)
	rec := report.StartStep("env-1", StepLabelEnvironment, StepTotal)

	first := time.Now().Add(time.Second)
	rec.Stop(StatusSuccess, first)

	second := first.Add(time.Minute)
	rec.Stop(StatusError, second)

	if rec.Status != StatusSuccess {
		t.Fatalf("expected first Stop() call to win, got status %v", rec.Status)
	}
	if !rec.StoppedAt.Equal(first) {
		t.Fatalf("expected stopped-at to be the first call's timestamp, got %v", rec.StoppedAt)
	}
}

func TestReportAccumulatesRecords(t *testing.T) {
	report := NewReport(nil)
	report.StartStep("svc-1", StepLabelService, StepBuild)
	report.StartStep("svc-1", StepLabelService, StepDeploy)

	if got := len(report.Records()); got != 2 {
		t.Fatalf("expected 2 records, got %d", got)
	}
}
