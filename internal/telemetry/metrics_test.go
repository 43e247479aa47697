package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeSink struct {
	outcomes []string
	err      error
}

func (f *fakeSink) RecordOutcome(ctx context.Context, outcome string) error {
	f.outcomes = append(f.outcomes, outcome)
	return f.err
}

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	return rec.Body.String()
}

func TestRecorder_CountsAndForwards(t *testing.T) {
	sink := &fakeSink{}
	r := NewRecorder(sink)
	r.Record(context.Background(), "finalized")
	r.Record(context.Background(), "finalized")

	if len(sink.outcomes) != 2 {
		t.Fatalf("expected sink to see 2 outcomes, got %d", len(sink.outcomes))
	}
	body := scrape(t)
	if !strings.Contains(body, `leadflow_fulfillment_outcomes_total{outcome="finalized"} 2`) {
		t.Fatalf("finalized count missing:\n%s", body)
	}

	// sink errors are logged, not returned
	sink.err = errors.New("throttled")
	r.Record(context.Background(), "errored")
	NewRecorder(nil).Record(context.Background(), "deduplicated")
	body = scrape(t)
	if !strings.Contains(body, `leadflow_fulfillment_outcomes_total{outcome="deduplicated"} 1`) {
		t.Fatalf("deduplicated count missing:\n%s", body)
	}
}

func TestHandler_Singleton(t *testing.T) {
	_ = Handler()
	_ = Handler()
	CheckoutsCreated.Inc()
	if !strings.Contains(scrape(t), "leadflow_checkouts_created_total") {
		t.Fatalf("metric missing from output")
	}
}
