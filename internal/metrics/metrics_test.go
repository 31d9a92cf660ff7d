package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/smileynet/countrylookup/internal/lookup"
)

func TestObserveLookup_CountsByKindAndOutcome(t *testing.T) {
	m := New()

	m.ObserveLookup("capital", lookup.OutcomeOK, 10*time.Millisecond)
	m.ObserveLookup("capital", lookup.OutcomeOK, 10*time.Millisecond)
	m.ObserveLookup("region", lookup.OutcomeError, time.Second)

	if got := testutil.ToFloat64(m.Lookups.WithLabelValues("capital", "ok")); got != 2 {
		t.Errorf("capital/ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Lookups.WithLabelValues("region", "error")); got != 1 {
		t.Errorf("region/error = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Lookups.WithLabelValues("name", "ok")); got != 0 {
		t.Errorf("name/ok = %v, want 0", got)
	}
}

func TestNew_IndependentRegistries(t *testing.T) {
	// Two instances must not collide on registration.
	a, b := New(), New()
	a.ObserveLookup("alpha", lookup.OutcomeEmpty, 0)

	if got := testutil.ToFloat64(b.Lookups.WithLabelValues("alpha", "empty")); got != 0 {
		t.Errorf("second registry saw %v lookups, want 0", got)
	}
}

func TestHandler_ExposesCounters(t *testing.T) {
	m := New()
	m.ObserveLookup("name", lookup.OutcomeOK, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `countries_lookups_total{kind="name",outcome="ok"} 1`) {
		t.Errorf("metrics output missing counter:\n%s", body)
	}
}
