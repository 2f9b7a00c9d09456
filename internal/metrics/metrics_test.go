package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if lflSearchesTotal == nil || lflCalendarFetchesTotal == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveSearchCountsIdentifiers(t *testing.T) {
	before := testutil.ToFloat64(lflSearchesTotalFor("found"))
	beforeIDs := testutil.ToFloat64(lflTeamIdentifiersTotal)

	ObserveSearch("found", 3)
	ObserveSearch("found", 0)

	if got := testutil.ToFloat64(lflSearchesTotalFor("found")) - before; got != 2 {
		t.Errorf("expected 2 searches recorded, got %f", got)
	}
	if got := testutil.ToFloat64(lflTeamIdentifiersTotal) - beforeIDs; got != 3 {
		t.Errorf("expected 3 identifiers recorded, got %f", got)
	}
}

func TestObserveCalendarFetch(t *testing.T) {
	Init()
	before := testutil.ToFloat64(lflCalendarFetchesTotal.WithLabelValues("shape"))

	ObserveCalendarFetch("shape")

	if got := testutil.ToFloat64(lflCalendarFetchesTotal.WithLabelValues("shape")) - before; got != 1 {
		t.Errorf("expected calendar fetch counter to increase by 1, got %f", got)
	}
}

func TestActiveWatchersGauge(t *testing.T) {
	Init()
	start := testutil.ToFloat64(paymentActiveWatchers)

	IncActiveWatchers()
	IncActiveWatchers()
	DecActiveWatchers()

	if got := testutil.ToFloat64(paymentActiveWatchers) - start; got != 1 {
		t.Errorf("expected gauge delta 1, got %f", got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	ObserveHTTPRequest(http.MethodGet, "/v1/fixtures", http.StatusOK, 20*time.Millisecond)
	ObservePipeline(150 * time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	for _, name := range []string{"http_requests_total", "lfl_pipeline_duration_seconds"} {
		if !strings.Contains(body, name) {
			t.Errorf("expected %s in metrics output", name)
		}
	}
}

func lflSearchesTotalFor(outcome string) prometheus.Counter {
	Init()
	return lflSearchesTotal.WithLabelValues(outcome)
}
