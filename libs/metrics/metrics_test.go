package metrics

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveRequestFoldsUnmatchedRoutes(t *testing.T) {
	before := testutil.ToFloat64(RequestCount.WithLabelValues(http.MethodGet, "unmatched", "404"))

	ObserveRequest(http.MethodGet, "", http.StatusNotFound, 3*time.Millisecond)
	ObserveRequest(http.MethodGet, "", http.StatusNotFound, 4*time.Millisecond)

	after := testutil.ToFloat64(RequestCount.WithLabelValues(http.MethodGet, "unmatched", "404"))
	if after-before != 2 {
		t.Fatalf("expected 2 unmatched requests, got %v", after-before)
	}
}

func TestObserveRequestLabelsStatusCode(t *testing.T) {
	before := testutil.ToFloat64(RequestCount.WithLabelValues(http.MethodPost, "/trades", "201"))

	ObserveRequest(http.MethodPost, "/trades", http.StatusCreated, time.Millisecond)

	if got := testutil.ToFloat64(RequestCount.WithLabelValues(http.MethodPost, "/trades", "201")) - before; got != 1 {
		t.Fatalf("expected one /trades 201, got %v", got)
	}
}
