package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObservePublish(t *testing.T) {
	m := New()
	m.ObservePublish("success", 3)
	m.ObservePublish("failure", 1)
	m.ObservePublish("success", 2)

	if got := testutil.ToFloat64(m.PublishAttempts.WithLabelValues("success")); got != 2 {
		t.Errorf("success attempts = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.PublishFiles); got != 6 {
		t.Errorf("files = %v, want 6", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.SetTracked(4)
	m.ObserveReconcile(0.01)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{"herald_tracked_notes 4", "herald_reconcile_duration_seconds_count 1"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
