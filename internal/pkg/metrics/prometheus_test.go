package metrics

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordSecurityMetrics(t *testing.T) {
	before := promtest.ToFloat64(adminAccessTotal.WithLabelValues("/admin/", "GET", "anonymous"))
	RecordAdminAccess("/admin/t", "GET", "anonymous")
	if got := promtest.ToFloat64(adminAccessTotal.WithLabelValues("/admin/", "GET", "anonymous")); got != before+1 {
		t.Errorf("admin_access_total = %v, want %v", got, before+1)
	}

	RecordFailedLogin("192.0.2.50", 0.8)
	if got := promtest.ToFloat64(failedLoginRate.WithLabelValues("192.0.2.50")); got != 0.8 {
		t.Errorf("failed_login_rate = %v, want 0.8", got)
	}

	before = promtest.ToFloat64(dispatchOutcomesTotal.WithLabelValues("store", "failure"))
	RecordDispatchOutcome("store", "failure", 10*time.Millisecond)
	if got := promtest.ToFloat64(dispatchOutcomesTotal.WithLabelValues("store", "failure")); got != before+1 {
		t.Errorf("dispatch_outcomes_total = %v, want %v", got, before+1)
	}

	SetTrackedKeys(42)
	if got := promtest.ToFloat64(trackedKeys); got != 42 {
		t.Errorf("tracker keys = %v, want 42", got)
	}
}

func TestPathLabel(t *testing.T) {
	pathGroups.Lock()
	saved := pathGroups.seen
	pathGroups.seen = make(map[string]struct{})
	pathGroups.Unlock()
	defer func() {
		pathGroups.Lock()
		pathGroups.seen = saved
		pathGroups.Unlock()
	}()

	tests := []struct{ in, want string }{
		{"/", "/"},
		{"", "/"},
		{"/admin", "/admin/"},
		{"/admin/users/5", "/admin/"},
		{"/wp-login.php", "/wp-login.php/"},
	}
	for _, tt := range tests {
		if got := pathLabel(tt.in); got != tt.want {
			t.Errorf("pathLabel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	for i := 0; len(pathGroups.seen) < maxPathGroups; i++ {
		pathLabel(fmt.Sprintf("/scan-%d/x", i))
	}
	if got := pathLabel("/never-seen/x"); got != "other" {
		t.Errorf("pathLabel() past the cap = %q, want other", got)
	}
	if got := pathLabel("/admin/users"); got != "/admin/" {
		t.Errorf("known group after the cap = %q", got)
	}
	if len(pathGroups.seen) != maxPathGroups {
		t.Errorf("groups = %d, want %d", len(pathGroups.seen), maxPathGroups)
	}
}

func TestMiddleware(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := promtest.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/items/{id}", "418"))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/7", nil))

	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := promtest.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/items/{id}", "418")); got != before+1 {
		t.Errorf("requests_total = %v, want %v", got, before+1)
	}
}

func TestHandler(t *testing.T) {
	RecordAlert("AdminAccess", "info")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if !strings.Contains(rec.Body.String(), "secwatch_alert_total") {
		t.Error("metrics output missing secwatch_alert_total")
	}
}
