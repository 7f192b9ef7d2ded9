package router

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pratik-mahalle/secwatch/internal/api/handlers"
	"github.com/pratik-mahalle/secwatch/internal/api/middleware"
	"github.com/pratik-mahalle/secwatch/internal/auth"
	"github.com/pratik-mahalle/secwatch/internal/config"
	"github.com/pratik-mahalle/secwatch/internal/detector"
	"github.com/pratik-mahalle/secwatch/internal/domain/alert"
	"github.com/pratik-mahalle/secwatch/internal/pkg/logger"
	"github.com/pratik-mahalle/secwatch/internal/pkg/validator"
	"github.com/pratik-mahalle/secwatch/internal/testutil"
)

const secret = "router-secret"

func newTestRouter(t *testing.T, upstream http.Handler) (http.Handler, *testutil.MockDispatcher) {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{Environment: "test", AllowedOrigins: []string{"*"}},
		Auth:   config.AuthConfig{JWTSecret: secret, TokenCookie: "accessToken"},
	}
	log := logger.New(logger.Config{Level: "error", Format: "json"})
	d := &testutil.MockDispatcher{}

	monitor := middleware.NewSecurityMonitor(
		detector.NewClassifier(detector.Config{}, nil), d,
		middleware.SecurityMonitorConfig{JWTSecret: secret, TokenCookie: "accessToken"}, log)

	h := &Handlers{
		Health: handlers.NewHealthHandler(nil, log),
		Alert:  handlers.NewAlertHandler(d, testutil.NewMockAlertRepository(), log, validator.New()),
	}
	return New(cfg, log, h, Options{
		Monitor:  monitor,
		Limiter:  middleware.NewRateLimiter(100, 100),
		Upstream: upstream,
	}), d
}

func TestRouter_Routes(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	token, _ := auth.MintToken("ops", secret, time.Hour)

	tests := []struct {
		name           string
		method         string
		path           string
		body           string
		token          string
		expectedStatus int
	}{
		{"healthz", http.MethodGet, "/healthz", "", "", http.StatusOK},
		{"readyz", http.MethodGet, "/readyz", "", "", http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", "", "", http.StatusOK},
		{"alerts require auth", http.MethodGet, "/api/v1/alerts", "", "", http.StatusUnauthorized},
		{"list alerts", http.MethodGet, "/api/v1/alerts", "", token, http.StatusOK},
		{"create alert", http.MethodPost, "/api/v1/alerts",
			`{"alert_name":"X","severity":"info","instance":"i","description":"d"}`, token, http.StatusOK},
		{"unknown path", http.MethodGet, "/nope", "", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, bytes.NewBufferString(tt.body))
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)
			if rr.Code != tt.expectedStatus {
				t.Errorf("%s %s = %d, want %d (%s)", tt.method, tt.path, rr.Code, tt.expectedStatus, rr.Body.String())
			}
		})
	}
}

func TestRouter_MonitorsUnknownAdminPaths(t *testing.T) {
	r, d := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/", nil)
	req.RemoteAddr = "198.51.100.20:5555"
	r.ServeHTTP(httptest.NewRecorder(), req)

	records := d.Records()
	if len(records) != 2 {
		t.Fatalf("alerts = %d, want AdminAccess and HTTPError", len(records))
	}
	if records[0].Name() != alert.NameAdminAccess || records[0].SourceIP() != "198.51.100.20" {
		t.Errorf("first alert = %s from %s", records[0].Name(), records[0].SourceIP())
	}
}

func TestRouter_Upstream(t *testing.T) {
	var gotXFF, gotHost string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotXFF = r.Header.Get("X-Forwarded-For")
		gotHost = r.Host
		if r.URL.Path == "/admin/login/" {
			w.Write([]byte("bad password"))
			return
		}
		w.Write([]byte("app"))
	}))
	defer backend.Close()

	proxy, err := NewUpstreamProxy(backend.URL, logger.New(logger.Config{Level: "error"}))
	if err != nil {
		t.Fatalf("NewUpstreamProxy() error = %v", err)
	}
	r, d := newTestRouter(t, proxy)

	req := httptest.NewRequest(http.MethodPost, "/admin/login/", strings.NewReader("username=root&password=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Forwarded-For", "203.0.113.50")
	req.Host = "shop.example.com"
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	body, _ := io.ReadAll(rr.Body)
	if rr.Code != http.StatusOK || string(body) != "bad password" {
		t.Fatalf("proxied response = %d %q", rr.Code, body)
	}
	if !strings.HasPrefix(gotXFF, "203.0.113.50") || gotHost != "shop.example.com" {
		t.Errorf("upstream saw XFF %q host %q", gotXFF, gotHost)
	}

	var failed *alert.Record
	for _, rec := range d.Records() {
		if rec.Name() == alert.NameFailedLoginAttempt {
			failed = rec
		}
	}
	if failed == nil || failed.User() != "root" || failed.SourceIP() != "203.0.113.50" || failed.Instance() != "shop.example.com" {
		t.Errorf("failed login alert = %+v", failed)
	}
}
