package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pratik-mahalle/secwatch/internal/detector"
)

func TestClientIP(t *testing.T) {
	trust, err := detector.ParseTrustedProxies([]string{"10.0.0.0/8"})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		trust      *detector.ProxyTrust
		remoteAddr string
		want       string
	}{
		{"spoofed header from untrusted peer", trust, "198.51.100.1:5000", "198.51.100.1"},
		{"header from trusted proxy", trust, "10.0.0.2:5000", "203.0.113.7"},
		{"nil trust keeps first hop", nil, "198.51.100.1:5000", "203.0.113.7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := ClientIP(tt.trust)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = detector.ClientIP(r)
			}))

			req := httptest.NewRequest(http.MethodPost, "/admin/login/", nil)
			req.RemoteAddr = tt.remoteAddr
			req.Header.Set("X-Forwarded-For", "203.0.113.7")
			h.ServeHTTP(httptest.NewRecorder(), req)

			if got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
