package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"time"

	"github.com/pratik-mahalle/secwatch/internal/auth"
	"github.com/pratik-mahalle/secwatch/internal/detector"
	"github.com/pratik-mahalle/secwatch/internal/domain/alert"
	"github.com/pratik-mahalle/secwatch/internal/pkg/logger"
)

// maxLoginBody caps how much of a login submission is buffered
const maxLoginBody = 64 << 10

// SecurityMonitorConfig contains the settings used to recognise actors
type SecurityMonitorConfig struct {
	JWTSecret   string
	TokenCookie string
}

// SecurityMonitor observes every request and raises admin access, failed
// login and HTTP error alerts once the handler has finished
type SecurityMonitor struct {
	classifier *detector.Classifier
	dispatcher alert.Dispatcher
	cfg        SecurityMonitorConfig
	logger     *logger.Logger
}

// NewSecurityMonitor creates a monitor
func NewSecurityMonitor(classifier *detector.Classifier, dispatcher alert.Dispatcher, cfg SecurityMonitorConfig, log *logger.Logger) *SecurityMonitor {
	return &SecurityMonitor{
		classifier: classifier,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     log,
	}
}

// Handler wraps next. Alerts are dispatched asynchronously so the response
// is never delayed by a sink.
func (m *SecurityMonitor) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		at := time.Now()

		var username string
		loginAttempt := m.classifier.IsLoginAttempt(r.Method, r.URL.Path)
		if loginAttempt {
			username = m.submittedUsername(r)
		}

		identity, authenticated := m.requestIdentity(r)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK, tokenCookie: m.cfg.TokenCookie}
		next.ServeHTTP(rec, r)
		if !rec.wroteHeader {
			rec.captureToken()
		}

		if loginAttempt && !authenticated && rec.issuedToken != "" {
			authenticated = true
			identity = username
			if claims, err := auth.ParseClaims(rec.issuedToken, m.cfg.JWTSecret); err == nil && claims.Identity() != "" {
				identity = claims.Identity()
			}
		}

		obs := detector.Observation{
			Method:        r.Method,
			Path:          r.URL.Path,
			Host:          r.Host,
			ClientIP:      detector.ClientIP(r),
			Status:        rec.status,
			Authenticated: authenticated,
			Identity:      identity,
			Username:      username,
			At:            at,
		}
		for _, a := range m.classifier.Classify(obs) {
			m.dispatcher.DispatchAsync(a)
		}
	})
}

// requestIdentity returns the actor established by an earlier auth
// middleware or carried by the request's own token
func (m *SecurityMonitor) requestIdentity(r *http.Request) (string, bool) {
	if identity, ok := GetIdentity(r); ok {
		return identity, true
	}
	tokenStr := auth.TokenFromRequest(r, m.cfg.TokenCookie)
	if tokenStr == "" || m.cfg.JWTSecret == "" {
		return "", false
	}
	claims, err := auth.ParseClaims(tokenStr, m.cfg.JWTSecret)
	if err != nil {
		return "", false
	}
	return claims.Identity(), true
}

// submittedUsername reads the username from a form or JSON login body and
// restores the body for the handler
func (m *SecurityMonitor) submittedUsername(r *http.Request) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxLoginBody))
	if err != nil {
		m.logger.WithError(err).Debug("Failed to read login body")
	}
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(body), r.Body), r.Body}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		var payload struct {
			Username string `json:"username"`
		}
		if err := json.Unmarshal(body, &payload); err == nil {
			return payload.Username
		}
	case "application/x-www-form-urlencoded", "":
		if values, err := url.ParseQuery(string(body)); err == nil {
			return values.Get("username")
		}
	}
	return ""
}

// statusRecorder captures the status code and whether the handler issued an
// access token cookie
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	tokenCookie string
	issuedToken string
}

func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.wroteHeader {
		sr.wroteHeader = true
		sr.status = code
		sr.captureToken()
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.wroteHeader {
		sr.WriteHeader(http.StatusOK)
	}
	return sr.ResponseWriter.Write(b)
}

func (sr *statusRecorder) Flush() {
	if !sr.wroteHeader {
		sr.WriteHeader(http.StatusOK)
	}
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func (sr *statusRecorder) captureToken() {
	if sr.tokenCookie == "" {
		return
	}
	for _, line := range sr.Header().Values("Set-Cookie") {
		c, err := http.ParseSetCookie(line)
		if err != nil || c.Name != sr.tokenCookie {
			continue
		}
		if c.Value != "" && c.MaxAge >= 0 {
			sr.issuedToken = c.Value
		}
	}
}
