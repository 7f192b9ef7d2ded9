package detector

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pratik-mahalle/secwatch/internal/domain/alert"
)

// Default paths watched by the classifier
const (
	DefaultAdminPrefix = "/admin/"
	DefaultLoginPath   = "/admin/login/"
)

// Actor type labels used in admin access metrics
const (
	UserTypeAuthenticated = "authenticated"
	UserTypeAnonymous     = "anonymous"
)

// Config controls which requests are considered security relevant
type Config struct {
	AdminPrefix string
	LoginPath   string
}

// Observation is what the HTTP layer saw for one completed request
type Observation struct {
	Method   string
	Path     string
	Host     string
	ClientIP string
	Status   int

	// Authenticated is true when the request carried a valid identity or the
	// handler issued one (a successful login).
	Authenticated bool
	Identity      string

	// Username is the name submitted to the login form, if any
	Username string

	At time.Time
}

// Classifier turns observed requests into alert records. Failed logins are
// fed through the rate tracker so the record carries the current rate.
type Classifier struct {
	cfg     Config
	tracker *RateWindowTracker
}

// NewClassifier creates a classifier. Empty config paths take the defaults.
func NewClassifier(cfg Config, tracker *RateWindowTracker) *Classifier {
	if cfg.AdminPrefix == "" {
		cfg.AdminPrefix = DefaultAdminPrefix
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = DefaultLoginPath
	}
	if tracker == nil {
		tracker = NewRateWindowTracker(DefaultWindow, DefaultMaxKeys)
	}
	return &Classifier{cfg: cfg, tracker: tracker}
}

// Config returns the effective configuration
func (c *Classifier) Config() Config {
	return c.cfg
}

// IsLoginAttempt reports whether a request is a login form submission
func (c *Classifier) IsLoginAttempt(method, path string) bool {
	return method == http.MethodPost && path == c.cfg.LoginPath
}

// Classify returns the alerts raised by obs, in the order admin access,
// failed login, HTTP error. A request can raise several.
func (c *Classifier) Classify(obs Observation) []*alert.Record {
	if obs.At.IsZero() {
		obs.At = time.Now()
	}
	if obs.Host == "" {
		obs.Host = "unknown"
	}

	var records []*alert.Record
	if rec := c.adminAccess(obs); rec != nil {
		records = append(records, rec)
	}
	if rec := c.failedLogin(obs); rec != nil {
		records = append(records, rec)
	}
	if rec := c.httpError(obs); rec != nil {
		records = append(records, rec)
	}
	return records
}

func (c *Classifier) adminAccess(obs Observation) *alert.Record {
	if !strings.HasPrefix(obs.Path, c.cfg.AdminPrefix) {
		return nil
	}

	severity := alert.SeverityCritical
	userType := UserTypeAnonymous
	if obs.Authenticated {
		severity = alert.SeverityInfo
		userType = UserTypeAuthenticated
	}

	rec, err := alert.New(alert.NameAdminAccess, severity.String(), obs.Host,
		fmt.Sprintf("Admin access on path: %s", obs.Path),
		alert.WithSourceIP(obs.ClientIP),
		alert.WithUser(actor(obs)),
		alert.WithTimestamp(obs.At),
		alert.WithMetrics(map[string]interface{}{
			"method":    obs.Method,
			"path":      obs.Path,
			"user_type": userType,
		}),
	)
	if err != nil {
		return nil
	}
	return rec
}

func (c *Classifier) failedLogin(obs Observation) *alert.Record {
	if !c.IsLoginAttempt(obs.Method, obs.Path) || obs.Authenticated {
		return nil
	}

	c.tracker.RecordEvent(obs.ClientIP, obs.At)
	rate := c.tracker.CurrentRate(obs.ClientIP, obs.At)

	username := obs.Username
	if username == "" {
		username = "unknown"
	}

	rec, err := alert.New(alert.NameFailedLoginAttempt, alert.SeverityCritical.String(), obs.Host,
		fmt.Sprintf("Failed login attempt for user: %s", username),
		alert.WithSourceIP(obs.ClientIP),
		alert.WithUser(username),
		alert.WithTimestamp(obs.At),
		alert.WithMetrics(map[string]interface{}{
			"failed_login_rate": rate,
		}),
	)
	if err != nil {
		return nil
	}
	return rec
}

func (c *Classifier) httpError(obs Observation) *alert.Record {
	if obs.Status < 400 || obs.Status > 599 {
		return nil
	}

	severity := alert.SeverityWarning
	if obs.Status >= 500 {
		severity = alert.SeverityError
	}

	rec, err := alert.New(alert.NameHTTPError, severity.String(), obs.Host,
		fmt.Sprintf("HTTP %d error on %s", obs.Status, obs.Path),
		alert.WithSourceIP(obs.ClientIP),
		alert.WithUser(actor(obs)),
		alert.WithTimestamp(obs.At),
		alert.WithMetrics(map[string]interface{}{
			"status_code": obs.Status,
			"method":      obs.Method,
			"path":        obs.Path,
		}),
	)
	if err != nil {
		return nil
	}
	return rec
}

// actor names the requester: the identity when authenticated, else anonymous
func actor(obs Observation) string {
	if obs.Authenticated && obs.Identity != "" {
		return obs.Identity
	}
	return UserTypeAnonymous
}
