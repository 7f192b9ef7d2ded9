package router

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/pratik-mahalle/secwatch/internal/pkg/errors"
	"github.com/pratik-mahalle/secwatch/internal/pkg/logger"
	"github.com/pratik-mahalle/secwatch/internal/pkg/utils"
)

// NewUpstreamProxy forwards requests to the application being watched, so
// its admin and login traffic passes through the security monitor
func NewUpstreamProxy(target string, log *logger.Logger) (http.Handler, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream url: %w", err)
	}

	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(u)
			pr.Out.Header["X-Forwarded-For"] = pr.In.Header["X-Forwarded-For"]
			pr.SetXForwarded()
			pr.Out.Host = pr.In.Host
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.WithFields(map[string]interface{}{
				"upstream": u.Host,
				"path":     r.URL.Path,
			}).ErrorWithErr(err, "Upstream request failed")
			utils.WriteError(w, errors.New(errors.ErrCodeBadGateway, "Upstream unavailable", http.StatusBadGateway))
		},
	}
	return proxy, nil
}
