// Package lighttrace serves the LightTrace dashboard and its API in front of
// a host application's handler.
//
// Requests under {base}/api are answered from an explicit route table,
// other requests under {base}/ get dashboard assets, and everything else is
// passed to the next handler untouched.
package lighttrace

import (
	"context"
	"io/fs"
	"net/http"
	"strings"

	"github.com/okian/lighttrace/internal/domain/model"
	"github.com/okian/lighttrace/pkg/logger"
)

// TraceSource is the trace store seen by the middleware.
type TraceSource interface {
	Entries(ctx context.Context) ([]model.Entry, error)
	Reset(ctx context.Context) error
}

// Middleware dispatches LightTrace requests. It is safe for concurrent use.
type Middleware struct {
	opts    Options
	source  TraceSource
	assets  fs.FS
	static  *staticServer
	routes  map[string]route
	apiPath string
	logger  logger.Logger
}

// New validates opts, prepares the dashboard page and builds the route table.
func New(source TraceSource, opts Options, options ...Option) (*Middleware, error) {
	if source == nil {
		return nil, ErrNilSource
	}
	normalized, err := opts.normalize()
	if err != nil {
		return nil, err
	}

	m := &Middleware{
		opts:    normalized,
		source:  source,
		assets:  dashboardFS,
		apiPath: normalized.BasePath + "/api",
	}
	for _, opt := range options {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logger.Get().Named("lighttrace")
	}

	m.static, err = newStaticServer(m.opts, m.assets, m.logger)
	if err != nil {
		return nil, err
	}
	m.routes = m.routeTable()

	m.logger.Info(context.Background(), "lighttrace mounted",
		logger.String("basePath", m.opts.BasePath),
		logger.Bool("enableUI", m.opts.EnableUI),
	)
	return m, nil
}

// Options returns the effective, normalized options.
func (m *Middleware) Options() Options {
	return m.opts
}

// Handler wraps next. A nil next answers pass-through requests with 404.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	if next == nil {
		next = http.NotFoundHandler()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.dispatch(w, r, next)
	})
}

// ServeHTTP lets the middleware be mounted directly on a mux.
func (m *Middleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.dispatch(w, r, http.NotFoundHandler())
}

func (m *Middleware) dispatch(w http.ResponseWriter, r *http.Request, next http.Handler) {
	p := strings.ToLower(r.URL.Path)
	base := m.opts.BasePath

	switch {
	case p == m.apiPath || strings.HasPrefix(p, m.apiPath+"/"):
		m.serveAPI(w, r, strings.TrimPrefix(p, m.apiPath))
	case strings.HasPrefix(p, base+"/") && m.opts.EnableUI:
		instrument("static", func(w http.ResponseWriter, r *http.Request) {
			m.static.serve(w, r, p)
		})(w, r)
	case p == base && m.opts.EnableUI:
		http.Redirect(w, r, base+"/", http.StatusMovedPermanently)
	default:
		next.ServeHTTP(w, r)
	}
}
