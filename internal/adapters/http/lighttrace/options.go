package lighttrace

import (
	"fmt"
	"io/fs"
	"strings"

	"github.com/okian/lighttrace/pkg/logger"
)

const (
	defaultBasePath               = "/lighttrace"
	defaultRefreshIntervalSeconds = 15
)

// Options is the externally visible configuration. It is fixed once New
// returns and is served verbatim by the configuration endpoint.
type Options struct {
	BasePath               string `json:"basePath"`
	EnableUI               bool   `json:"enableUI"`
	RefreshIntervalSeconds int    `json:"refreshIntervalSeconds"`
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		BasePath:               defaultBasePath,
		EnableUI:               true,
		RefreshIntervalSeconds: defaultRefreshIntervalSeconds,
	}
}

// normalize lower-cases the base path, forces a leading slash and strips
// trailing ones. An empty or root base path is rejected.
func (o Options) normalize() (Options, error) {
	p := strings.ToLower(strings.TrimSpace(o.BasePath))
	p = strings.TrimRight(p, "/")
	if p == "" {
		return o, fmt.Errorf("%w: %q", ErrInvalidBasePath, o.BasePath)
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if strings.ContainsAny(p, "?# \t") {
		return o, fmt.Errorf("%w: %q", ErrInvalidBasePath, o.BasePath)
	}
	o.BasePath = p

	if o.RefreshIntervalSeconds <= 0 {
		o.RefreshIntervalSeconds = defaultRefreshIntervalSeconds
	}
	return o, nil
}

// Option customizes a Middleware.
type Option func(*Middleware)

// WithLogger sets the logger used for request failures.
func WithLogger(l logger.Logger) Option {
	return func(m *Middleware) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithAssets replaces the embedded dashboard files. The filesystem must
// contain an index.html with a single </head>.
func WithAssets(assets fs.FS) Option {
	return func(m *Middleware) {
		if assets != nil {
			m.assets = assets
		}
	}
}
