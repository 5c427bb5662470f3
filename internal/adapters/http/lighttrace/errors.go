package lighttrace

import "errors"

// Sentinel kinds for middleware construction errors.
var (
	ErrNilSource         = errors.New("trace source is nil")
	ErrInvalidBasePath   = errors.New("invalid base path")
	ErrMissingHeadMarker = errors.New("index.html must contain exactly one </head>")
	ErrMissingIndex      = errors.New("index.html not found in assets")
)
