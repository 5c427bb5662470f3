package lighttrace

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/okian/lighttrace/pkg/logger"
)

const (
	indexFile       = "index.html"
	headMarker      = "</head>"
	octetStreamType = "application/octet-stream"
)

var contentTypes = map[string]string{ //nolint:gochecknoglobals // fixed lookup table
	".html": "text/html; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".js":   "application/javascript; charset=utf-8",
	".json": "application/json; charset=utf-8",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
	".md":   "text/markdown; charset=utf-8",
}

// contentTypeFor maps a file name to its MIME type by extension.
func contentTypeFor(name string) string {
	if ct, ok := contentTypes[strings.ToLower(path.Ext(name))]; ok {
		return ct
	}
	return octetStreamType
}

// renderIndex splits the page at its only </head> and places the
// window.LightTraceConfig script right before it.
func renderIndex(page []byte, opts Options) ([]byte, error) {
	if n := bytes.Count(page, []byte(headMarker)); n != 1 {
		return nil, fmt.Errorf("%w: found %d", ErrMissingHeadMarker, n)
	}
	head, tail, _ := bytes.Cut(page, []byte(headMarker))

	// encoding/json escapes <, > and &, so the values cannot close the script.
	cfg, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("encode client config: %w", err)
	}

	var b bytes.Buffer
	b.Grow(len(page) + len(cfg) + 64)
	b.Write(head)
	b.WriteString("<script>window.LightTraceConfig = ")
	b.Write(cfg)
	b.WriteString(";</script>\n")
	b.WriteString(headMarker)
	b.Write(tail)
	return b.Bytes(), nil
}

// staticServer resolves dashboard assets below the base path.
type staticServer struct {
	basePath string
	assets   fs.FS
	index    []byte
	logger   logger.Logger
}

func newStaticServer(opts Options, assets fs.FS, log logger.Logger) (*staticServer, error) {
	page, err := fs.ReadFile(assets, indexFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMissingIndex, err)
	}
	index, err := renderIndex(page, opts)
	if err != nil {
		return nil, err
	}
	return &staticServer{
		basePath: opts.BasePath,
		assets:   assets,
		index:    index,
		logger:   log,
	}, nil
}

// assetName strips the base path; the bare prefix maps to index.html.
func (s *staticServer) assetName(p string) string {
	name := strings.TrimPrefix(strings.TrimPrefix(p, s.basePath), "/")
	if name == "" {
		return indexFile
	}
	return name
}

// serve writes one asset. p is the lower-cased request path.
func (s *staticServer) serve(w http.ResponseWriter, r *http.Request, p string) {
	name := s.assetName(p)
	if !fs.ValidPath(name) {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if name == indexFile {
		w.Header().Set("Content-Type", contentTypeFor(indexFile))
		w.Header().Set("Cache-Control", "no-cache")
		http.ServeContent(w, r, indexFile, time.Time{}, bytes.NewReader(s.index))
		return
	}

	info, err := fs.Stat(s.assets, name)
	if err != nil || info.IsDir() {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	data, err := fs.ReadFile(s.assets, name)
	if err != nil {
		s.logger.Error(r.Context(), "read asset", logger.String("asset", name), logger.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentTypeFor(name))
	http.ServeContent(w, r, name, time.Time{}, bytes.NewReader(data))
}
