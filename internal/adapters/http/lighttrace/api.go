package lighttrace

import (
	"encoding/json"
	"net/http"
	"slices"
	"strings"

	"github.com/okian/lighttrace/internal/domain/report"
	"github.com/okian/lighttrace/pkg/logger"
	"github.com/okian/lighttrace/pkg/metrics"
)

const (
	textContentType = "text/plain; charset=utf-8"
	jsonContentType = "application/json; charset=utf-8"

	reportFilename = "LightTrace_Report.md"
	resetMessage   = "Traces reset successfully"
)

// route is one API action, addressed by its path relative to {base}/api.
type route struct {
	endpoint string
	methods  []string
	handle   http.HandlerFunc
}

func (rt route) allows(method string) bool {
	return slices.Contains(rt.methods, method)
}

func (m *Middleware) routeTable() map[string]route {
	read := []string{http.MethodGet, http.MethodHead}

	traces := route{endpoint: "traces", methods: read, handle: m.handleTraces}
	download := route{endpoint: "traces_download", methods: read, handle: m.handleDownload}
	configuration := route{endpoint: "configuration", methods: read, handle: m.handleConfiguration}
	// Reset mutates the store, so HEAD is not accepted as a GET.
	reset := route{endpoint: "reset", methods: []string{http.MethodGet}, handle: m.handleReset}

	return map[string]route{
		"/traces":               traces,
		"/traces/download":      download,
		"/configuration":        configuration,
		"/traces/configuration": configuration,
		"/reset":                reset,
		"/traces/reset":         reset,
	}
}

// serveAPI looks up rel (the lower-cased path below {base}/api) in the route table.
func (m *Middleware) serveAPI(w http.ResponseWriter, r *http.Request, rel string) {
	rt, ok := m.routes[rel]
	if !ok {
		instrument("api_unknown", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})(w, r)
		return
	}
	if !rt.allows(r.Method) {
		instrument(rt.endpoint, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Allow", strings.Join(rt.methods, ", "))
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		})(w, r)
		return
	}
	instrument(rt.endpoint, rt.handle)(w, r)
}

// renderReport loads all entries and formats them. On failure it answers
// 500 and returns false.
func (m *Middleware) renderReport(w http.ResponseWriter, r *http.Request) (string, bool) {
	entries, err := m.source.Entries(r.Context())
	if err != nil {
		m.logger.Error(r.Context(), "load trace entries", logger.Error(err))
		metrics.RecordErrorByComponent("lighttrace", "source_entries")
		http.Error(w, "failed to load traces", http.StatusInternalServerError)
		return "", false
	}
	return report.Markdown(entries), true
}

func (m *Middleware) handleTraces(w http.ResponseWriter, r *http.Request) {
	body, ok := m.renderReport(w, r)
	if !ok {
		return
	}
	metrics.RecordReportRender("inline", len(body))
	writeText(w, http.StatusOK, body)
}

func (m *Middleware) handleDownload(w http.ResponseWriter, r *http.Request) {
	body, ok := m.renderReport(w, r)
	if !ok {
		return
	}
	metrics.RecordReportRender("download", len(body))
	w.Header().Set("Content-Disposition", "attachment; filename="+reportFilename)
	writeText(w, http.StatusOK, body)
}

func (m *Middleware) handleConfiguration(w http.ResponseWriter, r *http.Request) {
	body, err := json.MarshalIndent(m.opts, "", "  ")
	if err != nil {
		m.logger.Error(r.Context(), "encode configuration", logger.Error(err))
		http.Error(w, "failed to encode configuration", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", jsonContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (m *Middleware) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := m.source.Reset(r.Context()); err != nil {
		m.logger.Error(r.Context(), "reset traces", logger.Error(err))
		metrics.RecordErrorByComponent("lighttrace", "source_reset")
		http.Error(w, "failed to reset traces", http.StatusInternalServerError)
		return
	}
	m.logger.Info(r.Context(), "traces reset", logger.String("remote", r.RemoteAddr))
	writeText(w, http.StatusOK, resetMessage)
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", textContentType)
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
