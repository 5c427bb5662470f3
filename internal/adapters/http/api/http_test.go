package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/okian/lighttrace/internal/adapters/http/api"
	"github.com/okian/lighttrace/internal/domain/catalog"
	"github.com/okian/lighttrace/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// Mock implementations for testing
type mockTracer struct {
	mu      sync.Mutex
	reject  bool
	entries []model.Entry
}

func (m *mockTracer) Record(_ context.Context, e model.Entry) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reject {
		return false
	}
	m.entries = append(m.entries, e)
	return true
}

func (m *mockTracer) Track(ctx context.Context, category, operation string) func(error) {
	return func(err error) {
		e := model.NewEntry(category, operation)
		if err != nil {
			e.Status = model.StatusError
		}
		m.Record(ctx, e)
	}
}

func (m *mockTracer) recorded() []model.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Entry(nil), m.entries...)
}

type mockStatsProvider struct {
	stats map[string]any
}

func (m *mockStatsProvider) GetStats() map[string]any {
	return m.stats
}

func newMux(tracer *mockTracer) *http.ServeMux {
	cat := catalog.NewService(catalog.NewRepository(tracer), tracer)
	server := api.NewServer(cat, tracer, &mockStatsProvider{stats: map[string]any{"started": true}})
	mux := http.NewServeMux()
	server.Register(context.Background(), mux)
	return mux
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestServer_Register(t *testing.T) {
	Convey("Given a new API server", t, func() {
		mux := newMux(&mockTracer{})

		Convey("Then health endpoint should be accessible", func() {
			w := do(mux, "GET", "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"status":"ok"`)
		})

		Convey("And metrics endpoint should expose the custom registry", func() {
			do(mux, "GET", "/healthz", "")
			w := do(mux, "GET", "/metrics", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "lighttrace_http_requests_total")
		})

		Convey("And stats endpoint should be accessible", func() {
			w := do(mux, "GET", "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"started":true`)
		})

		Convey("And wrong methods are rejected by the mux", func() {
			So(do(mux, "DELETE", "/api/users", "").Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestUsersHandler(t *testing.T) {
	Convey("Given the users endpoints", t, func() {
		tracer := &mockTracer{}
		mux := newMux(tracer)

		Convey("When listing users", func() {
			w := do(mux, "GET", "/api/users", "")

			Convey("Then all users are returned and the layers are traced", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var users []catalog.User
				So(json.Unmarshal(w.Body.Bytes(), &users), ShouldBeNil)
				So(users, ShouldHaveLength, 3)
				So(tracer.recorded(), ShouldHaveLength, 2)
			})
		})

		Convey("When fetching one user", func() {
			w := do(mux, "GET", "/api/users/2", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "Alan Turing")
		})

		Convey("When the user does not exist", func() {
			w := do(mux, "GET", "/api/users/99", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(w.Body.String(), ShouldContainSubstring, `"code":"not_found"`)
		})

		Convey("When the id is malformed or not positive", func() {
			So(do(mux, "GET", "/api/users/abc", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, "GET", "/api/users/0", "").Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestProductsHandler(t *testing.T) {
	Convey("Given the products endpoint", t, func() {
		mux := newMux(&mockTracer{})

		decode := func(w *httptest.ResponseRecorder) []catalog.Product {
			var out []catalog.Product
			So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
			return out
		}

		Convey("Then filters and limits apply", func() {
			So(decode(do(mux, "GET", "/api/products", "")), ShouldHaveLength, 4)
			So(decode(do(mux, "GET", "/api/products?in_stock=true", "")), ShouldHaveLength, 3)
			So(decode(do(mux, "GET", "/api/products?q=mouse", "")), ShouldHaveLength, 1)
			So(decode(do(mux, "GET", "/api/products?limit=2", "")), ShouldHaveLength, 2)
		})

		Convey("Then invalid limits are rejected", func() {
			So(do(mux, "GET", "/api/products?limit=0", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, "GET", "/api/products?limit=x", "").Code, ShouldEqual, http.StatusBadRequest)
			w := do(mux, "GET", "/api/products?limit=1000", "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(w.Body.String(), ShouldContainSubstring, "limit_exceeded")
		})
	})
}

func TestEventsHandler(t *testing.T) {
	Convey("Given an events handler", t, func() {
		tracer := &mockTracer{}
		mux := newMux(tracer)

		Convey("When handling a valid POST request", func() {
			body := `{"category":"worker","operation":"nightly-import","duration_ms":1250,"status":"ok","attributes":{"rows":"42"},"ts":"2024-05-01T10:00:00Z"}`
			w := do(mux, "POST", "/events", body)

			Convey("Then it should be accepted and recorded", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(w.Body.String(), ShouldContainSubstring, `"status":"accepted"`)

				entries := tracer.recorded()
				So(entries, ShouldHaveLength, 1)
				So(entries[0].Category, ShouldEqual, "worker")
				So(entries[0].Operation, ShouldEqual, "nightly-import")
				So(entries[0].Duration.Milliseconds(), ShouldEqual, 1250)
				So(entries[0].Attributes["rows"], ShouldEqual, "42")
				So(entries[0].Timestamp.Year(), ShouldEqual, 2024)
			})
		})

		Convey("When handling invalid requests", func() {
			for _, body := range []string{
				`not json`,
				`{"operation":"x"}`,
				`{"category":"x"}`,
				`{"category":"x","operation":"y","duration_ms":-1}`,
				`{"category":"x","operation":"y","ts":"yesterday"}`,
				`{"category":"   ","operation":"y"}`,
				`{"category":"` + strings.Repeat("c", 129) + `","operation":"y"}`,
				`{"category":"x","operation":"y","attributes":{"":"v"}}`,
			} {
				w := do(mux, "POST", "/events", body)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			}
			So(tracer.recorded(), ShouldBeEmpty)
		})

		Convey("When a field fails validation", func() {
			w := do(mux, "POST", "/events", `{"category":"x","operation":"y","duration_ms":-5}`)

			Convey("Then the error names the JSON field", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(w.Body.String(), ShouldContainSubstring, "duration_ms")
			})
		})

		Convey("When the tracer applies backpressure", func() {
			tracer.reject = true
			w := do(mux, "POST", "/events", `{"category":"x","operation":"y"}`)
			So(w.Code, ShouldEqual, http.StatusTooManyRequests)
			So(w.Body.String(), ShouldContainSubstring, "backpressure")
		})
	})
}

func TestCaptureMiddleware(t *testing.T) {
	Convey("Given a capture middleware skipping the dashboard and metrics", t, func() {
		tracer := &mockTracer{}
		inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/fail" {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			_, _ = w.Write([]byte("ok"))
		})
		h := api.CaptureMiddleware(tracer, "/Monitoring/", "/metrics")(inner)

		Convey("When a request succeeds", func() {
			w := do(h, "GET", "/api/users?page=2", "")

			Convey("Then one http entry is recorded with a request id", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				entries := tracer.recorded()
				So(entries, ShouldHaveLength, 1)
				So(entries[0].Category, ShouldEqual, "http")
				So(entries[0].Operation, ShouldEqual, "GET /api/users")
				So(entries[0].Status, ShouldEqual, model.StatusOK)
				So(entries[0].Attributes["status_code"], ShouldEqual, "200")
				So(entries[0].Attributes["query"], ShouldEqual, "page=2")
				So(entries[0].Attributes["request_id"], ShouldEqual, w.Header().Get(api.RequestIDHeader))
				So(w.Header().Get(api.RequestIDHeader), ShouldNotBeEmpty)
			})
		})

		Convey("When a request fails", func() {
			do(h, "GET", "/fail", "")
			entries := tracer.recorded()
			So(entries, ShouldHaveLength, 1)
			So(entries[0].Status, ShouldEqual, model.StatusError)
			So(entries[0].Message, ShouldEqual, "Internal Server Error")
		})

		Convey("When the caller supplies a request id", func() {
			req := httptest.NewRequest("GET", "/x", nil)
			req.Header.Set(api.RequestIDHeader, "abc-123")
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			So(w.Header().Get(api.RequestIDHeader), ShouldEqual, "abc-123")
			So(tracer.recorded()[0].Attributes["request_id"], ShouldEqual, "abc-123")
		})

		Convey("When requests hit skipped paths", func() {
			do(h, "GET", "/monitoring", "")
			do(h, "GET", "/monitoring/api/traces", "")
			do(h, "GET", "/metrics", "")

			Convey("Then nothing is recorded", func() {
				So(tracer.recorded(), ShouldBeEmpty)
			})

			Convey("But similar prefixes are still recorded", func() {
				do(h, "GET", "/monitoringx", "")
				So(tracer.recorded(), ShouldHaveLength, 1)
			})
		})
	})
}
