// Package api declares the demo host's HTTP contracts and route registration.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/lighttrace/internal/domain/catalog"
	"github.com/okian/lighttrace/internal/domain/model"
)

const defaultMaxProductLimit = 100

// Tracer receives trace entries from the HTTP layer.
type Tracer interface {
	// Record queues an entry. Returns false on backpressure.
	Record(ctx context.Context, e model.Entry) bool
}

// Catalog is the business layer behind /api.
type Catalog interface {
	Users(ctx context.Context) ([]catalog.User, error)
	User(ctx context.Context, id int) (catalog.User, error)
	Products(ctx context.Context, query string, inStock bool) ([]catalog.Product, error)
}

// Server wires HTTP routes for the demo API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	eventsHandler   *EventsHandler
	usersHandler    *UsersHandler
	productsHandler *ProductsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(cat Catalog, tracer Tracer, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		eventsHandler:   NewEventsHandler(tracer),
		usersHandler:    NewUsersHandler(cat),
		productsHandler: NewProductsHandler(cat, defaultMaxProductLimit),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("POST /events", MetricsMiddleware(s.eventsHandler.HandlePostEvent, "events"))
	mux.HandleFunc("GET /api/users", MetricsMiddleware(s.usersHandler.HandleListUsers, "users"))
	mux.HandleFunc("GET /api/users/{id}", MetricsMiddleware(s.usersHandler.HandleGetUser, "user"))
	mux.HandleFunc("GET /api/products", MetricsMiddleware(s.productsHandler.HandleListProducts, "products"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeCatalogError maps catalog failures to status codes.
func writeCatalogError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, catalog.ErrInvalidID), errors.Is(err, ErrBadRequest):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
