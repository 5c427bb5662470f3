package api

import (
	"net/http"
	"strconv"
)

// UsersHandler handles user requests.
type UsersHandler struct {
	catalog Catalog
}

// NewUsersHandler creates a new users handler.
func NewUsersHandler(cat Catalog) *UsersHandler {
	return &UsersHandler{catalog: cat}
}

// HandleListUsers handles GET /api/users requests.
func (h *UsersHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.catalog.Users(r.Context())
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// HandleGetUser handles GET /api/users/{id} requests.
func (h *UsersHandler) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_user"
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
		return
	}
	user, err := h.catalog.User(r.Context(), id)
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
