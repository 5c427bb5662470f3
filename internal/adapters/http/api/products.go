package api

import (
	"net/http"
	"strconv"
)

// ProductsHandler handles product requests.
type ProductsHandler struct {
	catalog  Catalog
	maxLimit int
}

// NewProductsHandler creates a new products handler.
func NewProductsHandler(cat Catalog, maxLimit int) *ProductsHandler {
	return &ProductsHandler{
		catalog:  cat,
		maxLimit: maxLimit,
	}
}

// HandleListProducts handles GET /api/products?q=&in_stock=&limit=N requests.
// limit is optional; when given it must be within 1..maxLimit.
func (h *ProductsHandler) HandleListProducts(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_products"
	query := r.URL.Query()

	limit := h.maxLimit
	if s := query.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", newKind(op, ErrBadRequest))
			return
		}
		if n > h.maxLimit {
			writeError(w, http.StatusBadRequest, "limit_exceeded", newKind(op, ErrBadRequest))
			return
		}
		limit = n
	}
	inStock, _ := strconv.ParseBool(query.Get("in_stock"))

	products, err := h.catalog.Products(r.Context(), query.Get("q"), inStock)
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	if len(products) > limit {
		products = products[:limit]
	}
	writeJSON(w, http.StatusOK, products)
}
