package stock

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Handler serves stock queries.
type Handler struct {
	logger *slog.Logger
	reader *Reader
	loc    *time.Location
	now    func() time.Time
}

// NewHandler constructs a stock Handler.
func NewHandler(logger *slog.Logger, reader *Reader, loc *time.Location, now func() time.Time) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Handler{logger: logger, reader: reader, loc: loc, now: now}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/get-all-products-by-warehouse/{warehouse}/{endDate}", h.handleWarehouseStock)
	r.Get("/product-history/{id}", h.handleProductHistory)
	r.Get("/product-quantity/{id}", h.handleProductQuantity)
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.ValidationFields(map[string]string{name: "must be a positive number"})
	}
	return id, nil
}

func (h *Handler) handleWarehouseStock(w http.ResponseWriter, r *http.Request) {
	warehouseID, err := pathID(r, "warehouse")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	asOf, err := httpx.RequireDate("endDate", chi.URLParam(r, "endDate"), h.loc)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	ws, err := h.reader.WarehouseStock(r.Context(), warehouseID, asOf, r.URL.Query().Get("search"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, "Products retrieved successfully", ws)
}

// handleProductHistory defaults to the current month when no window is given.
func (h *Handler) handleProductHistory(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	q := r.URL.Query()
	end, err := httpx.ParseDate(q.Get("end_date"), h.loc)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if end.IsZero() {
		end = h.now().In(h.loc)
	}
	start, err := httpx.ParseDate(q.Get("start_date"), h.loc)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if start.IsZero() {
		start = time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, h.loc)
	}
	lines, err := h.reader.ProductHistory(r.Context(), productID, start, end)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, "Product history retrieved successfully", lines)
}

// handleProductQuantity reads warehouse_id and an optional date, today by
// default, from the query string.
func (h *Handler) handleProductQuantity(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	q := r.URL.Query()
	warehouseID, err := strconv.ParseInt(q.Get("warehouse_id"), 10, 64)
	if err != nil || warehouseID <= 0 {
		httpx.RespondError(w, h.logger, shared.ValidationFields(map[string]string{"warehouse_id": "must be a positive number"}))
		return
	}
	asOf, err := httpx.ParseDate(q.Get("date"), h.loc)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if asOf.IsZero() {
		asOf = h.now().In(h.loc)
	}
	pq, err := h.reader.Quantity(r.Context(), productID, warehouseID, asOf)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, "Product quantity retrieved successfully", pq)
}
