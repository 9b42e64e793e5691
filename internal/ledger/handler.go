package ledger

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Handler serves balances and financial reports.
type Handler struct {
	logger    *slog.Logger
	reports   *Reports
	validator *validator.Validate
	loc       *time.Location
	now       func() time.Time
}

// NewHandler constructs a ledger Handler.
func NewHandler(logger *slog.Logger, reports *Reports, loc *time.Location, now func() time.Time) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Handler{logger: logger, reports: reports, validator: httpx.NewValidator(), loc: loc, now: now}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/accounts/{id}/balance", h.handleBalance)
	r.Get("/accounts/{id}/entries", h.handleEntries)
	r.Get("/mutation-history/{id}", h.handleMutationHistory)
	r.Get("/profit-loss-report", h.handleProfitLoss)
	r.Get("/cash-flow-report", h.handleCashFlow)
	r.Get("/balance-sheet-report", h.handleBalanceSheet)
	r.Get("/get-warehouse-balance/{endDate}", h.handleWarehouseBalance)
	r.Get("/get-revenue-by-warehouse", h.handleRevenueByWarehouse)
	r.Post("/ledger/rollup", h.handleRollup)
}

func (h *Handler) accountID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.ValidationFields(map[string]string{"id": "must be a positive number"})
	}
	return id, nil
}

// window reads start_date and end_date. A missing end is today and a
// missing start is the first day of the end's month.
func (h *Handler) window(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	end, err := httpx.ParseDate(q.Get("end_date"), h.loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if end.IsZero() {
		end = h.now().In(h.loc)
	}
	start, err := httpx.ParseDate(q.Get("start_date"), h.loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if start.IsZero() {
		start = time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, h.loc)
	}
	return start, end, nil
}

func (h *Handler) asOf(value string) (time.Time, error) {
	t, err := httpx.ParseDate(value, h.loc)
	if err != nil {
		return time.Time{}, err
	}
	if t.IsZero() {
		t = h.now().In(h.loc)
	}
	return t, nil
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	id, err := h.accountID(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	asOf, err := h.asOf(r.URL.Query().Get("end_date"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	balance, err := h.reports.AccountBalance(r.Context(), id, asOf)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, "Account balance retrieved successfully", balance)
}

func (h *Handler) handleEntries(w http.ResponseWriter, r *http.Request) {
	id, err := h.accountID(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	start, end, err := h.window(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	entries, err := h.reports.EntriesForAccount(r.Context(), id, start, end)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, "Entries retrieved successfully", entries)
}

func (h *Handler) handleMutationHistory(w http.ResponseWriter, r *http.Request) {
	id, err := h.accountID(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	start, end, err := h.window(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	hist, err := h.reports.MutationHistory(r.Context(), id, start, end)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, "Mutation history retrieved successfully", hist)
}

func (h *Handler) handleProfitLoss(w http.ResponseWriter, r *http.Request) {
	start, end, err := h.window(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	report, err := h.reports.ProfitLoss(r.Context(), start, end)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, "Profit loss report retrieved successfully", report)
}

func (h *Handler) handleCashFlow(w http.ResponseWriter, r *http.Request) {
	start, end, err := h.window(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	report, err := h.reports.CashFlow(r.Context(), start, end)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, "Cash flow report retrieved successfully", report)
}

func (h *Handler) handleBalanceSheet(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.asOf(r.URL.Query().Get("end_date"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	report, err := h.reports.BalanceSheet(r.Context(), asOf)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, "Balance sheet retrieved successfully", report)
}

func (h *Handler) handleWarehouseBalance(w http.ResponseWriter, r *http.Request) {
	asOf, err := httpx.RequireDate("endDate", chi.URLParam(r, "endDate"), h.loc)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	report, err := h.reports.WarehouseBalances(r.Context(), asOf)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, "Warehouse balance retrieved successfully", report)
}

func (h *Handler) handleRevenueByWarehouse(w http.ResponseWriter, r *http.Request) {
	start, end, err := h.window(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	rows, err := h.reports.RevenueByWarehouse(r.Context(), start, end)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, "Revenue retrieved successfully", rows)
}

type rollupRequest struct {
	Date string `json:"date"`
}

// handleRollup materialises balances for the given day, defaulting to the
// end of the previous month.
func (h *Handler) handleRollup(w http.ResponseWriter, r *http.Request) {
	if _, ok := shared.ActorFromContext(r.Context()); !ok {
		httpx.RespondError(w, h.logger, shared.ErrUnauthorized)
		return
	}
	var req rollupRequest
	if r.ContentLength != 0 {
		if err := httpx.Bind(r, &req, h.validator); err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
	}
	cutover, err := httpx.ParseDate(req.Date, h.loc)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if cutover.IsZero() {
		cutover = PreviousMonthEnd(h.now(), h.loc)
	}
	res, err := h.reports.Rollup(r.Context(), cutover)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, "Rollup completed", res)
}
