package orchestrator

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// IdempotencyGuard rejects replayed request keys.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

const paymentModule = "order.payment"

// Handler exposes the orchestrator over JSON.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	validator   *validator.Validate
	idempotency IdempotencyGuard
	loc         *time.Location
}

// NewHandler constructs a Handler. idempotency may be nil.
func NewHandler(logger *slog.Logger, service *Service, idempotency IdempotencyGuard, loc *time.Location) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		logger:      logger,
		service:     service,
		validator:   httpx.NewValidator(),
		idempotency: idempotency,
		loc:         loc,
	}
}

// MountRoutes registers the authenticated routes. The caller installs the
// middleware that resolves the actor.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/stock-adjustment", h.handleStockAdjustment)
	r.Post("/stock-reversal", h.handleStockReversal)
	r.Post("/transfer-item", h.handleTransfer)
	r.Post("/purchase-order", h.handlePurchase)
	r.Post("/sales-order", h.handleSale)
	r.Post("/create-mutation", h.handleCashMutation)
	r.Delete("/void-invoice/{invoice}", h.handleVoidInvoice)

	r.Get("/orders", h.handleListOrders)
	r.Post("/orders", h.handleCreateOrder)
	r.Get("/orders/{order_number}", h.handleGetOrder)
	r.Get("/get-order-by-order-number/{order_number}", h.handleGetOrder)
	r.Post("/update-order-status", h.handleUpdateStatus)
	r.Post("/add-parts-to-order", h.handleAddParts)
	r.Delete("/remove-part-from-order", h.handleRemovePart)
	r.Post("/make-payment", h.handleMakePayment)
	r.Put("/update-payment-order/{order_number}", h.handleUpdatePayment)
	r.Delete("/void-order", h.handleVoidOrder)
	r.Get("/get-revenue-by-user/{startDate}/{endDate}", h.handleRevenueByUser)
}

// MountPublicRoutes registers routes that need no session.
func (h *Handler) MountPublicRoutes(r chi.Router) {
	r.Get("/tracking-orders", h.handleTrackOrders)
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (shared.Actor, bool) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, h.logger, shared.ErrUnauthorized)
		return shared.Actor{}, false
	}
	return actor, true
}

func (h *Handler) bind(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := httpx.Bind(r, v, h.validator); err != nil {
		httpx.RespondError(w, h.logger, err)
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	httpx.RespondError(w, h.logger, err)
}

type stockAdjustmentRequest struct {
	ProductID      int64            `json:"product_id" validate:"required"`
	WarehouseID    int64            `json:"warehouse_id" validate:"required"`
	Quantity       int64            `json:"quantity" validate:"required"`
	// Cost must be present; an explicit 0 is a valid zero-cost adjustment.
	Cost           *decimal.Decimal `json:"cost" validate:"required"`
	IsInitial      bool             `json:"is_initial"`
	Date           string           `json:"date"`
	AccountID      int64            `json:"account_id"`
	AdjustmentType string           `json:"adjustmentType"`
	ContactID      int64            `json:"contact_id"`
	Description    string           `json:"description"`
}

func (h *Handler) handleStockAdjustment(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req stockAdjustmentRequest
	if !h.bind(w, r, &req) {
		return
	}
	date, err := httpx.ParseDate(req.Date, h.loc)
	if err != nil {
		h.fail(w, err)
		return
	}
	res, err := h.service.AdjustStock(r.Context(), actor, AdjustmentInput{
		ProductID:      req.ProductID,
		WarehouseID:    req.WarehouseID,
		Quantity:       req.Quantity,
		Cost:           *req.Cost,
		IsInitial:      req.IsInitial,
		AdjustmentType: req.AdjustmentType,
		AccountID:      req.AccountID,
		ContactID:      req.ContactID,
		DateIssued:     date,
		Description:    req.Description,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.OK(w, "Stock adjusted successfully", res)
}

type stockReversalRequest struct {
	ProductID       int64           `json:"product_id" validate:"required"`
	WarehouseID     int64           `json:"warehouse_id" validate:"required"`
	Quantity        int64           `json:"quantity" validate:"required"`
	Cost            decimal.Decimal `json:"cost"`
	Price           decimal.Decimal `json:"price"`
	AccountID       int64           `json:"account_id" validate:"required"`
	ContactID       int64           `json:"contact_id"`
	TransactionType string          `json:"transaction_type"`
	Date            string          `json:"date"`
	Description     string          `json:"description"`
}

func (h *Handler) handleStockReversal(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req stockReversalRequest
	if !h.bind(w, r, &req) {
		return
	}
	date, err := httpx.RequireDate("date", req.Date, h.loc)
	if err != nil {
		h.fail(w, err)
		return
	}
	res, err := h.service.ReverseStock(r.Context(), actor, ReversalInput{
		ProductID:       req.ProductID,
		WarehouseID:     req.WarehouseID,
		Quantity:        req.Quantity,
		Cost:            req.Cost,
		Price:           req.Price,
		AccountID:       req.AccountID,
		ContactID:       req.ContactID,
		TransactionType: req.TransactionType,
		DateIssued:      date,
		Description:     req.Description,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.OK(w, "Stock reversed successfully", res)
}

type cartItemRequest struct {
	ID       int64           `json:"id" validate:"required"`
	Quantity int64           `json:"quantity" validate:"gte=1"`
	Cost     decimal.Decimal `json:"cost"`
	Price    decimal.Decimal `json:"price"`
}

func toCart(items []cartItemRequest) []CartItem {
	cart := make([]CartItem, 0, len(items))
	for _, item := range items {
		cart = append(cart, CartItem{ProductID: item.ID, Quantity: item.Quantity, Cost: item.Cost, Price: item.Price})
	}
	return cart
}

type transferRequest struct {
	From        int64             `json:"from" validate:"required"`
	To          int64             `json:"to" validate:"required,nefield=From"`
	DateIssued  string            `json:"date_issued"`
	Description string            `json:"description"`
	Cart        []cartItemRequest `json:"cart" validate:"required,min=1,dive"`
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if !h.bind(w, r, &req) {
		return
	}
	date, err := httpx.RequireDate("date_issued", req.DateIssued, h.loc)
	if err != nil {
		h.fail(w, err)
		return
	}
	res, err := h.service.TransferItems(r.Context(), actor, TransferInput{
		From: req.From, To: req.To, DateIssued: date, Description: req.Description, Cart: toCart(req.Cart),
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.Created(w, "Items transferred successfully", res)
}

type tradeRequest struct {
	WarehouseID int64             `json:"warehouse_id"`
	ContactID   int64             `json:"contact_id"`
	AccountID   int64             `json:"paymentAccountID" validate:"required"`
	DateIssued  string            `json:"date_issued"`
	Description string            `json:"description"`
	Cart        []cartItemRequest `json:"cart" validate:"required,min=1,dive"`
}

func (h *Handler) tradeInput(w http.ResponseWriter, r *http.Request) (TradeInput, bool) {
	var req tradeRequest
	if !h.bind(w, r, &req) {
		return TradeInput{}, false
	}
	date, err := httpx.ParseDate(req.DateIssued, h.loc)
	if err != nil {
		h.fail(w, err)
		return TradeInput{}, false
	}
	return TradeInput{
		WarehouseID: req.WarehouseID,
		ContactID:   req.ContactID,
		AccountID:   req.AccountID,
		DateIssued:  date,
		Description: req.Description,
		Cart:        toCart(req.Cart),
	}, true
}

func (h *Handler) handlePurchase(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	in, ok := h.tradeInput(w, r)
	if !ok {
		return
	}
	res, err := h.service.RecordPurchase(r.Context(), actor, in)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.Created(w, "Purchase recorded successfully", res)
}

func (h *Handler) handleSale(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	in, ok := h.tradeInput(w, r)
	if !ok {
		return
	}
	res, err := h.service.RecordSale(r.Context(), actor, in)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.Created(w, "Sale recorded successfully", res)
}

type cashMutationRequest struct {
	DateIssued  string          `json:"date_issued"`
	DebitCode   int64           `json:"debt_code" validate:"required"`
	CreditCode  int64           `json:"cred_code" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
	AdminFee    decimal.Decimal `json:"admin_fee"`
	Description string          `json:"description"`
}

func (h *Handler) handleCashMutation(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req cashMutationRequest
	if !h.bind(w, r, &req) {
		return
	}
	date, err := httpx.RequireDate("date_issued", req.DateIssued, h.loc)
	if err != nil {
		h.fail(w, err)
		return
	}
	journal, err := h.service.CashMutation(r.Context(), actor, CashMutationInput{
		DebitAccountID:  req.DebitCode,
		CreditAccountID: req.CreditCode,
		Amount:          req.Amount,
		AdminFee:        req.AdminFee,
		DateIssued:      date,
		Description:     req.Description,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.Created(w, "Mutation created successfully", journal)
}

func (h *Handler) handleVoidInvoice(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	res, err := h.service.VoidInvoice(r.Context(), actor, chi.URLParam(r, "invoice"))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.OK(w, "Invoice voided successfully", res)
}

type createOrderRequest struct {
	DateIssued  string `json:"date_issued"`
	Name        string `json:"name"`
	Description string `json:"description"`
	PhoneNumber string `json:"phone_number"`
	PhoneType   string `json:"phone_type"`
	Address     string `json:"address"`
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req createOrderRequest
	if !h.bind(w, r, &req) {
		return
	}
	date, err := httpx.ParseDate(req.DateIssued, h.loc)
	if err != nil {
		h.fail(w, err)
		return
	}
	order, err := h.service.CreateOrder(r.Context(), actor, CreateOrderInput{
		DateIssued:  date,
		Name:        req.Name,
		Description: req.Description,
		PhoneNumber: req.PhoneNumber,
		PhoneType:   req.PhoneType,
		Address:     req.Address,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.Created(w, "Order created successfully", order)
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := httpx.ParseDate(q.Get("start_date"), h.loc)
	if err != nil {
		h.fail(w, err)
		return
	}
	end, err := httpx.ParseDate(q.Get("end_date"), h.loc)
	if err != nil {
		h.fail(w, err)
		return
	}
	filter := OrderFilter{Start: start, End: end, Search: strings.TrimSpace(q.Get("search")), Status: q.Get("status")}
	if raw := q.Get("warehouse_id"); raw != "" {
		id, err := parseID("warehouse_id", raw)
		if err != nil {
			h.fail(w, err)
			return
		}
		filter.WarehouseID = id
	}
	page, err := h.service.ListOrders(r.Context(), filter)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.OK(w, "Orders retrieved successfully", page)
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.GetOrder(r.Context(), chi.URLParam(r, "order_number"))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.OK(w, "Order retrieved successfully", detail)
}

type updateStatusRequest struct {
	OrderNumber string `json:"order_number" validate:"required"`
	Status      string `json:"status" validate:"required"`
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req updateStatusRequest
	if !h.bind(w, r, &req) {
		return
	}
	res, err := h.service.UpdateOrderStatus(r.Context(), actor, req.OrderNumber, OrderStatus(req.Status))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.OK(w, res.Message, res.Order)
}

type partRequest struct {
	ID       int64           `json:"id" validate:"required"`
	Quantity int64           `json:"quantity" validate:"gte=1"`
	Price    decimal.Decimal `json:"price"`
}

type addPartsRequest struct {
	OrderNumber string        `json:"order_number" validate:"required"`
	Parts       []partRequest `json:"parts" validate:"required,min=1,dive"`
}

func (h *Handler) handleAddParts(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req addPartsRequest
	if !h.bind(w, r, &req) {
		return
	}
	parts := make([]Part, 0, len(req.Parts))
	for _, p := range req.Parts {
		parts = append(parts, Part{ProductID: p.ID, Quantity: p.Quantity, Price: p.Price})
	}
	res, err := h.service.AddParts(r.Context(), actor, req.OrderNumber, parts)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.OK(w, "Parts added to order successfully", res)
}

type removePartRequest struct {
	OrderID int64 `json:"order_id" validate:"required"`
	PartID  int64 `json:"part_id" validate:"required"`
}

func (h *Handler) handleRemovePart(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req removePartRequest
	if !h.bind(w, r, &req) {
		return
	}
	order, err := h.service.RemovePart(r.Context(), actor, req.OrderID, req.PartID)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.OK(w, "Part removed from order successfully", order)
}

type paymentRequest struct {
	OrderNumber      string          `json:"order_number" validate:"required"`
	DateIssued       string          `json:"date_issued"`
	PaymentAccountID int64           `json:"paymentAccountID" validate:"required"`
	PaymentMethod    string          `json:"paymentMethod" validate:"required,oneof=cash credit"`
	ServiceFee       decimal.Decimal `json:"serviceFee"`
	Discount         decimal.Decimal `json:"discount"`
	Note             string          `json:"note"`
}

// handleMakePayment honours an optional Idempotency-Key header so a retried
// submit cannot post the payment twice.
func (h *Handler) handleMakePayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req paymentRequest
	if !h.bind(w, r, &req) {
		return
	}
	date, err := httpx.RequireDate("date_issued", req.DateIssued, h.loc)
	if err != nil {
		h.fail(w, err)
		return
	}
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" && h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(r.Context(), key, paymentModule); err != nil {
			h.fail(w, err)
			return
		}
	}
	res, err := h.service.MakePayment(r.Context(), actor, PaymentInput{
		OrderNumber:      req.OrderNumber,
		DateIssued:       date,
		PaymentAccountID: req.PaymentAccountID,
		PaymentMethod:    req.PaymentMethod,
		ServiceFee:       req.ServiceFee,
		Discount:         req.Discount,
		Note:             req.Note,
	})
	if err != nil {
		if key != "" && h.idempotency != nil {
			if derr := h.idempotency.Delete(r.Context(), key, paymentModule); derr != nil {
				h.logger.Warn("release idempotency key", slog.Any("error", derr))
			}
		}
		h.fail(w, err)
		return
	}
	httpx.OK(w, "Payment successful", res)
}

type updatePaymentRequest struct {
	DateIssued          string `json:"date_issued"`
	PaymentAccountID    int64  `json:"paymentAccountID"`
	OldPaymentAccountID int64  `json:"oldPaymentAccountID"`
	Note                string `json:"note"`
}

func (h *Handler) handleUpdatePayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req updatePaymentRequest
	if !h.bind(w, r, &req) {
		return
	}
	date, err := httpx.RequireDate("date_issued", req.DateIssued, h.loc)
	if err != nil {
		h.fail(w, err)
		return
	}
	journal, err := h.service.UpdatePayment(r.Context(), actor, UpdatePaymentInput{
		OrderNumber:         chi.URLParam(r, "order_number"),
		DateIssued:          date,
		PaymentAccountID:    req.PaymentAccountID,
		OldPaymentAccountID: req.OldPaymentAccountID,
		Note:                req.Note,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.OK(w, "Payment date updated successfully", journal)
}

type voidOrderRequest struct {
	OrderNumber string `json:"order_number" validate:"required"`
}

func (h *Handler) handleVoidOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req voidOrderRequest
	if !h.bind(w, r, &req) {
		return
	}
	order, err := h.service.VoidOrder(r.Context(), actor, req.OrderNumber)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.OK(w, "Order voided successfully", order)
}

func (h *Handler) handleTrackOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.TrackOrders(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.OK(w, "Order found", orders)
}

func (h *Handler) handleRevenueByUser(w http.ResponseWriter, r *http.Request) {
	start, err := httpx.RequireDate("startDate", chi.URLParam(r, "startDate"), h.loc)
	if err != nil {
		h.fail(w, err)
		return
	}
	end, err := httpx.RequireDate("endDate", chi.URLParam(r, "endDate"), h.loc)
	if err != nil {
		h.fail(w, err)
		return
	}
	rows, err := h.service.TechnicianRevenue(r.Context(), start, end)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.OK(w, "Revenue retrieved successfully", rows)
}

func parseID(field, raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.ValidationFields(map[string]string{field: "must be a positive number"})
	}
	return id, nil
}
