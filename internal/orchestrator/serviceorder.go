package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/ledger"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/internal/stock"
)

// CreateOrderInput opens a service order for a walk-in customer.
type CreateOrderInput struct {
	DateIssued  time.Time
	Name        string
	Description string
	PhoneNumber string
	PhoneType   string
	Address     string
}

// Validate checks the request.
func (in CreateOrderInput) Validate() error {
	fields := map[string]string{}
	checkText(fields, "name", in.Name, 1, 255)
	checkText(fields, "description", in.Description, 1, 255)
	checkText(fields, "phone_number", in.PhoneNumber, 9, 15)
	checkText(fields, "phone_type", in.PhoneType, 1, 30)
	checkText(fields, "address", in.Address, 1, 160)
	if in.DateIssued.IsZero() {
		fields["date_issued"] = "is required"
	}
	return fieldsError(fields)
}

func checkText(fields map[string]string, name, value string, min, max int) {
	n := utf8.RuneCountInString(strings.TrimSpace(value))
	switch {
	case n == 0:
		fields[name] = "is required"
	case n < min:
		fields[name] = fmt.Sprintf("must be at least %d characters", min)
	case n > max:
		fields[name] = fmt.Sprintf("must be at most %d characters", max)
	}
}

// StatusResult carries the updated order and a message for the operator.
type StatusResult struct {
	Order   ServiceOrder `json:"order"`
	Message string       `json:"message"`
}

// Part is a spare part consumed by an order.
type Part struct {
	ProductID int64
	Quantity  int64
	Price     decimal.Decimal
}

// AddPartsResult lists added and skipped products.
type AddPartsResult struct {
	Order   ServiceOrder `json:"order"`
	Added   []int64      `json:"added"`
	Skipped []int64      `json:"skipped"`
}

// OrderDetail is an order with its parts transaction and payment journal.
type OrderDetail struct {
	Order       ServiceOrder    `json:"order"`
	Transaction *Transaction    `json:"transaction"`
	Journal     *ledger.Journal `json:"journal"`
}

// OrderFilter narrows ListOrders. Status "All Orders" or empty lists all.
type OrderFilter struct {
	Start       time.Time
	End         time.Time
	WarehouseID int64
	Search      string
	Status      string
}

// OrdersPage is the order list with a count per status.
type OrdersPage struct {
	Orders      []ServiceOrder   `json:"orders"`
	StatusCount map[string]int64 `json:"orderStatusCount"`
}

// TechnicianRevenue sums completed orders and service fees per technician.
type TechnicianRevenue struct {
	TechnicianID   int64           `json:"technician_id"`
	TechnicianName string          `json:"technician_name"`
	TotalOrders    int64           `json:"total_orders"`
	TotalFee       decimal.Decimal `json:"total_fee"`
}

// CreateOrder allocates an order number and links the customer by phone
// number, creating the contact on first visit.
func (s *Service) CreateOrder(ctx context.Context, actor shared.Actor, in CreateOrderInput) (ServiceOrder, error) {
	if err := in.Validate(); err != nil {
		return ServiceOrder{}, err
	}
	var order ServiceOrder
	err := s.execute(ctx, actor, "order.create", false, func(ctx context.Context, tx TxRepository) (shared.AuditLog, error) {
		warehouse, err := tx.WarehouseByID(ctx, actor.WarehouseID)
		if err != nil {
			return shared.AuditLog{}, err
		}
		number, err := s.seq.NextOrderNumber(ctx, tx.Invoices(), warehouse.Code, actor)
		if err != nil {
			return shared.AuditLog{}, err
		}
		contact, err := tx.FirstOrCreateContact(ctx, Contact{
			Name:        strings.TrimSpace(in.Name),
			PhoneNumber: strings.TrimSpace(in.PhoneNumber),
			Address:     strings.TrimSpace(in.Address),
			Type:        "Customer",
		})
		if err != nil {
			return shared.AuditLog{}, fmt.Errorf("orchestrator: contact: %w", err)
		}
		order = ServiceOrder{
			OrderNumber:   number,
			Status:        OrderPending,
			PhoneType:     strings.TrimSpace(in.PhoneType),
			Description:   strings.TrimSpace(in.Description),
			ContactID:     contact.ID,
			WarehouseID:   actor.WarehouseID,
			UserID:        actor.UserID,
			PaymentMethod: PaymentUnpaid,
			DateIssued:    in.DateIssued,
			Contact:       &contact,
		}
		if order.ID, err = tx.InsertOrder(ctx, order); err != nil {
			return shared.AuditLog{}, fmt.Errorf("orchestrator: insert order: %w", err)
		}
		return shared.AuditLog{Entity: "service_order", EntityID: number}, nil
	})
	return order, err
}

// UpdateOrderStatus applies the workflow rules: an in-progress order with
// parts cannot be canceled, another technician may take over an in-progress
// order, nobody takes over their own order and any other change assigns the
// actor as technician.
func (s *Service) UpdateOrderStatus(ctx context.Context, actor shared.Actor, orderNumber string, status OrderStatus) (StatusResult, error) {
	if strings.TrimSpace(orderNumber) == "" {
		return StatusResult{}, shared.ValidationFields(map[string]string{"order_number": "is required"})
	}
	if !status.Valid() {
		return StatusResult{}, shared.ValidationFields(map[string]string{"status": "is not a known status"})
	}
	var res StatusResult
	err := s.execute(ctx, actor, "order.status", false, func(ctx context.Context, tx TxRepository) (shared.AuditLog, error) {
		order, err := tx.OrderByNumber(ctx, orderNumber)
		if err != nil {
			return shared.AuditLog{}, err
		}
		previous := order.Status
		switch {
		case order.Invoice != "" && order.Status == OrderInProgress && status == OrderCanceled:
			return shared.AuditLog{}, shared.RuleViolation("cannot cancel: parts already exchanged on this order")
		case order.Status == OrderInProgress && status == OrderTakeOver && order.TechnicianID != actor.UserID:
			order.TechnicianID = actor.UserID
			res.Message = fmt.Sprintf("Order %s taken over by %s", order.OrderNumber, actor.Name)
		case status == OrderTakeOver && order.TechnicianID == actor.UserID:
			return shared.AuditLog{}, shared.RuleViolation("cannot take over your own order")
		case order.Status != status:
			order.Status = status
			order.TechnicianID = actor.UserID
			res.Message = fmt.Sprintf("Order status updated to %s", status)
		default:
			return shared.AuditLog{}, shared.RuleViolation("order is already %s", status)
		}
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return shared.AuditLog{}, fmt.Errorf("orchestrator: update order: %w", err)
		}
		res.Order = order
		return shared.AuditLog{Entity: "service_order", EntityID: order.OrderNumber, Meta: map[string]any{
			"from": string(previous), "to": string(status), "technician_id": order.TechnicianID,
		}}, nil
	})
	return res, err
}

// AddParts consumes parts for an order. The order invoice and its Order
// transaction are created on the first part; products already on the order
// are skipped.
func (s *Service) AddParts(ctx context.Context, actor shared.Actor, orderNumber string, parts []Part) (AddPartsResult, error) {
	fields := map[string]string{}
	if strings.TrimSpace(orderNumber) == "" {
		fields["order_number"] = "is required"
	}
	if len(parts) == 0 {
		fields["parts"] = "is required"
	}
	for i, p := range parts {
		if p.ProductID <= 0 {
			fields[fmt.Sprintf("parts.%d.id", i)] = "is required"
		}
		if p.Quantity < 1 {
			fields[fmt.Sprintf("parts.%d.quantity", i)] = "must be at least 1"
		}
		if p.Price.IsNegative() {
			fields[fmt.Sprintf("parts.%d.price", i)] = "must not be negative"
		}
	}
	if err := fieldsError(fields); err != nil {
		return AddPartsResult{}, err
	}

	res := AddPartsResult{Added: []int64{}, Skipped: []int64{}}
	err := s.execute(ctx, actor, "order.add_parts", false, func(ctx context.Context, tx TxRepository) (shared.AuditLog, error) {
		order, err := tx.OrderByNumber(ctx, orderNumber)
		if err != nil {
			return shared.AuditLog{}, err
		}
		if order.Status == OrderCompleted || order.Status == OrderCanceled {
			return shared.AuditLog{}, shared.RuleViolation("cannot add parts to a %s order", strings.ToLower(string(order.Status)))
		}
		now := s.now().In(s.loc)

		var t Transaction
		if order.Invoice != "" {
			t, err = tx.TransactionByInvoice(ctx, order.Invoice)
			if err != nil && !errors.Is(err, ErrTransactionNotFound) {
				return shared.AuditLog{}, err
			}
		}
		if t.ID == 0 {
			invoice, err := s.seq.NextOrderInvoice(ctx, tx.Invoices(), actor)
			if err != nil {
				return shared.AuditLog{}, err
			}
			t = Transaction{
				Invoice:     invoice,
				DateIssued:  now,
				Type:        TransactionOrder,
				Status:      StatusConfirmed,
				ContactID:   s.contactOrDefault(order.ContactID),
				WarehouseID: actor.WarehouseID,
				UserID:      actor.UserID,
			}
			if t.ID, err = tx.InsertTransaction(ctx, t); err != nil {
				return shared.AuditLog{}, fmt.Errorf("orchestrator: insert transaction: %w", err)
			}
		}

		present, err := tx.TransactionProducts(ctx, t.ID)
		if err != nil {
			return shared.AuditLog{}, fmt.Errorf("orchestrator: transaction products: %w", err)
		}
		exists := make(map[int64]bool, len(present))
		for _, id := range present {
			exists[id] = true
		}
		for _, part := range parts {
			if exists[part.ProductID] {
				res.Skipped = append(res.Skipped, part.ProductID)
				continue
			}
			product, err := tx.ProductByID(ctx, part.ProductID)
			if err != nil {
				return shared.AuditLog{}, err
			}
			if _, err := s.stock.Record(ctx, tx.Stock(), stock.Movement{
				ProductID:       product.ID,
				WarehouseID:     actor.WarehouseID,
				TransactionID:   t.ID,
				Quantity:        -part.Quantity,
				Cost:            product.CurrentCost,
				Price:           part.Price,
				DateIssued:      now,
				TransactionType: string(TransactionOrder),
			}); err != nil {
				return shared.AuditLog{}, err
			}
			exists[product.ID] = true
			res.Added = append(res.Added, product.ID)
		}

		order.Invoice = t.Invoice
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return shared.AuditLog{}, fmt.Errorf("orchestrator: update order: %w", err)
		}
		res.Order = order
		return shared.AuditLog{Entity: "service_order", EntityID: t.Invoice, Meta: map[string]any{
			"order_number": order.OrderNumber, "added": res.Added, "skipped": res.Skipped,
		}}, nil
	})
	return res, err
}

// RemovePart deletes the movements of one product from an unpaid order. When
// no movement remains the empty transaction is deleted and the order returns
// to having no invoice.
func (s *Service) RemovePart(ctx context.Context, actor shared.Actor, orderID, productID int64) (ServiceOrder, error) {
	fields := map[string]string{}
	if orderID <= 0 {
		fields["order_id"] = "is required"
	}
	if productID <= 0 {
		fields["part_id"] = "is required"
	}
	if err := fieldsError(fields); err != nil {
		return ServiceOrder{}, err
	}
	var order ServiceOrder
	err := s.execute(ctx, actor, "order.remove_part", false, func(ctx context.Context, tx TxRepository) (shared.AuditLog, error) {
		var err error
		if order, err = tx.OrderByID(ctx, orderID); err != nil {
			return shared.AuditLog{}, err
		}
		if order.Status == OrderCompleted {
			return shared.AuditLog{}, shared.RuleViolation("cannot remove parts from a paid order")
		}
		if order.Invoice == "" {
			return shared.AuditLog{}, ErrTransactionNotFound
		}
		t, err := tx.TransactionByInvoice(ctx, order.Invoice)
		if err != nil {
			return shared.AuditLog{}, err
		}
		removed, err := tx.DeleteProductMovements(ctx, t.ID, productID)
		if err != nil {
			return shared.AuditLog{}, fmt.Errorf("orchestrator: delete movements: %w", err)
		}
		if removed == 0 {
			return shared.AuditLog{}, ErrPartNotFound
		}
		invoice := order.Invoice
		remaining, err := tx.CountMovements(ctx, t.ID)
		if err != nil {
			return shared.AuditLog{}, fmt.Errorf("orchestrator: count movements: %w", err)
		}
		if remaining == 0 {
			if _, err := tx.DeleteTransactionByInvoice(ctx, invoice); err != nil {
				return shared.AuditLog{}, fmt.Errorf("orchestrator: delete transaction: %w", err)
			}
			order.Invoice = ""
			if err := tx.UpdateOrder(ctx, order); err != nil {
				return shared.AuditLog{}, fmt.Errorf("orchestrator: update order: %w", err)
			}
		}
		return shared.AuditLog{Entity: "service_order", EntityID: invoice, Meta: map[string]any{
			"order_number": order.OrderNumber, "product_id": productID, "remaining": remaining,
		}}, nil
	})
	return order, err
}

// GetOrder returns an order with its parts and payment journal.
func (s *Service) GetOrder(ctx context.Context, orderNumber string) (OrderDetail, error) {
	if strings.TrimSpace(orderNumber) == "" {
		return OrderDetail{}, shared.Validation("order number is required")
	}
	return s.repo.OrderDetail(ctx, orderNumber)
}

// ListOrders lists orders issued within whole months around the filter dates.
func (s *Service) ListOrders(ctx context.Context, filter OrderFilter) (OrdersPage, error) {
	now := s.now().In(s.loc)
	if filter.Start.IsZero() {
		filter.Start = now
	}
	if filter.End.IsZero() {
		filter.End = now
	}
	start := filter.Start.In(s.loc)
	end := filter.End.In(s.loc)
	filter.Start = time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, s.loc)
	filter.End = time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, s.loc).AddDate(0, 1, 0)
	if !filter.Start.Before(filter.End) {
		return OrdersPage{}, shared.Validation("start date must not be after end date")
	}
	if filter.Status == "All Orders" {
		filter.Status = ""
	}
	orders, counts, err := s.repo.ListOrders(ctx, filter)
	if err != nil {
		return OrdersPage{}, err
	}
	if orders == nil {
		orders = []ServiceOrder{}
	}
	return OrdersPage{Orders: orders, StatusCount: counts}, nil
}

// TrackOrders finds orders by order number or customer phone number.
func (s *Service) TrackOrders(ctx context.Context, search string) ([]ServiceOrder, error) {
	search = strings.TrimSpace(search)
	if search == "" {
		return nil, shared.ValidationFields(map[string]string{"search": "enter a phone number or order number"})
	}
	orders, err := s.repo.TrackOrders(ctx, search)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, shared.NotFound("order matching " + search)
	}
	return orders, nil
}

// TechnicianRevenue reports completed orders and service fee revenue per
// technician between two days inclusive.
func (s *Service) TechnicianRevenue(ctx context.Context, start, end time.Time) ([]TechnicianRevenue, error) {
	from := s.day(start)
	to := s.day(end).AddDate(0, 0, 1)
	if !from.Before(to) {
		return nil, shared.Validation("start date must not be after end date")
	}
	rows, err := s.repo.TechnicianRevenue(ctx, s.accounts.ServiceFee, from, to)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []TechnicianRevenue{}
	}
	return rows, nil
}

func (s *Service) day(t time.Time) time.Time {
	if t.IsZero() {
		t = s.now()
	}
	local := t.In(s.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
}
