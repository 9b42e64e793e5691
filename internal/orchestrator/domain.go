package orchestrator

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/ledger"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/internal/stock"
)

// TransactionType tags a stock transaction.
type TransactionType string

const (
	TransactionSales      TransactionType = "Sales"
	TransactionPurchase   TransactionType = "Purchase"
	TransactionAdjustment TransactionType = "Adjustment"
	TransactionReturn     TransactionType = "Return"
	TransactionMutation   TransactionType = "Mutation"
	TransactionOrder      TransactionType = "Order"
)

// TransactionStatus of a stock transaction.
type TransactionStatus string

const (
	StatusActive    TransactionStatus = "Active"
	StatusConfirmed TransactionStatus = "Confirmed"
	StatusCanceled  TransactionStatus = "Canceled"
)

// OrderStatus is the service order workflow state.
type OrderStatus string

const (
	OrderPending    OrderStatus = "Pending"
	OrderInProgress OrderStatus = "In Progress"
	OrderTakeOver   OrderStatus = "Take Over"
	OrderCompleted  OrderStatus = "Completed"
	OrderCanceled   OrderStatus = "Canceled"
)

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderInProgress, OrderTakeOver, OrderCompleted, OrderCanceled:
		return true
	}
	return false
}

// Payment methods stored on orders and transactions.
const (
	PaymentUnpaid = "Unpaid"
	PaymentCash   = "Cash/Bank Transfer"
	PaymentCredit = "Credit"
)

// Finance constants.
const (
	FinanceReceivable = "Receivable"
	FinancePayable    = "Payable"
	FinanceUnpaid     = "Unpaid"
)

// Transaction is the stock side of a business event.
type Transaction struct {
	ID            int64             `json:"id"`
	Invoice       string            `json:"invoice"`
	DateIssued    time.Time         `json:"date_issued"`
	Type          TransactionType   `json:"transaction_type"`
	Status        TransactionStatus `json:"status"`
	PaymentMethod string            `json:"payment_method,omitempty"`
	ContactID     int64             `json:"contact_id"`
	WarehouseID   int64             `json:"warehouse_id"`
	UserID        int64             `json:"user_id"`
	Movements     []stock.Movement  `json:"stock_movements,omitempty"`
}

// Product is the subset of a product the orchestrator reads.
type Product struct {
	ID          int64           `json:"id"`
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	IsService   bool            `json:"is_service"`
	Price       decimal.Decimal `json:"price"`
	InitCost    decimal.Decimal `json:"init_cost"`
	CurrentCost decimal.Decimal `json:"current_cost"`
}

// Warehouse identifies a branch.
type Warehouse struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// Contact is a customer or supplier.
type Contact struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
	Address     string `json:"address"`
	Type        string `json:"type"`
}

// ServiceOrder is a repair job.
type ServiceOrder struct {
	ID             int64       `json:"id"`
	OrderNumber    string      `json:"order_number"`
	Invoice        string      `json:"invoice,omitempty"`
	Status         OrderStatus `json:"status"`
	PhoneType      string      `json:"phone_type"`
	Description    string      `json:"description"`
	ContactID      int64       `json:"contact_id"`
	TechnicianID   int64       `json:"technician_id,omitempty"`
	WarehouseID    int64       `json:"warehouse_id"`
	UserID         int64       `json:"user_id"`
	PaymentMethod  string      `json:"payment_method"`
	DateIssued     time.Time   `json:"date_issued"`
	UpdatedAt      time.Time   `json:"updated_at"`
	Contact        *Contact    `json:"contact,omitempty"`
	TechnicianName string      `json:"technician_name,omitempty"`
}

// Finance is a receivable or payable installment record.
type Finance struct {
	ID            int64           `json:"id"`
	DateIssued    time.Time       `json:"date_issued"`
	DueDate       time.Time       `json:"due_date"`
	Invoice       string          `json:"invoice"`
	Description   string          `json:"description"`
	BillAmount    decimal.Decimal `json:"bill_amount"`
	PaymentAmount decimal.Decimal `json:"payment_amount"`
	Status        string          `json:"status"`
	PaymentNth    int             `json:"payment_nth"`
	FinanceType   string          `json:"finance_type"`
	ContactID     int64           `json:"contact_id"`
	UserID        int64           `json:"user_id"`
	JournalID     int64           `json:"journal_id,omitempty"`
}

// MovementTotals are the signed Σ(quantity×price) and Σ(quantity×cost) of a
// transaction.
type MovementTotals struct {
	Price decimal.Decimal
	Cost  decimal.Decimal
}

// Adjustment directions.
const (
	AdjustIn  = "in"
	AdjustOut = "out"
)

// AdjustmentInput is a stock adjustment request.
type AdjustmentInput struct {
	ProductID      int64
	WarehouseID    int64
	Quantity       int64
	Cost           decimal.Decimal
	IsInitial      bool
	AdjustmentType string
	AccountID      int64
	ContactID      int64
	DateIssued     time.Time
	Description    string
}

// Validate checks the request before the unit of work opens.
func (in AdjustmentInput) Validate() error {
	fields := map[string]string{}
	if in.ProductID <= 0 {
		fields["product_id"] = "is required"
	}
	if in.WarehouseID <= 0 {
		fields["warehouse_id"] = "is required"
	}
	if in.Quantity <= 0 {
		fields["quantity"] = "must be greater than 0"
	}
	if in.Cost.IsNegative() {
		fields["cost"] = "must not be negative"
	}
	if !in.IsInitial {
		if in.DateIssued.IsZero() {
			fields["date"] = "is required"
		}
		if in.AccountID <= 0 {
			fields["account_id"] = "is required"
		}
		if in.AdjustmentType != AdjustIn && in.AdjustmentType != AdjustOut {
			fields["adjustmentType"] = "must be one of in out"
		}
	}
	return fieldsError(fields)
}

// AdjustmentResult reports the adjustment outcome.
type AdjustmentResult struct {
	Invoice     string          `json:"invoice"`
	ProductID   int64           `json:"product_id"`
	WarehouseID int64           `json:"warehouse_id"`
	NewCost     decimal.Decimal `json:"new_cost"`
}

// ReversalInput is a stock reversal request. TransactionType "Sales" reverses
// a sale; any other value reverses a purchase or adjustment.
type ReversalInput struct {
	ProductID       int64
	WarehouseID     int64
	Quantity        int64
	Cost            decimal.Decimal
	Price           decimal.Decimal
	AccountID       int64
	ContactID       int64
	TransactionType string
	DateIssued      time.Time
	Description     string
}

// IsSales reports whether a sale is being reversed.
func (in ReversalInput) IsSales() bool {
	return in.TransactionType == string(TransactionSales)
}

// Validate checks the request.
func (in ReversalInput) Validate() error {
	fields := map[string]string{}
	if in.ProductID <= 0 {
		fields["product_id"] = "is required"
	}
	if in.WarehouseID <= 0 {
		fields["warehouse_id"] = "is required"
	}
	if in.Quantity <= 0 {
		fields["quantity"] = "must be greater than 0"
	}
	if in.Cost.IsNegative() {
		fields["cost"] = "must not be negative"
	}
	if in.AccountID <= 0 {
		fields["account_id"] = "is required"
	}
	if in.DateIssued.IsZero() {
		fields["date"] = "is required"
	}
	if in.IsSales() && !in.Price.IsPositive() {
		fields["price"] = "is required"
	}
	return fieldsError(fields)
}

// CartItem is a product line of a transfer, purchase or sale.
type CartItem struct {
	ProductID int64
	Quantity  int64
	Cost      decimal.Decimal
	Price     decimal.Decimal
}

func validateCart(fields map[string]string, cart []CartItem) {
	if len(cart) == 0 {
		fields["cart"] = "is required"
		return
	}
	for i, item := range cart {
		if item.ProductID <= 0 {
			fields[cartField(i, "id")] = "is required"
		}
		if item.Quantity < 1 {
			fields[cartField(i, "quantity")] = "must be at least 1"
		}
		if item.Cost.IsNegative() {
			fields[cartField(i, "cost")] = "must not be negative"
		}
		if item.Price.IsNegative() {
			fields[cartField(i, "price")] = "must not be negative"
		}
	}
}

// TransferInput moves products between warehouses.
type TransferInput struct {
	From        int64
	To          int64
	DateIssued  time.Time
	Description string
	Cart        []CartItem
}

// Validate checks the request.
func (in TransferInput) Validate() error {
	fields := map[string]string{}
	if in.From <= 0 {
		fields["from"] = "is required"
	}
	if in.To <= 0 {
		fields["to"] = "is required"
	}
	if in.From > 0 && in.From == in.To {
		fields["to"] = "must differ from from"
	}
	if in.DateIssued.IsZero() {
		fields["date_issued"] = "is required"
	}
	validateCart(fields, in.Cart)
	return fieldsError(fields)
}

// TradeInput is a purchase or sale of cart items paid through one account.
type TradeInput struct {
	WarehouseID int64
	ContactID   int64
	AccountID   int64
	DateIssued  time.Time
	Description string
	Cart        []CartItem
}

// Validate checks the request.
func (in TradeInput) Validate() error {
	fields := map[string]string{}
	if in.AccountID <= 0 {
		fields["account_id"] = "is required"
	}
	validateCart(fields, in.Cart)
	return fieldsError(fields)
}

// TradeResult reports a purchase or sale.
type TradeResult struct {
	Invoice string          `json:"invoice"`
	Total   decimal.Decimal `json:"total"`
	Journal ledger.Journal  `json:"journal"`
}

// CashMutationInput moves money between two accounts.
type CashMutationInput struct {
	DebitAccountID  int64
	CreditAccountID int64
	Amount          decimal.Decimal
	AdminFee        decimal.Decimal
	DateIssued      time.Time
	Description     string
}

// Validate checks the request.
func (in CashMutationInput) Validate() error {
	fields := map[string]string{}
	if in.DebitAccountID <= 0 {
		fields["debt_code"] = "is required"
	}
	if in.CreditAccountID <= 0 {
		fields["cred_code"] = "is required"
	}
	if in.DebitAccountID > 0 && in.DebitAccountID == in.CreditAccountID {
		fields["cred_code"] = "must differ from debt_code"
	}
	if !in.Amount.IsPositive() {
		fields["amount"] = "must be greater than 0"
	}
	if in.AdminFee.IsNegative() {
		fields["admin_fee"] = "must not be negative"
	}
	return fieldsError(fields)
}

// VoidResult counts the rows removed for an invoice.
type VoidResult struct {
	Invoice      string `json:"invoice"`
	Journals     int64  `json:"journals"`
	Finances     int64  `json:"finances"`
	Transactions int64  `json:"transactions"`
}

func fieldsError(fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return shared.ValidationFields(fields)
}

func cartField(i int, name string) string {
	return fmt.Sprintf("cart.%d.%s", i, name)
}

var (
	ErrProductNotFound     = shared.NotFound("product")
	ErrWarehouseNotFound   = shared.NotFound("warehouse")
	ErrTransactionNotFound = shared.NotFound("transaction")
	ErrOrderNotFound       = shared.NotFound("service order")
	ErrPartNotFound        = shared.NotFound("part")
)
