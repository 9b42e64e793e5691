package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/stock"
)

// queries holds the SQL shared by the pool reader and the transaction.
// lock adds row locks to reads that precede an update.
type queries struct {
	q    db.Querier
	lock bool
}

func (s queries) forUpdate(clause string) string {
	if s.lock {
		return " " + clause
	}
	return ""
}

func (s queries) ProductByID(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := s.q.QueryRow(ctx, `SELECT id, code, name, is_service, price, init_cost, current_cost FROM products WHERE id=$1`+s.forUpdate("FOR UPDATE"), id).
		Scan(&p.ID, &p.Code, &p.Name, &p.IsService, &p.Price, &p.InitCost, &p.CurrentCost)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	return p, err
}

func (s queries) UpdateInitCost(ctx context.Context, productID int64, cost decimal.Decimal) error {
	tag, err := s.q.Exec(ctx, `UPDATE products SET init_cost=$2, updated_at=NOW() WHERE id=$1`, productID, cost)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (s queries) WarehouseByID(ctx context.Context, id int64) (Warehouse, error) {
	var w Warehouse
	err := s.q.QueryRow(ctx, `SELECT id, code, name FROM warehouses WHERE id=$1`, id).Scan(&w.ID, &w.Code, &w.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return Warehouse{}, ErrWarehouseNotFound
	}
	return w, err
}

func (s queries) InsertTransaction(ctx context.Context, t Transaction) (int64, error) {
	var id int64
	err := s.q.QueryRow(ctx, `INSERT INTO transactions (invoice, date_issued, transaction_type, status, payment_method, contact_id, warehouse_id, user_id, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW(),NOW()) RETURNING id`,
		t.Invoice, t.DateIssued, string(t.Type), string(t.Status), db.NullString(t.PaymentMethod), t.ContactID, t.WarehouseID, t.UserID).Scan(&id)
	return id, err
}

func (s queries) TransactionByInvoice(ctx context.Context, invoice string) (Transaction, error) {
	var t Transaction
	var kind, status string
	err := s.q.QueryRow(ctx, `SELECT id, invoice, date_issued, transaction_type, status, COALESCE(payment_method, ''), contact_id, warehouse_id, user_id
FROM transactions WHERE invoice=$1`+s.forUpdate("FOR UPDATE"), invoice).
		Scan(&t.ID, &t.Invoice, &t.DateIssued, &kind, &status, &t.PaymentMethod, &t.ContactID, &t.WarehouseID, &t.UserID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, ErrTransactionNotFound
	}
	t.Type = TransactionType(kind)
	t.Status = TransactionStatus(status)
	return t, err
}

func (s queries) MarkTransactionSold(ctx context.Context, id int64, paymentMethod string) error {
	_, err := s.q.Exec(ctx, `UPDATE transactions SET transaction_type=$2, payment_method=$3, updated_at=NOW() WHERE id=$1`, id, string(TransactionSales), paymentMethod)
	return err
}

func (s queries) DeleteTransactionByInvoice(ctx context.Context, invoice string) (int64, error) {
	tag, err := s.q.Exec(ctx, `DELETE FROM transactions WHERE invoice=$1`, invoice)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s queries) InitialInvoices(ctx context.Context, productID, warehouseID int64) ([]string, error) {
	rows, err := s.q.Query(ctx, `SELECT DISTINCT t.invoice
FROM stock_movements m
JOIN transactions t ON t.id = m.transaction_id
WHERE m.product_id=$1 AND m.warehouse_id=$2 AND m.is_initial`, productID, warehouseID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s queries) TransactionProducts(ctx context.Context, transactionID int64) ([]int64, error) {
	rows, err := s.q.Query(ctx, `SELECT DISTINCT product_id FROM stock_movements WHERE transaction_id=$1 ORDER BY product_id`, transactionID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (s queries) DeleteProductMovements(ctx context.Context, transactionID, productID int64) (int64, error) {
	tag, err := s.q.Exec(ctx, `DELETE FROM stock_movements WHERE transaction_id=$1 AND product_id=$2`, transactionID, productID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s queries) CountMovements(ctx context.Context, transactionID int64) (int64, error) {
	var n int64
	err := s.q.QueryRow(ctx, `SELECT COUNT(*) FROM stock_movements WHERE transaction_id=$1`, transactionID).Scan(&n)
	return n, err
}

func (s queries) TransactionTotals(ctx context.Context, transactionID int64) (MovementTotals, error) {
	var t MovementTotals
	err := s.q.QueryRow(ctx, `SELECT COALESCE(SUM(quantity * price), 0), COALESCE(SUM(quantity * cost), 0)
FROM stock_movements WHERE transaction_id=$1`, transactionID).Scan(&t.Price, &t.Cost)
	return t, err
}

func (s queries) movements(ctx context.Context, transactionID int64) ([]stock.Movement, error) {
	rows, err := s.q.Query(ctx, `SELECT id, product_id, warehouse_id, COALESCE(transaction_id, 0), quantity, cost, price, date_issued, is_initial, transaction_type
FROM stock_movements WHERE transaction_id=$1 ORDER BY id`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []stock.Movement
	for rows.Next() {
		var m stock.Movement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.WarehouseID, &m.TransactionID, &m.Quantity, &m.Cost, &m.Price, &m.DateIssued, &m.IsInitial, &m.TransactionType); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s queries) InsertFinance(ctx context.Context, f Finance) (int64, error) {
	var id int64
	err := s.q.QueryRow(ctx, `INSERT INTO finances (date_issued, due_date, invoice, description, bill_amount, payment_amount, status, payment_nth, finance_type, contact_id, user_id, journal_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW()) RETURNING id`,
		f.DateIssued, f.DueDate, f.Invoice, f.Description, f.BillAmount, f.PaymentAmount, f.Status, f.PaymentNth, f.FinanceType, f.ContactID, f.UserID, db.NullInt(f.JournalID)).Scan(&id)
	return id, err
}

func (s queries) DeleteFinancesByInvoice(ctx context.Context, invoice string) (int64, error) {
	tag, err := s.q.Exec(ctx, `DELETE FROM finances WHERE invoice=$1`, invoice)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// FirstOrCreateContact matches customers by phone number. The advisory lock
// keeps two concurrent first visits from creating the contact twice.
func (s queries) FirstOrCreateContact(ctx context.Context, c Contact) (Contact, error) {
	if _, err := s.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('contact:' || $1::text))`, c.PhoneNumber); err != nil {
		return Contact{}, err
	}
	var found Contact
	err := s.q.QueryRow(ctx, `SELECT id, name, COALESCE(phone_number, ''), address, contact_type FROM contacts WHERE phone_number=$1 ORDER BY id LIMIT 1`, c.PhoneNumber).
		Scan(&found.ID, &found.Name, &found.PhoneNumber, &found.Address, &found.Type)
	if err == nil {
		return found, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Contact{}, err
	}
	err = s.q.QueryRow(ctx, `INSERT INTO contacts (name, phone_number, address, contact_type, created_at) VALUES ($1,$2,$3,$4,NOW()) RETURNING id`,
		c.Name, c.PhoneNumber, c.Address, c.Type).Scan(&c.ID)
	return c, err
}

func (s queries) InsertOrder(ctx context.Context, o ServiceOrder) (int64, error) {
	var id int64
	err := s.q.QueryRow(ctx, `INSERT INTO service_orders (order_number, invoice, status, phone_type, description, contact_id, technician_id, warehouse_id, user_id, payment_method, date_issued, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW(),NOW()) RETURNING id`,
		o.OrderNumber, db.NullString(o.Invoice), string(o.Status), o.PhoneType, o.Description, o.ContactID, db.NullInt(o.TechnicianID), o.WarehouseID, o.UserID, o.PaymentMethod, o.DateIssued).Scan(&id)
	return id, err
}

const orderSelect = `SELECT o.id, o.order_number, COALESCE(o.invoice, ''), o.status, o.phone_type, o.description, o.contact_id, COALESCE(o.technician_id, 0),
	o.warehouse_id, o.user_id, o.payment_method, o.date_issued, o.updated_at,
	c.name, COALESCE(c.phone_number, ''), c.address, c.contact_type, COALESCE(u.name, '')
FROM service_orders o
JOIN contacts c ON c.id = o.contact_id
LEFT JOIN users u ON u.id = o.technician_id`

func scanOrder(row pgx.Row) (ServiceOrder, error) {
	var o ServiceOrder
	var status string
	c := &Contact{}
	if err := row.Scan(&o.ID, &o.OrderNumber, &o.Invoice, &status, &o.PhoneType, &o.Description, &o.ContactID, &o.TechnicianID,
		&o.WarehouseID, &o.UserID, &o.PaymentMethod, &o.DateIssued, &o.UpdatedAt,
		&c.Name, &c.PhoneNumber, &c.Address, &c.Type, &o.TechnicianName); err != nil {
		return ServiceOrder{}, err
	}
	o.Status = OrderStatus(status)
	c.ID = o.ContactID
	o.Contact = c
	return o, nil
}

func (s queries) orderBy(ctx context.Context, where string, arg any) (ServiceOrder, error) {
	o, err := scanOrder(s.q.QueryRow(ctx, orderSelect+" WHERE "+where+s.forUpdate("FOR UPDATE OF o"), arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return ServiceOrder{}, ErrOrderNotFound
	}
	return o, err
}

func (s queries) OrderByNumber(ctx context.Context, orderNumber string) (ServiceOrder, error) {
	return s.orderBy(ctx, "o.order_number=$1", orderNumber)
}

func (s queries) OrderByID(ctx context.Context, id int64) (ServiceOrder, error) {
	return s.orderBy(ctx, "o.id=$1", id)
}

func (s queries) OrderByInvoice(ctx context.Context, invoice string) (ServiceOrder, error) {
	return s.orderBy(ctx, "o.invoice=$1", invoice)
}

func (s queries) UpdateOrder(ctx context.Context, o ServiceOrder) error {
	tag, err := s.q.Exec(ctx, `UPDATE service_orders SET invoice=$2, status=$3, technician_id=$4, payment_method=$5, updated_at=NOW() WHERE id=$1`,
		o.ID, db.NullString(o.Invoice), string(o.Status), db.NullInt(o.TechnicianID), o.PaymentMethod)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (s queries) collectOrders(rows pgx.Rows, err error) ([]ServiceOrder, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ServiceOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s queries) listOrders(ctx context.Context, f OrderFilter) ([]ServiceOrder, map[string]int64, error) {
	orders, err := s.collectOrders(s.q.Query(ctx, orderSelect+`
WHERE o.date_issued >= $1 AND o.date_issued < $2
	AND ($3::bigint = 0 OR o.warehouse_id = $3)
	AND ($4::text = '' OR o.order_number ILIKE '%' || $4 || '%' OR o.phone_type ILIKE '%' || $4 || '%'
		OR c.name ILIKE '%' || $4 || '%' OR c.phone_number ILIKE '%' || $4 || '%')
	AND ($5::text = '' OR o.status = $5)
ORDER BY o.updated_at DESC`, f.Start, f.End, f.WarehouseID, f.Search, f.Status))
	if err != nil {
		return nil, nil, err
	}
	rows, err := s.q.Query(ctx, `SELECT status, COUNT(*) FROM service_orders WHERE date_issued >= $1 AND date_issued < $2 GROUP BY status`, f.Start, f.End)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	counts := map[string]int64{}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, nil, err
		}
		counts[status] = n
	}
	return orders, counts, rows.Err()
}

func (s queries) trackOrders(ctx context.Context, search string) ([]ServiceOrder, error) {
	return s.collectOrders(s.q.Query(ctx, orderSelect+`
WHERE o.order_number = $1 OR c.phone_number = $1
ORDER BY o.updated_at DESC`, search))
}

func (s queries) technicianRevenue(ctx context.Context, serviceFeeAccount int64, from, to time.Time) ([]TechnicianRevenue, error) {
	rows, err := s.q.Query(ctx, `SELECT o.technician_id, COALESCE(u.name, ''), COUNT(DISTINCT o.id),
	COALESCE(SUM(CASE WHEN e.chart_of_account_id = $1 THEN e.credit - e.debit ELSE 0 END), 0)
FROM service_orders o
JOIN journals j ON j.invoice = o.invoice
JOIN journal_entries e ON e.journal_id = j.id
LEFT JOIN users u ON u.id = o.technician_id
WHERE o.status = 'Completed' AND o.technician_id IS NOT NULL AND o.updated_at >= $2 AND o.updated_at < $3
GROUP BY o.technician_id, u.name
ORDER BY 4 DESC, o.technician_id`, serviceFeeAccount, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TechnicianRevenue
	for rows.Next() {
		var r TechnicianRevenue
		if err := rows.Scan(&r.TechnicianID, &r.TechnicianName, &r.TotalOrders, &r.TotalFee); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
