package orchestrator

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/costing"
	"github.com/odyssey-erp/backoffice/internal/ledger"
	"github.com/odyssey-erp/backoffice/internal/sequencer"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/internal/stock"
)

type memoryState struct {
	accounts     map[int64]ledger.Account
	products     map[int64]Product
	warehouses   map[int64]Warehouse
	contacts     []Contact
	transactions []Transaction
	movements    []stock.Movement
	journals     []ledger.Journal
	finances     []Finance
	orders       []ServiceOrder
	audits       []shared.AuditLog
	users        map[int64]string
	nextID       int64
}

func (s *memoryState) clone() *memoryState {
	c := *s
	c.accounts = make(map[int64]ledger.Account, len(s.accounts))
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	c.products = make(map[int64]Product, len(s.products))
	for k, v := range s.products {
		c.products[k] = v
	}
	c.warehouses = make(map[int64]Warehouse, len(s.warehouses))
	for k, v := range s.warehouses {
		c.warehouses[k] = v
	}
	c.contacts = append([]Contact(nil), s.contacts...)
	c.transactions = append([]Transaction(nil), s.transactions...)
	c.movements = append([]stock.Movement(nil), s.movements...)
	c.journals = make([]ledger.Journal, len(s.journals))
	for i, j := range s.journals {
		j.Entries = append([]ledger.Entry(nil), j.Entries...)
		c.journals[i] = j
	}
	c.finances = append([]Finance(nil), s.finances...)
	c.orders = append([]ServiceOrder(nil), s.orders...)
	c.audits = append([]shared.AuditLog(nil), s.audits...)
	return &c
}

func (s *memoryState) id() int64 {
	s.nextID++
	return s.nextID
}

// memoryRepo is an in-memory RepositoryPort. A failed unit of work restores
// the state captured when it began.
type memoryRepo struct {
	state     *memoryState
	txCount   int
	failAudit error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: &memoryState{
		accounts:   map[int64]ledger.Account{},
		products:   map[int64]Product{},
		warehouses: map[int64]Warehouse{},
		users:      map[int64]string{},
		nextID:     100,
	}}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.txCount++
	backup := r.state.clone()
	if err := fn(ctx, &memoryTx{st: r.state, failAudit: r.failAudit}); err != nil {
		r.state = backup
		return err
	}
	return nil
}

func (r *memoryRepo) OrderDetail(ctx context.Context, orderNumber string) (OrderDetail, error) {
	tx := &memoryTx{st: r.state}
	order, err := tx.OrderByNumber(ctx, orderNumber)
	if err != nil {
		return OrderDetail{}, err
	}
	detail := OrderDetail{Order: order}
	if t, err := tx.TransactionByInvoice(ctx, order.Invoice); err == nil {
		for _, m := range r.state.movements {
			if m.TransactionID == t.ID {
				t.Movements = append(t.Movements, m)
			}
		}
		detail.Transaction = &t
	}
	if j, err := tx.JournalByInvoice(ctx, order.Invoice); err == nil {
		detail.Journal = &j
	}
	return detail, nil
}

func (r *memoryRepo) ListOrders(_ context.Context, f OrderFilter) ([]ServiceOrder, map[string]int64, error) {
	var out []ServiceOrder
	counts := map[string]int64{}
	for _, o := range r.state.orders {
		if o.DateIssued.Before(f.Start) || !o.DateIssued.Before(f.End) {
			continue
		}
		counts[string(o.Status)]++
		if f.WarehouseID > 0 && o.WarehouseID != f.WarehouseID {
			continue
		}
		if f.Status != "" && string(o.Status) != f.Status {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(o.OrderNumber+" "+o.PhoneType), strings.ToLower(f.Search)) {
			continue
		}
		out = append(out, r.withContact(o))
	}
	return out, counts, nil
}

func (r *memoryRepo) TrackOrders(_ context.Context, search string) ([]ServiceOrder, error) {
	var out []ServiceOrder
	for _, o := range r.state.orders {
		o = r.withContact(o)
		if o.OrderNumber == search || o.Contact.PhoneNumber == search {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *memoryRepo) TechnicianRevenue(_ context.Context, feeAccount int64, from, to time.Time) ([]TechnicianRevenue, error) {
	byTech := map[int64]*TechnicianRevenue{}
	for _, o := range r.state.orders {
		if o.Status != OrderCompleted || o.TechnicianID == 0 || o.UpdatedAt.Before(from) || !o.UpdatedAt.Before(to) {
			continue
		}
		row, ok := byTech[o.TechnicianID]
		if !ok {
			row = &TechnicianRevenue{TechnicianID: o.TechnicianID, TechnicianName: r.state.users[o.TechnicianID], TotalFee: decimal.Zero}
			byTech[o.TechnicianID] = row
		}
		row.TotalOrders++
		for _, j := range r.state.journals {
			if j.Invoice != o.Invoice {
				continue
			}
			for _, e := range j.Entries {
				if e.AccountID == feeAccount {
					row.TotalFee = row.TotalFee.Add(e.Credit).Sub(e.Debit)
				}
			}
		}
	}
	out := make([]TechnicianRevenue, 0, len(byTech))
	for _, row := range byTech {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TotalFee.GreaterThan(out[j].TotalFee) })
	return out, nil
}

func (r *memoryRepo) withContact(o ServiceOrder) ServiceOrder {
	for i := range r.state.contacts {
		if r.state.contacts[i].ID == o.ContactID {
			c := r.state.contacts[i]
			o.Contact = &c
		}
	}
	o.TechnicianName = r.state.users[o.TechnicianID]
	return o
}

// memoryTx implements TxRepository and every engine store over one state.
type memoryTx struct {
	st        *memoryState
	failAudit error
}

func (m *memoryTx) Ledger() ledger.Store { return m }
func (m *memoryTx) Stock() stock.Store { return m }
func (m *memoryTx) Costing() costing.Store { return m }
func (m *memoryTx) Invoices() sequencer.Store { return m }

func (m *memoryTx) ProductByID(_ context.Context, id int64) (Product, error) {
	p, ok := m.st.products[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func (m *memoryTx) UpdateInitCost(_ context.Context, productID int64, cost decimal.Decimal) error {
	p, ok := m.st.products[productID]
	if !ok {
		return ErrProductNotFound
	}
	p.InitCost = cost
	m.st.products[productID] = p
	return nil
}

func (m *memoryTx) WarehouseByID(_ context.Context, id int64) (Warehouse, error) {
	w, ok := m.st.warehouses[id]
	if !ok {
		return Warehouse{}, ErrWarehouseNotFound
	}
	return w, nil
}

func (m *memoryTx) InsertTransaction(_ context.Context, t Transaction) (int64, error) {
	for _, existing := range m.st.transactions {
		if existing.Invoice == t.Invoice {
			return 0, shared.Conflict("duplicate invoice %s", t.Invoice)
		}
	}
	t.ID = m.st.id()
	t.Movements = nil
	m.st.transactions = append(m.st.transactions, t)
	return t.ID, nil
}

func (m *memoryTx) TransactionByInvoice(_ context.Context, invoice string) (Transaction, error) {
	for _, t := range m.st.transactions {
		if t.Invoice == invoice {
			return t, nil
		}
	}
	return Transaction{}, ErrTransactionNotFound
}

func (m *memoryTx) MarkTransactionSold(_ context.Context, id int64, method string) error {
	for i := range m.st.transactions {
		if m.st.transactions[i].ID == id {
			m.st.transactions[i].Type = TransactionSales
			m.st.transactions[i].PaymentMethod = method
		}
	}
	return nil
}

func (m *memoryTx) DeleteTransactionByInvoice(_ context.Context, invoice string) (int64, error) {
	var n int64
	kept := m.st.transactions[:0]
	for _, t := range m.st.transactions {
		if t.Invoice == invoice {
			n++
			m.deleteMovements(func(mv stock.Movement) bool { return mv.TransactionID == t.ID })
			continue
		}
		kept = append(kept, t)
	}
	m.st.transactions = kept
	return n, nil
}

func (m *memoryTx) deleteMovements(match func(stock.Movement) bool) int64 {
	var n int64
	kept := m.st.movements[:0]
	for _, mv := range m.st.movements {
		if match(mv) {
			n++
			continue
		}
		kept = append(kept, mv)
	}
	m.st.movements = kept
	return n
}

func (m *memoryTx) InitialInvoices(_ context.Context, productID, warehouseID int64) ([]string, error) {
	seen := map[int64]bool{}
	var out []string
	for _, mv := range m.st.movements {
		if mv.ProductID != productID || mv.WarehouseID != warehouseID || !mv.IsInitial || seen[mv.TransactionID] {
			continue
		}
		seen[mv.TransactionID] = true
		for _, t := range m.st.transactions {
			if t.ID == mv.TransactionID {
				out = append(out, t.Invoice)
			}
		}
	}
	return out, nil
}

func (m *memoryTx) TransactionProducts(_ context.Context, transactionID int64) ([]int64, error) {
	seen := map[int64]bool{}
	var out []int64
	for _, mv := range m.st.movements {
		if mv.TransactionID == transactionID && !seen[mv.ProductID] {
			seen[mv.ProductID] = true
			out = append(out, mv.ProductID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (m *memoryTx) DeleteProductMovements(_ context.Context, transactionID, productID int64) (int64, error) {
	return m.deleteMovements(func(mv stock.Movement) bool {
		return mv.TransactionID == transactionID && mv.ProductID == productID
	}), nil
}

func (m *memoryTx) CountMovements(_ context.Context, transactionID int64) (int64, error) {
	var n int64
	for _, mv := range m.st.movements {
		if mv.TransactionID == transactionID {
			n++
		}
	}
	return n, nil
}

func (m *memoryTx) TransactionTotals(_ context.Context, transactionID int64) (MovementTotals, error) {
	totals := MovementTotals{Price: decimal.Zero, Cost: decimal.Zero}
	for _, mv := range m.st.movements {
		if mv.TransactionID == transactionID {
			totals.Price = totals.Price.Add(qtyAmount(mv.Quantity, mv.Price))
			totals.Cost = totals.Cost.Add(qtyAmount(mv.Quantity, mv.Cost))
		}
	}
	return totals, nil
}

func (m *memoryTx) InsertFinance(_ context.Context, f Finance) (int64, error) {
	f.ID = m.st.id()
	m.st.finances = append(m.st.finances, f)
	return f.ID, nil
}

func (m *memoryTx) DeleteFinancesByInvoice(_ context.Context, invoice string) (int64, error) {
	var n int64
	kept := m.st.finances[:0]
	for _, f := range m.st.finances {
		if f.Invoice == invoice {
			n++
			continue
		}
		kept = append(kept, f)
	}
	m.st.finances = kept
	return n, nil
}

func (m *memoryTx) FirstOrCreateContact(_ context.Context, c Contact) (Contact, error) {
	for _, existing := range m.st.contacts {
		if existing.PhoneNumber == c.PhoneNumber {
			return existing, nil
		}
	}
	c.ID = m.st.id()
	m.st.contacts = append(m.st.contacts, c)
	return c, nil
}

func (m *memoryTx) InsertOrder(_ context.Context, o ServiceOrder) (int64, error) {
	o.ID = m.st.id()
	o.UpdatedAt = o.DateIssued
	m.st.orders = append(m.st.orders, o)
	return o.ID, nil
}

func (m *memoryTx) findOrder(match func(ServiceOrder) bool) (ServiceOrder, error) {
	for _, o := range m.st.orders {
		if match(o) {
			return o, nil
		}
	}
	return ServiceOrder{}, ErrOrderNotFound
}

func (m *memoryTx) OrderByNumber(_ context.Context, orderNumber string) (ServiceOrder, error) {
	return m.findOrder(func(o ServiceOrder) bool { return o.OrderNumber == orderNumber })
}

func (m *memoryTx) OrderByID(_ context.Context, id int64) (ServiceOrder, error) {
	return m.findOrder(func(o ServiceOrder) bool { return o.ID == id })
}

func (m *memoryTx) OrderByInvoice(_ context.Context, invoice string) (ServiceOrder, error) {
	return m.findOrder(func(o ServiceOrder) bool { return invoice != "" && o.Invoice == invoice })
}

func (m *memoryTx) UpdateOrder(_ context.Context, o ServiceOrder) error {
	for i := range m.st.orders {
		if m.st.orders[i].ID == o.ID {
			o.Contact = nil
			o.UpdatedAt = m.st.orders[i].UpdatedAt
			m.st.orders[i] = o
			return nil
		}
	}
	return ErrOrderNotFound
}

func (m *memoryTx) RecordAudit(_ context.Context, log shared.AuditLog) error {
	if m.failAudit != nil {
		return m.failAudit
	}
	if err := log.Validate(); err != nil {
		return err
	}
	m.st.audits = append(m.st.audits, log)
	return nil
}

// ledger.Store

func (m *memoryTx) AccountsByID(_ context.Context, ids []int64) (map[int64]ledger.Account, error) {
	out := map[int64]ledger.Account{}
	for _, id := range ids {
		if acc, ok := m.st.accounts[id]; ok {
			out[id] = acc
		}
	}
	return out, nil
}

func (m *memoryTx) InsertJournal(_ context.Context, j ledger.Journal) (int64, error) {
	for _, existing := range m.st.journals {
		if existing.Invoice == j.Invoice {
			return 0, shared.Conflict("duplicate journal %s", j.Invoice)
		}
	}
	j.ID = m.st.id()
	j.Entries = nil
	m.st.journals = append(m.st.journals, j)
	return j.ID, nil
}

func (m *memoryTx) InsertEntries(_ context.Context, journalID int64, entries []ledger.Entry) error {
	for i := range m.st.journals {
		if m.st.journals[i].ID == journalID {
			m.st.journals[i].Entries = append(m.st.journals[i].Entries, entries...)
		}
	}
	return nil
}

func (m *memoryTx) JournalByInvoice(_ context.Context, invoice string) (ledger.Journal, error) {
	for _, j := range m.st.journals {
		if j.Invoice == invoice {
			j.Entries = append([]ledger.Entry(nil), j.Entries...)
			return j, nil
		}
	}
	return ledger.Journal{}, ledger.ErrJournalNotFound
}

func (m *memoryTx) DeleteJournalByInvoice(_ context.Context, invoice string) (int64, error) {
	var n int64
	kept := m.st.journals[:0]
	for _, j := range m.st.journals {
		if j.Invoice == invoice {
			n++
			continue
		}
		kept = append(kept, j)
	}
	m.st.journals = kept
	return n, nil
}

func (m *memoryTx) UpdateJournalHeader(_ context.Context, invoice string, dateIssued time.Time, description string) error {
	for i := range m.st.journals {
		if m.st.journals[i].Invoice == invoice {
			m.st.journals[i].DateIssued = dateIssued
			m.st.journals[i].Description = description
			return nil
		}
	}
	return ledger.ErrJournalNotFound
}

func (m *memoryTx) RetargetEntries(_ context.Context, journalID, from, to int64) (int64, error) {
	var n int64
	for i := range m.st.journals {
		if m.st.journals[i].ID != journalID {
			continue
		}
		for k := range m.st.journals[i].Entries {
			if m.st.journals[i].Entries[k].AccountID == from {
				m.st.journals[i].Entries[k].AccountID = to
				n++
			}
		}
	}
	return n, nil
}

func (m *memoryTx) InvalidateRollups(context.Context, time.Time) error { return nil }

// stock.Store

func (m *memoryTx) InsertMovement(_ context.Context, mv stock.Movement) (int64, error) {
	mv.ID = m.st.id()
	m.st.movements = append(m.st.movements, mv)
	return mv.ID, nil
}

func (m *memoryTx) SumQuantity(_ context.Context, productID, warehouseID int64, end time.Time) (int64, error) {
	var sum int64
	for _, mv := range m.st.movements {
		if mv.ProductID == productID && mv.WarehouseID == warehouseID && mv.DateIssued.Before(end) {
			sum += mv.Quantity
		}
	}
	return sum, nil
}

// costing.Store

func (m *memoryTx) InboundMovements(_ context.Context, productID int64) ([]costing.Inbound, error) {
	var out []costing.Inbound
	for _, mv := range m.st.movements {
		if mv.ProductID == productID && mv.Quantity > 0 && mv.TransactionType != stock.TypeMutation {
			out = append(out, costing.Inbound{Quantity: mv.Quantity, Cost: mv.Cost})
		}
	}
	return out, nil
}

func (m *memoryTx) CurrentCost(_ context.Context, productID int64) (decimal.Decimal, error) {
	p, ok := m.st.products[productID]
	if !ok {
		return decimal.Zero, costing.ErrProductNotFound
	}
	return p.CurrentCost, nil
}

func (m *memoryTx) UpdateCurrentCost(_ context.Context, productID int64, cost decimal.Decimal) error {
	p, ok := m.st.products[productID]
	if !ok {
		return costing.ErrProductNotFound
	}
	p.CurrentCost = cost
	m.st.products[productID] = p
	return nil
}

// sequencer.Store

func (m *memoryTx) LockScope(context.Context, string) error { return nil }

func (m *memoryTx) ScopeInvoices(_ context.Context, scope sequencer.Scope, userID int64, stem string) ([]string, error) {
	var out []string
	if scope.Table == sequencer.TableJournals {
		for _, j := range m.st.journals {
			if j.UserID == userID && strings.HasPrefix(j.Invoice, stem) {
				out = append(out, j.Invoice)
			}
		}
		return out, nil
	}
	for _, t := range m.st.transactions {
		if t.UserID != userID || !strings.HasPrefix(t.Invoice, stem) {
			continue
		}
		for _, typ := range scope.Types {
			if string(t.Type) == typ {
				out = append(out, t.Invoice)
			}
		}
	}
	return out, nil
}

func (m *memoryTx) LatestOrderInvoice(_ context.Context, stem string) (string, error) {
	latest := ""
	consider := func(inv string) {
		if strings.HasPrefix(inv, stem) && inv > latest {
			latest = inv
		}
	}
	for _, j := range m.st.journals {
		consider(j.Invoice)
	}
	for _, o := range m.st.orders {
		consider(o.Invoice)
	}
	for _, t := range m.st.transactions {
		consider(t.Invoice)
	}
	return latest, nil
}

func (m *memoryTx) InvoiceTaken(_ context.Context, invoice string) (bool, error) {
	for _, j := range m.st.journals {
		if j.Invoice == invoice {
			return true, nil
		}
	}
	for _, o := range m.st.orders {
		if o.Invoice == invoice {
			return true, nil
		}
	}
	for _, t := range m.st.transactions {
		if t.Invoice == invoice {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryTx) LatestOrderNumber(_ context.Context, stem string) (string, error) {
	latest := ""
	for _, o := range m.st.orders {
		if strings.HasPrefix(o.OrderNumber, stem) {
			latest = o.OrderNumber
		}
	}
	return latest, nil
}

func (m *memoryTx) OrderNumberTaken(_ context.Context, orderNumber string) (bool, error) {
	for _, o := range m.st.orders {
		if o.OrderNumber == orderNumber {
			return true, nil
		}
	}
	return false, nil
}
