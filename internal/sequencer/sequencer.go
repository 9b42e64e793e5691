// Package sequencer allocates per prefix, per user, per day invoice numbers.
package sequencer

import (
	"context"
	"fmt"
	"time"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Store is the persistence required by the sequencer. Implementations must run
// inside the caller's unit of work so the lock lives until commit.
type Store interface {
	// LockScope serialises allocations for key until the transaction ends.
	LockScope(ctx context.Context, key string) error
	// ScopeInvoices returns invoices of the scope beginning with stem, locking
	// the rows for update.
	ScopeInvoices(ctx context.Context, scope Scope, userID int64, stem string) ([]string, error)
	// LatestOrderInvoice returns the highest invoice beginning with stem
	// across journals, service orders and transactions, or "" when none
	// exists.
	LatestOrderInvoice(ctx context.Context, stem string) (string, error)
	// InvoiceTaken reports whether invoice exists in journals, service orders
	// or transactions.
	InvoiceTaken(ctx context.Context, invoice string) (bool, error)
	// LatestOrderNumber returns the newest order number beginning with stem.
	LatestOrderNumber(ctx context.Context, stem string) (string, error)
	// OrderNumberTaken reports whether orderNumber already exists.
	OrderNumberTaken(ctx context.Context, orderNumber string) (bool, error)
}

// Metrics receives allocation events.
type Metrics interface {
	InvoiceAllocated(prefix string)
	InvoiceCollision()
}

type nopMetrics struct{}

func (nopMetrics) InvoiceAllocated(string) {}
func (nopMetrics) InvoiceCollision()       {}

// Config tunes the sequencer.
type Config struct {
	Location *time.Location
	Retries  int
	Now      func() time.Time
	Metrics  Metrics
}

// Sequencer issues invoice and order numbers.
type Sequencer struct {
	loc     *time.Location
	retries int
	now     func() time.Time
	metrics Metrics
}

// New builds a Sequencer. Zero config values fall back to UTC, 20 retries and
// time.Now.
func New(cfg Config) *Sequencer {
	s := &Sequencer{loc: cfg.Location, retries: cfg.Retries, now: cfg.Now, metrics: cfg.Metrics}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.retries <= 0 {
		s.retries = 20
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	return s
}

// Today returns the current day in the sequencer location.
func (s *Sequencer) Today() time.Time {
	return s.now().In(s.loc)
}

// Next locks the scope and returns the next invoice for actor.
func (s *Sequencer) Next(ctx context.Context, store Store, scope Scope, actor shared.Actor) (string, error) {
	if err := scope.Validate(); err != nil {
		return "", err
	}
	if actor.UserID <= 0 {
		return "", shared.Validation("user is required")
	}
	today := s.Today()
	stem := Stem(scope.Prefix, today, actor.UserID)
	if err := store.LockScope(ctx, scope.Key(today.Format(dateLayout), actor.UserID)); err != nil {
		return "", fmt.Errorf("sequencer: lock scope: %w", err)
	}
	existing, err := store.ScopeInvoices(ctx, scope, actor.UserID, stem)
	if err != nil {
		return "", fmt.Errorf("sequencer: read scope: %w", err)
	}
	invoice := Format(scope.Prefix, today, actor.UserID, NextNumber(existing))
	s.metrics.InvoiceAllocated(scope.Prefix)
	return invoice, nil
}

// NextOrderInvoice returns a RO.BK invoice unused by journals, service orders
// and transactions. It starts after the highest invoice of the stem in any of
// them and does not lock; a candidate committed concurrently is retried with
// the next counter.
func (s *Sequencer) NextOrderInvoice(ctx context.Context, store Store, actor shared.Actor) (string, error) {
	if actor.UserID <= 0 {
		return "", shared.Validation("user is required")
	}
	today := s.Today()
	stem := Stem(PrefixOrder, today, actor.UserID)
	latest, err := store.LatestOrderInvoice(ctx, stem)
	if err != nil {
		return "", fmt.Errorf("sequencer: latest order invoice: %w", err)
	}
	next := NextNumber([]string{latest})
	for attempt := 0; attempt < s.retries; attempt++ {
		candidate := Format(PrefixOrder, today, actor.UserID, next)
		taken, err := store.InvoiceTaken(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("sequencer: check order invoice: %w", err)
		}
		if !taken {
			s.metrics.InvoiceAllocated(PrefixOrder)
			return candidate, nil
		}
		s.metrics.InvoiceCollision()
		next++
	}
	return "", ErrInvoiceCollision
}

// NextOrderNumber returns the next service order number for the warehouse,
// user and day.
func (s *Sequencer) NextOrderNumber(ctx context.Context, store Store, warehouseCode string, actor shared.Actor) (string, error) {
	if warehouseCode == "" {
		return "", shared.Validation("warehouse code is required")
	}
	if actor.UserID <= 0 {
		return "", shared.Validation("user is required")
	}
	today := s.Today()
	stem := orderStem(warehouseCode, today, actor.UserID)
	latest, err := store.LatestOrderNumber(ctx, stem)
	if err != nil {
		return "", fmt.Errorf("sequencer: latest order number: %w", err)
	}
	next := int64(1)
	if n, ok := Suffix(latest, "-"); ok {
		next = n + 1
	}
	for attempt := 0; attempt < s.retries; attempt++ {
		candidate := FormatOrderNumber(warehouseCode, today, actor.UserID, next)
		taken, err := store.OrderNumberTaken(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("sequencer: check order number: %w", err)
		}
		if !taken {
			return candidate, nil
		}
		s.metrics.InvoiceCollision()
		next++
	}
	return "", ErrInvoiceCollision
}
