// Package inmemory holds map-backed stores with the same semantics as the
// Postgres repositories. Tests and the simulate command run against it.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"storefront-payments/internal/domain"
)

type Store struct {
	mu        sync.Mutex
	nextID    int64
	orders    map[int64]*domain.Order
	payments  map[int64]*domain.Payment
	inventory map[int64]*domain.InventoryEntry
	now       func() time.Time
}

func NewStore() *Store {
	return &Store{
		orders:    make(map[int64]*domain.Order),
		payments:  make(map[int64]*domain.Payment),
		inventory: make(map[int64]*domain.InventoryEntry),
		now:       time.Now,
	}
}

func (s *Store) Orders() *OrderRepo { return &OrderRepo{s: s} }
func (s *Store) Payments() *PaymentRepo { return &PaymentRepo{s: s} }
func (s *Store) Inventory() *InventoryRepo { return &InventoryRepo{s: s} }

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func cloneOrder(o *domain.Order, withLines bool) *domain.Order {
	c := *o
	c.Lines = nil
	if withLines {
		c.Lines = append([]domain.OrderLine(nil), o.Lines...)
	}
	return &c
}

type OrderRepo struct{ s *Store }

func (r *OrderRepo) FindById(_ context.Context, id int64) (*domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, nil
	}
	return cloneOrder(o, false), nil
}

func (r *OrderRepo) FindByBusinessNumber(_ context.Context, number string) (*domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var latest *domain.Order
	for _, o := range r.s.orders {
		if o.BusinessNumber != number {
			continue
		}
		if latest == nil || o.CreatedAt.After(latest.CreatedAt) ||
			(o.CreatedAt.Equal(latest.CreatedAt) && o.ID > latest.ID) {
			latest = o
		}
	}
	if latest == nil {
		return nil, nil
	}
	return cloneOrder(latest, false), nil
}

func (r *OrderRepo) FindWithLines(_ context.Context, id int64) (*domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, nil
	}
	return cloneOrder(o, true), nil
}

func (r *OrderRepo) UpdateOrderStatus(_ context.Context, id int64, status domain.OrderStatus, comment *string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return fmt.Errorf("order %d: %w", id, domain.ErrNotFound)
	}
	if o.Status == domain.OrderPaid {
		return fmt.Errorf("order %d: %w", id, domain.ErrAlreadyPaid)
	}
	o.Status = status
	if comment != nil {
		o.Comment = *comment
	}
	o.UpdatedAt = r.s.now()
	return nil
}

func (r *OrderRepo) CreateOrder(_ context.Context, order *domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	order.ID = r.s.id()
	if order.Status == 0 {
		order.Status = domain.OrderPending
	}
	now := r.s.now()
	order.CreatedAt, order.UpdatedAt = now, now
	for i := range order.Lines {
		order.Lines[i].ID = r.s.id()
		order.Lines[i].OrderID = order.ID
	}
	r.s.orders[order.ID] = cloneOrder(order, true)
	return nil
}

func (r *OrderRepo) FindPaidWithoutPayment(_ context.Context, olderThan time.Duration) ([]domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	paid := make(map[int64]bool)
	for _, p := range r.s.payments {
		paid[p.OrderID] = true
	}

	cutoff := r.s.now().Add(-olderThan)
	var out []domain.Order
	for _, o := range r.s.orders {
		if o.Status == domain.OrderPaid && !paid[o.ID] && o.UpdatedAt.Before(cutoff) {
			out = append(out, *cloneOrder(o, false))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type PaymentRepo struct{ s *Store }

func (r *PaymentRepo) CreatePayment(_ context.Context, payment *domain.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.payments {
		if p.GatewayReference == payment.GatewayReference {
			return fmt.Errorf("%w: %s", domain.ErrDuplicatePayment, payment.GatewayReference)
		}
	}
	payment.ID = r.s.id()
	p := *payment
	r.s.payments[p.ID] = &p
	return nil
}

func (r *PaymentRepo) FindById(_ context.Context, id int64) (*domain.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok {
		return nil, nil
	}
	c := *p
	return &c, nil
}

func (r *PaymentRepo) FindByOrderID(_ context.Context, orderID int64) ([]domain.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []domain.Payment{}
	for _, p := range r.s.payments {
		if p.OrderID == orderID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *PaymentRepo) FindAll(_ context.Context) ([]domain.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.Payment, 0, len(r.s.payments))
	for _, p := range r.s.payments {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

type InventoryRepo struct{ s *Store }

func (r *InventoryRepo) GetStock(_ context.Context, productID, branchID int64) (*domain.InventoryEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.inventory {
		if e.ProductID == productID && e.BranchID == branchID {
			c := *e
			return &c, nil
		}
	}
	return nil, nil
}

func (r *InventoryRepo) UpdateStock(_ context.Context, entryID int64, quantity int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if quantity < 0 {
		return fmt.Errorf("%w: stock for entry %d cannot go to %d", domain.ErrInventory, entryID, quantity)
	}
	e, ok := r.s.inventory[entryID]
	if !ok {
		return fmt.Errorf("%w: inventory entry %d", domain.ErrNotFound, entryID)
	}
	e.Stock = quantity
	return nil
}

func (r *InventoryRepo) SwapStock(_ context.Context, entryID int64, current, quantity int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if quantity < 0 {
		return fmt.Errorf("%w: stock for entry %d cannot go to %d", domain.ErrInventory, entryID, quantity)
	}
	e, ok := r.s.inventory[entryID]
	if !ok {
		return fmt.Errorf("%w: inventory entry %d", domain.ErrNotFound, entryID)
	}
	if e.Stock != current {
		return fmt.Errorf("%w: entry %d holds %d, not %d", domain.ErrStockConflict, entryID, e.Stock, current)
	}
	e.Stock = quantity
	return nil
}

func (r *InventoryRepo) CreateEntry(_ context.Context, e *domain.InventoryEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e.ID = r.s.id()
	c := *e
	r.s.inventory[c.ID] = &c
	return nil
}
