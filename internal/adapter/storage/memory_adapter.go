package storage

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rl1809/storefront/internal/core/domain"
)

// MemoryProductStore is a process-local product store. CommitOrder checks
// and debits all lines under one lock.
type MemoryProductStore struct {
	mu       sync.Mutex
	products map[int64]domain.Product
	orders   map[string]domain.OrderSummary
	nextID   int64
}

func NewMemoryProductStore(products ...domain.Product) *MemoryProductStore {
	s := &MemoryProductStore{
		products: make(map[int64]domain.Product),
		orders:   make(map[string]domain.OrderSummary),
	}
	for _, p := range products {
		s.put(p)
	}
	return s
}

func (s *MemoryProductStore) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return p, nil
}

func (s *MemoryProductStore) GetProducts(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[int64]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (s *MemoryProductStore) ListAvailable(ctx context.Context) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if p.InStock() {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b domain.Product) int { return cmp.Compare(b.ID, a.ID) })
	return out, nil
}

func (s *MemoryProductStore) CommitOrder(ctx context.Context, order domain.OrderSummary) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[order.ID]; exists {
		return fmt.Errorf("order %s already recorded", order.ID)
	}

	for _, line := range order.Lines {
		p, ok := s.products[line.ProductID]
		if !ok {
			return fmt.Errorf("product %d: %w", line.ProductID, domain.ErrProductNotFound)
		}
		if p.Stock < line.Quantity {
			return &domain.StockError{
				ProductID: p.ID,
				Name:      p.Name,
				Requested: line.Quantity,
				Available: p.Stock,
				Err:       domain.ErrConcurrentStockConflict,
			}
		}
	}

	now := time.Now()
	for _, line := range order.Lines {
		p := s.products[line.ProductID]
		p.Stock -= line.Quantity
		p.UpdatedAt = now
		s.products[line.ProductID] = p
	}
	s.orders[order.ID] = order.Clone()
	return nil
}

func (s *MemoryProductStore) UpsertProduct(ctx context.Context, product domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.put(product)
	return nil
}

func (s *MemoryProductStore) InsertProduct(ctx context.Context, product domain.Product) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[product.ID]; exists && product.ID != 0 {
		return false, nil
	}
	s.put(product)
	return true, nil
}

// Order returns a recorded order.
func (s *MemoryProductStore) Order(id string) (domain.OrderSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	return o.Clone(), ok
}

func (s *MemoryProductStore) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *MemoryProductStore) put(p domain.Product) {
	if p.ID == 0 {
		p.ID = s.nextID + 1
	}
	s.nextID = max(s.nextID, p.ID)
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	p.UpdatedAt = time.Now()
	s.products[p.ID] = p
}

// MemorySessionStore keeps visitor carts in process memory.
type MemorySessionStore struct {
	mu          sync.Mutex
	carts       map[string]domain.Cart
	customers   map[string]domain.CustomerInfo
	idempotency map[string]struct{}
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		carts:       make(map[string]domain.Cart),
		customers:   make(map[string]domain.CustomerInfo),
		idempotency: make(map[string]struct{}),
	}
}

func (s *MemorySessionStore) LoadCart(ctx context.Context, visitorID string) (domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart, ok := s.carts[visitorID]
	if !ok {
		return domain.NewCart(), nil
	}
	return cart.Clone(), nil
}

func (s *MemorySessionStore) SaveCart(ctx context.Context, visitorID string, cart domain.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cart.IsEmpty() {
		delete(s.carts, visitorID)
		return nil
	}
	s.carts[visitorID] = cart.Clone()
	return nil
}

func (s *MemorySessionStore) LoadCustomer(ctx context.Context, visitorID string) (domain.CustomerInfo, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.customers[visitorID]
	return info, ok, nil
}

func (s *MemorySessionStore) SaveCustomer(ctx context.Context, visitorID string, info domain.CustomerInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.customers[visitorID] = info
	return nil
}

func (s *MemorySessionStore) ClearCheckout(ctx context.Context, visitorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.carts, visitorID)
	delete(s.customers, visitorID)
	return nil
}

func (s *MemorySessionStore) SetIdempotency(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.idempotency[key]; ok {
		return false, nil
	}
	s.idempotency[key] = struct{}{}
	return true, nil
}

func (s *MemorySessionStore) ReleaseIdempotency(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.idempotency, key)
	return nil
}
