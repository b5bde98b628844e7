package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/Bashir-Janbalat/store-app-be/internal/domain"
	"github.com/Bashir-Janbalat/store-app-be/internal/repositories"
)

var testNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func sequentialIDs(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%02d", prefix, n)
	}
}

func notFoundErr() error { return fakeRepoError{notFound: true} }

// memStore is an in-memory backing store shared by the fake repositories. RunInTx restores a
// snapshot when fn fails.
type memStore struct {
	mu        sync.Mutex
	customers map[string]Customer
	resets    map[string]domain.PasswordResetToken
	carts     map[string]Cart
	wishlists map[string]Wishlist
	orders    map[string]Order
	payments  map[string]Payment
	addresses map[string]Address
	reviews   map[string]Review
	stock     map[int64]int
	products  map[int64]ProductInfo

	saveErr  error
	txCalls  int
	rollback int
}

func newMemStore() *memStore {
	return &memStore{
		customers: map[string]Customer{},
		resets:    map[string]domain.PasswordResetToken{},
		carts:     map[string]Cart{},
		wishlists: map[string]Wishlist{},
		orders:    map[string]Order{},
		payments:  map[string]Payment{},
		addresses: map[string]Address{},
		reviews:   map[string]Review{},
		stock:     map[int64]int{},
		products:  map[int64]ProductInfo{},
	}
}

func (m *memStore) addCustomer(id, email string) Customer {
	c := Customer{ID: id, Email: email, Name: "Customer " + id, CreatedAt: testNow}
	m.customers[id] = c
	return c
}

func (m *memStore) addProduct(id int64, price string, stock int) {
	m.products[id] = ProductInfo{
		ProductID:  id,
		Name:       "Product",
		Price:      decimal.RequireFromString(price),
		TotalStock: stock,
	}
	m.stock[id] = stock
}

func (m *memStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	m.txCalls++
	snapshot := m.snapshot()
	m.mu.Unlock()

	if err := fn(ctx); err != nil {
		m.mu.Lock()
		m.restore(snapshot)
		m.rollback++
		m.mu.Unlock()
		return err
	}
	return nil
}

type memSnapshot struct {
	customers map[string]Customer
	resets    map[string]domain.PasswordResetToken
	carts     map[string]Cart
	wishlists map[string]Wishlist
	orders    map[string]Order
	payments  map[string]Payment
	addresses map[string]Address
}

func (m *memStore) snapshot() memSnapshot {
	s := memSnapshot{
		customers: map[string]Customer{},
		resets:    map[string]domain.PasswordResetToken{},
		carts:     map[string]Cart{},
		wishlists: map[string]Wishlist{},
		orders:    map[string]Order{},
		payments:  map[string]Payment{},
		addresses: map[string]Address{},
	}
	for k, v := range m.customers {
		s.customers[k] = v
	}
	for k, v := range m.resets {
		s.resets[k] = v
	}
	for k, v := range m.carts {
		s.carts[k] = cloneCart(v)
	}
	for k, v := range m.wishlists {
		v.Items = append([]WishlistItem(nil), v.Items...)
		s.wishlists[k] = v
	}
	for k, v := range m.orders {
		s.orders[k] = v
	}
	for k, v := range m.payments {
		s.payments[k] = v
	}
	for k, v := range m.addresses {
		s.addresses[k] = v
	}
	return s
}

func (m *memStore) restore(s memSnapshot) {
	m.customers = s.customers
	m.resets = s.resets
	m.carts = s.carts
	m.wishlists = s.wishlists
	m.orders = s.orders
	m.payments = s.payments
	m.addresses = s.addresses
}

func cloneCart(c Cart) Cart {
	c.Items = append([]CartItem(nil), c.Items...)
	return c
}

type memCustomers struct{ m *memStore }

func (r memCustomers) Insert(_ context.Context, customer Customer) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, existing := range r.m.customers {
		if strings.EqualFold(existing.Email, customer.Email) {
			return fakeRepoError{conflict: true}
		}
	}
	r.m.customers[customer.ID] = customer
	return nil
}

func (r memCustomers) FindByID(_ context.Context, id string) (Customer, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if c, ok := r.m.customers[id]; ok {
		return c, nil
	}
	return Customer{}, notFoundErr()
}

func (r memCustomers) FindByEmail(_ context.Context, email string) (Customer, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, c := range r.m.customers {
		if strings.EqualFold(c.Email, email) {
			return c, nil
		}
	}
	return Customer{}, notFoundErr()
}

func (r memCustomers) UpdatePassword(_ context.Context, id string, hash string, updatedAt time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.customers[id]
	if !ok {
		return notFoundErr()
	}
	c.PasswordHash = hash
	c.UpdatedAt = updatedAt
	r.m.customers[id] = c
	return nil
}

type memResets struct{ m *memStore }

func (r memResets) Insert(_ context.Context, token domain.PasswordResetToken) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.resets[token.ID]; ok {
		return fakeRepoError{conflict: true}
	}
	r.m.resets[token.ID] = token
	return nil
}

func (r memResets) FindByID(_ context.Context, id string) (domain.PasswordResetToken, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if t, ok := r.m.resets[id]; ok {
		return t, nil
	}
	return domain.PasswordResetToken{}, notFoundErr()
}

func (r memResets) MarkUsed(_ context.Context, id string, usedAt time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	t, ok := r.m.resets[id]
	if !ok {
		return notFoundErr()
	}
	if r.m.saveErr != nil {
		return r.m.saveErr
	}
	t.Used = true
	t.UsedAt = &usedAt
	r.m.resets[id] = t
	return nil
}

type memCarts struct{ m *memStore }

func (r memCarts) FindByID(_ context.Context, id string) (Cart, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if c, ok := r.m.carts[id]; ok {
		return cloneCart(c), nil
	}
	return Cart{}, notFoundErr()
}

func (r memCarts) FindActive(_ context.Context, owner Owner) (Cart, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, c := range r.m.carts {
		if c.Owner.Key() == owner.Key() && c.Status == domain.CartStatusActive {
			return cloneCart(c), nil
		}
	}
	return Cart{}, notFoundErr()
}

func (r memCarts) Save(_ context.Context, cart Cart) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.saveErr != nil {
		return r.m.saveErr
	}
	r.m.carts[cart.ID] = cloneCart(cart)
	return nil
}

func (r memCarts) Delete(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	delete(r.m.carts, id)
	return nil
}

func (r memCarts) UpdateStatus(_ context.Context, id string, status CartStatus, updatedAt time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.carts[id]
	if !ok {
		return notFoundErr()
	}
	c.Status = status
	c.UpdatedAt = updatedAt
	r.m.carts[id] = c
	return nil
}

func (r memCarts) DeleteGuestBefore(_ context.Context, cutoff time.Time, limit int) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	deleted := 0
	for id, c := range r.m.carts {
		if deleted == limit {
			break
		}
		if c.Owner.IsGuest() && c.CreatedAt.Before(cutoff) {
			delete(r.m.carts, id)
			deleted++
		}
	}
	return deleted, nil
}

type memWishlists struct{ m *memStore }

func (r memWishlists) FindActive(_ context.Context, owner Owner) (Wishlist, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, w := range r.m.wishlists {
		if w.Owner.Key() == owner.Key() {
			w.Items = append([]WishlistItem(nil), w.Items...)
			return w, nil
		}
	}
	return Wishlist{}, notFoundErr()
}

func (r memWishlists) Save(_ context.Context, w Wishlist) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	w.Items = append([]WishlistItem(nil), w.Items...)
	r.m.wishlists[w.ID] = w
	return nil
}

func (r memWishlists) Delete(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	delete(r.m.wishlists, id)
	return nil
}

func (r memWishlists) DeleteGuestBefore(_ context.Context, cutoff time.Time, limit int) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	deleted := 0
	for id, w := range r.m.wishlists {
		if deleted == limit {
			break
		}
		if w.Owner.IsGuest() && w.CreatedAt.Before(cutoff) {
			delete(r.m.wishlists, id)
			deleted++
		}
	}
	return deleted, nil
}

type memOrders struct{ m *memStore }

func (r memOrders) Insert(_ context.Context, order Order) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.orders[order.ID] = order
	return nil
}

func (r memOrders) UpdateStatus(_ context.Context, id string, status OrderStatus, updatedAt time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	o, ok := r.m.orders[id]
	if !ok {
		return notFoundErr()
	}
	o.Status = status
	o.UpdatedAt = updatedAt
	r.m.orders[id] = o
	return nil
}

func (r memOrders) FindByID(_ context.Context, id string) (Order, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if o, ok := r.m.orders[id]; ok {
		return o, nil
	}
	return Order{}, notFoundErr()
}

func (r memOrders) List(_ context.Context, filter repositories.OrderListFilter) ([]Order, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []Order
	for _, o := range r.m.orders {
		if filter.CustomerID != "" && o.CustomerID != filter.CustomerID {
			continue
		}
		if filter.Status != nil && o.Status != *filter.Status {
			continue
		}
		if filter.ProductID != nil && !o.ContainsProduct(*filter.ProductID) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

type memPayments struct{ m *memStore }

func (r memPayments) Insert(_ context.Context, p Payment) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.payments[p.ID] = p
	return nil
}

func (r memPayments) Update(_ context.Context, p Payment) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.payments[p.ID]; !ok {
		return notFoundErr()
	}
	r.m.payments[p.ID] = p
	return nil
}

func (r memPayments) FindByID(_ context.Context, id string) (Payment, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if p, ok := r.m.payments[id]; ok {
		return p, nil
	}
	return Payment{}, notFoundErr()
}

type memAddresses struct{ m *memStore }

func (r memAddresses) Save(_ context.Context, a Address) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.addresses[a.ID] = a
	return nil
}

func (r memAddresses) FindByID(_ context.Context, id string) (Address, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if a, ok := r.m.addresses[id]; ok {
		return a, nil
	}
	return Address{}, notFoundErr()
}

func (r memAddresses) ListByCustomer(_ context.Context, customerID string) ([]Address, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []Address
	for _, a := range r.m.addresses {
		if a.CustomerID == customerID && !a.Deleted {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memAddresses) FindDefault(_ context.Context, customerID string, t AddressType) (Address, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, a := range r.m.addresses {
		if a.CustomerID == customerID && a.Type == t && a.Default && !a.Deleted {
			return a, nil
		}
	}
	return Address{}, notFoundErr()
}

func (r memAddresses) ClearDefault(_ context.Context, customerID string, t AddressType, exceptID string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for id, a := range r.m.addresses {
		if a.CustomerID == customerID && a.Type == t && a.ID != exceptID && a.Default {
			a.Default = false
			r.m.addresses[id] = a
		}
	}
	return nil
}

func (m *memStore) defaults(customerID string, t AddressType) int {
	n := 0
	for _, a := range m.addresses {
		if a.CustomerID == customerID && a.Type == t && a.Default && !a.Deleted {
			n++
		}
	}
	return n
}

type memReviews struct{ m *memStore }

func (r memReviews) Insert(_ context.Context, review Review) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, existing := range r.m.reviews {
		if existing.ProductID == review.ProductID && existing.CustomerID == review.CustomerID {
			return fakeRepoError{conflict: true}
		}
	}
	r.m.reviews[review.ID] = review
	return nil
}

func (r memReviews) ListByProduct(_ context.Context, productID int64) ([]Review, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []Review
	for _, review := range r.m.reviews {
		if review.ProductID == productID {
			out = append(out, review)
		}
	}
	return out, nil
}

type memCatalog struct{ m *memStore }

func (r memCatalog) AvailableStock(_ context.Context, productID int64) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.m.stock[productID], nil
}

func (r memCatalog) ProductInfos(_ context.Context, ids []int64) (map[int64]ProductInfo, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := make(map[int64]ProductInfo, len(ids))
	for _, id := range ids {
		if info, ok := r.m.products[id]; ok {
			out[id] = info
		}
	}
	return out, nil
}

func (r memCatalog) ProductExists(_ context.Context, productID int64) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	_, ok := r.m.products[productID]
	return ok, nil
}

func newTestInventory(m *memStore) InventoryService {
	svc, err := NewInventoryService(InventoryServiceDeps{Catalog: memCatalog{m}})
	if err != nil {
		panic(err)
	}
	return svc
}

// recordingLogger collects service events for assertions.
type recordingLogger struct {
	mu     sync.Mutex
	events []string
}

func (l *recordingLogger) log(_ context.Context, event string, _ map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *recordingLogger) has(event string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e == event {
			return true
		}
	}
	return false
}
