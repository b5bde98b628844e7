package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/Bashir-Janbalat/store-app-be/internal/domain"
	"github.com/Bashir-Janbalat/store-app-be/internal/platform/cache"
)

type cartFixture struct {
	store  *memStore
	svc    CartService
	logger *recordingLogger
	cache  *cache.Cache[CartView]
}

func newCartFixture(t *testing.T, trustClientPrice bool) cartFixture {
	t.Helper()
	store := newMemStore()
	logger := &recordingLogger{}
	views := cache.New[CartView]("carts", 16, time.Minute)
	svc, err := NewCartService(CartServiceDeps{
		Carts:            memCarts{store},
		Customers:        memCustomers{store},
		Inventory:        newTestInventory(store),
		UnitOfWork:       store,
		Cache:            views,
		TrustClientPrice: trustClientPrice,
		Clock:            fixedClock,
		IDGenerator:      sequentialIDs("cart"),
		Logger:           logger.log,
	})
	if err != nil {
		t.Fatalf("NewCartService: %v", err)
	}
	return cartFixture{store: store, svc: svc, logger: logger, cache: views}
}

func (f cartFixture) seedCart(id string, owner Owner, items ...CartItem) {
	f.store.carts[id] = Cart{
		ID:        id,
		Owner:     owner,
		Status:    domain.CartStatusActive,
		Items:     items,
		CreatedAt: testNow.Add(-time.Hour),
	}
}

func line(productID int64, qty int, price string) CartItem {
	return CartItem{ProductID: productID, Quantity: qty, UnitPrice: decimal.RequireFromString(price), AddedAt: testNow}
}

func TestNewCartServiceValidatesDeps(t *testing.T) {
	if _, err := NewCartService(CartServiceDeps{}); err == nil {
		t.Fatalf("expected error for missing dependencies")
	}
}

func TestAddToCartRejectsNonPositiveQuantityWithoutWrite(t *testing.T) {
	f := newCartFixture(t, false)
	f.store.addProduct(1, "10.00", 5)

	for _, qty := range []int{0, -3} {
		err := f.svc.AddToCart(context.Background(), Caller{SessionID: "s1"}, 1, decimal.Zero, qty)
		if !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("qty %d: expected invalid argument, got %v", qty, err)
		}
	}
	if len(f.store.carts) != 0 || f.store.txCalls != 0 {
		t.Fatalf("expected no writes, carts=%d tx=%d", len(f.store.carts), f.store.txCalls)
	}
}

func TestAddToCartRequiresCallerIdentity(t *testing.T) {
	f := newCartFixture(t, false)
	f.store.addProduct(1, "10.00", 5)

	err := f.svc.AddToCart(context.Background(), Caller{CustomerEmail: "  "}, 1, decimal.Zero, 1)
	if !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected ErrCartInvalidInput, got %v", err)
	}
}

func TestAddToCartCreatesGuestCartWithCatalogPrice(t *testing.T) {
	f := newCartFixture(t, false)
	f.store.addProduct(1, "10.00", 5)
	ctx := context.Background()
	caller := Caller{SessionID: "s1"}

	if err := f.svc.AddToCart(ctx, caller, 1, decimal.RequireFromString("0.01"), 2); err != nil {
		t.Fatalf("AddToCart: %v", err)
	}
	if err := f.svc.AddToCart(ctx, caller, 1, decimal.RequireFromString("0.01"), 1); err != nil {
		t.Fatalf("AddToCart second: %v", err)
	}

	cart, err := memCarts{f.store}.FindActive(ctx, domain.GuestOwner("s1"))
	if err != nil {
		t.Fatalf("expected guest cart: %v", err)
	}
	if cart.SessionID != "s1" {
		t.Fatalf("expected session id on guest cart, got %q", cart.SessionID)
	}
	if len(cart.Items) != 1 || cart.Items[0].Quantity != 3 {
		t.Fatalf("expected one line with qty 3, got %+v", cart.Items)
	}
	if !cart.Items[0].UnitPrice.Equal(decimal.RequireFromString("10.00")) {
		t.Fatalf("expected catalog price, got %s", cart.Items[0].UnitPrice)
	}
}

func TestAddToCartTrustsClientPriceWhenConfigured(t *testing.T) {
	f := newCartFixture(t, true)
	f.store.addProduct(1, "10.00", 5)

	if err := f.svc.AddToCart(context.Background(), Caller{SessionID: "s1"}, 1, decimal.RequireFromString("7.50"), 1); err != nil {
		t.Fatalf("AddToCart: %v", err)
	}
	cart, _ := memCarts{f.store}.FindActive(context.Background(), domain.GuestOwner("s1"))
	if !cart.Items[0].UnitPrice.Equal(decimal.RequireFromString("7.50")) {
		t.Fatalf("expected client price, got %s", cart.Items[0].UnitPrice)
	}
}

func TestAddToCartRejectsFreeLinesWhenTrustingClientPrice(t *testing.T) {
	f := newCartFixture(t, true)
	f.store.addProduct(1, "10.00", 5)

	for _, price := range []string{"0", "-1.00"} {
		err := f.svc.AddToCart(context.Background(), Caller{SessionID: "s1"}, 1, decimal.RequireFromString(price), 2)
		if !errors.Is(err, ErrCartInvalidInput) || !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("price %s: expected invalid input, got %v", price, err)
		}
	}
	if len(f.store.carts) != 0 {
		t.Fatalf("expected no cart to be created")
	}
}

func TestAddToCartUnknownProductWithCatalogPricing(t *testing.T) {
	f := newCartFixture(t, false)
	f.store.stock[9] = 3

	err := f.svc.AddToCart(context.Background(), Caller{SessionID: "s1"}, 9, decimal.Zero, 1)
	if !errors.Is(err, ErrCartProductNotFound) {
		t.Fatalf("expected product not found, got %v", err)
	}
	if len(f.store.carts) != 0 {
		t.Fatalf("expected no cart to be created")
	}
}

func TestAddToCartEnforcesStockCeiling(t *testing.T) {
	f := newCartFixture(t, false)
	f.store.addProduct(1, "10.00", 3)
	f.seedCart("c1", domain.GuestOwner("s1"), line(1, 2, "10.00"))

	err := f.svc.AddToCart(context.Background(), Caller{SessionID: "s1"}, 1, decimal.Zero, 2)
	if !errors.Is(err, ErrCartOutOfStock) || !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected out of stock, got %v", err)
	}
	if got := f.store.carts["c1"].Items[0].Quantity; got != 2 {
		t.Fatalf("expected quantity unchanged, got %d", got)
	}
}

func TestCustomerCartTakesPrecedenceOverSession(t *testing.T) {
	f := newCartFixture(t, false)
	f.store.addProduct(1, "10.00", 10)
	f.store.addCustomer("cust-1", "ana@example.com")
	f.seedCart("guest", domain.GuestOwner("s1"))
	f.seedCart("mine", domain.CustomerOwner("cust-1"))

	caller := Caller{CustomerEmail: "ana@example.com", SessionID: "s1"}
	if err := f.svc.AddToCart(context.Background(), caller, 1, decimal.Zero, 1); err != nil {
		t.Fatalf("AddToCart: %v", err)
	}
	if len(f.store.carts["mine"].Items) != 1 || len(f.store.carts["guest"].Items) != 0 {
		t.Fatalf("expected customer cart to be used")
	}
}

func TestUpdateCartItemQuantity(t *testing.T) {
	f := newCartFixture(t, false)
	f.store.addProduct(1, "10.00", 4)
	f.store.addProduct(2, "5.00", 4)
	f.seedCart("c1", domain.GuestOwner("s1"), line(1, 1, "10.00"), line(2, 1, "5.00"))
	ctx := context.Background()
	caller := Caller{SessionID: "s1"}

	if err := f.svc.UpdateCartItemQuantity(ctx, caller, 1, 4); err != nil {
		t.Fatalf("UpdateCartItemQuantity: %v", err)
	}
	if got := f.store.carts["c1"].Items[0].Quantity; got != 4 {
		t.Fatalf("expected qty 4, got %d", got)
	}
	if err := f.svc.UpdateCartItemQuantity(ctx, caller, 1, 5); !errors.Is(err, ErrCartOutOfStock) {
		t.Fatalf("expected out of stock, got %v", err)
	}
	if err := f.svc.UpdateCartItemQuantity(ctx, caller, 2, 0); err != nil {
		t.Fatalf("zero quantity should remove: %v", err)
	}
	if _, idx := f.store.carts["c1"].Item(2); idx >= 0 {
		t.Fatalf("expected product 2 removed")
	}
	if err := f.svc.UpdateCartItemQuantity(ctx, caller, 3, 1); !errors.Is(err, ErrCartItemNotFound) {
		t.Fatalf("expected item not found, got %v", err)
	}
	if err := f.svc.UpdateCartItemQuantity(ctx, Caller{SessionID: "nobody"}, 1, 1); !errors.Is(err, ErrCartNotFound) {
		t.Fatalf("expected cart not found, got %v", err)
	}
}

func TestRemoveAndClearCart(t *testing.T) {
	f := newCartFixture(t, false)
	f.seedCart("c1", domain.GuestOwner("s1"), line(1, 1, "10.00"), line(2, 1, "5.00"))
	ctx := context.Background()

	if err := f.svc.RemoveFromCart(ctx, Caller{SessionID: "s1"}, 7); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := f.svc.RemoveFromCart(ctx, Caller{SessionID: "s1"}, 1); err != nil {
		t.Fatalf("RemoveFromCart: %v", err)
	}
	if len(f.store.carts["c1"].Items) != 1 {
		t.Fatalf("expected one remaining line")
	}
	if err := f.svc.ClearCart(ctx, Caller{SessionID: "s1"}); err != nil {
		t.Fatalf("ClearCart: %v", err)
	}
	if len(f.store.carts["c1"].Items) != 0 {
		t.Fatalf("expected empty cart")
	}
	if err := f.svc.ClearCart(ctx, Caller{SessionID: "missing"}); err != nil {
		t.Fatalf("ClearCart without cart should be a no-op, got %v", err)
	}
}

func TestGetCartCachesAndInvalidatesOnWrite(t *testing.T) {
	f := newCartFixture(t, false)
	f.store.addProduct(1, "10.00", 10)
	f.seedCart("c1", domain.GuestOwner("s1"), line(1, 2, "10.00"))
	ctx := context.Background()
	caller := Caller{SessionID: "s1"}

	view, err := f.svc.GetCart(ctx, caller)
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if view.ItemCount != 2 || !view.Total.Equal(decimal.RequireFromString("20")) {
		t.Fatalf("unexpected view %+v", view)
	}
	if _, ok := f.cache.Get("guest:s1"); !ok {
		t.Fatalf("expected cached view")
	}

	if err := f.svc.AddToCart(ctx, caller, 1, decimal.Zero, 1); err != nil {
		t.Fatalf("AddToCart: %v", err)
	}
	if _, ok := f.cache.Get("guest:s1"); ok {
		t.Fatalf("expected cache invalidated after write")
	}
	view, _ = f.svc.GetCart(ctx, caller)
	if view.ItemCount != 3 {
		t.Fatalf("expected fresh view, got %+v", view)
	}
}

func TestGetCartWithoutCartReturnsEmptyView(t *testing.T) {
	f := newCartFixture(t, false)
	view, err := f.svc.GetCart(context.Background(), Caller{SessionID: "s1"})
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if view.CartID != "" || len(view.Items) != 0 || !view.Total.IsZero() {
		t.Fatalf("expected empty view, got %+v", view)
	}
	if f.cache.Len() != 0 {
		t.Fatalf("empty views must not be cached")
	}
}

func TestMergeCartOnLoginNoops(t *testing.T) {
	f := newCartFixture(t, false)
	f.store.addCustomer("cust-1", "ana@example.com")
	f.seedCart("mine", domain.CustomerOwner("cust-1"), line(1, 1, "10.00"))
	ctx := context.Background()

	if err := f.svc.MergeCartOnLogin(ctx, "ana@example.com", "  "); err != nil {
		t.Fatalf("blank session should be a no-op, got %v", err)
	}
	if err := f.svc.MergeCartOnLogin(ctx, "ana@example.com", "no-guest-cart"); err != nil {
		t.Fatalf("missing guest cart should be a no-op, got %v", err)
	}
	mine := f.store.carts["mine"]
	if len(mine.Items) != 1 || mine.Items[0].Quantity != 1 || mine.SessionID != "" {
		t.Fatalf("customer cart should be unchanged, got %+v", mine)
	}
	if err := f.svc.MergeCartOnLogin(ctx, "ghost@example.com", "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for unknown customer, got %v", err)
	}
}

func TestMergeCartOnLoginReassignsGuestCart(t *testing.T) {
	f := newCartFixture(t, false)
	f.store.addCustomer("cust-1", "ana@example.com")
	f.seedCart("guest", domain.GuestOwner("s1"), line(5, 3, "4.00"))

	if err := f.svc.MergeCartOnLogin(context.Background(), "ana@example.com", "s1"); err != nil {
		t.Fatalf("MergeCartOnLogin: %v", err)
	}
	cart, err := memCarts{f.store}.FindActive(context.Background(), domain.CustomerOwner("cust-1"))
	if err != nil {
		t.Fatalf("expected customer cart: %v", err)
	}
	if len(cart.Items) != 1 || cart.Items[0].ProductID != 5 || cart.Items[0].Quantity != 3 {
		t.Fatalf("unexpected items %+v", cart.Items)
	}
	if cart.SessionID != "s1" {
		t.Fatalf("expected merged session to be retained, got %q", cart.SessionID)
	}
	if _, err := (memCarts{f.store}).FindActive(context.Background(), domain.GuestOwner("s1")); err == nil {
		t.Fatalf("guest cart should no longer exist")
	}
}

func TestMergeCartOnLoginCombinesLinesWithinStock(t *testing.T) {
	f := newCartFixture(t, false)
	f.store.addCustomer("cust-1", "ana@example.com")
	f.store.addProduct(1, "10.00", 5)
	f.store.addProduct(2, "3.00", 50)
	f.store.addProduct(3, "1.00", 50)
	f.seedCart("mine", domain.CustomerOwner("cust-1"), line(1, 4, "10.00"), line(3, 1, "1.00"))
	f.seedCart("guest", domain.GuestOwner("s1"), line(1, 3, "10.00"), line(2, 2, "3.00"), line(3, 2, "1.00"))
	f.cache.Set("customer:cust-1", CartView{CartID: "stale"})
	f.cache.Set("guest:s1", CartView{CartID: "stale"})

	if err := f.svc.MergeCartOnLogin(context.Background(), "ana@example.com", "s1"); err != nil {
		t.Fatalf("MergeCartOnLogin: %v", err)
	}

	mine := f.store.carts["mine"]
	want := map[int64]int{1: 5, 2: 2, 3: 3}
	if len(mine.Items) != len(want) {
		t.Fatalf("expected %d lines, got %+v", len(want), mine.Items)
	}
	for _, item := range mine.Items {
		if want[item.ProductID] != item.Quantity {
			t.Fatalf("product %d: expected qty %d, got %d", item.ProductID, want[item.ProductID], item.Quantity)
		}
	}
	if mine.SessionID != "s1" {
		t.Fatalf("expected merged session marker, got %q", mine.SessionID)
	}
	if _, ok := f.store.carts["guest"]; ok {
		t.Fatalf("guest cart should be deleted")
	}
	if !f.logger.has("cart.merge.capped") {
		t.Fatalf("expected capped warning, got %v", f.logger.events)
	}
	if f.cache.Len() != 0 {
		t.Fatalf("expected both owner keys invalidated")
	}
}

func TestMergeCartOnLoginDropsSharedLineWhenStockIsGone(t *testing.T) {
	f := newCartFixture(t, false)
	f.store.addCustomer("cust-1", "ana@example.com")
	f.store.addProduct(1, "10.00", 0)
	f.store.addProduct(2, "3.00", 10)
	f.seedCart("mine", domain.CustomerOwner("cust-1"), line(1, 2, "10.00"), line(2, 1, "3.00"))
	f.seedCart("guest", domain.GuestOwner("s1"), line(1, 1, "10.00"))

	if err := f.svc.MergeCartOnLogin(context.Background(), "ana@example.com", "s1"); err != nil {
		t.Fatalf("MergeCartOnLogin: %v", err)
	}

	mine := f.store.carts["mine"]
	if len(mine.Items) != 1 || mine.Items[0].ProductID != 2 || mine.Items[0].Quantity != 1 {
		t.Fatalf("min(a+b, 0) must remove the customer's own line too, got %+v", mine.Items)
	}
	if _, ok := f.store.carts["guest"]; ok {
		t.Fatalf("guest cart should be deleted")
	}
	if !f.logger.has("cart.merge.capped") {
		t.Fatalf("expected capped warning, got %v", f.logger.events)
	}
}

func TestMergeCartOnLoginIsAtomic(t *testing.T) {
	f := newCartFixture(t, false)
	f.store.addCustomer("cust-1", "ana@example.com")
	f.store.addProduct(1, "10.00", 5)
	f.seedCart("mine", domain.CustomerOwner("cust-1"), line(1, 1, "10.00"))
	f.seedCart("guest", domain.GuestOwner("s1"), line(1, 1, "10.00"))
	f.store.saveErr = fakeRepoError{unavailable: true}

	err := f.svc.MergeCartOnLogin(context.Background(), "ana@example.com", "s1")
	if !errors.Is(err, ErrCartUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if _, ok := f.store.carts["guest"]; !ok {
		t.Fatalf("guest cart deletion should be rolled back")
	}
	if f.store.rollback != 1 {
		t.Fatalf("expected one rollback, got %d", f.store.rollback)
	}
}

func TestUpdateCartStatusConvertsCart(t *testing.T) {
	f := newCartFixture(t, false)
	f.seedCart("c1", domain.CustomerOwner("cust-1"))
	ctx := context.Background()

	if err := f.svc.UpdateCartStatus(ctx, "c1", domain.CartStatusConverted); err != nil {
		t.Fatalf("UpdateCartStatus: %v", err)
	}
	if f.store.carts["c1"].Status != domain.CartStatusConverted {
		t.Fatalf("expected converted status")
	}
	if err := f.svc.UpdateCartStatus(ctx, "missing", domain.CartStatusConverted); !errors.Is(err, ErrCartNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := f.svc.UpdateCartStatus(ctx, "c1", CartStatus("LOST")); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestDeleteAnonymousCartsBefore(t *testing.T) {
	f := newCartFixture(t, false)
	f.seedCart("old-guest", domain.GuestOwner("s1"))
	f.seedCart("old-customer", domain.CustomerOwner("cust-1"))
	f.store.carts["new-guest"] = Cart{ID: "new-guest", Owner: domain.GuestOwner("s2"), Status: domain.CartStatusActive, CreatedAt: testNow}

	deleted, err := f.svc.DeleteAnonymousCartsBefore(context.Background(), testNow.Add(-time.Minute))
	if err != nil {
		t.Fatalf("DeleteAnonymousCartsBefore: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deletion, got %d", deleted)
	}
	if _, ok := f.store.carts["old-customer"]; !ok {
		t.Fatalf("customer carts must survive the sweep")
	}
	if _, ok := f.store.carts["new-guest"]; !ok {
		t.Fatalf("recent guest carts must survive the sweep")
	}
}
