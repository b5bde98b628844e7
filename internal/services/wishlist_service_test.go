package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/Bashir-Janbalat/store-app-be/internal/domain"
	"github.com/Bashir-Janbalat/store-app-be/internal/platform/cache"
)

func newWishlistFixture(t *testing.T) (*memStore, WishlistService, *cache.Cache[WishlistView]) {
	t.Helper()
	store := newMemStore()
	views := cache.New[WishlistView]("wishlists", 16, time.Minute)
	svc, err := NewWishlistService(WishlistServiceDeps{
		Wishlists:   memWishlists{store},
		Customers:   memCustomers{store},
		Inventory:   newTestInventory(store),
		UnitOfWork:  store,
		Cache:       views,
		Clock:       fixedClock,
		IDGenerator: sequentialIDs("wl"),
	})
	if err != nil {
		t.Fatalf("NewWishlistService: %v", err)
	}
	return store, svc, views
}

func seedWishlist(store *memStore, id string, owner Owner, products ...int64) {
	w := Wishlist{ID: id, Owner: owner, Status: domain.WishlistStatusActive, CreatedAt: testNow.Add(-time.Hour)}
	for _, p := range products {
		w.Items = append(w.Items, WishlistItem{ProductID: p, AddedAt: testNow})
	}
	store.wishlists[id] = w
}

func wishlistProducts(w Wishlist) map[int64]int {
	out := map[int64]int{}
	for _, item := range w.Items {
		out[item.ProductID]++
	}
	return out
}

func TestAddToWishlistIsIdempotent(t *testing.T) {
	store, svc, _ := newWishlistFixture(t)
	store.addProduct(1, "10.00", 0)
	ctx := context.Background()
	caller := Caller{SessionID: "s1"}

	for i := 0; i < 2; i++ {
		if err := svc.AddToWishlist(ctx, caller, 1); err != nil {
			t.Fatalf("AddToWishlist: %v", err)
		}
	}
	w, err := memWishlists{store}.FindActive(ctx, domain.GuestOwner("s1"))
	if err != nil {
		t.Fatalf("expected wishlist: %v", err)
	}
	if got := wishlistProducts(w); got[1] != 1 || len(got) != 1 {
		t.Fatalf("expected a single entry, got %v", got)
	}
	if err := svc.AddToWishlist(ctx, caller, 99); !errors.Is(err, ErrWishlistProductNotFound) {
		t.Fatalf("expected product not found, got %v", err)
	}
}

func TestRemoveAndClearWishlist(t *testing.T) {
	store, svc, _ := newWishlistFixture(t)
	seedWishlist(store, "w1", domain.GuestOwner("s1"), 1, 2)
	ctx := context.Background()
	caller := Caller{SessionID: "s1"}

	if err := svc.RemoveFromWishlist(ctx, caller, 3); !errors.Is(err, ErrWishlistItemNotFound) {
		t.Fatalf("expected item not found, got %v", err)
	}
	if err := svc.RemoveFromWishlist(ctx, Caller{SessionID: "other"}, 1); !errors.Is(err, ErrWishlistNotFound) {
		t.Fatalf("expected wishlist not found, got %v", err)
	}
	if err := svc.RemoveFromWishlist(ctx, caller, 1); err != nil {
		t.Fatalf("RemoveFromWishlist: %v", err)
	}
	if err := svc.ClearWishlist(ctx, caller); err != nil {
		t.Fatalf("ClearWishlist: %v", err)
	}
	if len(store.wishlists["w1"].Items) != 0 {
		t.Fatalf("expected empty wishlist")
	}
	if err := svc.ClearWishlist(ctx, Caller{SessionID: "other"}); err != nil {
		t.Fatalf("ClearWishlist without wishlist should be a no-op: %v", err)
	}
}

func TestGetWishlistJoinsProductInfo(t *testing.T) {
	store, svc, views := newWishlistFixture(t)
	store.addProduct(1, "10.00", 0)
	seedWishlist(store, "w1", domain.GuestOwner("s1"), 1)

	view, err := svc.GetWishlist(context.Background(), Caller{SessionID: "s1"})
	if err != nil {
		t.Fatalf("GetWishlist: %v", err)
	}
	if len(view.Items) != 1 || view.Items[0].Name != "Product" || view.WishlistID != "w1" {
		t.Fatalf("unexpected view %+v", view)
	}
	if _, ok := views.Get("guest:s1"); !ok {
		t.Fatalf("expected cached view")
	}
}

func TestMergeWishlistOnLoginUnionsProducts(t *testing.T) {
	store, svc, _ := newWishlistFixture(t)
	store.addCustomer("cust-1", "ana@example.com")
	seedWishlist(store, "mine", domain.CustomerOwner("cust-1"), 1, 2)
	seedWishlist(store, "guest", domain.GuestOwner("s1"), 2, 3)

	if err := svc.MergeWishlistOnLogin(context.Background(), "ana@example.com", "s1"); err != nil {
		t.Fatalf("MergeWishlistOnLogin: %v", err)
	}
	got := wishlistProducts(store.wishlists["mine"])
	if len(got) != 3 {
		t.Fatalf("expected union of 3 products, got %v", got)
	}
	for product, count := range got {
		if count != 1 {
			t.Fatalf("product %d appears %d times", product, count)
		}
	}
	if _, ok := store.wishlists["guest"]; ok {
		t.Fatalf("guest wishlist should be deleted")
	}
}

func TestMergeWishlistOnLoginReassignsAndNoops(t *testing.T) {
	store, svc, _ := newWishlistFixture(t)
	store.addCustomer("cust-1", "ana@example.com")
	seedWishlist(store, "guest", domain.GuestOwner("s1"), 4)
	ctx := context.Background()

	if err := svc.MergeWishlistOnLogin(ctx, "ana@example.com", ""); err != nil {
		t.Fatalf("blank session: %v", err)
	}
	if err := svc.MergeWishlistOnLogin(ctx, "nobody@example.com", "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := svc.MergeWishlistOnLogin(ctx, "ana@example.com", "s1"); err != nil {
		t.Fatalf("MergeWishlistOnLogin: %v", err)
	}
	w := store.wishlists["guest"]
	if id, ok := w.Owner.CustomerID(); !ok || id != "cust-1" {
		t.Fatalf("expected wishlist reassigned to customer, got %v", w.Owner)
	}
}

func TestDeleteAnonymousWishlistsBefore(t *testing.T) {
	store, svc, _ := newWishlistFixture(t)
	seedWishlist(store, "old", domain.GuestOwner("s1"))
	seedWishlist(store, "kept", domain.CustomerOwner("cust-1"))

	deleted, err := svc.DeleteAnonymousWishlistsBefore(context.Background(), testNow)
	if err != nil || deleted != 1 {
		t.Fatalf("expected 1 deletion, got %d, %v", deleted, err)
	}
}
