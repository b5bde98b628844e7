package repositories

import (
	"context"
	"time"

	domain "github.com/Bashir-Janbalat/store-app-be/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Customers() CustomerRepository
	PasswordResets() PasswordResetRepository
	Carts() CartRepository
	Wishlists() WishlistRepository
	Orders() OrderRepository
	Payments() PaymentRepository
	Addresses() AddressRepository
	Reviews() ReviewRepository
	Catalog() CatalogRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CustomerRepository persists store accounts. Emails are unique and compared lower-cased.
type CustomerRepository interface {
	Insert(ctx context.Context, customer domain.Customer) error
	FindByID(ctx context.Context, customerID string) (domain.Customer, error)
	FindByEmail(ctx context.Context, email string) (domain.Customer, error)
	UpdatePassword(ctx context.Context, customerID string, passwordHash string, updatedAt time.Time) error
}

// PasswordResetRepository stores issued password reset tokens by digest.
type PasswordResetRepository interface {
	Insert(ctx context.Context, token domain.PasswordResetToken) error
	FindByID(ctx context.Context, tokenID string) (domain.PasswordResetToken, error)
	MarkUsed(ctx context.Context, tokenID string, usedAt time.Time) error
}

// CartRepository persists carts together with their line items.
type CartRepository interface {
	FindByID(ctx context.Context, cartID string) (domain.Cart, error)
	// FindActive returns the ACTIVE cart of the owner or a not-found error.
	FindActive(ctx context.Context, owner domain.Owner) (domain.Cart, error)
	Save(ctx context.Context, cart domain.Cart) error
	Delete(ctx context.Context, cartID string) error
	UpdateStatus(ctx context.Context, cartID string, status domain.CartStatus, updatedAt time.Time) error
	// DeleteGuestBefore removes up to limit guest carts created before cutoff.
	DeleteGuestBefore(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// WishlistRepository persists wishlists together with their product references.
type WishlistRepository interface {
	FindActive(ctx context.Context, owner domain.Owner) (domain.Wishlist, error)
	Save(ctx context.Context, wishlist domain.Wishlist) error
	Delete(ctx context.Context, wishlistID string) error
	DeleteGuestBefore(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	CustomerID string
	Status     *domain.OrderStatus
	ProductID  *int64
	Limit      int
}

// OrderRepository persists order snapshots.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, updatedAt time.Time) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) ([]domain.Order, error)
}

// PaymentRepository stores payment attempts.
type PaymentRepository interface {
	Insert(ctx context.Context, payment domain.Payment) error
	Update(ctx context.Context, payment domain.Payment) error
	FindByID(ctx context.Context, paymentID string) (domain.Payment, error)
}

// AddressRepository persists customer addresses. Deleted addresses are kept with Deleted set.
type AddressRepository interface {
	Save(ctx context.Context, address domain.Address) error
	FindByID(ctx context.Context, addressID string) (domain.Address, error)
	// ListByCustomer returns the non-deleted addresses of the customer.
	ListByCustomer(ctx context.Context, customerID string) ([]domain.Address, error)
	FindDefault(ctx context.Context, customerID string, addressType domain.AddressType) (domain.Address, error)
	// ClearDefault unsets the default flag on every address of the type except exceptID.
	ClearDefault(ctx context.Context, customerID string, addressType domain.AddressType, exceptID string) error
}

// ReviewRepository stores product reviews. Insert reports a conflict for a second review of
// the same product by the same customer.
type ReviewRepository interface {
	Insert(ctx context.Context, review domain.Review) error
	ListByProduct(ctx context.Context, productID int64) ([]domain.Review, error)
}

// CatalogRepository reads product and stock data from the relational catalog.
type CatalogRepository interface {
	// AvailableStock sums the stock rows of the product, zero when none exist.
	AvailableStock(ctx context.Context, productID int64) (int, error)
	ProductInfos(ctx context.Context, productIDs []int64) (map[int64]domain.ProductInfo, error)
	ProductExists(ctx context.Context, productID int64) (bool, error)
}

// HealthRepository collects dependency health for readiness probes.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.HealthReport, error)
}
