package services

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	domain "github.com/Bashir-Janbalat/store-app-be/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Owner           = domain.Owner
	Cart            = domain.Cart
	CartItem        = domain.CartItem
	CartStatus      = domain.CartStatus
	Wishlist        = domain.Wishlist
	WishlistItem    = domain.WishlistItem
	Order           = domain.Order
	OrderItem       = domain.OrderItem
	OrderStatus     = domain.OrderStatus
	Payment         = domain.Payment
	PaymentStatus   = domain.PaymentStatus
	Address         = domain.Address
	AddressType     = domain.AddressType
	Customer        = domain.Customer
	Review          = domain.Review
	ProductInfo     = domain.ProductInfo
	CheckoutSession = domain.CheckoutSession
)

// Logger receives structured service events. cmd/api bridges it to zap.
type Logger func(ctx context.Context, event string, fields map[string]any)

func noopLogger(context.Context, string, map[string]any) {}

func defaultIDGenerator() string {
	return ulid.Make().String()
}

func utcClock(clock func() time.Time) func() time.Time {
	if clock == nil {
		clock = time.Now
	}
	return func() time.Time { return clock().UTC() }
}

// Caller identifies who performs a cart or wishlist call. Either field may be empty but not both.
type Caller struct {
	CustomerEmail string
	SessionID     string
}

func (c Caller) normalized() Caller {
	return Caller{
		CustomerEmail: strings.TrimSpace(c.CustomerEmail),
		SessionID:     strings.TrimSpace(c.SessionID),
	}
}

// Anonymous reports whether neither an email nor a session is present.
func (c Caller) Anonymous() bool {
	n := c.normalized()
	return n.CustomerEmail == "" && n.SessionID == ""
}

// CartLine is a cart item joined with catalog display data.
type CartLine struct {
	ProductID   int64
	Name        string
	Description string
	ImageURL    string
	Quantity    int
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
}

// CartView is the read model returned to clients.
type CartView struct {
	CartID    string
	Status    CartStatus
	Items     []CartLine
	ItemCount int
	Total     decimal.Decimal
}

// WishlistLine is a wishlist entry joined with catalog display data.
type WishlistLine struct {
	ProductID   int64
	Name        string
	Description string
	ImageURL    string
	Price       decimal.Decimal
	AddedAt     time.Time
}

// WishlistView is the read model returned to clients.
type WishlistView struct {
	WishlistID string
	Items      []WishlistLine
}

// OrderCreated is returned by CreateOrder.
type OrderCreated struct {
	OrderID     string
	TotalAmount decimal.Decimal
}

// OrderLine is an order item joined with catalog display data.
type OrderLine struct {
	ProductID  int64
	Name       string
	ImageURL   string
	Quantity   int
	UnitPrice  decimal.Decimal
	TotalPrice decimal.Decimal
}

// OrderView is an order enriched for listing.
type OrderView struct {
	ID          string
	Status      OrderStatus
	Currency    string
	TotalAmount decimal.Decimal
	Lines       []OrderLine
	CreatedAt   time.Time
}

// AddressInput carries create and update values. A nil Default leaves the flag unchanged on
// update and means false on create.
type AddressInput struct {
	Type       AddressType
	Line       string
	City       string
	State      string
	PostalCode string
	Country    string
	Default    *bool
}

// CheckoutCommand requests a hosted checkout session for a pending order.
type CheckoutCommand struct {
	OrderID        string
	CustomerID     string
	CustomerEmail  string
	Currency       string
	IdempotencyKey string
}

// CleanupResult summarises a retention sweep.
type CleanupResult struct {
	Cutoff    time.Time
	Carts     int
	Wishlists int
}

// LoginResult is returned after successful authentication.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Customer  Customer
}

// InventoryService answers stock and product display queries from the catalog.
type InventoryService interface {
	AvailableStock(ctx context.Context, productID int64) (int, error)
	ProductInfos(ctx context.Context, productIDs []int64) (map[int64]ProductInfo, error)
	ProductExists(ctx context.Context, productID int64) (bool, error)
}

// CartService manages carts of customers and guest sessions.
type CartService interface {
	GetCart(ctx context.Context, caller Caller) (CartView, error)
	AddToCart(ctx context.Context, caller Caller, productID int64, unitPrice decimal.Decimal, quantity int) error
	UpdateCartItemQuantity(ctx context.Context, caller Caller, productID int64, quantity int) error
	RemoveFromCart(ctx context.Context, caller Caller, productID int64) error
	ClearCart(ctx context.Context, caller Caller) error
	MergeCartOnLogin(ctx context.Context, customerEmail string, sessionID string) error
	UpdateCartStatus(ctx context.Context, cartID string, status CartStatus) error
	DeleteAnonymousCartsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// WishlistService manages wishlists of customers and guest sessions.
type WishlistService interface {
	GetWishlist(ctx context.Context, caller Caller) (WishlistView, error)
	AddToWishlist(ctx context.Context, caller Caller, productID int64) error
	RemoveFromWishlist(ctx context.Context, caller Caller, productID int64) error
	ClearWishlist(ctx context.Context, caller Caller) error
	MergeWishlistOnLogin(ctx context.Context, customerEmail string, sessionID string) error
	DeleteAnonymousWishlistsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// OrderService snapshots carts into orders and drives the order lifecycle.
type OrderService interface {
	CreateOrder(ctx context.Context, customerID string, billingAddressID *string) (OrderCreated, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status OrderStatus, requestingCustomerID string) (Order, error)
	CancelOrder(ctx context.Context, orderID string, customerID string) (Order, error)
	GetOrder(ctx context.Context, orderID string, customerID string) (Order, error)
	ListOrders(ctx context.Context, customerID string, status OrderStatus) ([]OrderView, error)
	SendOrderConfirmation(ctx context.Context, orderID string, currency string) error
	HasPurchased(ctx context.Context, customerID string, productID int64, status OrderStatus) (bool, error)
}

// PaymentService records payment attempts.
type PaymentService interface {
	CreatePendingPayment(ctx context.Context, order Order, amount decimal.Decimal, method string) (Payment, error)
	UpdatePaymentStatus(ctx context.Context, paymentID string, status PaymentStatus, transactionID *string, responseMessage *string) (Payment, error)
	GetPayment(ctx context.Context, paymentID string) (Payment, error)
}

// CheckoutService opens hosted payment sessions for pending orders.
type CheckoutService interface {
	CreateCheckoutSession(ctx context.Context, cmd CheckoutCommand) (CheckoutSession, error)
}

// WebhookService verifies and dispatches payment provider events.
type WebhookService interface {
	HandleStripeEvent(ctx context.Context, payload []byte, signature string) error
}

// AddressService manages the customer address book.
type AddressService interface {
	ListAddresses(ctx context.Context, customerID string) ([]Address, error)
	CreateAddress(ctx context.Context, customerID string, input AddressInput) (Address, error)
	UpdateAddress(ctx context.Context, customerID string, addressID string, input AddressInput) (Address, error)
	DeleteAddress(ctx context.Context, customerID string, addressID string) error
	VerifyOwnership(ctx context.Context, customerID string, addressID string) (Address, error)
	DefaultAddress(ctx context.Context, customerID string, addressType AddressType) (Address, error)
}

// ReviewService manages product reviews.
type ReviewService interface {
	AddReview(ctx context.Context, customerID string, productID int64, rating float64, body string) (Review, error)
	ListReviews(ctx context.Context, productID int64) ([]Review, error)
}

// AuthService registers and authenticates customers and runs the password reset flow.
type AuthService interface {
	Signup(ctx context.Context, email string, name string, password string) (Customer, error)
	Login(ctx context.Context, email string, password string, sessionID string) (LoginResult, error)
	Me(ctx context.Context, customerID string) (Customer, error)
	Logout(ctx context.Context, token string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token string, newPassword string) error
}

// CleanupService purges expired guest data.
type CleanupService interface {
	SweepAnonymous(ctx context.Context) (CleanupResult, error)
}
