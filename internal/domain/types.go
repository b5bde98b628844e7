package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartStatus enumerates cart lifecycle states.
type CartStatus string

const (
	// CartStatusActive marks the single mutable cart of an owner.
	CartStatusActive CartStatus = "ACTIVE"
	// CartStatusConverted marks a cart whose order completed payment.
	CartStatusConverted CartStatus = "CONVERTED"
)

// WishlistStatus enumerates wishlist lifecycle states.
type WishlistStatus string

const (
	// WishlistStatusActive marks the single mutable wishlist of an owner.
	WishlistStatusActive WishlistStatus = "ACTIVE"
)

// Cart aggregates the shopping cart of a customer or guest session.
type Cart struct {
	ID    string
	Owner Owner
	// SessionID keeps the guest session merged into a customer cart.
	SessionID string
	Status    CartStatus
	Items     []CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartItem stores a single product line within a cart.
type CartItem struct {
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
	AddedAt   time.Time
	UpdatedAt *time.Time
}

// Item returns the line for the product and its index, or -1 when absent.
func (c Cart) Item(productID int64) (CartItem, int) {
	for i, item := range c.Items {
		if item.ProductID == productID {
			return item, i
		}
	}
	return CartItem{}, -1
}

// Wishlist aggregates product references saved by a customer or guest session.
type Wishlist struct {
	ID        string
	Owner     Owner
	SessionID string
	Status    WishlistStatus
	Items     []WishlistItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// WishlistItem is a pure membership record.
type WishlistItem struct {
	ProductID int64
	AddedAt   time.Time
}

// Contains reports whether the wishlist already references the product.
func (w Wishlist) Contains(productID int64) bool {
	for _, item := range w.Items {
		if item.ProductID == productID {
			return true
		}
	}
	return false
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order awaits payment.
	OrderStatusPending OrderStatus = "PENDING"
	// OrderStatusProcessing indicates payment completed and the order is being prepared.
	OrderStatusProcessing OrderStatus = "PROCESSING"
	// OrderStatusShipped indicates the order left the warehouse.
	OrderStatusShipped OrderStatus = "SHIPPED"
	// OrderStatusDelivered indicates the order reached the customer.
	OrderStatusDelivered OrderStatus = "DELIVERED"
	// OrderStatusCancelled indicates the order was cancelled or its payment expired.
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// Valid reports whether the status is one of the known order states.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// Order is an immutable snapshot of a cart plus its lifecycle status.
type Order struct {
	ID                string
	CustomerID        string
	CartID            string
	ShippingAddressID string
	BillingAddressID  *string
	Status            OrderStatus
	Currency          string
	Items             []OrderItem
	TotalAmount       decimal.Decimal
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// OrderItem mirrors a cart line at the time the order was placed.
type OrderItem struct {
	ProductID  int64
	Quantity   int
	UnitPrice  decimal.Decimal
	TotalPrice decimal.Decimal
}

// ContainsProduct reports whether any line references the product.
func (o Order) ContainsProduct(productID int64) bool {
	for _, item := range o.Items {
		if item.ProductID == productID {
			return true
		}
	}
	return false
}

// PaymentStatus enumerates payment attempt states.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

// Payment tracks one payment attempt for an order.
type Payment struct {
	ID              string
	OrderID         string
	Amount          decimal.Decimal
	Method          string
	Status          PaymentStatus
	TransactionID   *string
	ResponseMessage *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AddressType distinguishes shipping and billing addresses.
type AddressType string

const (
	AddressTypeShipping AddressType = "SHIPPING"
	AddressTypeBilling  AddressType = "BILLING"
)

// Valid reports whether the address type is known.
func (t AddressType) Valid() bool {
	return t == AddressTypeShipping || t == AddressTypeBilling
}

// Address represents a customer postal address. Addresses are soft deleted.
type Address struct {
	ID         string
	CustomerID string
	Type       AddressType
	Line       string
	City       string
	State      string
	PostalCode string
	Country    string
	Default    bool
	Deleted    bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Customer is a registered store account.
type Customer struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PasswordResetToken records an issued reset link. ID is the digest of the signed token so the
// raw token is never stored.
type PasswordResetToken struct {
	ID         string
	CustomerID string
	Email      string
	Used       bool
	ExpiresAt  time.Time
	CreatedAt  time.Time
	UsedAt     *time.Time
}

// Review captures a customer's rating of a purchased product.
type Review struct {
	ID         string
	ProductID  int64
	CustomerID string
	Rating     float64
	Body       string
	CreatedAt  time.Time
}

// ProductInfo is the catalog read model joined into cart, wishlist and order views.
type ProductInfo struct {
	ProductID   int64
	Name        string
	Description string
	ImageURL    string
	Price       decimal.Decimal
	TotalStock  int
}

// CheckoutSession represents PSP checkout session metadata returned to clients.
type CheckoutSession struct {
	SessionID   string
	PSP         string
	RedirectURL string
	PaymentID   string
	ExpiresAt   time.Time
}
