package domain

import (
	"errors"
	"strings"
)

// OwnerKind distinguishes customer-owned and guest-owned carts and wishlists.
type OwnerKind string

const (
	OwnerCustomer OwnerKind = "customer"
	OwnerGuest    OwnerKind = "guest"
)

// ErrInvalidOwner is returned when an owner key cannot be parsed.
var ErrInvalidOwner = errors.New("domain: invalid owner")

// Owner identifies who a cart or wishlist belongs to: exactly one of a customer or an
// anonymous session. Construct it with CustomerOwner or GuestOwner.
type Owner struct {
	kind OwnerKind
	id   string
}

// CustomerOwner returns the owner for a registered customer.
func CustomerOwner(customerID string) Owner {
	return Owner{kind: OwnerCustomer, id: strings.TrimSpace(customerID)}
}

// GuestOwner returns the owner for an anonymous session.
func GuestOwner(sessionID string) Owner {
	return Owner{kind: OwnerGuest, id: strings.TrimSpace(sessionID)}
}

// Kind reports the owner variant.
func (o Owner) Kind() OwnerKind { return o.kind }

// IsZero reports whether the owner was never set.
func (o Owner) IsZero() bool { return o.kind == "" || o.id == "" }

// IsGuest reports whether the owner is an anonymous session.
func (o Owner) IsGuest() bool { return o.kind == OwnerGuest && o.id != "" }

// CustomerID returns the customer id and true for customer owners.
func (o Owner) CustomerID() (string, bool) {
	if o.kind != OwnerCustomer || o.id == "" {
		return "", false
	}
	return o.id, true
}

// SessionID returns the session id and true for guest owners.
func (o Owner) SessionID() (string, bool) {
	if o.kind != OwnerGuest || o.id == "" {
		return "", false
	}
	return o.id, true
}

// Key renders the owner key used for storage lookups and cache entries.
func (o Owner) Key() string {
	if o.IsZero() {
		return ""
	}
	return string(o.kind) + ":" + o.id
}

// String implements fmt.Stringer.
func (o Owner) String() string { return o.Key() }

// ParseOwnerKey reverses Owner.Key.
func ParseOwnerKey(key string) (Owner, error) {
	kind, id, ok := strings.Cut(strings.TrimSpace(key), ":")
	if !ok || strings.TrimSpace(id) == "" {
		return Owner{}, ErrInvalidOwner
	}
	switch OwnerKind(kind) {
	case OwnerCustomer:
		return CustomerOwner(id), nil
	case OwnerGuest:
		return GuestOwner(id), nil
	default:
		return Owner{}, ErrInvalidOwner
	}
}
