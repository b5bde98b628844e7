package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/Bashir-Janbalat/store-app-be/internal/domain"
	pfirestore "github.com/Bashir-Janbalat/store-app-be/internal/platform/firestore"
	"github.com/Bashir-Janbalat/store-app-be/internal/repositories"
)

const (
	orderCollection   = "orders"
	defaultOrderLimit = 100
)

// OrderRepository persists order snapshots in Firestore.
type OrderRepository struct {
	base *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{base: pfirestore.NewBaseRepository[orderDocument](provider, orderCollection)}, nil
}

// Insert creates the order document; an existing id is reported as a conflict.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}
	return r.base.Create(ctx, id, newOrderDocument(order))
}

// UpdateStatus persists a status change. Items and totals are never rewritten.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, updatedAt time.Time) error {
	return r.base.Update(ctx, strings.TrimSpace(orderID), []firestore.Update{
		{Path: "status", Value: string(status)},
		{Path: "updatedAt", Value: updatedAt.UTC()},
	})
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List returns the customer's orders, newest first.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	customerID := strings.TrimSpace(filter.CustomerID)
	if customerID == "" {
		return nil, errors.New("order repository: customer id is required")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultOrderLimit
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("customerId", "==", customerID)
		if filter.Status != nil {
			q = q.Where("status", "==", string(*filter.Status))
		}
		if filter.ProductID != nil {
			q = q.Where("productIds", "array-contains", *filter.ProductID)
		}
		return q.OrderBy("createdAt", firestore.Desc).Limit(limit)
	})
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, doc.Data.toDomain(doc.ID))
	}
	return orders, nil
}

type orderDocument struct {
	CustomerID        string              `firestore:"customerId"`
	CartID            string              `firestore:"cartId"`
	ShippingAddressID string              `firestore:"shippingAddressId"`
	BillingAddressID  *string             `firestore:"billingAddressId,omitempty"`
	Status            string              `firestore:"status"`
	Currency          string              `firestore:"currency"`
	Items             []orderItemDocument `firestore:"items"`
	ProductIDs        []int64             `firestore:"productIds"`
	TotalAmount       string              `firestore:"totalAmount"`
	CreatedAt         time.Time           `firestore:"createdAt"`
	UpdatedAt         time.Time           `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ProductID  int64  `firestore:"productId"`
	Quantity   int    `firestore:"quantity"`
	UnitPrice  string `firestore:"unitPrice"`
	TotalPrice string `firestore:"totalPrice"`
}

func newOrderDocument(order domain.Order) orderDocument {
	now := time.Now().UTC()
	doc := orderDocument{
		CustomerID:        strings.TrimSpace(order.CustomerID),
		CartID:            strings.TrimSpace(order.CartID),
		ShippingAddressID: strings.TrimSpace(order.ShippingAddressID),
		BillingAddressID:  optionalString(order.BillingAddressID),
		Status:            string(order.Status),
		Currency:          strings.ToUpper(strings.TrimSpace(order.Currency)),
		Items:             make([]orderItemDocument, 0, len(order.Items)),
		ProductIDs:        make([]int64, 0, len(order.Items)),
		TotalAmount:       encodeMoney(order.TotalAmount),
		CreatedAt:         utcOr(order.CreatedAt, now),
		UpdatedAt:         utcOr(order.UpdatedAt, now),
	}
	for _, item := range order.Items {
		doc.Items = append(doc.Items, orderItemDocument{
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			UnitPrice:  encodeMoney(item.UnitPrice),
			TotalPrice: encodeMoney(item.TotalPrice),
		})
		doc.ProductIDs = append(doc.ProductIDs, item.ProductID)
	}
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	order := domain.Order{
		ID:                id,
		CustomerID:        d.CustomerID,
		CartID:            d.CartID,
		ShippingAddressID: d.ShippingAddressID,
		BillingAddressID:  optionalString(d.BillingAddressID),
		Status:            domain.OrderStatus(d.Status),
		Currency:          d.Currency,
		Items:             make([]domain.OrderItem, 0, len(d.Items)),
		TotalAmount:       decodeMoney(d.TotalAmount),
		CreatedAt:         d.CreatedAt.UTC(),
		UpdatedAt:         d.UpdatedAt.UTC(),
	}
	for _, item := range d.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			UnitPrice:  decodeMoney(item.UnitPrice),
			TotalPrice: decodeMoney(item.TotalPrice),
		})
	}
	return order
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
