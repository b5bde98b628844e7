package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/Bashir-Janbalat/store-app-be/internal/domain"
	"github.com/Bashir-Janbalat/store-app-be/internal/notifications"
	"github.com/Bashir-Janbalat/store-app-be/internal/platform/cache"
	"github.com/Bashir-Janbalat/store-app-be/internal/repositories"
)

const (
	// OrderEventCreated is published after an order is persisted.
	OrderEventCreated = "order.created"
	// OrderEventStatusChanged is published after a status transition.
	OrderEventStatusChanged = "order.status_changed"

	defaultOrderCurrency = "EUR"
)

var (
	// ErrOrderInvalidInput indicates malformed input.
	ErrOrderInvalidInput = newKindError(ErrInvalidArgument, "order service: invalid input")
	// ErrOrderNotFound indicates the order does not exist.
	ErrOrderNotFound = newKindError(ErrNotFound, "order service: order not found")
	// ErrOrderCustomerNotFound indicates the customer does not exist.
	ErrOrderCustomerNotFound = newKindError(ErrNotFound, "order service: customer not found")
	// ErrOrderShippingAddressNotFound indicates the customer has no default shipping address.
	ErrOrderShippingAddressNotFound = newKindError(ErrNotFound, "order service: default shipping address not found")
	// ErrOrderBillingAddressNotFound indicates the billing address is missing or deleted.
	ErrOrderBillingAddressNotFound = newKindError(ErrNotFound, "order service: billing address not found")
	// ErrOrderCartEmpty indicates there is no active cart or it holds no lines.
	ErrOrderCartEmpty = newKindError(ErrNotFound, "order service: cart is empty")
	// ErrOrderProductUnavailable indicates a cart line cannot be fulfilled from stock.
	ErrOrderProductUnavailable = newKindError(ErrNotFound, "order service: product unavailable")
	// ErrOrderPermissionDenied indicates the caller does not own the order or address.
	ErrOrderPermissionDenied = newKindError(ErrAccessDenied, "order service: permission denied")
	// ErrOrderInvalidState indicates the requested transition is not allowed.
	ErrOrderInvalidState = newKindError(ErrInvalidState, "order service: invalid state transition")
	// ErrOrderUnavailable indicates backend failures.
	ErrOrderUnavailable = newKindError(ErrUnavailable, "order service: unavailable")
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusProcessing, domain.OrderStatusCancelled},
	domain.OrderStatusProcessing: {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:    {domain.OrderStatusDelivered},
	domain.OrderStatusDelivered:  nil,
	domain.OrderStatusCancelled:  nil,
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// OrderEvent is the message published for order lifecycle changes.
type OrderEvent struct {
	Type           string          `json:"type"`
	OrderID        string          `json:"orderId"`
	CustomerID     string          `json:"customerId"`
	Status         OrderStatus     `json:"status"`
	PreviousStatus OrderStatus     `json:"previousStatus,omitempty"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	Currency       string          `json:"currency"`
	OccurredAt     time.Time       `json:"occurredAt"`
}

// OrderEventPublisher pushes order events to downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) (string, error)
}

// OrderServiceDeps wires repositories and collaborators for the order lifecycle.
type OrderServiceDeps struct {
	Orders     repositories.OrderRepository
	Customers  repositories.CustomerRepository
	Addresses  repositories.AddressRepository
	Carts      repositories.CartRepository
	Inventory  InventoryService
	UnitOfWork repositories.UnitOfWork
	// Cache holds order listings keyed by customer and status. Optional.
	Cache *cache.Cache[[]OrderView]
	// Events receives order lifecycle events. Optional.
	Events OrderEventPublisher
	// Mailer sends order confirmations. Optional.
	Mailer      notifications.Mailer
	Currency    string
	Clock       func() time.Time
	IDGenerator func() string
	Logger      Logger
}

type orderService struct {
	orders    repositories.OrderRepository
	customers repositories.CustomerRepository
	addresses repositories.AddressRepository
	carts     repositories.CartRepository
	inventory InventoryService
	uow       repositories.UnitOfWork
	cache     *cache.Cache[[]OrderView]
	events    OrderEventPublisher
	mailer    notifications.Mailer
	currency  string
	now       func() time.Time
	newID     func() string
	logger    Logger
	errs      repoErrorMapping
}

// NewOrderService constructs an OrderService with the provided dependencies.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Customers == nil {
		return nil, errors.New("order service: customer repository is required")
	}
	if deps.Addresses == nil {
		return nil, errors.New("order service: address repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("order service: cart repository is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("order service: inventory service is required")
	}
	if deps.UnitOfWork == nil {
		return nil, errors.New("order service: unit of work is required")
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = defaultOrderCurrency
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = defaultIDGenerator
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &orderService{
		orders:    deps.Orders,
		customers: deps.Customers,
		addresses: deps.Addresses,
		carts:     deps.Carts,
		inventory: deps.Inventory,
		uow:       deps.UnitOfWork,
		cache:     deps.Cache,
		events:    deps.Events,
		mailer:    deps.Mailer,
		currency:  currency,
		now:       utcClock(deps.Clock),
		newID:     idGen,
		logger:    logger,
		errs:      repoErrorMapping{notFound: ErrOrderNotFound, unavailable: ErrOrderUnavailable},
	}, nil
}

// CreateOrder snapshots the customer's active cart into a PENDING order.
func (s *orderService) CreateOrder(ctx context.Context, customerID string, billingAddressID *string) (OrderCreated, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return OrderCreated{}, fmt.Errorf("%w: customer id is required", ErrOrderInvalidInput)
	}

	var order Order
	err := s.uow.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.customers.FindByID(ctx, customerID); err != nil {
			if isRepoNotFound(err) {
				return ErrOrderCustomerNotFound
			}
			return s.errs.translate(err)
		}

		shipping, err := s.addresses.FindDefault(ctx, customerID, domain.AddressTypeShipping)
		if err != nil {
			if isRepoNotFound(err) {
				return ErrOrderShippingAddressNotFound
			}
			return s.errs.translate(err)
		}

		var billing *string
		if billingAddressID != nil && strings.TrimSpace(*billingAddressID) != "" {
			id := strings.TrimSpace(*billingAddressID)
			address, err := s.addresses.FindByID(ctx, id)
			if err != nil {
				if isRepoNotFound(err) {
					return fmt.Errorf("%w: %s", ErrOrderBillingAddressNotFound, id)
				}
				return s.errs.translate(err)
			}
			if address.Deleted {
				return fmt.Errorf("%w: %s", ErrOrderBillingAddressNotFound, id)
			}
			if address.CustomerID != customerID {
				return fmt.Errorf("%w: billing address %s", ErrOrderPermissionDenied, id)
			}
			billing = &id
		}

		cart, err := s.carts.FindActive(ctx, domain.CustomerOwner(customerID))
		if err != nil {
			if isRepoNotFound(err) {
				return ErrOrderCartEmpty
			}
			return s.errs.translate(err)
		}
		if len(cart.Items) == 0 {
			return ErrOrderCartEmpty
		}

		items := make([]OrderItem, 0, len(cart.Items))
		for _, line := range cart.Items {
			if line.Quantity <= 0 {
				return fmt.Errorf("%w: product %d has no quantity", ErrOrderProductUnavailable, line.ProductID)
			}
			stock, err := s.inventory.AvailableStock(ctx, line.ProductID)
			if err != nil {
				return err
			}
			if stock < line.Quantity {
				return fmt.Errorf("%w: product %d has %d in stock, %d requested", ErrOrderProductUnavailable, line.ProductID, stock, line.Quantity)
			}
			items = append(items, OrderItem{
				ProductID:  line.ProductID,
				Quantity:   line.Quantity,
				UnitPrice:  line.UnitPrice,
				TotalPrice: domain.LineTotal(line.UnitPrice, line.Quantity),
			})
		}

		now := s.now()
		order = Order{
			ID:                s.newID(),
			CustomerID:        customerID,
			CartID:            cart.ID,
			ShippingAddressID: shipping.ID,
			BillingAddressID:  billing,
			Status:            domain.OrderStatusPending,
			Currency:          s.currency,
			Items:             items,
			TotalAmount:       domain.OrderTotal(items),
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := s.orders.Insert(ctx, order); err != nil {
			return s.errs.translate(err)
		}
		return nil
	})
	if err != nil {
		return OrderCreated{}, err
	}

	s.cache.InvalidatePrefix(customerID + ":")
	s.logger(ctx, "order.created", map[string]any{
		"orderId":    order.ID,
		"customerId": customerID,
		"total":      order.TotalAmount.StringFixed(2),
		"lines":      len(order.Items),
	})
	s.publish(ctx, OrderEventCreated, order, "")
	return OrderCreated{OrderID: order.ID, TotalAmount: order.TotalAmount}, nil
}

// UpdateOrderStatus moves the order along the lifecycle. Setting the current status is a no-op.
func (s *orderService) UpdateOrderStatus(ctx context.Context, orderID string, status OrderStatus, requestingCustomerID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !status.Valid() {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, status)
	}

	var (
		order    Order
		previous OrderStatus
		changed  bool
	)
	err := s.uow.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.orders.FindByID(ctx, orderID)
		if err != nil {
			return s.errs.translate(err)
		}
		if current.CustomerID != strings.TrimSpace(requestingCustomerID) {
			return fmt.Errorf("%w: order %s", ErrOrderPermissionDenied, orderID)
		}
		order = current
		if current.Status == status {
			return nil
		}
		if !CanTransition(current.Status, status) {
			return fmt.Errorf("%w: %s -> %s", ErrOrderInvalidState, current.Status, status)
		}
		now := s.now()
		if err := s.orders.UpdateStatus(ctx, orderID, status, now); err != nil {
			return s.errs.translate(err)
		}
		previous = current.Status
		order.Status = status
		order.UpdatedAt = now
		changed = true
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	if changed {
		s.cache.InvalidatePrefix(order.CustomerID + ":")
		s.logger(ctx, "order.status_changed", map[string]any{
			"orderId": orderID,
			"from":    string(previous),
			"to":      string(status),
		})
		s.publish(ctx, OrderEventStatusChanged, order, previous)
	}
	return order, nil
}

func (s *orderService) CancelOrder(ctx context.Context, orderID string, customerID string) (Order, error) {
	return s.UpdateOrderStatus(ctx, orderID, domain.OrderStatusCancelled, customerID)
}

// GetOrder loads an order owned by the customer.
func (s *orderService) GetOrder(ctx context.Context, orderID string, customerID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.errs.translate(err)
	}
	if order.CustomerID != strings.TrimSpace(customerID) {
		return Order{}, fmt.Errorf("%w: order %s", ErrOrderPermissionDenied, orderID)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, customerID string, status OrderStatus) ([]OrderView, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, fmt.Errorf("%w: customer id is required", ErrOrderInvalidInput)
	}
	if status == "" {
		status = domain.OrderStatusProcessing
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, status)
	}

	key := customerID + ":" + string(status)
	if views, ok := s.cache.Get(key); ok {
		return cloneOrderViews(views), nil
	}

	orders, err := s.orders.List(ctx, repositories.OrderListFilter{CustomerID: customerID, Status: &status})
	if err != nil {
		return nil, s.errs.translate(err)
	}

	var ids []int64
	for _, order := range orders {
		for _, item := range order.Items {
			ids = append(ids, item.ProductID)
		}
	}
	infos, err := s.inventory.ProductInfos(ctx, ids)
	if err != nil {
		return nil, err
	}

	views := make([]OrderView, 0, len(orders))
	for _, order := range orders {
		view := OrderView{
			ID:          order.ID,
			Status:      order.Status,
			Currency:    order.Currency,
			TotalAmount: order.TotalAmount,
			Lines:       make([]OrderLine, 0, len(order.Items)),
			CreatedAt:   order.CreatedAt,
		}
		for _, item := range order.Items {
			info := infos[item.ProductID]
			view.Lines = append(view.Lines, OrderLine{
				ProductID:  item.ProductID,
				Name:       info.Name,
				ImageURL:   info.ImageURL,
				Quantity:   item.Quantity,
				UnitPrice:  item.UnitPrice,
				TotalPrice: item.TotalPrice,
			})
		}
		views = append(views, view)
	}
	s.cache.Set(key, views)
	return cloneOrderViews(views), nil
}

// cloneOrderViews copies views down to their lines so callers cannot mutate cached entries.
func cloneOrderViews(views []OrderView) []OrderView {
	out := make([]OrderView, len(views))
	for i, view := range views {
		view.Lines = append([]OrderLine(nil), view.Lines...)
		out[i] = view
	}
	return out
}

// SendOrderConfirmation renders and dispatches the confirmation e-mail. Delivery failures are
// logged and not returned.
func (s *orderService) SendOrderConfirmation(ctx context.Context, orderID string, currency string) error {
	order, err := s.orders.FindByID(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return s.errs.translate(err)
	}
	if s.mailer == nil {
		return nil
	}
	customer, err := s.customers.FindByID(ctx, order.CustomerID)
	if err != nil {
		if isRepoNotFound(err) {
			return ErrOrderCustomerNotFound
		}
		return s.errs.translate(err)
	}
	shipping, err := s.addresses.FindByID(ctx, order.ShippingAddressID)
	if err != nil && !isRepoNotFound(err) {
		return s.errs.translate(err)
	}

	if strings.TrimSpace(currency) == "" {
		currency = order.Currency
	}
	email, err := notifications.RenderOrderConfirmation(notifications.OrderConfirmation{
		To:              customer.Email,
		CustomerName:    customer.Name,
		OrderID:         order.ID,
		TotalAmount:     order.TotalAmount,
		Currency:        currency,
		ShippingLine:    shipping.Line,
		ShippingCity:    shipping.City,
		ShippingCountry: shipping.Country,
	})
	if err != nil {
		s.logger(ctx, "order.confirmation.render_failed", map[string]any{"orderId": order.ID, "error": err.Error()})
		return nil
	}
	if err := s.mailer.Send(ctx, email); err != nil {
		s.logger(ctx, "order.confirmation.send_failed", map[string]any{"orderId": order.ID, "error": err.Error()})
		return nil
	}
	s.logger(ctx, "order.confirmation.sent", map[string]any{"orderId": order.ID})
	return nil
}

func (s *orderService) HasPurchased(ctx context.Context, customerID string, productID int64, status OrderStatus) (bool, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" || productID <= 0 {
		return false, nil
	}
	filter := repositories.OrderListFilter{CustomerID: customerID, ProductID: &productID, Limit: 1}
	if status != "" {
		filter.Status = &status
	}
	orders, err := s.orders.List(ctx, filter)
	if err != nil {
		return false, s.errs.translate(err)
	}
	return len(orders) > 0, nil
}

func (s *orderService) publish(ctx context.Context, eventType string, order Order, previous OrderStatus) {
	if s.events == nil {
		return
	}
	event := OrderEvent{
		Type:           eventType,
		OrderID:        order.ID,
		CustomerID:     order.CustomerID,
		Status:         order.Status,
		PreviousStatus: previous,
		TotalAmount:    order.TotalAmount,
		Currency:       order.Currency,
		OccurredAt:     s.now(),
	}
	if _, err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish_failed", map[string]any{
			"orderId": order.ID,
			"type":    eventType,
			"error":   err.Error(),
		})
	}
}
