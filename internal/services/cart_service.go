package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/Bashir-Janbalat/store-app-be/internal/domain"
	"github.com/Bashir-Janbalat/store-app-be/internal/platform/cache"
	"github.com/Bashir-Janbalat/store-app-be/internal/repositories"
)

const sweepBatchSize = 200

var (
	// ErrCartInvalidInput indicates the caller supplied invalid input.
	ErrCartInvalidInput = newKindError(ErrInvalidArgument, "cart service: invalid input")
	// ErrCartOutOfStock indicates the requested quantity exceeds available stock.
	ErrCartOutOfStock = newKindError(ErrInvalidArgument, "cart service: out of stock")
	// ErrCartNotFound indicates the requested cart does not exist.
	ErrCartNotFound = newKindError(ErrNotFound, "cart service: not found")
	// ErrCartItemNotFound indicates the cart holds no line for the product.
	ErrCartItemNotFound = newKindError(ErrNotFound, "cart service: item not found")
	// ErrCartCustomerNotFound indicates the customer email does not resolve to an account.
	ErrCartCustomerNotFound = newKindError(ErrNotFound, "cart service: customer not found")
	// ErrCartProductNotFound indicates the product is not in the catalog.
	ErrCartProductNotFound = newKindError(ErrNotFound, "cart service: product not found")
	// ErrCartUnavailable indicates the cart service cannot fulfil the request due to backend issues.
	ErrCartUnavailable = newKindError(ErrUnavailable, "cart service: unavailable")
)

// CartServiceDeps wires repositories and collaborators for cart operations.
type CartServiceDeps struct {
	Carts      repositories.CartRepository
	Customers  repositories.CustomerRepository
	Inventory  InventoryService
	UnitOfWork repositories.UnitOfWork
	// Cache holds cart views by owner key. Optional.
	Cache *cache.Cache[CartView]
	// TrustClientPrice captures the caller supplied unit price instead of the catalog price.
	TrustClientPrice bool
	Clock            func() time.Time
	IDGenerator      func() string
	Logger           Logger
}

type cartService struct {
	carts            repositories.CartRepository
	customers        repositories.CustomerRepository
	inventory        InventoryService
	uow              repositories.UnitOfWork
	cache            *cache.Cache[CartView]
	trustClientPrice bool
	now              func() time.Time
	newID            func() string
	logger           Logger
	errs             repoErrorMapping
}

// NewCartService constructs a CartService with the provided dependencies.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Customers == nil {
		return nil, errors.New("cart service: customer repository is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("cart service: inventory service is required")
	}
	if deps.UnitOfWork == nil {
		return nil, errors.New("cart service: unit of work is required")
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = defaultIDGenerator
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &cartService{
		carts:            deps.Carts,
		customers:        deps.Customers,
		inventory:        deps.Inventory,
		uow:              deps.UnitOfWork,
		cache:            deps.Cache,
		trustClientPrice: deps.TrustClientPrice,
		now:              utcClock(deps.Clock),
		newID:            idGen,
		logger:           logger,
		errs:             repoErrorMapping{notFound: ErrCartNotFound, unavailable: ErrCartUnavailable},
	}, nil
}

// cartScope is the outcome of active cart resolution for a caller.
type cartScope struct {
	cart      Cart
	found     bool
	preferred Owner
	guest     Owner
}

func (s cartScope) cacheKeys() []string {
	keys := []string{s.preferred.Key(), s.guest.Key()}
	if s.found {
		keys = append(keys, s.cart.Owner.Key())
	}
	return keys
}

// resolve finds the active cart: the customer's cart first, then the session cart.
func (s *cartService) resolve(ctx context.Context, caller Caller) (cartScope, error) {
	caller = caller.normalized()
	if caller.CustomerEmail == "" && caller.SessionID == "" {
		return cartScope{}, fmt.Errorf("%w: customer email or session id is required", ErrCartInvalidInput)
	}

	var scope cartScope
	if caller.SessionID != "" {
		scope.guest = domain.GuestOwner(caller.SessionID)
		scope.preferred = scope.guest
	}

	if caller.CustomerEmail != "" {
		customer, err := s.customers.FindByEmail(ctx, caller.CustomerEmail)
		switch {
		case err == nil:
			owner := domain.CustomerOwner(customer.ID)
			scope.preferred = owner
			cart, err := s.carts.FindActive(ctx, owner)
			if err == nil {
				scope.cart, scope.found = cart, true
				return scope, nil
			}
			if !isRepoNotFound(err) {
				return cartScope{}, s.errs.translate(err)
			}
		case isRepoNotFound(err):
			if caller.SessionID == "" {
				return cartScope{}, ErrCartCustomerNotFound
			}
		default:
			return cartScope{}, s.errs.translate(err)
		}
	}

	if !scope.guest.IsZero() {
		cart, err := s.carts.FindActive(ctx, scope.guest)
		if err == nil {
			scope.cart, scope.found = cart, true
			return scope, nil
		}
		if !isRepoNotFound(err) {
			return cartScope{}, s.errs.translate(err)
		}
	}
	return scope, nil
}

func (s *cartService) GetCart(ctx context.Context, caller Caller) (CartView, error) {
	scope, err := s.resolve(ctx, caller)
	if err != nil {
		return CartView{}, err
	}
	if !scope.found {
		return CartView{Items: []CartLine{}, Total: decimal.Zero}, nil
	}

	cacheable := scope.cart.Owner.Key() == scope.preferred.Key()
	if cacheable {
		if view, ok := s.cache.Get(scope.preferred.Key()); ok {
			return view, nil
		}
	}

	view, err := s.buildView(ctx, scope.cart)
	if err != nil {
		return CartView{}, err
	}
	if cacheable {
		s.cache.Set(scope.preferred.Key(), view)
	}
	return view, nil
}

func (s *cartService) buildView(ctx context.Context, cart Cart) (CartView, error) {
	ids := make([]int64, 0, len(cart.Items))
	for _, item := range cart.Items {
		ids = append(ids, item.ProductID)
	}
	infos, err := s.inventory.ProductInfos(ctx, ids)
	if err != nil {
		return CartView{}, err
	}

	view := CartView{
		CartID: cart.ID,
		Status: cart.Status,
		Items:  make([]CartLine, 0, len(cart.Items)),
		Total:  decimal.Zero,
	}
	for _, item := range cart.Items {
		info := infos[item.ProductID]
		line := CartLine{
			ProductID:   item.ProductID,
			Name:        info.Name,
			Description: info.Description,
			ImageURL:    info.ImageURL,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			LineTotal:   domain.LineTotal(item.UnitPrice, item.Quantity),
		}
		view.Items = append(view.Items, line)
		view.ItemCount += item.Quantity
		view.Total = view.Total.Add(line.LineTotal)
	}
	return view, nil
}

func (s *cartService) AddToCart(ctx context.Context, caller Caller, productID int64, unitPrice decimal.Decimal, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: quantity must be greater than zero", ErrCartInvalidInput)
	}
	if productID <= 0 {
		return fmt.Errorf("%w: product id must be positive", ErrCartInvalidInput)
	}
	if s.trustClientPrice && !unitPrice.IsPositive() {
		return fmt.Errorf("%w: unit price must be greater than zero", ErrCartInvalidInput)
	}

	var keys []string
	err := s.uow.RunInTx(ctx, func(ctx context.Context) error {
		scope, err := s.resolve(ctx, caller)
		if err != nil {
			return err
		}
		keys = scope.cacheKeys()

		cart := scope.cart
		existing, idx := cart.Item(productID)
		if err := s.checkStock(ctx, productID, existing.Quantity+quantity); err != nil {
			return err
		}

		price, err := s.unitPrice(ctx, productID, unitPrice)
		if err != nil {
			return err
		}

		now := s.now()
		if !scope.found {
			cart = Cart{
				ID:        s.newID(),
				Owner:     scope.preferred,
				Status:    domain.CartStatusActive,
				CreatedAt: now,
			}
			if sid, ok := scope.guest.SessionID(); ok {
				cart.SessionID = sid
			}
		}
		if idx >= 0 {
			cart.Items[idx].Quantity += quantity
			cart.Items[idx].UpdatedAt = &now
		} else {
			cart.Items = append(cart.Items, CartItem{
				ProductID: productID,
				Quantity:  quantity,
				UnitPrice: price,
				AddedAt:   now,
			})
		}
		cart.UpdatedAt = now
		keys = append(keys, cart.Owner.Key())
		return s.save(ctx, cart)
	})
	if err != nil {
		return err
	}
	s.cache.Invalidate(keys...)
	return nil
}

func (s *cartService) UpdateCartItemQuantity(ctx context.Context, caller Caller, productID int64, quantity int) error {
	if quantity <= 0 {
		return s.RemoveFromCart(ctx, caller, productID)
	}

	var keys []string
	err := s.uow.RunInTx(ctx, func(ctx context.Context) error {
		scope, err := s.resolve(ctx, caller)
		if err != nil {
			return err
		}
		if !scope.found {
			return ErrCartNotFound
		}
		keys = scope.cacheKeys()

		cart := scope.cart
		_, idx := cart.Item(productID)
		if idx < 0 {
			return fmt.Errorf("%w: product %d", ErrCartItemNotFound, productID)
		}
		if err := s.checkStock(ctx, productID, quantity); err != nil {
			return err
		}
		now := s.now()
		cart.Items[idx].Quantity = quantity
		cart.Items[idx].UpdatedAt = &now
		cart.UpdatedAt = now
		return s.save(ctx, cart)
	})
	if err != nil {
		return err
	}
	s.cache.Invalidate(keys...)
	return nil
}

func (s *cartService) RemoveFromCart(ctx context.Context, caller Caller, productID int64) error {
	var keys []string
	err := s.uow.RunInTx(ctx, func(ctx context.Context) error {
		scope, err := s.resolve(ctx, caller)
		if err != nil {
			return err
		}
		if !scope.found {
			return ErrCartNotFound
		}
		keys = scope.cacheKeys()

		cart := scope.cart
		_, idx := cart.Item(productID)
		if idx < 0 {
			return fmt.Errorf("%w: product %d", ErrCartItemNotFound, productID)
		}
		cart.Items = append(cart.Items[:idx:idx], cart.Items[idx+1:]...)
		cart.UpdatedAt = s.now()
		return s.save(ctx, cart)
	})
	if err != nil {
		return err
	}
	s.cache.Invalidate(keys...)
	return nil
}

func (s *cartService) ClearCart(ctx context.Context, caller Caller) error {
	var keys []string
	err := s.uow.RunInTx(ctx, func(ctx context.Context) error {
		scope, err := s.resolve(ctx, caller)
		if err != nil {
			return err
		}
		if !scope.found {
			return nil
		}
		keys = scope.cacheKeys()

		cart := scope.cart
		cart.Items = nil
		cart.UpdatedAt = s.now()
		return s.save(ctx, cart)
	})
	if err != nil {
		return err
	}
	s.cache.Invalidate(keys...)
	return nil
}

// MergeCartOnLogin folds the guest cart of sessionID into the customer's active cart.
func (s *cartService) MergeCartOnLogin(ctx context.Context, customerEmail string, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil
	}
	customer, err := s.customers.FindByEmail(ctx, strings.TrimSpace(customerEmail))
	if err != nil {
		if isRepoNotFound(err) {
			return ErrCartCustomerNotFound
		}
		return s.errs.translate(err)
	}

	guestOwner := domain.GuestOwner(sessionID)
	customerOwner := domain.CustomerOwner(customer.ID)

	err = s.uow.RunInTx(ctx, func(ctx context.Context) error {
		guest, err := s.carts.FindActive(ctx, guestOwner)
		if err != nil {
			if isRepoNotFound(err) {
				return nil
			}
			return s.errs.translate(err)
		}

		target, err := s.carts.FindActive(ctx, customerOwner)
		if err != nil && !isRepoNotFound(err) {
			return s.errs.translate(err)
		}
		now := s.now()

		if err != nil {
			guest.Owner = customerOwner
			guest.SessionID = sessionID
			guest.UpdatedAt = now
			s.logger(ctx, "cart.merge.reassigned", map[string]any{
				"cartId":     guest.ID,
				"customerId": customer.ID,
			})
			return s.save(ctx, guest)
		}

		for _, line := range guest.Items {
			existing, idx := target.Item(line.ProductID)
			if idx < 0 {
				target.Items = append(target.Items, line)
				continue
			}
			requested := existing.Quantity + line.Quantity
			stock, err := s.inventory.AvailableStock(ctx, line.ProductID)
			if err != nil {
				return err
			}
			merged := requested
			if requested > stock {
				merged = stock
				s.logger(ctx, "cart.merge.capped", map[string]any{
					"productId": line.ProductID,
					"requested": requested,
					"available": stock,
				})
			}
			if merged <= 0 {
				target.Items = append(target.Items[:idx:idx], target.Items[idx+1:]...)
				continue
			}
			target.Items[idx].Quantity = merged
			target.Items[idx].UpdatedAt = &now
		}

		if err := s.carts.Delete(ctx, guest.ID); err != nil {
			return s.errs.translate(err)
		}
		target.SessionID = sessionID
		target.UpdatedAt = now
		s.logger(ctx, "cart.merge.combined", map[string]any{
			"cartId":      target.ID,
			"guestCartId": guest.ID,
			"lines":       len(guest.Items),
		})
		return s.save(ctx, target)
	})
	if err != nil {
		return err
	}
	s.cache.Invalidate(customerOwner.Key(), guestOwner.Key())
	return nil
}

func (s *cartService) UpdateCartStatus(ctx context.Context, cartID string, status CartStatus) error {
	cartID = strings.TrimSpace(cartID)
	if cartID == "" {
		return fmt.Errorf("%w: cart id is required", ErrCartInvalidInput)
	}
	if status != domain.CartStatusActive && status != domain.CartStatusConverted {
		return fmt.Errorf("%w: unknown status %q", ErrCartInvalidInput, status)
	}
	cart, err := s.carts.FindByID(ctx, cartID)
	if err != nil {
		return s.errs.translate(err)
	}
	if err := s.carts.UpdateStatus(ctx, cartID, status, s.now()); err != nil {
		return s.errs.translate(err)
	}
	s.cache.Invalidate(cart.Owner.Key())
	return nil
}

func (s *cartService) DeleteAnonymousCartsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	total := 0
	for {
		deleted, err := s.carts.DeleteGuestBefore(ctx, cutoff, sweepBatchSize)
		total += deleted
		if err != nil {
			return total, s.errs.translate(err)
		}
		if deleted < sweepBatchSize {
			break
		}
	}
	if total > 0 {
		s.cache.InvalidatePrefix(string(domain.OwnerGuest) + ":")
	}
	return total, nil
}

func (s *cartService) checkStock(ctx context.Context, productID int64, requested int) error {
	stock, err := s.inventory.AvailableStock(ctx, productID)
	if err != nil {
		return err
	}
	if requested > stock {
		return fmt.Errorf("%w: product %d has %d available, requested %d", ErrCartOutOfStock, productID, stock, requested)
	}
	return nil
}

func (s *cartService) unitPrice(ctx context.Context, productID int64, clientPrice decimal.Decimal) (decimal.Decimal, error) {
	if s.trustClientPrice {
		return clientPrice, nil
	}
	infos, err := s.inventory.ProductInfos(ctx, []int64{productID})
	if err != nil {
		return decimal.Zero, err
	}
	info, ok := infos[productID]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: product %d", ErrCartProductNotFound, productID)
	}
	return info.Price, nil
}

func (s *cartService) save(ctx context.Context, cart Cart) error {
	if err := s.carts.Save(ctx, cart); err != nil {
		return s.errs.translate(err)
	}
	return nil
}
