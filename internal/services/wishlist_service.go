package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/Bashir-Janbalat/store-app-be/internal/domain"
	"github.com/Bashir-Janbalat/store-app-be/internal/platform/cache"
	"github.com/Bashir-Janbalat/store-app-be/internal/repositories"
)

var (
	// ErrWishlistInvalidInput indicates the caller supplied invalid input.
	ErrWishlistInvalidInput = newKindError(ErrInvalidArgument, "wishlist service: invalid input")
	// ErrWishlistNotFound indicates the caller has no wishlist.
	ErrWishlistNotFound = newKindError(ErrNotFound, "wishlist service: not found")
	// ErrWishlistItemNotFound indicates the wishlist does not reference the product.
	ErrWishlistItemNotFound = newKindError(ErrNotFound, "wishlist service: item not found")
	// ErrWishlistCustomerNotFound indicates the customer email does not resolve to an account.
	ErrWishlistCustomerNotFound = newKindError(ErrNotFound, "wishlist service: customer not found")
	// ErrWishlistProductNotFound indicates the product is not in the catalog.
	ErrWishlistProductNotFound = newKindError(ErrNotFound, "wishlist service: product not found")
	// ErrWishlistUnavailable indicates backend failures.
	ErrWishlistUnavailable = newKindError(ErrUnavailable, "wishlist service: unavailable")
)

// WishlistServiceDeps wires repositories and collaborators for wishlist operations.
type WishlistServiceDeps struct {
	Wishlists   repositories.WishlistRepository
	Customers   repositories.CustomerRepository
	Inventory   InventoryService
	UnitOfWork  repositories.UnitOfWork
	Cache       *cache.Cache[WishlistView]
	Clock       func() time.Time
	IDGenerator func() string
	Logger      Logger
}

type wishlistService struct {
	wishlists repositories.WishlistRepository
	customers repositories.CustomerRepository
	inventory InventoryService
	uow       repositories.UnitOfWork
	cache     *cache.Cache[WishlistView]
	now       func() time.Time
	newID     func() string
	logger    Logger
	errs      repoErrorMapping
}

// NewWishlistService constructs a WishlistService with the provided dependencies.
func NewWishlistService(deps WishlistServiceDeps) (WishlistService, error) {
	if deps.Wishlists == nil {
		return nil, errors.New("wishlist service: wishlist repository is required")
	}
	if deps.Customers == nil {
		return nil, errors.New("wishlist service: customer repository is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("wishlist service: inventory service is required")
	}
	if deps.UnitOfWork == nil {
		return nil, errors.New("wishlist service: unit of work is required")
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = defaultIDGenerator
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &wishlistService{
		wishlists: deps.Wishlists,
		customers: deps.Customers,
		inventory: deps.Inventory,
		uow:       deps.UnitOfWork,
		cache:     deps.Cache,
		now:       utcClock(deps.Clock),
		newID:     idGen,
		logger:    logger,
		errs:      repoErrorMapping{notFound: ErrWishlistNotFound, unavailable: ErrWishlistUnavailable},
	}, nil
}

type wishlistScope struct {
	wishlist  Wishlist
	found     bool
	preferred Owner
	guest     Owner
}

func (s wishlistScope) cacheKeys() []string {
	keys := []string{s.preferred.Key(), s.guest.Key()}
	if s.found {
		keys = append(keys, s.wishlist.Owner.Key())
	}
	return keys
}

func (s *wishlistService) resolve(ctx context.Context, caller Caller) (wishlistScope, error) {
	caller = caller.normalized()
	if caller.CustomerEmail == "" && caller.SessionID == "" {
		return wishlistScope{}, fmt.Errorf("%w: customer email or session id is required", ErrWishlistInvalidInput)
	}

	var scope wishlistScope
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
			wishlist, err := s.wishlists.FindActive(ctx, owner)
			if err == nil {
				scope.wishlist, scope.found = wishlist, true
				return scope, nil
			}
			if !isRepoNotFound(err) {
				return wishlistScope{}, s.errs.translate(err)
			}
		case isRepoNotFound(err):
			if caller.SessionID == "" {
				return wishlistScope{}, ErrWishlistCustomerNotFound
			}
		default:
			return wishlistScope{}, s.errs.translate(err)
		}
	}

	if !scope.guest.IsZero() {
		wishlist, err := s.wishlists.FindActive(ctx, scope.guest)
		if err == nil {
			scope.wishlist, scope.found = wishlist, true
			return scope, nil
		}
		if !isRepoNotFound(err) {
			return wishlistScope{}, s.errs.translate(err)
		}
	}
	return scope, nil
}

func (s *wishlistService) GetWishlist(ctx context.Context, caller Caller) (WishlistView, error) {
	scope, err := s.resolve(ctx, caller)
	if err != nil {
		return WishlistView{}, err
	}
	if !scope.found {
		return WishlistView{Items: []WishlistLine{}}, nil
	}

	cacheable := scope.wishlist.Owner.Key() == scope.preferred.Key()
	if cacheable {
		if view, ok := s.cache.Get(scope.preferred.Key()); ok {
			return view, nil
		}
	}

	ids := make([]int64, 0, len(scope.wishlist.Items))
	for _, item := range scope.wishlist.Items {
		ids = append(ids, item.ProductID)
	}
	infos, err := s.inventory.ProductInfos(ctx, ids)
	if err != nil {
		return WishlistView{}, err
	}
	view := WishlistView{
		WishlistID: scope.wishlist.ID,
		Items:      make([]WishlistLine, 0, len(scope.wishlist.Items)),
	}
	for _, item := range scope.wishlist.Items {
		info := infos[item.ProductID]
		view.Items = append(view.Items, WishlistLine{
			ProductID:   item.ProductID,
			Name:        info.Name,
			Description: info.Description,
			ImageURL:    info.ImageURL,
			Price:       info.Price,
			AddedAt:     item.AddedAt,
		})
	}
	if cacheable {
		s.cache.Set(scope.preferred.Key(), view)
	}
	return view, nil
}

// AddToWishlist is idempotent: a product already on the wishlist is left untouched.
func (s *wishlistService) AddToWishlist(ctx context.Context, caller Caller, productID int64) error {
	if productID <= 0 {
		return fmt.Errorf("%w: product id must be positive", ErrWishlistInvalidInput)
	}
	exists, err := s.inventory.ProductExists(ctx, productID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: product %d", ErrWishlistProductNotFound, productID)
	}

	var keys []string
	err = s.uow.RunInTx(ctx, func(ctx context.Context) error {
		scope, err := s.resolve(ctx, caller)
		if err != nil {
			return err
		}
		keys = scope.cacheKeys()

		wishlist := scope.wishlist
		if wishlist.Contains(productID) {
			return nil
		}
		now := s.now()
		if !scope.found {
			wishlist = Wishlist{
				ID:        s.newID(),
				Owner:     scope.preferred,
				Status:    domain.WishlistStatusActive,
				CreatedAt: now,
			}
			if sid, ok := scope.guest.SessionID(); ok {
				wishlist.SessionID = sid
			}
			keys = append(keys, wishlist.Owner.Key())
		}
		wishlist.Items = append(wishlist.Items, WishlistItem{ProductID: productID, AddedAt: now})
		wishlist.UpdatedAt = now
		return s.save(ctx, wishlist)
	})
	if err != nil {
		return err
	}
	s.cache.Invalidate(keys...)
	return nil
}

func (s *wishlistService) RemoveFromWishlist(ctx context.Context, caller Caller, productID int64) error {
	var keys []string
	err := s.uow.RunInTx(ctx, func(ctx context.Context) error {
		scope, err := s.resolve(ctx, caller)
		if err != nil {
			return err
		}
		if !scope.found {
			return ErrWishlistNotFound
		}
		keys = scope.cacheKeys()

		wishlist := scope.wishlist
		kept := make([]WishlistItem, 0, len(wishlist.Items))
		for _, item := range wishlist.Items {
			if item.ProductID != productID {
				kept = append(kept, item)
			}
		}
		if len(kept) == len(wishlist.Items) {
			return fmt.Errorf("%w: product %d", ErrWishlistItemNotFound, productID)
		}
		wishlist.Items = kept
		wishlist.UpdatedAt = s.now()
		return s.save(ctx, wishlist)
	})
	if err != nil {
		return err
	}
	s.cache.Invalidate(keys...)
	return nil
}

func (s *wishlistService) ClearWishlist(ctx context.Context, caller Caller) error {
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

		wishlist := scope.wishlist
		wishlist.Items = nil
		wishlist.UpdatedAt = s.now()
		return s.save(ctx, wishlist)
	})
	if err != nil {
		return err
	}
	s.cache.Invalidate(keys...)
	return nil
}

// MergeWishlistOnLogin unions the guest wishlist of sessionID into the customer's wishlist.
func (s *wishlistService) MergeWishlistOnLogin(ctx context.Context, customerEmail string, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil
	}
	customer, err := s.customers.FindByEmail(ctx, strings.TrimSpace(customerEmail))
	if err != nil {
		if isRepoNotFound(err) {
			return ErrWishlistCustomerNotFound
		}
		return s.errs.translate(err)
	}

	guestOwner := domain.GuestOwner(sessionID)
	customerOwner := domain.CustomerOwner(customer.ID)

	err = s.uow.RunInTx(ctx, func(ctx context.Context) error {
		guest, err := s.wishlists.FindActive(ctx, guestOwner)
		if err != nil {
			if isRepoNotFound(err) {
				return nil
			}
			return s.errs.translate(err)
		}
		target, err := s.wishlists.FindActive(ctx, customerOwner)
		if err != nil && !isRepoNotFound(err) {
			return s.errs.translate(err)
		}
		now := s.now()

		if err != nil {
			guest.Owner = customerOwner
			guest.SessionID = sessionID
			guest.UpdatedAt = now
			return s.save(ctx, guest)
		}

		added := 0
		for _, item := range guest.Items {
			if target.Contains(item.ProductID) {
				continue
			}
			target.Items = append(target.Items, item)
			added++
		}
		if err := s.wishlists.Delete(ctx, guest.ID); err != nil {
			return s.errs.translate(err)
		}
		target.SessionID = sessionID
		target.UpdatedAt = now
		s.logger(ctx, "wishlist.merge.combined", map[string]any{
			"wishlistId":      target.ID,
			"guestWishlistId": guest.ID,
			"added":           added,
		})
		return s.save(ctx, target)
	})
	if err != nil {
		return err
	}
	s.cache.Invalidate(customerOwner.Key(), guestOwner.Key())
	return nil
}

func (s *wishlistService) DeleteAnonymousWishlistsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	total := 0
	for {
		deleted, err := s.wishlists.DeleteGuestBefore(ctx, cutoff, sweepBatchSize)
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

func (s *wishlistService) save(ctx context.Context, wishlist Wishlist) error {
	if err := s.wishlists.Save(ctx, wishlist); err != nil {
		return s.errs.translate(err)
	}
	return nil
}
