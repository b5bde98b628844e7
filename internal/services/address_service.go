package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Bashir-Janbalat/store-app-be/internal/platform/cache"
	"github.com/Bashir-Janbalat/store-app-be/internal/repositories"
)

var (
	// ErrAddressInvalidInput indicates malformed address input.
	ErrAddressInvalidInput = newKindError(ErrInvalidArgument, "address service: invalid input")
	// ErrAddressNotFound indicates the address is missing or deleted.
	ErrAddressNotFound = newKindError(ErrNotFound, "address service: address not found")
	// ErrAddressDefaultNotFound indicates the customer has no default address of the type.
	ErrAddressDefaultNotFound = newKindError(ErrNotFound, "address service: default address not found")
	// ErrAddressCustomerNotFound indicates the customer does not exist.
	ErrAddressCustomerNotFound = newKindError(ErrNotFound, "address service: customer not found")
	// ErrAddressAccessDenied indicates the address belongs to another customer.
	ErrAddressAccessDenied = newKindError(ErrAccessDenied, "address service: access denied")
	// ErrAddressUnavailable indicates backend failures.
	ErrAddressUnavailable = newKindError(ErrUnavailable, "address service: unavailable")
)

// AddressServiceDeps wires the address book collaborators.
type AddressServiceDeps struct {
	Addresses   repositories.AddressRepository
	Customers   repositories.CustomerRepository
	UnitOfWork  repositories.UnitOfWork
	Cache       *cache.Cache[[]Address]
	Clock       func() time.Time
	IDGenerator func() string
	Logger      Logger
}

type addressService struct {
	addresses repositories.AddressRepository
	customers repositories.CustomerRepository
	uow       repositories.UnitOfWork
	cache     *cache.Cache[[]Address]
	now       func() time.Time
	newID     func() string
	logger    Logger
	errs      repoErrorMapping
}

// NewAddressService constructs an AddressService.
func NewAddressService(deps AddressServiceDeps) (AddressService, error) {
	if deps.Addresses == nil {
		return nil, errors.New("address service: address repository is required")
	}
	if deps.Customers == nil {
		return nil, errors.New("address service: customer repository is required")
	}
	if deps.UnitOfWork == nil {
		return nil, errors.New("address service: unit of work is required")
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = defaultIDGenerator
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &addressService{
		addresses: deps.Addresses,
		customers: deps.Customers,
		uow:       deps.UnitOfWork,
		cache:     deps.Cache,
		now:       utcClock(deps.Clock),
		newID:     idGen,
		logger:    logger,
		errs:      repoErrorMapping{notFound: ErrAddressNotFound, unavailable: ErrAddressUnavailable},
	}, nil
}

func (s *addressService) ListAddresses(ctx context.Context, customerID string) ([]Address, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, fmt.Errorf("%w: customer id is required", ErrAddressInvalidInput)
	}
	if cached, ok := s.cache.Get(customerID); ok {
		return cached, nil
	}
	addresses, err := s.addresses.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, s.errs.translate(err)
	}
	if addresses == nil {
		addresses = []Address{}
	}
	s.cache.Set(customerID, addresses)
	return addresses, nil
}

func (s *addressService) CreateAddress(ctx context.Context, customerID string, input AddressInput) (Address, error) {
	customerID = strings.TrimSpace(customerID)
	input = normalizeAddressInput(input)
	if err := validateAddressInput(customerID, input); err != nil {
		return Address{}, err
	}

	var created Address
	err := s.uow.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.customers.FindByID(ctx, customerID); err != nil {
			if isRepoNotFound(err) {
				return ErrAddressCustomerNotFound
			}
			return s.errs.translate(err)
		}
		now := s.now()
		created = Address{
			ID:         s.newID(),
			CustomerID: customerID,
			Type:       input.Type,
			Line:       input.Line,
			City:       input.City,
			State:      input.State,
			PostalCode: input.PostalCode,
			Country:    input.Country,
			Default:    input.Default != nil && *input.Default,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if created.Default {
			if err := s.addresses.ClearDefault(ctx, customerID, created.Type, created.ID); err != nil {
				return s.errs.translate(err)
			}
		}
		if err := s.addresses.Save(ctx, created); err != nil {
			return s.errs.translate(err)
		}
		return nil
	})
	if err != nil {
		return Address{}, err
	}
	s.cache.Invalidate(customerID)
	s.logger(ctx, "address.created", map[string]any{"addressId": created.ID, "customerId": customerID, "default": created.Default})
	return created, nil
}

// UpdateAddress replaces the address fields. A type change drops the default flag of the old
// type; an explicit Default moves or clears the default of the resulting type.
func (s *addressService) UpdateAddress(ctx context.Context, customerID string, addressID string, input AddressInput) (Address, error) {
	customerID = strings.TrimSpace(customerID)
	input = normalizeAddressInput(input)

	var updated Address
	err := s.uow.RunInTx(ctx, func(ctx context.Context) error {
		existing, err := s.owned(ctx, customerID, addressID)
		if err != nil {
			return err
		}
		if input.Type == "" {
			input.Type = existing.Type
		}
		if err := validateAddressInput(customerID, input); err != nil {
			return err
		}

		updated = existing
		updated.Line = input.Line
		updated.City = input.City
		updated.State = input.State
		updated.PostalCode = input.PostalCode
		updated.Country = input.Country
		if updated.Type != input.Type {
			s.logger(ctx, "address.type_changed", map[string]any{
				"addressId": existing.ID,
				"from":      string(existing.Type),
				"to":        string(input.Type),
			})
			updated.Type = input.Type
			updated.Default = false
		}
		if input.Default != nil {
			updated.Default = *input.Default
			if updated.Default {
				if err := s.addresses.ClearDefault(ctx, customerID, updated.Type, updated.ID); err != nil {
					return s.errs.translate(err)
				}
			}
		}
		updated.UpdatedAt = s.now()
		if err := s.addresses.Save(ctx, updated); err != nil {
			return s.errs.translate(err)
		}
		return nil
	})
	if err != nil {
		return Address{}, err
	}
	s.cache.Invalidate(customerID)
	return updated, nil
}

func (s *addressService) DeleteAddress(ctx context.Context, customerID string, addressID string) error {
	customerID = strings.TrimSpace(customerID)
	err := s.uow.RunInTx(ctx, func(ctx context.Context) error {
		existing, err := s.owned(ctx, customerID, addressID)
		if err != nil {
			return err
		}
		existing.Deleted = true
		existing.UpdatedAt = s.now()
		if err := s.addresses.Save(ctx, existing); err != nil {
			return s.errs.translate(err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.cache.Invalidate(customerID)
	s.logger(ctx, "address.deleted", map[string]any{"addressId": addressID, "customerId": customerID})
	return nil
}

func (s *addressService) VerifyOwnership(ctx context.Context, customerID string, addressID string) (Address, error) {
	return s.owned(ctx, strings.TrimSpace(customerID), addressID)
}

func (s *addressService) DefaultAddress(ctx context.Context, customerID string, addressType AddressType) (Address, error) {
	if !addressType.Valid() {
		return Address{}, fmt.Errorf("%w: unknown address type %q", ErrAddressInvalidInput, addressType)
	}
	address, err := s.addresses.FindDefault(ctx, strings.TrimSpace(customerID), addressType)
	if err != nil {
		if isRepoNotFound(err) {
			return Address{}, fmt.Errorf("%w: %s", ErrAddressDefaultNotFound, strings.ToLower(string(addressType)))
		}
		return Address{}, s.errs.translate(err)
	}
	return address, nil
}

func (s *addressService) owned(ctx context.Context, customerID string, addressID string) (Address, error) {
	addressID = strings.TrimSpace(addressID)
	if addressID == "" {
		return Address{}, fmt.Errorf("%w: address id is required", ErrAddressInvalidInput)
	}
	address, err := s.addresses.FindByID(ctx, addressID)
	if err != nil {
		return Address{}, s.errs.translate(err)
	}
	if address.Deleted {
		return Address{}, fmt.Errorf("%w: %s", ErrAddressNotFound, addressID)
	}
	if address.CustomerID != customerID {
		s.logger(ctx, "address.access_denied", map[string]any{"addressId": addressID, "customerId": customerID})
		return Address{}, fmt.Errorf("%w: %s", ErrAddressAccessDenied, addressID)
	}
	return address, nil
}

func normalizeAddressInput(input AddressInput) AddressInput {
	input.Type = AddressType(strings.ToUpper(strings.TrimSpace(string(input.Type))))
	input.Line = strings.TrimSpace(input.Line)
	input.City = strings.TrimSpace(input.City)
	input.State = strings.TrimSpace(input.State)
	input.PostalCode = strings.TrimSpace(input.PostalCode)
	input.Country = strings.TrimSpace(input.Country)
	return input
}

func validateAddressInput(customerID string, input AddressInput) error {
	switch {
	case customerID == "":
		return fmt.Errorf("%w: customer id is required", ErrAddressInvalidInput)
	case !input.Type.Valid():
		return fmt.Errorf("%w: unknown address type %q", ErrAddressInvalidInput, input.Type)
	case input.Line == "" || input.City == "" || input.Country == "":
		return fmt.Errorf("%w: address line, city and country are required", ErrAddressInvalidInput)
	}
	return nil
}
