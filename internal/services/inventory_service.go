package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/Bashir-Janbalat/store-app-be/internal/repositories"
)

var (
	// ErrInventoryInvalidInput indicates a malformed product id.
	ErrInventoryInvalidInput = newKindError(ErrInvalidArgument, "inventory service: invalid input")
	// ErrInventoryUnavailable indicates the catalog database could not be queried.
	ErrInventoryUnavailable = newKindError(ErrUnavailable, "inventory service: unavailable")
)

// InventoryServiceDeps wires the catalog repository.
type InventoryServiceDeps struct {
	Catalog repositories.CatalogRepository
}

type inventoryService struct {
	catalog repositories.CatalogRepository
	errs    repoErrorMapping
}

// NewInventoryService constructs the catalog backed inventory service.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Catalog == nil {
		return nil, errors.New("inventory service: catalog repository is required")
	}
	return &inventoryService{
		catalog: deps.Catalog,
		errs:    repoErrorMapping{unavailable: ErrInventoryUnavailable},
	}, nil
}

// AvailableStock returns the summed stock of the product; unknown products have zero stock.
func (s *inventoryService) AvailableStock(ctx context.Context, productID int64) (int, error) {
	if productID <= 0 {
		return 0, fmt.Errorf("%w: product id must be positive", ErrInventoryInvalidInput)
	}
	stock, err := s.catalog.AvailableStock(ctx, productID)
	if err != nil {
		return 0, s.errs.translate(err)
	}
	if stock < 0 {
		stock = 0
	}
	return stock, nil
}

func (s *inventoryService) ProductInfos(ctx context.Context, productIDs []int64) (map[int64]ProductInfo, error) {
	unique := make([]int64, 0, len(productIDs))
	seen := make(map[int64]struct{}, len(productIDs))
	for _, id := range productIDs {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		return map[int64]ProductInfo{}, nil
	}
	infos, err := s.catalog.ProductInfos(ctx, unique)
	if err != nil {
		return nil, s.errs.translate(err)
	}
	return infos, nil
}

func (s *inventoryService) ProductExists(ctx context.Context, productID int64) (bool, error) {
	if productID <= 0 {
		return false, nil
	}
	exists, err := s.catalog.ProductExists(ctx, productID)
	if err != nil {
		return false, s.errs.translate(err)
	}
	return exists, nil
}
