package postgres

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	domain "github.com/Bashir-Janbalat/store-app-be/internal/domain"
	"github.com/Bashir-Janbalat/store-app-be/internal/repositories"
)

const productInfoQuery = `
SELECT p.id AS product_id,
       p.name,
       p.description,
       p.selling_price AS price,
       (SELECT i.image_url FROM images i WHERE i.product_id = p.id ORDER BY i.id ASC LIMIT 1) AS image_url,
       (SELECT COALESCE(SUM(s.quantity), 0) FROM stock s WHERE s.product_id = p.id) AS total_stock
FROM products p
WHERE p.id IN ?`

// CatalogRepository reads products and stock rows owned by the catalog service.
type CatalogRepository struct {
	db *gorm.DB
}

// NewCatalogRepository constructs a gorm backed catalog repository.
func NewCatalogRepository(db *gorm.DB) (*CatalogRepository, error) {
	if db == nil {
		return nil, errors.New("catalog repository requires gorm db")
	}
	return &CatalogRepository{db: db}, nil
}

func (r *CatalogRepository) AvailableStock(ctx context.Context, productID int64) (int, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Table("stock").
		Select("COALESCE(SUM(quantity), 0)").
		Where("product_id = ?", productID).
		Scan(&total).Error
	if err != nil {
		return 0, wrapError("catalog.available_stock", err)
	}
	if total < 0 {
		return 0, nil
	}
	return int(total), nil
}

type productInfoRow struct {
	ProductID   int64
	Name        string
	Description string
	Price       decimal.Decimal
	ImageURL    *string
	TotalStock  int64
}

func (r *CatalogRepository) ProductInfos(ctx context.Context, productIDs []int64) (map[int64]domain.ProductInfo, error) {
	result := make(map[int64]domain.ProductInfo, len(productIDs))
	if len(productIDs) == 0 {
		return result, nil
	}

	var rows []productInfoRow
	if err := r.db.WithContext(ctx).Raw(productInfoQuery, productIDs).Scan(&rows).Error; err != nil {
		return nil, wrapError("catalog.product_infos", err)
	}
	for _, row := range rows {
		info := domain.ProductInfo{
			ProductID:   row.ProductID,
			Name:        row.Name,
			Description: row.Description,
			Price:       row.Price,
			TotalStock:  int(row.TotalStock),
		}
		if row.ImageURL != nil {
			info.ImageURL = *row.ImageURL
		}
		result[row.ProductID] = info
	}
	return result, nil
}

func (r *CatalogRepository) ProductExists(ctx context.Context, productID int64) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Table("products").Where("id = ?", productID).Count(&count).Error; err != nil {
		return false, wrapError("catalog.product_exists", err)
	}
	return count > 0, nil
}

var _ repositories.CatalogRepository = (*CatalogRepository)(nil)
