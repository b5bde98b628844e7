package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/api/iterator"
	"gorm.io/gorm"

	pfirestore "github.com/Bashir-Janbalat/store-app-be/internal/platform/firestore"
	"github.com/Bashir-Janbalat/store-app-be/internal/platform/postgres"
	"github.com/Bashir-Janbalat/store-app-be/internal/repositories"
	firestorerepo "github.com/Bashir-Janbalat/store-app-be/internal/repositories/firestore"
	postgresrepo "github.com/Bashir-Janbalat/store-app-be/internal/repositories/postgres"
)

const (
	firestoreProbeTimeout = 2 * time.Second
	postgresProbeTimeout  = 2 * time.Second
	firestoreProbePath    = "health"
)

// storeRegistry keeps documents in Firestore and reads the catalog from Postgres.
type storeRegistry struct {
	provider *pfirestore.Provider
	db       *gorm.DB

	customers *firestorerepo.CustomerRepository
	resets    *firestorerepo.PasswordResetRepository
	carts     *firestorerepo.CartRepository
	wishlists *firestorerepo.WishlistRepository
	orders    *firestorerepo.OrderRepository
	payments  *firestorerepo.PaymentRepository
	addresses *firestorerepo.AddressRepository
	reviews   *firestorerepo.ReviewRepository
	catalog   *postgresrepo.CatalogRepository
	health    repositories.HealthRepository
}

var _ repositories.Registry = (*storeRegistry)(nil)

// NewRegistry builds the production repository registry. The registry owns both clients and
// releases them on Close.
func NewRegistry(provider *pfirestore.Provider, db *gorm.DB) (repositories.Registry, error) {
	if provider == nil {
		return nil, errors.New("registry: firestore provider is required")
	}
	if db == nil {
		return nil, errors.New("registry: catalog database is required")
	}

	reg := &storeRegistry{provider: provider, db: db}
	var err error
	if reg.customers, err = firestorerepo.NewCustomerRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: customers: %w", err)
	}
	if reg.resets, err = firestorerepo.NewPasswordResetRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: password resets: %w", err)
	}
	if reg.carts, err = firestorerepo.NewCartRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: carts: %w", err)
	}
	if reg.wishlists, err = firestorerepo.NewWishlistRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: wishlists: %w", err)
	}
	if reg.orders, err = firestorerepo.NewOrderRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: orders: %w", err)
	}
	if reg.payments, err = firestorerepo.NewPaymentRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: payments: %w", err)
	}
	if reg.addresses, err = firestorerepo.NewAddressRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: addresses: %w", err)
	}
	if reg.reviews, err = firestorerepo.NewReviewRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: reviews: %w", err)
	}
	if reg.catalog, err = postgresrepo.NewCatalogRepository(db); err != nil {
		return nil, fmt.Errorf("registry: catalog: %w", err)
	}

	reg.health, err = repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
		{Name: "firestore", Timeout: firestoreProbeTimeout, Check: reg.pingFirestore},
		{Name: "postgres", Timeout: postgresProbeTimeout, Check: func(ctx context.Context) error {
			return postgres.Ping(ctx, db)
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("registry: health: %w", err)
	}
	return reg, nil
}

func (r *storeRegistry) pingFirestore(ctx context.Context) error {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	iter := client.Collection(firestoreProbePath).Limit(1).Documents(ctx)
	defer iter.Stop()
	if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return err
	}
	return nil
}

func (r *storeRegistry) Close(ctx context.Context) error {
	return errors.Join(r.provider.Close(ctx), postgres.Close(r.db))
}

func (r *storeRegistry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.provider.RunInTx(ctx, fn)
}

func (r *storeRegistry) Customers() repositories.CustomerRepository { return r.customers }
func (r *storeRegistry) Carts() repositories.CartRepository         { return r.carts }
func (r *storeRegistry) Wishlists() repositories.WishlistRepository { return r.wishlists }
func (r *storeRegistry) Orders() repositories.OrderRepository       { return r.orders }
func (r *storeRegistry) Payments() repositories.PaymentRepository   { return r.payments }
func (r *storeRegistry) Addresses() repositories.AddressRepository  { return r.addresses }
func (r *storeRegistry) Reviews() repositories.ReviewRepository     { return r.reviews }
func (r *storeRegistry) Catalog() repositories.CatalogRepository    { return r.catalog }
func (r *storeRegistry) Health() repositories.HealthRepository      { return r.health }

func (r *storeRegistry) PasswordResets() repositories.PasswordResetRepository {
	return r.resets
}
