package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Bashir-Janbalat/store-app-be/internal/notifications"
	"github.com/Bashir-Janbalat/store-app-be/internal/payments"
	"github.com/Bashir-Janbalat/store-app-be/internal/platform/auth"
	"github.com/Bashir-Janbalat/store-app-be/internal/platform/cache"
	"github.com/Bashir-Janbalat/store-app-be/internal/platform/config"
	"github.com/Bashir-Janbalat/store-app-be/internal/platform/idempotency"
	"github.com/Bashir-Janbalat/store-app-be/internal/repositories"
	"github.com/Bashir-Janbalat/store-app-be/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Inventory services.InventoryService
	Cart      services.CartService
	Wishlist  services.WishlistService
	Orders    services.OrderService
	Payments  services.PaymentService
	Checkout  services.CheckoutService
	Webhooks  services.WebhookService
	Addresses services.AddressService
	Reviews   services.ReviewService
	Auth      services.AuthService
	Cleanup   services.CleanupService
}

// PaymentGateway creates checkout sessions and verifies their webhooks.
type PaymentGateway interface {
	payments.Provider
	payments.WebhookVerifier
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
	Tokens       *auth.TokenIssuer
	Revocations  *auth.MemoryRevocations
	Idempotency  idempotency.Store
}

type containerOptions struct {
	gateway     PaymentGateway
	events      services.OrderEventPublisher
	mailer      notifications.Mailer
	idempotency idempotency.Store
	logger      services.Logger
	clock       func() time.Time
	bcryptCost  int
}

// Option customises NewContainer.
type Option func(*containerOptions)

// WithPaymentGateway replaces the Stripe gateway built from config.
func WithPaymentGateway(gateway PaymentGateway) Option {
	return func(o *containerOptions) { o.gateway = gateway }
}

// WithOrderEvents publishes order lifecycle events.
func WithOrderEvents(publisher services.OrderEventPublisher) Option {
	return func(o *containerOptions) { o.events = publisher }
}

// WithMailer delivers order confirmations and password reset links.
func WithMailer(mailer notifications.Mailer) Option {
	return func(o *containerOptions) { o.mailer = mailer }
}

// WithIdempotencyStore sets the store shared by the HTTP middleware and the webhook deduper.
func WithIdempotencyStore(store idempotency.Store) Option {
	return func(o *containerOptions) { o.idempotency = store }
}

// WithLogger bridges service events to the application logger.
func WithLogger(logger services.Logger) Option {
	return func(o *containerOptions) { o.logger = logger }
}

func WithClock(clock func() time.Time) Option {
	return func(o *containerOptions) { o.clock = clock }
}

// WithBcryptCost overrides the configured cost, mostly so tests stay fast.
func WithBcryptCost(cost int) Option {
	return func(o *containerOptions) { o.bcryptCost = cost }
}

// NewContainer constructs the runtime dependencies. Production wiring passes the Firestore
// registry from NewRegistry; tests can supply in-memory registries.
func NewContainer(_ context.Context, cfg config.Config, reg repositories.Registry, opts ...Option) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	o := containerOptions{clock: time.Now, bcryptCost: cfg.Auth.BcryptCost}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.idempotency == nil {
		o.idempotency = idempotency.NewMemoryStore()
	}

	tokens, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL, o.clock)
	if err != nil {
		return nil, fmt.Errorf("build token issuer: %w", err)
	}

	if o.gateway == nil {
		stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey:        cfg.PSP.StripeAPIKey,
			WebhookSecret: cfg.PSP.StripeWebhookSecret,
			Logger:        payments.StripeLogger(o.logger),
			Clock:         o.clock,
		})
		if err != nil {
			return nil, fmt.Errorf("build stripe provider: %w", err)
		}
		o.gateway = stripeProvider
	}

	revocations := auth.NewMemoryRevocations(cfg.Cache.Size, cfg.Auth.TokenTTL, o.clock)

	svc, err := buildServices(reg, cfg, tokens, revocations, o)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
		Tokens:       tokens,
		Revocations:  revocations,
		Idempotency:  o.idempotency,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(reg repositories.Registry, cfg config.Config, tokens *auth.TokenIssuer, revocations auth.RevocationList, o containerOptions) (Services, error) {
	var svc Services
	var err error

	svc.Inventory, err = services.NewInventoryService(services.InventoryServiceDeps{Catalog: reg.Catalog()})
	if err != nil {
		return Services{}, fmt.Errorf("build inventory service: %w", err)
	}

	svc.Cart, err = services.NewCartService(services.CartServiceDeps{
		Carts:            reg.Carts(),
		Customers:        reg.Customers(),
		Inventory:        svc.Inventory,
		UnitOfWork:       reg,
		Cache:            cache.New[services.CartView]("carts", cfg.Cache.Size, cfg.Cache.TTL),
		TrustClientPrice: cfg.Pricing.TrustClientPrice,
		Clock:            o.clock,
		Logger:           o.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}

	svc.Wishlist, err = services.NewWishlistService(services.WishlistServiceDeps{
		Wishlists:  reg.Wishlists(),
		Customers:  reg.Customers(),
		Inventory:  svc.Inventory,
		UnitOfWork: reg,
		Cache:      cache.New[services.WishlistView]("wishlists", cfg.Cache.Size, cfg.Cache.TTL),
		Clock:      o.clock,
		Logger:     o.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build wishlist service: %w", err)
	}

	svc.Orders, err = services.NewOrderService(services.OrderServiceDeps{
		Orders:     reg.Orders(),
		Customers:  reg.Customers(),
		Addresses:  reg.Addresses(),
		Carts:      reg.Carts(),
		Inventory:  svc.Inventory,
		UnitOfWork: reg,
		Cache:      cache.New[[]services.OrderView]("orders", cfg.Cache.Size, cfg.Cache.TTL),
		Events:     o.events,
		Mailer:     o.mailer,
		Currency:   cfg.PSP.Currency,
		Clock:      o.clock,
		Logger:     o.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}

	svc.Payments, err = services.NewPaymentService(services.PaymentServiceDeps{
		Payments: reg.Payments(),
		Clock:    o.clock,
		Logger:   o.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build payment service: %w", err)
	}

	svc.Checkout, err = services.NewCheckoutService(services.CheckoutServiceDeps{
		Orders:     reg.Orders(),
		Payments:   svc.Payments,
		Provider:   o.gateway,
		SuccessURL: cfg.PSP.SuccessURL,
		CancelURL:  cfg.PSP.CancelURL,
		Currency:   cfg.PSP.Currency,
		Clock:      o.clock,
		Logger:     o.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}

	handlerDeps := services.CheckoutEventHandlerDeps{
		Orders:   svc.Orders,
		Payments: svc.Payments,
		Carts:    svc.Cart,
		Logger:   o.logger,
	}
	completed, err := services.NewCheckoutCompletedHandler(handlerDeps)
	if err != nil {
		return Services{}, fmt.Errorf("build checkout completed handler: %w", err)
	}
	expired, err := services.NewCheckoutExpiredHandler(handlerDeps)
	if err != nil {
		return Services{}, fmt.Errorf("build checkout expired handler: %w", err)
	}
	svc.Webhooks, err = services.NewWebhookService(services.WebhookServiceDeps{
		Verifier: o.gateway,
		Deduper:  idempotency.NewDeduper(o.idempotency, cfg.Idempotency.WebhookTTL, o.clock),
		Handlers: []services.WebhookEventHandler{completed, expired},
		Logger:   o.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build webhook service: %w", err)
	}

	svc.Addresses, err = services.NewAddressService(services.AddressServiceDeps{
		Addresses:  reg.Addresses(),
		Customers:  reg.Customers(),
		UnitOfWork: reg,
		Cache:      cache.New[[]services.Address]("addresses", cfg.Cache.Size, cfg.Cache.TTL),
		Clock:      o.clock,
		Logger:     o.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build address service: %w", err)
	}

	svc.Reviews, err = services.NewReviewService(services.ReviewServiceDeps{
		Reviews:   reg.Reviews(),
		Customers: reg.Customers(),
		Inventory: svc.Inventory,
		Orders:    svc.Orders,
		Cache:     cache.New[[]services.Review]("reviews", cfg.Cache.Size, cfg.Cache.TTL),
		Clock:     o.clock,
		Logger:    o.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build review service: %w", err)
	}

	svc.Auth, err = services.NewAuthService(services.AuthServiceDeps{
		Customers:      reg.Customers(),
		Tokens:         tokens,
		Carts:          svc.Cart,
		Wishlists:      svc.Wishlist,
		Revocations:    revocations,
		PasswordResets: reg.PasswordResets(),
		Mailer:         o.mailer,
		ResetBaseURL:   cfg.Auth.ResetLinkBaseURL,
		ResetTTL:       cfg.Auth.ResetTokenTTL,
		UnitOfWork:     reg,
		BcryptCost:     o.bcryptCost,
		Clock:          o.clock,
		Logger:         o.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build auth service: %w", err)
	}

	svc.Cleanup, err = services.NewCleanupService(services.CleanupServiceDeps{
		Carts:     svc.Cart,
		Wishlists: svc.Wishlist,
		Retention: cfg.Cleanup.Retention,
		Clock:     o.clock,
		Logger:    o.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cleanup service: %w", err)
	}

	return svc, nil
}
