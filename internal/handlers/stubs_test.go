package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/Bashir-Janbalat/store-app-be/internal/platform/auth"
	"github.com/Bashir-Janbalat/store-app-be/internal/services"
)

var errStubNotImplemented = errors.New("stub: not implemented")

type stubVerifier struct{}

// Verify accepts "token-<customerID>".
func (stubVerifier) Verify(token string) (*auth.Identity, error) {
	id, ok := strings.CutPrefix(token, "token-")
	if !ok || id == "" {
		return nil, auth.ErrTokenInvalid
	}
	return &auth.Identity{CustomerID: id, Email: id + "@example.com", Name: id}, nil
}

func newTestAuthenticator() *auth.Authenticator {
	return auth.NewAuthenticator(stubVerifier{}, auth.WithSessionIDGenerator(func() string { return "sess-new" }))
}

func serve(t *testing.T, mount string, routes RouteRegistrar, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	router := chi.NewRouter()
	router.Route(mount, routes)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func withBearer(req *http.Request, customerID string) *http.Request {
	req.Header.Set("Authorization", "Bearer token-"+customerID)
	return req
}

type stubCartService struct {
	getFunc    func(ctx context.Context, caller services.Caller) (services.CartView, error)
	addFunc    func(ctx context.Context, caller services.Caller, productID int64, price decimal.Decimal, qty int) error
	updateFunc func(ctx context.Context, caller services.Caller, productID int64, qty int) error
	removeFunc func(ctx context.Context, caller services.Caller, productID int64) error
	clearFunc  func(ctx context.Context, caller services.Caller) error
}

func (s *stubCartService) GetCart(ctx context.Context, caller services.Caller) (services.CartView, error) {
	if s.getFunc == nil {
		return services.CartView{}, nil
	}
	return s.getFunc(ctx, caller)
}

func (s *stubCartService) AddToCart(ctx context.Context, caller services.Caller, productID int64, price decimal.Decimal, qty int) error {
	if s.addFunc == nil {
		return errStubNotImplemented
	}
	return s.addFunc(ctx, caller, productID, price, qty)
}

func (s *stubCartService) UpdateCartItemQuantity(ctx context.Context, caller services.Caller, productID int64, qty int) error {
	if s.updateFunc == nil {
		return errStubNotImplemented
	}
	return s.updateFunc(ctx, caller, productID, qty)
}

func (s *stubCartService) RemoveFromCart(ctx context.Context, caller services.Caller, productID int64) error {
	if s.removeFunc == nil {
		return errStubNotImplemented
	}
	return s.removeFunc(ctx, caller, productID)
}

func (s *stubCartService) ClearCart(ctx context.Context, caller services.Caller) error {
	if s.clearFunc == nil {
		return errStubNotImplemented
	}
	return s.clearFunc(ctx, caller)
}

func (s *stubCartService) MergeCartOnLogin(context.Context, string, string) error {
	return errStubNotImplemented
}

func (s *stubCartService) UpdateCartStatus(context.Context, string, services.CartStatus) error {
	return errStubNotImplemented
}

func (s *stubCartService) DeleteAnonymousCartsBefore(context.Context, time.Time) (int, error) {
	return 0, errStubNotImplemented
}

type stubOrderService struct {
	createFunc func(ctx context.Context, customerID string, billing *string) (services.OrderCreated, error)
	cancelFunc func(ctx context.Context, orderID, customerID string) (services.Order, error)
	listFunc   func(ctx context.Context, customerID string, status services.OrderStatus) ([]services.OrderView, error)
}

func (s *stubOrderService) CreateOrder(ctx context.Context, customerID string, billing *string) (services.OrderCreated, error) {
	if s.createFunc == nil {
		return services.OrderCreated{}, errStubNotImplemented
	}
	return s.createFunc(ctx, customerID, billing)
}

func (s *stubOrderService) UpdateOrderStatus(context.Context, string, services.OrderStatus, string) (services.Order, error) {
	return services.Order{}, errStubNotImplemented
}

func (s *stubOrderService) CancelOrder(ctx context.Context, orderID, customerID string) (services.Order, error) {
	if s.cancelFunc == nil {
		return services.Order{}, errStubNotImplemented
	}
	return s.cancelFunc(ctx, orderID, customerID)
}

func (s *stubOrderService) GetOrder(context.Context, string, string) (services.Order, error) {
	return services.Order{}, errStubNotImplemented
}

func (s *stubOrderService) ListOrders(ctx context.Context, customerID string, status services.OrderStatus) ([]services.OrderView, error) {
	if s.listFunc == nil {
		return nil, errStubNotImplemented
	}
	return s.listFunc(ctx, customerID, status)
}

func (s *stubOrderService) SendOrderConfirmation(context.Context, string, string) error {
	return errStubNotImplemented
}

func (s *stubOrderService) HasPurchased(context.Context, string, int64, services.OrderStatus) (bool, error) {
	return false, errStubNotImplemented
}

type stubAuthService struct {
	signupFunc func(ctx context.Context, email, name, password string) (services.Customer, error)
	loginFunc  func(ctx context.Context, email, password, sessionID string) (services.LoginResult, error)
	meFunc     func(ctx context.Context, customerID string) (services.Customer, error)
	logoutFunc func(ctx context.Context, token string) error
	resetLink  func(ctx context.Context, email string) error
	resetFunc  func(ctx context.Context, token, newPassword string) error
}

func (s *stubAuthService) Signup(ctx context.Context, email, name, password string) (services.Customer, error) {
	return s.signupFunc(ctx, email, name, password)
}

func (s *stubAuthService) Login(ctx context.Context, email, password, sessionID string) (services.LoginResult, error) {
	return s.loginFunc(ctx, email, password, sessionID)
}

func (s *stubAuthService) Me(ctx context.Context, customerID string) (services.Customer, error) {
	return s.meFunc(ctx, customerID)
}

func (s *stubAuthService) Logout(ctx context.Context, token string) error {
	if s.logoutFunc == nil {
		return nil
	}
	return s.logoutFunc(ctx, token)
}

func (s *stubAuthService) RequestPasswordReset(ctx context.Context, email string) error {
	return s.resetLink(ctx, email)
}

func (s *stubAuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	return s.resetFunc(ctx, token, newPassword)
}

type stubWebhookService struct {
	handleFunc func(ctx context.Context, payload []byte, signature string) error
}

func (s *stubWebhookService) HandleStripeEvent(ctx context.Context, payload []byte, signature string) error {
	return s.handleFunc(ctx, payload, signature)
}

type stubReviewService struct {
	addFunc  func(ctx context.Context, customerID string, productID int64, rating float64, body string) (services.Review, error)
	listFunc func(ctx context.Context, productID int64) ([]services.Review, error)
}

func (s *stubReviewService) AddReview(ctx context.Context, customerID string, productID int64, rating float64, body string) (services.Review, error) {
	return s.addFunc(ctx, customerID, productID, rating, body)
}

func (s *stubReviewService) ListReviews(ctx context.Context, productID int64) ([]services.Review, error) {
	return s.listFunc(ctx, productID)
}

type stubCleanupService struct {
	result services.CleanupResult
	err    error
}

func (s *stubCleanupService) SweepAnonymous(context.Context) (services.CleanupResult, error) {
	return s.result, s.err
}
