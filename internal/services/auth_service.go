package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	domain "github.com/Bashir-Janbalat/store-app-be/internal/domain"
	"github.com/Bashir-Janbalat/store-app-be/internal/notifications"
	"github.com/Bashir-Janbalat/store-app-be/internal/platform/auth"
	"github.com/Bashir-Janbalat/store-app-be/internal/repositories"
)

const minPasswordLength = 8

var (
	// ErrAuthInvalidInput indicates malformed signup or login input.
	ErrAuthInvalidInput = newKindError(ErrInvalidArgument, "auth service: invalid input")
	// ErrAuthEmailTaken indicates the email is already registered.
	ErrAuthEmailTaken = newKindError(ErrAlreadyExists, "auth service: email already registered")
	// ErrAuthInvalidCredentials indicates an unknown email or a wrong password.
	ErrAuthInvalidCredentials = newKindError(ErrUnauthenticated, "auth service: invalid credentials")
	// ErrAuthCustomerNotFound indicates the account does not exist.
	ErrAuthCustomerNotFound = newKindError(ErrNotFound, "auth service: customer not found")
	// ErrAuthResetTokenInvalid indicates an unknown, used or expired password reset token.
	ErrAuthResetTokenInvalid = newKindError(ErrInvalidArgument, "auth service: invalid or expired reset token")
	// ErrAuthUnavailable indicates backend failures.
	ErrAuthUnavailable = newKindError(ErrUnavailable, "auth service: unavailable")
)

const defaultResetTTL = 15 * time.Minute

// TokenIssuer signs and verifies customer access and password reset tokens.
type TokenIssuer interface {
	Issue(identity auth.Identity) (auth.Token, error)
	Verify(token string) (*auth.Identity, error)
	IssuePasswordReset(email string, ttl time.Duration) (auth.Token, error)
	VerifyPasswordReset(token string) (string, error)
}

// AuthServiceDeps wires account collaborators.
type AuthServiceDeps struct {
	Customers repositories.CustomerRepository
	Tokens    TokenIssuer
	// Carts and Wishlists receive the guest session on login. Optional.
	Carts       CartService
	Wishlists   WishlistService
	// Revocations receives access tokens on logout. Optional.
	Revocations auth.RevocationList
	// PasswordResets, Mailer and ResetBaseURL enable the password reset flow.
	PasswordResets repositories.PasswordResetRepository
	Mailer         notifications.Mailer
	ResetBaseURL   string
	ResetTTL       time.Duration
	UnitOfWork     repositories.UnitOfWork
	BcryptCost     int
	Clock          func() time.Time
	IDGenerator    func() string
	Logger         Logger
}

type authService struct {
	customers    repositories.CustomerRepository
	tokens       TokenIssuer
	carts        CartService
	wishlists    WishlistService
	revocations  auth.RevocationList
	resets       repositories.PasswordResetRepository
	mailer       notifications.Mailer
	resetBaseURL string
	resetTTL     time.Duration
	uow          repositories.UnitOfWork
	bcryptCost   int
	now          func() time.Time
	newID        func() string
	logger       Logger
	errs         repoErrorMapping
}

// NewAuthService constructs an AuthService.
func NewAuthService(deps AuthServiceDeps) (AuthService, error) {
	if deps.Customers == nil {
		return nil, errors.New("auth service: customer repository is required")
	}
	if deps.Tokens == nil {
		return nil, errors.New("auth service: token issuer is required")
	}
	cost := deps.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("auth service: bcrypt cost %d out of range", cost)
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = defaultIDGenerator
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	resetTTL := deps.ResetTTL
	if resetTTL <= 0 {
		resetTTL = defaultResetTTL
	}
	return &authService{
		customers:    deps.Customers,
		tokens:       deps.Tokens,
		carts:        deps.Carts,
		wishlists:    deps.Wishlists,
		revocations:  deps.Revocations,
		resets:       deps.PasswordResets,
		mailer:       deps.Mailer,
		resetBaseURL: strings.TrimSpace(deps.ResetBaseURL),
		resetTTL:     resetTTL,
		uow:          deps.UnitOfWork,
		bcryptCost:   cost,
		now:          utcClock(deps.Clock),
		newID:        idGen,
		logger:       logger,
		errs: repoErrorMapping{
			notFound:    ErrAuthCustomerNotFound,
			conflict:    ErrAuthEmailTaken,
			unavailable: ErrAuthUnavailable,
		},
	}, nil
}

func (s *authService) Signup(ctx context.Context, email string, name string, password string) (Customer, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	name = strings.TrimSpace(name)
	if _, err := mail.ParseAddress(email); err != nil {
		return Customer{}, fmt.Errorf("%w: email is invalid", ErrAuthInvalidInput)
	}
	if name == "" {
		return Customer{}, fmt.Errorf("%w: name is required", ErrAuthInvalidInput)
	}
	if len(password) < minPasswordLength {
		return Customer{}, fmt.Errorf("%w: password must be at least %d characters", ErrAuthInvalidInput, minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return Customer{}, fmt.Errorf("%w: %v", ErrAuthInvalidInput, err)
	}
	now := s.now()
	customer := Customer{
		ID:           s.newID(),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.customers.Insert(ctx, customer); err != nil {
		return Customer{}, s.errs.translate(err)
	}
	s.logger(ctx, "auth.signup", map[string]any{"customerId": customer.ID})
	return customer, nil
}

// Login checks the password, issues an access token and merges the guest session when given.
func (s *authService) Login(ctx context.Context, email string, password string, sessionID string) (LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return LoginResult{}, ErrAuthInvalidCredentials
	}
	customer, err := s.customers.FindByEmail(ctx, email)
	if err != nil {
		if isRepoNotFound(err) {
			return LoginResult{}, ErrAuthInvalidCredentials
		}
		return LoginResult{}, s.errs.translate(err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(customer.PasswordHash), []byte(password)); err != nil {
		s.logger(ctx, "auth.login.rejected", map[string]any{"customerId": customer.ID})
		return LoginResult{}, ErrAuthInvalidCredentials
	}

	token, err := s.tokens.Issue(auth.Identity{CustomerID: customer.ID, Email: customer.Email, Name: customer.Name})
	if err != nil {
		return LoginResult{}, fmt.Errorf("%w: issue token: %v", ErrAuthUnavailable, err)
	}

	if sid := strings.TrimSpace(sessionID); sid != "" {
		if s.carts != nil {
			if err := s.carts.MergeCartOnLogin(ctx, customer.Email, sid); err != nil {
				return LoginResult{}, err
			}
		}
		if s.wishlists != nil {
			if err := s.wishlists.MergeWishlistOnLogin(ctx, customer.Email, sid); err != nil {
				return LoginResult{}, err
			}
		}
	}

	s.logger(ctx, "auth.login", map[string]any{"customerId": customer.ID, "merged": strings.TrimSpace(sessionID) != ""})
	return LoginResult{Token: token.Value, ExpiresAt: token.ExpiresAt, Customer: customer}, nil
}

// Me returns the account behind an authenticated request.
func (s *authService) Me(ctx context.Context, customerID string) (Customer, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return Customer{}, ErrAuthCustomerNotFound
	}
	customer, err := s.customers.FindByID(ctx, customerID)
	if err != nil {
		return Customer{}, s.errs.translate(err)
	}
	return customer, nil
}

// Logout revokes the access token for the rest of its lifetime. A missing or already invalid
// token is not an error.
func (s *authService) Logout(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		s.logger(ctx, "auth.logout.no_token", nil)
		return nil
	}
	identity, err := s.tokens.Verify(token)
	if err != nil {
		s.logger(ctx, "auth.logout.invalid_token", map[string]any{"error": err.Error()})
		return nil
	}
	if s.revocations != nil {
		s.revocations.Revoke(token, identity.ExpiresAt)
	}
	s.logger(ctx, "auth.logout", map[string]any{"customerId": identity.CustomerID})
	return nil
}

// RequestPasswordReset stores a single-use reset token and mails the reset link. Mail delivery
// failures are logged, not returned.
func (s *authService) RequestPasswordReset(ctx context.Context, email string) error {
	if s.resets == nil || s.mailer == nil {
		return fmt.Errorf("%w: password reset not configured", ErrAuthUnavailable)
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("%w: email is invalid", ErrAuthInvalidInput)
	}
	customer, err := s.customers.FindByEmail(ctx, email)
	if err != nil {
		return s.errs.translate(err)
	}

	token, err := s.tokens.IssuePasswordReset(customer.Email, s.resetTTL)
	if err != nil {
		return fmt.Errorf("%w: issue reset token: %v", ErrAuthUnavailable, err)
	}
	record := domain.PasswordResetToken{
		ID:         auth.TokenDigest(token.Value),
		CustomerID: customer.ID,
		Email:      customer.Email,
		ExpiresAt:  token.ExpiresAt,
		CreatedAt:  s.now(),
	}
	if err := s.resets.Insert(ctx, record); err != nil {
		return s.errs.translate(err)
	}

	message, err := notifications.RenderPasswordReset(notifications.PasswordReset{
		To:           customer.Email,
		CustomerName: customer.Name,
		BaseURL:      s.resetBaseURL,
		Token:        token.Value,
		ValidFor:     s.resetTTL.String(),
	})
	if err != nil {
		return fmt.Errorf("%w: render reset mail: %v", ErrAuthUnavailable, err)
	}
	if err := s.mailer.Send(ctx, message); err != nil {
		s.logger(ctx, "auth.password_reset.mail_failed", map[string]any{"customerId": customer.ID, "error": err.Error()})
		return nil
	}
	s.logger(ctx, "auth.password_reset.requested", map[string]any{"customerId": customer.ID})
	return nil
}

// ResetPassword sets a new password for the account the reset token was issued to and marks
// the token used. Both writes commit together.
func (s *authService) ResetPassword(ctx context.Context, token string, newPassword string) error {
	if s.resets == nil {
		return fmt.Errorf("%w: password reset not configured", ErrAuthUnavailable)
	}
	if len(newPassword) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrAuthInvalidInput, minPasswordLength)
	}
	token = strings.TrimSpace(token)
	email, err := s.tokens.VerifyPasswordReset(token)
	if err != nil {
		return ErrAuthResetTokenInvalid
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthInvalidInput, err)
	}

	var customerID string
	err = s.runInTx(ctx, func(ctx context.Context) error {
		record, err := s.resets.FindByID(ctx, auth.TokenDigest(token))
		if err != nil {
			if isRepoNotFound(err) {
				return ErrAuthResetTokenInvalid
			}
			return s.errs.translate(err)
		}
		if record.Used || !strings.EqualFold(record.Email, email) || !record.ExpiresAt.After(s.now()) {
			return ErrAuthResetTokenInvalid
		}
		customer, err := s.customers.FindByEmail(ctx, email)
		if err != nil {
			return s.errs.translate(err)
		}
		customerID = customer.ID
		now := s.now()
		if err := s.customers.UpdatePassword(ctx, customer.ID, string(hash), now); err != nil {
			return s.errs.translate(err)
		}
		return s.errs.translate(s.resets.MarkUsed(ctx, record.ID, now))
	})
	if err != nil {
		return err
	}
	s.logger(ctx, "auth.password_reset", map[string]any{"customerId": customerID})
	return nil
}

func (s *authService) runInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.uow == nil {
		return fn(ctx)
	}
	return s.uow.RunInTx(ctx, fn)
}
