package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
)

var (
	// ErrTokenExpired signals that the provided access token has expired.
	ErrTokenExpired = errors.New("auth: access token expired")
	// ErrTokenInvalid signals that the provided access token is invalid for other reasons.
	ErrTokenInvalid = errors.New("auth: access token invalid")
	// ErrTokenRevoked signals that the token was revoked on logout.
	ErrTokenRevoked = errors.New("auth: access token revoked")
)

// Token is a signed access token handed to a customer after login.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

const purposePasswordReset = "password_reset"

type customerClaims struct {
	CustomerID string `json:"cid,omitempty"`
	Name       string `json:"name,omitempty"`
	// Purpose is empty on access tokens.
	Purpose string `json:"purpose,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 customer access tokens.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer constructs an issuer using the shared signing secret.
func NewTokenIssuer(secret, issuer string, ttl time.Duration, now func() time.Time) (*TokenIssuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: token secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: token ttl must be positive")
	}
	if now == nil {
		now = time.Now
	}
	return &TokenIssuer{
		secret: []byte(secret),
		issuer: strings.TrimSpace(issuer),
		ttl:    ttl,
		now:    now,
	}, nil
}

// Issue signs a token for the customer. The subject is the customer's e-mail.
func (i *TokenIssuer) Issue(identity Identity) (Token, error) {
	if strings.TrimSpace(identity.Email) == "" || strings.TrimSpace(identity.CustomerID) == "" {
		return Token{}, errors.New("auth: identity email and customer id are required")
	}
	now := i.now().UTC()
	expires := now.Add(i.ttl)
	claims := customerClaims{
		CustomerID: identity.CustomerID,
		Name:       identity.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.Email,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return Token{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return Token{Value: signed, ExpiresAt: expires}, nil
}

// Verify parses the token and returns the identity it carries.
func (i *TokenIssuer) Verify(tokenStr string) (*Identity, error) {
	claims, err := i.parse(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.Purpose != "" {
		return nil, fmt.Errorf("%w: not an access token", ErrTokenInvalid)
	}
	if claims.CustomerID == "" {
		return nil, fmt.Errorf("%w: missing customer", ErrTokenInvalid)
	}
	identity := &Identity{
		CustomerID: claims.CustomerID,
		Email:      claims.Subject,
		Name:       claims.Name,
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return identity, nil
}

// IssuePasswordReset signs a single-purpose token for the password reset link. It cannot be
// used as an access token.
func (i *TokenIssuer) IssuePasswordReset(email string, ttl time.Duration) (Token, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return Token{}, errors.New("auth: reset token email is required")
	}
	if ttl <= 0 {
		return Token{}, errors.New("auth: reset token ttl must be positive")
	}
	now := i.now().UTC()
	expires := now.Add(ttl)
	claims := customerClaims{
		Purpose: purposePasswordReset,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return Token{}, fmt.Errorf("auth: sign reset token: %w", err)
	}
	return Token{Value: signed, ExpiresAt: expires}, nil
}

// VerifyPasswordReset returns the e-mail a reset token was issued for.
func (i *TokenIssuer) VerifyPasswordReset(tokenStr string) (string, error) {
	claims, err := i.parse(tokenStr)
	if err != nil {
		return "", err
	}
	if claims.Purpose != purposePasswordReset {
		return "", fmt.Errorf("%w: not a password reset token", ErrTokenInvalid)
	}
	return claims.Subject, nil
}

func (i *TokenIssuer) parse(tokenStr string) (*customerClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	claims := &customerClaims{}
	if _, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	now := i.now()
	if !claims.VerifyExpiresAt(now, true) {
		return nil, ErrTokenExpired
	}
	if !claims.VerifyIssuedAt(now, false) {
		return nil, fmt.Errorf("%w: issued in the future", ErrTokenInvalid)
	}
	if i.issuer != "" && !claims.VerifyIssuer(i.issuer, true) {
		return nil, fmt.Errorf("%w: issuer mismatch", ErrTokenInvalid)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return claims, nil
}
