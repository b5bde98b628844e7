package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/Bashir-Janbalat/store-app-be/internal/platform/cache"
)

// RevocationList remembers logged-out access tokens until they expire on their own.
type RevocationList interface {
	Revoke(token string, expiresAt time.Time)
	IsRevoked(token string) bool
}

// MemoryRevocations keeps revoked token digests in a bounded expiring cache. Entries are held
// for at most the cache ttl, which should be at least the access token ttl.
type MemoryRevocations struct {
	entries *cache.Cache[time.Time]
	now     func() time.Time
}

// NewMemoryRevocations constructs an in-process revocation list.
func NewMemoryRevocations(size int, ttl time.Duration, now func() time.Time) *MemoryRevocations {
	if now == nil {
		now = time.Now
	}
	return &MemoryRevocations{
		entries: cache.New[time.Time]("revoked_tokens", size, ttl),
		now:     now,
	}
}

// Revoke records the token. Tokens that already expired are ignored.
func (m *MemoryRevocations) Revoke(token string, expiresAt time.Time) {
	token = strings.TrimSpace(token)
	if m == nil || token == "" || !expiresAt.After(m.now()) {
		return
	}
	m.entries.Set(TokenDigest(token), expiresAt)
}

func (m *MemoryRevocations) IsRevoked(token string) bool {
	if m == nil {
		return false
	}
	key := TokenDigest(strings.TrimSpace(token))
	expiresAt, ok := m.entries.Get(key)
	if !ok {
		return false
	}
	if !expiresAt.After(m.now()) {
		m.entries.Invalidate(key)
		return false
	}
	return true
}

// TokenDigest returns the hex SHA-256 of a token, used wherever tokens are stored.
func TokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
