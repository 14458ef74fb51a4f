package security

import (
	"encoding/hex"
	"errors"

	"github.com/zeebo/blake3"
)

// Domain separates hashes of different secret kinds so a value from one
// table can never match a lookup in another.
type Domain string

// Hash domains.
const (
	DomainInstanceToken Domain = "instance-token"
	DomainSessionID     Domain = "admin-session"
	DomainCSRF          Domain = "csrf"
	DomainResetToken    Domain = "portal-reset"
)

// deriveContext is the BLAKE3 key-derivation context prefix. Changing it
// invalidates every stored hash.
const deriveContext = "timecard 2026-01 secret hashing "

// SecretHasher produces deterministic keyed digests of bearer secrets.
// The same secret always maps to the same digest, so lookups are index hits,
// but the digest cannot be recomputed without the server key.
type SecretHasher struct {
	keys map[Domain][]byte
}

// NewSecretHasher derives one 32-byte key per domain from material.
func NewSecretHasher(material string) (*SecretHasher, error) {
	if len(material) < 32 {
		return nil, errors.New("security: hash key must be at least 32 bytes")
	}
	keys := make(map[Domain][]byte, 4)
	for _, domain := range []Domain{DomainInstanceToken, DomainSessionID, DomainCSRF, DomainResetToken} {
		out := make([]byte, 32)
		blake3.DeriveKey(deriveContext+string(domain), []byte(material), out)
		keys[domain] = out
	}
	return &SecretHasher{keys: keys}, nil
}

// Hash returns the hex digest of secret within domain.
func (h *SecretHasher) Hash(domain Domain, secret string) string {
	key, ok := h.keys[domain]
	if !ok {
		panic("security: unknown hash domain " + string(domain))
	}
	hasher, err := blake3.NewKeyed(key)
	if err != nil {
		panic("security: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	_, _ = hasher.Write([]byte(secret))
	return hex.EncodeToString(hasher.Sum(nil))
}
