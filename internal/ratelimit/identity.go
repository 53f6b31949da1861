// Package ratelimit provides identity resolution.
package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/google/uuid"
)

// IdentityResolver derives a stable hashed identifier and a fingerprint
// for an inbound request. Resolution order is Phone > Session > Anonymous;
// anonymous-by-IP is the guaranteed fallback so every request has
// something to rate-limit against.
type IdentityResolver struct{}

// NewIdentityResolver constructs a resolver.
func NewIdentityResolver() *IdentityResolver {
	return &IdentityResolver{}
}

// Fingerprint derives a short opaque token from stable request headers.
// Raw header values are never used as keys to bound cardinality and avoid
// PII leakage.
func (r *IdentityResolver) Fingerprint(req *EvaluateRequest) string {
	if req == nil {
		return ""
	}
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(req.UserAgent))
	_, _ = hasher.Write([]byte{0x1f})
	_, _ = hasher.Write([]byte(req.Accept))
	_, _ = hasher.Write([]byte{0x1f})
	_, _ = hasher.Write([]byte(req.AcceptLanguage))
	_, _ = hasher.Write([]byte{0x1f})
	_, _ = hasher.Write([]byte(req.AcceptEncoding))
	return fmt.Sprintf("%016x", hasher.Sum64())
}

// Phone resolves a phone-backed identity from a verified phone number.
func (r *IdentityResolver) Phone(phone, fingerprint string) (Identity, error) {
	normalized, err := normalizePhone(phone)
	if err != nil {
		return Identity{}, err
	}
	return Identity{Kind: KindPhone, Key: hashKey("ph", normalized), Fingerprint: fingerprint}, nil
}

// Session resolves a session-backed identity from a session token.
func (r *IdentityResolver) Session(token, fingerprint string) (Identity, error) {
	token = strings.TrimSpace(token)
	if _, err := uuid.Parse(token); err != nil {
		return Identity{}, fmt.Errorf("session token: %w", ErrInvalidIdentity)
	}
	return Identity{Kind: KindSession, Key: hashKey("ss", token), Fingerprint: fingerprint}, nil
}

// Anonymous resolves the fallback identity from the client IP.
func (r *IdentityResolver) Anonymous(ip, fingerprint string) Identity {
	return Identity{Kind: KindAnonymous, Key: hashKey("ip", strings.TrimSpace(ip)), Fingerprint: fingerprint}
}

func hashKey(prefix, value string) string {
	sum := sha256.Sum256([]byte(value))
	return prefix + ":" + hex.EncodeToString(sum[:16])
}

func normalizePhone(phone string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(phone))
	digits := strings.TrimPrefix(cleaned, "+")
	if len(digits) < 7 || len(digits) > 15 {
		return "", fmt.Errorf("phone number: %w", ErrInvalidIdentity)
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("phone number: %w", ErrInvalidIdentity)
		}
	}
	return digits, nil
}
