package token

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nkurbanov/campus_registry/internal/models"
)

var (
	ErrTokenMissing     = errors.New("token missing")
	ErrTokenMalformed   = errors.New("token malformed")
	ErrSignatureInvalid = errors.New("token signature invalid")
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenRevoked     = errors.New("token revoked")
	ErrMissingRoleClaim = errors.New("token missing role claim")
)

type AccessClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// RevocationChecker is consulted on every verification. Implemented by
// revocation.Registry.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Service issues and verifies HS256 access tokens. The role claim is a
// snapshot of the account role at issuance time; a later role change does
// not affect tokens already in flight.
type Service struct {
	Secret  []byte
	TTL     time.Duration
	Revoked RevocationChecker
}

// Issue builds a signed token for the account with a fresh jti. It records
// nothing anywhere; the revocation registry only learns a jti when it gets
// revoked.
func (s *Service) Issue(user *models.User) (string, *AccessClaims, error) {
	now := time.Now()
	claims := AccessClaims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.TTL)),
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(s.Secret)
	if err != nil {
		return "", nil, err
	}
	return signed, &claims, nil
}

// Verify checks, in order: presence, signature, expiry, revocation. The
// first failure wins and maps to exactly one sentinel error. On success the
// returned claims are the only source of identity and role for the request.
func (s *Service) Verify(ctx context.Context, raw string) (*AccessClaims, error) {
	if raw == "" {
		return nil, ErrTokenMissing
	}

	var claims AccessClaims
	tkn, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, ErrSignatureInvalid
		}
		return s.Secret, nil
	})
	switch {
	case err == nil && tkn.Valid:
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, ErrSignatureInvalid
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	default:
		return nil, ErrTokenMalformed
	}

	if s.Revoked != nil {
		revoked, err := s.Revoked.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, ErrTokenRevoked
		}
	}

	return &claims, nil
}

// AuthError reports whether err is one of the verification failures, as
// opposed to an infrastructure error.
func AuthError(err error) bool {
	return errors.Is(err, ErrTokenMissing) ||
		errors.Is(err, ErrTokenMalformed) ||
		errors.Is(err, ErrSignatureInvalid) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenRevoked)
}
