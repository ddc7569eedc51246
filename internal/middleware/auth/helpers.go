package auth

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nkurbanov/campus_registry/internal/token"
)

const identityKey = "identity"

// Identity is the authenticated-identity context handed to handlers. Role
// is the claim embedded at issuance time, not the account's current role.
type Identity struct {
	UserID    uint
	Role      string
	JTI       string
	ExpiresAt time.Time
}

func setIdentity(c echo.Context, claims *token.AccessClaims) {
	id, _ := strconv.ParseUint(claims.Subject, 10, 64)
	ident := Identity{
		UserID: uint(id),
		Role:   claims.Role,
		JTI:    claims.ID,
	}
	if claims.ExpiresAt != nil {
		ident.ExpiresAt = claims.ExpiresAt.Time
	}
	c.Set(identityKey, ident)
}

func IdentityFrom(c echo.Context) (Identity, bool) {
	ident, ok := c.Get(identityKey).(Identity)
	return ident, ok
}
