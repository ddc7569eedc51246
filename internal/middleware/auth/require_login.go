package auth

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nkurbanov/campus_registry/internal/logging"
	"github.com/nkurbanov/campus_registry/internal/token"
)

type Middleware struct {
	Tokens *token.Service
}

// RequireAuth authenticates the request from the token cookie and stashes
// the verified identity in the echo context. Handlers behind it never parse
// the cookie themselves.
func (m *Middleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		l := logging.FromContext(ctx).With("middleware", "require_auth")

		claims, err := m.Tokens.Verify(ctx, token.Extract(c))
		if err != nil {
			if token.AuthError(err) {
				l.Warn("auth_failed", "status", 401, "reason", err.Error())
				return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
			}
			l.Error("auth_failed", "status", 500, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
		}

		if claims.Role == "" {
			l.Warn("auth_failed", "status", 401, "reason", "missing role claim")
			return echo.NewHTTPError(http.StatusUnauthorized, token.ErrMissingRoleClaim.Error())
		}

		setIdentity(c, claims)
		return next(c)
	}
}

// RequireRoles authorizes an already-authenticated request. It answers only
// "may this role attempt the operation"; finer rules stay in the handler.
func (m *Middleware) RequireRoles(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ident, ok := IdentityFrom(c)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, token.ErrTokenMissing.Error())
			}
			if _, ok := allowed[ident.Role]; !ok {
				l := logging.FromContext(c.Request().Context()).With("middleware", "require_roles")
				l.Warn("forbidden", "status", 403, "role", ident.Role)
				return echo.NewHTTPError(http.StatusForbidden, "insufficient role")
			}
			return next(c)
		}
	}
}

// ErrNoIdentity is returned by handlers that find no identity in context,
// which means the route was registered without RequireAuth.
var ErrNoIdentity = errors.New("no authenticated identity in context")
