package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/nkurbanov/campus_registry/internal/models"
	"github.com/nkurbanov/campus_registry/internal/revocation"
	"github.com/nkurbanov/campus_registry/internal/token"
)

func initTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to connect to in-memory db: %v", err)
	}
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.RevokedToken{}); err != nil {
		t.Fatalf("failed to migrate tables: %v", err)
	}
	return db
}

func newEnv(t *testing.T) (*Middleware, *token.Service, *revocation.Registry) {
	registry := &revocation.Registry{DB: initTestDB(t)}
	tokens := &token.Service{
		Secret:  []byte("test_secret"),
		TTL:     2 * time.Hour,
		Revoked: registry,
	}
	return &Middleware{Tokens: tokens}, tokens, registry
}

func newContext(t *testing.T, cookie string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/auth/protected", nil)
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: token.CookieName, Value: cookie})
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestRequireAuthMissingToken(t *testing.T) {
	mw, _, _ := newEnv(t)
	c, _ := newContext(t, "")

	called := false
	err := mw.RequireAuth(func(c echo.Context) error {
		called = true
		return c.NoContent(http.StatusOK)
	})(c)

	require.False(t, called)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError")
	require.Equal(t, http.StatusUnauthorized, he.Code)
}

func TestRequireAuthValidToken(t *testing.T) {
	mw, tokens, _ := newEnv(t)

	user := &models.User{ID: 5, Username: "alice", Role: models.RoleStudent}
	signed, _, err := tokens.Issue(user)
	require.NoError(t, err)

	c, rec := newContext(t, signed)
	err = mw.RequireAuth(func(c echo.Context) error {
		ident, ok := IdentityFrom(c)
		require.True(t, ok)
		require.Equal(t, uint(5), ident.UserID)
		require.Equal(t, models.RoleStudent, ident.Role)
		return c.NoContent(http.StatusOK)
	})(c)

	require.NoError(t, err)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAuthRevokedToken(t *testing.T) {
	mw, tokens, registry := newEnv(t)

	user := &models.User{ID: 5, Username: "alice", Role: models.RoleStudent}
	signed, claims, err := tokens.Issue(user)
	require.NoError(t, err)

	require.NoError(t, registry.Revoke(t.Context(), claims.ID, claims.ExpiresAt.Time))

	c, _ := newContext(t, signed)
	err = mw.RequireAuth(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})(c)

	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError")
	require.Equal(t, http.StatusUnauthorized, he.Code)
}

func TestRequireAuthMissingRoleClaim(t *testing.T) {
	mw, tokens, _ := newEnv(t)

	// token signed correctly but carrying no role claim
	user := &models.User{ID: 6, Username: "ghost", Role: ""}
	signed, _, err := tokens.Issue(user)
	require.NoError(t, err)

	c, _ := newContext(t, signed)
	err = mw.RequireAuth(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})(c)

	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError")
	require.Equal(t, http.StatusUnauthorized, he.Code)
	require.Equal(t, token.ErrMissingRoleClaim.Error(), he.Message)
}

func TestRequireRolesForbidden(t *testing.T) {
	mw, tokens, _ := newEnv(t)

	user := &models.User{ID: 8, Username: "bob", Role: models.RoleStaff}
	signed, _, err := tokens.Issue(user)
	require.NoError(t, err)

	c, _ := newContext(t, signed)
	called := false
	chain := mw.RequireAuth(mw.RequireRoles(models.RoleAdmin)(func(c echo.Context) error {
		called = true
		return c.NoContent(http.StatusOK)
	}))
	err = chain(c)

	require.False(t, called, "wrapped operation must not run on forbidden role")
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError")
	require.Equal(t, http.StatusForbidden, he.Code)
}

func TestRequireRolesAllowed(t *testing.T) {
	mw, tokens, _ := newEnv(t)

	user := &models.User{ID: 8, Username: "bob", Role: models.RoleStaff}
	signed, _, err := tokens.Issue(user)
	require.NoError(t, err)

	c, rec := newContext(t, signed)
	chain := mw.RequireAuth(mw.RequireRoles(models.RoleAdmin, models.RoleStaff)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}))

	require.NoError(t, chain(c))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireRolesWithoutAuth(t *testing.T) {
	mw, _, _ := newEnv(t)

	// gate mounted without RequireAuth in front still refuses
	c, _ := newContext(t, "")
	err := mw.RequireRoles(models.RoleAdmin)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})(c)

	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError")
	require.Equal(t, http.StatusUnauthorized, he.Code)
}
