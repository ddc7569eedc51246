package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/nkurbanov/campus_registry/internal/hash"
	mwauth "github.com/nkurbanov/campus_registry/internal/middleware/auth"
	"github.com/nkurbanov/campus_registry/internal/models"
	"github.com/nkurbanov/campus_registry/internal/repo"
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

	if err := db.AutoMigrate(
		&models.User{}, &models.RevokedToken{},
		&models.Student{}, &models.Course{}, &models.Enrollment{},
	); err != nil {
		t.Fatalf("failed to migrate tables: %v", err)
	}
	return db
}

func newAuthEnv(t *testing.T) (*AuthHandler, *mwauth.Middleware, *gorm.DB) {
	db := initTestDB(t)
	registry := &revocation.Registry{DB: db}
	tokens := &token.Service{
		Secret:  []byte("test_secret"),
		TTL:     2 * time.Hour,
		Revoked: registry,
	}
	h := &AuthHandler{
		Repo:    &repo.UserRepo{DB: db},
		Tokens:  tokens,
		Revoked: registry,
		Cookies: token.CookieWriter{HTTPOnly: true},
	}
	return h, &mwauth.Middleware{Tokens: tokens}, db
}

func jsonRequest(method, target string, payload any) *http.Request {
	bodyBytes, _ := json.Marshal(payload)
	req := httptest.NewRequest(method, target, bytes.NewReader(bodyBytes))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestRegister(t *testing.T) {
	h, _, db := newAuthEnv(t)
	e := echo.New()

	req := jsonRequest(http.MethodPost, "/auth/register", map[string]string{
		"username": "test_user", "password": "password", "role": "student",
	})
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.Register(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, "test_user", created.Username)
	require.Equal(t, models.RoleStudent, created.Role)
	require.NotEmpty(t, created.ID)

	var row models.User
	require.NoError(t, db.Where("username = ?", "test_user").First(&row).Error)
	require.NotEqual(t, "password", row.PasswordHash)
	require.True(t, hash.CheckPassword(row.PasswordHash, "password"))
}

func TestRegisterDuplicateUsername(t *testing.T) {
	h, _, db := newAuthEnv(t)
	e := echo.New()

	payload := map[string]string{"username": "test_user", "password": "pw", "role": "staff"}

	rec := httptest.NewRecorder()
	require.NoError(t, h.Register(e.NewContext(jsonRequest(http.MethodPost, "/auth/register", payload), rec)))
	require.Equal(t, http.StatusCreated, rec.Code)

	err := h.Register(e.NewContext(jsonRequest(http.MethodPost, "/auth/register", payload), httptest.NewRecorder()))
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError")
	require.Equal(t, http.StatusBadRequest, he.Code)

	var count int64
	require.NoError(t, db.Model(&models.User{}).Where("username = ?", "test_user").Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestRegisterInvalidRole(t *testing.T) {
	h, _, _ := newAuthEnv(t)
	e := echo.New()

	err := h.Register(e.NewContext(jsonRequest(http.MethodPost, "/auth/register", map[string]string{
		"username": "test_user", "password": "pw", "role": "superuser",
	}), httptest.NewRecorder()))

	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError")
	require.Equal(t, http.StatusBadRequest, he.Code)
}

func TestRegisterAdminBlocked(t *testing.T) {
	h, _, db := newAuthEnv(t)
	e := echo.New()

	err := h.Register(e.NewContext(jsonRequest(http.MethodPost, "/auth/register", map[string]string{
		"username": "wannabe", "password": "pw", "role": "admin",
	}), httptest.NewRecorder()))

	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError")
	require.Equal(t, http.StatusForbidden, he.Code)

	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	require.Equal(t, int64(0), count)
}

func TestLogin(t *testing.T) {
	h, _, db := newAuthEnv(t)
	e := echo.New()

	pwHash, err := hash.HashPassword("password")
	require.NoError(t, err)
	user := models.User{Username: "test_user", PasswordHash: pwHash, Role: models.RoleStaff}
	require.NoError(t, db.Create(&user).Error)

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/auth/login", map[string]string{
		"username": "test_user", "password": "password",
	}), rec)

	require.NoError(t, h.Login(c))
	require.Equal(t, http.StatusOK, rec.Code)

	cookie := findCookie(rec, token.CookieName)
	require.NotNil(t, cookie, "expected access token cookie")
	require.True(t, cookie.HttpOnly)

	claims, err := h.Tokens.Verify(t.Context(), cookie.Value)
	require.NoError(t, err)
	require.Equal(t, fmt.Sprint(user.ID), claims.Subject)
	require.Equal(t, models.RoleStaff, claims.Role)
}

func TestLoginInvalidCredentials(t *testing.T) {
	h, _, db := newAuthEnv(t)
	e := echo.New()

	pwHash, err := hash.HashPassword("password")
	require.NoError(t, err)
	require.NoError(t, db.Create(&models.User{Username: "test_user", PasswordHash: pwHash, Role: models.RoleStudent}).Error)

	for _, payload := range []map[string]string{
		{"username": "test_user", "password": "wrong"},
		{"username": "nobody", "password": "password"},
	} {
		err := h.Login(e.NewContext(jsonRequest(http.MethodPost, "/auth/login", payload), httptest.NewRecorder()))
		he, ok := err.(*echo.HTTPError)
		require.True(t, ok, "expected HTTPError")
		require.Equal(t, http.StatusUnauthorized, he.Code)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	h, mw, _ := newAuthEnv(t)
	e := echo.New()

	user := &models.User{ID: 1, Username: "test_user", Role: models.RoleStudent}
	signed, _, err := h.Tokens.Issue(user)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: token.CookieName, Value: signed})
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, mw.RequireAuth(h.LogOut)(c))
	require.Equal(t, http.StatusOK, rec.Code)

	cleared := findCookie(rec, token.CookieName)
	require.NotNil(t, cleared)
	require.Empty(t, cleared.Value)
	require.Negative(t, cleared.MaxAge)

	// the raw token value itself is dead, not just the cookie
	_, err = h.Tokens.Verify(t.Context(), signed)
	require.ErrorIs(t, err, token.ErrTokenRevoked)
}

func TestLogoutWithoutToken(t *testing.T) {
	h, mw, _ := newAuthEnv(t)
	e := echo.New()

	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/auth/logout", nil), httptest.NewRecorder())
	err := mw.RequireAuth(h.LogOut)(c)

	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError")
	require.Equal(t, http.StatusUnauthorized, he.Code)
}

func deleteUserAs(t *testing.T, h *AuthHandler, mw *mwauth.Middleware, actor *models.User, targetID uint) error {
	t.Helper()
	e := echo.New()

	signed, _, err := h.Tokens.Issue(actor)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodDelete, "/auth/delete-user/"+fmt.Sprint(targetID), nil)
	req.AddCookie(&http.Cookie{Name: token.CookieName, Value: signed})
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/auth/delete-user/:id")
	c.SetParamNames("id")
	c.SetParamValues(fmt.Sprint(targetID))

	return mw.RequireAuth(h.DeleteUser)(c)
}

func TestDeleteUser(t *testing.T) {
	h, mw, db := newAuthEnv(t)

	admin := models.User{Username: "root", PasswordHash: "x", Role: models.RoleAdmin}
	otherAdmin := models.User{Username: "root2", PasswordHash: "x", Role: models.RoleAdmin}
	staff := models.User{Username: "prof", PasswordHash: "x", Role: models.RoleStaff}
	otherStaff := models.User{Username: "prof2", PasswordHash: "x", Role: models.RoleStaff}
	student := models.User{Username: "kid", PasswordHash: "x", Role: models.RoleStudent}
	for _, u := range []*models.User{&admin, &otherAdmin, &staff, &otherStaff, &student} {
		require.NoError(t, db.Create(u).Error)
	}

	countUsers := func() int64 {
		var n int64
		require.NoError(t, db.Model(&models.User{}).Count(&n).Error)
		return n
	}

	// an admin cannot delete another admin
	err := deleteUserAs(t, h, mw, &admin, otherAdmin.ID)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError")
	require.Equal(t, http.StatusForbidden, he.Code)
	require.Equal(t, int64(5), countUsers())

	// nobody deletes themself
	err = deleteUserAs(t, h, mw, &admin, admin.ID)
	he, ok = err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError")
	require.Equal(t, http.StatusForbidden, he.Code)
	require.Equal(t, int64(5), countUsers())

	// staff cannot delete a staff peer
	err = deleteUserAs(t, h, mw, &staff, otherStaff.ID)
	he, ok = err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError")
	require.Equal(t, http.StatusForbidden, he.Code)

	// unknown target
	err = deleteUserAs(t, h, mw, &admin, 9999)
	he, ok = err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError")
	require.Equal(t, http.StatusNotFound, he.Code)

	// staff may delete a student
	require.NoError(t, deleteUserAs(t, h, mw, &staff, student.ID))
	require.Equal(t, int64(4), countUsers())

	// admin may delete staff
	require.NoError(t, deleteUserAs(t, h, mw, &admin, otherStaff.ID))
	require.Equal(t, int64(3), countUsers())
}
