package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nkurbanov/campus_registry/internal/logging"
	mwauth "github.com/nkurbanov/campus_registry/internal/middleware/auth"
	"github.com/nkurbanov/campus_registry/internal/models"
	"github.com/nkurbanov/campus_registry/internal/mykafka"
	"github.com/nkurbanov/campus_registry/internal/repo"
	"github.com/nkurbanov/campus_registry/internal/revocation"
	"github.com/nkurbanov/campus_registry/internal/token"
)

type AuthHandler struct {
	Repo     *repo.UserRepo
	Tokens   *token.Service
	Revoked  *revocation.Registry
	Cookies  token.CookieWriter
	Producer *mykafka.Producer
}

func (h *AuthHandler) publish(c echo.Context, key string, event map[string]any) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "user_events", key, event); err != nil {
		logging.FromContext(c.Request().Context()).Error("kafka publish error", "error", err)
	}
}

func (h *AuthHandler) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_register")

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("register_failed", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Username == "" || req.Password == "" {
		l.Warn("register_failed", "status", 400, "reason", "empty credentials")
		return echo.NewHTTPError(http.StatusBadRequest, "username and password are required")
	}

	// self-service admin escalation is blocked; admin accounts are
	// provisioned out of band
	if req.Role == models.RoleAdmin {
		l.Warn("register_failed", "status", 403, "reason", "admin self-registration")
		return echo.NewHTTPError(http.StatusForbidden, "cannot self-register an admin account")
	}

	user, err := h.Repo.CreateUser(ctx, req.Username, req.Password, req.Role)
	if err != nil {
		switch {
		case errors.Is(err, repo.ErrInvalidRole):
			l.Warn("register_failed", "status", 400, "reason", "invalid role")
			return echo.NewHTTPError(http.StatusBadRequest, "invalid role")
		case errors.Is(err, repo.ErrUserAlreadyExists):
			l.Warn("register_failed", "status", 400, "reason", "user exists")
			return echo.NewHTTPError(http.StatusBadRequest, "user already exists")
		default:
			l.Error("register_failed", "status", 500, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
		}
	}

	h.publish(c, fmt.Sprint(user.ID), map[string]any{
		"type":     "user_registered",
		"user_id":  user.ID,
		"username": user.Username,
		"role":     user.Role,
	})

	l.Info("register_success", "status", 201, "role", user.Role)
	return c.JSON(http.StatusCreated, echo.Map{
		"id": user.ID, "username": user.Username, "role": user.Role,
	})
}

func (h *AuthHandler) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("login_failed", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	user, err := h.Repo.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, repo.ErrInvalidCredentials) {
			l.Warn("login_failed", "status", 401, "reason", "invalid username or password")
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid username or password")
		}
		l.Error("login_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	signed, claims, err := h.Tokens.Issue(user)
	if err != nil {
		l.Error("login_failed", "status", 500, "reason", "cannot create token", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot create token")
	}

	h.Cookies.Attach(c, signed, claims.ExpiresAt.Time)

	h.publish(c, fmt.Sprint(user.ID), map[string]any{
		"type":     "user_logged_in",
		"user_id":  user.ID,
		"username": user.Username,
	})

	l.Info("login_successful", "role", user.Role)
	return c.JSON(http.StatusOK, echo.Map{
		"message": "login successful",
		"role":    user.Role,
	})
}

// LogOut revokes the presented token's jti and clears the cookie. The
// original system only cleared the cookie, which left a copied-out token
// valid until expiry; here the token dies with the session.
func (h *AuthHandler) LogOut(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_logout")

	ident, ok := mwauth.IdentityFrom(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, mwauth.ErrNoIdentity.Error())
	}

	if err := h.Revoked.Revoke(ctx, ident.JTI, ident.ExpiresAt); err != nil {
		l.Error("logout_failed", "status", 500, "reason", "cannot revoke token", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	h.Cookies.Clear(c)
	l.Info("successful_logout", "user_id", ident.UserID)
	return c.JSON(http.StatusOK, echo.Map{
		"message": "successfully logged out",
	})
}

func (h *AuthHandler) Protected(c echo.Context) error {
	ident, ok := mwauth.IdentityFrom(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, mwauth.ErrNoIdentity.Error())
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message": "access granted",
		"user_id": ident.UserID,
		"role":    ident.Role,
	})
}

func (h *AuthHandler) AdminOnly(c echo.Context) error {
	return h.roleProbe(c, "welcome, admin!")
}

func (h *AuthHandler) StaffOnly(c echo.Context) error {
	return h.roleProbe(c, "welcome, staff!")
}

func (h *AuthHandler) StudentOnly(c echo.Context) error {
	return h.roleProbe(c, "welcome, student!")
}

func (h *AuthHandler) roleProbe(c echo.Context, message string) error {
	ident, ok := mwauth.IdentityFrom(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, mwauth.ErrNoIdentity.Error())
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message": message,
		"user_id": ident.UserID,
		"role":    ident.Role,
	})
}

// DeleteUser removes an account. The route gate admits admin and staff; the
// rules below are the handler's own: nobody deletes themself, admin accounts
// are not deletable over HTTP, staff may only delete students.
func (h *AuthHandler) DeleteUser(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_delete_user")

	ident, ok := mwauth.IdentityFrom(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, mwauth.ErrNoIdentity.Error())
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}
	targetID := uint(id)

	if targetID == ident.UserID {
		l.Warn("delete_user_failed", "status", 403, "reason", "self-deletion")
		return echo.NewHTTPError(http.StatusForbidden, "cannot delete your own account")
	}

	target, err := h.Repo.FindByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "user not found")
		}
		l.Error("delete_user_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	if target.Role == models.RoleAdmin {
		l.Warn("delete_user_failed", "status", 403, "reason", "target is admin")
		return echo.NewHTTPError(http.StatusForbidden, "admin accounts cannot be deleted")
	}
	if ident.Role == models.RoleStaff && target.Role != models.RoleStudent {
		l.Warn("delete_user_failed", "status", 403, "reason", "staff deleting peer")
		return echo.NewHTTPError(http.StatusForbidden, "staff may only delete student accounts")
	}

	if err := h.Repo.DeleteUser(ctx, targetID); err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "user not found")
		}
		l.Error("delete_user_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	h.publish(c, fmt.Sprint(targetID), map[string]any{
		"type":       "user_deleted",
		"user_id":    targetID,
		"deleted_by": ident.UserID,
	})

	l.Info("delete_user_success", "target_id", targetID)
	return c.JSON(http.StatusOK, echo.Map{
		"message": fmt.Sprintf("user %d deleted successfully", targetID),
	})
}
