package token

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

const CookieName = "accessToken"

// CookieWriter carries the configurable transport flags. Secure stays off by
// default so the service works over plain HTTP in development; HttpOnly stays
// on so page scripts never see the token.
type CookieWriter struct {
	Secure   bool
	HTTPOnly bool
}

func (w CookieWriter) Attach(c echo.Context, value string, exp time.Time) {
	c.SetCookie(&http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		Expires:  exp,
		HttpOnly: w.HTTPOnly,
		Secure:   w.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (w CookieWriter) Clear(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: w.HTTPOnly,
		Secure:   w.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Extract returns the raw token from the request cookie, or "" when no
// token was presented.
func Extract(c echo.Context) string {
	cookie, err := c.Cookie(CookieName)
	if err != nil || cookie == nil {
		return ""
	}
	return cookie.Value
}
