package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

const (
	accessCookie  = "accessToken"
	refreshCookie = "refreshToken"
)

// CookiePolicy sets the attributes of the session cookies.
type CookiePolicy struct {
	Secure   bool
	SameSite http.SameSite
}

// NewCookiePolicy returns secure, strict cookies in production and lax
// cookies elsewhere so a local frontend on another port keeps working.
func NewCookiePolicy(production bool) CookiePolicy {
	if production {
		return CookiePolicy{Secure: true, SameSite: http.SameSiteStrictMode}
	}
	return CookiePolicy{SameSite: http.SameSiteLaxMode}
}

func (p CookiePolicy) set(c echo.Context, name, value string, ttl time.Duration) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: p.SameSite,
		MaxAge:   int(ttl.Seconds()),
	})
}

func (p CookiePolicy) clear(c echo.Context, name string) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: p.SameSite,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
}
