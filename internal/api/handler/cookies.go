package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cliptube/account-service/internal/api/middleware"
	"github.com/cliptube/account-service/internal/core/ports"
)

const refreshTokenCookie = "refreshToken"

func tokenCookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
}

// setTokenCookies attaches both tokens as httpOnly secure cookies.
func setTokenCookies(c echo.Context, pair ports.TokenPair) {
	c.SetCookie(tokenCookie(middleware.AccessTokenCookie, pair.AccessToken, 0))
	c.SetCookie(tokenCookie(refreshTokenCookie, pair.RefreshToken, 0))
}

// clearTokenCookies expires both token cookies.
func clearTokenCookies(c echo.Context) {
	c.SetCookie(tokenCookie(middleware.AccessTokenCookie, "", -1))
	c.SetCookie(tokenCookie(refreshTokenCookie, "", -1))
}
