package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/cliptube/account-service/internal/core/ports"
	"github.com/cliptube/account-service/internal/core/service"
)

// UserContextKey is the echo context key under which the resolved account is
// stored for downstream handlers.
const UserContextKey = "user"

// AccessTokenCookie is the cookie carrying the access token.
const AccessTokenCookie = "accessToken"

// Auth validates the access token and resolves its subject against the
// credential store before the request reaches any handler. The token is read
// from the accessToken cookie or the Authorization header; the cookie wins
// when both are present. The gate is read-only on the store.
func Auth(tokens *service.TokenManager, users ports.UserResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := tokenFromRequest(c)
			if token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "token missing")
			}

			claims, err := tokens.VerifyAccessToken(token)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			// An account deleted after issuance must not authenticate.
			user, err := users.FindByID(c.Request().Context(), claims.Subject)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.Set(UserContextKey, user.Sanitized())
			return next(c)
		}
	}
}

func tokenFromRequest(c echo.Context) string {
	if cookie, err := c.Cookie(AccessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
