package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cliptube/account-service/internal/api/middleware"
	"github.com/cliptube/account-service/internal/core/domain"
)

// currentUser extracts the account resolved by the Auth middleware. Its
// presence proves the middleware ran; absence on a guarded route means a
// wiring bug, answered with 401 rather than a panic.
func currentUser(c echo.Context) (*domain.User, error) {
	user, _ := c.Get(middleware.UserContextKey).(*domain.User)
	if user == nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "missing authentication")
	}
	return user, nil
}
