package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// RequireRole returns middleware that checks the acting user has one of the
// specified roles. Admin always passes.
func RequireRole(roles ...Role) echo.MiddlewareFunc {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			u, ok := UserFromContext(c.Request().Context())
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "no authenticated user")
			}
			if u.Role == RoleAdmin {
				return next(c)
			}
			for _, r := range roles {
				if u.Role == r {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(names, " or ")))
		}
	}
}

// CurrentUser returns the acting user of a request or a 401.
func CurrentUser(c echo.Context) (User, error) {
	u, ok := UserFromContext(c.Request().Context())
	if !ok {
		return User{}, echo.NewHTTPError(http.StatusUnauthorized, "no authenticated user")
	}
	return u, nil
}
