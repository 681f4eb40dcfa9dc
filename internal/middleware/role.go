package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	apperrors "h2grid/internal/errors"
	"h2grid/internal/model"
)

// RequireRole returns a middleware that lets the request through only when
// the current user holds one of roles. It must run after Authenticate.
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
	allowed := make(map[model.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	message := "Admin access required"
	if allowed[model.RolePlanner] {
		message = "Planner or admin access required"
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user := CurrentUser(c)
			if user == nil {
				return apperrors.Wrap(http.StatusUnauthorized, "Unauthorized request", apperrors.ErrUnauthorized)
			}
			if !allowed[user.Role] {
				return apperrors.Wrap(http.StatusForbidden, message, apperrors.ErrForbidden)
			}
			return next(c)
		}
	}
}

// RequireAdmin allows admins only.
func RequireAdmin() echo.MiddlewareFunc {
	return RequireRole(model.RoleAdmin)
}

// RequirePlannerOrAdmin allows planners and admins.
func RequirePlannerOrAdmin() echo.MiddlewareFunc {
	return RequireRole(model.RolePlanner, model.RoleAdmin)
}
