// Package middleware holds the echo middleware shared by every route group:
// authentication, role guards, rate limiting and request logging.
package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	"h2grid/internal/auth"
	apperrors "h2grid/internal/errors"
	"h2grid/internal/model"
)

const (
	claimsKey = "claims"
	userKey   = "currentUser"

	// AccessTokenLookup reads the bearer header first, then the cookie.
	AccessTokenLookup = "header:Authorization:Bearer ,cookie:accessToken"
)

var errTokenRevoked = errors.New("token revoked")

// UserLoader resolves the user a token was issued to.
type UserLoader interface {
	GetUser(ctx context.Context, id uuid.UUID) (*model.User, error)
}

// Authenticate verifies the access token, rejects revoked tokens and loads
// the current user into the context.
func Authenticate(jwtService *auth.JWTService, blacklist auth.TokenBlacklist, users UserLoader) echo.MiddlewareFunc {
	verify := echojwt.WithConfig(echojwt.Config{
		ContextKey:  claimsKey,
		TokenLookup: AccessTokenLookup,
		ParseTokenFunc: func(c echo.Context, raw string) (interface{}, error) {
			claims, err := jwtService.ValidateAccessToken(raw)
			if err != nil {
				return nil, err
			}
			if blacklist != nil && blacklist.IsRevoked(c.Request().Context(), claims.ID) {
				return nil, errTokenRevoked
			}
			return claims, nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			var missing *echojwt.TokenExtractionError
			if errors.As(err, &missing) {
				return apperrors.Wrap(http.StatusUnauthorized, "Unauthorized request", apperrors.ErrUnauthorized)
			}
			return apperrors.Wrap(http.StatusUnauthorized, "Invalid access token", apperrors.ErrUnauthorized)
		},
	})

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return verify(loadUser(users, next))
	}
}

func loadUser(users UserLoader, next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims := Claims(c)
		if claims == nil {
			return apperrors.Wrap(http.StatusUnauthorized, "Invalid access token", apperrors.ErrUnauthorized)
		}
		id, err := claims.UserUUID()
		if err != nil {
			return apperrors.Wrap(http.StatusUnauthorized, "Invalid access token", apperrors.ErrUnauthorized)
		}
		user, err := users.GetUser(c.Request().Context(), id)
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.Wrap(http.StatusUnauthorized, "Invalid access token", apperrors.ErrUnauthorized)
		}
		if err != nil {
			return err
		}
		if !user.IsActive {
			return apperrors.Wrap(http.StatusForbidden, "Account is deactivated", apperrors.ErrForbidden)
		}
		c.Set(userKey, user)
		return next(c)
	}
}

// Claims returns the verified access token claims, or nil on public routes.
func Claims(c echo.Context) *auth.Claims {
	claims, _ := c.Get(claimsKey).(*auth.Claims)
	return claims
}

// CurrentUser returns the authenticated user, or nil on public routes.
func CurrentUser(c echo.Context) *model.User {
	user, _ := c.Get(userKey).(*model.User)
	return user
}

// SetCurrentUser stores user the way Authenticate does.
func SetCurrentUser(c echo.Context, user *model.User) {
	c.Set(userKey, user)
}
