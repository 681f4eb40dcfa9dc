package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"h2grid/internal/auth"
	"h2grid/internal/cache"
	apperrors "h2grid/internal/errors"
	"h2grid/internal/model"
)

type stubUsers map[uuid.UUID]*model.User

func (s stubUsers) GetUser(_ context.Context, id uuid.UUID) (*model.User, error) {
	if u, ok := s[id]; ok {
		return u, nil
	}
	return nil, apperrors.Wrap(http.StatusNotFound, "User not found", apperrors.ErrNotFound)
}

func ok(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func statusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return apperrors.MapErrorToHTTP(err).StatusCode
}

func TestAuthenticate(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	blacklist := auth.NewRedisBlacklist(cache.New(mr.Addr(), "", 0, nil))

	jwtService := auth.NewJWTService("access", "refresh", 15*time.Minute, time.Hour)
	active := &model.User{ID: uuid.New(), Username: "alice", Role: model.RolePlanner, IsActive: true}
	disabled := &model.User{ID: uuid.New(), Username: "bob", Role: model.RoleUser}
	ghost := &model.User{ID: uuid.New(), Username: "ghost", Role: model.RoleUser}
	users := stubUsers{active.ID: active, disabled.ID: disabled}

	token := func(u *model.User) string {
		s, err := jwtService.GenerateAccessToken(u)
		require.NoError(t, err)
		return s
	}
	revoked := token(active)
	claims, err := jwtService.ValidateAccessToken(revoked)
	require.NoError(t, err)
	require.NoError(t, blacklist.Revoke(context.Background(), claims.ID, time.Minute))
	refresh, err := jwtService.GenerateRefreshToken(active)
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		cookie     string
		wantStatus int
		wantMsg    string
	}{
		{name: "no token", wantStatus: http.StatusUnauthorized, wantMsg: "Unauthorized request"},
		{name: "garbage token", header: "Bearer nope", wantStatus: http.StatusUnauthorized, wantMsg: "Invalid access token"},
		{name: "refresh token is not an access token", header: "Bearer " + refresh, wantStatus: http.StatusUnauthorized},
		{name: "bearer header", header: "Bearer " + token(active), wantStatus: http.StatusOK},
		{name: "cookie", cookie: token(active), wantStatus: http.StatusOK},
		{name: "revoked token", header: "Bearer " + revoked, wantStatus: http.StatusUnauthorized},
		{name: "deactivated user", header: "Bearer " + token(disabled), wantStatus: http.StatusForbidden, wantMsg: "Account is deactivated"},
		{name: "deleted user", header: "Bearer " + token(ghost), wantStatus: http.StatusUnauthorized},
	}

	mw := Authenticate(jwtService, blacklist, users)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "accessToken", Value: tt.cookie})
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			var seen *model.User
			err := mw(func(c echo.Context) error {
				seen = CurrentUser(c)
				assert.NotNil(t, Claims(c))
				return ok(c)
			})(c)

			assert.Equal(t, tt.wantStatus, statusOf(err))
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, apperrors.MapErrorToHTTP(err).Message)
			}
			if tt.wantStatus == http.StatusOK {
				require.NotNil(t, seen)
				assert.Equal(t, active.ID, seen.ID)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name       string
		guard      echo.MiddlewareFunc
		user       *model.User
		wantStatus int
		wantMsg    string
	}{
		{name: "anonymous", guard: RequireAdmin(), wantStatus: http.StatusUnauthorized},
		{name: "user on admin route", guard: RequireAdmin(), user: &model.User{Role: model.RoleUser}, wantStatus: http.StatusForbidden, wantMsg: "Admin access required"},
		{name: "planner on admin route", guard: RequireAdmin(), user: &model.User{Role: model.RolePlanner}, wantStatus: http.StatusForbidden, wantMsg: "Admin access required"},
		{name: "admin on admin route", guard: RequireAdmin(), user: &model.User{Role: model.RoleAdmin}, wantStatus: http.StatusOK},
		{name: "user on planner route", guard: RequirePlannerOrAdmin(), user: &model.User{Role: model.RoleUser}, wantStatus: http.StatusForbidden, wantMsg: "Planner or admin access required"},
		{name: "planner on planner route", guard: RequirePlannerOrAdmin(), user: &model.User{Role: model.RolePlanner}, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), httptest.NewRecorder())
			if tt.user != nil {
				SetCurrentUser(c, tt.user)
			}
			reached := false
			err := tt.guard(func(c echo.Context) error {
				reached = true
				return nil
			})(c)

			assert.Equal(t, tt.wantStatus, statusOf(err))
			assert.Equal(t, tt.wantStatus == http.StatusOK, reached)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, apperrors.MapErrorToHTTP(err).Message)
			}
		})
	}
}

func TestFixedWindowStore(t *testing.T) {
	store := NewFixedWindowStore(2, 15*time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		allowed, err := store.Allow("1.2.3.4")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, _ := store.Allow("1.2.3.4")
	assert.False(t, allowed)

	other, _ := store.Allow("5.6.7.8")
	assert.True(t, other, "identifiers are counted separately")

	remaining, reset := store.Remaining("1.2.3.4")
	assert.Equal(t, 0, remaining)
	assert.Equal(t, now.Add(15*time.Minute), reset)

	now = now.Add(15 * time.Minute)
	allowed, _ = store.Allow("1.2.3.4")
	assert.True(t, allowed, "window expired")
	assert.Len(t, store.visitors, 1, "expired visitors are swept")
}

func TestRateLimit(t *testing.T) {
	e := echo.New()
	e.Use(RateLimit(NewFixedWindowStore(1, time.Minute)))
	e.GET("/", ok)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		mapped := apperrors.MapErrorToHTTP(err)
		_ = c.JSON(mapped.StatusCode, mapped.ToErrorResponse())
	}

	first := httptest.NewRecorder()
	e.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	e.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
	assert.Contains(t, second.Body.String(), "Too many requests")
}
