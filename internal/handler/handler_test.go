package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	apperrors "h2grid/internal/errors"
)

func TestHTTPErrorHandler(t *testing.T) {
	type payload struct {
		Email string `json:"email" validate:"required,email"`
	}
	validationErr := NewValidator().Validate(&payload{Email: "nope"})
	require.Error(t, validationErr)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
		wantFields int
	}{
		{name: "validator", err: validationErr, wantStatus: http.StatusBadRequest, wantMsg: "Validation failed", wantFields: 1},
		{name: "domain validation", err: &apperrors.ValidationError{Fields: []apperrors.FieldError{{Field: "name", Message: "is required"}}}, wantStatus: http.StatusBadRequest, wantMsg: "Validation failed", wantFields: 1},
		{name: "http error", err: apperrors.NewHTTPError(http.StatusTeapot, "short and stout"), wantStatus: http.StatusTeapot, wantMsg: "short and stout"},
		{name: "duplicate key", err: fmt.Errorf("create: %w", gorm.ErrDuplicatedKey), wantStatus: http.StatusConflict, wantMsg: "Duplicate value"},
		{name: "record not found", err: gorm.ErrRecordNotFound, wantStatus: http.StatusNotFound, wantMsg: "Resource not found"},
		{name: "jwt", err: jwt.NewValidationError("token is expired", jwt.ValidationErrorExpired), wantStatus: http.StatusUnauthorized, wantMsg: "Invalid token"},
		{name: "echo", err: echo.NewHTTPError(http.StatusMethodNotAllowed, "Method Not Allowed"), wantStatus: http.StatusMethodNotAllowed, wantMsg: "Method Not Allowed"},
		{name: "echo 5xx hides detail", err: echo.NewHTTPError(http.StatusInternalServerError, "db exploded"), wantStatus: http.StatusInternalServerError, wantMsg: "Internal server error"},
		{name: "sentinel", err: fmt.Errorf("lookup: %w", apperrors.ErrForbidden), wantStatus: http.StatusForbidden, wantMsg: "Forbidden"},
		{name: "unknown", err: errors.New("connection reset by peer"), wantStatus: http.StatusInternalServerError, wantMsg: "Internal server error"},
	}

	handle := NewHTTPErrorHandler(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

			handle(tt.err, c)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body apperrors.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.False(t, body.Success)
			assert.Equal(t, tt.wantMsg, body.Error)
			assert.Len(t, body.Errors, tt.wantFields)
		})
	}
}

func TestHTTPErrorHandler_CommittedResponse(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	require.NoError(t, c.String(http.StatusOK, "done"))

	NewHTTPErrorHandler(nil)(errors.New("late failure"), c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "done", rec.Body.String())
}

func TestValidatorMessages(t *testing.T) {
	type signup struct {
		Username  string `json:"username" validate:"required,min=3"`
		Password  string `json:"password" validate:"required,strongpassword"`
		AssetType string `json:"assetType" validate:"required,assettype"`
	}

	err := NewValidator().Validate(&signup{Username: "ab", Password: "weak", AssetType: "Castle"})
	require.Error(t, err)

	fields := toHTTPError(err).Fields
	byField := make(map[string]string, len(fields))
	for _, f := range fields {
		byField[f.Field] = f.Message
	}
	assert.Equal(t, "must be at least 3 characters", byField["username"])
	assert.Contains(t, byField["password"], "uppercase")
	assert.Equal(t, "must be a known asset type", byField["assetType"])

	assert.NoError(t, NewValidator().Validate(&signup{Username: "abc", Password: "Str0ng!pass", AssetType: "Plant"}))
}

func TestCookiePolicy(t *testing.T) {
	tests := []struct {
		name       string
		production bool
		wantSecure bool
		wantSite   http.SameSite
	}{
		{name: "production", production: true, wantSecure: true, wantSite: http.SameSiteStrictMode},
		{name: "development", production: false, wantSecure: false, wantSite: http.SameSiteLaxMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

			NewCookiePolicy(tt.production).set(c, accessCookie, "token", 0)

			cookies := rec.Result().Cookies()
			require.Len(t, cookies, 1)
			assert.Equal(t, accessCookie, cookies[0].Name)
			assert.True(t, cookies[0].HttpOnly)
			assert.Equal(t, tt.wantSecure, cookies[0].Secure)
			assert.Equal(t, tt.wantSite, cookies[0].SameSite)
		})
	}
}
