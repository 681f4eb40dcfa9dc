package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"h2grid/internal/auth"
	apperrors "h2grid/internal/errors"
	"h2grid/internal/middleware"
	"h2grid/internal/model"
	"h2grid/internal/service"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authService service.AuthService
	jwt         *auth.JWTService
	cookies     CookiePolicy
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(authService service.AuthService, jwtService *auth.JWTService, cookies CookiePolicy) *AuthHandler {
	return &AuthHandler{authService: authService, jwt: jwtService, cookies: cookies}
}

// RegisterRequest represents a user registration request.
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=30"`
	Fullname string `json:"fullname" validate:"omitempty,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=100,strongpassword"`
	PhoneNo  string `json:"phoneNo" validate:"omitempty,max=32"`
}

// LoginRequest accepts either a username or an email.
type LoginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest carries the refresh token when no cookie is sent.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// EmailRequest carries a single email address.
type EmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest completes a password reset.
type ResetPasswordRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,max=100,strongpassword"`
}

// VerifyEmailRequest confirms an email address with a one-time code.
type VerifyEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
}

// VerifyOTPRequest confirms the signed-in user's one-time code.
type VerifyOTPRequest struct {
	OTP string `json:"otp" validate:"required,len=6,numeric"`
}

// ChangePasswordRequest replaces the password of the signed-in user.
type ChangePasswordRequest struct {
	OldPassword  string `json:"oldPassword" validate:"required"`
	NewPassword  string `json:"newPassword" validate:"required,max=100,strongpassword"`
	ConfPassword string `json:"confPassword" validate:"required"`
}

// GoogleLoginRequest carries a Google ID token.
type GoogleLoginRequest struct {
	IDToken string `json:"idToken" validate:"required"`
}

// AuthResponse represents an authentication response.
type AuthResponse struct {
	User         *model.User `json:"user"`
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
}

func (h *AuthHandler) signIn(c echo.Context, status int, user *model.User, tokens *service.Tokens, message string) error {
	h.cookies.set(c, accessCookie, tokens.AccessToken, h.jwt.AccessTTL())
	h.cookies.set(c, refreshCookie, tokens.RefreshToken, h.jwt.RefreshTTL())
	return respond(c, status, AuthResponse{
		User:         user,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}, message)
}

// Register godoc
// @Summary Register a new user
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration data"
// @Success 201 {object} ApiResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /users/register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, tokens, err := h.authService.Register(c.Request().Context(), service.RegisterInput{
		Username: req.Username,
		Fullname: req.Fullname,
		Email:    req.Email,
		Password: req.Password,
		PhoneNo:  req.PhoneNo,
	})
	if err != nil {
		return err
	}
	return h.signIn(c, http.StatusCreated, user, tokens, "User registered successfully")
}

// Login godoc
// @Summary Login with username or email
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login credentials"
// @Success 200 {object} ApiResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Router /users/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req LoginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	identifier := strings.TrimSpace(req.Username)
	if identifier == "" {
		identifier = strings.TrimSpace(req.Email)
	}
	if identifier == "" {
		return apperrors.Wrap(http.StatusBadRequest, "username or email is required", apperrors.ErrBadRequest)
	}

	user, tokens, err := h.authService.Login(c.Request().Context(), identifier, req.Password)
	if err != nil {
		return err
	}
	return h.signIn(c, http.StatusOK, user, tokens, "User logged in successfully")
}

// GoogleLogin godoc
// @Summary Sign in with a Google ID token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body GoogleLoginRequest true "Google ID token"
// @Success 200 {object} ApiResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 503 {object} errors.ErrorResponse
// @Router /users/google [post]
func (h *AuthHandler) GoogleLogin(c echo.Context) error {
	var req GoogleLoginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, tokens, err := h.authService.GoogleLogin(c.Request().Context(), req.IDToken)
	if err != nil {
		return err
	}
	return h.signIn(c, http.StatusOK, user, tokens, "Google Login successful")
}

// Refresh godoc
// @Summary Issue a new access token
// @Description Reads the refresh token from the refreshToken cookie or the body.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RefreshRequest false "Refresh token"
// @Success 200 {object} ApiResponse
// @Failure 401 {object} errors.ErrorResponse
// @Router /users/refresh [post]
func (h *AuthHandler) Refresh(c echo.Context) error {
	var token string
	if cookie, err := c.Cookie(refreshCookie); err == nil {
		token = cookie.Value
	}
	if token == "" {
		var req RefreshRequest
		_ = (&echo.DefaultBinder{}).BindBody(c, &req)
		token = req.RefreshToken
	}

	accessToken, err := h.authService.Refresh(c.Request().Context(), token)
	if err != nil {
		return err
	}
	h.cookies.set(c, accessCookie, accessToken, h.jwt.AccessTTL())
	return respond(c, http.StatusOK, echo.Map{"accessToken": accessToken}, "Access token refreshed")
}

// Logout godoc
// @Summary Logout and revoke the presented access token
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} ApiResponse
// @Failure 401 {object} errors.ErrorResponse
// @Router /users/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	if err := h.authService.Logout(c.Request().Context(), user.ID, middleware.Claims(c)); err != nil {
		return err
	}
	h.cookies.clear(c, accessCookie)
	h.cookies.clear(c, refreshCookie)
	return respond(c, http.StatusOK, echo.Map{}, "User logged out successfully")
}

// LogoutAll godoc
// @Summary Invalidate the stored refresh token
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} ApiResponse
// @Failure 401 {object} errors.ErrorResponse
// @Router /users/logout-all [post]
func (h *AuthHandler) LogoutAll(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	if err := h.authService.LogoutAll(c.Request().Context(), user.ID); err != nil {
		return err
	}
	h.cookies.clear(c, refreshCookie)
	return respond(c, http.StatusOK, nil, "Logged out from all sessions")
}

// ForgotPassword godoc
// @Summary Email a password reset token
// @Description Always answers 200 so the endpoint cannot be used to probe accounts.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body EmailRequest true "Account email"
// @Success 200 {object} ApiResponse
// @Failure 400 {object} errors.ErrorResponse
// @Router /users/forgot-password [post]
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req EmailRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := h.authService.ForgotPassword(c.Request().Context(), req.Email); err != nil {
		return err
	}
	return respond(c, http.StatusOK, nil, "Password reset email sent")
}

// ResetPassword godoc
// @Summary Reset a password with an emailed token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body ResetPasswordRequest true "Reset data"
// @Success 200 {object} ApiResponse
// @Failure 400 {object} errors.ErrorResponse
// @Router /users/reset-password [post]
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req ResetPasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := h.authService.ResetPassword(c.Request().Context(), req.Email, req.Token, req.NewPassword); err != nil {
		return err
	}
	return respond(c, http.StatusOK, nil, "Password reset successful")
}

// VerifyEmail godoc
// @Summary Verify an email address with a one-time code
// @Tags auth
// @Accept json
// @Produce json
// @Param request body VerifyEmailRequest true "Email and OTP"
// @Success 200 {object} ApiResponse
// @Failure 400 {object} errors.ErrorResponse
// @Router /users/verify-email [post]
func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	var req VerifyEmailRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := h.authService.VerifyEmail(c.Request().Context(), req.Email, req.OTP); err != nil {
		return err
	}
	return respond(c, http.StatusOK, nil, "Email verified")
}

// SendOTP godoc
// @Summary Email a one-time code to the signed-in user
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} ApiResponse
// @Failure 401 {object} errors.ErrorResponse
// @Router /users/send-otp [post]
func (h *AuthHandler) SendOTP(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	if err := h.authService.SendOTP(c.Request().Context(), user.ID); err != nil {
		return err
	}
	return respond(c, http.StatusOK, nil, "Email sent successfully")
}

// VerifyOTP godoc
// @Summary Verify the signed-in user's one-time code
// @Tags auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body VerifyOTPRequest true "OTP"
// @Success 200 {object} ApiResponse
// @Failure 400 {object} errors.ErrorResponse
// @Router /users/verify-otp [post]
func (h *AuthHandler) VerifyOTP(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req VerifyOTPRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := h.authService.VerifyOTP(c.Request().Context(), user.ID, req.OTP); err != nil {
		return err
	}
	return respond(c, http.StatusOK, nil, "Verified successfully")
}

// ChangePassword godoc
// @Summary Change the signed-in user's password
// @Tags auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ChangePasswordRequest true "Old and new password"
// @Success 200 {object} ApiResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Router /users/change-password [post]
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req ChangePasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if req.NewPassword != req.ConfPassword {
		return apperrors.Wrap(http.StatusBadRequest, "New password and confirm password must match", apperrors.ErrBadRequest)
	}

	if err := h.authService.ChangePassword(c.Request().Context(), user.ID, req.OldPassword, req.NewPassword); err != nil {
		return err
	}
	return respond(c, http.StatusOK, echo.Map{}, "Password changed successfully")
}
