package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"h2grid/internal/auth"
	"h2grid/internal/cache"
	apperrors "h2grid/internal/errors"
	"h2grid/internal/logger"
	"h2grid/internal/mailer"
	"h2grid/internal/model"
	"h2grid/internal/repository"
)

const (
	resetTokenTTL = 15 * time.Minute
	otpTTL        = 5 * time.Minute
)

var (
	// ErrInvalidCredentials is returned when the password does not match.
	ErrInvalidCredentials = apperrors.Wrap(http.StatusUnauthorized, "Invalid credentials", apperrors.ErrUnauthorized)
	// ErrUnknownUser is returned when no user matches the login identifier.
	ErrUnknownUser = apperrors.Wrap(http.StatusUnauthorized, "User doesn't exist", apperrors.ErrUnauthorized)
	// ErrUserAlreadyExists is returned when username or email is taken.
	ErrUserAlreadyExists = apperrors.Wrap(http.StatusConflict, "User already exists, please try to login", apperrors.ErrConflict)
	// ErrInvalidRefreshToken is returned when the refresh token fails verification.
	ErrInvalidRefreshToken = apperrors.Wrap(http.StatusUnauthorized, "Invalid refresh token", apperrors.ErrUnauthorized)
	// ErrStaleRefreshToken is returned when the refresh token is not the one on record.
	ErrStaleRefreshToken = apperrors.Wrap(http.StatusUnauthorized, "Refresh token not valid for user", apperrors.ErrUnauthorized)
	// ErrInvalidResetToken is returned for a wrong or expired reset token.
	ErrInvalidResetToken = apperrors.Wrap(http.StatusBadRequest, "Invalid or expired token", apperrors.ErrBadRequest)
	// ErrInvalidOTP is returned for a wrong or expired one-time code.
	ErrInvalidOTP = apperrors.Wrap(http.StatusBadRequest, "Invalid or expired OTP", apperrors.ErrBadRequest)
	// ErrAccountDisabled is returned when a deactivated user tries to sign in.
	ErrAccountDisabled = apperrors.Wrap(http.StatusForbidden, "Account is deactivated", apperrors.ErrForbidden)
)

// Tokens is an access/refresh pair.
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// RegisterInput carries the fields accepted at sign-up.
type RegisterInput struct {
	Username string
	Fullname string
	Email    string
	Password string
	PhoneNo  string
}

// AuthService handles authentication operations. Each user holds at most
// one live refresh token: every login or registration replaces it.
type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*model.User, *Tokens, error)
	Login(ctx context.Context, identifier, password string) (*model.User, *Tokens, error)
	GoogleLogin(ctx context.Context, idToken string) (*model.User, *Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	Logout(ctx context.Context, userID uuid.UUID, access *auth.Claims) error
	LogoutAll(ctx context.Context, userID uuid.UUID) error
	ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email, token, newPassword string) error
	SendOTP(ctx context.Context, userID uuid.UUID) error
	VerifyOTP(ctx context.Context, userID uuid.UUID, otp string) error
	VerifyEmail(ctx context.Context, email, otp string) error
	DeleteAccount(ctx context.Context, userID uuid.UUID) error
}

type authService struct {
	users     repository.UserRepository
	jwt       *auth.JWTService
	blacklist auth.TokenBlacklist
	google    auth.GoogleVerifier
	mail      mailer.Mailer
	cache     *cache.Client
	log       *logger.Logger
	now       func() time.Time
}

// NewAuthService creates a new authentication service.
func NewAuthService(
	users repository.UserRepository,
	jwtService *auth.JWTService,
	blacklist auth.TokenBlacklist,
	google auth.GoogleVerifier,
	mail mailer.Mailer,
	cache *cache.Client,
	log *logger.Logger,
) AuthService {
	if log == nil {
		log = logger.Nop()
	}
	return &authService{
		users:     users,
		jwt:       jwtService,
		blacklist: blacklist,
		google:    google,
		mail:      mail,
		cache:     cache,
		log:       log,
		now:       time.Now,
	}
}

func (s *authService) save(ctx context.Context, user *model.User) error {
	if err := s.users.Update(ctx, user); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	_ = s.cache.Delete(ctx, userCacheKey(user.ID))
	return nil
}

func (s *authService) findByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

// issueTokens signs a fresh pair and records the refresh digest, replacing
// whatever token was stored before.
func (s *authService) issueTokens(ctx context.Context, user *model.User) (*Tokens, error) {
	access, err := s.jwt.GenerateAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}
	refresh, err := s.jwt.GenerateRefreshToken(user)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	user.RefreshTokenHash = auth.HashToken(refresh)
	if err := s.save(ctx, user); err != nil {
		return nil, err
	}
	return &Tokens{AccessToken: access, RefreshToken: refresh}, nil
}

// Register creates a user with a hashed password and signs it in.
func (s *authService) Register(ctx context.Context, in RegisterInput) (*model.User, *Tokens, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	username := strings.TrimSpace(in.Username)

	exists, err := s.users.ExistsByUsernameOrEmail(ctx, username, email)
	if err != nil {
		return nil, nil, fmt.Errorf("check user existence: %w", err)
	}
	if exists {
		return nil, nil, ErrUserAlreadyExists
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, nil, err
	}
	user := &model.User{
		Username:     username,
		Fullname:     strings.TrimSpace(in.Fullname),
		Email:        email,
		PhoneNo:      strings.TrimSpace(in.PhoneNo),
		PasswordHash: hash,
		Role:         model.RoleUser,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, nil, ErrUserAlreadyExists
		}
		return nil, nil, fmt.Errorf("create user: %w", err)
	}

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	s.log.Info("user registered", "userId", user.ID, "username", user.Username)
	return user, tokens, nil
}

// Login accepts a username or an email as identifier.
func (s *authService) Login(ctx context.Context, identifier, password string) (*model.User, *Tokens, error) {
	user, err := s.users.FindByLogin(ctx, strings.TrimSpace(identifier))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrUnknownUser
	}
	if err != nil {
		return nil, nil, fmt.Errorf("find user: %w", err)
	}
	if !user.HasPassword() || !auth.CheckPassword(user.PasswordHash, password) {
		return nil, nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, nil, ErrAccountDisabled
	}

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return user, tokens, nil
}

// GoogleLogin signs in with a Google ID token, linking or creating the
// account. Federated accounts are verified on creation.
func (s *authService) GoogleLogin(ctx context.Context, idToken string) (*model.User, *Tokens, error) {
	if s.google == nil {
		return nil, nil, apperrors.Wrap(http.StatusServiceUnavailable, "Google login is not configured", apperrors.ErrUnavailable)
	}
	identity, err := s.google.Verify(ctx, idToken)
	if errors.Is(err, auth.ErrGoogleDisabled) {
		return nil, nil, apperrors.Wrap(http.StatusServiceUnavailable, "Google login is not configured", apperrors.ErrUnavailable)
	}
	if err != nil {
		s.log.Warn("google id token rejected", "error", err)
		return nil, nil, apperrors.Wrap(http.StatusUnauthorized, "Invalid Google token", apperrors.ErrUnauthorized)
	}

	user, err := s.users.FindByGoogleID(ctx, identity.Subject)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user, err = s.linkOrCreateGoogleUser(ctx, identity)
	}
	if err != nil {
		return nil, nil, err
	}
	if !user.IsActive {
		return nil, nil, ErrAccountDisabled
	}

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return user, tokens, nil
}

func (s *authService) linkOrCreateGoogleUser(ctx context.Context, identity *auth.GoogleIdentity) (*model.User, error) {
	subject := identity.Subject
	user, err := s.users.FindByEmail(ctx, identity.Email)
	if err == nil {
		user.GoogleID = &subject
		user.IsVerified = true
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("find user: %w", err)
	}

	username, err := s.freeUsername(ctx, identity.Email)
	if err != nil {
		return nil, err
	}
	fullname := identity.Name
	if fullname == "" {
		fullname = username
	}
	user = &model.User{
		Username:   username,
		Fullname:   fullname,
		Email:      strings.ToLower(identity.Email),
		GoogleID:   &subject,
		Role:       model.RoleUser,
		IsVerified: true,
		IsActive:   true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create google user: %w", err)
	}
	return user, nil
}

func (s *authService) freeUsername(ctx context.Context, email string) (string, error) {
	base := strings.ToLower(strings.SplitN(email, "@", 2)[0])
	candidate := base
	for i := 0; i < 5; i++ {
		taken, err := s.users.ExistsByUsernameOrEmail(ctx, candidate, "")
		if err != nil {
			return "", fmt.Errorf("check username: %w", err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = base + "-" + uuid.NewString()[:6]
	}
	return "", apperrors.Wrap(http.StatusConflict, "Could not allocate a username", apperrors.ErrConflict)
}

// Refresh issues a new access token. The refresh token itself is not rotated.
func (s *authService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", apperrors.Wrap(http.StatusUnauthorized, "Refresh token missing", apperrors.ErrUnauthorized)
	}
	claims, err := s.jwt.ValidateRefreshToken(refreshToken)
	if err != nil {
		return "", ErrInvalidRefreshToken
	}
	id, err := claims.UserUUID()
	if err != nil {
		return "", ErrInvalidRefreshToken
	}

	user, err := s.users.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrStaleRefreshToken
	}
	if err != nil {
		return "", fmt.Errorf("load user for refresh: %w", err)
	}
	if user.RefreshTokenHash == "" {
		return "", ErrStaleRefreshToken
	}
	if subtle.ConstantTimeCompare([]byte(user.RefreshTokenHash), []byte(auth.HashToken(refreshToken))) != 1 {
		return "", ErrStaleRefreshToken
	}
	if !user.IsActive {
		return "", ErrAccountDisabled
	}

	access, err := s.jwt.GenerateAccessToken(user)
	if err != nil {
		return "", fmt.Errorf("generate access token: %w", err)
	}
	return access, nil
}

// Logout drops the stored refresh token and revokes the presented access
// token until it would have expired anyway.
func (s *authService) Logout(ctx context.Context, userID uuid.UUID, access *auth.Claims) error {
	if err := s.LogoutAll(ctx, userID); err != nil {
		return err
	}
	if access != nil && access.ExpiresAt != nil {
		ttl := access.ExpiresAt.Time.Sub(s.now())
		if err := s.blacklist.Revoke(ctx, access.ID, ttl); err != nil {
			s.log.Warn("revoke access token failed", "userId", userID, "error", err)
		}
	}
	return nil
}

// LogoutAll invalidates the user's refresh token.
func (s *authService) LogoutAll(ctx context.Context, userID uuid.UUID) error {
	user, err := s.findByID(ctx, userID)
	if err != nil {
		return err
	}
	user.RefreshTokenHash = ""
	return s.save(ctx, user)
}

func (s *authService) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error {
	user, err := s.findByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.HasPassword() {
		return apperrors.Wrap(http.StatusBadRequest, "Password login is not enabled for this account", apperrors.ErrBadRequest)
	}
	if !auth.CheckPassword(user.PasswordHash, oldPassword) {
		return apperrors.Wrap(http.StatusBadRequest, "Old password is incorrect", apperrors.ErrBadRequest)
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	return s.save(ctx, user)
}

// ForgotPassword stores a reset token digest valid for 15 minutes and mails
// the raw token.
func (s *authService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.users.FindByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("find user: %w", err)
	}
	return issueResetToken(ctx, s.users, s.mail, user, s.now())
}

// issueResetToken is shared with the admin forced reset.
func issueResetToken(ctx context.Context, users repository.UserRepository, mail mailer.Mailer, user *model.User, now time.Time) error {
	token, err := auth.NewResetToken()
	if err != nil {
		return err
	}
	expires := now.Add(resetTokenTTL)
	user.ResetPasswordHash = auth.HashToken(token)
	user.ResetPasswordExpires = &expires
	if err := users.Update(ctx, user); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}
	msg := mailer.Message{
		To:      user.Email,
		Subject: "Password Reset",
		Text:    "Your password reset token: " + token + "\nIt expires in 15 minutes.",
	}
	if err := mail.Send(ctx, msg); err != nil {
		return fmt.Errorf("send reset email: %w", err)
	}
	return nil
}

func (s *authService) ResetPassword(ctx context.Context, email, token, newPassword string) error {
	user, err := s.users.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return ErrInvalidResetToken
	}
	if user.ResetPasswordHash == "" || user.ResetPasswordExpires == nil || !s.now().Before(*user.ResetPasswordExpires) {
		return ErrInvalidResetToken
	}
	if subtle.ConstantTimeCompare([]byte(user.ResetPasswordHash), []byte(auth.HashToken(token))) != 1 {
		return ErrInvalidResetToken
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	user.ResetPasswordHash = ""
	user.ResetPasswordExpires = nil
	return s.save(ctx, user)
}

// SendOTP mails a six digit code valid for five minutes. Google accounts
// are verified immediately instead.
func (s *authService) SendOTP(ctx context.Context, userID uuid.UUID) error {
	user, err := s.findByID(ctx, userID)
	if err != nil {
		return err
	}

	msg := mailer.Message{To: user.Email}
	if user.IsFederated() {
		user.IsVerified = true
		msg.Subject = "Your login confirmation"
		msg.Text = fmt.Sprintf("Hello %s, welcome back!", user.Username)
	} else {
		code, err := auth.NewOTP()
		if err != nil {
			return err
		}
		expires := s.now().Add(otpTTL)
		user.OTP = code
		user.OTPExpiresAt = &expires
		msg.Subject = "Your One-Time Password (OTP) for Secure Verification"
		msg.Text = "Your OTP is: " + code
	}
	if err := s.save(ctx, user); err != nil {
		return err
	}
	if err := s.mail.Send(ctx, msg); err != nil {
		return fmt.Errorf("send otp email: %w", err)
	}
	return nil
}

// VerifyOTP is a no-op for Google accounts.
func (s *authService) VerifyOTP(ctx context.Context, userID uuid.UUID, otp string) error {
	user, err := s.findByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.IsFederated() {
		user.IsVerified = true
		return s.save(ctx, user)
	}
	return s.consumeOTP(ctx, user, otp)
}

func (s *authService) VerifyEmail(ctx context.Context, email, otp string) error {
	user, err := s.users.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return ErrInvalidOTP
	}
	return s.consumeOTP(ctx, user, otp)
}

func (s *authService) consumeOTP(ctx context.Context, user *model.User, otp string) error {
	if user.OTP == "" || user.OTPExpiresAt == nil || !s.now().Before(*user.OTPExpiresAt) {
		return ErrInvalidOTP
	}
	if subtle.ConstantTimeCompare([]byte(user.OTP), []byte(otp)) != 1 {
		return ErrInvalidOTP
	}
	user.OTP = ""
	user.OTPExpiresAt = nil
	user.IsVerified = true
	return s.save(ctx, user)
}

func (s *authService) DeleteAccount(ctx context.Context, userID uuid.UUID) error {
	if err := s.users.Delete(ctx, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("delete user: %w", err)
	}
	_ = s.cache.Delete(ctx, userCacheKey(userID))
	return nil
}
