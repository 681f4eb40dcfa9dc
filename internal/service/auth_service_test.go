package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"h2grid/internal/auth"
	"h2grid/internal/mailer"
	"h2grid/internal/model"
)

func newTestJWT() *auth.JWTService {
	return auth.NewJWTService("access-secret", "refresh-secret", 15*time.Minute, 7*24*time.Hour)
}

func newTestAuthService(repo *MockUserRepository, mail *MockMailer, blacklist *MockBlacklist) *authService {
	if mail == nil {
		mail = new(MockMailer)
	}
	if blacklist == nil {
		blacklist = new(MockBlacklist)
	}
	return NewAuthService(repo, newTestJWT(), blacklist, nil, mail, nil, nil).(*authService)
}

func userWithPassword(t *testing.T, password string) *model.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	return &model.User{
		ID:           uuid.New(),
		Username:     "alice",
		Fullname:     "Alice Doe",
		Email:        "alice@example.com",
		PasswordHash: hash,
		Role:         model.RoleUser,
		IsActive:     true,
	}
}

func TestAuthService_Register(t *testing.T) {
	tests := []struct {
		name          string
		setupMock     func(*MockUserRepository)
		expectedError error
	}{
		{
			name: "successful registration",
			setupMock: func(m *MockUserRepository) {
				m.On("ExistsByUsernameOrEmail", mock.Anything, "alice", "alice@example.com").Return(false, nil)
				m.On("Create", mock.Anything, mock.AnythingOfType("*model.User")).Return(nil)
				m.On("Update", mock.Anything, mock.AnythingOfType("*model.User")).Return(nil)
			},
		},
		{
			name: "user already exists",
			setupMock: func(m *MockUserRepository) {
				m.On("ExistsByUsernameOrEmail", mock.Anything, "alice", "alice@example.com").Return(true, nil)
			},
			expectedError: ErrUserAlreadyExists,
		},
		{
			name: "unique index race",
			setupMock: func(m *MockUserRepository) {
				m.On("ExistsByUsernameOrEmail", mock.Anything, "alice", "alice@example.com").Return(false, nil)
				m.On("Create", mock.Anything, mock.AnythingOfType("*model.User")).Return(gorm.ErrDuplicatedKey)
			},
			expectedError: ErrUserAlreadyExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockUserRepository)
			tt.setupMock(mockRepo)
			svc := newTestAuthService(mockRepo, nil, nil)

			user, tokens, err := svc.Register(context.Background(), RegisterInput{
				Username: " alice ",
				Fullname: "Alice Doe",
				Email:    "Alice@Example.com",
				Password: "Str0ng!Pass",
			})
			if tt.expectedError != nil {
				assert.Equal(t, tt.expectedError, err)
				assert.Nil(t, user)
				assert.Nil(t, tokens)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "alice", user.Username)
				assert.Equal(t, "alice@example.com", user.Email)
				assert.Equal(t, model.RoleUser, user.Role)
				assert.NotEqual(t, "Str0ng!Pass", user.PasswordHash)
				assert.NotEmpty(t, tokens.AccessToken)
				assert.Equal(t, auth.HashToken(tokens.RefreshToken), user.RefreshTokenHash)
			}
			mockRepo.AssertExpectations(t)
		})
	}
}

func TestAuthService_Login(t *testing.T) {
	tests := []struct {
		name          string
		identifier    string
		password      string
		setupMock     func(*testing.T, *MockUserRepository)
		expectedError error
	}{
		{
			name:       "successful login",
			identifier: "alice",
			password:   "Str0ng!Pass",
			setupMock: func(t *testing.T, m *MockUserRepository) {
				m.On("FindByLogin", mock.Anything, "alice").Return(userWithPassword(t, "Str0ng!Pass"), nil)
				m.On("Update", mock.Anything, mock.AnythingOfType("*model.User")).Return(nil)
			},
		},
		{
			name:       "unknown user",
			identifier: "nobody@example.com",
			password:   "Str0ng!Pass",
			setupMock: func(t *testing.T, m *MockUserRepository) {
				m.On("FindByLogin", mock.Anything, "nobody@example.com").Return(nil, gorm.ErrRecordNotFound)
			},
			expectedError: ErrUnknownUser,
		},
		{
			name:       "wrong password",
			identifier: "alice",
			password:   "Wr0ng!Pass",
			setupMock: func(t *testing.T, m *MockUserRepository) {
				m.On("FindByLogin", mock.Anything, "alice").Return(userWithPassword(t, "Str0ng!Pass"), nil)
			},
			expectedError: ErrInvalidCredentials,
		},
		{
			name:       "federated account without password",
			identifier: "alice",
			password:   "",
			setupMock: func(t *testing.T, m *MockUserRepository) {
				m.On("FindByLogin", mock.Anything, "alice").Return(&model.User{ID: uuid.New(), IsActive: true}, nil)
			},
			expectedError: ErrInvalidCredentials,
		},
		{
			name:       "deactivated account",
			identifier: "alice",
			password:   "Str0ng!Pass",
			setupMock: func(t *testing.T, m *MockUserRepository) {
				u := userWithPassword(t, "Str0ng!Pass")
				u.IsActive = false
				m.On("FindByLogin", mock.Anything, "alice").Return(u, nil)
			},
			expectedError: ErrAccountDisabled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockUserRepository)
			tt.setupMock(t, mockRepo)
			svc := newTestAuthService(mockRepo, nil, nil)

			user, tokens, err := svc.Login(context.Background(), tt.identifier, tt.password)
			if tt.expectedError != nil {
				assert.Equal(t, tt.expectedError, err)
				assert.Nil(t, user)
				assert.Nil(t, tokens)
			} else {
				require.NoError(t, err)
				assert.NotEmpty(t, tokens.AccessToken)
				assert.NotEmpty(t, tokens.RefreshToken)
			}
			mockRepo.AssertExpectations(t)
		})
	}
}

func TestAuthService_LoginInvalidatesPreviousRefreshToken(t *testing.T) {
	user := userWithPassword(t, "Str0ng!Pass")
	mockRepo := new(MockUserRepository)
	mockRepo.On("FindByLogin", mock.Anything, "alice").Return(user, nil)
	mockRepo.On("FindByID", mock.Anything, user.ID).Return(user, nil)
	mockRepo.On("Update", mock.Anything, user).Return(nil)
	svc := newTestAuthService(mockRepo, nil, nil)
	ctx := context.Background()

	_, first, err := svc.Login(ctx, "alice", "Str0ng!Pass")
	require.NoError(t, err)
	_, err = svc.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)

	_, second, err := svc.Login(ctx, "alice", "Str0ng!Pass")
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)

	_, err = svc.Refresh(ctx, first.RefreshToken)
	assert.Equal(t, ErrStaleRefreshToken, err)

	access, err := svc.Refresh(ctx, second.RefreshToken)
	require.NoError(t, err)
	claims, err := newTestJWT().ValidateAccessToken(access)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), claims.UserID)

	_, err = svc.Refresh(ctx, "not-a-token")
	assert.Equal(t, ErrInvalidRefreshToken, err)
	_, err = svc.Refresh(ctx, second.AccessToken)
	assert.Equal(t, ErrInvalidRefreshToken, err, "access token signed with the other secret")
}

func TestAuthService_RefreshUserLookup(t *testing.T) {
	dbDown := errors.New("connection refused")

	tests := []struct {
		name      string
		digest    string
		findErr   error
		wantErr   error
		wantStale bool
	}{
		{name: "user deleted", findErr: gorm.ErrRecordNotFound, wantErr: ErrStaleRefreshToken, wantStale: true},
		{name: "logged out everywhere", digest: "", wantErr: ErrStaleRefreshToken, wantStale: true},
		{name: "database unavailable", findErr: dbDown, wantErr: dbDown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := userWithPassword(t, "Str0ng!Pass")
			user.RefreshTokenHash = tt.digest
			refresh, err := newTestJWT().GenerateRefreshToken(user)
			require.NoError(t, err)

			mockRepo := new(MockUserRepository)
			if tt.findErr != nil {
				mockRepo.On("FindByID", mock.Anything, user.ID).Return(nil, tt.findErr)
			} else {
				mockRepo.On("FindByID", mock.Anything, user.ID).Return(user, nil)
			}
			svc := newTestAuthService(mockRepo, nil, nil)

			_, err = svc.Refresh(context.Background(), refresh)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			if !tt.wantStale {
				assert.NotErrorIs(t, err, ErrStaleRefreshToken)
			}
			mockRepo.AssertExpectations(t)
		})
	}
}

func TestAuthService_Logout(t *testing.T) {
	user := userWithPassword(t, "Str0ng!Pass")
	user.RefreshTokenHash = "digest"
	mockRepo := new(MockUserRepository)
	mockRepo.On("FindByID", mock.Anything, user.ID).Return(user, nil)
	mockRepo.On("Update", mock.Anything, user).Return(nil)

	access, err := newTestJWT().GenerateAccessToken(user)
	require.NoError(t, err)
	claims, err := newTestJWT().ValidateAccessToken(access)
	require.NoError(t, err)

	blacklist := new(MockBlacklist)
	blacklist.On("Revoke", mock.Anything, claims.ID, mock.MatchedBy(func(ttl time.Duration) bool {
		return ttl > 0 && ttl <= 15*time.Minute
	})).Return(nil)

	svc := newTestAuthService(mockRepo, nil, blacklist)
	require.NoError(t, svc.Logout(context.Background(), user.ID, claims))

	assert.Empty(t, user.RefreshTokenHash)
	blacklist.AssertExpectations(t)
}

func TestAuthService_ResetPasswordExpiry(t *testing.T) {
	tests := []struct {
		name          string
		elapsed       time.Duration
		expectedError error
	}{
		{name: "within window", elapsed: 10 * time.Minute},
		{name: "after fifteen minutes", elapsed: 16 * time.Minute, expectedError: ErrInvalidResetToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := userWithPassword(t, "Str0ng!Pass")
			oldHash := user.PasswordHash
			mockRepo := new(MockUserRepository)
			mockRepo.On("FindByEmail", mock.Anything, "alice@example.com").Return(user, nil)
			mockRepo.On("Update", mock.Anything, user).Return(nil)

			var sent mailer.Message
			mail := new(MockMailer)
			mail.On("Send", mock.Anything, mock.AnythingOfType("mailer.Message")).
				Run(func(args mock.Arguments) { sent = args.Get(1).(mailer.Message) }).
				Return(nil)

			svc := newTestAuthService(mockRepo, mail, nil)
			start := time.Now()
			svc.now = func() time.Time { return start }
			ctx := context.Background()

			require.NoError(t, svc.ForgotPassword(ctx, "alice@example.com"))
			assert.Equal(t, "alice@example.com", sent.To)
			firstLine := strings.SplitN(sent.Text, "\n", 2)[0]
			token := strings.TrimPrefix(firstLine, "Your password reset token: ")
			require.NotEmpty(t, token)
			assert.NotEqual(t, token, user.ResetPasswordHash)

			assert.Equal(t, ErrInvalidResetToken, svc.ResetPassword(ctx, "alice@example.com", "wrong", "N3w!Passw0rd"))

			svc.now = func() time.Time { return start.Add(tt.elapsed) }
			err := svc.ResetPassword(ctx, "alice@example.com", token, "N3w!Passw0rd")
			if tt.expectedError != nil {
				assert.Equal(t, tt.expectedError, err)
				assert.Equal(t, oldHash, user.PasswordHash)
				return
			}
			require.NoError(t, err)
			assert.True(t, auth.CheckPassword(user.PasswordHash, "N3w!Passw0rd"))
			assert.Empty(t, user.ResetPasswordHash)
			assert.Nil(t, user.ResetPasswordExpires)
		})
	}
}

func TestAuthService_OTP(t *testing.T) {
	user := userWithPassword(t, "Str0ng!Pass")
	mockRepo := new(MockUserRepository)
	mockRepo.On("FindByID", mock.Anything, user.ID).Return(user, nil)
	mockRepo.On("Update", mock.Anything, user).Return(nil)

	var sent mailer.Message
	mail := new(MockMailer)
	mail.On("Send", mock.Anything, mock.AnythingOfType("mailer.Message")).
		Run(func(args mock.Arguments) { sent = args.Get(1).(mailer.Message) }).
		Return(nil)

	svc := newTestAuthService(mockRepo, mail, nil)
	start := time.Now()
	svc.now = func() time.Time { return start }
	ctx := context.Background()

	require.NoError(t, svc.SendOTP(ctx, user.ID))
	code := strings.TrimPrefix(sent.Text, "Your OTP is: ")
	assert.Len(t, code, 6)
	assert.False(t, user.IsVerified)

	assert.Equal(t, ErrInvalidOTP, svc.VerifyOTP(ctx, user.ID, "abcdef"))

	svc.now = func() time.Time { return start.Add(6 * time.Minute) }
	assert.Equal(t, ErrInvalidOTP, svc.VerifyOTP(ctx, user.ID, code))

	svc.now = func() time.Time { return start.Add(time.Minute) }
	require.NoError(t, svc.VerifyOTP(ctx, user.ID, code))
	assert.True(t, user.IsVerified)
	assert.Empty(t, user.OTP)

	assert.Equal(t, ErrInvalidOTP, svc.VerifyOTP(ctx, user.ID, code), "codes are single use")
}

func TestAuthService_SendOTPFederatedUser(t *testing.T) {
	subject := "google-sub"
	user := &model.User{ID: uuid.New(), Username: "bob", Email: "bob@example.com", GoogleID: &subject, IsActive: true}
	mockRepo := new(MockUserRepository)
	mockRepo.On("FindByID", mock.Anything, user.ID).Return(user, nil)
	mockRepo.On("Update", mock.Anything, user).Return(nil)
	mail := new(MockMailer)
	mail.On("Send", mock.Anything, mock.AnythingOfType("mailer.Message")).Return(nil)

	svc := newTestAuthService(mockRepo, mail, nil)
	require.NoError(t, svc.SendOTP(context.Background(), user.ID))

	assert.True(t, user.IsVerified)
	assert.Empty(t, user.OTP)
	mail.AssertExpectations(t)
}

func TestAuthService_ChangePassword(t *testing.T) {
	user := userWithPassword(t, "Str0ng!Pass")
	mockRepo := new(MockUserRepository)
	mockRepo.On("FindByID", mock.Anything, user.ID).Return(user, nil)
	mockRepo.On("Update", mock.Anything, user).Return(nil)
	svc := newTestAuthService(mockRepo, nil, nil)
	ctx := context.Background()

	err := svc.ChangePassword(ctx, user.ID, "nope", "N3w!Passw0rd")
	require.Error(t, err)
	assert.Equal(t, "Old password is incorrect", err.Error())

	require.NoError(t, svc.ChangePassword(ctx, user.ID, "Str0ng!Pass", "N3w!Passw0rd"))
	assert.True(t, auth.CheckPassword(user.PasswordHash, "N3w!Passw0rd"))
}

func TestAuthService_GoogleLoginNotConfigured(t *testing.T) {
	svc := newTestAuthService(new(MockUserRepository), nil, nil)
	_, _, err := svc.GoogleLogin(context.Background(), "id-token")
	require.Error(t, err)
	assert.Equal(t, "Google login is not configured", err.Error())
}
