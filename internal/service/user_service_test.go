package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/metastudy/metastudy-api/internal/dto"
	"github.com/metastudy/metastudy-api/internal/models"
)

const testJWTSecret = "test-secret"

func newUserServiceForTest(t *testing.T, users *memoryUserRepo, mailer EmailSender) UserService {
	t.Helper()
	validate := validator.New(validator.WithRequiredStructEnabled())
	return NewUserService(users, mailer, validate, testLogger(), testJWTSecret, time.Hour, "https://app.example.com")
}

func registerPayload() dto.RegisterRequest {
	return dto.RegisterRequest{
		Name:     "Mina",
		Email:    "Mina@Example.com",
		Password: "correct-horse",
		Role:     models.RoleStudent,
	}
}

func TestRegisterAndLogin(t *testing.T) {
	users := newMemoryUserRepo()
	svc := newUserServiceForTest(t, users, nil)

	registered, err := svc.Register(context.Background(), registerPayload())
	require.NoError(t, err)
	require.Equal(t, "mina@example.com", registered.Email)
	require.False(t, registered.Verified)

	result, err := svc.Login(context.Background(), dto.LoginRequest{Email: "MINA@example.com", Password: "correct-horse"})
	require.NoError(t, err)
	require.Equal(t, registered.ID, result.User.ID)

	parsed, err := jwt.Parse(result.Token, func(token *jwt.Token) (interface{}, error) {
		return []byte(testJWTSecret), nil
	})
	require.NoError(t, err)
	claims, ok := parsed.Claims.(jwt.MapClaims)
	require.True(t, ok)
	require.Equal(t, float64(registered.ID), claims["sub"])
	require.Equal(t, models.RoleStudent, claims["role"])
}

func TestRegisterDuplicateEmail(t *testing.T) {
	users := newMemoryUserRepo()
	svc := newUserServiceForTest(t, users, nil)

	_, err := svc.Register(context.Background(), registerPayload())
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), registerPayload())
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	users := newMemoryUserRepo()
	svc := newUserServiceForTest(t, users, nil)

	_, err := svc.Register(context.Background(), registerPayload())
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), dto.LoginRequest{Email: "mina@example.com", Password: "wrong-password"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), dto.LoginRequest{Email: "nobody@example.com", Password: "correct-horse"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerifyEmailFlow(t *testing.T) {
	users := newMemoryUserRepo()
	mailer := &fakeMailer{}
	svc := newUserServiceForTest(t, users, mailer)

	registered, err := svc.Register(context.Background(), registerPayload())
	require.NoError(t, err)
	require.Len(t, mailer.sent, 1)
	require.Contains(t, mailer.sent[0], "Verify your email")

	var token string
	for _, record := range users.tokens {
		if record.Purpose == models.TokenPurposeVerifyEmail {
			token = record.Token
		}
	}
	require.NotEmpty(t, token)

	require.NoError(t, svc.VerifyEmail(context.Background(), token))

	profile, err := svc.Profile(context.Background(), registered.ID)
	require.NoError(t, err)
	require.True(t, profile.Verified)

	// Tokens are single use.
	require.ErrorIs(t, svc.VerifyEmail(context.Background(), token), ErrInvalidToken)
}

func TestPasswordResetFlow(t *testing.T) {
	users := newMemoryUserRepo()
	mailer := &fakeMailer{}
	svc := newUserServiceForTest(t, users, mailer)

	_, err := svc.Register(context.Background(), registerPayload())
	require.NoError(t, err)

	require.NoError(t, svc.RequestPasswordReset(context.Background(), "mina@example.com"))

	var token string
	for _, record := range users.tokens {
		if record.Purpose == models.TokenPurposeResetPassword {
			token = record.Token
		}
	}
	require.NotEmpty(t, token)

	err = svc.ResetPassword(context.Background(), dto.ResetPasswordRequest{Token: token, Password: "new-password-1"})
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), dto.LoginRequest{Email: "mina@example.com", Password: "correct-horse"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), dto.LoginRequest{Email: "mina@example.com", Password: "new-password-1"})
	require.NoError(t, err)
}

func TestPasswordResetUnknownEmailIsSilent(t *testing.T) {
	users := newMemoryUserRepo()
	mailer := &fakeMailer{}
	svc := newUserServiceForTest(t, users, mailer)

	require.NoError(t, svc.RequestPasswordReset(context.Background(), "ghost@example.com"))
	require.Empty(t, mailer.sent)
	require.Empty(t, users.tokens)
}

func TestExpiredResetTokenRejected(t *testing.T) {
	users := newMemoryUserRepo()
	svc := newUserServiceForTest(t, users, nil)

	registered, err := svc.Register(context.Background(), registerPayload())
	require.NoError(t, err)

	expired := models.VerificationToken{
		UserID:    registered.ID,
		Token:     "stale-token",
		Purpose:   models.TokenPurposeResetPassword,
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	require.NoError(t, users.CreateToken(context.Background(), &expired))

	err = svc.ResetPassword(context.Background(), dto.ResetPasswordRequest{Token: "stale-token", Password: "new-password-1"})
	require.ErrorIs(t, err, ErrInvalidToken)
	require.Empty(t, users.tokens)
}
