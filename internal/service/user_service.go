package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/metastudy/metastudy-api/internal/dto"
	"github.com/metastudy/metastudy-api/internal/models"
	"github.com/metastudy/metastudy-api/internal/repository"
)

const (
	verifyTokenTTL = 48 * time.Hour
	resetTokenTTL  = time.Hour
)

// UserService manages registration, authentication and account recovery.
type UserService interface {
	Register(ctx context.Context, payload dto.RegisterRequest) (dto.UserResponse, error)
	Login(ctx context.Context, payload dto.LoginRequest) (dto.LoginResponse, error)
	Profile(ctx context.Context, userID uint) (dto.UserResponse, error)
	ListByIDs(ctx context.Context, ids []uint) ([]dto.UserResponse, error)
	VerifyEmail(ctx context.Context, token string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, payload dto.ResetPasswordRequest) error
}

type userService struct {
	users           repository.UserRepository
	mailer          EmailSender
	validator       *validator.Validate
	logger          zerolog.Logger
	jwtSecret       []byte
	tokenTTL        time.Duration
	frontendBaseURL string
	now             func() time.Time
}

// NewUserService constructs the user service.
func NewUserService(
	users repository.UserRepository,
	mailer EmailSender,
	validate *validator.Validate,
	logger zerolog.Logger,
	jwtSecret string,
	tokenTTL time.Duration,
	frontendBaseURL string,
) UserService {
	return &userService{
		users:           users,
		mailer:          mailer,
		validator:       validate,
		logger:          logger.With().Str("component", "user_service").Logger(),
		jwtSecret:       []byte(jwtSecret),
		tokenTTL:        tokenTTL,
		frontendBaseURL: strings.TrimRight(frontendBaseURL, "/"),
		now:             time.Now,
	}
}

func (s *userService) Register(ctx context.Context, payload dto.RegisterRequest) (dto.UserResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.UserResponse{}, err
	}

	email := strings.ToLower(strings.TrimSpace(payload.Email))

	hash, err := bcrypt.GenerateFromPassword([]byte(payload.Password), bcrypt.DefaultCost)
	if err != nil {
		return dto.UserResponse{}, fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.User{
		Name:         strings.TrimSpace(payload.Name),
		Email:        email,
		PasswordHash: string(hash),
		Role:         payload.Role,
	}

	if err := s.users.Create(ctx, &user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return dto.UserResponse{}, ErrEmailTaken
		}
		return dto.UserResponse{}, err
	}

	s.sendVerification(ctx, user)

	s.logger.Info().Uint("user_id", user.ID).Str("role", user.Role).Msg("user registered")

	return dto.NewUserResponse(user), nil
}

func (s *userService) Login(ctx context.Context, payload dto.LoginRequest) (dto.LoginResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.LoginResponse{}, err
	}

	email := strings.ToLower(strings.TrimSpace(payload.Email))

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Same failure as a bad password so login probes cannot
			// distinguish unknown accounts.
			return dto.LoginResponse{}, ErrInvalidCredentials
		}
		return dto.LoginResponse{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(payload.Password)); err != nil {
		return dto.LoginResponse{}, ErrInvalidCredentials
	}

	token, err := s.issueToken(user)
	if err != nil {
		return dto.LoginResponse{}, err
	}

	return dto.LoginResponse{Token: token, User: dto.NewUserResponse(user)}, nil
}

func (s *userService) Profile(ctx context.Context, userID uint) (dto.UserResponse, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.UserResponse{}, ErrUserNotFound
		}
		return dto.UserResponse{}, err
	}
	return dto.NewUserResponse(user), nil
}

func (s *userService) ListByIDs(ctx context.Context, ids []uint) ([]dto.UserResponse, error) {
	users, err := s.users.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	return dto.NewUserResponseSlice(users), nil
}

func (s *userService) VerifyEmail(ctx context.Context, token string) error {
	record, err := s.consumeToken(ctx, token, models.TokenPurposeVerifyEmail)
	if err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	user.Verified = true
	return s.users.Update(ctx, &user)
}

func (s *userService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Do not leak which addresses exist.
			return nil
		}
		return err
	}

	token := models.VerificationToken{
		UserID:    user.ID,
		Token:     uuid.NewString(),
		Purpose:   models.TokenPurposeResetPassword,
		ExpiresAt: s.now().Add(resetTokenTTL),
	}
	if err := s.users.CreateToken(ctx, &token); err != nil {
		return err
	}

	if s.mailer != nil {
		link := fmt.Sprintf("%s/reset-password?token=%s", s.frontendBaseURL, token.Token)
		s.mailer.Send(user.Name, user.Email, "Reset your password",
			fmt.Sprintf("A password reset was requested for your account. Use this link within one hour: %s", link))
	}

	return nil
}

func (s *userService) ResetPassword(ctx context.Context, payload dto.ResetPasswordRequest) error {
	if err := s.validator.Struct(payload); err != nil {
		return err
	}

	record, err := s.consumeToken(ctx, payload.Token, models.TokenPurposeResetPassword)
	if err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(payload.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	user.PasswordHash = string(hash)
	return s.users.Update(ctx, &user)
}

// consumeToken validates a single-use token and deletes it.
func (s *userService) consumeToken(ctx context.Context, token, purpose string) (models.VerificationToken, error) {
	record, err := s.users.GetToken(ctx, token, purpose)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.VerificationToken{}, ErrInvalidToken
		}
		return models.VerificationToken{}, err
	}

	if record.IsExpired(s.now()) {
		_ = s.users.DeleteToken(ctx, record.ID)
		return models.VerificationToken{}, ErrInvalidToken
	}

	if err := s.users.DeleteToken(ctx, record.ID); err != nil {
		return models.VerificationToken{}, err
	}
	return record, nil
}

func (s *userService) sendVerification(ctx context.Context, user models.User) {
	if s.mailer == nil {
		return
	}

	token := models.VerificationToken{
		UserID:    user.ID,
		Token:     uuid.NewString(),
		Purpose:   models.TokenPurposeVerifyEmail,
		ExpiresAt: s.now().Add(verifyTokenTTL),
	}
	if err := s.users.CreateToken(ctx, &token); err != nil {
		s.logger.Warn().Err(err).Uint("user_id", user.ID).Msg("failed to create verification token")
		return
	}

	link := fmt.Sprintf("%s/verify-email?token=%s", s.frontendBaseURL, token.Token)
	s.mailer.Send(user.Name, user.Email, "Verify your email",
		fmt.Sprintf("Welcome! Confirm your address by opening this link: %s", link))
}

func (s *userService) issueToken(user models.User) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":  user.ID,
		"role": user.Role,
		"name": user.Name,
		"iat":  now.Unix(),
		"exp":  now.Add(s.tokenTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
