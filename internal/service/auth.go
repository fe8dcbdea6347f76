package service

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"team-caltalk/internal/domain"
	"team-caltalk/internal/repository"
)

// AuthService 负责注册、登录和 JWT 签发。
type AuthService struct {
	userRepo       repository.UserRepository
	jwtSecret      string
	jwtExpiryHours int
}

// NewAuthService 创建 AuthService 实例。
func NewAuthService(userRepo repository.UserRepository, jwtSecret string, jwtExpiryHours int) (*AuthService, error) {
	if userRepo == nil {
		panic("UserRepository cannot be nil for AuthService")
	}
	if jwtSecret == "" {
		return nil, errors.New("JWT secret cannot be empty")
	}
	if jwtExpiryHours <= 0 {
		jwtExpiryHours = 24
	}
	return &AuthService{
		userRepo:       userRepo,
		jwtSecret:      jwtSecret,
		jwtExpiryHours: jwtExpiryHours,
	}, nil
}

// Register 注册新用户。邮箱重复时返回 ErrRegistrationFailed。
func (s *AuthService) Register(ctx context.Context, email, password, name string) (*domain.User, error) {
	logCtx := logrus.WithField("email", email)

	// 1. 邮箱查重
	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
		logCtx.WithError(err).Error("Register: failed to check email uniqueness")
		return nil, ErrInternalServer
	}
	if existing != nil {
		logCtx.Warn("Register: email already taken")
		return nil, ErrRegistrationFailed
	}

	// 2. 哈希密码
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		logCtx.WithError(err).Error("Register: failed to hash password")
		return nil, ErrInternalServer
	}

	// 3. 保存用户
	user := &domain.User{
		Email:    email,
		Password: string(hashed),
		Name:     name,
	}
	if err := s.userRepo.Save(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			// 查重与保存之间的并发注册
			logCtx.Warn("Register: duplicate entry on save")
			return nil, ErrRegistrationFailed
		}
		logCtx.WithError(err).Error("Register: failed to save user")
		return nil, ErrInternalServer
	}

	logCtx.WithField("user_id", user.ID).Info("User registered")
	// 不把哈希带回给调用者
	user.Password = ""
	return user, nil
}

// Login 校验凭据并签发 JWT。
func (s *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	logCtx := logrus.WithField("email", email)

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			logCtx.Warn("Login: user not found")
			return "", ErrAuthenticationFailed
		}
		logCtx.WithError(err).Error("Login: repository error")
		return "", ErrInternalServer
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		logCtx.Warn("Login: password mismatch")
		return "", ErrAuthenticationFailed
	}

	claims := jwt.MapClaims{
		"user_id": user.ID,
		"exp":     time.Now().Add(time.Duration(s.jwtExpiryHours) * time.Hour).Unix(),
		"iat":     time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		logCtx.WithError(err).Error("Login: failed to sign token")
		return "", ErrInternalServer
	}

	logCtx.WithField("user_id", user.ID).Info("User logged in")
	return signed, nil
}
