package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/yungbote/fluent-backend/internal/platform/apierr"
	"github.com/yungbote/fluent-backend/internal/platform/ctxutil"
	"github.com/yungbote/fluent-backend/internal/platform/logger"
	"github.com/yungbote/fluent-backend/internal/repos"
	"github.com/yungbote/fluent-backend/internal/types"
)

const minPasswordLength = 8

var errInvalidCredentials = apierr.New(http.StatusUnauthorized, "invalid_credentials", fmt.Errorf("invalid email or password: %w", apierr.ErrUnauthorized))

type AuthService interface {
	RegisterUser(ctx context.Context, email, password, fullName string) (*types.User, error)
	LoginUser(ctx context.Context, email, password string) (string, error)
	SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)
	GetAccessTTL() time.Duration
}

type JWTClaims struct {
	jwt.RegisteredClaims
}

type authService struct {
	db           *gorm.DB
	log          *logger.Logger
	userRepo     repos.UserRepo
	jwtSecretKey string
	accessTTL    time.Duration
}

func NewAuthService(db *gorm.DB, log *logger.Logger, userRepo repos.UserRepo, jwtSecretKey string, accessTTL time.Duration) AuthService {
	serviceLog := log.With("service", "AuthService")
	if accessTTL <= 0 {
		accessTTL = 24 * time.Hour
	}
	return &authService{
		db:           db,
		log:          serviceLog,
		userRepo:     userRepo,
		jwtSecretKey: jwtSecretKey,
		accessTTL:    accessTTL,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (as *authService) RegisterUser(ctx context.Context, email, password, fullName string) (*types.User, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apierr.Invalid("invalid email")
	}
	if len(password) < minPasswordLength {
		return nil, apierr.Invalid("password must be at least %d characters", minPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	var created *types.User
	err = as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, gErr := as.userRepo.GetByEmail(ctx, tx, email)
		if gErr != nil && !errors.Is(gErr, apierr.ErrNotFound) {
			return fmt.Errorf("lookup user: %w", gErr)
		}
		if existing != nil {
			return apierr.New(http.StatusConflict, "email_taken", fmt.Errorf("email already registered: %w", apierr.ErrConflict))
		}
		user := &types.User{
			ID:           uuid.New(),
			Email:        email,
			PasswordHash: string(hash),
			FullName:     strings.TrimSpace(fullName),
		}
		u, cErr := as.userRepo.Create(ctx, tx, user)
		if cErr != nil {
			return fmt.Errorf("create user: %w", cErr)
		}
		created = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	as.log.Info("user registered", "user_id", created.ID)
	return created, nil
}

func (as *authService) LoginUser(ctx context.Context, email, password string) (string, error) {
	user, err := as.userRepo.GetByEmail(ctx, nil, normalizeEmail(email))
	if errors.Is(err, apierr.ErrNotFound) {
		return "", errInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("lookup user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		as.log.Debug("password mismatch", "user_id", user.ID)
		return "", errInvalidCredentials
	}
	return as.generateAccessToken(user)
}

func (as *authService) generateAccessToken(user *types.User) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(as.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(as.jwtSecretKey))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (as *authService) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
	unauthorized := func(msg string, err error) error {
		if err != nil {
			msg = msg + ": " + err.Error()
		}
		return apierr.New(http.StatusUnauthorized, "unauthorized", fmt.Errorf("%s: %w", msg, apierr.ErrUnauthorized))
	}
	if tokenString == "" {
		return ctx, unauthorized("missing token", nil)
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	parsed, err := parser.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(as.jwtSecretKey), nil
	})
	if err != nil {
		return ctx, unauthorized("invalid token", err)
	}
	claims, ok := parsed.Claims.(*JWTClaims)
	if !ok || !parsed.Valid {
		return ctx, unauthorized("invalid or expired token", nil)
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return ctx, unauthorized("invalid subject", err)
	}
	return ctxutil.WithRequestData(ctx, &ctxutil.RequestData{UserID: userID, Token: tokenString}), nil
}

func (as *authService) GetAccessTTL() time.Duration {
	return as.accessTTL
}
