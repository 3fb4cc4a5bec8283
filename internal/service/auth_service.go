package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/liftlabs/liftapp-backend/internal/config"
	"github.com/liftlabs/liftapp-backend/internal/model"
	"golang.org/x/crypto/bcrypt"
)

// Common auth errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// TokenType distinguishes annotator vs admin tokens. Annotators never
// carry a password — their token is minted from the bare identifier.
type TokenType string

const (
	TokenTypeAnnotator TokenType = "annotator"
	TokenTypeAdmin     TokenType = "admin"
)

// Claims extends JWT standard claims with app-specific fields.
type Claims struct {
	jwt.RegisteredClaims
	TokenType  TokenType `json:"token_type"`
	UserID     int       `json:"user_id"`
	ExternalID string    `json:"external_id,omitempty"` // Annotator only
}

// AnnotatorGetter creates-or-finds annotators by external identifier.
type AnnotatorGetter interface {
	GetOrCreateByExternalID(ctx context.Context, externalID string) (*model.Annotator, error)
}

// AdminGetter looks up admin accounts for credential checks.
type AdminGetter interface {
	GetByEmail(ctx context.Context, email string) (*model.Admin, error)
}

// AuthService handles identity, JWTs and password hashing.
type AuthService struct {
	cfg        *config.Config
	annotators AnnotatorGetter
	admins     AdminGetter
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config, annotators AnnotatorGetter, admins AdminGetter) *AuthService {
	return &AuthService{cfg: cfg, annotators: annotators, admins: admins}
}

// HashPassword hashes a password with the configured bcrypt cost.
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	return string(hash), err
}

// LoginAnnotator resolves (or lazily creates) the annotator for the given
// external identifier and mints an annotator token.
func (s *AuthService) LoginAnnotator(ctx context.Context, externalID string) (*model.Annotator, string, error) {
	annotator, err := s.annotators.GetOrCreateByExternalID(ctx, externalID)
	if err != nil {
		return nil, "", fmt.Errorf("get or create annotator: %w", err)
	}

	token, err := s.mint(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   strconv.Itoa(annotator.ID),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.cfg.JWTExpiry)),
		},
		TokenType:  TokenTypeAnnotator,
		UserID:     annotator.ID,
		ExternalID: annotator.ExternalID,
	})
	if err != nil {
		return nil, "", err
	}
	return annotator, token, nil
}

// LoginAdmin checks credentials and mints an admin token.
func (s *AuthService) LoginAdmin(ctx context.Context, email, password string) (*model.Admin, string, error) {
	admin, err := s.admins.GetByEmail(ctx, email)
	if err != nil {
		// Do not leak whether the account exists.
		return nil, "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.mint(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   strconv.Itoa(admin.ID),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.cfg.JWTExpiry)),
		},
		TokenType: TokenTypeAdmin,
		UserID:    admin.ID,
	})
	if err != nil {
		return nil, "", err
	}
	return admin, token, nil
}

// ValidateToken parses and verifies a JWT, returning its claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func (s *AuthService) mint(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
