package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/clubmember/clubmember/internal/config"
	"github.com/clubmember/clubmember/internal/models"
)

// JWTService signs and verifies the session tokens handed to members
// after login. Verification tokens for OTP proof are a separate, opaque
// mechanism (VerificationTokenService).
type JWTService struct {
	secretKey     []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	logger        *logrus.Logger
}

func NewJWTService(cfg *config.JWTConfig, logger *logrus.Logger) (*JWTService, error) {
	secretKey := []byte(cfg.SecretKey)
	if len(secretKey) < 32 {
		return nil, fmt.Errorf("secret key must be at least 32 bytes")
	}

	return &JWTService{
		secretKey:     secretKey,
		accessExpiry:  cfg.AccessExpiry,
		refreshExpiry: cfg.RefreshExpiry,
		logger:        logger,
	}, nil
}

type Claims struct {
	Phone string `json:"phone"`
	Type  string `json:"type"`
	jwt.RegisteredClaims
}

// GeneratePair issues an access/refresh token pair for the member phone.
func (s *JWTService) GeneratePair(phone9 string) (*models.TokenPair, error) {
	now := time.Now()

	accessToken, err := s.sign(phone9, "access", now, s.accessExpiry)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.sign(phone9, "refresh", now, s.refreshExpiry)
	if err != nil {
		return nil, err
	}

	return &models.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessExpiry.Seconds()),
	}, nil
}

func (s *JWTService) sign(phone9, tokenType string, now time.Time, expiry time.Duration) (string, error) {
	claims := &Claims{
		Phone: phone9,
		Type:  tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   phone9,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretKey)
	if err != nil {
		s.logger.WithError(err).Error("Failed to sign token")
		return "", fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

func (s *JWTService) VerifyToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}
