package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clubmember/clubmember/internal/store"
)

// tokenLength is the size of an issued verification token.
const tokenLength = 32

const tokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// VerificationTokenService issues and checks the opaque proof-of-
// verification tokens minted after a successful OTP match. A token lives
// independently of the OTP that produced it, so later unrelated requests
// (checkout, account save) can redeem it within its TTL.
type VerificationTokenService struct {
	store     store.Store
	ttl       time.Duration
	singleUse bool
	logger    *logrus.Logger
}

func NewVerificationTokenService(st store.Store, ttl time.Duration, singleUse bool, logger *logrus.Logger) *VerificationTokenService {
	return &VerificationTokenService{
		store:     st,
		ttl:       ttl,
		singleUse: singleUse,
		logger:    logger,
	}
}

func tokenKey(phone9 string) string {
	return "vtoken:" + phone9
}

// Issue mints a fresh token for the phone, overwriting any prior one.
func (s *VerificationTokenService) Issue(ctx context.Context, phone9 string) (string, error) {
	token, err := randomToken(tokenLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate verification token: %w", err)
	}

	if err := s.store.Set(ctx, tokenKey(phone9), token, s.ttl); err != nil {
		s.logger.WithError(err).Error("Failed to store verification token")
		return "", fmt.Errorf("failed to store verification token: %w", err)
	}

	return token, nil
}

// IsValid reports whether token exactly matches the live token for the
// phone. In single-use mode a successful check consumes the token;
// otherwise the check is idempotent for the whole TTL window.
func (s *VerificationTokenService) IsValid(ctx context.Context, phone9, token string) (bool, error) {
	if token == "" {
		return false, nil
	}

	stored, err := s.store.Get(ctx, tokenKey(phone9))
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read verification token: %w", err)
	}

	if stored != token {
		return false, nil
	}

	if s.singleUse {
		if err := s.store.Delete(ctx, tokenKey(phone9)); err != nil {
			s.logger.WithError(err).Warn("Failed to consume verification token")
		}
	}

	return true, nil
}

// Revoke deletes the live token for the phone, if any.
func (s *VerificationTokenService) Revoke(ctx context.Context, phone9 string) error {
	return s.store.Delete(ctx, tokenKey(phone9))
}

func randomToken(length int) (string, error) {
	max := big.NewInt(int64(len(tokenAlphabet)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = tokenAlphabet[n.Int64()]
	}
	return string(buf), nil
}
