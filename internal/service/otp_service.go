package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clubmember/clubmember/internal/config"
	"github.com/clubmember/clubmember/internal/phone"
	"github.com/clubmember/clubmember/internal/ratelimit"
	"github.com/clubmember/clubmember/internal/sms"
	"github.com/clubmember/clubmember/internal/store"
)

// OTPService drives the verification state machine for a phone:
// NONE → PENDING (code sent) → VERIFIED (token minted) / EXPIRED.
type OTPService struct {
	store   store.Store
	sender  sms.Sender
	limiter *ratelimit.Limiter
	tokens  *VerificationTokenService
	cfg     *config.OTPConfig
	logger  *logrus.Logger
}

func NewOTPService(
	st store.Store,
	sender sms.Sender,
	limiter *ratelimit.Limiter,
	tokens *VerificationTokenService,
	cfg *config.OTPConfig,
	logger *logrus.Logger,
) *OTPService {
	return &OTPService{
		store:   st,
		sender:  sender,
		limiter: limiter,
		tokens:  tokens,
		cfg:     cfg,
		logger:  logger,
	}
}

// VerifyResult carries the proof token minted on a successful OTP match.
type VerifyResult struct {
	Token         string
	VerifiedPhone string
}

func otpKey(phone9 string) string {
	return "otp:" + phone9
}

// Send generates a code for the phone, stores it and delivers it by SMS.
// It returns how long the code stays valid. A gateway failure purges the
// stored code and does not count against the rate budget.
func (s *OTPService) Send(ctx context.Context, phone9, clientIP string) (time.Duration, error) {
	if !phone.IsNormalized(phone9) {
		return 0, ErrInvalidFormat
	}

	allowed, err := s.limiter.Allow(ctx, phone9, clientIP)
	if err != nil {
		return 0, err
	}
	if !allowed {
		return 0, ErrRateLimited
	}

	code, err := s.generateCode()
	if err != nil {
		return 0, fmt.Errorf("failed to generate otp: %w", err)
	}

	if err := s.store.Set(ctx, otpKey(phone9), code, s.cfg.Expiry); err != nil {
		return 0, fmt.Errorf("failed to store otp: %w", err)
	}

	message := fmt.Sprintf("თქვენი ვერიფიკაციის კოდია: %s", code)

	if _, err := s.sender.Send(ctx, phone9, message); err != nil {
		// Don't leave a phantom pending code behind a failed delivery.
		if delErr := s.store.Delete(ctx, otpKey(phone9)); delErr != nil {
			s.logger.WithError(delErr).Warn("Failed to purge undelivered otp")
		}
		return 0, err
	}

	if err := s.limiter.RecordAttempt(ctx, phone9, clientIP); err != nil {
		s.logger.WithError(err).Warn("Failed to record rate attempt")
	}

	s.logger.WithField("phone", phone9).Info("OTP sent")
	return s.cfg.Expiry, nil
}

// Verify checks the submitted code against the stored one. On a match the
// code is consumed and a verification token is minted for the phone.
func (s *OTPService) Verify(ctx context.Context, phone9, code string) (*VerifyResult, error) {
	if !phone.IsNormalized(phone9) || !validCode(code, s.cfg.CodeLength) {
		return nil, ErrInvalidFormat
	}

	stored, err := s.store.Get(ctx, otpKey(phone9))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrExpired
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read otp: %w", err)
	}

	if stored != code {
		// The stored code survives a mismatch; the caller may retry until
		// it expires.
		return nil, ErrInvalidCode
	}

	if err := s.store.Delete(ctx, otpKey(phone9)); err != nil {
		s.logger.WithError(err).Warn("Failed to delete verified otp")
	}

	token, err := s.tokens.Issue(ctx, phone9)
	if err != nil {
		return nil, err
	}

	s.logger.WithField("phone", phone9).Info("Phone verified")
	return &VerifyResult{
		Token:         token,
		VerifiedPhone: phone9,
	}, nil
}

// IsPhoneVerified redeems (phone, token) against the live verification
// token.
func (s *OTPService) IsPhoneVerified(ctx context.Context, phone9, token string) (bool, error) {
	if !phone.IsNormalized(phone9) {
		return false, nil
	}
	return s.tokens.IsValid(ctx, phone9, token)
}

// Cleanup drops every ephemeral record for the phone — pending OTP,
// verification token and rate counter — so a completed registration does
// not leave stale state for the TTL duration.
func (s *OTPService) Cleanup(ctx context.Context, phone9, clientIP string) error {
	if err := s.store.Delete(ctx, otpKey(phone9)); err != nil {
		return err
	}
	if err := s.tokens.Revoke(ctx, phone9); err != nil {
		return err
	}
	return s.limiter.Reset(ctx, phone9, clientIP)
}

// generateCode draws a zero-padded decimal code uniformly from
// [0, 10^length).
func (s *OTPService) generateCode() (string, error) {
	bound := big.NewInt(1)
	for i := 0; i < s.cfg.CodeLength; i++ {
		bound.Mul(bound, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%0*d", s.cfg.CodeLength, n), nil
}

func validCode(code string, length int) bool {
	if len(code) != length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
