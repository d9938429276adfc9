package service

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubmember/clubmember/internal/config"
	"github.com/clubmember/clubmember/internal/ratelimit"
	"github.com/clubmember/clubmember/internal/sms"
	"github.com/clubmember/clubmember/internal/store"
)

const (
	testPhone = "599123456"
	testIP    = "203.0.113.7"
)

type fakeSender struct {
	err      error
	messages []string
}

func (f *fakeSender) Send(_ context.Context, phone9, message string) (*sms.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.messages = append(f.messages, message)
	return &sms.Result{Code: "0000", MessageID: "msg-1"}, nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newOTPService(t *testing.T, sender sms.Sender) (*OTPService, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	logger := quietLogger()
	cfg := &config.OTPConfig{
		CodeLength:  6,
		Expiry:      5 * time.Minute,
		TokenExpiry: 5 * time.Minute,
		MaxAttempts: 3,
		RateWindow:  10 * time.Minute,
	}
	limiter := ratelimit.New(st, cfg.MaxAttempts, cfg.RateWindow, logger)
	tokens := NewVerificationTokenService(st, cfg.TokenExpiry, cfg.TokenSingleUse, logger)
	return NewOTPService(st, sender, limiter, tokens, cfg, logger), st
}

func storedCode(t *testing.T, st *store.MemoryStore, phone9 string) string {
	t.Helper()
	code, err := st.Get(context.Background(), otpKey(phone9))
	require.NoError(t, err)
	return code
}

func TestSendStoresCodeAndDelivers(t *testing.T) {
	sender := &fakeSender{}
	svc, st := newOTPService(t, sender)

	expiry, err := svc.Send(context.Background(), testPhone, testIP)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, expiry)

	code := storedCode(t, st, testPhone)
	assert.Len(t, code, 6)

	require.Len(t, sender.messages, 1)
	assert.Contains(t, sender.messages[0], code)
}

func TestSendRejectsUnnormalizedPhone(t *testing.T) {
	svc, _ := newOTPService(t, &fakeSender{})

	_, err := svc.Send(context.Background(), "+995599123456", testIP)
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestSendRateLimitedAfterThree(t *testing.T) {
	svc, _ := newOTPService(t, &fakeSender{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Send(ctx, testPhone, testIP)
		require.NoError(t, err)
	}

	_, err := svc.Send(ctx, testPhone, testIP)
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestSendGatewayFailurePurgesCode(t *testing.T) {
	sender := &fakeSender{err: &sms.GatewayError{Code: "0008", Message: "Insufficient SMS balance."}}
	svc, st := newOTPService(t, sender)
	ctx := context.Background()

	_, err := svc.Send(ctx, testPhone, testIP)

	var gwErr *sms.GatewayError
	require.ErrorAs(t, err, &gwErr)

	// No phantom pending code left behind.
	_, err = st.Get(ctx, otpKey(testPhone))
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Failed sends don't count against the budget.
	sender.err = nil
	for i := 0; i < 3; i++ {
		_, err := svc.Send(ctx, testPhone, testIP)
		require.NoError(t, err)
	}
}

func TestVerifyMintsTokenOnce(t *testing.T) {
	svc, st := newOTPService(t, &fakeSender{})
	ctx := context.Background()

	_, err := svc.Send(ctx, testPhone, testIP)
	require.NoError(t, err)
	code := storedCode(t, st, testPhone)

	result, err := svc.Verify(ctx, testPhone, code)
	require.NoError(t, err)
	assert.Len(t, result.Token, 32)
	assert.Equal(t, testPhone, result.VerifiedPhone)

	// The code is consumed: a second verify fails as expired.
	_, err = st.Get(ctx, otpKey(testPhone))
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.Verify(ctx, testPhone, code)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestVerifyWrongCodeKeepsRecord(t *testing.T) {
	svc, st := newOTPService(t, &fakeSender{})
	ctx := context.Background()

	_, err := svc.Send(ctx, testPhone, testIP)
	require.NoError(t, err)
	code := storedCode(t, st, testPhone)

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	_, err = svc.Verify(ctx, testPhone, wrong)
	assert.ErrorIs(t, err, ErrInvalidCode)

	// The stored code survives a mismatch; the right one still works.
	assert.Equal(t, code, storedCode(t, st, testPhone))

	result, err := svc.Verify(ctx, testPhone, code)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
}

func TestVerifyWithoutSend(t *testing.T) {
	svc, _ := newOTPService(t, &fakeSender{})

	_, err := svc.Verify(context.Background(), testPhone, "123456")
	assert.ErrorIs(t, err, ErrExpired)
}

func TestVerifyRejectsMalformedCode(t *testing.T) {
	svc, _ := newOTPService(t, &fakeSender{})
	ctx := context.Background()

	_, err := svc.Verify(ctx, testPhone, "12345")
	assert.ErrorIs(t, err, ErrInvalidFormat)

	_, err = svc.Verify(ctx, testPhone, "12345a")
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestTokenIsRecheckableWithinTTL(t *testing.T) {
	svc, st := newOTPService(t, &fakeSender{})
	ctx := context.Background()

	_, err := svc.Send(ctx, testPhone, testIP)
	require.NoError(t, err)

	result, err := svc.Verify(ctx, testPhone, storedCode(t, st, testPhone))
	require.NoError(t, err)

	// No single-use consumption by default.
	for i := 0; i < 3; i++ {
		ok, err := svc.IsPhoneVerified(ctx, testPhone, result.Token)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	ok, err := svc.IsPhoneVerified(ctx, testPhone, "not-the-token")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCleanupResetsAllState(t *testing.T) {
	svc, st := newOTPService(t, &fakeSender{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Send(ctx, testPhone, testIP)
		require.NoError(t, err)
	}

	result, err := svc.Verify(ctx, testPhone, storedCode(t, st, testPhone))
	require.NoError(t, err)

	require.NoError(t, svc.Cleanup(ctx, testPhone, testIP))

	ok, err := svc.IsPhoneVerified(ctx, testPhone, result.Token)
	require.NoError(t, err)
	assert.False(t, ok)

	// Rate counter is gone too: the phone behaves as if never attempted.
	for i := 0; i < 3; i++ {
		_, err := svc.Send(ctx, testPhone, testIP)
		require.NoError(t, err)
	}
}

func TestGenerateCodeShape(t *testing.T) {
	svc, _ := newOTPService(t, &fakeSender{})

	for i := 0; i < 50; i++ {
		code, err := svc.generateCode()
		require.NoError(t, err)
		require.True(t, validCode(code, 6), "code %q must be 6 digits", code)
	}
}
