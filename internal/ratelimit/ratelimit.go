// Package ratelimit bounds OTP sends per (phone, client IP) pair.
package ratelimit

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clubmember/clubmember/internal/store"
)

// Limiter counts send attempts per (phone, client IP) pair. The window is
// anchored at the first attempt: increments do not refresh the TTL, so the
// whole budget resets at once when the window expires.
type Limiter struct {
	store  store.Store
	max    int
	window time.Duration
	logger *logrus.Logger
}

func New(st store.Store, max int, window time.Duration, logger *logrus.Logger) *Limiter {
	return &Limiter{
		store:  st,
		max:    max,
		window: window,
		logger: logger,
	}
}

func key(phone9, clientIP string) string {
	sum := md5.Sum([]byte(phone9 + clientIP))
	return "otp_rate:" + hex.EncodeToString(sum[:])
}

// Allow reports whether another send is permitted for the pair.
func (l *Limiter) Allow(ctx context.Context, phone9, clientIP string) (bool, error) {
	value, err := l.store.Get(ctx, key(phone9, clientIP))
	if errors.Is(err, store.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read rate counter: %w", err)
	}

	count, err := strconv.Atoi(value)
	if err != nil {
		// Unparseable counter: treat the budget as exhausted rather than open.
		l.logger.WithField("value", value).Warn("Corrupt rate counter value")
		return false, nil
	}

	return count < l.max, nil
}

// RecordAttempt increments the counter, creating it with the full window
// TTL on first use.
func (l *Limiter) RecordAttempt(ctx context.Context, phone9, clientIP string) error {
	k := key(phone9, clientIP)

	value, err := l.store.Get(ctx, k)
	if errors.Is(err, store.ErrNotFound) {
		return l.store.Set(ctx, k, "1", l.window)
	}
	if err != nil {
		return fmt.Errorf("failed to read rate counter: %w", err)
	}

	count, convErr := strconv.Atoi(value)
	if convErr != nil {
		count = l.max
	}

	err = l.store.SetKeepTTL(ctx, k, strconv.Itoa(count+1))
	if errors.Is(err, store.ErrNotFound) {
		// Counter expired between read and write; start a fresh window.
		return l.store.Set(ctx, k, "1", l.window)
	}
	return err
}

// Reset clears the counter for the pair.
func (l *Limiter) Reset(ctx context.Context, phone9, clientIP string) error {
	return l.store.Delete(ctx, key(phone9, clientIP))
}
