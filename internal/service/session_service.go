package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clubmember/clubmember/internal/models"
	"github.com/clubmember/clubmember/internal/store"
)

// SessionService tracks issued refresh tokens so they can be revoked
// before their JWT expiry.
type SessionService struct {
	store  store.Store
	logger *logrus.Logger
}

func NewSessionService(st store.Store, logger *logrus.Logger) *SessionService {
	return &SessionService{
		store:  st,
		logger: logger,
	}
}

func sessionKey(jti string) string {
	return "session:" + jti
}

func revokedKey(jti string) string {
	return "session_revoked:" + jti
}

func (s *SessionService) Store(ctx context.Context, jti, phone9 string, expiresAt time.Time) error {
	data := models.SessionData{
		JTI:       jti,
		Phone:     phone9,
		CreatedAt: time.Now(),
		ExpiresAt: expiresAt,
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session already expired")
	}

	if err := s.store.Set(ctx, sessionKey(jti), string(raw), ttl); err != nil {
		s.logger.WithError(err).Error("Failed to store session")
		return fmt.Errorf("failed to store session: %w", err)
	}

	return nil
}

func (s *SessionService) Get(ctx context.Context, jti string) (*models.SessionData, error) {
	raw, err := s.store.Get(ctx, sessionKey(jti))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var data models.SessionData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &data, nil
}

// Revoke drops the session and leaves a marker until the token would have
// expired on its own.
func (s *SessionService) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	if err := s.store.Delete(ctx, sessionKey(jti)); err != nil {
		return err
	}

	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}

	return s.store.Set(ctx, revokedKey(jti), "1", ttl)
}

func (s *SessionService) IsRevoked(ctx context.Context, jti string) (bool, error) {
	_, err := s.store.Get(ctx, revokedKey(jti))
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
