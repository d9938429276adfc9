// Package notify raises admin notifications on consent changes.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clubmember/clubmember/internal/models"
	"github.com/clubmember/clubmember/internal/store"
)

// dedupTTL bounds how long a (member, value, context) notification is
// suppressed after firing once.
const dedupTTL = 5 * time.Minute

// Mailer delivers a notification. Formatting and transport live outside
// this service.
type Mailer interface {
	Send(to, subject, body string) error
}

// LogMailer records notifications in the log instead of delivering them.
// Used when no real mail transport is wired in.
type LogMailer struct {
	Logger *logrus.Logger
}

func (m *LogMailer) Send(to, subject, body string) error {
	m.Logger.WithFields(logrus.Fields{
		"to":      to,
		"subject": subject,
	}).Info(body)
	return nil
}

// ConsentNotifier notifies the admin address when a member's SMS consent
// changes. Duplicate suppression goes through a short-TTL cache in the
// ephemeral store rather than process-global state, so concurrent
// requests and restarts behave predictably.
type ConsentNotifier struct {
	mailer     Mailer
	dedup      store.Store
	enabled    bool
	adminEmail string
	logger     *logrus.Logger
}

func NewConsentNotifier(mailer Mailer, dedup store.Store, enabled bool, adminEmail string, logger *logrus.Logger) *ConsentNotifier {
	return &ConsentNotifier{
		mailer:     mailer,
		dedup:      dedup,
		enabled:    enabled,
		adminEmail: adminEmail,
		logger:     logger,
	}
}

// ConsentChanged fires a notification when newValue is an explicit answer
// that differs from oldValue. Registration always notifies, even when the
// form pre-filled the same answer. Failures are logged, never surfaced:
// notification must not block the member flow.
func (n *ConsentNotifier) ConsentChanged(ctx context.Context, memberName, phone9, oldValue, newValue, source string) {
	if !n.enabled || n.adminEmail == "" {
		return
	}

	if !models.ValidConsent(newValue) {
		return
	}

	if oldValue == newValue && source != "registration" {
		return
	}

	dedupKey := fmt.Sprintf("consent_notice:%s_%s_%s", phone9, newValue, source)
	if _, err := n.dedup.Get(ctx, dedupKey); err == nil {
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		n.logger.WithError(err).Warn("Consent notification dedup check failed")
		return
	}

	agreement := "does not agree to receive SMS."
	if newValue == models.ConsentYes {
		agreement = "now agrees to receive SMS."
	}

	subject := "SMS consent update"
	body := fmt.Sprintf("Member %s, phone number: %s, %s Context: %s", memberName, phone9, agreement, source)

	if err := n.mailer.Send(n.adminEmail, subject, body); err != nil {
		n.logger.WithError(err).Warn("Failed to send consent notification")
		return
	}

	if err := n.dedup.Set(ctx, dedupKey, "1", dedupTTL); err != nil {
		n.logger.WithError(err).Warn("Failed to record consent notification dedup key")
	}
}
