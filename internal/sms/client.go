// Package sms wraps the MS Group SMS gateway HTTP API.
package sms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/clubmember/clubmember/internal/config"
)

// ErrNotConfigured is returned when gateway credentials are missing. No
// network call is made in that case.
var ErrNotConfigured = errors.New("sms gateway credentials not configured")

// GatewayError is a failure reported by the gateway itself, as opposed to
// a transport problem reaching it.
type GatewayError struct {
	Code    string
	Message string
}

func (e *GatewayError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("sms gateway: %s", e.Message)
	}
	return fmt.Sprintf("sms gateway: %s (code %s)", e.Message, e.Code)
}

// NetworkError is a transport-level failure (timeout, DNS, connection
// refused). Callers may retry.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("sms gateway unreachable: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Result is a successful gateway response.
type Result struct {
	Code      string
	MessageID string
}

var gatewayErrorMessages = map[string]string{
	"0001": "Invalid API credentials or forbidden IP.",
	"0007": "Invalid phone number.",
	"0008": "Insufficient SMS balance.",
}

// Sender delivers a text message to a 9-digit local phone number.
type Sender interface {
	Send(ctx context.Context, phone9, message string) (*Result, error)
}

type Client struct {
	cfg        *config.SMSConfig
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewClient(cfg *config.SMSConfig, logger *logrus.Logger) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// Send delivers message to the country-code-prefixed phone via HTTP GET
// and classifies the gateway's answer.
func (c *Client) Send(ctx context.Context, phone9, message string) (*Result, error) {
	if c.cfg.Username == "" || c.cfg.Password == "" ||
		c.cfg.ClientID == "" || c.cfg.ServiceID == "" {
		return nil, ErrNotConfigured
	}

	q := url.Values{}
	q.Set("username", c.cfg.Username)
	q.Set("password", c.cfg.Password)
	q.Set("client_id", c.cfg.ClientID)
	q.Set("service_id", c.cfg.ServiceID)
	q.Set("to", c.cfg.CountryCode+phone9)
	q.Set("result", "json")

	// The text parameter is appended separately: url.Values encodes spaces
	// as "+" (RFC 1738), which the gateway rejects for multi-byte text. It
	// requires RFC 3986 percent-encoding throughout.
	requestURL := c.cfg.GatewayURL + "?" + q.Encode() + "&text=" + encodeText(message)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build gateway request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithError(err).Error("SMS gateway request failed")
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	return c.classify(body)
}

func (c *Client) classify(body []byte) (*Result, error) {
	var payload struct {
		Code      any    `json:"code"`
		MessageID string `json:"message_id"`
	}

	if err := json.Unmarshal(body, &payload); err == nil && payload.Code != nil {
		code := normalizeCode(payload.Code)

		if code == "0" || strings.HasPrefix(code, "0000") {
			return &Result{Code: code, MessageID: payload.MessageID}, nil
		}

		msg, ok := gatewayErrorMessages[code]
		if !ok {
			msg = "SMS sending failed."
		}
		return nil, &GatewayError{Code: code, Message: msg}
	}

	// Legacy plain-text success marker: "0000-<message id>".
	text := strings.TrimSpace(string(body))
	if strings.HasPrefix(text, "0000") {
		return &Result{
			Code:      "0000",
			MessageID: strings.TrimPrefix(text, "0000-"),
		}, nil
	}

	c.logger.WithField("body", text).Warn("Unexpected SMS gateway response")
	return nil, &GatewayError{Message: "Unexpected gateway response."}
}

// normalizeCode renders the gateway's code field as a string whether the
// JSON carried it as a string or a number.
func normalizeCode(code any) string {
	switch v := code.(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// encodeText percent-encodes per RFC 3986, including spaces as %20.
func encodeText(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
