package sms

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubmember/clubmember/internal/config"
)

func testConfig(gatewayURL string) *config.SMSConfig {
	return &config.SMSConfig{
		GatewayURL:  gatewayURL,
		Username:    "user",
		Password:    "pass",
		ClientID:    "42",
		ServiceID:   "7",
		CountryCode: "995",
		Timeout:     2 * time.Second,
	}
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestSendSuccessJSON(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"code":"0000","message_id":"msg-123"}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), testLogger())
	res, err := client.Send(context.Background(), "599123456", "თქვენი ვერიფიკაციის კოდია: 123456")
	require.NoError(t, err)
	assert.Equal(t, "0000", res.Code)
	assert.Equal(t, "msg-123", res.MessageID)

	assert.Contains(t, gotQuery, "to=995599123456")
	assert.Contains(t, gotQuery, "result=json")
	// Spaces must be percent-encoded, never "+".
	assert.Contains(t, gotQuery, "%20")
	assert.NotContains(t, strings.Split(gotQuery, "text=")[1], "+")
}

func TestSendSuccessNumericCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":0,"message_id":"msg-9"}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), testLogger())
	res, err := client.Send(context.Background(), "599123456", "hi")
	require.NoError(t, err)
	assert.Equal(t, "0", res.Code)
}

func TestSendGatewayErrors(t *testing.T) {
	tests := []struct {
		code    string
		message string
	}{
		{"0001", "Invalid API credentials or forbidden IP."},
		{"0007", "Invalid phone number."},
		{"0008", "Insufficient SMS balance."},
		{"0042", "SMS sending failed."},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"code":"` + tt.code + `"}`))
			}))
			defer srv.Close()

			client := NewClient(testConfig(srv.URL), testLogger())
			_, err := client.Send(context.Background(), "599123456", "hi")

			var gwErr *GatewayError
			require.ErrorAs(t, err, &gwErr)
			assert.Equal(t, tt.code, gwErr.Code)
			assert.Equal(t, tt.message, gwErr.Message)
		})
	}
}

func TestSendLegacyPlainTextSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0000-legacy-77\n"))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), testLogger())
	res, err := client.Send(context.Background(), "599123456", "hi")
	require.NoError(t, err)
	assert.Equal(t, "legacy-77", res.MessageID)
}

func TestSendUnexpectedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>gateway down</html>"))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), testLogger())
	_, err := client.Send(context.Background(), "599123456", "hi")

	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Empty(t, gwErr.Code)
}

func TestSendMissingCredentials(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Password = ""

	client := NewClient(cfg, testLogger())
	_, err := client.Send(context.Background(), "599123456", "hi")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.False(t, called, "no network call without credentials")
}

func TestSendNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	client := NewClient(testConfig(srv.URL), testLogger())
	_, err := client.Send(context.Background(), "599123456", "hi")

	var netErr *NetworkError
	assert.True(t, errors.As(err, &netErr))
}
