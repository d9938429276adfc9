package handlers

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/clubmember/clubmember/internal/service"
	"github.com/clubmember/clubmember/internal/sms"
)

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, status int, code, message string) {
	respondWithJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// respondWithServiceError maps the core error taxonomy onto HTTP.
func respondWithServiceError(w http.ResponseWriter, err error) {
	var gatewayErr *sms.GatewayError
	var networkErr *sms.NetworkError

	switch {
	case errors.Is(err, service.ErrInvalidFormat):
		respondWithError(w, http.StatusBadRequest, "INVALID_FORMAT", "Invalid phone or code format.")
	case errors.Is(err, service.ErrRateLimited):
		respondWithError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many attempts. Please try again later.")
	case errors.Is(err, service.ErrExpired):
		respondWithError(w, http.StatusBadRequest, "OTP_EXPIRED", "OTP expired. Please request a new code.")
	case errors.Is(err, service.ErrInvalidCode):
		respondWithError(w, http.StatusBadRequest, "INVALID_CODE", "Invalid OTP code.")
	case errors.Is(err, sms.ErrNotConfigured):
		respondWithError(w, http.StatusServiceUnavailable, "SMS_NOT_CONFIGURED", "SMS API not configured.")
	case errors.As(err, &gatewayErr):
		respondWithError(w, http.StatusBadGateway, "GATEWAY_ERROR", gatewayErr.Message)
	case errors.As(err, &networkErr):
		respondWithError(w, http.StatusGatewayTimeout, "GATEWAY_UNREACHABLE", "SMS gateway unreachable. Please try again.")
	default:
		respondWithError(w, http.StatusInternalServerError, "INTERNAL", "Internal server error.")
	}
}

// clientIP resolves the caller address, honoring the proxy headers the
// deployment terminates behind.
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("Client-IP"); ip != "" {
		return strings.TrimSpace(ip)
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
