package service

import "errors"

// Core failure modes surfaced to the HTTP boundary. Gateway-side failures
// (ErrNotConfigured, GatewayError, NetworkError) come from the sms package
// and pass through Send unwrapped.
var (
	// ErrRateLimited means the (phone, IP) pair exhausted its send budget.
	ErrRateLimited = errors.New("too many attempts")

	// ErrExpired means no OTP is stored for the phone: the code expired or
	// was never sent.
	ErrExpired = errors.New("otp expired or never requested")

	// ErrInvalidCode means the submitted code does not match. The stored
	// OTP survives so the caller may retry until it expires.
	ErrInvalidCode = errors.New("invalid otp code")

	// ErrInvalidFormat means the phone or code failed shape validation
	// before any store access.
	ErrInvalidFormat = errors.New("invalid phone or code format")
)
