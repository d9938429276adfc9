package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/clubmember/clubmember/internal/middleware"
	"github.com/clubmember/clubmember/internal/phone"
	"github.com/clubmember/clubmember/internal/repository"
	"github.com/clubmember/clubmember/internal/service"
)

// OTPHandlers is the HTTP boundary of the verification core. Each call
// site (registration, checkout, account update) goes through these three
// endpoints rather than carrying its own verification logic.
type OTPHandlers struct {
	otpService *service.OTPService
	members    *repository.MemberRepository
	logger     *logrus.Logger
}

func NewOTPHandlers(otpService *service.OTPService, members *repository.MemberRepository, logger *logrus.Logger) *OTPHandlers {
	return &OTPHandlers{
		otpService: otpService,
		members:    members,
		logger:     logger,
	}
}

type SendOTPRequest struct {
	Phone string `json:"phone"`
}

type SendOTPResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	ExpiresIn int64  `json:"expires_in,omitempty"`
}

type VerifyOTPRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

type VerifyOTPResponse struct {
	Success       bool   `json:"success"`
	Token         string `json:"token,omitempty"`
	VerifiedPhone string `json:"verified_phone,omitempty"`
	Message       string `json:"message"`
}

type CheckVerificationRequest struct {
	Phone string `json:"phone"`
	Token string `json:"token"`
}

type CheckVerificationResponse struct {
	Verified bool `json:"verified"`
}

func (h *OTPHandlers) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req SendOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	phone9 := phone.Normalize(req.Phone)
	if !phone.IsNormalized(phone9) {
		respondWithError(w, http.StatusBadRequest, "INVALID_FORMAT", "Invalid phone number. Must be 9 digits.")
		return
	}

	expiry, err := h.otpService.Send(r.Context(), phone9, clientIP(r))
	if err != nil {
		h.logger.WithError(err).WithField("phone", phone9).Warn("OTP send failed")
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, SendOTPResponse{
		Success:   true,
		Message:   "OTP sent successfully.",
		ExpiresIn: int64(expiry.Seconds()),
	})
}

func (h *OTPHandlers) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	phone9 := phone.Normalize(req.Phone)

	result, err := h.otpService.Verify(r.Context(), phone9, req.Code)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	// A logged-in member gets the verified phone attached durably, so
	// later requests can skip the OTP for the same number.
	if claims := middleware.MemberClaims(r.Context()); claims != nil {
		if err := h.members.SetVerifiedPhone(r.Context(), claims.Phone, phone9); err != nil {
			h.logger.WithError(err).Warn("Failed to persist verified phone")
		}
	}

	respondWithJSON(w, http.StatusOK, VerifyOTPResponse{
		Success:       true,
		Token:         result.Token,
		VerifiedPhone: result.VerifiedPhone,
		Message:       "Phone verified successfully.",
	})
}

func (h *OTPHandlers) CheckVerification(w http.ResponseWriter, r *http.Request) {
	var req CheckVerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	phone9 := phone.Normalize(req.Phone)

	verified, err := h.otpService.IsPhoneVerified(r.Context(), phone9, req.Token)
	if err != nil {
		h.logger.WithError(err).Error("Verification check failed")
		respondWithError(w, http.StatusInternalServerError, "INTERNAL", "Internal server error.")
		return
	}

	respondWithJSON(w, http.StatusOK, CheckVerificationResponse{Verified: verified})
}
