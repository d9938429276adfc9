package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/clubmember/clubmember/internal/middleware"
	"github.com/clubmember/clubmember/internal/models"
	"github.com/clubmember/clubmember/internal/notify"
	"github.com/clubmember/clubmember/internal/phone"
	"github.com/clubmember/clubmember/internal/repository"
	"github.com/clubmember/clubmember/internal/service"
)

type AuthHandlers struct {
	otpService     *service.OTPService
	jwtService     *service.JWTService
	sessionService *service.SessionService
	members        *repository.MemberRepository
	notifier       *notify.ConsentNotifier
	logger         *logrus.Logger
}

func NewAuthHandlers(
	otpService *service.OTPService,
	jwtService *service.JWTService,
	sessionService *service.SessionService,
	members *repository.MemberRepository,
	notifier *notify.ConsentNotifier,
	logger *logrus.Logger,
) *AuthHandlers {
	return &AuthHandlers{
		otpService:     otpService,
		jwtService:     jwtService,
		sessionService: sessionService,
		members:        members,
		notifier:       notifier,
		logger:         logger,
	}
}

type RegisterRequest struct {
	Phone       string `json:"phone"`
	Token       string `json:"token"`
	Name        string `json:"name"`
	PersonalID  string `json:"personal_id"`
	Password    string `json:"password"`
	SMSConsent  string `json:"sms_consent"`
	CallConsent string `json:"call_consent"`
}

type AuthResponse struct {
	models.TokenPair
	Member *models.Member `json:"member"`
}

type LoginRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Register completes a verified registration: the phone must carry a live
// verification token, the member must not exist yet, and on success every
// ephemeral record for the phone is cleaned up.
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	phone9 := phone.Normalize(req.Phone)
	if !phone.IsNormalized(phone9) {
		respondWithError(w, http.StatusBadRequest, "INVALID_FORMAT", "Invalid phone number. Must be 9 digits.")
		return
	}

	if req.PersonalID != "" && !phone.ValidPersonalID(req.PersonalID) {
		respondWithError(w, http.StatusBadRequest, "INVALID_PERSONAL_ID", "Personal ID must be 11 digits.")
		return
	}

	if len(req.Password) < 8 {
		respondWithError(w, http.StatusBadRequest, "WEAK_PASSWORD", "Password must be at least 8 characters.")
		return
	}

	for _, consent := range []string{req.SMSConsent, req.CallConsent} {
		if consent != "" && !models.ValidConsent(consent) {
			respondWithError(w, http.StatusBadRequest, "INVALID_CONSENT", "Consent must be \"yes\" or \"no\".")
			return
		}
	}

	verified, err := h.otpService.IsPhoneVerified(r.Context(), phone9, req.Token)
	if err != nil {
		h.logger.WithError(err).Error("Verification check failed")
		respondWithError(w, http.StatusInternalServerError, "INTERNAL", "Internal server error.")
		return
	}
	if !verified {
		respondWithError(w, http.StatusUnauthorized, "PHONE_NOT_VERIFIED", "Phone has not completed OTP verification.")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "INTERNAL", "Internal server error.")
		return
	}

	member := &models.Member{
		Phone:         phone9,
		Name:          strings.TrimSpace(req.Name),
		PersonalID:    req.PersonalID,
		PasswordHash:  string(hash),
		VerifiedPhone: phone9,
		SMSConsent:    req.SMSConsent,
		CallConsent:   req.CallConsent,
	}

	if err := h.members.Create(r.Context(), member); err != nil {
		if errors.Is(err, repository.ErrMemberExists) {
			respondWithError(w, http.StatusConflict, "MEMBER_EXISTS", "A member with this phone already exists.")
			return
		}
		h.logger.WithError(err).Error("Failed to create member")
		respondWithError(w, http.StatusInternalServerError, "MEMBER_CREATION_FAILED", "Failed to create member.")
		return
	}

	h.notifier.ConsentChanged(r.Context(), member.Name, phone9, "", req.SMSConsent, "registration")

	if err := h.otpService.Cleanup(r.Context(), phone9, clientIP(r)); err != nil {
		h.logger.WithError(err).Warn("Post-registration cleanup failed")
	}

	pair, err := h.issueSession(r, phone9)
	if err != nil {
		h.logger.WithError(err).Error("Failed to issue session")
		respondWithError(w, http.StatusInternalServerError, "TOKEN_GENERATION_FAILED", "Failed to generate tokens.")
		return
	}

	respondWithJSON(w, http.StatusCreated, AuthResponse{TokenPair: *pair, Member: member})
}

// Login authenticates a member by phone and password.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	if !phone.IsPhoneLike(req.Phone) {
		respondWithError(w, http.StatusBadRequest, "INVALID_FORMAT", "Invalid phone number.")
		return
	}

	phone9 := phone.Normalize(req.Phone)
	if !phone.IsNormalized(phone9) {
		respondWithError(w, http.StatusBadRequest, "INVALID_FORMAT", "Invalid phone number. Must be 9 digits.")
		return
	}

	member, err := h.members.GetByPhone(r.Context(), phone9)
	if err != nil {
		h.logger.WithError(err).Error("Failed to look up member")
		respondWithError(w, http.StatusInternalServerError, "INTERNAL", "Internal server error.")
		return
	}

	if member == nil ||
		bcrypt.CompareHashAndPassword([]byte(member.PasswordHash), []byte(req.Password)) != nil {
		respondWithError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "The phone number or password is incorrect.")
		return
	}

	pair, err := h.issueSession(r, phone9)
	if err != nil {
		h.logger.WithError(err).Error("Failed to issue session")
		respondWithError(w, http.StatusInternalServerError, "TOKEN_GENERATION_FAILED", "Failed to generate tokens.")
		return
	}

	respondWithJSON(w, http.StatusOK, AuthResponse{TokenPair: *pair, Member: member})
}

// Refresh rotates a refresh token: the old one is revoked and a new pair
// issued.
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	if req.RefreshToken == "" {
		respondWithError(w, http.StatusBadRequest, "MISSING_TOKEN", "Refresh token is required.")
		return
	}

	claims, err := h.jwtService.VerifyToken(req.RefreshToken)
	if err != nil || claims.Type != "refresh" {
		respondWithError(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid refresh token.")
		return
	}

	revoked, err := h.sessionService.IsRevoked(r.Context(), claims.ID)
	if err == nil && revoked {
		respondWithError(w, http.StatusUnauthorized, "TOKEN_REVOKED", "Refresh token has been revoked.")
		return
	}

	session, err := h.sessionService.Get(r.Context(), claims.ID)
	if err != nil || session == nil {
		respondWithError(w, http.StatusUnauthorized, "INVALID_TOKEN", "Unknown refresh token.")
		return
	}

	if err := h.sessionService.Revoke(r.Context(), claims.ID, claims.ExpiresAt.Time); err != nil {
		h.logger.WithError(err).Warn("Failed to revoke rotated refresh token")
	}

	pair, err := h.issueSession(r, claims.Phone)
	if err != nil {
		h.logger.WithError(err).Error("Failed to issue session")
		respondWithError(w, http.StatusInternalServerError, "TOKEN_GENERATION_FAILED", "Failed to generate tokens.")
		return
	}

	respondWithJSON(w, http.StatusOK, pair)
}

// Logout revokes the supplied refresh token. The access token simply ages
// out.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if middleware.MemberClaims(r.Context()) == nil {
		respondWithError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token.")
		return
	}

	var req RefreshRequest
	json.NewDecoder(r.Body).Decode(&req)

	if req.RefreshToken != "" {
		if claims, err := h.jwtService.VerifyToken(req.RefreshToken); err == nil && claims.Type == "refresh" {
			if err := h.sessionService.Revoke(r.Context(), claims.ID, claims.ExpiresAt.Time); err != nil {
				h.logger.WithError(err).Warn("Failed to revoke refresh token on logout")
			}
		}
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully."})
}

// issueSession generates a token pair and records the refresh side for
// revocation.
func (h *AuthHandlers) issueSession(r *http.Request, phone9 string) (*models.TokenPair, error) {
	pair, err := h.jwtService.GeneratePair(phone9)
	if err != nil {
		return nil, err
	}

	claims, err := h.jwtService.VerifyToken(pair.RefreshToken)
	if err != nil {
		return nil, err
	}

	if err := h.sessionService.Store(r.Context(), claims.ID, phone9, claims.ExpiresAt.Time); err != nil {
		// The pair stays valid; revocation just won't find a record.
		h.logger.WithError(err).Warn("Failed to store session")
	}

	return pair, nil
}
