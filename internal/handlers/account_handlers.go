package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/clubmember/clubmember/internal/middleware"
	"github.com/clubmember/clubmember/internal/models"
	"github.com/clubmember/clubmember/internal/notify"
	"github.com/clubmember/clubmember/internal/phone"
	"github.com/clubmember/clubmember/internal/repository"
	"github.com/clubmember/clubmember/internal/service"
)

// AccountHandlers covers the checkout and account-update call sites. Both
// are thin adapters over the OTP core: they pass (phone, token) through
// and act on the durable member record when verification holds.
type AccountHandlers struct {
	otpService     *service.OTPService
	jwtService     *service.JWTService
	sessionService *service.SessionService
	members        *repository.MemberRepository
	notifier       *notify.ConsentNotifier
	logger         *logrus.Logger
}

func NewAccountHandlers(
	otpService *service.OTPService,
	jwtService *service.JWTService,
	sessionService *service.SessionService,
	members *repository.MemberRepository,
	notifier *notify.ConsentNotifier,
	logger *logrus.Logger,
) *AccountHandlers {
	return &AccountHandlers{
		otpService:     otpService,
		jwtService:     jwtService,
		sessionService: sessionService,
		members:        members,
		notifier:       notifier,
		logger:         logger,
	}
}

type ConfirmCheckoutRequest struct {
	Phone       string `json:"phone"`
	Token       string `json:"token"`
	SMSConsent  string `json:"sms_consent"`
	CallConsent string `json:"call_consent"`
}

type ConfirmCheckoutResponse struct {
	Verified bool `json:"verified"`
}

type UpdatePhoneRequest struct {
	Phone string `json:"phone"`
	Token string `json:"token"`
}

type UpdateConsentRequest struct {
	SMSConsent  string `json:"sms_consent"`
	CallConsent string `json:"call_consent"`
}

// ConfirmCheckout validates the billing phone before an order is placed.
// A logged-in member whose verified phone matches skips the OTP entirely;
// everyone else must present a live verification token.
func (h *AccountHandlers) ConfirmCheckout(w http.ResponseWriter, r *http.Request) {
	var req ConfirmCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	phone9 := phone.Normalize(req.Phone)
	if !phone.IsNormalized(phone9) {
		respondWithError(w, http.StatusBadRequest, "INVALID_FORMAT", "Invalid phone number. Must be 9 digits.")
		return
	}

	claims := middleware.MemberClaims(r.Context())

	var member *models.Member
	if claims != nil {
		var err error
		member, err = h.members.GetByPhone(r.Context(), claims.Phone)
		if err != nil {
			h.logger.WithError(err).Error("Failed to look up member")
			respondWithError(w, http.StatusInternalServerError, "INTERNAL", "Internal server error.")
			return
		}
	}

	verified := member != nil && member.VerifiedPhone == phone9

	if !verified {
		var err error
		verified, err = h.otpService.IsPhoneVerified(r.Context(), phone9, req.Token)
		if err != nil {
			h.logger.WithError(err).Error("Verification check failed")
			respondWithError(w, http.StatusInternalServerError, "INTERNAL", "Internal server error.")
			return
		}
	}

	if !verified {
		respondWithError(w, http.StatusUnauthorized, "PHONE_NOT_VERIFIED", "Phone has not completed OTP verification.")
		return
	}

	if member != nil {
		if member.VerifiedPhone != phone9 {
			if err := h.members.SetVerifiedPhone(r.Context(), member.Phone, phone9); err != nil {
				h.logger.WithError(err).Error("Failed to persist verified phone")
			}
		}
		h.applyConsents(r, member, req.SMSConsent, req.CallConsent, "checkout")
	}

	respondWithJSON(w, http.StatusOK, ConfirmCheckoutResponse{Verified: true})
}

// UpdatePhone changes the member's phone after OTP verification of the
// new number. The member record is re-keyed and a fresh session issued,
// since the old access token names the old phone.
func (h *AccountHandlers) UpdatePhone(w http.ResponseWriter, r *http.Request) {
	claims := middleware.MemberClaims(r.Context())

	var req UpdatePhoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	phone9 := phone.Normalize(req.Phone)
	if !phone.IsNormalized(phone9) {
		respondWithError(w, http.StatusBadRequest, "INVALID_FORMAT", "Invalid phone number. Must be 9 digits.")
		return
	}

	member, err := h.members.GetByPhone(r.Context(), claims.Phone)
	if err != nil || member == nil {
		respondWithError(w, http.StatusNotFound, "MEMBER_NOT_FOUND", "Member not found.")
		return
	}

	if member.Phone == phone9 && member.VerifiedPhone == phone9 {
		respondWithJSON(w, http.StatusOK, AuthResponse{Member: member})
		return
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

	if member.Phone != phone9 {
		taken, err := h.members.GetByPhone(r.Context(), phone9)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, "INTERNAL", "Internal server error.")
			return
		}
		if taken != nil {
			respondWithError(w, http.StatusConflict, "PHONE_TAKEN", "Another member already uses this phone.")
			return
		}

		if err := h.members.ChangePhone(r.Context(), member, phone9); err != nil {
			if errors.Is(err, repository.ErrMemberExists) {
				respondWithError(w, http.StatusConflict, "PHONE_TAKEN", "Another member already uses this phone.")
				return
			}
			h.logger.WithError(err).Error("Failed to change member phone")
			respondWithError(w, http.StatusInternalServerError, "INTERNAL", "Internal server error.")
			return
		}
	} else if err := h.members.SetVerifiedPhone(r.Context(), member.Phone, phone9); err != nil {
		h.logger.WithError(err).Error("Failed to persist verified phone")
		respondWithError(w, http.StatusInternalServerError, "INTERNAL", "Internal server error.")
		return
	}

	if err := h.otpService.Cleanup(r.Context(), phone9, clientIP(r)); err != nil {
		h.logger.WithError(err).Warn("Post-update cleanup failed")
	}

	pair, err := h.jwtService.GeneratePair(member.Phone)
	if err != nil {
		h.logger.WithError(err).Error("Failed to issue session after phone change")
		respondWithError(w, http.StatusInternalServerError, "TOKEN_GENERATION_FAILED", "Failed to generate tokens.")
		return
	}
	if refreshClaims, err := h.jwtService.VerifyToken(pair.RefreshToken); err == nil {
		if err := h.sessionService.Store(r.Context(), refreshClaims.ID, member.Phone, refreshClaims.ExpiresAt.Time); err != nil {
			h.logger.WithError(err).Warn("Failed to store session")
		}
	}

	respondWithJSON(w, http.StatusOK, AuthResponse{TokenPair: *pair, Member: member})
}

// UpdateConsent records new consent answers for the logged-in member.
func (h *AccountHandlers) UpdateConsent(w http.ResponseWriter, r *http.Request) {
	claims := middleware.MemberClaims(r.Context())

	var req UpdateConsentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	for _, consent := range []string{req.SMSConsent, req.CallConsent} {
		if consent != "" && !models.ValidConsent(consent) {
			respondWithError(w, http.StatusBadRequest, "INVALID_CONSENT", "Consent must be \"yes\" or \"no\".")
			return
		}
	}

	member, err := h.members.GetByPhone(r.Context(), claims.Phone)
	if err != nil || member == nil {
		respondWithError(w, http.StatusNotFound, "MEMBER_NOT_FOUND", "Member not found.")
		return
	}

	h.applyConsents(r, member, req.SMSConsent, req.CallConsent, "account")

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Consent updated."})
}

// applyConsents persists explicit consent answers and raises the admin
// notification, keeping prior answers when a field was omitted.
func (h *AccountHandlers) applyConsents(r *http.Request, member *models.Member, smsConsent, callConsent, source string) {
	newSMS := member.SMSConsent
	if models.ValidConsent(smsConsent) {
		newSMS = smsConsent
	}
	newCall := member.CallConsent
	if models.ValidConsent(callConsent) {
		newCall = callConsent
	}

	if newSMS == member.SMSConsent && newCall == member.CallConsent {
		return
	}

	if err := h.members.SetConsents(r.Context(), member.Phone, newSMS, newCall); err != nil {
		h.logger.WithError(err).Error("Failed to persist consents")
		return
	}

	h.notifier.ConsentChanged(r.Context(), member.Name, member.Phone, member.SMSConsent, newSMS, source)

	member.SMSConsent = newSMS
	member.CallConsent = newCall
}
