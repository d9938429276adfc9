package models

import "time"

// Consent values are tri-state: explicit yes, explicit no, or never asked.
const (
	ConsentYes   = "yes"
	ConsentNo    = "no"
	ConsentUnset = ""
)

// ValidConsent reports whether v is an explicit consent answer.
func ValidConsent(v string) bool {
	return v == ConsentYes || v == ConsentNo
}

// Member is the durable membership record, keyed by the normalized
// 9-digit phone. CouponCode is written by the external ERP sync and only
// carried here.
type Member struct {
	Phone         string    `json:"phone" dynamodbav:"phone"`
	Name          string    `json:"name,omitempty" dynamodbav:"name,omitempty"`
	PersonalID    string    `json:"personal_id,omitempty" dynamodbav:"personal_id,omitempty"`
	PasswordHash  string    `json:"-" dynamodbav:"password_hash,omitempty"`
	VerifiedPhone string    `json:"verified_phone,omitempty" dynamodbav:"verified_phone,omitempty"`
	SMSConsent    string    `json:"sms_consent,omitempty" dynamodbav:"sms_consent,omitempty"`
	CallConsent   string    `json:"call_consent,omitempty" dynamodbav:"call_consent,omitempty"`
	CouponCode    string    `json:"coupon_code,omitempty" dynamodbav:"coupon_code,omitempty"`
	CreatedAt     time.Time `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" dynamodbav:"updated_at"`
}

func (m *Member) GetPK() string {
	return "MEMBER#" + m.Phone
}

func (m *Member) GetSK() string {
	return "PROFILE"
}
