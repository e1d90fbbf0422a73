package domain

import "time"

// OTP flow types.
const (
	OTPTypeLogin         = "login"
	OTPTypeSignup        = "signup"
	OTPTypePasswordReset = "password_reset"
)

// OTP is a one-time passcode bound to one identity and one flow.
// PK: subject ("<role>#<user_id>", role normalized), SK: otp_type.
// UserID is only meaningful together with Role — the identity collections
// number their ids independently.
// ExpiresAt is a Unix timestamp used as DynamoDB TTL.
// Attempts is persisted for forward compatibility but not enforced by any flow.
type OTP struct {
	Subject   string    `json:"-" dynamodbav:"subject"`
	Type      string    `json:"type" dynamodbav:"otp_type"`
	OTPID     string    `json:"id" dynamodbav:"otp_id"`
	Code      string    `json:"-" dynamodbav:"code"`
	UserID    int64     `json:"user_id" dynamodbav:"user_id"`
	Role      string    `json:"role" dynamodbav:"role"`
	Attempts  int       `json:"attempts" dynamodbav:"attempts"`
	ExpiresAt int64     `json:"expires_at" dynamodbav:"expires_at"` // TTL (Unix seconds)
	CreatedAt time.Time `json:"created" dynamodbav:"created_at"`
}

// Expired reports whether the code is past its absolute expiry.
func (o *OTP) Expired(now time.Time) bool {
	return o.ExpiresAt < now.Unix()
}

// ValidOTPType reports whether t names a known OTP flow.
func ValidOTPType(t string) bool {
	switch t {
	case OTPTypeLogin, OTPTypeSignup, OTPTypePasswordReset:
		return true
	}
	return false
}
