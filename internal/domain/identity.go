package domain

import "time"

// Role names. `client` is a legacy alias for `user` accepted at the API
// boundary; it is normalized to `user` before it reaches storage, OTP subject
// keys, or token claims.
const (
	RoleUser   = "user"
	RoleClient = "client"
	RoleTester = "tester"
	RoleAdmin  = "admin"
)

// NormalizeRole collapses the client alias onto the canonical user role.
func NormalizeRole(role string) string {
	if role == RoleClient {
		return RoleUser
	}
	return role
}

// User is a self-registered account (role user/client).
type User struct {
	UserID        int64     `json:"id" dynamodbav:"user_id"`
	FullName      string    `json:"full_name" dynamodbav:"full_name"`
	Email         string    `json:"email" dynamodbav:"email"`
	PasswordHash  string    `json:"-" dynamodbav:"password_hash"`
	Role          string    `json:"role" dynamodbav:"role"`
	EmailVerified bool      `json:"email_verified" dynamodbav:"email_verified"`
	CreatedAt     time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt     time.Time `json:"updated" dynamodbav:"updated_at"`
}

// Tester is an internal auditor account, provisioned out-of-band.
type Tester struct {
	TesterID       int64     `json:"id" dynamodbav:"tester_id"`
	Name           string    `json:"name" dynamodbav:"name"`
	Email          string    `json:"email" dynamodbav:"email"`
	HashedPassword string    `json:"-" dynamodbav:"hashed_password"`
	EmailVerified  bool      `json:"email_verified" dynamodbav:"email_verified"`
	CreatedAt      time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt      time.Time `json:"updated" dynamodbav:"updated_at"`
}

// Admin is a provisioned operator account. The primary login lookup matches
// the candidate email against HashedEmail with bcrypt; the plaintext Email
// attribute exists only for the resend-OTP lookup path.
type Admin struct {
	AdminID        int64     `json:"id" dynamodbav:"admin_id"`
	Email          string    `json:"email" dynamodbav:"email"`
	HashedEmail    string    `json:"-" dynamodbav:"hashed_email"`
	HashedPassword string    `json:"-" dynamodbav:"hashed_password"`
	CreatedAt      time.Time `json:"created" dynamodbav:"created_at"`
}

// Identity is the tagged result of a cross-collection lookup. Role records
// which collection the match came from; ID is only meaningful together with
// Role since the three collections number their ids independently.
type Identity struct {
	ID            int64  `json:"id"`
	Role          string `json:"role"`
	Email         string `json:"email"`
	FullName      string `json:"full_name"`
	EmailVerified bool   `json:"email_verified"`
}

// SignupRequest is the body of POST /auth/signup.
type SignupRequest struct {
	FullName        string `json:"full_name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// VerifyOTPRequest is the body of POST /auth/verify-otp.
type VerifyOTPRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// ResetPasswordRequest is the body of POST /auth/reset-password.
type ResetPasswordRequest struct {
	Email           string `json:"email"`
	Code            string `json:"code"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// LoginChallenge tells the client a second factor is now required. No token
// is issued at this stage.
type LoginChallenge struct {
	RequiresOTP bool   `json:"requires_otp"`
	Email       string `json:"email"`
	Role        string `json:"role"`
}
