package auth

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/bcbuzz/api/internal/domain"
	"github.com/bcbuzz/api/internal/pkg/id"
	pkgotp "github.com/bcbuzz/api/internal/pkg/otp"
	"github.com/bcbuzz/api/internal/pkg/validate"
	"golang.org/x/crypto/bcrypt"
)

// OTP lifetimes and input limits.
const (
	loginOTPTTL    = 5 * time.Minute
	signupOTPTTL   = 5 * time.Minute
	resetOTPTTL    = 15 * time.Minute
	minPasswordLen = 6
)

// DynamoDB attribute names used in partial update maps.
const (
	fieldPasswordHash   = "password_hash"
	fieldHashedPassword = "hashed_password"
	fieldEmailVerified  = "email_verified"
)

// otpShapeRE is the cheap pre-store shape check on submitted codes.
var otpShapeRE = regexp.MustCompile(`^[a-zA-Z0-9]{4,10}$`)

type Service interface {
	Signup(ctx context.Context, req domain.SignupRequest) (int64, error)
	CompleteSignup(ctx context.Context, userID int64) error
	Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginChallenge, error)
	VerifyOTP(ctx context.Context, req domain.VerifyOTPRequest) (token string, ident *domain.Identity, err error)
	ResendOTP(ctx context.Context, email, otpType string) (normalizedEmail, resolvedType string, err error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, req domain.ResetPasswordRequest) error
	FindIdentity(ctx context.Context, role string, identityID int64) (*domain.Identity, error)
}

type userStore interface {
	Create(ctx context.Context, u *domain.User) error
	Get(ctx context.Context, userID int64) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, userID int64, updates map[string]interface{}) error
}

type testerStore interface {
	Get(ctx context.Context, testerID int64) (*domain.Tester, error)
	GetByEmail(ctx context.Context, email string) (*domain.Tester, error)
	Update(ctx context.Context, testerID int64, updates map[string]interface{}) error
}

type adminStore interface {
	List(ctx context.Context) ([]domain.Admin, error)
	Get(ctx context.Context, adminID int64) (*domain.Admin, error)
	GetByEmail(ctx context.Context, email string) (*domain.Admin, error)
	Update(ctx context.Context, adminID int64, updates map[string]interface{}) error
}

type otpStore interface {
	Put(ctx context.Context, o *domain.OTP) error
	Delete(ctx context.Context, role string, userID int64, otpType string) error
	GetByCode(ctx context.Context, role string, userID int64, code string) (*domain.OTP, error)
	GetByTypeAndCode(ctx context.Context, role string, userID int64, otpType, code string) (*domain.OTP, error)
}

type mailer interface {
	SendEmail(to, subject, body string) error
}

type tokenSigner interface {
	Sign(userID int64, role string) (string, error)
}

type service struct {
	users        userStore
	testers      testerStore
	admins       adminStore
	otps         otpStore
	mailer       mailer
	signer       tokenSigner
	testerDomain string
	strictNotify bool
}

type ServiceDeps struct {
	UserRepo     userStore
	TesterRepo   testerStore
	AdminRepo    adminStore
	OTPRepo      otpStore
	Mailer       mailer
	TokenSigner  tokenSigner
	TesterDomain string
	// StrictNotify surfaces OTP dispatch failures to the caller instead of
	// logging and swallowing them. Enabled in production.
	StrictNotify bool
}

func NewService(deps ServiceDeps) Service {
	return &service{
		users:        deps.UserRepo,
		testers:      deps.TesterRepo,
		admins:       deps.AdminRepo,
		otps:         deps.OTPRepo,
		mailer:       deps.Mailer,
		signer:       deps.TokenSigner,
		testerDomain: deps.TesterDomain,
		strictNotify: deps.StrictNotify,
	}
}

// Signup creates a User record. It never dispatches an OTP itself; the client
// is expected to call CompleteSignup right after (two-call handshake kept for
// API compatibility).
func (s *service) Signup(ctx context.Context, req domain.SignupRequest) (int64, error) {
	if req.FullName == "" || req.Email == "" || req.Password == "" || req.ConfirmPassword == "" {
		return 0, domain.NewFlowError(domain.CodeMissingFields, "full name, email, password and confirmation are required", domain.ErrBadRequest)
	}
	email := normalizeEmail(req.Email)
	if !validate.Email(email) {
		return 0, domain.NewFlowError(domain.CodeInvalidEmail, "invalid email address", domain.ErrBadRequest)
	}
	if domainDenylisted(email) {
		return 0, domain.NewFlowError(domain.CodeUnauthorizedDomain, "signups from this email domain are not accepted", domain.ErrForbidden)
	}
	if len(req.Password) < minPasswordLen {
		return 0, domain.NewFlowError(domain.CodeInvalidPassword, fmt.Sprintf("password must be at least %d characters", minPasswordLen), domain.ErrBadRequest)
	}
	if req.Password != req.ConfirmPassword {
		return 0, domain.NewFlowError(domain.CodeInvalidInput, "passwords do not match", domain.ErrBadRequest)
	}
	// Collision check is scoped to the users table. Testers and admins are
	// provisioned out-of-band, so a same-address tester or admin is not
	// detected here.
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return 0, domain.NewFlowError(domain.CodeEmailExists, "an account with this email already exists", domain.ErrConflict)
	}

	switch resolveIntendedRole(email, s.testerDomain) {
	case intentTester:
		// Tester accounts are provisioned internally; a tester-domain address
		// must not end up in the users table.
		return 0, domain.NewFlowError(domain.CodeUnauthorizedDomain, "tester accounts are provisioned internally", domain.ErrForbidden)
	case intentUnauthorized:
		// Preserved behavior: unrecognized domains are downgraded to the user
		// role instead of rejected. The hard denylist above already ran.
		slog.Warn("unrecognized email domain downgraded to user role", "email", email)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	u := &domain.User{
		FullName:      req.FullName,
		Email:         email,
		PasswordHash:  string(hash),
		Role:          domain.RoleUser,
		EmailVerified: false,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return 0, err
	}
	return u.UserID, nil
}

// CompleteSignup dispatches the signup OTP for a freshly created user.
func (s *service) CompleteSignup(ctx context.Context, userID int64) error {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return domain.NewFlowError(domain.CodeUserNotFound, "no pending signup for this id", domain.ErrUnauthorized)
	}
	code, err := s.issueOTP(ctx, domain.RoleUser, u.UserID, domain.OTPTypeSignup, signupOTPTTL)
	if err != nil {
		return err
	}
	return s.dispatch(u.Email, code, domain.OTPTypeSignup, false)
}

// Login verifies credentials and dispatches the login OTP. The caller never
// supplies a role: the flow probes Admin (hashed-email match), then Tester,
// then User, and the collection that yields a credential match determines the
// role. Admin goes first so a privileged match can never be shadowed by a
// coincidental tester or user row with the same address.
func (s *service) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginChallenge, error) {
	if req.Email == "" || req.Password == "" {
		return nil, domain.NewFlowError(domain.CodeMissingFields, "email and password are required", domain.ErrBadRequest)
	}
	email := normalizeEmail(req.Email)

	// Admin probe. The stored hashed_email is a salted bcrypt digest, so each
	// candidate must be compared individually; n is expected to be 1. The raw
	// supplied email is compared, not the normalized form — admin email
	// hashes are computed over the exact string provisioned.
	admins, err := s.admins.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range admins {
		a := &admins[i]
		if bcrypt.CompareHashAndPassword([]byte(a.HashedEmail), []byte(req.Email)) != nil {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(a.HashedPassword), []byte(req.Password)) != nil {
			return nil, domain.NewFlowError(domain.CodeInvalidCredentials, "invalid admin credentials", domain.ErrUnauthorized)
		}
		return s.challenge(ctx, identityFromAdmin(a))
	}

	if t, err := s.testers.GetByEmail(ctx, email); err == nil {
		if bcrypt.CompareHashAndPassword([]byte(t.HashedPassword), []byte(req.Password)) != nil {
			return nil, domain.NewFlowError(domain.CodeInvalidCredentials, "invalid tester credentials", domain.ErrUnauthorized)
		}
		return s.challenge(ctx, identityFromTester(t))
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, domain.NewFlowError(domain.CodeUserNotFound, "no account found for this email", domain.ErrNotFound)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		return nil, domain.NewFlowError(domain.CodeInvalidCredentials, "incorrect password", domain.ErrUnauthorized)
	}
	return s.challenge(ctx, identityFromUser(u))
}

// challenge supersedes any live login OTP, dispatches a fresh one and tells
// the caller a second factor is required. No token yet.
func (s *service) challenge(ctx context.Context, ident *domain.Identity) (*domain.LoginChallenge, error) {
	code, err := s.issueOTP(ctx, ident.Role, ident.ID, domain.OTPTypeLogin, loginOTPTTL)
	if err != nil {
		return nil, err
	}
	if err := s.dispatch(ident.Email, code, domain.OTPTypeLogin, false); err != nil {
		return nil, err
	}
	return &domain.LoginChallenge{RequiresOTP: true, Email: ident.Email, Role: ident.Role}, nil
}

// VerifyOTP consumes a dispatched code and issues the token. The lookup is
// scoped by the identity's collection and role but not by OTP type: a login
// and a signup code are equally acceptable here, and consuming either flips
// an unverified user or tester to verified.
func (s *service) VerifyOTP(ctx context.Context, req domain.VerifyOTPRequest) (string, *domain.Identity, error) {
	if req.Email == "" || req.Code == "" {
		return "", nil, domain.NewFlowError(domain.CodeMissingFields, "email and code are required", domain.ErrBadRequest)
	}
	if !otpShapeRE.MatchString(req.Code) {
		return "", nil, domain.NewFlowError(domain.CodeInvalidOTP, "code must be 4-10 alphanumeric characters", domain.ErrBadRequest)
	}
	ident, err := s.findIdentityByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		return "", nil, err
	}
	o, err := s.otps.GetByCode(ctx, ident.Role, ident.ID, req.Code)
	if err != nil || o.Expired(time.Now()) {
		// Absent, mismatched and expired all collapse into one message so a
		// guesser learns nothing about which occurred.
		return "", nil, domain.NewFlowError(domain.CodeOTPInvalid, "invalid or expired code", domain.ErrUnauthorized)
	}
	if !ident.EmailVerified {
		if err := s.markVerified(ctx, ident); err != nil {
			return "", nil, err
		}
		ident.EmailVerified = true
	}
	if err := s.otps.Delete(ctx, ident.Role, ident.ID, o.Type); err != nil {
		slog.Warn("failed to delete consumed OTP", "role", ident.Role, "user_id", ident.ID, "err", err)
	}
	token, err := s.signer.Sign(ident.ID, ident.Role)
	if err != nil {
		return "", nil, err
	}
	return token, ident, nil
}

// ResendOTP supersedes and re-dispatches a code of the given type. Unlike
// ForgotPassword this flow does surface an unknown email as not-found.
func (s *service) ResendOTP(ctx context.Context, email, otpType string) (string, string, error) {
	if email == "" {
		return "", "", domain.NewFlowError(domain.CodeMissingFields, "email is required", domain.ErrBadRequest)
	}
	if otpType == "" {
		otpType = domain.OTPTypeSignup
	}
	if !domain.ValidOTPType(otpType) {
		return "", "", domain.NewFlowError(domain.CodeInvalidInput, "unknown OTP type", domain.ErrBadRequest)
	}
	ident, err := s.findIdentityByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return "", "", err
	}
	code, err := s.issueOTP(ctx, ident.Role, ident.ID, otpType, loginOTPTTL)
	if err != nil {
		return "", "", err
	}
	if err := s.dispatch(ident.Email, code, otpType, false); err != nil {
		return "", "", err
	}
	return ident.Email, otpType, nil
}

// ForgotPassword issues a reset code when the email belongs to an identity
// and does nothing observable when it doesn't. Callers must present the same
// response either way; only a syntactically invalid email is rejected.
func (s *service) ForgotPassword(ctx context.Context, email string) error {
	norm := normalizeEmail(email)
	if !validate.Email(norm) {
		return domain.NewFlowError(domain.CodeInvalidEmail, "invalid email address", domain.ErrBadRequest)
	}
	ident, err := s.findIdentityByEmail(ctx, norm)
	if err != nil {
		return nil
	}
	code, err := s.issueOTP(ctx, ident.Role, ident.ID, domain.OTPTypePasswordReset, resetOTPTTL)
	if err != nil {
		return err
	}
	// Dispatch failure is always swallowed here: surfacing it would make the
	// account-exists case distinguishable from the generic response.
	return s.dispatch(ident.Email, code, domain.OTPTypePasswordReset, true)
}

// ResetPassword consumes a reset code and overwrites the identity's password
// credential. No token is issued; the user logs in again through the normal
// flow.
func (s *service) ResetPassword(ctx context.Context, req domain.ResetPasswordRequest) error {
	if req.Email == "" || req.Code == "" || req.NewPassword == "" || req.ConfirmPassword == "" {
		return domain.NewFlowError(domain.CodeMissingFields, "email, code, new password and confirmation are required", domain.ErrBadRequest)
	}
	email := normalizeEmail(req.Email)
	if !validate.Email(email) {
		return domain.NewFlowError(domain.CodeInvalidEmail, "invalid email address", domain.ErrBadRequest)
	}
	if len(req.NewPassword) < minPasswordLen {
		return domain.NewFlowError(domain.CodeInvalidPassword, fmt.Sprintf("password must be at least %d characters", minPasswordLen), domain.ErrBadRequest)
	}
	if req.NewPassword != req.ConfirmPassword {
		return domain.NewFlowError(domain.CodeInvalidInput, "passwords do not match", domain.ErrBadRequest)
	}
	ident, err := s.findIdentityByEmail(ctx, email)
	if err != nil {
		return err
	}
	o, err := s.otps.GetByTypeAndCode(ctx, ident.Role, ident.ID, domain.OTPTypePasswordReset, req.Code)
	if err != nil || o.Expired(time.Now()) {
		return domain.NewFlowError(domain.CodeOTPInvalid, "invalid or expired code", domain.ErrUnauthorized)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	switch ident.Role {
	case domain.RoleTester:
		err = s.testers.Update(ctx, ident.ID, map[string]interface{}{fieldHashedPassword: string(hash)})
	case domain.RoleAdmin:
		err = s.admins.Update(ctx, ident.ID, map[string]interface{}{fieldHashedPassword: string(hash)})
	default:
		err = s.users.Update(ctx, ident.ID, map[string]interface{}{fieldPasswordHash: string(hash)})
	}
	if err != nil {
		return err
	}
	if err := s.otps.Delete(ctx, ident.Role, ident.ID, domain.OTPTypePasswordReset); err != nil {
		slog.Warn("failed to delete consumed OTP", "role", ident.Role, "user_id", ident.ID, "err", err)
	}
	return nil
}

// FindIdentity resolves an (role, id) pair back to its identity record. The
// request gate uses it for the liveness check on every authenticated call.
func (s *service) FindIdentity(ctx context.Context, role string, identityID int64) (*domain.Identity, error) {
	switch domain.NormalizeRole(role) {
	case domain.RoleTester:
		t, err := s.testers.Get(ctx, identityID)
		if err != nil {
			return nil, err
		}
		return identityFromTester(t), nil
	case domain.RoleAdmin:
		a, err := s.admins.Get(ctx, identityID)
		if err != nil {
			return nil, err
		}
		return identityFromAdmin(a), nil
	case domain.RoleUser:
		u, err := s.users.Get(ctx, identityID)
		if err != nil {
			return nil, err
		}
		return identityFromUser(u), nil
	}
	return nil, fmt.Errorf("unknown role %q: %w", role, domain.ErrBadRequest)
}

// findIdentityByEmail probes User, then Tester, then Admin for the normalized
// email. The single probe order here serves verify, resend, forgot and reset
// identically. The admin probe uses the plaintext email attribute, not the
// hashed one — the hashed form only participates in login.
func (s *service) findIdentityByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	if u, err := s.users.GetByEmail(ctx, email); err == nil {
		return identityFromUser(u), nil
	}
	if t, err := s.testers.GetByEmail(ctx, email); err == nil {
		return identityFromTester(t), nil
	}
	if a, err := s.admins.GetByEmail(ctx, email); err == nil {
		return identityFromAdmin(a), nil
	}
	return nil, domain.NewFlowError(domain.CodeUserNotFound, "no account found for this email", domain.ErrNotFound)
}

// issueOTP deletes any live code for (role, userID, otpType) and persists a
// fresh one. Returns the plaintext code for dispatch.
func (s *service) issueOTP(ctx context.Context, role string, userID int64, otpType string, ttl time.Duration) (string, error) {
	if err := s.otps.Delete(ctx, role, userID, otpType); err != nil {
		return "", err
	}
	code, err := pkgotp.Generate(pkgotp.DefaultLength)
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	o := &domain.OTP{
		OTPID:     id.New(),
		Code:      code,
		UserID:    userID,
		Role:      domain.NormalizeRole(role),
		Type:      otpType,
		ExpiresAt: now.Add(ttl).Unix(),
		CreatedAt: now,
	}
	if err := s.otps.Put(ctx, o); err != nil {
		return "", err
	}
	return code, nil
}

// dispatch emails the code. Failures are logged and swallowed unless the
// service runs with StrictNotify; alwaysSwallow forces the lenient path
// regardless (forgot-password's anti-enumeration guarantee).
func (s *service) dispatch(email, code, otpType string, alwaysSwallow bool) error {
	var subject string
	switch otpType {
	case domain.OTPTypeLogin:
		subject = "Your BCBUZZ login code"
	case domain.OTPTypePasswordReset:
		subject = "Your BCBUZZ password reset code"
	default:
		subject = "Verify your BCBUZZ account"
	}
	err := s.mailer.SendEmail(email, subject, "Your verification code: "+code)
	if err == nil {
		return nil
	}
	slog.Warn("OTP dispatch failed", "type", otpType, "err", err)
	if alwaysSwallow || !s.strictNotify {
		return nil
	}
	return fmt.Errorf("send OTP email: %w", err)
}

func (s *service) markVerified(ctx context.Context, ident *domain.Identity) error {
	switch ident.Role {
	case domain.RoleTester:
		return s.testers.Update(ctx, ident.ID, map[string]interface{}{fieldEmailVerified: true})
	case domain.RoleUser:
		return s.users.Update(ctx, ident.ID, map[string]interface{}{fieldEmailVerified: true})
	}
	// Admins are pre-verified; nothing to flip.
	return nil
}

func identityFromUser(u *domain.User) *domain.Identity {
	return &domain.Identity{
		ID:            u.UserID,
		Role:          domain.NormalizeRole(u.Role),
		Email:         u.Email,
		FullName:      u.FullName,
		EmailVerified: u.EmailVerified,
	}
}

func identityFromTester(t *domain.Tester) *domain.Identity {
	return &domain.Identity{
		ID:            t.TesterID,
		Role:          domain.RoleTester,
		Email:         t.Email,
		FullName:      t.Name,
		EmailVerified: t.EmailVerified,
	}
}

func identityFromAdmin(a *domain.Admin) *domain.Identity {
	return &domain.Identity{
		ID:            a.AdminID,
		Role:          domain.RoleAdmin,
		Email:         a.Email,
		FullName:      "Administrator",
		EmailVerified: true,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
