package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bcbuzz/api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- mocks ---

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) Create(ctx context.Context, u *domain.User) error {
	return m.Called(ctx, u).Error(0)
}
func (m *mockUserStore) Get(ctx context.Context, userID int64) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) Update(ctx context.Context, userID int64, updates map[string]interface{}) error {
	return m.Called(ctx, userID, updates).Error(0)
}

type mockTesterStore struct{ mock.Mock }

func (m *mockTesterStore) Get(ctx context.Context, testerID int64) (*domain.Tester, error) {
	args := m.Called(ctx, testerID)
	if t, _ := args.Get(0).(*domain.Tester); t != nil {
		return t, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockTesterStore) GetByEmail(ctx context.Context, email string) (*domain.Tester, error) {
	args := m.Called(ctx, email)
	if t, _ := args.Get(0).(*domain.Tester); t != nil {
		return t, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockTesterStore) Update(ctx context.Context, testerID int64, updates map[string]interface{}) error {
	return m.Called(ctx, testerID, updates).Error(0)
}

type mockAdminStore struct{ mock.Mock }

func (m *mockAdminStore) List(ctx context.Context) ([]domain.Admin, error) {
	args := m.Called(ctx)
	if a, _ := args.Get(0).([]domain.Admin); a != nil {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockAdminStore) Get(ctx context.Context, adminID int64) (*domain.Admin, error) {
	args := m.Called(ctx, adminID)
	if a, _ := args.Get(0).(*domain.Admin); a != nil {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockAdminStore) GetByEmail(ctx context.Context, email string) (*domain.Admin, error) {
	args := m.Called(ctx, email)
	if a, _ := args.Get(0).(*domain.Admin); a != nil {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockAdminStore) Update(ctx context.Context, adminID int64, updates map[string]interface{}) error {
	return m.Called(ctx, adminID, updates).Error(0)
}

type mockOTPStore struct{ mock.Mock }

func (m *mockOTPStore) Put(ctx context.Context, o *domain.OTP) error {
	return m.Called(ctx, o).Error(0)
}
func (m *mockOTPStore) Delete(ctx context.Context, role string, userID int64, otpType string) error {
	return m.Called(ctx, role, userID, otpType).Error(0)
}
func (m *mockOTPStore) GetByCode(ctx context.Context, role string, userID int64, code string) (*domain.OTP, error) {
	args := m.Called(ctx, role, userID, code)
	if o, _ := args.Get(0).(*domain.OTP); o != nil {
		return o, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockOTPStore) GetByTypeAndCode(ctx context.Context, role string, userID int64, otpType, code string) (*domain.OTP, error) {
	args := m.Called(ctx, role, userID, otpType, code)
	if o, _ := args.Get(0).(*domain.OTP); o != nil {
		return o, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockMailer struct{ mock.Mock }

func (m *mockMailer) SendEmail(to, subject, body string) error {
	return m.Called(to, subject, body).Error(0)
}

type mockSigner struct{ mock.Mock }

func (m *mockSigner) Sign(userID int64, role string) (string, error) {
	args := m.Called(userID, role)
	return args.String(0), args.Error(1)
}

// --- builder ---

type fixtures struct {
	users   *mockUserStore
	testers *mockTesterStore
	admins  *mockAdminStore
	otps    *mockOTPStore
	mailer  *mockMailer
	signer  *mockSigner
}

func newFixtures() *fixtures {
	return &fixtures{
		users:   &mockUserStore{},
		testers: &mockTesterStore{},
		admins:  &mockAdminStore{},
		otps:    &mockOTPStore{},
		mailer:  &mockMailer{},
		signer:  &mockSigner{},
	}
}

func (f *fixtures) service() Service {
	return NewService(ServiceDeps{
		UserRepo:     f.users,
		TesterRepo:   f.testers,
		AdminRepo:    f.admins,
		OTPRepo:      f.otps,
		Mailer:       f.mailer,
		TokenSigner:  f.signer,
		TesterDomain: "bcbuzz.io",
	})
}

func mustHash(t *testing.T, secret string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func assertFlowCode(t *testing.T, err error, code string, kind error) {
	t.Helper()
	require.Error(t, err)
	var fe *domain.FlowError
	require.True(t, errors.As(err, &fe), "expected FlowError, got %T: %v", err, err)
	assert.Equal(t, code, fe.Code)
	assert.True(t, errors.Is(err, kind))
}

// --- Signup ---

func TestSignup_MissingFields(t *testing.T) {
	svc := newFixtures().service()
	_, err := svc.Signup(context.Background(), domain.SignupRequest{Email: "a@b.com"})
	assertFlowCode(t, err, domain.CodeMissingFields, domain.ErrBadRequest)
}

func TestSignup_InvalidEmail(t *testing.T) {
	svc := newFixtures().service()
	_, err := svc.Signup(context.Background(), domain.SignupRequest{
		FullName: "Jane", Email: "not-an-email", Password: "secret1", ConfirmPassword: "secret1",
	})
	assertFlowCode(t, err, domain.CodeInvalidEmail, domain.ErrBadRequest)
}

func TestSignup_DenylistedDomain_NoRecordCreated(t *testing.T) {
	f := newFixtures()
	svc := f.service()
	_, err := svc.Signup(context.Background(), domain.SignupRequest{
		FullName: "Jane", Email: "jane@proton.me", Password: "secret1", ConfirmPassword: "secret1",
	})
	assertFlowCode(t, err, domain.CodeUnauthorizedDomain, domain.ErrForbidden)
	f.users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestSignup_ShortPassword(t *testing.T) {
	svc := newFixtures().service()
	_, err := svc.Signup(context.Background(), domain.SignupRequest{
		FullName: "Jane", Email: "jane@gmail.com", Password: "abc", ConfirmPassword: "abc",
	})
	assertFlowCode(t, err, domain.CodeInvalidPassword, domain.ErrBadRequest)
}

func TestSignup_PasswordMismatch(t *testing.T) {
	svc := newFixtures().service()
	_, err := svc.Signup(context.Background(), domain.SignupRequest{
		FullName: "Jane", Email: "jane@gmail.com", Password: "secret1", ConfirmPassword: "secret2",
	})
	assertFlowCode(t, err, domain.CodeInvalidInput, domain.ErrBadRequest)
}

func TestSignup_EmailExists(t *testing.T) {
	f := newFixtures()
	f.users.On("GetByEmail", mock.Anything, "jane@gmail.com").Return(&domain.User{UserID: 1}, nil)

	_, err := f.service().Signup(context.Background(), domain.SignupRequest{
		FullName: "Jane", Email: "jane@gmail.com", Password: "secret1", ConfirmPassword: "secret1",
	})
	assertFlowCode(t, err, domain.CodeEmailExists, domain.ErrConflict)
}

func TestSignup_TesterDomainRejected(t *testing.T) {
	f := newFixtures()
	f.users.On("GetByEmail", mock.Anything, "eve@bcbuzz.io").Return(nil, domain.ErrNotFound)

	_, err := f.service().Signup(context.Background(), domain.SignupRequest{
		FullName: "Eve", Email: "eve@bcbuzz.io", Password: "secret1", ConfirmPassword: "secret1",
	})
	assertFlowCode(t, err, domain.CodeUnauthorizedDomain, domain.ErrForbidden)
	f.users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

// Scenario A: a fresh gmail signup lands in the users table unverified.
func TestSignup_HappyPath(t *testing.T) {
	f := newFixtures()
	f.users.On("GetByEmail", mock.Anything, "jane@gmail.com").Return(nil, domain.ErrNotFound)
	f.users.On("Create", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
		return u.Email == "jane@gmail.com" &&
			u.Role == domain.RoleUser &&
			!u.EmailVerified &&
			bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("secret1")) == nil
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*domain.User).UserID = 7
	}).Return(nil)

	userID, err := f.service().Signup(context.Background(), domain.SignupRequest{
		FullName: "Jane Doe", Email: "jane@gmail.com", Password: "secret1", ConfirmPassword: "secret1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), userID)
	f.users.AssertExpectations(t)
}

// P7: the stored and queried email is the normalized form.
func TestSignup_NormalizesEmail(t *testing.T) {
	f := newFixtures()
	f.users.On("GetByEmail", mock.Anything, "foo@example.com").Return(nil, domain.ErrNotFound)
	f.users.On("Create", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
		return u.Email == "foo@example.com"
	})).Return(nil)

	_, err := f.service().Signup(context.Background(), domain.SignupRequest{
		FullName: "Foo", Email: "  Foo@Example.COM ", Password: "secret1", ConfirmPassword: "secret1",
	})
	require.NoError(t, err)
	f.users.AssertExpectations(t)
}

// --- CompleteSignup ---

func TestCompleteSignup_UnknownID(t *testing.T) {
	f := newFixtures()
	f.users.On("Get", mock.Anything, int64(99)).Return(nil, domain.ErrNotFound)

	err := f.service().CompleteSignup(context.Background(), 99)
	assertFlowCode(t, err, domain.CodeUserNotFound, domain.ErrUnauthorized)
}

func TestCompleteSignup_SupersedesAndDispatches(t *testing.T) {
	f := newFixtures()
	f.users.On("Get", mock.Anything, int64(7)).Return(&domain.User{UserID: 7, Email: "jane@gmail.com"}, nil)
	f.otps.On("Delete", mock.Anything, domain.RoleUser, int64(7), domain.OTPTypeSignup).Return(nil)
	f.otps.On("Put", mock.Anything, mock.MatchedBy(func(o *domain.OTP) bool {
		return o.UserID == 7 && o.Role == domain.RoleUser && o.Type == domain.OTPTypeSignup &&
			len(o.Code) == 6 && o.ExpiresAt > time.Now().Unix()
	})).Return(nil)
	f.mailer.On("SendEmail", "jane@gmail.com", mock.Anything, mock.Anything).Return(nil)

	err := f.service().CompleteSignup(context.Background(), 7)
	require.NoError(t, err)
	f.otps.AssertExpectations(t)
	f.mailer.AssertExpectations(t)
}

func TestCompleteSignup_SwallowsDispatchFailure(t *testing.T) {
	f := newFixtures()
	f.users.On("Get", mock.Anything, int64(7)).Return(&domain.User{UserID: 7, Email: "jane@gmail.com"}, nil)
	f.otps.On("Delete", mock.Anything, domain.RoleUser, int64(7), domain.OTPTypeSignup).Return(nil)
	f.otps.On("Put", mock.Anything, mock.Anything).Return(nil)
	f.mailer.On("SendEmail", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down"))

	// Non-strict notify policy: the flow still reports success.
	err := f.service().CompleteSignup(context.Background(), 7)
	require.NoError(t, err)
}

// --- Login ---

func TestLogin_MissingFields(t *testing.T) {
	svc := newFixtures().service()
	_, err := svc.Login(context.Background(), domain.LoginRequest{Email: "a@b.com"})
	assertFlowCode(t, err, domain.CodeMissingFields, domain.ErrBadRequest)
}

// P1: the admin collection wins the probe even when a user row shares the address.
func TestLogin_AdminProbeWins(t *testing.T) {
	f := newFixtures()
	email := "root@bcbuzz.io"
	f.admins.On("List", mock.Anything).Return([]domain.Admin{{
		AdminID:        1,
		Email:          email,
		HashedEmail:    mustHash(t, email),
		HashedPassword: mustHash(t, "adminpass"),
	}}, nil)
	f.otps.On("Delete", mock.Anything, domain.RoleAdmin, int64(1), domain.OTPTypeLogin).Return(nil)
	f.otps.On("Put", mock.Anything, mock.MatchedBy(func(o *domain.OTP) bool {
		return o.Role == domain.RoleAdmin && o.UserID == 1 && o.Type == domain.OTPTypeLogin
	})).Return(nil)
	f.mailer.On("SendEmail", email, mock.Anything, mock.Anything).Return(nil)

	challenge, err := f.service().Login(context.Background(), domain.LoginRequest{Email: email, Password: "adminpass"})
	require.NoError(t, err)
	assert.True(t, challenge.RequiresOTP)
	assert.Equal(t, domain.RoleAdmin, challenge.Role)
	// The tester and user collections must never be consulted once the admin matched.
	f.testers.AssertNotCalled(t, "GetByEmail", mock.Anything, mock.Anything)
	f.users.AssertNotCalled(t, "GetByEmail", mock.Anything, mock.Anything)
}

func TestLogin_AdminWrongPassword(t *testing.T) {
	f := newFixtures()
	email := "root@bcbuzz.io"
	f.admins.On("List", mock.Anything).Return([]domain.Admin{{
		AdminID:        1,
		HashedEmail:    mustHash(t, email),
		HashedPassword: mustHash(t, "adminpass"),
	}}, nil)

	_, err := f.service().Login(context.Background(), domain.LoginRequest{Email: email, Password: "wrong"})
	assertFlowCode(t, err, domain.CodeInvalidCredentials, domain.ErrUnauthorized)
}

func TestLogin_TesterProbe(t *testing.T) {
	f := newFixtures()
	f.admins.On("List", mock.Anything).Return([]domain.Admin{}, nil)
	f.testers.On("GetByEmail", mock.Anything, "t@bcbuzz.io").Return(&domain.Tester{
		TesterID:       3,
		Email:          "t@bcbuzz.io",
		HashedPassword: mustHash(t, "testerpass"),
	}, nil)
	f.otps.On("Delete", mock.Anything, domain.RoleTester, int64(3), domain.OTPTypeLogin).Return(nil)
	f.otps.On("Put", mock.Anything, mock.Anything).Return(nil)
	f.mailer.On("SendEmail", "t@bcbuzz.io", mock.Anything, mock.Anything).Return(nil)

	challenge, err := f.service().Login(context.Background(), domain.LoginRequest{Email: "T@bcbuzz.io", Password: "testerpass"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleTester, challenge.Role)
}

func TestLogin_UserNotFound(t *testing.T) {
	f := newFixtures()
	f.admins.On("List", mock.Anything).Return([]domain.Admin{}, nil)
	f.testers.On("GetByEmail", mock.Anything, "ghost@nowhere.com").Return(nil, domain.ErrNotFound)
	f.users.On("GetByEmail", mock.Anything, "ghost@nowhere.com").Return(nil, domain.ErrNotFound)

	_, err := f.service().Login(context.Background(), domain.LoginRequest{Email: "ghost@nowhere.com", Password: "x"})
	assertFlowCode(t, err, domain.CodeUserNotFound, domain.ErrNotFound)
}

// Scenario B: a user login reaches the OTP-required stage with a fresh
// 5-minute login code.
func TestLogin_UserHappyPath(t *testing.T) {
	f := newFixtures()
	f.admins.On("List", mock.Anything).Return([]domain.Admin{}, nil)
	f.testers.On("GetByEmail", mock.Anything, "jane@gmail.com").Return(nil, domain.ErrNotFound)
	f.users.On("GetByEmail", mock.Anything, "jane@gmail.com").Return(&domain.User{
		UserID:       7,
		Email:        "jane@gmail.com",
		Role:         domain.RoleUser,
		PasswordHash: mustHash(t, "secret1"),
	}, nil)
	f.otps.On("Delete", mock.Anything, domain.RoleUser, int64(7), domain.OTPTypeLogin).Return(nil)
	f.otps.On("Put", mock.Anything, mock.MatchedBy(func(o *domain.OTP) bool {
		slack := 5 * time.Second
		until := time.Until(time.Unix(o.ExpiresAt, 0))
		return o.Type == domain.OTPTypeLogin && until > 5*time.Minute-slack && until <= 5*time.Minute+slack
	})).Return(nil)
	f.mailer.On("SendEmail", "jane@gmail.com", mock.Anything, mock.Anything).Return(nil)

	challenge, err := f.service().Login(context.Background(), domain.LoginRequest{Email: "jane@gmail.com", Password: "secret1"})
	require.NoError(t, err)
	assert.True(t, challenge.RequiresOTP)
	assert.Equal(t, domain.RoleUser, challenge.Role)
	assert.Equal(t, "jane@gmail.com", challenge.Email)
	f.otps.AssertExpectations(t)
}

func TestLogin_UserWrongPassword(t *testing.T) {
	f := newFixtures()
	f.admins.On("List", mock.Anything).Return([]domain.Admin{}, nil)
	f.testers.On("GetByEmail", mock.Anything, "jane@gmail.com").Return(nil, domain.ErrNotFound)
	f.users.On("GetByEmail", mock.Anything, "jane@gmail.com").Return(&domain.User{
		UserID:       7,
		PasswordHash: mustHash(t, "secret1"),
	}, nil)

	_, err := f.service().Login(context.Background(), domain.LoginRequest{Email: "jane@gmail.com", Password: "nope"})
	assertFlowCode(t, err, domain.CodeInvalidCredentials, domain.ErrUnauthorized)
	f.otps.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

// --- VerifyOTP ---

// Scenario D: a malformed code never reaches the stores.
func TestVerifyOTP_ShapeCheckFirst(t *testing.T) {
	f := newFixtures()
	svc := f.service()

	for _, code := range []string{"abc", "with space1", "bad-code!", "aaaaaaaaaaa"} {
		_, _, err := svc.VerifyOTP(context.Background(), domain.VerifyOTPRequest{Email: "jane@gmail.com", Code: code})
		assertFlowCode(t, err, domain.CodeInvalidOTP, domain.ErrBadRequest)
	}
	f.users.AssertNotCalled(t, "GetByEmail", mock.Anything, mock.Anything)
	f.otps.AssertNotCalled(t, "GetByCode", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestVerifyOTP_UnknownEmail(t *testing.T) {
	f := newFixtures()
	f.users.On("GetByEmail", mock.Anything, "ghost@nowhere.com").Return(nil, domain.ErrNotFound)
	f.testers.On("GetByEmail", mock.Anything, "ghost@nowhere.com").Return(nil, domain.ErrNotFound)
	f.admins.On("GetByEmail", mock.Anything, "ghost@nowhere.com").Return(nil, domain.ErrNotFound)

	_, _, err := f.service().VerifyOTP(context.Background(), domain.VerifyOTPRequest{Email: "ghost@nowhere.com", Code: "ABC123"})
	assertFlowCode(t, err, domain.CodeUserNotFound, domain.ErrNotFound)
}

// P3: an exact code match that is past expires_at still fails.
func TestVerifyOTP_ExpiredCode(t *testing.T) {
	f := newFixtures()
	f.users.On("GetByEmail", mock.Anything, "jane@gmail.com").Return(&domain.User{UserID: 7, Role: domain.RoleUser, Email: "jane@gmail.com"}, nil)
	f.otps.On("GetByCode", mock.Anything, domain.RoleUser, int64(7), "ABC123").Return(&domain.OTP{
		Code:      "ABC123",
		Type:      domain.OTPTypeLogin,
		ExpiresAt: time.Now().Add(-time.Minute).Unix(),
	}, nil)

	_, _, err := f.service().VerifyOTP(context.Background(), domain.VerifyOTPRequest{Email: "jane@gmail.com", Code: "ABC123"})
	assertFlowCode(t, err, domain.CodeOTPInvalid, domain.ErrUnauthorized)
}

// Wrong code and absent code are indistinguishable from expiry.
func TestVerifyOTP_UnknownCode(t *testing.T) {
	f := newFixtures()
	f.users.On("GetByEmail", mock.Anything, "jane@gmail.com").Return(&domain.User{UserID: 7, Role: domain.RoleUser}, nil)
	f.otps.On("GetByCode", mock.Anything, domain.RoleUser, int64(7), "WRONG1").Return(nil, domain.ErrNotFound)

	_, _, err := f.service().VerifyOTP(context.Background(), domain.VerifyOTPRequest{Email: "jane@gmail.com", Code: "WRONG1"})
	assertFlowCode(t, err, domain.CodeOTPInvalid, domain.ErrUnauthorized)
}

// Scenario C: consuming the code flips verification, deletes the OTP and
// returns a token.
func TestVerifyOTP_HappyPath_FlipsVerified(t *testing.T) {
	f := newFixtures()
	f.users.On("GetByEmail", mock.Anything, "jane@gmail.com").Return(&domain.User{
		UserID: 7, Role: domain.RoleUser, Email: "jane@gmail.com", FullName: "Jane Doe", EmailVerified: false,
	}, nil)
	f.otps.On("GetByCode", mock.Anything, domain.RoleUser, int64(7), "ABC123").Return(&domain.OTP{
		Code:      "ABC123",
		Type:      domain.OTPTypeLogin,
		ExpiresAt: time.Now().Add(4 * time.Minute).Unix(),
	}, nil)
	f.users.On("Update", mock.Anything, int64(7), map[string]interface{}{fieldEmailVerified: true}).Return(nil)
	f.otps.On("Delete", mock.Anything, domain.RoleUser, int64(7), domain.OTPTypeLogin).Return(nil)
	f.signer.On("Sign", int64(7), domain.RoleUser).Return("signed-token", nil)

	token, ident, err := f.service().VerifyOTP(context.Background(), domain.VerifyOTPRequest{Email: "jane@gmail.com", Code: "ABC123"})
	require.NoError(t, err)
	assert.Equal(t, "signed-token", token)
	assert.True(t, ident.EmailVerified)
	assert.Equal(t, "Jane Doe", ident.FullName)
	f.users.AssertExpectations(t)
	f.otps.AssertExpectations(t)
}

func TestVerifyOTP_AlreadyVerified_NoUpdate(t *testing.T) {
	f := newFixtures()
	f.users.On("GetByEmail", mock.Anything, "jane@gmail.com").Return(&domain.User{
		UserID: 7, Role: domain.RoleUser, Email: "jane@gmail.com", EmailVerified: true,
	}, nil)
	f.otps.On("GetByCode", mock.Anything, domain.RoleUser, int64(7), "ABC123").Return(&domain.OTP{
		Code:      "ABC123",
		Type:      domain.OTPTypeLogin,
		ExpiresAt: time.Now().Add(time.Minute).Unix(),
	}, nil)
	f.otps.On("Delete", mock.Anything, domain.RoleUser, int64(7), domain.OTPTypeLogin).Return(nil)
	f.signer.On("Sign", int64(7), domain.RoleUser).Return("tok", nil)

	_, _, err := f.service().VerifyOTP(context.Background(), domain.VerifyOTPRequest{Email: "jane@gmail.com", Code: "ABC123"})
	require.NoError(t, err)
	f.users.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

// P4: the consumed code is gone, so an identical replay fails.
func TestVerifyOTP_SingleUse(t *testing.T) {
	f := newFixtures()
	f.users.On("GetByEmail", mock.Anything, "jane@gmail.com").Return(&domain.User{
		UserID: 7, Role: domain.RoleUser, Email: "jane@gmail.com", EmailVerified: true,
	}, nil)
	live := &domain.OTP{Code: "ABC123", Type: domain.OTPTypeLogin, ExpiresAt: time.Now().Add(time.Minute).Unix()}
	f.otps.On("GetByCode", mock.Anything, domain.RoleUser, int64(7), "ABC123").Return(live, nil).Once()
	f.otps.On("Delete", mock.Anything, domain.RoleUser, int64(7), domain.OTPTypeLogin).Return(nil).Once()
	f.signer.On("Sign", int64(7), domain.RoleUser).Return("tok", nil).Once()
	// After consumption the store no longer has the code.
	f.otps.On("GetByCode", mock.Anything, domain.RoleUser, int64(7), "ABC123").Return(nil, domain.ErrNotFound)

	svc := f.service()
	req := domain.VerifyOTPRequest{Email: "jane@gmail.com", Code: "ABC123"}

	_, _, err := svc.VerifyOTP(context.Background(), req)
	require.NoError(t, err)

	_, _, err = svc.VerifyOTP(context.Background(), req)
	assertFlowCode(t, err, domain.CodeOTPInvalid, domain.ErrUnauthorized)
}

// --- ResendOTP ---

func TestResendOTP_MissingEmail(t *testing.T) {
	svc := newFixtures().service()
	_, _, err := svc.ResendOTP(context.Background(), "", "")
	assertFlowCode(t, err, domain.CodeMissingFields, domain.ErrBadRequest)
}

func TestResendOTP_UnknownType(t *testing.T) {
	svc := newFixtures().service()
	_, _, err := svc.ResendOTP(context.Background(), "jane@gmail.com", "totp")
	assertFlowCode(t, err, domain.CodeInvalidInput, domain.ErrBadRequest)
}

func TestResendOTP_UnknownEmailIsNotFound(t *testing.T) {
	f := newFixtures()
	f.users.On("GetByEmail", mock.Anything, "ghost@nowhere.com").Return(nil, domain.ErrNotFound)
	f.testers.On("GetByEmail", mock.Anything, "ghost@nowhere.com").Return(nil, domain.ErrNotFound)
	f.admins.On("GetByEmail", mock.Anything, "ghost@nowhere.com").Return(nil, domain.ErrNotFound)

	_, _, err := f.service().ResendOTP(context.Background(), "ghost@nowhere.com", "")
	assertFlowCode(t, err, domain.CodeUserNotFound, domain.ErrNotFound)
}

func TestResendOTP_DefaultsToSignupType(t *testing.T) {
	f := newFixtures()
	f.users.On("GetByEmail", mock.Anything, "jane@gmail.com").Return(&domain.User{UserID: 7, Role: domain.RoleUser, Email: "jane@gmail.com"}, nil)
	f.otps.On("Delete", mock.Anything, domain.RoleUser, int64(7), domain.OTPTypeSignup).Return(nil)
	f.otps.On("Put", mock.Anything, mock.MatchedBy(func(o *domain.OTP) bool {
		return o.Type == domain.OTPTypeSignup
	})).Return(nil)
	f.mailer.On("SendEmail", "jane@gmail.com", mock.Anything, mock.Anything).Return(nil)

	email, otpType, err := f.service().ResendOTP(context.Background(), "Jane@Gmail.com", "")
	require.NoError(t, err)
	assert.Equal(t, "jane@gmail.com", email)
	assert.Equal(t, domain.OTPTypeSignup, otpType)
	f.otps.AssertExpectations(t)
}

// The resend path finds admins through the plaintext email attribute.
func TestResendOTP_AdminPlaintextLookup(t *testing.T) {
	f := newFixtures()
	f.users.On("GetByEmail", mock.Anything, "root@bcbuzz.io").Return(nil, domain.ErrNotFound)
	f.testers.On("GetByEmail", mock.Anything, "root@bcbuzz.io").Return(nil, domain.ErrNotFound)
	f.admins.On("GetByEmail", mock.Anything, "root@bcbuzz.io").Return(&domain.Admin{AdminID: 1, Email: "root@bcbuzz.io"}, nil)
	f.otps.On("Delete", mock.Anything, domain.RoleAdmin, int64(1), domain.OTPTypeLogin).Return(nil)
	f.otps.On("Put", mock.Anything, mock.Anything).Return(nil)
	f.mailer.On("SendEmail", "root@bcbuzz.io", mock.Anything, mock.Anything).Return(nil)

	_, _, err := f.service().ResendOTP(context.Background(), "root@bcbuzz.io", domain.OTPTypeLogin)
	require.NoError(t, err)
}

// --- ForgotPassword ---

func TestForgotPassword_InvalidEmail(t *testing.T) {
	svc := newFixtures().service()
	err := svc.ForgotPassword(context.Background(), "not-an-email")
	assertFlowCode(t, err, domain.CodeInvalidEmail, domain.ErrBadRequest)
}

// P6 / Scenario E: an unknown email produces no error and no OTP write.
func TestForgotPassword_UnknownEmail_NothingObservable(t *testing.T) {
	f := newFixtures()
	f.users.On("GetByEmail", mock.Anything, "ghost@nowhere.com").Return(nil, domain.ErrNotFound)
	f.testers.On("GetByEmail", mock.Anything, "ghost@nowhere.com").Return(nil, domain.ErrNotFound)
	f.admins.On("GetByEmail", mock.Anything, "ghost@nowhere.com").Return(nil, domain.ErrNotFound)

	err := f.service().ForgotPassword(context.Background(), "ghost@nowhere.com")
	require.NoError(t, err)
	f.otps.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
	f.mailer.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything, mock.Anything)
}

func TestForgotPassword_KnownEmail_Issues15MinuteResetCode(t *testing.T) {
	f := newFixtures()
	f.users.On("GetByEmail", mock.Anything, "jane@gmail.com").Return(&domain.User{UserID: 7, Role: domain.RoleUser, Email: "jane@gmail.com"}, nil)
	f.otps.On("Delete", mock.Anything, domain.RoleUser, int64(7), domain.OTPTypePasswordReset).Return(nil)
	f.otps.On("Put", mock.Anything, mock.MatchedBy(func(o *domain.OTP) bool {
		slack := 5 * time.Second
		until := time.Until(time.Unix(o.ExpiresAt, 0))
		return o.Type == domain.OTPTypePasswordReset && until > 15*time.Minute-slack
	})).Return(nil)
	f.mailer.On("SendEmail", "jane@gmail.com", mock.Anything, mock.Anything).Return(nil)

	err := f.service().ForgotPassword(context.Background(), "jane@gmail.com")
	require.NoError(t, err)
	f.otps.AssertExpectations(t)
}

func TestForgotPassword_DispatchFailureStaysSilent(t *testing.T) {
	f := newFixtures()
	f.users.On("GetByEmail", mock.Anything, "jane@gmail.com").Return(&domain.User{UserID: 7, Role: domain.RoleUser, Email: "jane@gmail.com"}, nil)
	f.otps.On("Delete", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.otps.On("Put", mock.Anything, mock.Anything).Return(nil)
	f.mailer.On("SendEmail", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down"))

	err := f.service().ForgotPassword(context.Background(), "jane@gmail.com")
	require.NoError(t, err)
}

// --- ResetPassword ---

func TestResetPassword_Validation(t *testing.T) {
	svc := newFixtures().service()
	ctx := context.Background()

	err := svc.ResetPassword(ctx, domain.ResetPasswordRequest{Email: "a@b.com"})
	assertFlowCode(t, err, domain.CodeMissingFields, domain.ErrBadRequest)

	err = svc.ResetPassword(ctx, domain.ResetPasswordRequest{Email: "bad", Code: "ABC123", NewPassword: "secret2", ConfirmPassword: "secret2"})
	assertFlowCode(t, err, domain.CodeInvalidEmail, domain.ErrBadRequest)

	err = svc.ResetPassword(ctx, domain.ResetPasswordRequest{Email: "a@b.com", Code: "ABC123", NewPassword: "abc", ConfirmPassword: "abc"})
	assertFlowCode(t, err, domain.CodeInvalidPassword, domain.ErrBadRequest)

	err = svc.ResetPassword(ctx, domain.ResetPasswordRequest{Email: "a@b.com", Code: "ABC123", NewPassword: "secret2", ConfirmPassword: "secret3"})
	assertFlowCode(t, err, domain.CodeInvalidInput, domain.ErrBadRequest)
}

func TestResetPassword_InvalidCode(t *testing.T) {
	f := newFixtures()
	f.users.On("GetByEmail", mock.Anything, "jane@gmail.com").Return(&domain.User{UserID: 7, Role: domain.RoleUser}, nil)
	f.otps.On("GetByTypeAndCode", mock.Anything, domain.RoleUser, int64(7), domain.OTPTypePasswordReset, "ABC123").
		Return(nil, domain.ErrNotFound)

	err := f.service().ResetPassword(context.Background(), domain.ResetPasswordRequest{
		Email: "jane@gmail.com", Code: "ABC123", NewPassword: "secret2", ConfirmPassword: "secret2",
	})
	assertFlowCode(t, err, domain.CodeOTPInvalid, domain.ErrUnauthorized)
}

// P5: the stored credential is replaced with a hash that validates the new
// password and rejects the old one.
func TestResetPassword_User_RotatesHash(t *testing.T) {
	f := newFixtures()
	f.users.On("GetByEmail", mock.Anything, "jane@gmail.com").Return(&domain.User{UserID: 7, Role: domain.RoleUser, Email: "jane@gmail.com"}, nil)
	f.otps.On("GetByTypeAndCode", mock.Anything, domain.RoleUser, int64(7), domain.OTPTypePasswordReset, "ABC123").
		Return(&domain.OTP{Code: "ABC123", Type: domain.OTPTypePasswordReset, ExpiresAt: time.Now().Add(10 * time.Minute).Unix()}, nil)
	f.users.On("Update", mock.Anything, int64(7), mock.MatchedBy(func(m map[string]interface{}) bool {
		hash, ok := m[fieldPasswordHash].(string)
		if !ok {
			return false
		}
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte("newsecret")) == nil &&
			bcrypt.CompareHashAndPassword([]byte(hash), []byte("oldsecret")) != nil
	})).Return(nil)
	f.otps.On("Delete", mock.Anything, domain.RoleUser, int64(7), domain.OTPTypePasswordReset).Return(nil)

	err := f.service().ResetPassword(context.Background(), domain.ResetPasswordRequest{
		Email: "jane@gmail.com", Code: "ABC123", NewPassword: "newsecret", ConfirmPassword: "newsecret",
	})
	require.NoError(t, err)
	f.users.AssertExpectations(t)
	f.otps.AssertExpectations(t)
}

// Testers and admins get the role-appropriate credential field.
func TestResetPassword_Tester_UsesHashedPasswordField(t *testing.T) {
	f := newFixtures()
	f.users.On("GetByEmail", mock.Anything, "t@bcbuzz.io").Return(nil, domain.ErrNotFound)
	f.testers.On("GetByEmail", mock.Anything, "t@bcbuzz.io").Return(&domain.Tester{TesterID: 3, Email: "t@bcbuzz.io"}, nil)
	f.otps.On("GetByTypeAndCode", mock.Anything, domain.RoleTester, int64(3), domain.OTPTypePasswordReset, "ABC123").
		Return(&domain.OTP{Code: "ABC123", ExpiresAt: time.Now().Add(time.Minute).Unix()}, nil)
	f.testers.On("Update", mock.Anything, int64(3), mock.MatchedBy(func(m map[string]interface{}) bool {
		_, ok := m[fieldHashedPassword]
		return ok
	})).Return(nil)
	f.otps.On("Delete", mock.Anything, domain.RoleTester, int64(3), domain.OTPTypePasswordReset).Return(nil)

	err := f.service().ResetPassword(context.Background(), domain.ResetPasswordRequest{
		Email: "t@bcbuzz.io", Code: "ABC123", NewPassword: "newsecret", ConfirmPassword: "newsecret",
	})
	require.NoError(t, err)
	f.testers.AssertExpectations(t)
}

// --- FindIdentity ---

func TestFindIdentity_NormalizesClientAlias(t *testing.T) {
	f := newFixtures()
	f.users.On("Get", mock.Anything, int64(7)).Return(&domain.User{UserID: 7, Role: domain.RoleClient, Email: "jane@gmail.com"}, nil)

	ident, err := f.service().FindIdentity(context.Background(), domain.RoleClient, 7)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, ident.Role)
}

func TestFindIdentity_AdminIsPreVerified(t *testing.T) {
	f := newFixtures()
	f.admins.On("Get", mock.Anything, int64(1)).Return(&domain.Admin{AdminID: 1, Email: "root@bcbuzz.io"}, nil)

	ident, err := f.service().FindIdentity(context.Background(), domain.RoleAdmin, 1)
	require.NoError(t, err)
	assert.True(t, ident.EmailVerified)
	assert.Equal(t, "Administrator", ident.FullName)
}

func TestFindIdentity_UnknownRole(t *testing.T) {
	svc := newFixtures().service()
	_, err := svc.FindIdentity(context.Background(), "superuser", 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}
