package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/laviou/backend/internal/db"
)

// fakeUserStore keeps users in memory with the same semantics as the SQL
// repository, including the unique email constraint.
type fakeUserStore struct {
	users map[uuid.UUID]*db.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[uuid.UUID]*db.User)}
}

func (f *fakeUserStore) Create(ctx context.Context, user *db.User) error {
	for _, u := range f.users {
		if u.Email == user.Email {
			return db.ErrEmailExists
		}
	}
	copied := *user
	f.users[user.ID] = &copied
	return nil
}

func (f *fakeUserStore) GetByEmail(ctx context.Context, email string) (*db.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, db.ErrUserNotFound
}

func (f *fakeUserStore) GetByID(ctx context.Context, id uuid.UUID) (*db.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, db.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserStore) SetRefreshToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	u, ok := f.users[userID]
	if !ok {
		return db.ErrUserNotFound
	}
	u.RefreshTokenHash.String = tokenHash
	u.RefreshTokenHash.Valid = true
	u.RefreshTokenExpiresAt.Time = expiresAt
	u.RefreshTokenExpiresAt.Valid = true
	return nil
}

func (f *fakeUserStore) ClearRefreshToken(ctx context.Context, userID uuid.UUID) error {
	u, ok := f.users[userID]
	if !ok {
		return db.ErrUserNotFound
	}
	u.RefreshTokenHash.String = ""
	u.RefreshTokenHash.Valid = false
	u.RefreshTokenExpiresAt.Valid = false
	return nil
}

// fakeResetStore mirrors the append-only reset request table. It holds the
// user store so Consume can apply the same triple update the SQL transaction
// does.
type fakeResetStore struct {
	users *fakeUserStore
	rows  []*db.PasswordResetRequest
}

func (f *fakeResetStore) Create(ctx context.Context, req *db.PasswordResetRequest) error {
	copied := *req
	f.rows = append(f.rows, &copied)
	return nil
}

func (f *fakeResetStore) LatestPending(ctx context.Context, userID uuid.UUID, now time.Time) (*db.PasswordResetRequest, error) {
	var latest *db.PasswordResetRequest
	for _, row := range f.rows {
		if row.UserID != userID || row.VerifiedAt.Valid || row.UsedAt.Valid {
			continue
		}
		if !row.OTPExpiresAt.After(now) {
			continue
		}
		if latest == nil || row.CreatedAt.After(latest.CreatedAt) {
			latest = row
		}
	}
	if latest == nil {
		return nil, db.ErrResetRequestNotFound
	}
	copied := *latest
	return &copied, nil
}

func (f *fakeResetStore) MarkVerified(ctx context.Context, id uuid.UUID, verifiedAt time.Time, resetTokenHash string, resetTokenExpiresAt time.Time) error {
	for _, row := range f.rows {
		if row.ID == id {
			row.VerifiedAt.Time = verifiedAt
			row.VerifiedAt.Valid = true
			row.ResetTokenHash.String = resetTokenHash
			row.ResetTokenHash.Valid = true
			row.ResetTokenExpiresAt.Time = resetTokenExpiresAt
			row.ResetTokenExpiresAt.Valid = true
			return nil
		}
	}
	return db.ErrResetRequestNotFound
}

func (f *fakeResetStore) GetVerifiedByTokenHash(ctx context.Context, tokenHash string, now time.Time) (*db.PasswordResetRequest, error) {
	for _, row := range f.rows {
		if !row.VerifiedAt.Valid || row.UsedAt.Valid {
			continue
		}
		if !row.ResetTokenHash.Valid || row.ResetTokenHash.String != tokenHash {
			continue
		}
		if !row.ResetTokenExpiresAt.Valid || !row.ResetTokenExpiresAt.Time.After(now) {
			continue
		}
		copied := *row
		return &copied, nil
	}
	return nil, db.ErrResetRequestNotFound
}

func (f *fakeResetStore) Consume(ctx context.Context, requestID, userID uuid.UUID, newPasswordHash string, usedAt time.Time) error {
	for _, row := range f.rows {
		if row.ID == requestID {
			row.UsedAt.Time = usedAt
			row.UsedAt.Valid = true
			u, ok := f.users.users[userID]
			if !ok {
				return db.ErrUserNotFound
			}
			u.PasswordHash = newPasswordHash
			u.RefreshTokenHash.Valid = false
			u.RefreshTokenExpiresAt.Valid = false
			return nil
		}
	}
	return db.ErrResetRequestNotFound
}

type fakeNotifier struct {
	sentTo  []string
	lastOTP string
}

func (f *fakeNotifier) SendPasswordResetOTP(ctx context.Context, to, otp string) error {
	f.sentTo = append(f.sentTo, to)
	f.lastOTP = otp
	return nil
}

type fakeLimiter struct {
	denyAll bool
	resets  []string
}

func (f *fakeLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return !f.denyAll, nil
}

func (f *fakeLimiter) Reset(ctx context.Context, key string) error {
	f.resets = append(f.resets, key)
	return nil
}

type testEnv struct {
	service  *Service
	users    *fakeUserStore
	resets   *fakeResetStore
	notifier *fakeNotifier
	limiter  *fakeLimiter
}

func newTestEnv() *testEnv {
	users := newFakeUserStore()
	resets := &fakeResetStore{users: users}
	notifier := &fakeNotifier{}
	limiter := &fakeLimiter{}
	service := NewService(users, resets, notifier, limiter, "test-access-secret-0123", "test-refresh-secret-4567")
	return &testEnv{
		service:  service,
		users:    users,
		resets:   resets,
		notifier: notifier,
		limiter:  limiter,
	}
}

func register(t *testing.T, env *testEnv, email, password string) *RegisterResult {
	t.Helper()
	result, err := env.service.Register(context.Background(), RegisterInput{
		Email:           email,
		Password:        password,
		ConfirmPassword: password,
		FirstName:       "Ada",
		LastName:        "Lovelace",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return result
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	result := register(t, env, "ada@example.com", "hunter22")
	if result.User.Email != "ada@example.com" || result.User.FirstName != "Ada" {
		t.Errorf("unexpected user info: %+v", result.User)
	}
	if result.Tokens.AccessToken == "" || result.Tokens.RefreshToken == "" {
		t.Fatal("expected token pair on registration")
	}
	if result.Tokens.AccessToken == result.Tokens.RefreshToken {
		t.Error("access and refresh tokens must differ")
	}

	tokens, err := env.service.Login(ctx, "ada@example.com", "hunter22")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if tokens.ExpiresIn != int(AccessTokenExpiry.Seconds()) {
		t.Errorf("ExpiresIn = %d, want %d", tokens.ExpiresIn, int(AccessTokenExpiry.Seconds()))
	}

	if _, err := env.service.Login(ctx, "ada@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: got %v, want ErrInvalidCredentials", err)
	}
	if _, err := env.service.Login(ctx, "nobody@example.com", "hunter22"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown email: got %v, want ErrInvalidCredentials", err)
	}
}

func TestRegister_PasswordMismatch(t *testing.T) {
	env := newTestEnv()
	_, err := env.service.Register(context.Background(), RegisterInput{
		Email:           "ada@example.com",
		Password:        "hunter22",
		ConfirmPassword: "hunter23",
		FirstName:       "Ada",
		LastName:        "Lovelace",
	})
	if !errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("got %v, want ErrPasswordMismatch", err)
	}
	if len(env.users.users) != 0 {
		t.Error("no user should be created on mismatch")
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	env := newTestEnv()
	register(t, env, "ada@example.com", "hunter22")

	_, err := env.service.Register(context.Background(), RegisterInput{
		Email:           "ada@example.com",
		Password:        "other-password",
		ConfirmPassword: "other-password",
		FirstName:       "Another",
		LastName:        "Ada",
	})
	if !errors.Is(err, db.ErrEmailExists) {
		t.Errorf("got %v, want ErrEmailExists", err)
	}
}

func TestRefresh_Rotation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	result := register(t, env, "ada@example.com", "hunter22")
	oldRefresh := result.Tokens.RefreshToken

	rotated, err := env.service.Refresh(ctx, oldRefresh)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if rotated.RefreshToken == oldRefresh {
		t.Fatal("refresh must rotate the refresh token")
	}

	// The old token's hash was overwritten; presenting it again must fail.
	if _, err := env.service.Refresh(ctx, oldRefresh); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("replayed refresh token: got %v, want ErrInvalidToken", err)
	}

	// The rotated token is still good.
	if _, err := env.service.Refresh(ctx, rotated.RefreshToken); err != nil {
		t.Errorf("rotated token should refresh: %v", err)
	}
}

func TestRefresh_RejectsAccessToken(t *testing.T) {
	env := newTestEnv()
	result := register(t, env, "ada@example.com", "hunter22")

	// Access tokens are signed with a different secret and must not pass as
	// refresh tokens.
	if _, err := env.service.Refresh(context.Background(), result.Tokens.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("got %v, want ErrInvalidToken", err)
	}
}

func TestLogout_BlocksRefresh(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	result := register(t, env, "ada@example.com", "hunter22")

	user, err := env.users.GetByEmail(ctx, "ada@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if err := env.service.Logout(ctx, user.ID); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	if _, err := env.service.Refresh(ctx, result.Tokens.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("refresh after logout: got %v, want ErrInvalidToken", err)
	}
}

func TestValidateAccessToken(t *testing.T) {
	env := newTestEnv()
	result := register(t, env, "ada@example.com", "hunter22")

	claims, err := env.service.ValidateAccessToken(result.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccessToken failed: %v", err)
	}
	if claims.Subject != result.User.ID || claims.Email != "ada@example.com" {
		t.Errorf("unexpected claims: %+v", claims)
	}

	if _, err := env.service.ValidateAccessToken("not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("garbage token: got %v, want ErrInvalidToken", err)
	}
}

func TestValidateAccessToken_Expired(t *testing.T) {
	env := newTestEnv()
	issued := time.Now()
	env.service.now = func() time.Time { return issued }
	result := register(t, env, "ada@example.com", "hunter22")

	env.service.now = func() time.Time { return issued.Add(AccessTokenExpiry + time.Minute) }
	if _, err := env.service.ValidateAccessToken(result.Tokens.AccessToken); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("got %v, want ErrTokenExpired", err)
	}
}

func TestForgotPassword_UnknownEmail(t *testing.T) {
	env := newTestEnv()

	// Unknown email is acknowledged silently so the endpoint cannot be used
	// to enumerate accounts.
	if err := env.service.ForgotPassword(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("expected silent ack, got %v", err)
	}
	if len(env.notifier.sentTo) != 0 {
		t.Error("no email should be sent for an unknown address")
	}
	if len(env.resets.rows) != 0 {
		t.Error("no reset request should be recorded for an unknown address")
	}
}

func TestPasswordResetFlow(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	result := register(t, env, "ada@example.com", "hunter22")

	if err := env.service.ForgotPassword(ctx, "ada@example.com"); err != nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}
	if len(env.notifier.sentTo) != 1 || env.notifier.sentTo[0] != "ada@example.com" {
		t.Fatalf("expected one OTP email, got %v", env.notifier.sentTo)
	}
	otp := env.notifier.lastOTP
	if len(otp) != 6 {
		t.Fatalf("OTP should be 6 digits, got %q", otp)
	}

	if _, err := env.service.VerifyResetOTP(ctx, "ada@example.com", "000000"); !errors.Is(err, ErrInvalidCode) {
		// One-in-a-million collision with the real code; regenerate if flaky.
		if otp != "000000" {
			t.Errorf("wrong code: got %v, want ErrInvalidCode", err)
		}
	}

	resetToken, err := env.service.VerifyResetOTP(ctx, "ada@example.com", otp)
	if err != nil {
		t.Fatalf("VerifyResetOTP failed: %v", err)
	}
	if len(resetToken) != 64 {
		t.Errorf("reset token should be 64 hex chars, got %d", len(resetToken))
	}

	if err := env.service.ResetPassword(ctx, resetToken, "new-password-9"); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}

	if _, err := env.service.Login(ctx, "ada@example.com", "hunter22"); !errors.Is(err, ErrInvalidCredentials) {
		t.Error("old password should no longer work")
	}
	if _, err := env.service.Login(ctx, "ada@example.com", "new-password-9"); err != nil {
		t.Errorf("new password should work: %v", err)
	}

	// Resetting also revokes the stored refresh token.
	if _, err := env.service.Refresh(ctx, result.Tokens.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("refresh after reset: got %v, want ErrInvalidToken", err)
	}

	// The reset token is single-use.
	if err := env.service.ResetPassword(ctx, resetToken, "yet-another-pass"); !errors.Is(err, ErrInvalidResetToken) {
		t.Errorf("reused reset token: got %v, want ErrInvalidResetToken", err)
	}
	if _, err := env.service.Login(ctx, "ada@example.com", "yet-another-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Error("failed reuse must not change the password")
	}
}

func TestVerifyResetOTP_Expired(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	register(t, env, "ada@example.com", "hunter22")

	issued := time.Now()
	env.service.now = func() time.Time { return issued }
	if err := env.service.ForgotPassword(ctx, "ada@example.com"); err != nil {
		t.Fatal(err)
	}
	otp := env.notifier.lastOTP

	env.service.now = func() time.Time { return issued.Add(OTPExpiry + time.Minute) }
	if _, err := env.service.VerifyResetOTP(ctx, "ada@example.com", otp); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("expired OTP: got %v, want ErrInvalidCode", err)
	}
}

func TestVerifyResetOTP_NewestPendingWins(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	register(t, env, "ada@example.com", "hunter22")

	base := time.Now()
	env.service.now = func() time.Time { return base }
	if err := env.service.ForgotPassword(ctx, "ada@example.com"); err != nil {
		t.Fatal(err)
	}
	firstOTP := env.notifier.lastOTP

	env.service.now = func() time.Time { return base.Add(time.Minute) }
	if err := env.service.ForgotPassword(ctx, "ada@example.com"); err != nil {
		t.Fatal(err)
	}
	secondOTP := env.notifier.lastOTP

	if firstOTP == secondOTP {
		t.Skip("generated identical codes, cannot distinguish attempts")
	}

	// Only the most recent pending request is considered.
	if _, err := env.service.VerifyResetOTP(ctx, "ada@example.com", firstOTP); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("superseded OTP: got %v, want ErrInvalidCode", err)
	}
	if _, err := env.service.VerifyResetOTP(ctx, "ada@example.com", secondOTP); err != nil {
		t.Errorf("latest OTP should verify: %v", err)
	}
}

func TestVerifyResetOTP_UnknownEmail(t *testing.T) {
	env := newTestEnv()
	if _, err := env.service.VerifyResetOTP(context.Background(), "nobody@example.com", "123456"); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("got %v, want ErrInvalidCode", err)
	}
}

func TestResetPassword_UnknownToken(t *testing.T) {
	env := newTestEnv()
	err := env.service.ResetPassword(context.Background(), "deadbeef", "whatever-pass")
	if !errors.Is(err, ErrInvalidResetToken) {
		t.Errorf("got %v, want ErrInvalidResetToken", err)
	}
}

func TestRateLimiting(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	register(t, env, "ada@example.com", "hunter22")
	env.limiter.denyAll = true

	if _, err := env.service.Login(ctx, "ada@example.com", "hunter22"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("login: got %v, want ErrRateLimited", err)
	}
	if err := env.service.ForgotPassword(ctx, "ada@example.com"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("forgot password: got %v, want ErrRateLimited", err)
	}
	if _, err := env.service.VerifyResetOTP(ctx, "ada@example.com", "123456"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("verify OTP: got %v, want ErrRateLimited", err)
	}
}

func TestLogin_ResetsLimiterOnSuccess(t *testing.T) {
	env := newTestEnv()
	register(t, env, "ada@example.com", "hunter22")

	env.limiter.resets = nil
	if _, err := env.service.Login(context.Background(), "ada@example.com", "hunter22"); err != nil {
		t.Fatal(err)
	}
	if len(env.limiter.resets) != 1 || env.limiter.resets[0] != "login:ada@example.com" {
		t.Errorf("expected login counter reset, got %v", env.limiter.resets)
	}
}

func TestNilLimiterAllowsEverything(t *testing.T) {
	users := newFakeUserStore()
	resets := &fakeResetStore{users: users}
	service := NewService(users, resets, &fakeNotifier{}, nil, "test-access-secret-0123", "test-refresh-secret-4567")

	_, err := service.Register(context.Background(), RegisterInput{
		Email:           "ada@example.com",
		Password:        "hunter22",
		ConfirmPassword: "hunter22",
		FirstName:       "Ada",
		LastName:        "Lovelace",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := service.Login(context.Background(), "ada@example.com", "hunter22"); err != nil {
		t.Errorf("login with nil limiter: %v", err)
	}
}
