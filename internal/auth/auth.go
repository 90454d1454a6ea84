package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/laviou/backend/internal/db"
	"github.com/laviou/backend/internal/email"
	"github.com/laviou/backend/internal/logger"
	"golang.org/x/crypto/bcrypt"
)

const (
	AccessTokenExpiry  = 1 * time.Hour
	RefreshTokenExpiry = 30 * 24 * time.Hour
	OTPExpiry          = 10 * time.Minute
	ResetTokenExpiry   = 15 * time.Minute
	BcryptCost         = 10

	tokenIssuer     = "laviou"
	resetTokenBytes = 32

	// Recovery abuse limits, counted per email in a shared window.
	otpRequestLimit = 5
	otpVerifyLimit  = 10
	loginLimit      = 10
	limitWindow     = 15 * time.Minute
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrInvalidCode        = errors.New("invalid or expired code")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
	ErrRateLimited        = errors.New("rate limit exceeded")
)

// Claims carries the identity baked into both token kinds. The user ID rides
// in the registered subject claim.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn"`
}

// UserInfo is the public user projection; the password hash never leaves
// this package.
type UserInfo struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type RegisterResult struct {
	User   *UserInfo  `json:"user"`
	Tokens *TokenPair `json:"tokens"`
}

type RegisterInput struct {
	Email           string
	Password        string
	ConfirmPassword string
	FirstName       string
	LastName        string
}

// UserStore is the slice of the user repository the auth core needs.
type UserStore interface {
	Create(ctx context.Context, user *db.User) error
	GetByEmail(ctx context.Context, email string) (*db.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*db.User, error)
	SetRefreshToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error
	ClearRefreshToken(ctx context.Context, userID uuid.UUID) error
}

// ResetStore persists password recovery attempts.
type ResetStore interface {
	Create(ctx context.Context, req *db.PasswordResetRequest) error
	LatestPending(ctx context.Context, userID uuid.UUID, now time.Time) (*db.PasswordResetRequest, error)
	MarkVerified(ctx context.Context, id uuid.UUID, verifiedAt time.Time, resetTokenHash string, resetTokenExpiresAt time.Time) error
	GetVerifiedByTokenHash(ctx context.Context, tokenHash string, now time.Time) (*db.PasswordResetRequest, error)
	Consume(ctx context.Context, requestID, userID uuid.UUID, newPasswordHash string, usedAt time.Time) error
}

// Limiter throttles abuse-prone operations. A nil Limiter disables limiting.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Reset(ctx context.Context, key string) error
}

type Service struct {
	users         UserStore
	resets        ResetStore
	notifier      email.Notifier
	limiter       Limiter
	accessSecret  []byte
	refreshSecret []byte
	log           *logger.Logger

	now func() time.Time
}

func NewService(users UserStore, resets ResetStore, notifier email.Notifier, limiter Limiter, accessSecret, refreshSecret string) *Service {
	return &Service{
		users:         users,
		resets:        resets,
		notifier:      notifier,
		limiter:       limiter,
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		log:           logger.Default().WithComponent("auth"),
		now:           time.Now,
	}
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	if in.Password != in.ConfirmPassword {
		return nil, ErrPasswordMismatch
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(in.Password), BcryptCost)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &db.User{
		ID:           uuid.New(),
		Email:        in.Email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PasswordHash: string(passwordHash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	return &RegisterResult{
		User:   toUserInfo(user),
		Tokens: tokens,
	}, nil
}

func (s *Service) Login(ctx context.Context, emailAddr, password string) (*TokenPair, error) {
	if !s.allow(ctx, "login:"+emailAddr, loginLimit, limitWindow) {
		return nil, ErrRateLimited
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			// Same error as a wrong password; do not reveal which part failed.
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, "login:"+emailAddr); err != nil {
			s.log.Warn(ctx, "failed to reset login counter", map[string]interface{}{"error": err.Error()})
		}
	}

	return s.issueTokens(ctx, user)
}

// Refresh rotates the token pair. A refresh token is single-use: the stored
// hash is overwritten by the new pair, so presenting the old one again fails.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.parseToken(refreshToken, s.refreshSecret)
	if err != nil {
		return nil, err
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	if !user.RefreshTokenHash.Valid {
		return nil, ErrInvalidToken
	}
	if !user.RefreshTokenExpiresAt.Valid || s.now().After(user.RefreshTokenExpiresAt.Time) {
		return nil, ErrTokenExpired
	}

	presented := hashToken(refreshToken)
	if subtle.ConstantTimeCompare([]byte(presented), []byte(user.RefreshTokenHash.String)) != 1 {
		return nil, ErrInvalidToken
	}

	return s.issueTokens(ctx, user)
}

// Logout revokes the stored refresh token. Outstanding access tokens stay
// valid until natural expiry; logout only blocks refresh.
func (s *Service) Logout(ctx context.Context, userID uuid.UUID) error {
	return s.users.ClearRefreshToken(ctx, userID)
}

func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*UserInfo, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toUserInfo(user), nil
}

// ForgotPassword starts a recovery attempt. The caller gets the same
// acknowledgement whether or not the email exists, so the endpoint cannot be
// used to enumerate accounts. Old pending requests stay untouched; the newest
// one wins at verification time.
func (s *Service) ForgotPassword(ctx context.Context, emailAddr string) error {
	if !s.allow(ctx, "otp:request:"+emailAddr, otpRequestLimit, limitWindow) {
		return ErrRateLimited
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			s.log.Debug(ctx, "password reset requested for unknown email")
			return nil
		}
		return err
	}

	otp, err := generateOTP()
	if err != nil {
		return err
	}

	otpHash, err := bcrypt.GenerateFromPassword([]byte(otp), BcryptCost)
	if err != nil {
		return err
	}

	now := s.now()
	req := &db.PasswordResetRequest{
		ID:           uuid.New(),
		UserID:       user.ID,
		OTPHash:      string(otpHash),
		OTPExpiresAt: now.Add(OTPExpiry),
		CreatedAt:    now,
	}
	if err := s.resets.Create(ctx, req); err != nil {
		return err
	}

	return s.notifier.SendPasswordResetOTP(ctx, user.Email, otp)
}

// VerifyResetOTP confirms the emailed code and returns the reset token. The
// plaintext token is returned exactly once; only its hash is stored.
func (s *Service) VerifyResetOTP(ctx context.Context, emailAddr, otp string) (string, error) {
	if !s.allow(ctx, "otp:verify:"+emailAddr, otpVerifyLimit, limitWindow) {
		return "", ErrRateLimited
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			// Indistinguishable from a wrong code.
			return "", ErrInvalidCode
		}
		return "", err
	}

	now := s.now()
	req, err := s.resets.LatestPending(ctx, user.ID, now)
	if err != nil {
		if errors.Is(err, db.ErrResetRequestNotFound) {
			return "", ErrInvalidCode
		}
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(req.OTPHash), []byte(otp)); err != nil {
		return "", ErrInvalidCode
	}

	resetToken, err := generateResetToken()
	if err != nil {
		return "", err
	}

	if err := s.resets.MarkVerified(ctx, req.ID, now, hashToken(resetToken), now.Add(ResetTokenExpiry)); err != nil {
		return "", err
	}

	return resetToken, nil
}

// ResetPassword consumes a verified reset token. The password change, refresh
// token revocation, and used stamp are applied atomically by the store.
func (s *Service) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	now := s.now()
	req, err := s.resets.GetVerifiedByTokenHash(ctx, hashToken(resetToken), now)
	if err != nil {
		if errors.Is(err, db.ErrResetRequestNotFound) {
			return ErrInvalidResetToken
		}
		return err
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), BcryptCost)
	if err != nil {
		return err
	}

	return s.resets.Consume(ctx, req.ID, req.UserID, string(passwordHash), now)
}

// ValidateAccessToken verifies the bearer token presented on protected routes.
func (s *Service) ValidateAccessToken(tokenString string) (*Claims, error) {
	return s.parseToken(tokenString, s.accessSecret)
}

func (s *Service) issueTokens(ctx context.Context, user *db.User) (*TokenPair, error) {
	now := s.now()

	accessToken, err := s.signToken(user, now, AccessTokenExpiry, s.accessSecret)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.signToken(user, now, RefreshTokenExpiry, s.refreshSecret)
	if err != nil {
		return nil, err
	}

	// Persisting the hash is what makes logout and rotation effective; the
	// signature alone cannot be revoked.
	if err := s.users.SetRefreshToken(ctx, user.ID, hashToken(refreshToken), now.Add(RefreshTokenExpiry)); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(AccessTokenExpiry.Seconds()),
	}, nil
}

func (s *Service) signToken(user *db.User, now time.Time, expiry time.Duration, secret []byte) (string, error) {
	claims := &Claims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func (s *Service) parseToken(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return secret, nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// allow consults the limiter, failing open when it is absent or unreachable:
// a degraded Redis must not lock everyone out.
func (s *Service) allow(ctx context.Context, key string, limit int, window time.Duration) bool {
	if s.limiter == nil {
		return true
	}
	ok, err := s.limiter.Allow(ctx, key, limit, window)
	if err != nil {
		s.log.Warn(ctx, "rate limiter unavailable", map[string]interface{}{"error": err.Error()})
		return true
	}
	return ok
}

func toUserInfo(user *db.User) *UserInfo {
	return &UserInfo{
		ID:        user.ID.String(),
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	}
}

func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func generateResetToken() (string, error) {
	b := make([]byte, resetTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
