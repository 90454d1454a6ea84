package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrResetRequestNotFound = errors.New("password reset request not found")

// PasswordResetRequest is one recovery attempt. Rows are append-only: they
// are stamped (verified_at, used_at) but never deleted, leaving an audit
// trail of every attempt.
type PasswordResetRequest struct {
	ID                  uuid.UUID
	UserID              uuid.UUID
	OTPHash             string
	OTPExpiresAt        time.Time
	VerifiedAt          sql.NullTime
	ResetTokenHash      sql.NullString
	ResetTokenExpiresAt sql.NullTime
	UsedAt              sql.NullTime
	CreatedAt           time.Time
}

type ResetRepository struct {
	db *DB
}

func NewResetRepository(db *DB) *ResetRepository {
	return &ResetRepository{db: db}
}

func (r *ResetRepository) Create(ctx context.Context, req *PasswordResetRequest) error {
	query := `
		INSERT INTO password_reset_requests (id, user_id, otp_hash, otp_expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query,
		req.ID, req.UserID, req.OTPHash, req.OTPExpiresAt, req.CreatedAt,
	)
	return err
}

// LatestPending returns the newest request for the user that is still
// pending: unverified, unused, and with an unexpired OTP. Multiple pending
// requests may coexist; the newest one wins.
func (r *ResetRepository) LatestPending(ctx context.Context, userID uuid.UUID, now time.Time) (*PasswordResetRequest, error) {
	query := `
		SELECT id, user_id, otp_hash, otp_expires_at, verified_at,
		       reset_token_hash, reset_token_expires_at, used_at, created_at
		FROM password_reset_requests
		WHERE user_id = $1
		  AND verified_at IS NULL
		  AND used_at IS NULL
		  AND otp_expires_at > $2
		ORDER BY created_at DESC
		LIMIT 1
	`

	return r.scanOne(r.db.QueryRowContext(ctx, query, userID, now))
}

// MarkVerified transitions a pending request to verified, recording the
// hashed reset token and its expiry.
func (r *ResetRepository) MarkVerified(ctx context.Context, id uuid.UUID, verifiedAt time.Time, resetTokenHash string, resetTokenExpiresAt time.Time) error {
	query := `
		UPDATE password_reset_requests
		SET verified_at = $2, reset_token_hash = $3, reset_token_expires_at = $4
		WHERE id = $1 AND verified_at IS NULL AND used_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, id, verifiedAt, resetTokenHash, resetTokenExpiresAt)
	if err != nil {
		return err
	}
	return requireRowAffected(result, ErrResetRequestNotFound)
}

// GetVerifiedByTokenHash returns the newest request matching the reset token
// hash that is verified, unused, and unexpired.
func (r *ResetRepository) GetVerifiedByTokenHash(ctx context.Context, tokenHash string, now time.Time) (*PasswordResetRequest, error) {
	query := `
		SELECT id, user_id, otp_hash, otp_expires_at, verified_at,
		       reset_token_hash, reset_token_expires_at, used_at, created_at
		FROM password_reset_requests
		WHERE reset_token_hash = $1
		  AND verified_at IS NOT NULL
		  AND used_at IS NULL
		  AND reset_token_expires_at > $2
		ORDER BY created_at DESC
		LIMIT 1
	`

	return r.scanOne(r.db.QueryRowContext(ctx, query, tokenHash, now))
}

// Consume atomically applies a successful password reset: the user's
// password hash is replaced, their refresh token is revoked (forcing
// re-login everywhere), and the request is stamped used. Partial application
// would let a reset token be replayed, so all three run in one transaction.
func (r *ResetRepository) Consume(ctx context.Context, requestID, userID uuid.UUID, newPasswordHash string, usedAt time.Time) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE users
			SET password_hash = $2, refresh_token_hash = NULL, refresh_token_expires_at = NULL, updated_at = NOW()
			WHERE id = $1
		`, userID, newPasswordHash)
		if err != nil {
			return err
		}
		if err := requireRowAffected(result, ErrUserNotFound); err != nil {
			return err
		}

		result, err = tx.ExecContext(ctx, `
			UPDATE password_reset_requests
			SET used_at = $2
			WHERE id = $1 AND used_at IS NULL
		`, requestID, usedAt)
		if err != nil {
			return err
		}
		return requireRowAffected(result, ErrResetRequestNotFound)
	})
}

func (r *ResetRepository) scanOne(row *sql.Row) (*PasswordResetRequest, error) {
	req := &PasswordResetRequest{}
	err := row.Scan(
		&req.ID, &req.UserID, &req.OTPHash, &req.OTPExpiresAt, &req.VerifiedAt,
		&req.ResetTokenHash, &req.ResetTokenExpiresAt, &req.UsedAt, &req.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrResetRequestNotFound
		}
		return nil, err
	}

	return req, nil
}
