package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

var ErrSharingNotFound = errors.New("sharing settings not found")

// Sharing visibilities
const (
	VisibilityPrivate = "private"
	VisibilityFriends = "friends"
	VisibilityPublic  = "public"
)

type SharingSettings struct {
	ID               uuid.UUID
	ItemID           uuid.UUID
	Visibility       string
	SharedWithEmails []string
	AllowComments    bool
	ExpiresAt        sql.NullTime
	UpdatedAt        time.Time
}

type SharingRepository struct {
	db *DB
}

func NewSharingRepository(db *DB) *SharingRepository {
	return &SharingRepository{db: db}
}

func (r *SharingRepository) GetByItem(ctx context.Context, itemID uuid.UUID) (*SharingSettings, error) {
	query := `
		SELECT id, item_id, visibility, shared_with_emails, allow_comments, expires_at, updated_at
		FROM item_sharing_settings
		WHERE item_id = $1
	`

	s := &SharingSettings{}
	err := r.db.QueryRowContext(ctx, query, itemID).Scan(
		&s.ID, &s.ItemID, &s.Visibility, pq.Array(&s.SharedWithEmails),
		&s.AllowComments, &s.ExpiresAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSharingNotFound
		}
		return nil, err
	}
	return s, nil
}

// Upsert creates the settings row on first write and replaces it afterwards;
// one row per item.
func (r *SharingRepository) Upsert(ctx context.Context, s *SharingSettings) (*SharingSettings, error) {
	query := `
		INSERT INTO item_sharing_settings (id, item_id, visibility, shared_with_emails, allow_comments, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (item_id) DO UPDATE
		SET visibility = EXCLUDED.visibility,
		    shared_with_emails = EXCLUDED.shared_with_emails,
		    allow_comments = EXCLUDED.allow_comments,
		    expires_at = EXCLUDED.expires_at,
		    updated_at = NOW()
		RETURNING id, item_id, visibility, shared_with_emails, allow_comments, expires_at, updated_at
	`

	out := &SharingSettings{}
	err := r.db.QueryRowContext(ctx, query,
		s.ID, s.ItemID, s.Visibility, pq.Array(s.SharedWithEmails), s.AllowComments, s.ExpiresAt,
	).Scan(
		&out.ID, &out.ItemID, &out.Visibility, pq.Array(&out.SharedWithEmails),
		&out.AllowComments, &out.ExpiresAt, &out.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return out, nil
}
