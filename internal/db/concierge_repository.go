package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrConciergeNotFound = errors.New("concierge request not found")

// Concierge service types
const (
	ConciergeServiceAppraisal = "appraisal"
	ConciergeServiceSale      = "sale"
	ConciergeServiceDonation  = "donation"
	ConciergeServiceTransport = "transport"
)

// Concierge statuses
const (
	ConciergeStatusPending    = "pending"
	ConciergeStatusInProgress = "in_progress"
	ConciergeStatusCompleted  = "completed"
	ConciergeStatusCancelled  = "cancelled"
)

type ConciergeRequest struct {
	ID          uuid.UUID
	ItemID      uuid.UUID
	ServiceType string
	Status      string
	Notes       sql.NullString
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// OwnerID of the underlying item; populated by joined reads.
	OwnerID uuid.UUID
}

type ConciergeRepository struct {
	db *DB
}

func NewConciergeRepository(db *DB) *ConciergeRepository {
	return &ConciergeRepository{db: db}
}

func (r *ConciergeRepository) Create(ctx context.Context, req *ConciergeRequest) error {
	query := `
		INSERT INTO concierge_requests (id, item_id, service_type, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		req.ID, req.ItemID, req.ServiceType, req.Status, req.Notes, req.CreatedAt, req.UpdatedAt,
	)
	return err
}

func (r *ConciergeRepository) GetByID(ctx context.Context, id uuid.UUID) (*ConciergeRequest, error) {
	query := `
		SELECT c.id, c.item_id, c.service_type, c.status, c.notes, c.created_at, c.updated_at, i.owner_id
		FROM concierge_requests c
		JOIN items i ON i.id = c.item_id
		WHERE c.id = $1
	`

	req := &ConciergeRequest{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&req.ID, &req.ItemID, &req.ServiceType, &req.Status, &req.Notes,
		&req.CreatedAt, &req.UpdatedAt, &req.OwnerID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConciergeNotFound
		}
		return nil, err
	}
	return req, nil
}

// ListByOwner pages through requests for items the owner holds, newest first.
func (r *ConciergeRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*ConciergeRequest, error) {
	query := `
		SELECT c.id, c.item_id, c.service_type, c.status, c.notes, c.created_at, c.updated_at, i.owner_id
		FROM concierge_requests c
		JOIN items i ON i.id = c.item_id
		WHERE i.owner_id = $1
		ORDER BY c.created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []*ConciergeRequest
	for rows.Next() {
		req := &ConciergeRequest{}
		if err := rows.Scan(
			&req.ID, &req.ItemID, &req.ServiceType, &req.Status, &req.Notes,
			&req.CreatedAt, &req.UpdatedAt, &req.OwnerID,
		); err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

func (r *ConciergeRepository) CountByOwner(ctx context.Context, ownerID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM concierge_requests c
		JOIN items i ON i.id = c.item_id
		WHERE i.owner_id = $1
	`, ownerID).Scan(&count)
	return count, err
}

func (r *ConciergeRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*ConciergeRequest, error) {
	query := `
		UPDATE concierge_requests
		SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING id, item_id, service_type, status, notes, created_at, updated_at
	`

	req := &ConciergeRequest{}
	err := r.db.QueryRowContext(ctx, query, id, status).Scan(
		&req.ID, &req.ItemID, &req.ServiceType, &req.Status, &req.Notes,
		&req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConciergeNotFound
		}
		return nil, err
	}
	return req, nil
}
