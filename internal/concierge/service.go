// Package concierge handles white-glove service requests made against items:
// appraisals, assisted sales, donations, and transport.
package concierge

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/laviou/backend/internal/db"
)

// ItemGuard is the shared ownership predicate from the item repository.
type ItemGuard interface {
	OwnedBy(ctx context.Context, itemID, ownerID uuid.UUID) error
}

type Store interface {
	Create(ctx context.Context, req *db.ConciergeRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.ConciergeRequest, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*db.ConciergeRequest, error)
	CountByOwner(ctx context.Context, ownerID uuid.UUID) (int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*db.ConciergeRequest, error)
}

type RequestDTO struct {
	ID          string `json:"id"`
	ItemID      string `json:"itemId"`
	ServiceType string `json:"serviceType"`
	Status      string `json:"status"`
	Notes       string `json:"notes,omitempty"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

type Service struct {
	store Store
	items ItemGuard
}

func NewService(store Store, items ItemGuard) *Service {
	return &Service{store: store, items: items}
}

func (s *Service) Create(ctx context.Context, ownerID, itemID uuid.UUID, serviceType, notes string) (*RequestDTO, error) {
	if err := s.items.OwnedBy(ctx, itemID, ownerID); err != nil {
		return nil, err
	}

	now := time.Now()
	req := &db.ConciergeRequest{
		ID:          uuid.New(),
		ItemID:      itemID,
		ServiceType: serviceType,
		Status:      db.ConciergeStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if notes != "" {
		req.Notes = sql.NullString{String: notes, Valid: true}
	}

	if err := s.store.Create(ctx, req); err != nil {
		return nil, err
	}
	return toDTO(req), nil
}

// List pages through requests on the owner's items, newest first.
func (s *Service) List(ctx context.Context, ownerID uuid.UUID, page, pageSize int) ([]*RequestDTO, int, error) {
	total, err := s.store.CountByOwner(ctx, ownerID)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.store.ListByOwner(ctx, ownerID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, err
	}

	dtos := make([]*RequestDTO, 0, len(rows))
	for _, req := range rows {
		dtos = append(dtos, toDTO(req))
	}
	return dtos, total, nil
}

func (s *Service) Get(ctx context.Context, ownerID, id uuid.UUID) (*RequestDTO, error) {
	req, err := s.getOwned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	return toDTO(req), nil
}

// Cancel marks the request cancelled. Any prior status may be cancelled.
func (s *Service) Cancel(ctx context.Context, ownerID, id uuid.UUID) (*RequestDTO, error) {
	if _, err := s.getOwned(ctx, ownerID, id); err != nil {
		return nil, err
	}

	updated, err := s.store.UpdateStatus(ctx, id, db.ConciergeStatusCancelled)
	if err != nil {
		return nil, err
	}
	return toDTO(updated), nil
}

func (s *Service) getOwned(ctx context.Context, ownerID, id uuid.UUID) (*db.ConciergeRequest, error) {
	req, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.OwnerID != ownerID {
		return nil, db.ErrNotOwner
	}
	return req, nil
}

func toDTO(req *db.ConciergeRequest) *RequestDTO {
	dto := &RequestDTO{
		ID:          req.ID.String(),
		ItemID:      req.ItemID.String(),
		ServiceType: req.ServiceType,
		Status:      req.Status,
		CreatedAt:   req.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   req.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if req.Notes.Valid {
		dto.Notes = req.Notes.String
	}
	return dto
}
