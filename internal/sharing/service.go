// Package sharing manages per-item visibility settings: who can see an item,
// whether comments are allowed, and an optional expiry.
package sharing

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/laviou/backend/internal/db"
)

var ErrInvalidExpiry = errors.New("invalid expiry timestamp")

// ItemGuard is the shared ownership predicate from the item repository.
type ItemGuard interface {
	OwnedBy(ctx context.Context, itemID, ownerID uuid.UUID) error
}

type Store interface {
	GetByItem(ctx context.Context, itemID uuid.UUID) (*db.SharingSettings, error)
	Upsert(ctx context.Context, s *db.SharingSettings) (*db.SharingSettings, error)
}

type SettingsDTO struct {
	ID               string   `json:"id"`
	ItemID           string   `json:"itemId"`
	Visibility       string   `json:"visibility"`
	SharedWithEmails []string `json:"sharedWithEmails"`
	AllowComments    bool     `json:"allowComments"`
	ExpiresAt        string   `json:"expiresAt,omitempty"`
}

// UpdateInput carries the new visibility plus optional field overrides. Nil
// pointers keep the stored value; an empty ExpiresAt string clears the expiry.
type UpdateInput struct {
	Visibility       string
	SharedWithEmails []string
	AllowComments    *bool
	ExpiresAt        *string
}

type Service struct {
	store Store
	items ItemGuard
}

func NewService(store Store, items ItemGuard) *Service {
	return &Service{store: store, items: items}
}

// Get returns the item's sharing settings. Items without a settings row are
// private by default; no row is created by reading.
func (s *Service) Get(ctx context.Context, ownerID, itemID uuid.UUID) (*SettingsDTO, error) {
	if err := s.items.OwnedBy(ctx, itemID, ownerID); err != nil {
		return nil, err
	}

	settings, err := s.store.GetByItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, db.ErrSharingNotFound) {
			return defaultDTO(itemID), nil
		}
		return nil, err
	}
	return toDTO(settings), nil
}

func (s *Service) Update(ctx context.Context, ownerID, itemID uuid.UUID, in UpdateInput) (*SettingsDTO, error) {
	if err := s.items.OwnedBy(ctx, itemID, ownerID); err != nil {
		return nil, err
	}

	settings, err := s.store.GetByItem(ctx, itemID)
	if err != nil {
		if !errors.Is(err, db.ErrSharingNotFound) {
			return nil, err
		}
		settings = &db.SharingSettings{
			ID:               uuid.New(),
			ItemID:           itemID,
			Visibility:       db.VisibilityPrivate,
			SharedWithEmails: []string{},
		}
	}

	settings.Visibility = in.Visibility
	if in.SharedWithEmails != nil {
		settings.SharedWithEmails = in.SharedWithEmails
	}
	if in.AllowComments != nil {
		settings.AllowComments = *in.AllowComments
	}
	if in.ExpiresAt != nil {
		if *in.ExpiresAt == "" {
			settings.ExpiresAt = sql.NullTime{}
		} else {
			expiry, err := time.Parse(time.RFC3339, *in.ExpiresAt)
			if err != nil {
				return nil, ErrInvalidExpiry
			}
			settings.ExpiresAt = sql.NullTime{Time: expiry, Valid: true}
		}
	}

	updated, err := s.store.Upsert(ctx, settings)
	if err != nil {
		return nil, err
	}
	return toDTO(updated), nil
}

// RemoveAccess drops one email from the shared list. Without a settings row
// there is nothing to remove; the defaults come back unchanged.
func (s *Service) RemoveAccess(ctx context.Context, ownerID, itemID uuid.UUID, email string) (*SettingsDTO, error) {
	if err := s.items.OwnedBy(ctx, itemID, ownerID); err != nil {
		return nil, err
	}

	settings, err := s.store.GetByItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, db.ErrSharingNotFound) {
			return defaultDTO(itemID), nil
		}
		return nil, err
	}

	kept := make([]string, 0, len(settings.SharedWithEmails))
	for _, e := range settings.SharedWithEmails {
		if e != email {
			kept = append(kept, e)
		}
	}
	settings.SharedWithEmails = kept

	updated, err := s.store.Upsert(ctx, settings)
	if err != nil {
		return nil, err
	}
	return toDTO(updated), nil
}

func toDTO(s *db.SharingSettings) *SettingsDTO {
	dto := &SettingsDTO{
		ID:               s.ID.String(),
		ItemID:           s.ItemID.String(),
		Visibility:       s.Visibility,
		SharedWithEmails: s.SharedWithEmails,
		AllowComments:    s.AllowComments,
	}
	if dto.SharedWithEmails == nil {
		dto.SharedWithEmails = []string{}
	}
	if s.ExpiresAt.Valid {
		dto.ExpiresAt = s.ExpiresAt.Time.UTC().Format(time.RFC3339)
	}
	return dto
}

func defaultDTO(itemID uuid.UUID) *SettingsDTO {
	return &SettingsDTO{
		ID:               "default",
		ItemID:           itemID.String(),
		Visibility:       db.VisibilityPrivate,
		SharedWithEmails: []string{},
	}
}
