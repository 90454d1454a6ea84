// Package items implements the personal item catalog: CRUD, search, the
// sell/gift/donate lifecycle actions, and image storage.
package items

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/laviou/backend/internal/db"
	"github.com/laviou/backend/internal/logger"
	"github.com/laviou/backend/internal/storage"
)

var ErrStorageUnavailable = errors.New("image storage is not configured")

// Store is the slice of the item repository the service needs.
type Store interface {
	Create(ctx context.Context, item *db.Item) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.Item, error)
	OwnedBy(ctx context.Context, itemID, ownerID uuid.UUID) error
	ListByOwner(ctx context.Context, ownerID uuid.UUID, query string, limit, offset int) ([]*db.Item, error)
	CountByOwner(ctx context.Context, ownerID uuid.UUID, query string) (int, error)
	Delete(ctx context.Context, id uuid.UUID) error
	MarkSold(ctx context.Context, id uuid.UUID, price float64, currency string) (*db.Item, error)
	MarkGifted(ctx context.Context, id uuid.UUID, recipientEmail string, message sql.NullString) (*db.Item, error)
	MarkDonated(ctx context.Context, id uuid.UUID, organizationID string, notes sql.NullString) (*db.Item, error)
	SetImageKey(ctx context.Context, id uuid.UUID, imageKey string) error
}

// ImageStore holds item images. A nil ImageStore means image features are
// disabled; uploads fail but everything else keeps working.
type ImageStore interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	URL(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// ItemDTO is the client-facing item projection. Lifecycle fields only appear
// once the matching action happened.
type ItemDTO struct {
	ID                    string   `json:"id"`
	Name                  string   `json:"name"`
	Description           string   `json:"description"`
	Status                string   `json:"status"`
	ImageURL              string   `json:"imageUrl,omitempty"`
	SoldPrice             *float64 `json:"soldPrice,omitempty"`
	SoldCurrency          string   `json:"soldCurrency,omitempty"`
	GiftedRecipientEmail  string   `json:"giftedRecipientEmail,omitempty"`
	GiftedMessage         string   `json:"giftedMessage,omitempty"`
	DonatedOrganizationID string   `json:"donatedOrganizationId,omitempty"`
	DonatedNotes          string   `json:"donatedNotes,omitempty"`
	CreatedAt             string   `json:"createdAt"`
	UpdatedAt             string   `json:"updatedAt"`
}

type Service struct {
	store  Store
	images ImageStore
	log    *logger.Logger
}

func NewService(store Store, images ImageStore) *Service {
	return &Service{
		store:  store,
		images: images,
		log:    logger.Default().WithComponent("items"),
	}
}

// List returns one page of the owner's items, newest first. A non-empty
// query narrows the page by case and accent insensitive substring match.
func (s *Service) List(ctx context.Context, ownerID uuid.UUID, query string, page, pageSize int) ([]*ItemDTO, int, error) {
	total, err := s.store.CountByOwner(ctx, ownerID, query)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.store.ListByOwner(ctx, ownerID, query, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, err
	}

	dtos := make([]*ItemDTO, 0, len(rows))
	for _, item := range rows {
		dtos = append(dtos, s.toDTO(ctx, item))
	}
	return dtos, total, nil
}

func (s *Service) Get(ctx context.Context, ownerID, itemID uuid.UUID) (*ItemDTO, error) {
	if err := s.store.OwnedBy(ctx, itemID, ownerID); err != nil {
		return nil, err
	}
	item, err := s.store.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return s.toDTO(ctx, item), nil
}

type CreateInput struct {
	Name        string
	Description string
}

func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, in CreateInput) (*ItemDTO, error) {
	now := time.Now()
	item := &db.Item{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Name:        in.Name,
		Description: in.Description,
		Status:      db.ItemStatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Create(ctx, item); err != nil {
		return nil, err
	}
	return s.toDTO(ctx, item), nil
}

func (s *Service) Delete(ctx context.Context, ownerID, itemID uuid.UUID) error {
	if err := s.store.OwnedBy(ctx, itemID, ownerID); err != nil {
		return err
	}

	item, err := s.store.GetByID(ctx, itemID)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, itemID); err != nil {
		return err
	}

	// Best effort: a leaked object is preferable to failing the delete.
	if item.ImageKey.Valid && s.images != nil {
		if err := s.images.Delete(ctx, item.ImageKey.String); err != nil {
			s.log.Warn(ctx, "failed to delete item image", map[string]interface{}{
				"item_id": itemID.String(),
				"error":   err.Error(),
			})
		}
	}
	return nil
}

func (s *Service) Sell(ctx context.Context, ownerID, itemID uuid.UUID, price float64, currency string) (*ItemDTO, error) {
	if err := s.store.OwnedBy(ctx, itemID, ownerID); err != nil {
		return nil, err
	}
	item, err := s.store.MarkSold(ctx, itemID, price, currency)
	if err != nil {
		return nil, err
	}
	return s.toDTO(ctx, item), nil
}

func (s *Service) Gift(ctx context.Context, ownerID, itemID uuid.UUID, recipientEmail, message string) (*ItemDTO, error) {
	if err := s.store.OwnedBy(ctx, itemID, ownerID); err != nil {
		return nil, err
	}
	item, err := s.store.MarkGifted(ctx, itemID, recipientEmail, nullString(message))
	if err != nil {
		return nil, err
	}
	return s.toDTO(ctx, item), nil
}

func (s *Service) Donate(ctx context.Context, ownerID, itemID uuid.UUID, organizationID, notes string) (*ItemDTO, error) {
	if err := s.store.OwnedBy(ctx, itemID, ownerID); err != nil {
		return nil, err
	}
	item, err := s.store.MarkDonated(ctx, itemID, organizationID, nullString(notes))
	if err != nil {
		return nil, err
	}
	return s.toDTO(ctx, item), nil
}

// UploadImage stores the item's image, replacing any previous one. One image
// per item.
func (s *Service) UploadImage(ctx context.Context, ownerID, itemID uuid.UUID, body io.Reader, size int64, contentType string) (*ItemDTO, error) {
	if s.images == nil {
		return nil, ErrStorageUnavailable
	}
	if err := s.store.OwnedBy(ctx, itemID, ownerID); err != nil {
		return nil, err
	}

	key := storage.Key(itemID.String())
	if err := s.images.Upload(ctx, key, body, size, contentType); err != nil {
		return nil, err
	}
	if err := s.store.SetImageKey(ctx, itemID, key); err != nil {
		return nil, err
	}

	item, err := s.store.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return s.toDTO(ctx, item), nil
}

func (s *Service) toDTO(ctx context.Context, item *db.Item) *ItemDTO {
	dto := &ItemDTO{
		ID:          item.ID.String(),
		Name:        item.Name,
		Description: item.Description,
		Status:      item.Status,
		CreatedAt:   item.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   item.UpdatedAt.UTC().Format(time.RFC3339),
	}

	if item.SoldPrice.Valid {
		price := item.SoldPrice.Float64
		dto.SoldPrice = &price
	}
	if item.SoldCurrency.Valid {
		dto.SoldCurrency = item.SoldCurrency.String
	}
	if item.GiftedRecipientEmail.Valid {
		dto.GiftedRecipientEmail = item.GiftedRecipientEmail.String
	}
	if item.GiftedMessage.Valid {
		dto.GiftedMessage = item.GiftedMessage.String
	}
	if item.DonatedOrganizationID.Valid {
		dto.DonatedOrganizationID = item.DonatedOrganizationID.String
	}
	if item.DonatedNotes.Valid {
		dto.DonatedNotes = item.DonatedNotes.String
	}

	if item.ImageKey.Valid && s.images != nil {
		url, err := s.images.URL(ctx, item.ImageKey.String)
		if err != nil {
			// Serve the item without its image rather than failing the read.
			s.log.Warn(ctx, "failed to presign image url", map[string]interface{}{
				"item_id": item.ID.String(),
				"error":   err.Error(),
			})
		} else {
			dto.ImageURL = url
		}
	}

	return dto
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
