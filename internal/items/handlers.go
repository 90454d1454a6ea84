package items

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/laviou/backend/internal/auth"
	"github.com/laviou/backend/internal/db"
	apperrors "github.com/laviou/backend/internal/errors"
	"github.com/laviou/backend/internal/web"
)

// maxImageSize bounds uploads at 10 MiB.
const maxImageSize = 10 << 20

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

type Handlers struct {
	service *Service
}

func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

type createItemRequest struct {
	Name        string `json:"name" validate:"required,min=1"`
	Description string `json:"description" validate:"required,min=1"`
}

type sellItemRequest struct {
	ItemID   string   `json:"itemId" validate:"required,uuid"`
	Price    *float64 `json:"price" validate:"required,gte=0"`
	Currency string   `json:"currency" validate:"required,min=1"`
}

type giftItemRequest struct {
	ItemID         string `json:"itemId" validate:"required,uuid"`
	RecipientEmail string `json:"recipientEmail" validate:"required,email"`
	Message        string `json:"message" validate:"omitempty"`
}

type donateItemRequest struct {
	ItemID         string `json:"itemId" validate:"required,uuid"`
	OrganizationID string `json:"organizationId" validate:"required,min=1"`
	Notes          string `json:"notes" validate:"omitempty"`
}

// List handles GET /api/v1/items
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		web.Error(w, r, err)
		return
	}

	page, pageSize := web.PageParams(r)
	query := r.URL.Query().Get("q")

	dtos, total, err := h.service.List(r.Context(), user.UserID, query, page, pageSize)
	if err != nil {
		web.Error(w, r, mapItemError(err))
		return
	}

	web.Page(w, r, dtos, total, page, pageSize)
}

// Create handles POST /api/v1/items
func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		web.Error(w, r, err)
		return
	}

	body, err := web.DecodeValid[createItemRequest](r)
	if err != nil {
		web.Error(w, r, err)
		return
	}

	dto, err := h.service.Create(r.Context(), user.UserID, CreateInput{
		Name:        body.Name,
		Description: body.Description,
	})
	if err != nil {
		web.Error(w, r, mapItemError(err))
		return
	}

	web.OK(w, r, http.StatusCreated, "Created", dto)
}

// Get handles GET /api/v1/items/{id}
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		web.Error(w, r, err)
		return
	}

	itemID, err := pathUUID(r, "id")
	if err != nil {
		web.Error(w, r, err)
		return
	}

	dto, err := h.service.Get(r.Context(), user.UserID, itemID)
	if err != nil {
		web.Error(w, r, mapItemError(err))
		return
	}

	web.OK(w, r, http.StatusOK, "OK", dto)
}

// Delete handles DELETE /api/v1/items/{id}
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		web.Error(w, r, err)
		return
	}

	itemID, err := pathUUID(r, "id")
	if err != nil {
		web.Error(w, r, err)
		return
	}

	if err := h.service.Delete(r.Context(), user.UserID, itemID); err != nil {
		web.Error(w, r, mapItemError(err))
		return
	}

	web.OK(w, r, http.StatusOK, "Deleted", true)
}

// Sell handles POST /api/v1/items/sell
func (h *Handlers) Sell(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		web.Error(w, r, err)
		return
	}

	body, err := web.DecodeValid[sellItemRequest](r)
	if err != nil {
		web.Error(w, r, err)
		return
	}

	dto, err := h.service.Sell(r.Context(), user.UserID, uuid.MustParse(body.ItemID), *body.Price, body.Currency)
	if err != nil {
		web.Error(w, r, mapItemError(err))
		return
	}

	web.OK(w, r, http.StatusOK, "Updated", dto)
}

// Gift handles POST /api/v1/items/gift
func (h *Handlers) Gift(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		web.Error(w, r, err)
		return
	}

	body, err := web.DecodeValid[giftItemRequest](r)
	if err != nil {
		web.Error(w, r, err)
		return
	}

	dto, err := h.service.Gift(r.Context(), user.UserID, uuid.MustParse(body.ItemID), body.RecipientEmail, body.Message)
	if err != nil {
		web.Error(w, r, mapItemError(err))
		return
	}

	web.OK(w, r, http.StatusOK, "Updated", dto)
}

// Donate handles POST /api/v1/items/donate
func (h *Handlers) Donate(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		web.Error(w, r, err)
		return
	}

	body, err := web.DecodeValid[donateItemRequest](r)
	if err != nil {
		web.Error(w, r, err)
		return
	}

	dto, err := h.service.Donate(r.Context(), user.UserID, uuid.MustParse(body.ItemID), body.OrganizationID, body.Notes)
	if err != nil {
		web.Error(w, r, mapItemError(err))
		return
	}

	web.OK(w, r, http.StatusOK, "Updated", dto)
}

// UploadImage handles POST /api/v1/items/{id}/image
func (h *Handlers) UploadImage(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		web.Error(w, r, err)
		return
	}

	itemID, err := pathUUID(r, "id")
	if err != nil {
		web.Error(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImageSize)
	if err := r.ParseMultipartForm(maxImageSize); err != nil {
		web.Error(w, r, apperrors.BadRequest("invalid multipart body").WithCause(err))
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		web.Error(w, r, apperrors.BadRequest("missing image file"))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !allowedImageTypes[contentType] {
		web.Error(w, r, apperrors.ValidationError("unsupported image type").WithDetails(map[string]any{
			"contentType": contentType,
		}))
		return
	}

	dto, err := h.service.UploadImage(r.Context(), user.UserID, itemID, file, header.Size, contentType)
	if err != nil {
		web.Error(w, r, mapItemError(err))
		return
	}

	web.OK(w, r, http.StatusOK, "Updated", dto)
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, apperrors.BadRequest("invalid " + name)
	}
	return id, nil
}

func mapItemError(err error) error {
	switch {
	case errors.Is(err, db.ErrItemNotFound):
		return apperrors.ItemNotFound()
	case errors.Is(err, db.ErrNotOwner):
		return apperrors.Forbidden("you do not own this item")
	case errors.Is(err, ErrStorageUnavailable):
		return apperrors.StorageError("image storage is not configured")
	default:
		return apperrors.InternalError("an unexpected error occurred").WithCause(err)
	}
}
