package sharing

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/laviou/backend/internal/auth"
	"github.com/laviou/backend/internal/db"
	apperrors "github.com/laviou/backend/internal/errors"
	"github.com/laviou/backend/internal/web"
)

type Handlers struct {
	service *Service
}

func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

type updateSharingRequest struct {
	ItemID           string   `json:"itemId" validate:"required,uuid"`
	Visibility       string   `json:"visibility" validate:"required,oneof=private friends public"`
	SharedWithEmails []string `json:"sharedWithEmails" validate:"omitempty,dive,email"`
	AllowComments    *bool    `json:"allowComments"`
	ExpiresAt        *string  `json:"expiresAt"`
}

// Get handles GET /api/v1/sharing/{itemId}
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		web.Error(w, r, err)
		return
	}

	itemID, err := uuid.Parse(r.PathValue("itemId"))
	if err != nil {
		web.Error(w, r, apperrors.BadRequest("invalid item id"))
		return
	}

	dto, err := h.service.Get(r.Context(), user.UserID, itemID)
	if err != nil {
		web.Error(w, r, mapSharingError(err))
		return
	}

	web.OK(w, r, http.StatusOK, "OK", dto)
}

// Update handles PUT /api/v1/sharing
func (h *Handlers) Update(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		web.Error(w, r, err)
		return
	}

	body, err := web.DecodeValid[updateSharingRequest](r)
	if err != nil {
		web.Error(w, r, err)
		return
	}

	dto, err := h.service.Update(r.Context(), user.UserID, uuid.MustParse(body.ItemID), UpdateInput{
		Visibility:       body.Visibility,
		SharedWithEmails: body.SharedWithEmails,
		AllowComments:    body.AllowComments,
		ExpiresAt:        body.ExpiresAt,
	})
	if err != nil {
		web.Error(w, r, mapSharingError(err))
		return
	}

	web.OK(w, r, http.StatusOK, "Updated", dto)
}

// RemoveAccess handles DELETE /api/v1/sharing/{itemId}/access/{email}
func (h *Handlers) RemoveAccess(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		web.Error(w, r, err)
		return
	}

	itemID, err := uuid.Parse(r.PathValue("itemId"))
	if err != nil {
		web.Error(w, r, apperrors.BadRequest("invalid item id"))
		return
	}

	email := r.PathValue("email")
	if email == "" {
		web.Error(w, r, apperrors.BadRequest("missing email"))
		return
	}

	dto, err := h.service.RemoveAccess(r.Context(), user.UserID, itemID, email)
	if err != nil {
		web.Error(w, r, mapSharingError(err))
		return
	}

	web.OK(w, r, http.StatusOK, "Removed", dto)
}

func mapSharingError(err error) error {
	switch {
	case errors.Is(err, db.ErrItemNotFound):
		return apperrors.ItemNotFound()
	case errors.Is(err, db.ErrNotOwner):
		return apperrors.Forbidden("you do not own this item")
	case errors.Is(err, ErrInvalidExpiry):
		return apperrors.ValidationError("expiresAt must be an RFC 3339 timestamp")
	default:
		return apperrors.InternalError("an unexpected error occurred").WithCause(err)
	}
}
