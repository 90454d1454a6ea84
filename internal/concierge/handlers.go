package concierge

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

type createConciergeRequest struct {
	ItemID      string `json:"itemId" validate:"required,uuid"`
	ServiceType string `json:"serviceType" validate:"required,oneof=appraisal sale donation transport"`
	Notes       string `json:"notes" validate:"omitempty"`
}

// List handles GET /api/v1/concierge
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		web.Error(w, r, err)
		return
	}

	page, pageSize := web.PageParams(r)
	dtos, total, err := h.service.List(r.Context(), user.UserID, page, pageSize)
	if err != nil {
		web.Error(w, r, mapConciergeError(err))
		return
	}

	web.Page(w, r, dtos, total, page, pageSize)
}

// Create handles POST /api/v1/concierge
func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		web.Error(w, r, err)
		return
	}

	body, err := web.DecodeValid[createConciergeRequest](r)
	if err != nil {
		web.Error(w, r, err)
		return
	}

	dto, err := h.service.Create(r.Context(), user.UserID, uuid.MustParse(body.ItemID), body.ServiceType, body.Notes)
	if err != nil {
		web.Error(w, r, mapConciergeError(err))
		return
	}

	web.OK(w, r, http.StatusCreated, "Created", dto)
}

// Get handles GET /api/v1/concierge/{id}
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		web.Error(w, r, err)
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		web.Error(w, r, apperrors.BadRequest("invalid request id"))
		return
	}

	dto, err := h.service.Get(r.Context(), user.UserID, id)
	if err != nil {
		web.Error(w, r, mapConciergeError(err))
		return
	}

	web.OK(w, r, http.StatusOK, "OK", dto)
}

// Cancel handles POST /api/v1/concierge/{id}/cancel
func (h *Handlers) Cancel(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		web.Error(w, r, err)
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		web.Error(w, r, apperrors.BadRequest("invalid request id"))
		return
	}

	dto, err := h.service.Cancel(r.Context(), user.UserID, id)
	if err != nil {
		web.Error(w, r, mapConciergeError(err))
		return
	}

	web.OK(w, r, http.StatusOK, "Updated", dto)
}

func mapConciergeError(err error) error {
	switch {
	case errors.Is(err, db.ErrConciergeNotFound):
		return apperrors.ConciergeNotFound()
	case errors.Is(err, db.ErrItemNotFound):
		return apperrors.ItemNotFound()
	case errors.Is(err, db.ErrNotOwner):
		return apperrors.Forbidden("you do not own this item")
	default:
		return apperrors.InternalError("an unexpected error occurred").WithCause(err)
	}
}
