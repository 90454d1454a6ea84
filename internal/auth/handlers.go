package auth

import (
	"errors"
	"net/http"

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

type registerRequest struct {
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=6"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,min=6"`
	FirstName       string `json:"firstName" validate:"required,min=1"`
	LastName        string `json:"lastName" validate:"required,min=1"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type verifyOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
}

type resetPasswordRequest struct {
	ResetToken  string `json:"resetToken" validate:"required,min=4"`
	NewPassword string `json:"newPassword" validate:"required,min=8"`
}

// Register handles POST /api/v1/auth/register
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	body, err := web.DecodeValid[registerRequest](r)
	if err != nil {
		web.Error(w, r, err)
		return
	}

	result, err := h.service.Register(r.Context(), RegisterInput{
		Email:           body.Email,
		Password:        body.Password,
		ConfirmPassword: body.ConfirmPassword,
		FirstName:       body.FirstName,
		LastName:        body.LastName,
	})
	if err != nil {
		web.Error(w, r, mapServiceError(err))
		return
	}

	web.OK(w, r, http.StatusCreated, "Registered", result)
}

// Login handles POST /api/v1/auth/login
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	body, err := web.DecodeValid[loginRequest](r)
	if err != nil {
		web.Error(w, r, err)
		return
	}

	tokens, err := h.service.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		web.Error(w, r, mapServiceError(err))
		return
	}

	web.OK(w, r, http.StatusOK, "Logged in", tokens)
}

// Refresh handles POST /api/v1/auth/refresh
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	body, err := web.DecodeValid[refreshRequest](r)
	if err != nil {
		web.Error(w, r, err)
		return
	}

	tokens, err := h.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		web.Error(w, r, mapServiceError(err))
		return
	}

	web.OK(w, r, http.StatusOK, "Refreshed", tokens)
}

// Logout handles POST /api/v1/auth/logout
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	user, err := GetUserFromContext(r.Context())
	if err != nil {
		web.Error(w, r, err)
		return
	}

	if err := h.service.Logout(r.Context(), user.UserID); err != nil {
		web.Error(w, r, mapServiceError(err))
		return
	}

	web.OK(w, r, http.StatusOK, "Logged out", true)
}

// Me handles GET /api/v1/auth/me
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	user, err := GetUserFromContext(r.Context())
	if err != nil {
		web.Error(w, r, err)
		return
	}

	info, err := h.service.Me(r.Context(), user.UserID)
	if err != nil {
		web.Error(w, r, mapServiceError(err))
		return
	}

	web.OK(w, r, http.StatusOK, "OK", info)
}

// ForgotPassword handles POST /api/v1/auth/forgot-password
func (h *Handlers) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	body, err := web.DecodeValid[forgotPasswordRequest](r)
	if err != nil {
		web.Error(w, r, err)
		return
	}

	if err := h.service.ForgotPassword(r.Context(), body.Email); err != nil {
		web.Error(w, r, mapServiceError(err))
		return
	}

	web.OK(w, r, http.StatusOK, "If the email exists, a reset code was sent.", map[string]bool{"sent": true})
}

// VerifyResetOTP handles POST /api/v1/auth/verify-reset-otp
func (h *Handlers) VerifyResetOTP(w http.ResponseWriter, r *http.Request) {
	body, err := web.DecodeValid[verifyOTPRequest](r)
	if err != nil {
		web.Error(w, r, err)
		return
	}

	resetToken, err := h.service.VerifyResetOTP(r.Context(), body.Email, body.OTP)
	if err != nil {
		web.Error(w, r, mapServiceError(err))
		return
	}

	web.OK(w, r, http.StatusOK, "OTP verified", map[string]string{"resetToken": resetToken})
}

// ResetPassword handles POST /api/v1/auth/reset-password
func (h *Handlers) ResetPassword(w http.ResponseWriter, r *http.Request) {
	body, err := web.DecodeValid[resetPasswordRequest](r)
	if err != nil {
		web.Error(w, r, err)
		return
	}

	if err := h.service.ResetPassword(r.Context(), body.ResetToken, body.NewPassword); err != nil {
		web.Error(w, r, mapServiceError(err))
		return
	}

	web.OK(w, r, http.StatusOK, "Password reset", true)
}

// mapServiceError translates auth core sentinels into client-facing errors.
func mapServiceError(err error) error {
	switch {
	case errors.Is(err, ErrPasswordMismatch):
		return apperrors.ValidationError("Passwords do not match")
	case errors.Is(err, db.ErrEmailExists):
		return apperrors.EmailExists()
	case errors.Is(err, ErrInvalidCredentials):
		return apperrors.InvalidCredentials()
	case errors.Is(err, ErrTokenExpired):
		return apperrors.TokenExpired()
	case errors.Is(err, ErrInvalidToken):
		return apperrors.InvalidToken("invalid token")
	case errors.Is(err, ErrInvalidCode):
		return apperrors.InvalidCode()
	case errors.Is(err, ErrInvalidResetToken):
		return apperrors.InvalidResetToken()
	case errors.Is(err, ErrRateLimited):
		return apperrors.RateLimited()
	case errors.Is(err, db.ErrUserNotFound):
		return apperrors.NotFound("user")
	default:
		return apperrors.InternalError("an unexpected error occurred").WithCause(err)
	}
}
