// Package web holds the response envelope and request decoding shared by
// every handler package.
package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	apperrors "github.com/laviou/backend/internal/errors"
)

var validate = validator.New()

// Response is the uniform success envelope.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// PaginatedResponse wraps list results.
type PaginatedResponse struct {
	Data       any `json:"data"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalPages int `json:"totalPages"`
}

// DecodeValid decodes the JSON body into T and runs struct validation.
// Failures come back as client-facing AppErrors.
func DecodeValid[T any](r *http.Request) (T, error) {
	var body T
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return body, apperrors.BadRequest("invalid request body").WithCause(err)
	}
	if err := validate.Struct(body); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			details := make(map[string]any, len(verrs))
			for _, fe := range verrs {
				details[fe.Field()] = fe.Tag()
			}
			return body, apperrors.ValidationError("request validation failed").WithDetails(details)
		}
		return body, apperrors.ValidationError("request validation failed").WithCause(err)
	}
	return body, nil
}

// OK writes the success envelope with the given status and message.
func OK(w http.ResponseWriter, r *http.Request, status int, message string, data any) {
	requestID := apperrors.GetRequestID(r.Context())
	apperrors.WriteJSON(w, requestID, status, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Page writes a paginated envelope.
func Page(w http.ResponseWriter, r *http.Request, data any, total, page, pageSize int) {
	totalPages := (total + pageSize - 1) / pageSize
	if totalPages < 1 {
		totalPages = 1
	}
	requestID := apperrors.GetRequestID(r.Context())
	apperrors.WriteJSON(w, requestID, http.StatusOK, PaginatedResponse{
		Data:       data,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	})
}

// Error writes the structured error envelope.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.WriteError(w, apperrors.GetRequestID(r.Context()), err)
}

// PageParams extracts page/pageSize query parameters, clamping pageSize to
// [1,100] and defaulting to page 1 / size 20.
func PageParams(r *http.Request) (page, pageSize int) {
	page = intQuery(r, "page", 1)
	if page < 1 {
		page = 1
	}
	pageSize = intQuery(r, "pageSize", 20)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}

func intQuery(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
