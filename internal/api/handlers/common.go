// Package handlers provides HTTP request handlers for the portsweep API.
// This file contains helpers shared by every handler.
package handlers

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/anstrom/portsweep/internal/api/middleware"
	"github.com/anstrom/portsweep/internal/errors"
	"github.com/anstrom/portsweep/internal/logging"
)

// PaginationParams holds pagination parameters.
type PaginationParams struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Offset   int `json:"offset"`
}

// Pagination describes the page returned in a PaginatedResponse.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

// PaginatedResponse represents a paginated API response.
type PaginatedResponse struct {
	Data       any        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error     string           `json:"error"`
	Code      errors.ErrorCode `json:"code,omitempty"`
	Message   string           `json:"message"`
	Field     string           `json:"field,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	RequestID string           `json:"request_id,omitempty"`
}

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// getQueryParamInt extracts integer query parameter with default value.
func getQueryParamInt(r *http.Request, key string, defaultValue int) (int, error) {
	if value := r.URL.Query().Get(key); value != "" {
		return strconv.Atoi(value)
	}
	return defaultValue, nil
}

// extractUUIDFromPath extracts the {id} path parameter.
func extractUUIDFromPath(r *http.Request) (uuid.UUID, error) {
	idStr, exists := mux.Vars(r)["id"]
	if !exists {
		return uuid.Nil, errors.NewScanError(errors.CodeValidation, "id not provided")
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, errors.NewScanError(errors.CodeValidation, fmt.Sprintf("invalid id: %s", idStr))
	}
	return id, nil
}

// getPaginationParams extracts pagination parameters, clamping page_size to maxPageSize.
func getPaginationParams(r *http.Request, defaultPageSize, maxPageSize int) (PaginationParams, error) {
	page, err := getQueryParamInt(r, "page", 1)
	if err != nil {
		return PaginationParams{}, errors.NewScanError(errors.CodeValidation, "invalid page parameter")
	}
	pageSize, err := getQueryParamInt(r, "page_size", defaultPageSize)
	if err != nil {
		return PaginationParams{}, errors.NewScanError(errors.CodeValidation, "invalid page_size parameter")
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	pageSize = min(pageSize, maxPageSize)

	return PaginationParams{
		Page:     page,
		PageSize: pageSize,
		Offset:   (page - 1) * pageSize,
	}, nil
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, r *http.Request, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Default().Error("Failed to encode JSON response",
			"request_id", middleware.GetRequestID(r),
			"error", err)
	}
}

// writeError writes an error response whose status is derived from the error code.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	response := ErrorResponse{
		Error:     http.StatusText(status),
		Code:      errors.GetCode(err),
		Message:   publicMessage(err, status),
		Timestamp: time.Now().UTC(),
		RequestID: middleware.GetRequestID(r),
	}
	var cfgErr *errors.ConfigError
	if stderrors.As(err, &cfgErr) {
		response.Field = cfgErr.Field
	}
	if response.Code == errors.CodeUnknown {
		response.Code = ""
	}

	if status >= http.StatusInternalServerError {
		logging.Default().Error("Request failed",
			"request_id", response.RequestID,
			"path", r.URL.Path,
			"error", err)
	}
	writeJSON(w, r, status, response)
}

// publicMessage hides internal details from server errors.
func publicMessage(err error, status int) string {
	if status == http.StatusInternalServerError {
		return "internal server error"
	}
	return err.Error()
}

// statusForError maps error codes to HTTP status codes.
func statusForError(err error) int {
	switch errors.GetCode(err) {
	case errors.CodeValidation, errors.CodeParse, errors.CodeTargetInvalid, errors.CodeConfiguration:
		return http.StatusBadRequest
	case errors.CodeNotFound:
		return http.StatusNotFound
	case errors.CodeConflict, errors.CodeJobRunning:
		return http.StatusConflict
	case errors.CodeJobCapacity, errors.CodeRateLimited:
		return http.StatusTooManyRequests
	case errors.CodeUnauthorized:
		return http.StatusUnauthorized
	case errors.CodeCanceled, errors.CodeDatabaseConnection:
		return http.StatusServiceUnavailable
	case errors.CodeTimeout, errors.CodeDatabaseTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writePaginatedResponse writes a paginated response.
func writePaginatedResponse(w http.ResponseWriter, r *http.Request, data any, params PaginationParams, total int) {
	totalPages := 0
	if params.PageSize > 0 {
		totalPages = (total + params.PageSize - 1) / params.PageSize
	}
	writeJSON(w, r, http.StatusOK, PaginatedResponse{
		Data: data,
		Pagination: Pagination{
			Page:       params.Page,
			PageSize:   params.PageSize,
			TotalItems: total,
			TotalPages: totalPages,
		},
	})
}

// parseJSON decodes a request body into dst and validates it.
func parseJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.NewScanError(errors.CodeValidation, "request body is required")
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if stderrors.Is(err, io.EOF) {
			return errors.NewScanError(errors.CodeValidation, "request body is required")
		}
		var maxErr *http.MaxBytesError
		if stderrors.As(err, &maxErr) {
			return errors.NewScanError(errors.CodeValidation, "request body too large")
		}
		return errors.WrapScanError(errors.CodeParse, "invalid JSON body", err)
	}
	return validateStruct(dst)
}

// validateStruct runs struct validation and reports the first failing field.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if stderrors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		field := fe.Field()
		message := fmt.Sprintf("%s failed %q validation", field, fe.Tag())
		if fe.Param() != "" {
			message = fmt.Sprintf("%s failed %q validation (%s)", field, fe.Tag(), fe.Param())
		}
		return errors.NewConfigFieldError(errors.CodeValidation, message, field, fe.Value())
	}
	return errors.WrapScanError(errors.CodeValidation, "invalid request", err)
}

// requestContext bounds handler work by timeout.
func requestContext(r *http.Request, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), timeout)
}
