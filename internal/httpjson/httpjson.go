// Package httpjson holds the JSON response helpers shared by the storefront
// handlers, including the mapping from domain error kinds to status codes.
package httpjson

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/joao-fontenele/account-storefront/internal/domain"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func WriteJSON(w http.ResponseWriter, logger *slog.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func WriteError(w http.ResponseWriter, logger *slog.Logger, status int, message string) {
	WriteJSON(w, logger, status, errorResponse{Error: message})
}

// StatusOf maps a domain error to its HTTP status. Conflicts raised by a
// buyer's own request are reported as 400.
func StatusOf(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		if errors.Is(err, domain.ErrAccountUnavailable) ||
			errors.Is(err, domain.ErrWrongDirection) ||
			errors.Is(err, domain.ErrAmountMismatch) {
			return http.StatusBadRequest
		}
		return http.StatusConflict
	case domain.KindRateLimited:
		return http.StatusTooManyRequests
	case domain.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteDomainError writes err using its classification. Internal errors are
// logged and hidden from the client.
func WriteDomainError(w http.ResponseWriter, logger *slog.Logger, err error, msg string, args ...any) {
	status := StatusOf(err)
	if status == http.StatusInternalServerError {
		logger.Error(msg, append(args, "error", err)...)
		WriteError(w, logger, status, "internal server error")
		return
	}

	resp := errorResponse{Error: err.Error(), Code: domain.CodeOf(err)}
	if status == http.StatusServiceUnavailable {
		resp.Retryable = true
		resp.Error = domain.ErrStorageTimeout.Message
		w.Header().Set("Retry-After", "1")
	}
	logger.Warn(msg, append(args, "error", err, "status", status)...)
	WriteJSON(w, logger, status, resp)
}

// DecodeJSON reads a bounded request body into dst.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

// Pagination is the paging envelope of list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

func NewPagination(page, pageSize, total int) Pagination {
	pages := 0
	if pageSize > 0 {
		pages = (total + pageSize - 1) / pageSize
	}
	return Pagination{Page: page, PageSize: pageSize, Total: total, TotalPages: pages}
}

// PageParams reads page and pageSize from the query string, falling back to
// legacy "limit", clamped to [1, maxSize].
func PageParams(r *http.Request, defaultSize, maxSize int) (page, size int) {
	q := r.URL.Query()
	page = atoiDefault(q.Get("page"), 1)
	if page < 1 {
		page = 1
	}

	raw := q.Get("pageSize")
	if raw == "" {
		raw = q.Get("limit")
	}
	size = atoiDefault(raw, defaultSize)
	if size < 1 {
		size = defaultSize
	}
	if size > maxSize {
		size = maxSize
	}
	return page, size
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
