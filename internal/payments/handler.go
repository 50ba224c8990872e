package payments

import (
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/account-storefront/internal/auth"
	"github.com/joao-fontenele/account-storefront/internal/domain"
	"github.com/joao-fontenele/account-storefront/internal/httpjson"
)

type Handler struct {
	tracker *Tracker
	auth    *auth.Resolver
	logger  *slog.Logger
}

func NewHandler(tracker *Tracker, resolver *auth.Resolver, logger *slog.Logger) *Handler {
	return &Handler{
		tracker: tracker,
		auth:    resolver,
		logger:  logger,
	}
}

type listResponse struct {
	Success    bool                `json:"success"`
	Payments   []domain.Payment    `json:"payments"`
	Pagination httpjson.Pagination `json:"pagination"`
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	if _, err := h.auth.Admin(r); err != nil {
		httpjson.WriteDomainError(w, h.logger, err, "list payments rejected")
		return
	}

	page, size := httpjson.PageParams(r, 10, 100)
	q := r.URL.Query()
	filter := domain.PaymentFilter{
		Status:   domain.PaymentStatus(allToEmpty(q.Get("status"))),
		Method:   domain.PaymentMethod(allToEmpty(q.Get("method"))),
		Page:     page,
		PageSize: size,
	}

	list, total, err := h.tracker.List(r.Context(), filter)
	if err != nil {
		httpjson.WriteDomainError(w, h.logger, err, "failed to list payments")
		return
	}

	httpjson.WriteJSON(w, h.logger, http.StatusOK, listResponse{
		Success:    true,
		Payments:   list,
		Pagination: httpjson.NewPagination(page, size, total),
	})
}

type updateStatusRequest struct {
	Status        domain.PaymentStatus `json:"status"`
	FailureReason string               `json:"failureReason"`
	RefundAmount  *int64               `json:"refundAmount"`
}

type paymentResponse struct {
	Success bool           `json:"success"`
	Payment domain.Payment `json:"payment"`
}

func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	admin, err := h.auth.Admin(r)
	if err != nil {
		httpjson.WriteDomainError(w, h.logger, err, "update payment rejected")
		return
	}

	id := r.PathValue("id")
	if id == "" {
		httpjson.WriteError(w, h.logger, http.StatusBadRequest, "missing payment id")
		return
	}

	var req updateStatusRequest
	if err := httpjson.DecodeJSON(w, r, &req); err != nil {
		httpjson.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	payment, err := h.tracker.MarkStatus(r.Context(), id, StatusChange{
		Status:        req.Status,
		FailureReason: req.FailureReason,
		RefundAmount:  req.RefundAmount,
	})
	if err != nil {
		httpjson.WriteDomainError(w, h.logger, err, "failed to update payment", "payment_id", id)
		return
	}

	h.logger.Info("payment updated by admin", "payment_id", id, "admin_id", admin.UserID, "status", payment.Status)
	httpjson.WriteJSON(w, h.logger, http.StatusOK, paymentResponse{Success: true, Payment: payment})
}

// allToEmpty treats the back-office "ALL" filter value as no filter.
func allToEmpty(s string) string {
	if s == "ALL" {
		return ""
	}
	return s
}
