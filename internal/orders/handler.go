package orders

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/joao-fontenele/account-storefront/internal/auth"
	"github.com/joao-fontenele/account-storefront/internal/domain"
	"github.com/joao-fontenele/account-storefront/internal/httpjson"
)

type Handler struct {
	service *Service
	auth    *auth.Resolver
	logger  *slog.Logger
}

func NewHandler(service *Service, resolver *auth.Resolver, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		auth:    resolver,
		logger:  logger,
	}
}

type createOrderRequest struct {
	AccountID     string               `json:"accountId"`
	CustomerName  string               `json:"customerName"`
	CustomerEmail string               `json:"customerEmail"`
	PaymentMethod domain.PaymentMethod `json:"paymentMethod"`
}

type orderSummary struct {
	ID            string             `json:"id"`
	OrderNumber   string             `json:"orderNumber"`
	Amount        int64              `json:"amount"`
	Status        domain.OrderStatus `json:"status"`
	CustomerEmail string             `json:"customerEmail"`
}

type paymentSummary struct {
	ID     string               `json:"id"`
	Method domain.PaymentMethod `json:"method"`
	Status domain.PaymentStatus `json:"status"`
	QRURL  string               `json:"qrUrl"`
}

type createOrderResponse struct {
	Success bool           `json:"success"`
	Reused  bool           `json:"reused"`
	Order   orderSummary   `json:"order"`
	Payment paymentSummary `json:"payment"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.User(r)
	if err != nil {
		httpjson.WriteDomainError(w, h.logger, err, "create order rejected")
		return
	}

	var req createOrderRequest
	if err := httpjson.DecodeJSON(w, r, &req); err != nil {
		httpjson.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	placed, err := h.service.Create(r.Context(), user.UserID, CreateInput{
		AccountID:     req.AccountID,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		Method:        req.PaymentMethod,
	})
	if err != nil {
		httpjson.WriteDomainError(w, h.logger, err, "failed to create order", "user_id", user.UserID, "account_id", req.AccountID)
		return
	}

	status := http.StatusCreated
	if placed.Reused {
		status = http.StatusOK
	}

	httpjson.WriteJSON(w, h.logger, status, createOrderResponse{
		Success: true,
		Reused:  placed.Reused,
		Order: orderSummary{
			ID:            placed.Order.ID,
			OrderNumber:   placed.Order.OrderNumber,
			Amount:        placed.Order.Amount,
			Status:        placed.Order.Status,
			CustomerEmail: placed.Order.CustomerEmail,
		},
		Payment: paymentSummary{
			ID:     placed.Payment.ID,
			Method: placed.Payment.Method,
			Status: placed.Payment.Status,
			QRURL:  placed.QRURL,
		},
	})
}

type listResponse struct {
	Success    bool                `json:"success"`
	Data       []domain.Order      `json:"data"`
	Pagination httpjson.Pagination `json:"pagination"`
}

// HandleList lists the caller's orders; admins see every order.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.User(r)
	if err != nil {
		httpjson.WriteDomainError(w, h.logger, err, "list orders rejected")
		return
	}

	page, size := httpjson.PageParams(r, 10, 50)
	filter := domain.OrderFilter{Page: page, PageSize: size}
	if !user.IsAdmin() {
		filter.UserID = user.UserID
	}

	h.writeList(w, r, filter)
}

func (h *Handler) HandleAdminList(w http.ResponseWriter, r *http.Request) {
	if _, err := h.auth.Admin(r); err != nil {
		httpjson.WriteDomainError(w, h.logger, err, "list orders rejected")
		return
	}

	page, size := httpjson.PageParams(r, 10, 100)
	q := r.URL.Query()
	filter := domain.OrderFilter{
		Search:    strings.TrimSpace(q.Get("search")),
		SortBy:    q.Get("sortBy"),
		Ascending: strings.EqualFold(q.Get("sortOrder"), "asc"),
		Page:      page,
		PageSize:  size,
	}
	if status := q.Get("status"); status != "" && status != "ALL" {
		filter.Status = domain.OrderStatus(status)
	}

	h.writeList(w, r, filter)
}

func (h *Handler) writeList(w http.ResponseWriter, r *http.Request, filter domain.OrderFilter) {
	list, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpjson.WriteDomainError(w, h.logger, err, "failed to list orders")
		return
	}

	h.logger.Info("orders listed", "count", len(list))
	httpjson.WriteJSON(w, h.logger, http.StatusOK, listResponse{
		Success:    true,
		Data:       list,
		Pagination: httpjson.NewPagination(filter.Page, filter.PageSize, total),
	})
}

type statusResponse struct {
	Success bool `json:"success"`
	StatusView
}

func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.User(r)
	if err != nil {
		httpjson.WriteDomainError(w, h.logger, err, "order status rejected")
		return
	}

	q := r.URL.Query()
	view, err := h.service.Status(r.Context(), user.UserID, q.Get("orderNumber"), q.Get("accountId"))
	if err != nil {
		httpjson.WriteDomainError(w, h.logger, err, "failed to fetch order status")
		return
	}

	httpjson.WriteJSON(w, h.logger, http.StatusOK, statusResponse{Success: true, StatusView: view})
}

type credentialsResponse struct {
	Success     bool               `json:"success"`
	Credentials domain.Credentials `json:"credentials"`
}

func (h *Handler) HandleCredentials(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.User(r)
	if err != nil {
		httpjson.WriteDomainError(w, h.logger, err, "credentials rejected")
		return
	}

	id := r.PathValue("id")
	creds, err := h.service.Credentials(r.Context(), user.UserID, id)
	if err != nil {
		httpjson.WriteDomainError(w, h.logger, err, "failed to load credentials", "order_id", id)
		return
	}

	h.logger.Info("credentials exported", "order_id", id, "user_id", user.UserID)
	httpjson.WriteJSON(w, h.logger, http.StatusOK, credentialsResponse{Success: true, Credentials: creds})
}

func (h *Handler) HandleAdminGet(w http.ResponseWriter, r *http.Request) {
	if _, err := h.auth.Admin(r); err != nil {
		httpjson.WriteDomainError(w, h.logger, err, "order detail rejected")
		return
	}

	id := r.PathValue("id")
	detail, err := h.service.Detail(r.Context(), id)
	if err != nil {
		httpjson.WriteDomainError(w, h.logger, err, "failed to get order", "order_id", id)
		return
	}

	httpjson.WriteJSON(w, h.logger, http.StatusOK, detail)
}

type updateStatusRequest struct {
	Status domain.OrderStatus `json:"status"`
	Notes  string             `json:"notes"`
}

type orderResponse struct {
	Success bool         `json:"success"`
	Order   domain.Order `json:"order"`
}

func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	admin, err := h.auth.Admin(r)
	if err != nil {
		httpjson.WriteDomainError(w, h.logger, err, "update order rejected")
		return
	}

	id := r.PathValue("id")
	var req updateStatusRequest
	if err := httpjson.DecodeJSON(w, r, &req); err != nil {
		httpjson.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.service.UpdateStatus(r.Context(), id, req.Status, strings.TrimSpace(req.Notes))
	if err != nil {
		httpjson.WriteDomainError(w, h.logger, err, "failed to update order status", "order_id", id)
		return
	}

	h.logger.Info("order updated by admin", "order_id", id, "admin_id", admin.UserID, "status", order.Status)
	httpjson.WriteJSON(w, h.logger, http.StatusOK, orderResponse{Success: true, Order: order})
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if _, err := h.auth.Admin(r); err != nil {
		httpjson.WriteDomainError(w, h.logger, err, "delete order rejected")
		return
	}

	id := r.PathValue("id")
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpjson.WriteDomainError(w, h.logger, err, "failed to delete order", "order_id", id)
		return
	}

	httpjson.WriteJSON(w, h.logger, http.StatusOK, map[string]any{"success": true, "message": "order deleted"})
}
