package catalog

import (
	"log/slog"
	"net/http"
	"strconv"

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

type listResponse struct {
	Items      []domain.Account    `json:"items"`
	Pagination httpjson.Pagination `json:"pagination"`
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	page, size := httpjson.PageParams(r, 10, 50)
	q := r.URL.Query()
	filter := domain.AccountFilter{
		Query:     q.Get("q"),
		Rank:      q.Get("rank"),
		Status:    domain.AccountStatus(q.Get("status")),
		MinPrice:  parseInt64(q.Get("minPrice")),
		MaxPrice:  parseInt64(q.Get("maxPrice")),
		MinHeroes: int(parseInt64(q.Get("minHeroes"))),
		MinSkins:  int(parseInt64(q.Get("minSkins"))),
		Page:      page,
		PageSize:  size,
	}

	items, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpjson.WriteDomainError(w, h.logger, err, "failed to list accounts")
		return
	}

	h.logger.Info("accounts listed", "count", len(items), "total", total)
	httpjson.WriteJSON(w, h.logger, http.StatusOK, listResponse{
		Items:      items,
		Pagination: httpjson.NewPagination(page, size, total),
	})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	account, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpjson.WriteDomainError(w, h.logger, err, "failed to get account", "account_id", id)
		return
	}

	httpjson.WriteJSON(w, h.logger, http.StatusOK, account)
}

func (h *Handler) HandleRanks(w http.ResponseWriter, _ *http.Request) {
	httpjson.WriteJSON(w, h.logger, http.StatusOK, domain.Ranks)
}

// accountRequest is the admin payload: account fields and plaintext
// credentials side by side.
type accountRequest struct {
	domain.Account
	domain.Credentials
}

func (h *Handler) HandleAdminGet(w http.ResponseWriter, r *http.Request) {
	if _, err := h.auth.Admin(r); err != nil {
		httpjson.WriteDomainError(w, h.logger, err, "account detail rejected")
		return
	}

	id := r.PathValue("id")
	account, err := h.service.AdminGet(r.Context(), id)
	if err != nil {
		httpjson.WriteDomainError(w, h.logger, err, "failed to get account", "account_id", id)
		return
	}

	httpjson.WriteJSON(w, h.logger, http.StatusOK, account)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	if _, err := h.auth.Admin(r); err != nil {
		httpjson.WriteDomainError(w, h.logger, err, "create account rejected")
		return
	}

	var req accountRequest
	if err := httpjson.DecodeJSON(w, r, &req); err != nil {
		httpjson.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	account, err := h.service.Create(r.Context(), req.Account, req.Credentials)
	if err != nil {
		httpjson.WriteDomainError(w, h.logger, err, "failed to create account")
		return
	}

	httpjson.WriteJSON(w, h.logger, http.StatusCreated, account)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	if _, err := h.auth.Admin(r); err != nil {
		httpjson.WriteDomainError(w, h.logger, err, "update account rejected")
		return
	}

	id := r.PathValue("id")
	var req accountRequest
	if err := httpjson.DecodeJSON(w, r, &req); err != nil {
		httpjson.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	account, err := h.service.Update(r.Context(), id, req.Account, req.Credentials)
	if err != nil {
		httpjson.WriteDomainError(w, h.logger, err, "failed to update account", "account_id", id)
		return
	}

	httpjson.WriteJSON(w, h.logger, http.StatusOK, account)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if _, err := h.auth.Admin(r); err != nil {
		httpjson.WriteDomainError(w, h.logger, err, "delete account rejected")
		return
	}

	id := r.PathValue("id")
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpjson.WriteDomainError(w, h.logger, err, "failed to delete account", "account_id", id)
		return
	}

	httpjson.WriteJSON(w, h.logger, http.StatusOK, map[string]any{"success": true})
}

func parseInt64(s string) int64 {
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
