package webhook

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/account-storefront/internal/domain"
	"github.com/joao-fontenele/account-storefront/internal/httpjson"
)

const maxPayloadBytes = 64 << 10

type Handler struct {
	reconciler *Reconciler
	logger     *slog.Logger
}

func NewHandler(reconciler *Reconciler, logger *slog.Logger) *Handler {
	return &Handler{
		reconciler: reconciler,
		logger:     logger,
	}
}

type response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func (h *Handler) HandleSePay(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		h.reject(w, domain.ErrInvalidPayload)
		return
	}

	res, err := h.reconciler.Handle(r.Context(), raw, r.Header.Get("Authorization"))
	if err != nil {
		h.logger.Warn("webhook rejected", "error", err, "order_id", res.Order.ID)
		h.reject(w, err)
		return
	}

	if res.Outcome == OutcomeReplayed {
		httpjson.WriteJSON(w, h.logger, http.StatusOK, response{Success: true, Message: "already processed"})
		return
	}
	httpjson.WriteJSON(w, h.logger, http.StatusCreated, response{Success: true, Message: "payment confirmed"})
}

func (h *Handler) reject(w http.ResponseWriter, err error) {
	status := httpjson.StatusOf(err)
	msg := err.Error()
	switch status {
	case http.StatusInternalServerError:
		h.logger.Error("webhook processing failed", "error", err)
		msg = "webhook processing failed"
	case http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", "1")
		msg = domain.ErrStorageTimeout.Message
	}
	httpjson.WriteJSON(w, h.logger, status, response{Message: msg, Reason: domain.CodeOf(err)})
}
