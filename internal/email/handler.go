// Package email is a development mail relay. It accepts delivery emails,
// logs them and keeps the most recent ones for inspection.
package email

import (
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/joao-fontenele/account-storefront/internal/httpjson"
)

const defaultOutboxSize = 100

type Message struct {
	To      string    `json:"to"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	SentAt  time.Time `json:"sentAt"`
}

type Handler struct {
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	outbox []Message
	size   int
}

func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{
		logger: logger,
		now:    time.Now,
		size:   defaultOutboxSize,
	}
}

type sendRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type sendResponse struct {
	Status string `json:"status"`
}

func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := httpjson.DecodeJSON(w, r, &req); err != nil {
		httpjson.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := mail.ParseAddress(req.To); err != nil {
		httpjson.WriteError(w, h.logger, http.StatusBadRequest, "valid recipient is required")
		return
	}
	if strings.TrimSpace(req.Subject) == "" {
		httpjson.WriteError(w, h.logger, http.StatusBadRequest, "subject is required")
		return
	}

	h.record(Message{To: req.To, Subject: req.Subject, Body: req.Body, SentAt: h.now().UTC()})
	h.logger.Info("email sent", "to", req.To, "subject", req.Subject)

	httpjson.WriteJSON(w, h.logger, http.StatusOK, sendResponse{Status: "sent"})
}

// HandleOutbox lists recorded messages, newest first.
func (h *Handler) HandleOutbox(w http.ResponseWriter, _ *http.Request) {
	httpjson.WriteJSON(w, h.logger, http.StatusOK, h.Outbox())
}

func (h *Handler) Outbox() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Message, len(h.outbox))
	for i, m := range h.outbox {
		out[len(h.outbox)-1-i] = m
	}
	return out
}

func (h *Handler) record(m Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.outbox = append(h.outbox, m)
	if len(h.outbox) > h.size {
		h.outbox = h.outbox[len(h.outbox)-h.size:]
	}
}
