package notifier

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/joao-fontenele/account-storefront/internal/domain"
)

// Handler consumes order.completed events.
type Handler struct {
	deliverer *Deliverer
	logger    *slog.Logger
}

func NewHandler(deliverer *Deliverer, logger *slog.Logger) *Handler {
	return &Handler{
		deliverer: deliverer,
		logger:    logger,
	}
}

// Handle delivers one event. Undecodable events are logged and skipped so
// they do not block the partition; delivery failures are returned so the
// offset is not committed.
func (h *Handler) Handle(ctx context.Context, payload []byte) error {
	var event domain.OrderCompletedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.Error("discarding malformed order completed event", "error", err)
		return nil
	}
	if event.OrderID == "" || event.CustomerEmail == "" {
		h.logger.Error("discarding incomplete order completed event", "order_id", event.OrderID)
		return nil
	}

	h.logger.Info("processing order completed event", "order_id", event.OrderID, "order_number", event.OrderNumber)

	if err := h.deliverer.OrderCompleted(ctx, event); err != nil {
		h.logger.Error("failed to deliver account", "error", err, "order_id", event.OrderID)
		return err
	}

	h.logger.Info("order delivery complete", "order_id", event.OrderID)
	return nil
}
