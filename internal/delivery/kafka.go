// Package delivery hands completed orders over to account delivery.
package delivery

import (
	"context"
	"fmt"

	"github.com/joao-fontenele/account-storefront/internal/domain"
)

// Publisher is satisfied by messaging.Producer.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// KafkaNotifier publishes order completions for the notifier service. The
// order id is the message key so redeliveries of one order stay ordered.
type KafkaNotifier struct {
	publisher Publisher
}

func NewKafkaNotifier(publisher Publisher) *KafkaNotifier {
	return &KafkaNotifier{publisher: publisher}
}

func (n *KafkaNotifier) OrderCompleted(ctx context.Context, event domain.OrderCompletedEvent) error {
	if err := n.publisher.Publish(ctx, event.OrderID, event); err != nil {
		return fmt.Errorf("publish order completed: %w", err)
	}
	return nil
}
