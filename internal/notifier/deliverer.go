// Package notifier delivers purchased account credentials to buyers.
package notifier

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"text/template"

	"github.com/joao-fontenele/account-storefront/internal/domain"
	"github.com/joao-fontenele/account-storefront/internal/secrets"
)

var deliveryBody = template.Must(template.New("delivery").Parse(`Hi {{.CustomerName}},

Thank you for your purchase. Order {{.OrderNumber}} has been paid and your account is ready.

Rank: {{if .Rank}}{{.Rank}}{{else}}-{{end}}
Heroes: {{.HeroesCount}}
Skins: {{.SkinsCount}}

Login method: {{if .LoginMethod}}{{.LoginMethod}}{{else}}-{{end}}
Username: {{.GameUsername}}
Password: {{.GamePassword}}
{{- if .AdditionalInfo}}
Notes: {{.AdditionalInfo}}
{{- end}}

Please change the password after your first login.
`))

type deliveryView struct {
	domain.OrderCompletedEvent
	domain.Credentials
}

// Sender is satisfied by MailClient.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Deliverer decrypts the sold account's credentials and emails them to the
// buyer. It can run in the storefront directly or behind the Kafka consumer.
type Deliverer struct {
	box    *secrets.Box
	sender Sender
	logger *slog.Logger
}

func NewDeliverer(box *secrets.Box, sender Sender, logger *slog.Logger) *Deliverer {
	return &Deliverer{box: box, sender: sender, logger: logger}
}

func (d *Deliverer) Compose(event domain.OrderCompletedEvent) (Message, error) {
	creds, err := d.box.OpenCredentials(event.EncryptedCredentials)
	if err != nil {
		return Message{}, fmt.Errorf("decrypt credentials: %w", err)
	}

	var body bytes.Buffer
	if err := deliveryBody.Execute(&body, deliveryView{OrderCompletedEvent: event, Credentials: creds}); err != nil {
		return Message{}, fmt.Errorf("render delivery email: %w", err)
	}

	return Message{
		To:      event.CustomerEmail,
		Subject: "Your account for order " + event.OrderNumber,
		Body:    body.String(),
	}, nil
}

// OrderCompleted sends the delivery email for a paid order.
func (d *Deliverer) OrderCompleted(ctx context.Context, event domain.OrderCompletedEvent) error {
	msg, err := d.Compose(event)
	if err != nil {
		return err
	}
	if err := d.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send delivery email: %w", err)
	}

	d.logger.Info("delivery email sent", "order_id", event.OrderID, "order_number", event.OrderNumber)
	return nil
}
