// Package webhook reconciles SePay bank-transfer notifications with orders.
package webhook

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/joao-fontenele/account-storefront/internal/domain"
)

// Payload is the subset of the SePay notification the reconciler reads.
// Unknown fields are ignored; a field of the wrong JSON type rejects the
// whole notification.
type Payload struct {
	Gateway         string `json:"gateway"`
	TransactionDate string `json:"transactionDate"`
	AccountNumber   string `json:"accountNumber"`
	Code            string `json:"code"`
	Content         string `json:"content"`
	TransferType    string `json:"transferType"`
	TransferAmount  *int64 `json:"transferAmount"`
	ReferenceCode   string `json:"referenceCode"`
	Description     string `json:"description"`
}

func ParsePayload(raw []byte) (Payload, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Payload{}, domain.ErrInvalidPayload
	}

	var p Payload
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return Payload{}, domain.ErrInvalidPayload
	}
	if p.TransferAmount != nil && *p.TransferAmount < 0 {
		return Payload{}, domain.ErrInvalidPayload
	}
	return p, nil
}

// OrderNumber finds the order reference the buyer typed into the transfer.
// The content is searched first; the gateway's parsed code is the fallback.
//
// Extraction takes the first token shaped like an order number. A bank that
// truncates or rewrites the description can still yield a wrong or missing
// match, which surfaces as order_not_found rather than a guess.
func (p Payload) OrderNumber() (string, bool) {
	if n, ok := domain.FindOrderNumber(p.Content); ok {
		return n, true
	}
	code := strings.TrimSpace(p.Code)
	return code, code != ""
}

func (p Payload) Incoming() bool {
	return strings.EqualFold(strings.TrimSpace(p.TransferType), "in")
}
