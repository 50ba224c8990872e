package qr

import (
	"net/url"
	"strconv"
)

const DefaultBaseURL = "https://qr.sepay.vn/img"

// Builder renders SePay bank-transfer QR links for a fixed receiving account.
type Builder struct {
	baseURL string
	account string
	bank    string
}

func NewBuilder(baseURL, account, bank string) *Builder {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Builder{baseURL: baseURL, account: account, bank: bank}
}

// URL is deterministic: the same amount and order number always produce the
// same link. The order number becomes the transfer description the bank
// echoes back to the webhook.
func (b *Builder) URL(amount int64, orderNumber string) string {
	q := url.Values{}
	q.Set("acc", b.account)
	q.Set("bank", b.bank)
	q.Set("amount", strconv.FormatInt(amount, 10))
	q.Set("des", orderNumber)
	return b.baseURL + "?" + q.Encode()
}
