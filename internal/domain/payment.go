package domain

import (
	"encoding/json"
	"time"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusSuccess   PaymentStatus = "SUCCESS"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusSuccess, PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusRefunded:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentMethodBank    PaymentMethod = "BANK"
	PaymentMethodVNPay   PaymentMethod = "VNPAY"
	PaymentMethodZaloPay PaymentMethod = "ZALOPAY"
	PaymentMethodMoMo    PaymentMethod = "MOMO"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodBank, PaymentMethodVNPay, PaymentMethodZaloPay, PaymentMethodMoMo:
		return true
	}
	return false
}

type Payment struct {
	ID                   string          `json:"id"`
	OrderID              string          `json:"orderId"`
	Amount               int64           `json:"amount"`
	Method               PaymentMethod   `json:"method"`
	Status               PaymentStatus   `json:"status"`
	GatewayTransactionID string          `json:"gatewayTransactionId,omitempty"`
	GatewayResponse      json.RawMessage `json:"gatewayResponse,omitempty"`
	PaidAt               *time.Time      `json:"paidAt,omitempty"`
	RefundedAt           *time.Time      `json:"refundedAt,omitempty"`
	FailureReason        string          `json:"failureReason,omitempty"`
	RefundAmount         int64           `json:"refundAmount,omitempty"`
	CreatedAt            time.Time       `json:"createdAt"`
	UpdatedAt            time.Time       `json:"updatedAt"`
}

// PaymentUpdate carries an admin-driven status change.
type PaymentUpdate struct {
	Status        PaymentStatus
	FailureReason string
	RefundAmount  int64
}

type PaymentFilter struct {
	Status   PaymentStatus
	Method   PaymentMethod
	Page     int
	PageSize int
}

func (f PaymentFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}
