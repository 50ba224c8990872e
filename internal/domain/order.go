package domain

import (
	"net/mail"
	"strings"
	"time"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusCompleted  OrderStatus = "COMPLETED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
	OrderStatusRefunded   OrderStatus = "REFUNDED"
)

// ActiveOrderStatuses are the statuses that hold an account. At most one
// order per account may be in one of them.
var ActiveOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusCompleted,
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusCompleted, OrderStatusRefunded},
	OrderStatusCompleted:  {OrderStatusRefunded},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusCompleted, OrderStatusCancelled, OrderStatusRefunded:
		return true
	}
	return false
}

// CanTransitionTo reports whether the order state machine allows s -> next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Sources returns every status from which s is reachable in one step.
func (s OrderStatus) Sources() []OrderStatus {
	var from []OrderStatus
	for src, targets := range orderTransitions {
		for _, t := range targets {
			if t == s {
				from = append(from, src)
			}
		}
	}
	return from
}

type Order struct {
	ID            string      `json:"id"`
	OrderNumber   string      `json:"orderNumber"`
	UserID        string      `json:"userId"`
	AccountID     string      `json:"accountId"`
	Amount        int64       `json:"amount"`
	Status        OrderStatus `json:"status"`
	CustomerName  string      `json:"customerName"`
	CustomerEmail string      `json:"customerEmail"`
	DeliveredAt   *time.Time  `json:"deliveredAt,omitempty"`
	Notes         string      `json:"notes,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// Validate checks the fields required to place a PENDING order.
func (o *Order) Validate() []error {
	var errs []error
	if o.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if o.AccountID == "" {
		errs = append(errs, ErrAccountRequired)
	}
	if strings.TrimSpace(o.CustomerName) == "" {
		errs = append(errs, ErrCustomerNameRequired)
	}
	if _, err := mail.ParseAddress(o.CustomerEmail); err != nil {
		errs = append(errs, ErrCustomerEmailInvalid)
	}
	if o.Amount <= 0 {
		errs = append(errs, ErrPriceInvalid)
	}
	if o.OrderNumber != "" && !IsOrderNumber(o.OrderNumber) {
		errs = append(errs, ErrOrderNumberInvalid)
	}
	return errs
}

// OrderFilter narrows order listings.
type OrderFilter struct {
	UserID    string
	Search    string
	Status    OrderStatus
	SortBy    string
	Ascending bool
	Page      int
	PageSize  int
}

func (f OrderFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}
