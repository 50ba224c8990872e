package domain

import (
	"context"
	"encoding/json"
	"time"
)

// AccountRepository is the inventory store.
type AccountRepository interface {
	// Get returns ErrAccountNotFound when the account does not exist.
	Get(ctx context.Context, id string) (Account, error)
	// GetForUpdate is Get plus a row lock held until the surrounding
	// transaction ends. Outside Store.Atomic it behaves like Get.
	GetForUpdate(ctx context.Context, id string) (Account, error)
	List(ctx context.Context, filter AccountFilter) ([]Account, int, error)
	Create(ctx context.Context, account *Account) error
	Update(ctx context.Context, account *Account) error
	Delete(ctx context.Context, id string) error
	SetStatus(ctx context.Context, id string, status AccountStatus, at time.Time) error
}

// OrderTransition describes a guarded status change: it only applies when
// the stored status is one of From.
type OrderTransition struct {
	From        []OrderStatus
	To          OrderStatus
	Notes       string
	DeliveredAt *time.Time
	At          time.Time
}

// OrderRepository is the order ledger's storage.
type OrderRepository interface {
	// Create returns ErrAccountUnavailable when another active order already
	// holds the account.
	Create(ctx context.Context, order *Order) error
	Get(ctx context.Context, id string) (Order, error)
	GetByNumber(ctx context.Context, orderNumber string) (Order, error)
	// FindPending returns the most recent PENDING order for the pair, or nil.
	FindPending(ctx context.Context, userID, accountID string) (*Order, error)
	// FindActiveByAccount returns the order currently holding the account, or nil.
	FindActiveByAccount(ctx context.Context, accountID string) (*Order, error)
	// Latest returns the newest order matching the user and, when non-empty,
	// the order number and account id; nil when none.
	Latest(ctx context.Context, userID, orderNumber, accountID string) (*Order, error)
	CountPendingSince(ctx context.Context, userID string, since time.Time) (int, error)
	CountByAccount(ctx context.Context, accountID string, statuses []OrderStatus) (int, error)
	// Transition returns ErrInvalidTransition when the stored status is not
	// in t.From, and ErrOrderNotFound when the order is missing.
	Transition(ctx context.Context, id string, t OrderTransition) (Order, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter OrderFilter) ([]Order, int, error)
}

// PaymentRepository is the payment record tracker's storage.
type PaymentRepository interface {
	Create(ctx context.Context, payment *Payment) error
	Get(ctx context.Context, id string) (Payment, error)
	// GetByOrder returns the most recent payment of the order.
	GetByOrder(ctx context.Context, orderID string) (Payment, error)
	ListByOrder(ctx context.Context, orderID string) ([]Payment, error)
	// MarkSuccess is a conditional update guarded by status <> SUCCESS. It
	// returns ErrAlreadyProcessed when the payment was already settled.
	MarkSuccess(ctx context.Context, id, gatewayTransactionID string, raw json.RawMessage, paidAt time.Time) (Payment, error)
	Update(ctx context.Context, id string, update PaymentUpdate, at time.Time) (Payment, error)
	DeleteByOrder(ctx context.Context, orderID string) error
	List(ctx context.Context, filter PaymentFilter) ([]Payment, int, error)
}

type Repositories interface {
	Accounts() AccountRepository
	Orders() OrderRepository
	Payments() PaymentRepository
}

// Store exposes the repositories directly and inside a transaction. All
// writes performed by fn commit together or not at all.
type Store interface {
	Repositories
	Atomic(ctx context.Context, fn func(tx Repositories) error) error
	Ping(ctx context.Context) error
}
