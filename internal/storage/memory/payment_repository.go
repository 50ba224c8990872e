package memory

import (
	"context"
	"encoding/json"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/joao-fontenele/account-storefront/internal/domain"
)

type paymentRepository struct {
	v view
}

func (r paymentRepository) Create(_ context.Context, p *domain.Payment) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return r.v.write(func(st *state) error {
		if _, ok := st.orders[p.OrderID]; !ok {
			return domain.ErrOrderNotFound
		}
		st.payments[p.ID] = *p
		return nil
	})
}

func (r paymentRepository) Get(_ context.Context, id string) (domain.Payment, error) {
	var out domain.Payment
	err := r.v.read(func(st *state) error {
		p, ok := st.payments[id]
		if !ok {
			return domain.ErrPaymentNotFound
		}
		out = p
		return nil
	})
	return out, err
}

func (r paymentRepository) GetByOrder(ctx context.Context, orderID string) (domain.Payment, error) {
	payments, _ := r.ListByOrder(ctx, orderID)
	if len(payments) == 0 {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return payments[0], nil
}

func (r paymentRepository) ListByOrder(_ context.Context, orderID string) ([]domain.Payment, error) {
	payments := []domain.Payment{}
	_ = r.v.read(func(st *state) error {
		for _, p := range st.payments {
			if p.OrderID == orderID {
				payments = append(payments, p)
			}
		}
		return nil
	})
	sortPayments(payments)
	return payments, nil
}

func (r paymentRepository) MarkSuccess(_ context.Context, id, gatewayTransactionID string, raw json.RawMessage, paidAt time.Time) (domain.Payment, error) {
	var out domain.Payment
	err := r.v.write(func(st *state) error {
		p, ok := st.payments[id]
		if !ok {
			return domain.ErrPaymentNotFound
		}
		if p.Status == domain.PaymentStatusSuccess {
			out = p
			return domain.ErrAlreadyProcessed
		}
		p.Status = domain.PaymentStatusSuccess
		p.GatewayTransactionID = gatewayTransactionID
		p.GatewayResponse = slices.Clone(raw)
		t := paidAt
		p.PaidAt = &t
		p.UpdatedAt = paidAt
		st.payments[id] = p
		out = p
		return nil
	})
	return out, err
}

func (r paymentRepository) Update(_ context.Context, id string, u domain.PaymentUpdate, at time.Time) (domain.Payment, error) {
	var out domain.Payment
	err := r.v.write(func(st *state) error {
		p, ok := st.payments[id]
		if !ok {
			return domain.ErrPaymentNotFound
		}
		p.Status = u.Status
		p.FailureReason = u.FailureReason
		p.RefundAmount = u.RefundAmount
		switch u.Status {
		case domain.PaymentStatusSuccess:
			if p.PaidAt == nil {
				t := at
				p.PaidAt = &t
			}
		case domain.PaymentStatusRefunded:
			t := at
			p.RefundedAt = &t
		}
		p.UpdatedAt = at
		st.payments[id] = p
		out = p
		return nil
	})
	return out, err
}

func (r paymentRepository) DeleteByOrder(_ context.Context, orderID string) error {
	return r.v.write(func(st *state) error {
		for id, p := range st.payments {
			if p.OrderID == orderID {
				delete(st.payments, id)
			}
		}
		return nil
	})
}

func (r paymentRepository) List(_ context.Context, f domain.PaymentFilter) ([]domain.Payment, int, error) {
	var matched []domain.Payment
	_ = r.v.read(func(st *state) error {
		for _, p := range st.payments {
			if f.Status != "" && p.Status != f.Status {
				continue
			}
			if f.Method != "" && p.Method != f.Method {
				continue
			}
			matched = append(matched, p)
		}
		return nil
	})

	sortPayments(matched)
	return page(matched, f.Offset(), f.PageSize), len(matched), nil
}

func sortPayments(payments []domain.Payment) {
	sortNewestFirst(payments,
		func(p domain.Payment) int64 { return p.CreatedAt.UnixNano() },
		func(p domain.Payment) string { return p.ID })
}
