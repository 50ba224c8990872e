package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/joao-fontenele/account-storefront/internal/domain"
)

const paymentColumns = `id, order_id, amount, method, status, gateway_transaction_id, gateway_response,
	paid_at, refunded_at, failure_reason, refund_amount, created_at, updated_at`

type PaymentRepository struct {
	q queryer
}

func scanPayment(s scanner) (domain.Payment, error) {
	var p domain.Payment
	var gatewayTxID sql.NullString
	var gatewayResponse []byte
	var paidAt, refundedAt sql.NullTime
	err := s.Scan(&p.ID, &p.OrderID, &p.Amount, &p.Method, &p.Status, &gatewayTxID, &gatewayResponse,
		&paidAt, &refundedAt, &p.FailureReason, &p.RefundAmount, &p.CreatedAt, &p.UpdatedAt)
	p.GatewayTransactionID = gatewayTxID.String
	if len(gatewayResponse) > 0 {
		p.GatewayResponse = json.RawMessage(gatewayResponse)
	}
	if paidAt.Valid {
		t := paidAt.Time
		p.PaidAt = &t
	}
	if refundedAt.Valid {
		t := refundedAt.Time
		p.RefundedAt = &t
	}
	return p, err
}

// jsonArg binds raw JSON as text; lib/pq would send []byte as bytea.
func jsonArg(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func (r *PaymentRepository) queryOne(ctx context.Context, query string, args ...any) (domain.Payment, error) {
	p, err := scanPayment(r.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Payment{}, domain.ErrPaymentNotFound
		}
		return domain.Payment{}, err
	}
	return p, nil
}

func (r *PaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO payments (id, order_id, amount, method, status, gateway_transaction_id, gateway_response,
			paid_at, refunded_at, failure_reason, refund_amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7::jsonb, $8, $9, $10, $11, $12, $13)
	`, p.ID, p.OrderID, p.Amount, p.Method, p.Status, p.GatewayTransactionID, jsonArg(p.GatewayResponse),
		p.PaidAt, p.RefundedAt, p.FailureReason, p.RefundAmount, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r *PaymentRepository) Get(ctx context.Context, id string) (domain.Payment, error) {
	return r.queryOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
}

func (r *PaymentRepository) GetByOrder(ctx context.Context, orderID string) (domain.Payment, error) {
	return r.queryOne(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE order_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, orderID)
}

func (r *PaymentRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE order_id = $1
		ORDER BY created_at DESC
	`, orderID)
	if err != nil {
		return nil, err
	}
	return collectPayments(rows)
}

func (r *PaymentRepository) MarkSuccess(ctx context.Context, id, gatewayTransactionID string, raw json.RawMessage, paidAt time.Time) (domain.Payment, error) {
	p, err := r.queryOne(ctx, `
		UPDATE payments SET
			status = $2,
			gateway_transaction_id = NULLIF($3, ''),
			gateway_response = $4::jsonb,
			paid_at = $5,
			updated_at = $5
		WHERE id = $1 AND status <> $2
		RETURNING `+paymentColumns,
		id, domain.PaymentStatusSuccess, gatewayTransactionID, jsonArg(raw), paidAt)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, domain.ErrPaymentNotFound) {
		return domain.Payment{}, err
	}

	existing, err := r.Get(ctx, id)
	if err != nil {
		return domain.Payment{}, err
	}
	return existing, domain.ErrAlreadyProcessed
}

func (r *PaymentRepository) Update(ctx context.Context, id string, u domain.PaymentUpdate, at time.Time) (domain.Payment, error) {
	return r.queryOne(ctx, `
		UPDATE payments SET
			status = $2::text,
			failure_reason = $3,
			refund_amount = $4,
			paid_at = CASE WHEN $2::text = 'SUCCESS' THEN COALESCE(paid_at, $5) ELSE paid_at END,
			refunded_at = CASE WHEN $2::text = 'REFUNDED' THEN $5 ELSE refunded_at END,
			updated_at = $5
		WHERE id = $1
		RETURNING `+paymentColumns,
		id, u.Status, u.FailureReason, u.RefundAmount, at)
}

func (r *PaymentRepository) DeleteByOrder(ctx context.Context, orderID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM payments WHERE order_id = $1`, orderID)
	return err
}

func (r *PaymentRepository) List(ctx context.Context, f domain.PaymentFilter) ([]domain.Payment, int, error) {
	var w where
	if f.Status != "" {
		w.add("status = ?", f.Status)
	}
	if f.Method != "" {
		w.add("method = ?", f.Method)
	}

	var total int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM payments`+w.sql(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + paymentColumns + ` FROM payments` + w.sql() +
		` ORDER BY created_at DESC LIMIT ` + w.next(f.PageSize) + ` OFFSET ` + w.next(f.Offset())
	rows, err := r.q.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, 0, err
	}
	payments, err := collectPayments(rows)
	if err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

func collectPayments(rows *sql.Rows) ([]domain.Payment, error) {
	defer func() { _ = rows.Close() }()

	payments := []domain.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return payments, nil
}
