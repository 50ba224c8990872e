package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/joao-fontenele/account-storefront/internal/domain"
)

const (
	orderColumns = `o.id, o.order_number, o.user_id, o.account_id, o.amount, o.status, o.customer_name,
	o.customer_email, o.delivered_at, o.notes, o.created_at, o.updated_at`

	activeOrderConstraint = "orders_account_active_uidx"
	orderNumberConstraint = "orders_order_number_key"
)

var orderSortColumns = map[string]string{
	"":          "o.created_at",
	"createdAt": "o.created_at",
	"amount":    "o.amount",
	"status":    "o.status",
}

type OrderRepository struct {
	q queryer
}

func scanOrder(s scanner) (domain.Order, error) {
	var o domain.Order
	var deliveredAt sql.NullTime
	err := s.Scan(&o.ID, &o.OrderNumber, &o.UserID, &o.AccountID, &o.Amount, &o.Status, &o.CustomerName,
		&o.CustomerEmail, &deliveredAt, &o.Notes, &o.CreatedAt, &o.UpdatedAt)
	if deliveredAt.Valid {
		t := deliveredAt.Time
		o.DeliveredAt = &t
	}
	return o, err
}

func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO orders (id, order_number, user_id, account_id, amount, status, customer_name,
			customer_email, delivered_at, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, order.ID, order.OrderNumber, order.UserID, order.AccountID, order.Amount, order.Status,
		order.CustomerName, order.CustomerEmail, order.DeliveredAt, order.Notes, order.CreatedAt, order.UpdatedAt)
	switch {
	case isUniqueViolation(err, activeOrderConstraint):
		return domain.ErrAccountUnavailable
	case isUniqueViolation(err, orderNumberConstraint):
		return domain.ErrOrderNumberTaken
	}
	return err
}

func (r *OrderRepository) queryOne(ctx context.Context, query string, args ...any) (*domain.Order, error) {
	o, err := scanOrder(r.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	o, err := r.queryOne(ctx, `SELECT `+orderColumns+` FROM orders o WHERE o.id = $1`, id)
	if err != nil {
		return domain.Order{}, err
	}
	if o == nil {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return *o, nil
}

func (r *OrderRepository) GetByNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	o, err := r.queryOne(ctx, `SELECT `+orderColumns+` FROM orders o WHERE o.order_number = $1`, orderNumber)
	if err != nil {
		return domain.Order{}, err
	}
	if o == nil {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return *o, nil
}

func (r *OrderRepository) FindPending(ctx context.Context, userID, accountID string) (*domain.Order, error) {
	return r.queryOne(ctx, `
		SELECT `+orderColumns+`
		FROM orders o
		WHERE o.user_id = $1 AND o.account_id = $2 AND o.status = $3
		ORDER BY o.created_at DESC
		LIMIT 1
	`, userID, accountID, domain.OrderStatusPending)
}

func (r *OrderRepository) FindActiveByAccount(ctx context.Context, accountID string) (*domain.Order, error) {
	return r.queryOne(ctx, `
		SELECT `+orderColumns+`
		FROM orders o
		WHERE o.account_id = $1 AND o.status = ANY($2)
		ORDER BY o.created_at DESC
		LIMIT 1
	`, accountID, pq.Array(statusStrings(domain.ActiveOrderStatuses)))
}

func (r *OrderRepository) Latest(ctx context.Context, userID, orderNumber, accountID string) (*domain.Order, error) {
	var w where
	w.add("o.user_id = ?", userID)
	if orderNumber != "" {
		w.add("o.order_number = ?", orderNumber)
	}
	if accountID != "" {
		w.add("o.account_id = ?", accountID)
	}
	return r.queryOne(ctx, `SELECT `+orderColumns+` FROM orders o`+w.sql()+` ORDER BY o.created_at DESC LIMIT 1`, w.args...)
}

func (r *OrderRepository) CountPendingSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM orders
		WHERE user_id = $1 AND status = $2 AND created_at >= $3
	`, userID, domain.OrderStatusPending, since).Scan(&n)
	return n, err
}

func (r *OrderRepository) CountByAccount(ctx context.Context, accountID string, statuses []domain.OrderStatus) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM orders
		WHERE account_id = $1 AND status = ANY($2)
	`, accountID, pq.Array(statusStrings(statuses))).Scan(&n)
	return n, err
}

func (r *OrderRepository) Transition(ctx context.Context, id string, t domain.OrderTransition) (domain.Order, error) {
	o, err := r.queryOne(ctx, `
		UPDATE orders o SET
			status = $2,
			notes = COALESCE(NULLIF($3::text, ''), o.notes),
			delivered_at = COALESCE($4::timestamptz, o.delivered_at),
			updated_at = $5
		WHERE o.id = $1 AND o.status = ANY($6)
		RETURNING `+orderColumns,
		id, t.To, t.Notes, t.DeliveredAt, t.At, pq.Array(statusStrings(t.From)))
	if err != nil {
		return domain.Order{}, err
	}
	if o != nil {
		return *o, nil
	}

	if _, err := r.Get(ctx, id); err != nil {
		return domain.Order{}, err
	}
	return domain.Order{}, domain.ErrInvalidTransition
}

func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectOne(result, domain.ErrOrderNotFound)
}

func (r *OrderRepository) List(ctx context.Context, f domain.OrderFilter) ([]domain.Order, int, error) {
	var w where
	if f.UserID != "" {
		w.add("o.user_id = ?", f.UserID)
	}
	if f.Status != "" {
		w.add("o.status = ?", f.Status)
	}
	if f.Search != "" {
		p := w.next("%" + f.Search + "%")
		w.conds = append(w.conds, "(o.order_number ILIKE "+p+" OR o.customer_name ILIKE "+p+
			" OR o.customer_email ILIKE "+p+" OR a.rank ILIKE "+p+")")
	}

	from := ` FROM orders o LEFT JOIN accounts a ON a.id = o.account_id`

	var total int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*)`+from+w.sql(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sortCol, ok := orderSortColumns[f.SortBy]
	if !ok {
		sortCol = orderSortColumns[""]
	}
	dir := " DESC"
	if f.Ascending {
		dir = " ASC"
	}

	query := `SELECT ` + orderColumns + from + w.sql() + ` ORDER BY ` + sortCol + dir +
		` LIMIT ` + w.next(f.PageSize) + ` OFFSET ` + w.next(f.Offset())
	rows, err := r.q.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = rows.Close() }()

	orders := []domain.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}
