package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joao-fontenele/account-storefront/internal/domain"
)

type orderRepository struct {
	v view
}

func isActive(s domain.OrderStatus) bool {
	return slices.Contains(domain.ActiveOrderStatuses, s)
}

func (r orderRepository) Create(_ context.Context, order *domain.Order) error {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	return r.v.write(func(st *state) error {
		for _, o := range st.orders {
			if o.OrderNumber == order.OrderNumber {
				return domain.ErrOrderNumberTaken
			}
			if isActive(order.Status) && o.AccountID == order.AccountID && isActive(o.Status) {
				return domain.ErrAccountUnavailable
			}
		}
		st.orders[order.ID] = *order
		return nil
	})
}

func (r orderRepository) Get(_ context.Context, id string) (domain.Order, error) {
	var out domain.Order
	err := r.v.read(func(st *state) error {
		o, ok := st.orders[id]
		if !ok {
			return domain.ErrOrderNotFound
		}
		out = o
		return nil
	})
	return out, err
}

func (r orderRepository) GetByNumber(_ context.Context, orderNumber string) (domain.Order, error) {
	o := r.newest(func(o domain.Order) bool { return o.OrderNumber == orderNumber })
	if o == nil {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return *o, nil
}

func (r orderRepository) newest(match func(domain.Order) bool) *domain.Order {
	var found []domain.Order
	_ = r.v.read(func(st *state) error {
		for _, o := range st.orders {
			if match(o) {
				found = append(found, o)
			}
		}
		return nil
	})
	if len(found) == 0 {
		return nil
	}
	sortOrders(found, "", false)
	return &found[0]
}

func (r orderRepository) FindPending(_ context.Context, userID, accountID string) (*domain.Order, error) {
	return r.newest(func(o domain.Order) bool {
		return o.UserID == userID && o.AccountID == accountID && o.Status == domain.OrderStatusPending
	}), nil
}

func (r orderRepository) FindActiveByAccount(_ context.Context, accountID string) (*domain.Order, error) {
	return r.newest(func(o domain.Order) bool {
		return o.AccountID == accountID && isActive(o.Status)
	}), nil
}

func (r orderRepository) Latest(_ context.Context, userID, orderNumber, accountID string) (*domain.Order, error) {
	return r.newest(func(o domain.Order) bool {
		return o.UserID == userID &&
			(orderNumber == "" || o.OrderNumber == orderNumber) &&
			(accountID == "" || o.AccountID == accountID)
	}), nil
}

func (r orderRepository) CountPendingSince(_ context.Context, userID string, since time.Time) (int, error) {
	n := 0
	_ = r.v.read(func(st *state) error {
		for _, o := range st.orders {
			if o.UserID == userID && o.Status == domain.OrderStatusPending && !o.CreatedAt.Before(since) {
				n++
			}
		}
		return nil
	})
	return n, nil
}

func (r orderRepository) CountByAccount(_ context.Context, accountID string, statuses []domain.OrderStatus) (int, error) {
	n := 0
	_ = r.v.read(func(st *state) error {
		for _, o := range st.orders {
			if o.AccountID == accountID && slices.Contains(statuses, o.Status) {
				n++
			}
		}
		return nil
	})
	return n, nil
}

func (r orderRepository) Transition(_ context.Context, id string, t domain.OrderTransition) (domain.Order, error) {
	var out domain.Order
	err := r.v.write(func(st *state) error {
		o, ok := st.orders[id]
		if !ok {
			return domain.ErrOrderNotFound
		}
		if !slices.Contains(t.From, o.Status) {
			return domain.ErrInvalidTransition
		}
		o.Status = t.To
		if t.Notes != "" {
			o.Notes = t.Notes
		}
		if t.DeliveredAt != nil {
			d := *t.DeliveredAt
			o.DeliveredAt = &d
		}
		o.UpdatedAt = t.At
		st.orders[id] = o
		out = o
		return nil
	})
	return out, err
}

func (r orderRepository) Delete(_ context.Context, id string) error {
	return r.v.write(func(st *state) error {
		if _, ok := st.orders[id]; !ok {
			return domain.ErrOrderNotFound
		}
		delete(st.orders, id)
		for pid, p := range st.payments {
			if p.OrderID == id {
				delete(st.payments, pid)
			}
		}
		return nil
	})
}

func (r orderRepository) List(_ context.Context, f domain.OrderFilter) ([]domain.Order, int, error) {
	var matched []domain.Order
	_ = r.v.read(func(st *state) error {
		for _, o := range st.orders {
			if f.UserID != "" && o.UserID != f.UserID {
				continue
			}
			if f.Status != "" && o.Status != f.Status {
				continue
			}
			if f.Search != "" && !matchesOrderSearch(o, st.accounts[o.AccountID], f.Search) {
				continue
			}
			matched = append(matched, o)
		}
		return nil
	})

	sortOrders(matched, f.SortBy, f.Ascending)
	return page(matched, f.Offset(), f.PageSize), len(matched), nil
}

func matchesOrderSearch(o domain.Order, a domain.Account, search string) bool {
	q := strings.ToLower(search)
	for _, field := range []string{o.OrderNumber, o.CustomerName, o.CustomerEmail, a.Rank} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

func sortOrders(orders []domain.Order, sortBy string, ascending bool) {
	less := func(a, b domain.Order) bool {
		switch sortBy {
		case "amount":
			if a.Amount != b.Amount {
				return a.Amount < b.Amount
			}
		case "status":
			if a.Status != b.Status {
				return a.Status < b.Status
			}
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	}
	sort.Slice(orders, func(i, j int) bool {
		if ascending {
			return less(orders[i], orders[j])
		}
		return less(orders[j], orders[i])
	})
}
