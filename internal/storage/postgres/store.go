package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/joao-fontenele/account-storefront/internal/domain"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

type repositories struct {
	accounts *AccountRepository
	orders   *OrderRepository
	payments *PaymentRepository
}

func newRepositories(q queryer, inTx bool) repositories {
	return repositories{
		accounts: &AccountRepository{q: q, inTx: inTx},
		orders:   &OrderRepository{q: q},
		payments: &PaymentRepository{q: q},
	}
}

func (r repositories) Accounts() domain.AccountRepository { return r.accounts }
func (r repositories) Orders() domain.OrderRepository     { return r.orders }
func (r repositories) Payments() domain.PaymentRepository { return r.payments }

type Store struct {
	repositories
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		repositories: newRepositories(db, false),
		db:           db,
	}
}

// Atomic runs fn inside a READ COMMITTED transaction. Account rows fetched
// with GetForUpdate stay locked until commit, which serialises purchases of
// the same account.
func (s *Store) Atomic(ctx context.Context, fn func(tx domain.Repositories) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(newRepositories(tx, true)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isUniqueViolation(err error, constraint string) bool {
	return hasCode(err, uniqueViolation, constraint)
}

func isForeignKeyViolation(err error) bool {
	return hasCode(err, foreignKeyViolation, "")
}

func hasCode(err error, code, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return string(pqErr.Code) == code && (constraint == "" || pqErr.Constraint == constraint)
}

// where accumulates AND-ed conditions with positional arguments.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, strings.ReplaceAll(cond, "?", fmt.Sprintf("$%d", len(w.args))))
}

func (w *where) sql() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// next returns the placeholder for the next positional argument.
func (w *where) next(arg any) string {
	w.args = append(w.args, arg)
	return fmt.Sprintf("$%d", len(w.args))
}

func statusStrings[S ~string](statuses []S) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
