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

const accountColumns = `id, status, price, rank, heroes_count, skins_count, level, matches,
	win_rate, reputation, description, images, character_skins,
	game_username, game_password, login_method, additional_info, created_at, updated_at`

type AccountRepository struct {
	q    queryer
	inTx bool
}

func scanAccount(s scanner) (domain.Account, error) {
	var a domain.Account
	err := s.Scan(&a.ID, &a.Status, &a.Price, &a.Rank, &a.HeroesCount, &a.SkinsCount, &a.Level, &a.Matches,
		&a.WinRate, &a.Reputation, &a.Description, pq.Array(&a.Images), pq.Array(&a.CharacterSkins),
		&a.Sealed.GameUsername, &a.Sealed.GamePassword, &a.Sealed.LoginMethod, &a.Sealed.AdditionalInfo,
		&a.CreatedAt, &a.UpdatedAt)
	if a.Images == nil {
		a.Images = []string{}
	}
	if a.CharacterSkins == nil {
		a.CharacterSkins = []string{}
	}
	return a, err
}

func (r *AccountRepository) Get(ctx context.Context, id string) (domain.Account, error) {
	return r.get(ctx, id, "")
}

func (r *AccountRepository) GetForUpdate(ctx context.Context, id string) (domain.Account, error) {
	if !r.inTx {
		return r.get(ctx, id, "")
	}
	return r.get(ctx, id, " FOR UPDATE")
}

func (r *AccountRepository) get(ctx context.Context, id, suffix string) (domain.Account, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`+suffix, id)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Account{}, domain.ErrAccountNotFound
		}
		return domain.Account{}, err
	}
	return a, nil
}

func (r *AccountRepository) List(ctx context.Context, f domain.AccountFilter) ([]domain.Account, int, error) {
	var w where
	if f.Query != "" {
		p := w.next("%" + f.Query + "%")
		w.conds = append(w.conds, "(description ILIKE "+p+" OR rank ILIKE "+p+")")
	}
	if f.Rank != "" {
		w.add("rank = ?", f.Rank)
	}
	if f.Status != "" {
		w.add("status = ?", f.Status)
	}
	if f.MinPrice > 0 {
		w.add("price >= ?", f.MinPrice)
	}
	if f.MaxPrice > 0 {
		w.add("price <= ?", f.MaxPrice)
	}
	if f.MinHeroes > 0 {
		w.add("heroes_count >= ?", f.MinHeroes)
	}
	if f.MinSkins > 0 {
		w.add("skins_count >= ?", f.MinSkins)
	}

	var total int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`+w.sql(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + accountColumns + ` FROM accounts` + w.sql() +
		` ORDER BY created_at DESC LIMIT ` + w.next(f.PageSize) + ` OFFSET ` + w.next(f.Offset())
	rows, err := r.q.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = rows.Close() }()

	accounts := []domain.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, 0, err
		}
		accounts = append(accounts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return accounts, total, nil
}

func (r *AccountRepository) Create(ctx context.Context, a *domain.Account) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`, a.ID, a.Status, a.Price, a.Rank, a.HeroesCount, a.SkinsCount, a.Level, a.Matches,
		a.WinRate, a.Reputation, a.Description, pq.Array(a.Images), pq.Array(a.CharacterSkins),
		a.Sealed.GameUsername, a.Sealed.GamePassword, a.Sealed.LoginMethod, a.Sealed.AdditionalInfo,
		a.CreatedAt, a.UpdatedAt)
	return err
}

func (r *AccountRepository) Update(ctx context.Context, a *domain.Account) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE accounts SET
			status = $2, price = $3, rank = $4, heroes_count = $5, skins_count = $6, level = $7,
			matches = $8, win_rate = $9, reputation = $10, description = $11, images = $12,
			character_skins = $13, game_username = $14, game_password = $15, login_method = $16,
			additional_info = $17, updated_at = $18
		WHERE id = $1
	`, a.ID, a.Status, a.Price, a.Rank, a.HeroesCount, a.SkinsCount, a.Level,
		a.Matches, a.WinRate, a.Reputation, a.Description, pq.Array(a.Images),
		pq.Array(a.CharacterSkins), a.Sealed.GameUsername, a.Sealed.GamePassword, a.Sealed.LoginMethod,
		a.Sealed.AdditionalInfo, a.UpdatedAt)
	if err != nil {
		return err
	}
	return expectOne(result, domain.ErrAccountNotFound)
}

func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if isForeignKeyViolation(err) {
		return domain.ErrAccountInUse
	}
	if err != nil {
		return err
	}
	return expectOne(result, domain.ErrAccountNotFound)
}

func (r *AccountRepository) SetStatus(ctx context.Context, id string, status domain.AccountStatus, at time.Time) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE accounts SET status = $2, updated_at = $3
		WHERE id = $1
	`, id, status, at)
	if err != nil {
		return err
	}
	return expectOne(result, domain.ErrAccountNotFound)
}

func expectOne(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}
