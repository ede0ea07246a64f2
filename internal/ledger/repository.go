package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/watchcoin/backend/internal/apperror"
	"github.com/watchcoin/backend/internal/models"
)

var errNegativeBalance = errors.New("balance would go negative")

// Repository is the PostgreSQL Store. Balance and ledger writes run inside
// the caller's transaction.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

func (r *Repository) LockAccount(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (Account, error) {
	var a Account
	err := tx.QueryRow(ctx, `
		SELECT id, balance, status FROM users WHERE id = $1 FOR UPDATE
	`, userID).Scan(&a.UserID, &a.Balance, &a.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, apperror.NotFound("user", userID.String())
	}
	if err != nil {
		return Account{}, fmt.Errorf("lock account: %w", err)
	}
	return a, nil
}

// ApplyDelta moves the cached balance by delta, refusing to go below zero.
func (r *Repository) ApplyDelta(ctx context.Context, tx pgx.Tx, userID uuid.UUID, delta int64) (int64, error) {
	var balance int64
	err := tx.QueryRow(ctx, `
		UPDATE users SET balance = balance + $1, updated_at = now()
		WHERE id = $2 AND balance + $1 >= 0
		RETURNING balance
	`, delta, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, errNegativeBalance
	}
	if err != nil {
		return 0, fmt.Errorf("apply balance delta: %w", err)
	}
	return balance, nil
}

func (r *Repository) InsertTransaction(ctx context.Context, tx pgx.Tx, t *models.Transaction) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO transactions (id, user_id, tx_type, amount, balance_after, reason, reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, t.ID, t.UserID, t.Type, t.Amount, t.BalanceAfter, t.Reason, t.Reference).Scan(&t.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateReference
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (r *Repository) ListTransactions(ctx context.Context, userID uuid.UUID, limit int, before *time.Time) ([]models.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, tx_type, amount, balance_after, reason, reference, created_at
		FROM transactions
		WHERE user_id = $1 AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, userID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Type, &t.Amount, &t.BalanceAfter, &t.Reason, &t.Reference, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repository) Drift(ctx context.Context) ([]models.BalanceDrift, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT u.id, u.balance, COALESCE(SUM(t.amount), 0) AS ledger
		FROM users u
		LEFT JOIN transactions t ON t.user_id = u.id
		GROUP BY u.id, u.balance
		HAVING u.balance <> COALESCE(SUM(t.amount), 0)
		ORDER BY u.id
	`)
	if err != nil {
		return nil, fmt.Errorf("reconcile balances: %w", err)
	}
	defer rows.Close()

	var out []models.BalanceDrift
	for rows.Next() {
		var d models.BalanceDrift
		if err := rows.Scan(&d.UserID, &d.Balance, &d.Ledger); err != nil {
			return nil, fmt.Errorf("scan drift: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
