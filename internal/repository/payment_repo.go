package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/watchcoin/backend/internal/apperror"
	"github.com/watchcoin/backend/internal/models"
)

const paymentColumns = `id, user_id, provider, order_ref, provider_ref, package_id, coins, amount_usd,
	status, checkout_url, created_at, completed_at`

type PaymentRepo struct {
	pool *pgxpool.Pool
}

func NewPaymentRepo(pool *pgxpool.Pool) *PaymentRepo {
	return &PaymentRepo{pool: pool}
}

func scanPayment(row pgx.Row) (*models.Payment, error) {
	var p models.Payment
	err := row.Scan(&p.ID, &p.UserID, &p.Provider, &p.OrderRef, &p.ProviderRef, &p.PackageID, &p.Coins, &p.AmountUSD,
		&p.Status, &p.CheckoutURL, &p.CreatedAt, &p.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepo) Create(ctx context.Context, p *models.Payment) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO payments (id, user_id, provider, order_ref, package_id, coins, amount_usd, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, p.ID, p.UserID, p.Provider, p.OrderRef, p.PackageID, p.Coins, p.AmountUSD, p.Status).Scan(&p.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// AttachCheckout records the provider's reference and hosted checkout URL.
func (r *PaymentRepo) AttachCheckout(ctx context.Context, id uuid.UUID, providerRef, url string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payments SET provider_ref = $2, checkout_url = $3 WHERE id = $1 AND status = 'pending'
	`, id, providerRef, url)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("attach checkout: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("payment", id.String())
	}
	return nil
}

func (r *PaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	p, err := scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
	if isNoRows(err) {
		return nil, apperror.NotFound("payment", id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

func (r *PaymentRepo) GetByProviderRef(ctx context.Context, provider, ref string) (*models.Payment, error) {
	p, err := scanPayment(r.pool.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE provider = $1 AND provider_ref = $2`, provider, ref))
	if isNoRows(err) {
		return nil, apperror.NotFound("payment", ref)
	}
	if err != nil {
		return nil, fmt.Errorf("get payment by ref: %w", err)
	}
	return p, nil
}

func (r *PaymentRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Payment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+paymentColumns+` FROM payments WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var out []models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// MarkCompleted moves a pending payment to completed. The second caller for
// the same payment gets ok=false, so coins are credited at most once.
func (r *PaymentRepo) MarkCompleted(ctx context.Context, tx pgx.Tx, provider, ref string, at time.Time) (*models.Payment, bool, error) {
	p, err := scanPayment(tx.QueryRow(ctx, `
		UPDATE payments SET status = 'completed', completed_at = $3
		WHERE provider = $1 AND provider_ref = $2 AND status = 'pending'
		RETURNING `+paymentColumns, provider, ref, at))
	if isNoRows(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("complete payment: %w", err)
	}
	return p, true, nil
}

func (r *PaymentRepo) MarkFailed(ctx context.Context, provider, ref string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payments SET status = 'failed' WHERE provider = $1 AND provider_ref = $2 AND status = 'pending'
	`, provider, ref)
	if err != nil {
		return false, fmt.Errorf("fail payment: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkFailedByID fails a pending payment whose checkout was never created.
func (r *PaymentRepo) MarkFailedByID(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE payments SET status = 'failed' WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return fmt.Errorf("fail payment: %w", err)
	}
	return nil
}
