package payments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fastprodman/stargiver/internal/infra/pgutils"
	"github.com/fastprodman/stargiver/internal/repos/payments"
)

var _ payments.Payments = (*paymentsRepo)(nil)

type paymentsRepo struct{ db pgutils.DBTX }

func New(db pgutils.DBTX) *paymentsRepo {
	return &paymentsRepo{db: db}
}

const paymentColumns = `id, user_id, package_id, attempts, amount, asset, invoice_id, pay_url, status, created_at, paid_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (payments.Payment, error) {
	var (
		p      payments.Payment
		status string
		paidAt sql.NullTime
	)

	err := row.Scan(&p.ID, &p.UserID, &p.PackageID, &p.Attempts, &p.Amount, &p.Asset,
		&p.InvoiceID, &p.PayURL, &status, &p.CreatedAt, &paidAt)
	if err != nil {
		return payments.Payment{}, err
	}

	p.Status = payments.Status(status)

	if paidAt.Valid {
		t := paidAt.Time
		p.PaidAt = &t
	}

	return p, nil
}

func (r *paymentsRepo) Insert(ctx context.Context, p payments.Payment) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payments (id, user_id, package_id, attempts, amount, asset, invoice_id, pay_url, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, p.ID, p.UserID, p.PackageID, p.Attempts, p.Amount, p.Asset, p.InvoiceID, p.PayURL, string(p.Status), p.CreatedAt)
	if err != nil {
		if pgutils.IsUniqueViolation(err) {
			return payments.ErrDuplicateInvoice
		}

		return fmt.Errorf("insert payment: %w", err)
	}

	return nil
}

func (r *paymentsRepo) GetByInvoice(ctx context.Context, invoiceID string) (payments.Payment, error) {
	p, err := scanPayment(r.db.QueryRowContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE invoice_id = $1
	`, invoiceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return payments.Payment{}, payments.ErrPaymentNotFound
		}

		return payments.Payment{}, fmt.Errorf("select payment: %w", err)
	}

	return p, nil
}

func (r *paymentsRepo) MarkPaid(ctx context.Context, invoiceID string, at time.Time) (payments.Payment, bool, error) {
	p, err := scanPayment(r.db.QueryRowContext(ctx, `
		UPDATE payments
		SET status = 'paid',
		    paid_at = $2
		WHERE invoice_id = $1
		  AND status = 'pending'
		RETURNING `+paymentColumns,
		invoiceID, at))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return payments.Payment{}, false, nil
		}

		return payments.Payment{}, false, fmt.Errorf("mark paid: %w", err)
	}

	return p, true, nil
}

func (r *paymentsRepo) MarkExpired(ctx context.Context, invoiceID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET status = 'expired'
		WHERE invoice_id = $1
		  AND status = 'pending'
	`, invoiceID)
	if err != nil {
		return false, fmt.Errorf("mark expired: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	return affected == 1, nil
}

func (r *paymentsRepo) ListPending(ctx context.Context, createdBefore time.Time, limit int) ([]payments.Payment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE status = 'pending'
		  AND created_at <= $1
		ORDER BY created_at
		LIMIT $2
	`, createdBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	//nolint:errcheck
	defer rows.Close()

	var out []payments.Payment

	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}

		out = append(out, p)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}

	return out, nil
}

func (r *paymentsRepo) SumPaid(ctx context.Context) (decimal.Decimal, error) {
	var sum decimal.Decimal

	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM payments WHERE status = 'paid'
	`).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum paid: %w", err)
	}

	return sum, nil
}
