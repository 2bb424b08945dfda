package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrPaymentNotFound  = errors.New("payment not found")
	ErrDuplicateInvoice = errors.New("duplicate invoice")
)

type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusExpired Status = "expired"
)

// Terminal reports whether s can no longer change.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusExpired
}

type Payment struct {
	ID        uuid.UUID
	UserID    int64
	PackageID string
	Attempts  int64
	Amount    decimal.Decimal
	Asset     string
	InvoiceID string
	PayURL    string
	Status    Status
	CreatedAt time.Time
	PaidAt    *time.Time
}

type Payments interface {
	Insert(ctx context.Context, p Payment) error
	GetByInvoice(ctx context.Context, invoiceID string) (Payment, error)
	// MarkPaid moves a pending payment to paid. ok is false, with no change, when the
	// payment was not pending.
	MarkPaid(ctx context.Context, invoiceID string, at time.Time) (p Payment, ok bool, err error)
	// MarkExpired moves a pending payment to expired and reports whether it did.
	MarkExpired(ctx context.Context, invoiceID string) (bool, error)
	ListPending(ctx context.Context, createdBefore time.Time, limit int) ([]Payment, error)
	SumPaid(ctx context.Context) (decimal.Decimal, error)
}
