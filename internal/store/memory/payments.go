package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fastprodman/stargiver/internal/repos/payments"
	"github.com/fastprodman/stargiver/internal/store"
)

type paymentsRepo struct {
	st *state
	ro bool
}

func (r *paymentsRepo) Insert(_ context.Context, p payments.Payment) error {
	if r.ro {
		return store.ErrReadOnly
	}

	if _, ok := r.st.payments[p.InvoiceID]; ok {
		return payments.ErrDuplicateInvoice
	}

	r.st.payments[p.InvoiceID] = p

	return nil
}

func (r *paymentsRepo) GetByInvoice(_ context.Context, invoiceID string) (payments.Payment, error) {
	p, ok := r.st.payments[invoiceID]
	if !ok {
		return payments.Payment{}, payments.ErrPaymentNotFound
	}

	return p, nil
}

func (r *paymentsRepo) MarkPaid(_ context.Context, invoiceID string, at time.Time) (payments.Payment, bool, error) {
	if r.ro {
		return payments.Payment{}, false, store.ErrReadOnly
	}

	p, ok := r.st.payments[invoiceID]
	if !ok || p.Status != payments.StatusPending {
		return payments.Payment{}, false, nil
	}

	paidAt := at
	p.Status = payments.StatusPaid
	p.PaidAt = &paidAt
	r.st.payments[invoiceID] = p

	return p, true, nil
}

func (r *paymentsRepo) MarkExpired(_ context.Context, invoiceID string) (bool, error) {
	if r.ro {
		return false, store.ErrReadOnly
	}

	p, ok := r.st.payments[invoiceID]
	if !ok || p.Status != payments.StatusPending {
		return false, nil
	}

	p.Status = payments.StatusExpired
	r.st.payments[invoiceID] = p

	return true, nil
}

func (r *paymentsRepo) ListPending(_ context.Context, createdBefore time.Time, limit int) ([]payments.Payment, error) {
	var out []payments.Payment

	for _, p := range r.st.payments {
		if p.Status == payments.StatusPending && !p.CreatedAt.After(createdBefore) {
			out = append(out, p)
		}
	}

	slices.SortFunc(out, func(a, b payments.Payment) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.InvoiceID, b.InvoiceID))
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

func (r *paymentsRepo) SumPaid(context.Context) (decimal.Decimal, error) {
	sum := decimal.Zero

	for _, p := range r.st.payments {
		if p.Status == payments.StatusPaid {
			sum = sum.Add(p.Amount)
		}
	}

	return sum, nil
}
