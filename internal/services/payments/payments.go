package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/fastprodman/stargiver/internal/infra/keylock"
	"github.com/fastprodman/stargiver/internal/metrics"
	"github.com/fastprodman/stargiver/internal/providers/cryptopay"
	"github.com/fastprodman/stargiver/internal/repos/payments"
	"github.com/fastprodman/stargiver/internal/repos/users"
	"github.com/fastprodman/stargiver/internal/store"
)

// Provider is the remote invoice API.
type Provider interface {
	CreateInvoice(ctx context.Context, req cryptopay.CreateInvoiceRequest) (cryptopay.Invoice, error)
	GetInvoice(ctx context.Context, invoiceID string) (cryptopay.Invoice, error)
}

// Ledger credits purchased attempts inside the settlement's unit of work.
type Ledger interface {
	AdjustAttemptsIn(ctx context.Context, r store.Repos, userID int64, delta int64) (int64, error)
}

// Service owns the payment lifecycle: pending to paid exactly once, or pending to expired.
type Service struct {
	store    store.Store
	ledger   Ledger
	provider Provider
	cfg      Config
	locks    *keylock.Locker[string]
	metrics  *metrics.Metrics
	now      func() time.Time
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(st store.Store, l Ledger, p Provider, cfg Config, opts ...Option) *Service {
	s := &Service{
		store:    st,
		ledger:   l,
		provider: p,
		cfg:      cfg,
		locks:    keylock.New[string](),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Service) Packages() []Package {
	return slices.Clone(s.cfg.Packages)
}

func (s *Service) Package(id string) (Package, error) {
	i := slices.IndexFunc(s.cfg.Packages, func(p Package) bool { return p.ID == id })
	if i < 0 {
		return Package{}, fmt.Errorf("package %q: %w", id, ErrUnknownPackage)
	}

	return s.cfg.Packages[i], nil
}

// RequestPurchase opens an invoice for the package and records the pending payment
// before handing the pay link back.
func (s *Service) RequestPurchase(ctx context.Context, userID int64, packageID string) (Invoice, error) {
	pkg, err := s.Package(packageID)
	if err != nil {
		return Invoice{}, err
	}

	err = s.store.View(ctx, func(ctx context.Context, r store.Repos) error {
		ok, err := r.Users.Exists(ctx, userID)
		if err != nil {
			return err
		}

		if !ok {
			return users.ErrUserNotFound
		}

		return nil
	})
	if err != nil {
		return Invoice{}, fmt.Errorf("request purchase: %w", err)
	}

	req := cryptopay.CreateInvoiceRequest{
		Asset:         s.cfg.Asset,
		Amount:        pkg.Price.StringFixed(2),
		Description:   fmt.Sprintf("Purchase of %d attempts", pkg.Attempts),
		HiddenMessage: fmt.Sprintf("+%d attempts", pkg.Attempts),
		Payload:       fmt.Sprintf("%d_%d", userID, pkg.Attempts),
		ExpiresIn:     int(s.cfg.InvoiceTTL / time.Second),
	}

	if s.cfg.PaidBtnURL != "" {
		req.PaidBtnName = "callback"
		req.PaidBtnURL = s.cfg.PaidBtnURL
	}

	inv, err := s.provider.CreateInvoice(ctx, req)
	if err != nil {
		return Invoice{}, fmt.Errorf("%w: create invoice: %w", ErrPaymentProvider, err)
	}

	now := s.now().UTC()
	invoiceID := strconv.FormatInt(inv.InvoiceID, 10)

	p := payments.Payment{
		ID:        uuid.New(),
		UserID:    userID,
		PackageID: pkg.ID,
		Attempts:  pkg.Attempts,
		Amount:    pkg.Price,
		Asset:     s.cfg.Asset,
		InvoiceID: invoiceID,
		PayURL:    inv.URL(),
		Status:    payments.StatusPending,
		CreatedAt: now,
	}

	err = s.store.Atomic(ctx, func(ctx context.Context, r store.Repos) error {
		return r.Payments.Insert(ctx, p)
	})
	if err != nil {
		slog.ErrorContext(ctx, "issued invoice was not recorded",
			"user_id", userID, "invoice_id", invoiceID, "error", err)

		return Invoice{}, fmt.Errorf("record payment: %w", err)
	}

	slog.InfoContext(ctx, "invoice created", "user_id", userID, "invoice_id", invoiceID, "package", pkg.ID)

	return Invoice{
		InvoiceID: invoiceID,
		PayURL:    p.PayURL,
		Package:   pkg,
		ExpiresAt: now.Add(s.cfg.InvoiceTTL),
	}, nil
}

func (s *Service) lookup(ctx context.Context, invoiceID string) (Payment, error) {
	var p Payment

	err := s.store.View(ctx, func(ctx context.Context, r store.Repos) error {
		var err error
		p, err = r.Payments.GetByInvoice(ctx, invoiceID)

		return err
	})
	if errors.Is(err, payments.ErrPaymentNotFound) {
		return Payment{}, fmt.Errorf("invoice %s: %w", invoiceID, ErrUnknownInvoice)
	}

	if err != nil {
		return Payment{}, fmt.Errorf("lookup invoice %s: %w", invoiceID, err)
	}

	return p, nil
}

// PollAndSettle asks the provider about the invoice and applies the answer. It is
// safe to call any number of times and concurrently: attempts are credited once.
func (s *Service) PollAndSettle(ctx context.Context, invoiceID string) (SettlementResult, error) {
	res, err := s.pollAndSettle(ctx, invoiceID)
	if err == nil {
		s.metrics.Settlement(string(res.Status))
	}

	return res, err
}

func (s *Service) pollAndSettle(ctx context.Context, invoiceID string) (SettlementResult, error) {
	p, err := s.lookup(ctx, invoiceID)
	if err != nil {
		return SettlementResult{}, err
	}

	switch p.Status {
	case payments.StatusPaid:
		return SettlementResult{Status: StatusAlreadySettled, Payment: p}, nil
	case payments.StatusExpired:
		return SettlementResult{Status: StatusExpired, Payment: p}, nil
	case payments.StatusPending:
	}

	// No lock is held across the provider round trip.
	inv, err := s.provider.GetInvoice(ctx, invoiceID)
	if err != nil {
		return SettlementResult{}, fmt.Errorf("%w: get invoice %s: %w", ErrPaymentProvider, invoiceID, err)
	}

	switch inv.Status {
	case cryptopay.StatusActive:
		return SettlementResult{Status: StatusStillPending, Payment: p}, nil
	case cryptopay.StatusPaid:
		return s.settle(ctx, invoiceID)
	default:
		return s.expire(ctx, invoiceID)
	}
}

func (s *Service) settle(ctx context.Context, invoiceID string) (SettlementResult, error) {
	unlock := s.locks.Lock(invoiceID)
	defer unlock()

	var res SettlementResult

	err := s.store.Atomic(ctx, func(ctx context.Context, r store.Repos) error {
		p, ok, err := r.Payments.MarkPaid(ctx, invoiceID, s.now().UTC())
		if err != nil {
			return err
		}

		if !ok {
			res.Status = StatusAlreadySettled
			res.Payment, err = r.Payments.GetByInvoice(ctx, invoiceID)

			return err
		}

		res.Status = StatusSettled
		res.Payment = p

		res.Balance, err = s.ledger.AdjustAttemptsIn(ctx, r, p.UserID, p.Attempts)

		return err
	})
	if err != nil {
		return SettlementResult{}, fmt.Errorf("settle invoice %s: %w", invoiceID, err)
	}

	if res.Status == StatusSettled {
		slog.InfoContext(ctx, "payment settled",
			"invoice_id", invoiceID, "user_id", res.Payment.UserID, "attempts", res.Payment.Attempts)
	}

	return res, nil
}

func (s *Service) expire(ctx context.Context, invoiceID string) (SettlementResult, error) {
	unlock := s.locks.Lock(invoiceID)
	defer unlock()

	var res SettlementResult

	err := s.store.Atomic(ctx, func(ctx context.Context, r store.Repos) error {
		_, err := r.Payments.MarkExpired(ctx, invoiceID)
		if err != nil {
			return err
		}

		res.Payment, err = r.Payments.GetByInvoice(ctx, invoiceID)

		return err
	})
	if err != nil {
		return SettlementResult{}, fmt.Errorf("expire invoice %s: %w", invoiceID, err)
	}

	res.Status = StatusExpired
	if res.Payment.Status == payments.StatusPaid {
		res.Status = StatusAlreadySettled
	}

	return res, nil
}

// Reconcile polls pending payments older than the grace period through the same
// path as a user's "check payment" tap.
func (s *Service) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var (
		pending []Payment
		report  ReconcileReport
	)

	before := s.now().UTC().Add(-s.cfg.ReconcileGrace)

	err := s.store.View(ctx, func(ctx context.Context, r store.Repos) error {
		var err error
		pending, err = r.Payments.ListPending(ctx, before, s.cfg.ReconcileBatch)

		return err
	})
	if err != nil {
		return report, fmt.Errorf("list pending payments: %w", err)
	}

	for _, p := range pending {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		report.Checked++

		res, err := s.PollAndSettle(ctx, p.InvoiceID)
		if err != nil {
			report.Failed++

			slog.WarnContext(ctx, "reconcile poll failed", "invoice_id", p.InvoiceID, "error", err)

			continue
		}

		switch res.Status {
		case StatusSettled:
			report.Settled++
		case StatusExpired:
			report.Expired++
		case StatusAlreadySettled, StatusStillPending:
		}
	}

	return report, nil
}
