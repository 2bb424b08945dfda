package payments

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fastprodman/stargiver/internal/config"
	"github.com/fastprodman/stargiver/internal/repos/payments"
)

var (
	ErrUnknownPackage  = errors.New("unknown package")
	ErrUnknownInvoice  = errors.New("unknown invoice")
	ErrPaymentProvider = errors.New("payment provider error")
)

type Payment = payments.Payment

// Package is one entry of the fixed price table.
type Package struct {
	ID       string
	Attempts int64
	Price    decimal.Decimal
}

type Invoice struct {
	InvoiceID string
	PayURL    string
	Package   Package
	ExpiresAt time.Time
}

type SettlementStatus string

const (
	StatusSettled        SettlementStatus = "settled"
	StatusAlreadySettled SettlementStatus = "already_settled"
	StatusStillPending   SettlementStatus = "still_pending"
	StatusExpired        SettlementStatus = "expired"
)

type SettlementResult struct {
	Status  SettlementStatus
	Payment Payment
	// Balance is the attempts balance right after the credit; set only for StatusSettled.
	Balance int64
}

type ReconcileReport struct {
	Checked int
	Settled int
	Expired int
	Failed  int
}

type Config struct {
	Packages       []Package
	Asset          string
	InvoiceTTL     time.Duration
	ReconcileGrace time.Duration
	ReconcileBatch int
	// PaidBtnURL is where the provider's "paid" button sends the user; empty hides it.
	PaidBtnURL string
}

// ConfigFrom parses the price table of cfg.
func ConfigFrom(cfg config.PaymentsConfig, paidBtnURL string) (Config, error) {
	pkgs, err := ParsePackages(cfg.Packages)
	if err != nil {
		return Config{}, err
	}

	return Config{
		Packages:       pkgs,
		Asset:          cfg.Asset,
		InvoiceTTL:     cfg.InvoiceTTL,
		ReconcileGrace: cfg.ReconcileGrace,
		ReconcileBatch: cfg.ReconcileBatch,
		PaidBtnURL:     paidBtnURL,
	}, nil
}

// ParsePackages reads "<attempts>:<price>,..." into packages keyed by the attempts
// count, sorted by attempts.
func ParsePackages(raw string) ([]Package, error) {
	var pkgs []Package

	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		count, price, ok := strings.Cut(item, ":")
		if !ok {
			return nil, fmt.Errorf("package %q: want <attempts>:<price>", item)
		}

		attempts, err := strconv.ParseInt(strings.TrimSpace(count), 10, 64)
		if err != nil || attempts <= 0 {
			return nil, fmt.Errorf("package %q: bad attempts count", item)
		}

		p, err := decimal.NewFromString(strings.TrimSpace(price))
		if err != nil || !p.IsPositive() {
			return nil, fmt.Errorf("package %q: bad price", item)
		}

		id := strconv.FormatInt(attempts, 10)
		if slices.ContainsFunc(pkgs, func(x Package) bool { return x.ID == id }) {
			return nil, fmt.Errorf("package %q: duplicate", item)
		}

		pkgs = append(pkgs, Package{ID: id, Attempts: attempts, Price: p})
	}

	if len(pkgs) == 0 {
		return nil, errors.New("price table is empty")
	}

	slices.SortFunc(pkgs, func(a, b Package) int { return cmp.Compare(a.Attempts, b.Attempts) })

	return pkgs, nil
}
