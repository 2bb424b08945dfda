// Package api serves the bot's operations as JSON over HTTP. The user id comes
// from the path and is not authenticated, so the API belongs on a trusted network
// behind whatever front end has verified the caller. Admin statistics are served
// by the bot only, where Telegram vouches for the sender.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fastprodman/stargiver/internal/gate"
	"github.com/fastprodman/stargiver/internal/infra/ratelimit"
	"github.com/fastprodman/stargiver/internal/services/game"
	"github.com/fastprodman/stargiver/internal/services/ledger"
	"github.com/fastprodman/stargiver/internal/services/payments"
)

type Ledger interface {
	RegisterUser(ctx context.Context, userID int64, username string, referrerID *int64) (ledger.User, ledger.Registration, error)
	Profile(ctx context.Context, userID int64) (ledger.Profile, error)
	ClaimDailyBonus(ctx context.Context, userID int64) (ledger.DailyClaim, error)
}

type Games interface {
	Tiers() []int64
	Grid() game.Grid
	Session(userID int64) (game.Session, bool)
	StartSession(ctx context.Context, userID int64, tier int64) (game.Session, error)
	PickCell(ctx context.Context, userID int64, row, col int) (game.PickResult, error)
	ExitSession(userID int64)
}

type Payments interface {
	Packages() []payments.Package
	RequestPurchase(ctx context.Context, userID int64, packageID string) (payments.Invoice, error)
	PollAndSettle(ctx context.Context, invoiceID string) (payments.SettlementResult, error)
}

type Guard interface {
	Require(ctx context.Context, userID int64) error
}

// HandlerProvider exposes the bot's operations over HTTP.
type HandlerProvider struct {
	ledger   Ledger
	games    Games
	payments Payments
	guard    Guard
	checks   *ratelimit.Limiter
}

func NewHandler(s Services) *HandlerProvider {
	checks := s.CheckLimiter
	if checks == nil {
		checks = ratelimit.PerMinute(0)
	}

	return &HandlerProvider{
		ledger:   s.Ledger,
		games:    s.Games,
		payments: s.Payments,
		guard:    s.Guard,
		checks:   checks,
	}
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps service errors onto statuses. Order matters:
// ErrNoActiveSession is also an ErrInvalidMove.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ledger.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, gate.ErrNotSubscribed):
		writeError(w, http.StatusForbidden, "channel subscription required")
	case errors.Is(err, game.ErrNoAttempts), errors.Is(err, ledger.ErrInsufficientBalance):
		writeError(w, http.StatusConflict, "no attempts left")
	case errors.Is(err, game.ErrNoActiveSession):
		writeError(w, http.StatusConflict, "no active session")
	case errors.Is(err, game.ErrInvalidMove):
		writeError(w, http.StatusUnprocessableEntity, "invalid move")
	case errors.Is(err, game.ErrUnknownTier):
		writeError(w, http.StatusBadRequest, "unknown reward tier")
	case errors.Is(err, ledger.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "invalid amount")
	case errors.Is(err, payments.ErrUnknownPackage):
		writeError(w, http.StatusBadRequest, "unknown package")
	case errors.Is(err, payments.ErrUnknownInvoice):
		writeError(w, http.StatusNotFound, "unknown invoice")
	case errors.Is(err, payments.ErrPaymentProvider):
		slog.WarnContext(r.Context(), "payment provider failure", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadGateway, "payment provider unavailable")
	default:
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// parseUserIDFromPath reads `{userId}` from routes like
//
//	GET  /users/{userId}
//	POST /users/{userId}/session/picks
func parseUserIDFromPath(r *http.Request) (int64, error) {
	idStr := chi.URLParam(r, "userId")
	if idStr == "" {
		return 0, errors.New("missing userId")
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid userId: %w", err)
	}

	if id <= 0 {
		return 0, errors.New("invalid userId: must be positive")
	}

	return id, nil
}

// decodeBody reads a JSON object; an empty body leaves dst untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close() //nolint:errcheck

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	return nil
}

// --- Middleware ---

// requireSubscription rejects users who have not joined the channel.
func (h *HandlerProvider) requireSubscription(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := parseUserIDFromPath(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid userId in path")

			return
		}

		err = h.guard.Require(r.Context(), userID)
		if err != nil {
			writeDomainError(w, r, err)

			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *HandlerProvider) limitChecks(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := parseUserIDFromPath(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid userId in path")

			return
		}

		if !h.checks.Allow(userID) {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "too many payment checks")

			return
		}

		next.ServeHTTP(w, r)
	})
}

// --- Responses ---

type userResponse struct {
	UserID         int64      `json:"user_id"`
	Username       string     `json:"username"`
	Attempts       int64      `json:"attempts"`
	Stars          int64      `json:"stars"`
	InvitedBy      *int64     `json:"invited_by,omitempty"`
	Subscribed     bool       `json:"subscribed"`
	LastDailyClaim *time.Time `json:"last_daily_claim,omitempty"`
}

func toUserResponse(u ledger.User) userResponse {
	return userResponse{
		UserID:         u.ID,
		Username:       u.Username,
		Attempts:       u.Attempts,
		Stars:          u.StarBalance,
		InvitedBy:      u.InvitedBy,
		Subscribed:     u.Subscribed,
		LastDailyClaim: u.LastDailyClaim,
	}
}

type cellJSON struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

type sessionResponse struct {
	Tier         int64      `json:"tier"`
	AttemptsLeft int        `json:"attempts_left"`
	Picked       []cellJSON `json:"picked"`
	State        string     `json:"state"`
}

func toSessionResponse(s game.Session) sessionResponse {
	picked := make([]cellJSON, 0, len(s.Picked))
	for _, c := range s.Picked {
		picked = append(picked, cellJSON{Row: c.Row, Col: c.Col})
	}

	return sessionResponse{
		Tier:         s.Tier,
		AttemptsLeft: s.AttemptsLeft,
		Picked:       picked,
		State:        string(s.State),
	}
}

type packageJSON struct {
	ID       string `json:"id"`
	Attempts int64  `json:"attempts"`
	Price    string `json:"price"`
}

func toPackageJSON(p payments.Package) packageJSON {
	return packageJSON{ID: p.ID, Attempts: p.Attempts, Price: p.Price.StringFixed(2)}
}

// --- Handlers ---

type registerRequest struct {
	Username   string `json:"username"`
	ReferrerID *int64 `json:"referrer_id"`
}

// RegisterHandler handles POST /users/{userId}
func (h *HandlerProvider) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid userId in path")

		return
	}

	var req registerRequest

	err = decodeBody(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")

		return
	}

	u, reg, err := h.ledger.RegisterUser(r.Context(), userID, req.Username, req.ReferrerID)
	if err != nil {
		writeDomainError(w, r, err)

		return
	}

	status := http.StatusOK
	if reg.Created {
		status = http.StatusCreated
	}

	writeJSON(w, status, map[string]any{
		"user":             toUserResponse(u),
		"created":          reg.Created,
		"referral_applied": reg.ReferralApplied,
	})
}

// ProfileHandler handles GET /users/{userId}
func (h *HandlerProvider) ProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid userId in path")

		return
	}

	p, err := h.ledger.Profile(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":            toUserResponse(p.User),
		"games_played":    p.GamesPlayed,
		"referrals":       p.Referrals,
		"daily_available": p.DailyAvailable,
		"next_daily_at":   p.NextDailyAt,
	})
}

// ClaimDailyHandler handles POST /users/{userId}/daily
func (h *HandlerProvider) ClaimDailyHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid userId in path")

		return
	}

	claim, err := h.ledger.ClaimDailyBonus(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"granted":  claim.Granted,
		"attempts": claim.Balance,
		"next_at":  claim.NextAt,
	})
}

// TiersHandler handles GET /tiers
func (h *HandlerProvider) TiersHandler(w http.ResponseWriter, _ *http.Request) {
	g := h.games.Grid()

	writeJSON(w, http.StatusOK, map[string]any{
		"tiers": h.games.Tiers(),
		"rows":  g.Rows,
		"cols":  g.Cols,
	})
}

type startRequest struct {
	Tier int64 `json:"tier"`
}

// StartSessionHandler handles POST /users/{userId}/session
func (h *HandlerProvider) StartSessionHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid userId in path")

		return
	}

	var req startRequest

	err = decodeBody(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")

		return
	}

	s, err := h.games.StartSession(r.Context(), userID, req.Tier)
	if err != nil {
		writeDomainError(w, r, err)

		return
	}

	writeJSON(w, http.StatusCreated, toSessionResponse(s))
}

// GetSessionHandler handles GET /users/{userId}/session
func (h *HandlerProvider) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid userId in path")

		return
	}

	s, ok := h.games.Session(userID)
	if !ok {
		writeError(w, http.StatusNotFound, "no active session")

		return
	}

	writeJSON(w, http.StatusOK, toSessionResponse(s))
}

// ExitSessionHandler handles DELETE /users/{userId}/session
func (h *HandlerProvider) ExitSessionHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid userId in path")

		return
	}

	h.games.ExitSession(userID)

	w.WriteHeader(http.StatusNoContent)
}

type pickRequest struct {
	Row *int `json:"row"`
	Col *int `json:"col"`
}

// PickCellHandler handles POST /users/{userId}/session/picks
func (h *HandlerProvider) PickCellHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid userId in path")

		return
	}

	var req pickRequest

	err = decodeBody(w, r, &req)
	if err != nil || req.Row == nil || req.Col == nil {
		writeError(w, http.StatusBadRequest, "row and col required")

		return
	}

	res, err := h.games.PickCell(r.Context(), userID, *req.Row, *req.Col)
	if err != nil {
		writeDomainError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"outcome":  string(res.Outcome),
		"session":  toSessionResponse(res.Session),
		"attempts": res.Balance,
		"stars":    res.Stars,
	})
}

// PackagesHandler handles GET /packages
func (h *HandlerProvider) PackagesHandler(w http.ResponseWriter, _ *http.Request) {
	pkgs := h.payments.Packages()

	out := make([]packageJSON, 0, len(pkgs))
	for _, p := range pkgs {
		out = append(out, toPackageJSON(p))
	}

	writeJSON(w, http.StatusOK, map[string]any{"packages": out})
}

type purchaseRequest struct {
	PackageID string `json:"package_id"`
}

// PurchaseHandler handles POST /users/{userId}/purchases
func (h *HandlerProvider) PurchaseHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid userId in path")

		return
	}

	var req purchaseRequest

	err = decodeBody(w, r, &req)
	if err != nil || req.PackageID == "" {
		writeError(w, http.StatusBadRequest, "package_id required")

		return
	}

	inv, err := h.payments.RequestPurchase(r.Context(), userID, req.PackageID)
	if err != nil {
		writeDomainError(w, r, err)

		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"invoice_id": inv.InvoiceID,
		"pay_url":    inv.PayURL,
		"package":    toPackageJSON(inv.Package),
		"expires_at": inv.ExpiresAt,
	})
}

// CheckPaymentHandler handles POST /users/{userId}/purchases/{invoiceId}/check
func (h *HandlerProvider) CheckPaymentHandler(w http.ResponseWriter, r *http.Request) {
	invoiceID := chi.URLParam(r, "invoiceId")
	if invoiceID == "" {
		writeError(w, http.StatusBadRequest, "invoiceId required")

		return
	}

	res, err := h.payments.PollAndSettle(r.Context(), invoiceID)
	if err != nil {
		writeDomainError(w, r, err)

		return
	}

	body := map[string]any{
		"status":     string(res.Status),
		"invoice_id": res.Payment.InvoiceID,
		"attempts":   res.Payment.Attempts,
	}

	if res.Status == payments.StatusSettled {
		body["balance"] = res.Balance
	}

	writeJSON(w, http.StatusOK, body)
}
