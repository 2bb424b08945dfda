package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastprodman/stargiver/internal/config"
	"github.com/fastprodman/stargiver/internal/gate"
	"github.com/fastprodman/stargiver/internal/infra/ratelimit"
	"github.com/fastprodman/stargiver/internal/metrics"
	"github.com/fastprodman/stargiver/internal/providers/cryptopay"
	"github.com/fastprodman/stargiver/internal/services/game"
	"github.com/fastprodman/stargiver/internal/services/ledger"
	"github.com/fastprodman/stargiver/internal/services/payments"
	"github.com/fastprodman/stargiver/internal/store/memory"
)

type fakeSubscriptions struct{ ok atomic.Bool }

func (f *fakeSubscriptions) IsSubscribed(context.Context, int64) bool { return f.ok.Load() }

type fakeProvider struct {
	mu     sync.Mutex
	nextID int64
	status map[string]cryptopay.Status
	down   bool
}

func (f *fakeProvider) CreateInvoice(_ context.Context, _ cryptopay.CreateInvoiceRequest) (cryptopay.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.down {
		return cryptopay.Invoice{}, cryptopay.ErrTransient
	}

	f.nextID++
	f.status[strconv.FormatInt(f.nextID, 10)] = cryptopay.StatusActive

	return cryptopay.Invoice{InvoiceID: f.nextID, Status: cryptopay.StatusActive, PayURL: "https://pay.example/" + strconv.FormatInt(f.nextID, 10)}, nil
}

func (f *fakeProvider) GetInvoice(_ context.Context, invoiceID string) (cryptopay.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return cryptopay.Invoice{Status: f.status[invoiceID]}, nil
}

func (f *fakeProvider) pay(invoiceID string) {
	f.mu.Lock()
	f.status[invoiceID] = cryptopay.StatusPaid
	f.mu.Unlock()
}

type testEnv struct {
	handler  http.Handler
	subs     *fakeSubscriptions
	provider *fakeProvider
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()

	st := memory.New()
	l := ledger.New(st, config.LedgerConfig{StartingAttempts: 3, DailyBonus: 2, DailyCooldown: 24 * time.Hour, ReferralBonus: 1})
	g := game.New(st, l, config.GameConfig{Tiers: []int64{50, 100}, AttemptsPerSession: 3, Rows: 5, Cols: 4},
		game.WithPolicy(game.FixedCell{Cell: game.Cell{Row: 4, Col: 3}}))

	pcfg, err := payments.ConfigFrom(config.PaymentsConfig{Packages: "5:0.30,10:0.50", Asset: "USDT", InvoiceTTL: 15 * time.Minute}, "")
	require.NoError(t, err)

	env := &testEnv{subs: &fakeSubscriptions{}, provider: &fakeProvider{status: map[string]cryptopay.Status{}}}
	env.subs.ok.Store(true)

	env.handler = NewRouter(Services{
		Ledger:       l,
		Games:        g,
		Payments:     payments.New(st, l, env.provider, pcfg),
		Guard:        gate.NewGuard(env.subs, l),
		Health:       st,
		Metrics:      metrics.New(),
		CheckLimiter: ratelimit.PerMinute(3),
	})

	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()

	e.handler.ServeHTTP(rec, req)

	out := map[string]any{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}

	return rec.Code, out
}

func TestHealthzAndMetrics(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	code, body := e.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "stargiver_http_requests_total")
}

func TestRegisterAndProfile(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	code, body := e.do(t, http.MethodPost, "/users/1", `{"username":"alice"}`)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, true, body["created"])

	code, _ = e.do(t, http.MethodPost, "/users/2", `{"username":"bob","referrer_id":1}`)
	require.Equal(t, http.StatusCreated, code)

	code, body = e.do(t, http.MethodPost, "/users/2", `{"username":"bob","referrer_id":1}`)
	require.Equal(t, http.StatusOK, code, "repeated /start")
	assert.Equal(t, false, body["referral_applied"])

	code, body = e.do(t, http.MethodGet, "/users/1", "")
	require.Equal(t, http.StatusOK, code)

	user := body["user"].(map[string]any)
	assert.InDelta(t, 4, user["attempts"], 0)
	assert.InDelta(t, 1, body["referrals"], 0)
	assert.Equal(t, true, body["daily_available"])
}

func TestBadRequests(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	_, _ = e.do(t, http.MethodPost, "/users/1", "")

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{name: "non numeric id", method: http.MethodGet, path: "/users/abc", want: http.StatusBadRequest},
		{name: "zero id", method: http.MethodGet, path: "/users/0", want: http.StatusBadRequest},
		{name: "unknown user", method: http.MethodGet, path: "/users/5", want: http.StatusNotFound},
		{name: "unknown field", method: http.MethodPost, path: "/users/1", body: `{"nick":"x"}`, want: http.StatusBadRequest},
		{name: "pick without cell", method: http.MethodPost, path: "/users/1/session/picks", body: `{}`, want: http.StatusBadRequest},
		{name: "pick without session", method: http.MethodPost, path: "/users/1/session/picks", body: `{"row":0,"col":0}`, want: http.StatusConflict},
		{name: "unknown tier", method: http.MethodPost, path: "/users/1/session", body: `{"tier":7}`, want: http.StatusBadRequest},
		{name: "unknown package", method: http.MethodPost, path: "/users/1/purchases", body: `{"package_id":"7"}`, want: http.StatusBadRequest},
		{name: "unknown invoice", method: http.MethodPost, path: "/users/1/purchases/nope/check", want: http.StatusNotFound},
		{name: "no session", method: http.MethodGet, path: "/users/1/session", want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := e.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, code)
		})
	}
}

func TestGameFlow(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	_, _ = e.do(t, http.MethodPost, "/users/1", "")

	code, body := e.do(t, http.MethodPost, "/users/1/session", `{"tier":100}`)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "selecting", body["state"])

	code, body = e.do(t, http.MethodPost, "/users/1/session/picks", `{"row":0,"col":0}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "lost", body["outcome"])
	assert.InDelta(t, 2, body["attempts"], 0)

	code, _ = e.do(t, http.MethodPost, "/users/1/session/picks", `{"row":0,"col":0}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code, "same cell twice")

	code, body = e.do(t, http.MethodPost, "/users/1/session/picks", `{"row":4,"col":3}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "won", body["outcome"])
	assert.InDelta(t, 100, body["stars"], 0)

	code, _ = e.do(t, http.MethodGet, "/users/1/session", "")
	assert.Equal(t, http.StatusNotFound, code, "a won session is over")

	code, _ = e.do(t, http.MethodPost, "/users/1/session", `{"tier":50}`)
	require.Equal(t, http.StatusCreated, code)

	code, _ = e.do(t, http.MethodDelete, "/users/1/session", "")
	assert.Equal(t, http.StatusNoContent, code)
}

func TestNoAttemptsIsConflict(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	_, _ = e.do(t, http.MethodPost, "/users/1", "")

	code, _ := e.do(t, http.MethodPost, "/users/1/session", `{"tier":50}`)
	require.Equal(t, http.StatusCreated, code)

	for i := range 3 {
		code, _ := e.do(t, http.MethodPost, "/users/1/session/picks", `{"row":0,"col":`+strconv.Itoa(i)+`}`)
		require.Equal(t, http.StatusOK, code)
	}

	code, body := e.do(t, http.MethodPost, "/users/1/session", `{"tier":50}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "no attempts left", body["error"])
}

func TestSubscriptionGuard(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.subs.ok.Store(false)
	_, _ = e.do(t, http.MethodPost, "/users/1", "")

	code, _ := e.do(t, http.MethodPost, "/users/1/daily", "")
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = e.do(t, http.MethodPost, "/users/1/session", `{"tier":50}`)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = e.do(t, http.MethodGet, "/users/1", "")
	assert.Equal(t, http.StatusOK, code, "reads are not gated")

	e.subs.ok.Store(true)

	code, body := e.do(t, http.MethodPost, "/users/1/daily", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["granted"])
	assert.InDelta(t, 5, body["attempts"], 0)

	code, body = e.do(t, http.MethodPost, "/users/1/daily", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["granted"])
}

func TestPurchaseFlow(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	_, _ = e.do(t, http.MethodPost, "/users/1", "")

	code, body := e.do(t, http.MethodGet, "/packages", "")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, body["packages"], 2)

	code, body = e.do(t, http.MethodPost, "/users/1/purchases", `{"package_id":"10"}`)
	require.Equal(t, http.StatusCreated, code)

	invoiceID := body["invoice_id"].(string)
	assert.Equal(t, "https://pay.example/"+invoiceID, body["pay_url"])

	code, body = e.do(t, http.MethodPost, "/users/1/purchases/"+invoiceID+"/check", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "still_pending", body["status"])

	e.provider.pay(invoiceID)

	code, body = e.do(t, http.MethodPost, "/users/1/purchases/"+invoiceID+"/check", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "settled", body["status"])
	assert.InDelta(t, 13, body["balance"], 0)

	code, body = e.do(t, http.MethodPost, "/users/1/purchases/"+invoiceID+"/check", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "already_settled", body["status"])

	code, _ = e.do(t, http.MethodPost, "/users/1/purchases/"+invoiceID+"/check", "")
	assert.Equal(t, http.StatusTooManyRequests, code)
}

func TestPurchase_ProviderDown(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	_, _ = e.do(t, http.MethodPost, "/users/1", "")
	e.provider.down = true

	code, _ := e.do(t, http.MethodPost, "/users/1/purchases", `{"package_id":"5"}`)
	assert.Equal(t, http.StatusBadGateway, code)
}

func TestAdminStatsNotServedOverHTTP(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	_, _ = e.do(t, http.MethodPost, "/users/99", "")

	code, _ := e.do(t, http.MethodGet, "/users/99/admin/stats", "")
	assert.Equal(t, http.StatusNotFound, code)
}

type downStore struct{}

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealthz_StoreDown(t *testing.T) {
	t.Parallel()

	h := NewRouter(Services{Health: downStore{}})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
