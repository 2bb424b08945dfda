package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/robfig/cron/v3"

	"github.com/fastprodman/stargiver/internal/api"
	"github.com/fastprodman/stargiver/internal/bot"
	"github.com/fastprodman/stargiver/internal/config"
	"github.com/fastprodman/stargiver/internal/gate"
	"github.com/fastprodman/stargiver/internal/infra/logging"
	"github.com/fastprodman/stargiver/internal/infra/pgutils"
	"github.com/fastprodman/stargiver/internal/infra/ratelimit"
	"github.com/fastprodman/stargiver/internal/metrics"
	"github.com/fastprodman/stargiver/internal/providers/cryptopay"
	"github.com/fastprodman/stargiver/internal/services/admin"
	"github.com/fastprodman/stargiver/internal/services/game"
	"github.com/fastprodman/stargiver/internal/services/ledger"
	"github.com/fastprodman/stargiver/internal/services/payments"
	"github.com/fastprodman/stargiver/internal/store"
	"github.com/fastprodman/stargiver/internal/store/memory"
	pgstore "github.com/fastprodman/stargiver/internal/store/postgres"
	"github.com/fastprodman/stargiver/pkg/envconf"
	"github.com/fastprodman/stargiver/pkg/shutdownqueue"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error running bot: %v\n", err)
		//nolint:gocritic
		os.Exit(1)
	}
}

func run(ctx context.Context) (retErr error) {
	cfg := new(botConfig)

	err := envconf.LoadFiles(cfg, ".env")
	if err != nil {
		return fmt.Errorf("init config: %w", err)
	}

	logging.Setup(cfg.LogLevel, cfg.LogFormat, "stargiver")

	q := shutdownqueue.New()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		serr := q.Shutdown(shutdownCtx)
		if serr != nil {
			retErr = errors.Join(retErr, serr)
		}
	}()

	m := metrics.New()

	// --- Infra ---
	st, err := openStore(ctx, cfg.Store, q)
	if err != nil {
		return err
	}

	// --- Services ---
	ledgerSrv := ledger.New(st, cfg.Ledger, ledger.WithMetrics(m))

	policy, err := game.ParsePolicy(cfg.Game.WinPolicy, cfg.Game.WinSeed)
	if err != nil {
		return fmt.Errorf("win policy: %w", err)
	}

	gameSrv := game.New(st, ledgerSrv, cfg.Game, game.WithPolicy(policy), game.WithMetrics(m))

	if cfg.CryptoPay.Token == "" {
		slog.Warn("CRYPTOPAY_TOKEN is empty, invoice requests will be rejected by the provider")
	}

	provider := cryptopay.New(cfg.CryptoPay, cryptopay.WithMetrics(m))

	paymentsCfg, err := payments.ConfigFrom(cfg.Payments, cfg.CryptoPay.PaidBtnURL)
	if err != nil {
		return fmt.Errorf("payments config: %w", err)
	}

	paymentsSrv := payments.New(st, ledgerSrv, provider, paymentsCfg, payments.WithMetrics(m))
	adminSrv := admin.New(st, cfg.Telegram.AdminIDs)
	checks := ratelimit.PerMinute(cfg.Payments.ChecksPerMinute)

	// --- Telegram ---
	var botAPI *tgbotapi.BotAPI

	checker := gate.NewChecker(nil, "")

	if cfg.Telegram.Token != "" {
		botAPI, err = tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}

		botAPI.Debug = cfg.Telegram.Debug
		checker = gate.NewChecker(botAPI, cfg.Telegram.Channel)

		if cfg.Telegram.BotUsername == "" {
			cfg.Telegram.BotUsername = botAPI.Self.UserName
		}
	} else {
		slog.Warn("TELEGRAM_BOT_TOKEN is empty, serving the HTTP API only without a subscription gate")
	}

	guard := gate.NewGuard(checker, ledgerSrv)

	// --- HTTP server ---
	router := api.NewRouter(api.Services{
		Ledger:       ledgerSrv,
		Games:        gameSrv,
		Payments:     paymentsSrv,
		Guard:        guard,
		Health:       st,
		Metrics:      m,
		CheckLimiter: checks,
	})
	srv := api.NewServer(cfg.Port, router)

	q.Add("http server", func(c context.Context) error {
		err := srv.Shutdown(c)
		if err != nil {
			return fmt.Errorf("shutdown srv: %w", err)
		}

		return nil
	})

	errCh := make(chan error, 1)

	go func() {
		serr := srv.ListenAndServe()
		// http.ErrServerClosed is the normal path during Shutdown
		if serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			errCh <- serr

			return
		}

		errCh <- nil
	}()

	// --- Reconciliation ---
	err = startReconciler(ctx, cfg.Payments.ReconcileSchedule, paymentsSrv, q)
	if err != nil {
		return err
	}

	// --- Bot poller ---
	if botAPI != nil {
		b := bot.New(botAPI, bot.Services{
			Ledger:   ledgerSrv,
			Games:    gameSrv,
			Payments: paymentsSrv,
			Admin:    adminSrv,
			Guard:    guard,
		}, bot.Config{Channel: cfg.Telegram.Channel, BotUsername: cfg.Telegram.BotUsername},
			bot.WithMetrics(m), bot.WithCheckLimiter(checks))

		u := tgbotapi.NewUpdate(0)
		u.Timeout = cfg.Telegram.PollTimeout

		updates := botAPI.GetUpdatesChan(u)
		done := make(chan struct{})

		go func() {
			defer close(done)

			b.Run(ctx, updates)
		}()

		q.Add("telegram poller", func(c context.Context) error {
			botAPI.StopReceivingUpdates()

			select {
			case <-done:
				return nil
			case <-c.Done():
				return c.Err()
			}
		})
	}

	slog.Info("stargiver started",
		"port", cfg.Port, "store", cfg.Store.Driver, "telegram", botAPI != nil, "active_sessions", gameSrv.Active())

	select {
	case <-ctx.Done():
		return nil
	case serr := <-errCh:
		if serr != nil {
			return fmt.Errorf("server error: %w", serr)
		}

		return nil
	}
}

func openStore(ctx context.Context, cfg config.StoreConfig, q *shutdownqueue.Queue) (store.Store, error) {
	switch cfg.Driver {
	case "memory":
		slog.Warn("using the in-memory store, nothing survives a restart")

		return memory.New(), nil
	case "postgres", "":
		if cfg.Postgres == nil || cfg.Postgres.DSN == "" {
			return nil, errors.New("open store: PG_DSN is required for the postgres driver")
		}

		db, err := pgutils.OpenDB(ctx, *cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}

		q.Add("postgres", func(context.Context) error {
			return db.Close()
		})

		return pgstore.New(db), nil
	default:
		return nil, fmt.Errorf("open store: unknown driver %q", cfg.Driver)
	}
}

func startReconciler(ctx context.Context, schedule string, svc *payments.Service, q *shutdownqueue.Queue) error {
	logger := cronLogger{}

	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))

	_, err := c.AddFunc(schedule, func() {
		report, err := svc.Reconcile(ctx)
		if err != nil {
			slog.WarnContext(ctx, "reconcile failed", "error", err)

			return
		}

		if report.Checked > 0 {
			slog.InfoContext(ctx, "reconcile finished",
				"checked", report.Checked, "settled", report.Settled, "expired", report.Expired, "failed", report.Failed)
		}
	})
	if err != nil {
		return fmt.Errorf("reconcile schedule %q: %w", schedule, err)
	}

	c.Start()

	q.Add("reconciler", func(sctx context.Context) error {
		stopped := c.Stop()

		select {
		case <-stopped.Done():
			return nil
		case <-sctx.Done():
			return sctx.Err()
		}
	})

	return nil
}

// cronLogger routes robfig/cron logs to slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
