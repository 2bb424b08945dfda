package config

import "time"

type PostgresConfig struct {
	DSN             string        `env:"PG_DSN" default:""`
	MaxOpenConns    int           `env:"PG_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `env:"PG_MAX_IDLE_CONNS" default:"5"`
	ConnMaxIdleTime time.Duration `env:"PG_CONN_MAX_IDLE_TIME" default:"30s"`
	ConnMaxLifetime time.Duration `env:"PG_CONN_MAX_LIFETIME" default:"30m"`
}

type StoreConfig struct {
	// Driver is "postgres" or "memory". The memory store keeps nothing across restarts.
	Driver   string `env:"STORE_DRIVER" default:"postgres"`
	Postgres *PostgresConfig
}

type LedgerConfig struct {
	StartingAttempts int64         `env:"LEDGER_STARTING_ATTEMPTS" default:"3"`
	DailyBonus       int64         `env:"LEDGER_DAILY_BONUS" default:"2"`
	DailyCooldown    time.Duration `env:"LEDGER_DAILY_COOLDOWN" default:"24h"`
	ReferralBonus    int64         `env:"LEDGER_REFERRAL_BONUS" default:"1"`
}

type GameConfig struct {
	Tiers              []int64 `env:"GAME_REWARD_TIERS" default:"50,100,200,150,15,25"`
	AttemptsPerSession int     `env:"GAME_ATTEMPTS_PER_SESSION" default:"3"`
	Rows               int     `env:"GAME_GRID_ROWS" default:"5"`
	Cols               int     `env:"GAME_GRID_COLS" default:"4"`
	// WinPolicy is "never", "random" or "fixed:<row>:<col>".
	WinPolicy string `env:"GAME_WIN_POLICY" default:"never"`
	WinSeed   int64  `env:"GAME_WIN_SEED" default:"0"`
}

type PaymentsConfig struct {
	// Packages is a comma separated list of <attempts>:<price>.
	Packages          string        `env:"PAYMENTS_PACKAGES" default:"5:0.30,10:0.50,20:0.80"`
	Asset             string        `env:"PAYMENTS_ASSET" default:"USDT"`
	InvoiceTTL        time.Duration `env:"PAYMENTS_INVOICE_TTL" default:"15m"`
	ReconcileSchedule string        `env:"PAYMENTS_RECONCILE_SCHEDULE" default:"@every 1m"`
	ReconcileGrace    time.Duration `env:"PAYMENTS_RECONCILE_GRACE" default:"30s"`
	ReconcileBatch    int           `env:"PAYMENTS_RECONCILE_BATCH" default:"100"`
	ChecksPerMinute   int           `env:"PAYMENTS_CHECKS_PER_MINUTE" default:"12"`
}

type CryptoPayConfig struct {
	Token        string        `env:"CRYPTOPAY_TOKEN" default:""`
	BaseURL      string        `env:"CRYPTOPAY_API_URL" default:"https://pay.crypt.bot/api"`
	Timeout      time.Duration `env:"CRYPTOPAY_TIMEOUT" default:"10s"`
	MaxRetries   int           `env:"CRYPTOPAY_MAX_RETRIES" default:"3"`
	RetryBackoff time.Duration `env:"CRYPTOPAY_RETRY_BACKOFF" default:"300ms"`
	PaidBtnURL   string        `env:"CRYPTOPAY_PAID_BUTTON_URL" default:""`
}

type TelegramConfig struct {
	Token string `env:"TELEGRAM_BOT_TOKEN" default:""`
	// Channel users must join, e.g. "@MyBoog". Empty disables the gate.
	Channel     string  `env:"TELEGRAM_REQUIRED_CHANNEL" default:""`
	BotUsername string  `env:"TELEGRAM_BOT_USERNAME" default:""`
	PollTimeout int     `env:"TELEGRAM_POLL_TIMEOUT" default:"60"`
	AdminIDs    []int64 `env:"TELEGRAM_ADMIN_IDS" default:""`
	Debug       bool    `env:"TELEGRAM_DEBUG" default:"false"`
}
