package main

import (
	"log/slog"
	"time"

	"github.com/fastprodman/stargiver/internal/config"
	"github.com/fastprodman/stargiver/internal/infra/logging"
)

type botConfig struct {
	Port            uint16         `env:"APP_PORT" default:"8080"`
	LogLevel        slog.Level     `env:"APP_LOG_LEVEL" default:"INFO"`
	LogFormat       logging.Format `env:"APP_LOG_FORMAT" default:"json"`
	ShutdownTimeout time.Duration  `env:"APP_SHUTDOWN_TIMEOUT" default:"10s"`

	Store     config.StoreConfig
	Ledger    config.LedgerConfig
	Game      config.GameConfig
	Payments  config.PaymentsConfig
	CryptoPay config.CryptoPayConfig
	Telegram  config.TelegramConfig
}
