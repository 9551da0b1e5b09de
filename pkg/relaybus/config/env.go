package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/relaybus/relaybus"
)

// envSpec mirrors relaybus.Options as environment-variable-driven fields.
// Every field carries an envDefault matching relaybus.DefaultOptions, so
// FromEnv never silently diverges from the functional-option defaults.
type envSpec struct {
	Mode              string        `env:"RELAYBUS_MODE" envDefault:"unlimited"`
	MaxDepth          int           `env:"RELAYBUS_MAX_DEPTH" envDefault:"20"`
	BufferSize        int           `env:"RELAYBUS_BUFFER_SIZE" envDefault:"1024"`
	Concurrency       int           `env:"RELAYBUS_CONCURRENCY" envDefault:"4"`
	TxHandlerTimeout  time.Duration `env:"RELAYBUS_TX_HANDLER_TIMEOUT" envDefault:"10s"`
	HandlerMaxRetries int           `env:"RELAYBUS_HANDLER_MAX_RETRIES" envDefault:"3"`
	HandlerBackoff    time.Duration `env:"RELAYBUS_HANDLER_BACKOFF" envDefault:"1s"`
	TxRetention       time.Duration `env:"RELAYBUS_TX_RETENTION" envDefault:"168h"`
	TxCleanupInterval time.Duration `env:"RELAYBUS_TX_CLEANUP_INTERVAL" envDefault:"1h"`
}

// FromEnv loads bus construction options from the process environment,
// using the RELAYBUS_* variables described on envSpec. Missing variables
// fall back to relaybus's own defaults, so FromEnv is always safe to call.
func FromEnv() ([]relaybus.Option, error) {
	var spec envSpec
	if err := env.Parse(&spec); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	return []relaybus.Option{
		relaybus.WithMode(relaybus.DispatchMode(spec.Mode)),
		relaybus.WithMaxDepth(spec.MaxDepth),
		relaybus.WithBufferSize(spec.BufferSize),
		relaybus.WithConcurrency(spec.Concurrency),
		relaybus.WithTxHandlerTimeout(spec.TxHandlerTimeout),
		relaybus.WithHandlerMaxRetries(spec.HandlerMaxRetries),
		relaybus.WithHandlerBackoff(spec.HandlerBackoff),
		relaybus.WithTxRetention(spec.TxRetention),
		relaybus.WithTxCleanupInterval(spec.TxCleanupInterval),
	}, nil
}

// LoadDotEnv loads the given .env files into the process environment before
// a FromEnv call, for example programs that want to externalize tuning
// without exporting shell variables. A missing file at the default path
// (".env") is not an error; a missing file at an explicitly named path is.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		if _, err := os.Stat(".env"); os.IsNotExist(err) {
			return nil
		}
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}
