package config

import (
	"github.com/relaybus/relaybus"
)

// ToOptions translates a loaded Config into bus construction options.
// Keys not present in c fall back to relaybus's own defaults (DefaultOptions),
// so a config file only needs to set the knobs it wants to override.
//
// Recognized keys: mode, max_depth, buffer_size, concurrency,
// tx_handler_timeout, handler_max_retries, handler_backoff, tx_retention,
// tx_cleanup_interval.
func (c Config) ToOptions() []relaybus.Option {
	defaults := relaybus.DefaultOptions()
	var opts []relaybus.Option

	if c.Has("mode") {
		mode := relaybus.DispatchMode(c.String("mode", string(defaults.Mode)))
		opts = append(opts, relaybus.WithMode(mode))
	}
	if c.Has("max_depth") {
		opts = append(opts, relaybus.WithMaxDepth(c.Int("max_depth", defaults.MaxDepth)))
	}
	if c.Has("buffer_size") {
		opts = append(opts, relaybus.WithBufferSize(c.Int("buffer_size", defaults.BufferSize)))
	}
	if c.Has("concurrency") {
		opts = append(opts, relaybus.WithConcurrency(c.Int("concurrency", defaults.Concurrency)))
	}
	if c.Has("tx_handler_timeout") {
		opts = append(opts, relaybus.WithTxHandlerTimeout(c.Duration("tx_handler_timeout", defaults.TxHandlerTimeout)))
	}
	if c.Has("handler_max_retries") {
		opts = append(opts, relaybus.WithHandlerMaxRetries(c.Int("handler_max_retries", defaults.HandlerMaxRetries)))
	}
	if c.Has("handler_backoff") {
		opts = append(opts, relaybus.WithHandlerBackoff(c.Duration("handler_backoff", defaults.HandlerBackoff)))
	}
	if c.Has("tx_retention") {
		opts = append(opts, relaybus.WithTxRetention(c.Duration("tx_retention", defaults.TxRetention)))
	}
	if c.Has("tx_cleanup_interval") {
		opts = append(opts, relaybus.WithTxCleanupInterval(c.Duration("tx_cleanup_interval", defaults.TxCleanupInterval)))
	}

	return opts
}
