package meilisync

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	settings   Settings
	remote     RemoteIndex
	httpClient *http.Client
	poll       time.Duration

	logger     *zap.Logger
	metricsReg prometheus.Registerer
}

// WithSettings replaces all settings at once.
func WithSettings(s Settings) Option {
	return optionFunc(func(c *clientConfig) {
		c.settings = s
	})
}

// WithHost sets the engine address.
func WithHost(host string, port int, https bool) Option {
	return optionFunc(func(c *clientConfig) {
		c.settings.Host = host
		c.settings.Port = port
		c.settings.HTTPS = https
	})
}

// WithMasterKey sets the engine API key.
func WithMasterKey(key string) Option {
	return optionFunc(func(c *clientConfig) {
		c.settings.MasterKey = key
	})
}

// WithSync makes every remote call wait for its task to finish.
func WithSync(sync bool) Option {
	return optionFunc(func(c *clientConfig) {
		c.settings.Sync = sync
	})
}

// WithDebug makes mutation hooks wait for their tasks and report failures.
func WithDebug(debug bool) Option {
	return optionFunc(func(c *clientConfig) {
		c.settings.Debug = debug
	})
}

// WithOffline disables all remote calls. Registration records no tasks and
// hooks return immediately.
func WithOffline(offline bool) Option {
	return optionFunc(func(c *clientConfig) {
		c.settings.Offline = offline
	})
}

// WithBatchSize sets the default bulk sync batch size.
// Default: 1000.
func WithBatchSize(size int) Option {
	return optionFunc(func(c *clientConfig) {
		c.settings.BatchSize = size
	})
}

// WithHTTPClient overrides the HTTP client used for engine requests.
func WithHTTPClient(hc *http.Client) Option {
	return optionFunc(func(c *clientConfig) {
		c.httpClient = hc
	})
}

// WithPollInterval sets how often task status is polled.
func WithPollInterval(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.poll = d
	})
}

// WithRemote replaces the engine client, mostly for tests.
func WithRemote(r RemoteIndex) Option {
	return optionFunc(func(c *clientConfig) {
		c.remote = r
	})
}

// WithLogger enables structured logging for client operations.
// Pass nil to disable (default).
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers client metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
