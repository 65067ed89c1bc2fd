package dhtring

import (
	"io"
	"log/slog"
	"time"
)

// options configures the Service behavior (internal only).
type options struct {
	hash        HashFunc
	timeout     time.Duration
	identityKey string
	logger      *slog.Logger
}

// defaultOptions returns sensible defaults.
func defaultOptions() options {
	return options{
		hash:        Murmur3,
		timeout:     2 * time.Second,
		identityKey: "name",
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// Option is a functional option for configuring a Service.
type Option func(*options)

// WithHashFunc sets the hash used for node and key positions.
// DEFAULT: Murmur3
func WithHashFunc(fn HashFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.hash = fn
		}
	}
}

// WithTimeout bounds every call to a backing store. A call that exceeds it
// fails with ErrStoreUnavailable.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithIdentityKey sets the reserved key under which each node's name is
// recorded on its backing store when it joins.
func WithIdentityKey(key string) Option {
	return func(o *options) {
		o.identityKey = key
	}
}

// WithLogger sets the logger for the service.
// If the logger is nil, the service will use a no-op logger.
// DEFAULT: A no-op logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger == nil {
			o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
			return
		}

		o.logger = logger
	}
}
