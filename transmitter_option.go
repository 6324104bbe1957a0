package iridium

import (
	"time"

	"github.com/sirupsen/logrus"
)

// TransmitterOption configures a Transmitter at construction time, following
// the functional-options builder pattern.
type TransmitterOption func(*Transmitter)

// WithHeartbeat overrides the default 100ms polling/backoff-unit tick.
func WithHeartbeat(d time.Duration) TransmitterOption {
	return func(t *Transmitter) {
		if d > 0 {
			t.heartbeat = d
		}
	}
}

// WithMaxBackoffMultiplier overrides the default cap (64) on the err_delay
// multiplier applied to Heartbeat.
func WithMaxBackoffMultiplier(n int) TransmitterOption {
	return func(t *Transmitter) {
		if n > 0 {
			t.maxDelay = n
		}
	}
}

// WithDialTimeout overrides the default 30s timeout applied to DNS
// resolution, TCP connect, and each read/write.
func WithDialTimeout(d time.Duration) TransmitterOption {
	return func(t *Transmitter) {
		if d > 0 {
			t.dialTimeout = d
		}
	}
}

// WithKeepAliveGuard injects the embedder's event-loop lifetime token.
func WithKeepAliveGuard(g KeepAliveGuard) TransmitterOption {
	return func(t *Transmitter) {
		if g != nil {
			t.keepAlive = g
		}
	}
}

// WithOnError registers the error-signal callback, invoked on every
// transition into the ERROR state.
func WithOnError(fn func(error)) TransmitterOption {
	return func(t *Transmitter) {
		if fn != nil {
			t.onError = fn
		}
	}
}

// WithOnTransmitResult registers the transmit-result callback, invoked with
// the MT Confirmation's msg_status whenever one is parsed (including
// negative/error statuses, which also drive a re-queue + backoff).
func WithOnTransmitResult(fn func(int16)) TransmitterOption {
	return func(t *Transmitter) {
		if fn != nil {
			t.onResult = fn
		}
	}
}

// WithLogger overrides the package-default logger for this transmitter.
func WithLogger(lg *logrus.Logger) TransmitterOption {
	return func(t *Transmitter) {
		if lg != nil {
			t.lg = lg
		}
	}
}
