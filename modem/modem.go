// Package modem drives an Iridium SBD transceiver over a serial port using
// its AT-command dialect, with binary SBDWB/SBDRB payload framing. It is a
// separable concern from the Direct-IP protocol engine in the root package:
// a different transport (serial, not TCP) with its own parsing rules. It
// reuses the Direct-IP codec's payload sizing rules but none of its TLV
// framing.
package modem

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/jacobsa/go-serial/serial"
	"github.com/sirupsen/logrus"

	"github.com/cycleg/libiridium"
)

const (
	// DefaultBaud is the serial rate used by Iridium SBD transceivers:
	// 8 data bits, no parity, 1 stop bit, plus the mandatory start bit.
	DefaultBaud = 19200

	// DefaultCommandTimeout applies to ordinary AT commands.
	DefaultCommandTimeout = 5 * time.Second
	// SessionTimeout applies to SBDIX/SBDIXA, which block on a full SBD session.
	SessionTimeout = 50 * time.Second

	// MaxMOPayload and MaxMTPayload mirror the Direct-IP codec's payload
	// sizing rules without reusing its framing.
	MaxMOPayload = iridium.MaxMoPayloadLen
	MaxMTPayload = iridium.MaxMtPayloadLen
)

// Modem is a synchronous wrapper over the serial transport: every command
// acquires the driver mutex, writes the command terminated by \r, and reads
// the response until a terminator or a per-command timeout.
type Modem struct {
	port io.ReadWriteCloser

	mu             sync.Mutex
	commandTimeout time.Duration
	sessionTimeout time.Duration

	lg     *logrus.Logger
	reader *bufio.Reader
}

// Option configures a Modem at Open time.
type Option func(*openOptions)

type openOptions struct {
	baud           uint
	commandTimeout time.Duration
	sessionTimeout time.Duration
	lg             *logrus.Logger
}

// WithBaud overrides DefaultBaud.
func WithBaud(baud uint) Option {
	return func(o *openOptions) { o.baud = baud }
}

// WithCommandTimeout overrides DefaultCommandTimeout.
func WithCommandTimeout(d time.Duration) Option {
	return func(o *openOptions) { o.commandTimeout = d }
}

// WithSessionTimeout overrides SessionTimeout.
func WithSessionTimeout(d time.Duration) Option {
	return func(o *openOptions) { o.sessionTimeout = d }
}

// WithLogger overrides the default logger.
func WithLogger(lg *logrus.Logger) Option {
	return func(o *openOptions) { o.lg = lg }
}

// Open opens the serial device and returns a ready-to-use Modem.
func Open(device string, opts ...Option) (*Modem, error) {
	o := &openOptions{
		baud:           DefaultBaud,
		commandTimeout: DefaultCommandTimeout,
		sessionTimeout: SessionTimeout,
		lg:             logrus.New(),
	}
	for _, opt := range opts {
		opt(o)
	}

	port, err := serial.Open(serial.OpenOptions{
		PortName:        device,
		BaudRate:        o.baud,
		DataBits:        8,
		StopBits:        1,
		ParityMode:      serial.PARITY_NONE,
		MinimumReadSize: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("modem: open %s: %w", device, err)
	}

	return &Modem{
		port:           port,
		commandTimeout: o.commandTimeout,
		sessionTimeout: o.sessionTimeout,
		lg:             o.lg,
		reader:         bufio.NewReaderSize(port, 4096),
	}, nil
}

// Close closes the serial port.
func (m *Modem) Close() error {
	return m.port.Close()
}

// command serializes command execution on the driver mutex: write cmd+"\r",
// then read lines until one matches terminator, or ctx/timeout expires.
func (m *Modem) command(ctx context.Context, cmd string, terminator string, timeout time.Duration) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := io.WriteString(m.port, cmd+"\r"); err != nil {
		return nil, fmt.Errorf("modem: write %q: %w", cmd, err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return m.readLinesUntil(ctx, terminator)
}

type lineOrErr struct {
	line string
	err  error
}

// readLinesUntil reads \r\n-terminated lines from the port until one equals
// terminator (typically "OK") or ctx is done. The underlying serial port has
// no read-deadline support, so the reader goroutine outlives a timed-out
// call; it is harmless since the next command's write will resynchronize on
// the next terminator.
func (m *Modem) readLinesUntil(ctx context.Context, terminator string) ([]string, error) {
	lines := make(chan lineOrErr, 1)
	go func() {
		for {
			raw, err := m.reader.ReadString('\n')
			line := strings.TrimRight(raw, "\r\n")
			if line != "" {
				lines <- lineOrErr{line: line}
			}
			if err != nil {
				lines <- lineOrErr{err: err}
				return
			}
			if line == terminator {
				return
			}
		}
	}()

	var out []string
	for {
		select {
		case <-ctx.Done():
			return out, fmt.Errorf("modem: timeout waiting for %q: %w", terminator, ctx.Err())
		case loe := <-lines:
			if loe.err != nil {
				return out, fmt.Errorf("modem: read: %w", loe.err)
			}
			out = append(out, loe.line)
			if loe.line == terminator {
				return out, nil
			}
		}
	}
}

// checksum16 computes the low 16 bits of the sum of payload's bytes, the
// checksum used by both SBDWB (write) and SBDRB (read) binary framing.
func checksum16(payload []byte) uint16 {
	var sum uint32
	for _, b := range payload {
		sum += uint32(b)
	}
	return uint16(sum)
}
