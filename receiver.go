package iridium

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

const DefaultReceiverAddress = ":32606"

// sessionReadTimeout bounds how long a single MO session waits for a
// silent or half-open peer to produce the next byte, independent of
// Stop() force-closing the connection.
const sessionReadTimeout = 30 * time.Second

// Receiver is the MO receive server: a TCP listener that spawns one
// incomingSession per accepted connection, each of which length-frames,
// classifies, and parses exactly one MO message before the gateway closes
// the connection.
type Receiver struct {
	address   string
	listener  net.Listener
	keepAlive KeepAliveGuard

	onMessage func(*MoMessage)
	onErr     func(error)

	lg *logrus.Logger

	alive     atomic.Bool
	wg        sync.WaitGroup
	closeOnce sync.Once

	mu       sync.Mutex
	sessions map[net.Conn]struct{}
}

// ReceiverOption configures a Receiver at construction time.
type ReceiverOption func(*Receiver)

// WithReceiverOnMessage registers the on-message callback.
func WithReceiverOnMessage(fn func(*MoMessage)) ReceiverOption {
	return func(r *Receiver) {
		if fn != nil {
			r.onMessage = fn
		}
	}
}

// WithReceiverOnError registers the on-error callback, invoked whenever a
// session terminates abnormally.
func WithReceiverOnError(fn func(error)) ReceiverOption {
	return func(r *Receiver) {
		if fn != nil {
			r.onErr = fn
		}
	}
}

// WithReceiverKeepAliveGuard injects the embedder's event-loop lifetime token.
func WithReceiverKeepAliveGuard(g KeepAliveGuard) ReceiverOption {
	return func(r *Receiver) {
		if g != nil {
			r.keepAlive = g
		}
	}
}

// WithReceiverLogger overrides the package-default logger for this receiver.
func WithReceiverLogger(lg *logrus.Logger) ReceiverOption {
	return func(r *Receiver) {
		if lg != nil {
			r.lg = lg
		}
	}
}

// NewReceiver returns a Receiver bound to address (default
// DefaultReceiverAddress, all interfaces, port 32606) once Start is called.
func NewReceiver(address string, opts ...ReceiverOption) *Receiver {
	if address == "" {
		address = DefaultReceiverAddress
	}
	r := &Receiver{
		address:   address,
		keepAlive: noopKeepAliveGuard{},
		onMessage: func(*MoMessage) {},
		onErr:     func(error) {},
		lg:        _lg,
		sessions:  make(map[net.Conn]struct{}),
	}
	return applyReceiverOpts(r, opts)
}

func applyReceiverOpts(r *Receiver, opts []ReceiverOption) *Receiver {
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start binds and begins accepting connections, failing if the bind/listen
// fails. It acquires the event-loop keep-alive guard for the lifetime of
// the listener.
func (r *Receiver) Start() error {
	listener, err := net.Listen("tcp", r.address)
	if err != nil {
		return fmt.Errorf("mo receiver: listen %s: %w", r.address, err)
	}
	r.listener = listener
	r.alive.Store(true)
	r.keepAlive.Acquire()

	r.wg.Add(1)
	go r.acceptLoop()
	return nil
}

// Stop releases the keep-alive guard and closes the acceptor, gracefully
// ignoring already-closed races, then force-closes every accepted
// connection still in flight so a silent peer cannot keep a session
// goroutine — and therefore this call — blocked indefinitely, and waits
// for in-flight sessions to notice the receiver is no longer alive.
func (r *Receiver) Stop() error {
	var err error
	r.closeOnce.Do(func() {
		r.alive.Store(false)
		if r.listener != nil {
			if cerr := r.listener.Close(); cerr != nil && !isAlreadyClosed(cerr) {
				err = cerr
			}
		}
		r.mu.Lock()
		for conn := range r.sessions {
			conn.Close()
		}
		r.mu.Unlock()
		r.keepAlive.Release()
	})
	r.wg.Wait()
	return err
}

func (r *Receiver) trackSession(conn net.Conn) {
	r.mu.Lock()
	r.sessions[conn] = struct{}{}
	r.mu.Unlock()
}

func (r *Receiver) untrackSession(conn net.Conn) {
	r.mu.Lock()
	delete(r.sessions, conn)
	r.mu.Unlock()
}

func isAlreadyClosed(err error) bool {
	return err != nil && (err == net.ErrClosed || fmt.Sprint(err) == "use of closed network connection")
}

func (r *Receiver) acceptLoop() {
	defer r.wg.Done()
	for {
		conn, err := r.listener.Accept()
		if err != nil {
			if !r.alive.Load() {
				return
			}
			r.lg.WithError(err).Error("mo receiver: accept")
			continue
		}
		r.trackSession(conn)
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			defer r.untrackSession(conn)
			r.serve(conn)
		}()
	}
}

// incomingSession holds a back-reference to its owning Receiver. Since a
// session can outlive its receiver (e.g. Stop() races with an in-flight
// accept), it only acts on that reference while the receiver reports itself
// alive — the Go stand-in for a weak-pointer-and-upgrade check on this
// cyclic relationship.
type incomingSession struct {
	conn  net.Conn
	owner *Receiver
}

func (s *incomingSession) emitMessage(msg *MoMessage) {
	if !s.owner.alive.Load() {
		return
	}
	moReceivedTotal.Inc()
	s.owner.onMessage(msg)
}

func (s *incomingSession) emitError(err error) {
	if !s.owner.alive.Load() {
		return
	}
	moSessionErrorsTotal.Inc()
	s.owner.onErr(err)
}

// serve implements the per-connection framing protocol: read the 3-byte
// message header, validate proto, read until overall_length bytes of body
// are buffered, classify and require MO, parse, emit.
func (r *Receiver) serve(conn net.Conn) {
	defer conn.Close()
	session := &incomingSession{conn: conn, owner: r}

	reader := bufio.NewReaderSize(conn, 4096)

	conn.SetReadDeadline(time.Now().Add(sessionReadTimeout))
	hdr := make([]byte, 3)
	if _, err := io.ReadFull(reader, hdr); err != nil {
		session.emitError(fmt.Errorf("mo session: read header: %w", err))
		return
	}
	overallLen, err := ParseMessageHeader(hdr)
	if err != nil {
		session.emitError(err)
		return
	}

	conn.SetReadDeadline(time.Now().Add(sessionReadTimeout))
	body := make([]byte, overallLen)
	if _, err := io.ReadFull(reader, body); err != nil {
		session.emitError(fmt.Errorf("mo session: read body: %w", err))
		return
	}

	if Classify(body) != MO {
		session.emitError(errMissingElement{"expected MO message"})
		return
	}
	msg, err := ParseMO(body)
	if err != nil {
		session.emitError(err)
		return
	}
	session.emitMessage(msg)

	if residual := reader.Buffered(); residual > 0 {
		session.emitError(fmt.Errorf("mo session: %d residual bytes after message", residual))
	}
}
