package iridium

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// txState is one state of the MT transmit engine's state machine.
type txState int

const (
	stateNotConnected txState = iota
	stateResolving
	stateConnecting
	stateSending
	stateRecvHeader
	stateRecvConfirm
	stateProcConfirm
	stateError
	stateSuccess
)

func (s txState) String() string {
	switch s {
	case stateNotConnected:
		return "NOT_CONNECTED"
	case stateResolving:
		return "RESOLVING"
	case stateConnecting:
		return "CONNECTING"
	case stateSending:
		return "SENDING"
	case stateRecvHeader:
		return "RECV_HEADER"
	case stateRecvConfirm:
		return "RECV_CONFIRM"
	case stateProcConfirm:
		return "PROC_CONFIRM"
	case stateError:
		return "ERROR"
	case stateSuccess:
		return "SUCCESS"
	default:
		return "UNKNOWN"
	}
}

// KeepAliveGuard is an injected collaborator representing the embedder's
// event loop lifetime token. Acquire is called whenever the engine leaves
// NOT_CONNECTED; Release is called whenever it returns to NOT_CONNECTED.
type KeepAliveGuard interface {
	Acquire()
	Release()
}

type noopKeepAliveGuard struct{}

func (noopKeepAliveGuard) Acquire() {}
func (noopKeepAliveGuard) Release() {}

// Transmitter is the MT transmit engine: a single worker goroutine driving
// the resolve -> connect -> send -> receive-confirmation state machine with
// exponential backoff and at-least-once re-queue on failure.
type Transmitter struct {
	host string
	port int

	heartbeat   time.Duration
	maxDelay    int
	dialTimeout time.Duration

	queue     *MtQueue
	keepAlive KeepAliveGuard

	onError  func(error)
	onResult func(int16)

	lg *logrus.Logger

	shutdown chan struct{}
	closeOne sync.Once
	wg       sync.WaitGroup

	bo *backoff.ExponentialBackOff

	mu         sync.Mutex
	cancelCurr context.CancelFunc
	activeConn net.Conn
}

// NewTransmitter returns a Transmitter configured to submit MT messages to
// host:port, applying any supplied options.
func NewTransmitter(host string, port int, opts ...TransmitterOption) *Transmitter {
	t := &Transmitter{
		host:        host,
		port:        port,
		heartbeat:   100 * time.Millisecond,
		maxDelay:    64,
		dialTimeout: 30 * time.Second,
		queue:       NewMtQueue(),
		keepAlive:   noopKeepAliveGuard{},
		onError:     func(error) {},
		onResult:    func(int16) {},
		lg:          _lg,
		shutdown:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.bo = t.backoffPolicy()
	return t
}

// backoffPolicy returns the exponential backoff policy driving the ERROR
// state's retry delay: heartbeat * err_delay, doubling each consecutive
// error up to maxDelay, deterministic rather than jittered, reset to
// heartbeat on the first successful confirmation.
func (t *Transmitter) backoffPolicy() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.heartbeat
	b.Multiplier = 2
	b.MaxInterval = t.heartbeat * time.Duration(t.maxDelay)
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0 // retry indefinitely until Stop()
	b.Reset()
	return b
}

// Post enqueues msg for transmission (tail of the FIFO).
func (t *Transmitter) Post(msg *MtMessage) {
	t.queue.Put(msg)
	mtQueueDepth.Set(float64(t.queue.Len()))
}

// Start launches the worker goroutine. It is not safe to call twice.
func (t *Transmitter) Start() {
	t.wg.Add(1)
	go t.run()
}

// Stop requests shutdown, cancels any in-flight operation, forces any
// blocked socket read/write to unblock immediately, and blocks until the
// worker goroutine has exited.
func (t *Transmitter) Stop() {
	t.closeOne.Do(func() {
		close(t.shutdown)
		t.mu.Lock()
		if t.cancelCurr != nil {
			t.cancelCurr()
		}
		if t.activeConn != nil {
			t.activeConn.Close()
		}
		t.mu.Unlock()
	})
	t.wg.Wait()
}

// setActiveConn records conn as the one in-flight socket so Stop can force
// it closed from another goroutine. A nil conn clears the record.
func (t *Transmitter) setActiveConn(conn net.Conn) {
	t.mu.Lock()
	t.activeConn = conn
	t.mu.Unlock()
}

func (t *Transmitter) isShuttingDown() bool {
	select {
	case <-t.shutdown:
		return true
	default:
		return false
	}
}

func (t *Transmitter) withCancel() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.cancelCurr = cancel
	t.mu.Unlock()
	return ctx, cancel
}

func (t *Transmitter) run() {
	defer t.wg.Done()

	for !t.isShuttingDown() {
		if !t.queue.WaitForNonEmpty(t.heartbeat) {
			continue
		}
		if t.isShuttingDown() {
			return
		}
		t.keepAlive.Acquire()
		t.attempt()
		t.keepAlive.Release()
	}
}

// attempt runs exactly one resolve->connect->send->recv cycle.
func (t *Transmitter) attempt() {
	state := stateResolving
	var conn net.Conn
	var inFlight *MtMessage
	var failErr error

	for {
		if t.isShuttingDown() {
			if conn != nil {
				t.setActiveConn(nil)
				conn.Close()
			}
			return
		}

		switch state {
		case stateResolving:
			ctx, cancel := t.withCancel()
			lookupCtx, cancelLookup := context.WithTimeout(ctx, t.dialTimeout)
			addrs, err := net.DefaultResolver.LookupIPAddr(lookupCtx, t.host)
			cancelLookup()
			cancel()
			if err != nil {
				failErr = fmt.Errorf("resolve %s: %w", t.host, err)
				state = stateError
				continue
			}
			state = stateConnecting
			conn, err = t.connectAny(addrs)
			if err != nil {
				failErr = err
				state = stateError
				continue
			}
			t.setActiveConn(conn)
			state = stateSending

		case stateSending:
			msg, ok := t.queue.Get()
			if !ok {
				t.setActiveConn(nil)
				conn.Close()
				return
			}
			mtQueueDepth.Set(float64(t.queue.Len()))
			inFlight = msg
			frame := SerializeMT(msg)
			conn.SetWriteDeadline(time.Now().Add(t.dialTimeout))
			if _, err := conn.Write(frame); err != nil {
				failErr = fmt.Errorf("write: %w", err)
				state = stateError
				continue
			}
			mtSentTotal.Inc()
			state = stateRecvHeader

		case stateRecvHeader:
			hdr := make([]byte, 3)
			conn.SetReadDeadline(time.Now().Add(t.dialTimeout))
			if _, err := io.ReadFull(conn, hdr); err != nil {
				failErr = fmt.Errorf("read header: %w", err)
				state = stateError
				continue
			}
			overallLen, err := ParseMessageHeader(hdr)
			if err != nil {
				failErr = err
				state = stateError
				continue
			}
			state, failErr = t.recvConfirm(conn, overallLen, inFlight)
			continue

		case stateError:
			t.lg.WithError(failErr).Debug("mt transmit engine: error")
			mtErrorsTotal.Inc()
			if inFlight != nil {
				t.queue.UngetFront(inFlight)
				mtQueueDepth.Set(float64(t.queue.Len()))
			}
			if conn != nil {
				t.setActiveConn(nil)
				conn.Close()
			}
			t.onError(failErr)

			delay := t.bo.NextBackOff()
			if delay == backoff.Stop {
				delay = t.bo.MaxInterval
			}
			mtBackoffSeconds.Observe(delay.Seconds())
			select {
			case <-time.After(delay):
			case <-t.shutdown:
			}
			return

		case stateSuccess:
			t.setActiveConn(nil)
			conn.Close()
			t.bo.Reset()
			return
		}
	}
}

// recvConfirm implements RECV_CONFIRM and PROC_CONFIRM: it accumulates
// bytes until the buffer holds overallLen bytes rather than re-entering on
// a partial read, classifies the result as MT_CONFIRM, and parses it.
func (t *Transmitter) recvConfirm(conn net.Conn, overallLen int, inFlight *MtMessage) (txState, error) {
	body := make([]byte, overallLen)
	conn.SetReadDeadline(time.Now().Add(t.dialTimeout))
	if _, err := io.ReadFull(conn, body); err != nil {
		return stateError, fmt.Errorf("read confirmation: %w", err)
	}

	if Classify(body) != MTConfirm {
		return stateError, errMissingElement{"expected MT_CONFIRM"}
	}
	confirm, err := ParseMTConfirm(body)
	if err != nil {
		return stateError, err
	}

	t.onResult(confirm.Confirmation.MsgStatus)
	if confirm.Confirmation.MsgStatus < 0 {
		return stateError, fmt.Errorf("mt confirmation status %d", confirm.Confirmation.MsgStatus)
	}
	mtConfirmedTotal.Inc()
	t.lg.WithField("msg_id", inFlight.Header.UniqueClientMsgID).Debug("mt transmit engine: confirmed")
	return stateSuccess, nil
}

func (t *Transmitter) connectAny(addrs []net.IPAddr) (net.Conn, error) {
	var lastErr error
	dialer := net.Dialer{Timeout: t.dialTimeout}
	for _, addr := range addrs {
		ctx, cancel := t.withCancel()
		conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(addr.IP.String(), strconv.Itoa(t.port)))
		cancel()
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no addresses resolved for %s", t.host)
	}
	return nil, fmt.Errorf("connect %s:%d: %w", t.host, t.port, lastErr)
}
