package iridium

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func startTestReceiver(t *testing.T, opts ...ReceiverOption) (*Receiver, func()) {
	t.Helper()
	r := NewReceiver("127.0.0.1:0", opts...)
	require.NoError(t, r.Start())
	return r, func() { _ = r.Stop() }
}

func TestReceiver_parsesSingleMoMessage(t *testing.T) {
	received := make(chan *MoMessage, 1)
	r, stop := startTestReceiver(t, WithReceiverOnMessage(func(m *MoMessage) {
		received <- m
	}))
	defer stop()

	header := MoHeader{CdrRef: 1, IMEI: IMEI("300234010000000"), MOMSN: 3}
	body := header.packInto(nil)
	body = MoPayload{Data: []byte("hi")}.packInto(body)

	frame := make([]byte, 0, 3+len(body))
	frame = append(frame, protocolVersion)
	frame = append(frame, serializeBigEndianUint16(uint16(len(body)))...)
	frame = append(frame, body...)

	conn, err := net.Dial("tcp", r.listener.Addr().String())
	require.NoError(t, err)
	_, err = conn.Write(frame)
	require.NoError(t, err)
	conn.Close()

	select {
	case msg := <-received:
		if msg.Header.CdrRef != 1 {
			t.Errorf("CdrRef = %d, want 1", msg.Header.CdrRef)
		}
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
}

func TestReceiver_rejectsNonMoMessage(t *testing.T) {
	gotErr := make(chan error, 1)
	r, stop := startTestReceiver(t, WithReceiverOnError(func(err error) {
		gotErr <- err
	}))
	defer stop()

	// An MT message is not valid on the MO receive port.
	mt := MtHeader{UniqueClientMsgID: 1, IMEI: IMEI("300234010000000")}.packInto(nil)
	mt = MtPayload{Data: []byte{1}}.packInto(mt)
	mt = MtPriority{Priority: 1}.packInto(mt)

	frame := make([]byte, 0, 3+len(mt))
	frame = append(frame, protocolVersion)
	frame = append(frame, serializeBigEndianUint16(uint16(len(mt)))...)
	frame = append(frame, mt...)

	conn, err := net.Dial("tcp", r.listener.Addr().String())
	require.NoError(t, err)
	_, err = conn.Write(frame)
	require.NoError(t, err)
	conn.Close()

	select {
	case err := <-gotErr:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("no error reported for non-MO message")
	}
}

func TestReceiver_rejectsBadProtocolByte(t *testing.T) {
	gotErr := make(chan error, 1)
	r, stop := startTestReceiver(t, WithReceiverOnError(func(err error) {
		gotErr <- err
	}))
	defer stop()

	conn, err := net.Dial("tcp", r.listener.Addr().String())
	require.NoError(t, err)
	_, err = conn.Write([]byte{0x02, 0x00, 0x00})
	require.NoError(t, err)
	conn.Close()

	select {
	case err := <-gotErr:
		if !IsErrInvalidProtocol(err) {
			t.Errorf("got %v, want invalid protocol error", err)
		}
	case <-time.After(time.Second):
		t.Fatal("no error reported for bad protocol byte")
	}
}

func TestReceiver_stopClosesListener(t *testing.T) {
	r := NewReceiver("127.0.0.1:0")
	require.NoError(t, r.Start())
	addr := r.listener.Addr().String()
	require.NoError(t, r.Stop())

	_, err := net.Dial("tcp", addr)
	require.Error(t, err)
}
