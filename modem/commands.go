package modem

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Reset issues ATQ0V1 (echo/verbose mode reset to a known state).
func (m *Modem) Reset(ctx context.Context) error {
	_, err := m.command(ctx, "ATQ0V1", "OK", m.commandTimeout)
	return err
}

// NetworkRegistration issues AT+CREG? and returns the registration status
// digit from the +CREG: response line.
func (m *Modem) NetworkRegistration(ctx context.Context) (int, error) {
	lines, err := m.command(ctx, "AT+CREG?", "OK", m.commandTimeout)
	if err != nil {
		return 0, err
	}
	return firstIntAfter(lines, "+CREG:")
}

// SignalQuality issues AT+CSQ? and returns the signal bar count (0-5).
func (m *Modem) SignalQuality(ctx context.Context) (int, error) {
	lines, err := m.command(ctx, "AT+CSQ?", "OK", m.commandTimeout)
	if err != nil {
		return 0, err
	}
	return firstIntAfter(lines, "+CSQ:")
}

// SignalQualityNow issues AT+CSQF?, the non-blocking signal-quality variant.
func (m *Modem) SignalQualityNow(ctx context.Context) (int, error) {
	lines, err := m.command(ctx, "AT+CSQF?", "OK", m.commandTimeout)
	if err != nil {
		return 0, err
	}
	return firstIntAfter(lines, "+CSQF:")
}

// RingAlertPending issues AT+SBDDET to poll whether a ring alert has been detected.
func (m *Modem) RingAlertPending(ctx context.Context) (bool, error) {
	lines, err := m.command(ctx, "AT+SBDDET", "OK", m.commandTimeout)
	if err != nil {
		return false, err
	}
	n, err := firstIntAfter(lines, "+SBDDET:")
	return n != 0, err
}

// QueueStatus issues AT+SBDSX and returns the six comma-separated status
// fields (MO flag, MOMSN, MT flag, MTMSN, RA flag, msg waiting count).
func (m *Modem) QueueStatus(ctx context.Context) ([]int, error) {
	lines, err := m.command(ctx, "AT+SBDSX", "OK", m.commandTimeout)
	if err != nil {
		return nil, err
	}
	return intsAfter(lines, "+SBDSX:")
}

// ClearBuffer kind: 0 clears the MO buffer, 1 the MT buffer, 2 both.
func (m *Modem) ClearBuffer(ctx context.Context, which int) error {
	_, err := m.command(ctx, fmt.Sprintf("AT+SBDD%d", which), "OK", m.commandTimeout)
	return err
}

// CloseSession issues AT+SBDC, clearing the MOMSN/MTMSN session state.
func (m *Modem) CloseSession(ctx context.Context) error {
	_, err := m.command(ctx, "AT+SBDC", "OK", m.commandTimeout)
	return err
}

// WriteMO writes payload into the ISU's MO buffer via SBDWB: the length
// command, a READY handshake, the payload, and a 16-bit big-endian checksum
// (low 16 bits of the byte sum). It returns the single-digit SBDWB result
// code (0 = success).
func (m *Modem) WriteMO(ctx context.Context, payload []byte) (int, error) {
	if len(payload) < 1 || len(payload) > MaxMOPayload {
		return 0, fmt.Errorf("modem: MO payload length %d out of range [1, %d]", len(payload), MaxMOPayload)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cmd := fmt.Sprintf("AT+SBDWB=%d\r", len(payload))
	if _, err := io.WriteString(m.port, cmd); err != nil {
		return 0, fmt.Errorf("modem: sbdwb length: %w", err)
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, m.commandTimeout)
	defer cancel()
	ready, err := m.readLinesUntil(ctxTimeout, "READY")
	if err != nil {
		return 0, fmt.Errorf("modem: sbdwb awaiting READY: %w (saw %v)", err, ready)
	}

	frame := make([]byte, 0, len(payload)+2)
	frame = append(frame, payload...)
	checksum := make([]byte, 2)
	binary.BigEndian.PutUint16(checksum, checksum16(payload))
	frame = append(frame, checksum...)

	if _, err := m.port.Write(frame); err != nil {
		return 0, fmt.Errorf("modem: sbdwb payload: %w", err)
	}

	ctxResult, cancel2 := context.WithTimeout(ctx, m.commandTimeout)
	defer cancel2()
	lines, err := m.readLinesUntil(ctxResult, "OK")
	if err != nil {
		return 0, fmt.Errorf("modem: sbdwb result: %w", err)
	}
	for _, line := range lines {
		if n, err := strconv.Atoi(strings.TrimSpace(line)); err == nil {
			return n, nil
		}
	}
	return 0, fmt.Errorf("modem: sbdwb: no result code in %v", lines)
}

// ReadMT reads the ISU's MT buffer via SBDRB: a 2-byte BE length, the
// payload, and a 2-byte BE checksum, verified against the low 16 bits of the
// payload byte sum. A zero length means the MT buffer is empty.
func (m *Modem) ReadMT(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := io.WriteString(m.port, "AT+SBDRB\r"); err != nil {
		return nil, fmt.Errorf("modem: sbdrb: %w", err)
	}

	lenBuf := make([]byte, 2)
	if _, err := io.ReadFull(m.reader, lenBuf); err != nil {
		return nil, fmt.Errorf("modem: sbdrb length: %w", err)
	}
	length := binary.BigEndian.Uint16(lenBuf)
	if length == 0 {
		m.drainTrailer(ctx)
		return nil, nil
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(m.reader, payload); err != nil {
		return nil, fmt.Errorf("modem: sbdrb payload: %w", err)
	}
	checksumBuf := make([]byte, 2)
	if _, err := io.ReadFull(m.reader, checksumBuf); err != nil {
		return nil, fmt.Errorf("modem: sbdrb checksum: %w", err)
	}
	if got, want := binary.BigEndian.Uint16(checksumBuf), checksum16(payload); got != want {
		return nil, fmt.Errorf("modem: sbdrb checksum mismatch: got %04x want %04x", got, want)
	}
	m.drainTrailer(ctx)
	return payload, nil
}

// drainTrailer reads the trailing OK\r\n that follows a binary SBDRB
// transfer; failures are not fatal to the already-read payload.
func (m *Modem) drainTrailer(ctx context.Context) {
	ctxTimeout, cancel := context.WithTimeout(ctx, m.commandTimeout)
	defer cancel()
	_, _ = m.readLinesUntil(ctxTimeout, "OK")
}

// SessionResult is the parsed response to SBDIX/SBDIXA.
type SessionResult struct {
	MOStatus int
	MOMSN    int
	MTStatus int
	MTMSN    int
	MTLength int
	MTQueued int
}

// InitiateSession issues SBDIX (or SBDIXA when answering a ring alert) with
// the 50-second session timeout, and parses the six-field +SBDIX: response
// line.
func (m *Modem) InitiateSession(ctx context.Context, ringAlert bool) (*SessionResult, error) {
	cmd := "AT+SBDIX"
	if ringAlert {
		cmd = "AT+SBDIXA"
	}
	lines, err := m.command(ctx, cmd, "OK", m.sessionTimeout)
	if err != nil {
		return nil, err
	}
	fields, err := intsAfter(lines, "+SBDIX:")
	if err != nil {
		return nil, err
	}
	if len(fields) < 6 {
		return nil, fmt.Errorf("modem: sbdix: expected 6 fields, got %d: %v", len(fields), lines)
	}
	return &SessionResult{
		MOStatus: fields[0],
		MOMSN:    fields[1],
		MTStatus: fields[2],
		MTMSN:    fields[3],
		MTLength: fields[4],
		MTQueued: fields[5],
	}, nil
}

func firstIntAfter(lines []string, prefix string) (int, error) {
	fields, err := intsAfter(lines, prefix)
	if err != nil {
		return 0, err
	}
	if len(fields) == 0 {
		return 0, fmt.Errorf("modem: no fields after %q in %v", prefix, lines)
	}
	return fields[0], nil
}

func intsAfter(lines []string, prefix string) ([]int, error) {
	for _, line := range lines {
		if !strings.HasPrefix(line, prefix) {
			continue
		}
		rest := strings.TrimSpace(strings.TrimPrefix(line, prefix))
		parts := strings.Split(rest, ",")
		out := make([]int, 0, len(parts))
		for _, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return nil, fmt.Errorf("modem: parse field %q in %q: %w", p, line, err)
			}
			out = append(out, n)
		}
		return out, nil
	}
	return nil, fmt.Errorf("modem: no line with prefix %q in %v", prefix, lines)
}
