package iridium

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	mo := MoHeader{CdrRef: 1, IMEI: IMEI("300234010000000")}.packInto(nil)
	mo = MoPayload{Data: []byte{1, 2, 3}}.packInto(mo)

	mt := MtHeader{UniqueClientMsgID: 1, IMEI: IMEI("300234010000000")}.packInto(nil)
	mt = MtPayload{Data: []byte{1, 2, 3}}.packInto(mt)
	mt = MtPriority{Priority: 3}.packInto(mt)

	confirm := MtConfirmation{UniqueClientMsgID: 1, IMEI: IMEI("300234010000000")}.packInto(nil)

	mixed := MoHeader{CdrRef: 1, IMEI: IMEI("300234010000000")}.packInto(nil)
	mixed = MtPayload{Data: []byte{1}}.packInto(mixed)

	tests := []struct {
		name string
		body []byte
		want MessageCategory
	}{
		{"mo message", mo, MO},
		{"mt message", mt, MT},
		{"mt confirmation", confirm, MTConfirm},
		{"empty body", nil, Unknown},
		{"mixed families", mixed, Unknown},
		{"truncated header", []byte{0x01, 0x00}, Unknown},
		{"unknown id", []byte{0x99, 0x00, 0x00}, Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.body); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseMO(t *testing.T) {
	header := MoHeader{
		CdrRef:        42,
		IMEI:          IMEI("300234010000000"),
		SessionStatus: 0,
		MOMSN:         1,
		MTMSN:         0,
		SessionTime:   1700000000,
	}
	loc := MoLocationInfo{LatDeg: 10, LonDeg: 20}
	payload := MoPayload{Data: []byte("hello")}

	body := header.packInto(nil)
	body = loc.packInto(body)
	body = payload.packInto(body)

	msg, err := ParseMO(body)
	require.NoError(t, err)
	assert.Equal(t, header, msg.Header)
	assert.Equal(t, payload, msg.Payload)
	require.NotNil(t, msg.Location)
	assert.Equal(t, loc, *msg.Location)
}

func TestParseMO_missingPayload(t *testing.T) {
	body := MoHeader{CdrRef: 1, IMEI: IMEI("300234010000000")}.packInto(nil)
	_, err := ParseMO(body)
	assert.True(t, IsErrMissingElement(err))
}

func TestParseMO_missingHeader(t *testing.T) {
	body := MoPayload{Data: []byte{1}}.packInto(nil)
	_, err := ParseMO(body)
	assert.True(t, IsErrMissingElement(err))
}

func TestParseMO_duplicateHeader(t *testing.T) {
	h := MoHeader{CdrRef: 1, IMEI: IMEI("300234010000000")}
	body := h.packInto(nil)
	body = h.packInto(body)
	body = MoPayload{Data: []byte{1}}.packInto(body)
	_, err := ParseMO(body)
	assert.True(t, IsErrMissingElement(err))
}

func TestNewMtMessage(t *testing.T) {
	header := MtHeader{UniqueClientMsgID: 7, IMEI: IMEI("300234010000000"), Disposition: MtFlagHighPriority}
	msg, err := NewMtMessage(header, []byte("payload"), 2)
	require.NoError(t, err)
	assert.Equal(t, header, msg.Header)
	assert.Equal(t, []byte("payload"), msg.Payload.Data)
	assert.Equal(t, uint16(2), msg.Priority.Priority)
}

func TestNewMtMessage_invalidIMEI(t *testing.T) {
	header := MtHeader{UniqueClientMsgID: 7, IMEI: IMEI("not-an-imei")}
	_, err := NewMtMessage(header, []byte("payload"), 2)
	assert.True(t, IsErrInvalidIMEI(err))
}

func TestNewMtMessage_emptyPayloadRejected(t *testing.T) {
	header := MtHeader{UniqueClientMsgID: 7, IMEI: IMEI("300234010000000")}
	_, err := NewMtMessage(header, nil, 2)
	assert.True(t, IsErrLengthOutOfRange(err))
}

func TestNewMtMessage_oversizePayloadRejected(t *testing.T) {
	header := MtHeader{UniqueClientMsgID: 7, IMEI: IMEI("300234010000000")}
	_, err := NewMtMessage(header, bytes.Repeat([]byte{1}, maxMtPayloadLen+1), 2)
	assert.True(t, IsErrLengthOutOfRange(err))
}

func TestSerializeMT_headerLengthAndCategory(t *testing.T) {
	header := MtHeader{UniqueClientMsgID: 1, IMEI: IMEI("300234010000000"), Disposition: MtFlagFlushQueue}
	msg, err := NewMtMessage(header, []byte{0xAA, 0xBB}, 4)
	require.NoError(t, err)

	frame := SerializeMT(msg)

	require.True(t, len(frame) > 3)
	assert.Equal(t, byte(protocolVersion), frame[0])
	overallLen := int(parseBigEndianUint16(frame[1:3]))
	assert.Equal(t, len(frame)-3, overallLen)

	cat := Classify(frame[3:])
	assert.Equal(t, MT, cat)
}

func TestParseMTConfirm(t *testing.T) {
	confirm := MtConfirmation{UniqueClientMsgID: 9, IMEI: IMEI("300234010000000"), AutoIDRef: 100, MsgStatus: 0}
	body := confirm.packInto(nil)

	msg, err := ParseMTConfirm(body)
	require.NoError(t, err)
	assert.Equal(t, confirm, msg.Confirmation)
}

func TestParseMTConfirm_wrongFamily(t *testing.T) {
	body := MoConfirmation{Status: 1}.packInto(nil)
	_, err := ParseMTConfirm(body)
	assert.True(t, IsErrMissingElement(err))
}

func TestParseMessageHeader(t *testing.T) {
	data := []byte{protocolVersion, 0x01, 0x00}
	overallLen, err := ParseMessageHeader(data)
	require.NoError(t, err)
	assert.Equal(t, 256, overallLen)
}

func TestParseMessageHeader_badProtocol(t *testing.T) {
	data := []byte{2, 0x00, 0x00}
	_, err := ParseMessageHeader(data)
	assert.True(t, IsErrInvalidProtocol(err))
}

func TestParseMessageHeader_truncated(t *testing.T) {
	_, err := ParseMessageHeader([]byte{protocolVersion, 0x00})
	assert.True(t, IsErrTruncatedInput(err))
}
