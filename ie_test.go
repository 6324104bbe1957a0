package iridium

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestIMEI_Valid(t *testing.T) {
	tests := []struct {
		name string
		imei IMEI
		want bool
	}{
		{"valid 15 digits", IMEI("300234010000000"), true},
		{"too short", IMEI("30023401000000"), false},
		{"too long", IMEI("3002340100000000"), false},
		{"contains letter", IMEI("30023401000000A"), false},
		{"empty", IMEI(""), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.imei.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMtPriority_packInto_clampsOutOfRange(t *testing.T) {
	tests := []struct {
		name     string
		priority uint16
		want     uint16
	}{
		{"in range", 3, 3},
		{"zero clamps", 0, clampMtPriority},
		{"above max clamps", 9, clampMtPriority},
		{"exactly max", maxMtPriority, maxMtPriority},
		{"exactly min", minMtPriority, minMtPriority},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := MtPriority{Priority: tt.priority}.packInto(nil)
			elem, _, err := unpackElement(ElementMtPriority, buf[1:])
			if err != nil {
				t.Fatalf("unpackElement: %v", err)
			}
			got := elem.(MtPriority).Priority
			if got != tt.want {
				t.Errorf("priority = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMoHeader_roundTrip(t *testing.T) {
	h := MoHeader{
		CdrRef:        12345,
		IMEI:          IMEI("300234010000000"),
		SessionStatus: 0,
		MOMSN:         7,
		MTMSN:         0,
		SessionTime:   1700000000,
	}
	buf := h.packInto(nil)
	if buf[0] != byte(ElementMoHeader) {
		t.Fatalf("id byte = 0x%02x, want 0x%02x", buf[0], ElementMoHeader)
	}
	elem, consumed, err := unpackElement(ElementMoHeader, buf[1:])
	if err != nil {
		t.Fatalf("unpackElement: %v", err)
	}
	if consumed != len(buf)-1 {
		t.Errorf("consumed = %d, want %d", consumed, len(buf)-1)
	}
	got := elem.(MoHeader)
	if got != h {
		t.Errorf("round trip = %+v, want %+v", got, h)
	}
}

func TestMoLocationInfo_roundTrip(t *testing.T) {
	loc := MoLocationInfo{
		South:            true,
		West:             false,
		LatDeg:           52,
		LatThousandthMin: 123,
		LonDeg:           13,
		LonThousandthMin: 456,
		CEPRadiusKm:      4,
	}
	buf := loc.packInto(nil)
	elem, _, err := unpackElement(ElementMoLocationInfo, buf[1:])
	if err != nil {
		t.Fatalf("unpackElement: %v", err)
	}
	got := elem.(MoLocationInfo)
	if got != loc {
		t.Errorf("round trip = %+v, want %+v", got, loc)
	}
}

func TestUnpackElement_lengthMismatch(t *testing.T) {
	// MoHeader declares a 28-byte content but only 27 bytes are provided.
	data := append([]byte{0x00, 27}, make([]byte, 27)...)
	_, _, err := unpackElement(ElementMoHeader, data)
	assert.True(t, IsErrLengthMismatch(err), "expected length mismatch, got %v", err)
}

func TestUnpackElement_unknownID(t *testing.T) {
	_, _, err := unpackElement(ElementID(0x99), []byte{0x00, 0x00})
	assert.True(t, IsErrUnknownElementID(err), "expected unknown element id, got %v", err)
}

func TestUnpackElement_truncated(t *testing.T) {
	_, _, err := unpackElement(ElementMoConfirmation, []byte{0x00})
	assert.True(t, IsErrTruncatedInput(err), "expected truncated input, got %v", err)
}

func TestUnpackElement_variableLengthOutOfRange(t *testing.T) {
	tooLong := serializeBigEndianUint16(uint16(maxMoPayloadLen + 1))
	data := append(tooLong, make([]byte, maxMoPayloadLen+1)...)
	_, _, err := unpackElement(ElementMoPayload, data)
	assert.True(t, IsErrLengthOutOfRange(err), "expected length out of range, got %v", err)
}

// TestMoPayload_roundTrip_property checks the fixed-length-free round-trip
// law for variable-length payload content: any payload within [1, max]
// survives pack/unpack unchanged.
func TestMoPayload_roundTrip_property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		data := rapid.SliceOfN(rapid.Byte(), 1, maxMoPayloadLen).Draw(t, "payload")
		buf := MoPayload{Data: data}.packInto(nil)
		elem, consumed, err := unpackElement(ElementMoPayload, buf[1:])
		if err != nil {
			t.Fatalf("unpackElement: %v", err)
		}
		if consumed != len(buf)-1 {
			t.Fatalf("consumed = %d, want %d", consumed, len(buf)-1)
		}
		got := elem.(MoPayload).Data
		if !bytes.Equal(got, data) {
			t.Fatalf("round trip mismatch: got %v, want %v", got, data)
		}
	})
}

// TestMtPayload_packInto_truncatesOversize exercises packInto's silent
// truncation at the factory boundary, distinct from NewMtMessage's
// synchronous rejection of oversize payloads.
func TestMtPayload_packInto_truncatesOversize(t *testing.T) {
	data := bytes.Repeat([]byte{0x42}, maxMtPayloadLen+10)
	buf := MtPayload{Data: data}.packInto(nil)
	elem, _, err := unpackElement(ElementMtPayload, buf[1:])
	if err != nil {
		t.Fatalf("unpackElement: %v", err)
	}
	got := elem.(MtPayload).Data
	if len(got) != maxMtPayloadLen {
		t.Errorf("truncated length = %d, want %d", len(got), maxMtPayloadLen)
	}
}

func TestMtConfirmation_roundTrip(t *testing.T) {
	tests := []struct {
		name string
		c    MtConfirmation
	}{
		{"success", MtConfirmation{UniqueClientMsgID: 1, IMEI: IMEI("300234010000000"), AutoIDRef: 99, MsgStatus: 0}},
		{"error status", MtConfirmation{UniqueClientMsgID: 2, IMEI: IMEI("300234010000000"), AutoIDRef: 0, MsgStatus: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := tt.c.packInto(nil)
			elem, _, err := unpackElement(ElementMtConfirmation, buf[1:])
			if err != nil {
				t.Fatalf("unpackElement: %v", err)
			}
			if got := elem.(MtConfirmation); got != tt.c {
				t.Errorf("round trip = %+v, want %+v", got, tt.c)
			}
		})
	}
}
