package iridium

import (
	"fmt"
)

// ElementID identifies one of the eight recognized Direct-IP information
// element kinds. Values outside the recognized set are rejected by the
// decoder table in unpackElement.
type ElementID byte

const (
	ElementMoHeader       ElementID = 0x01
	ElementMoPayload      ElementID = 0x02
	ElementMoLocationInfo ElementID = 0x03
	ElementMoConfirmation ElementID = 0x05
	ElementMtHeader       ElementID = 0x41
	ElementMtPayload      ElementID = 0x42
	ElementMtConfirmation ElementID = 0x44
	ElementMtPriority     ElementID = 0x46
)

func (id ElementID) String() string {
	switch id {
	case ElementMoHeader:
		return "MoHeader"
	case ElementMoPayload:
		return "MoPayload"
	case ElementMoLocationInfo:
		return "MoLocationInfo"
	case ElementMoConfirmation:
		return "MoConfirmation"
	case ElementMtHeader:
		return "MtHeader"
	case ElementMtPayload:
		return "MtPayload"
	case ElementMtConfirmation:
		return "MtConfirmation"
	case ElementMtPriority:
		return "MtPriority"
	default:
		return fmt.Sprintf("ElementID(0x%02x)", byte(id))
	}
}

// MaxMoPayloadLen and MaxMtPayloadLen are the maximum payload sizes for the
// MO and MT payload elements. The modem driver (package modem) reuses these
// sizing rules without reusing the Direct-IP TLV framing.
const (
	MaxMoPayloadLen = 1960
	MaxMtPayloadLen = 1890
)

const (
	maxMoPayloadLen = MaxMoPayloadLen
	maxMtPayloadLen = MaxMtPayloadLen

	moHeaderLen       = 28
	moLocationInfoLen = 11
	moConfirmationLen = 1
	mtHeaderLen       = 21
	mtConfirmationLen = 25
	mtPriorityLen     = 2

	imeiLen = 15
)

// IMEI is the fixed 15-character ASCII decimal device identifier. It is
// carried verbatim on the wire, with no endianness concerns.
type IMEI string

// Valid reports whether imei is exactly 15 ASCII decimal digits.
func (imei IMEI) Valid() bool {
	if len(imei) != imeiLen {
		return false
	}
	for i := 0; i < len(imei); i++ {
		c := imei[i]
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func encodeIMEI(imei IMEI) ([]byte, error) {
	if !imei.Valid() {
		return nil, errInvalidIMEI{string(imei)}
	}
	return []byte(imei), nil
}

func decodeIMEI(data []byte) IMEI {
	return IMEI(data)
}

// Element is a single Direct-IP information element: a tagged variant over
// the eight recognized kinds, rather than a class hierarchy (see spec's
// "polymorphic information elements" note). Every concrete element type
// implements this interface.
type Element interface {
	ID() ElementID
	// packInto appends (id, length_be_u16, content) to buf and returns the
	// extended slice.
	packInto(buf []byte) []byte
}

// elementDef describes how to decode one element kind once its id byte has
// been consumed by the caller.
type elementDef struct {
	fixedLen int // -1 for variable-length elements
	maxLen   int // only meaningful when fixedLen == -1
	decode   func(content []byte) (Element, error)
}

var elementTable = map[ElementID]elementDef{
	ElementMoHeader: {
		fixedLen: moHeaderLen,
		decode: func(c []byte) (Element, error) { return decodeMoHeader(c) },
	},
	ElementMoPayload: {
		fixedLen: -1,
		maxLen:   maxMoPayloadLen,
		decode:   func(c []byte) (Element, error) { return MoPayload{Data: append([]byte(nil), c...)}, nil },
	},
	ElementMoLocationInfo: {
		fixedLen: moLocationInfoLen,
		decode:   func(c []byte) (Element, error) { return decodeMoLocationInfo(c) },
	},
	ElementMoConfirmation: {
		fixedLen: moConfirmationLen,
		decode:   func(c []byte) (Element, error) { return MoConfirmation{Status: int8(c[0])}, nil },
	},
	ElementMtHeader: {
		fixedLen: mtHeaderLen,
		decode:   func(c []byte) (Element, error) { return decodeMtHeader(c) },
	},
	ElementMtPayload: {
		fixedLen: -1,
		maxLen:   maxMtPayloadLen,
		decode:   func(c []byte) (Element, error) { return MtPayload{Data: append([]byte(nil), c...)}, nil },
	},
	ElementMtConfirmation: {
		fixedLen: mtConfirmationLen,
		decode:   func(c []byte) (Element, error) { return decodeMtConfirmation(c) },
	},
	ElementMtPriority: {
		fixedLen: mtPriorityLen,
		decode:   func(c []byte) (Element, error) { return MtPriority{Priority: parseBigEndianUint16(c)}, nil },
	},
}

// unpackElement decodes one element whose id has already been consumed by
// the caller. data must point at the 2-byte length field. It returns the
// decoded element and the number of bytes consumed from data (2 + content
// length).
func unpackElement(id ElementID, data []byte) (Element, int, error) {
	def, ok := elementTable[id]
	if !ok {
		return nil, 0, errUnknownElementID{id}
	}
	if len(data) < 2 {
		return nil, 0, errTruncatedInput{id, 2, len(data)}
	}
	length := int(parseBigEndianUint16(data[:2]))

	if def.fixedLen >= 0 {
		if length != def.fixedLen {
			return nil, 0, errLengthMismatch{id, def.fixedLen, length}
		}
	} else {
		if length < 1 || length > def.maxLen {
			return nil, 0, errLengthOutOfRange{id, def.maxLen, length}
		}
	}

	consumed := 2 + length
	if len(data) < consumed {
		return nil, 0, errTruncatedInput{id, consumed, len(data)}
	}

	elem, err := def.decode(data[2:consumed])
	if err != nil {
		return nil, 0, err
	}
	return elem, consumed, nil
}

func packHeader(buf []byte, id ElementID, content []byte) []byte {
	buf = append(buf, byte(id))
	buf = append(buf, serializeBigEndianUint16(uint16(len(content)))...)
	return append(buf, content...)
}

// --- MO Header --------------------------------------------------------

// MoHeader is the 0x01 Mobile-Originated header element.
type MoHeader struct {
	CdrRef        uint32
	IMEI          IMEI
	SessionStatus uint8
	MOMSN         uint16
	MTMSN         uint16
	SessionTime   uint32
}

func (MoHeader) ID() ElementID { return ElementMoHeader }

func (h MoHeader) packInto(buf []byte) []byte {
	content := make([]byte, 0, moHeaderLen)
	content = append(content, serializeBigEndianUint32(h.CdrRef)...)
	content = append(content, []byte(h.IMEI)...)
	content = append(content, h.SessionStatus)
	content = append(content, serializeBigEndianUint16(h.MOMSN)...)
	content = append(content, serializeBigEndianUint16(h.MTMSN)...)
	content = append(content, serializeBigEndianUint32(h.SessionTime)...)
	return packHeader(buf, ElementMoHeader, content)
}

func decodeMoHeader(c []byte) (MoHeader, error) {
	return MoHeader{
		CdrRef:        parseBigEndianUint32(c[0:4]),
		IMEI:          decodeIMEI(c[4:19]),
		SessionStatus: c[19],
		MOMSN:         parseBigEndianUint16(c[20:22]),
		MTMSN:         parseBigEndianUint16(c[22:24]),
		SessionTime:   parseBigEndianUint32(c[24:28]),
	}, nil
}

// --- MO Payload ---------------------------------------------------------

// MoPayload is the 0x02 Mobile-Originated payload element (1..1960 bytes).
type MoPayload struct {
	Data []byte
}

func (MoPayload) ID() ElementID { return ElementMoPayload }

func (p MoPayload) packInto(buf []byte) []byte {
	content := p.Data
	if len(content) > maxMoPayloadLen {
		content = content[:maxMoPayloadLen]
	}
	return packHeader(buf, ElementMoPayload, content)
}

// --- MO Location Info -----------------------------------------------------

// Location flag bit masks, packed into a single byte. Go has no compiler
// bitfields, so the masks are defined explicitly.
const (
	locFlagEWI        = 1 << 7 // 0=E, 1=W
	locFlagNSI        = 1 << 6 // 0=N, 1=S
	locFlagFormatMask = 0b0011_0000
)

// MoLocationInfo is the 0x03 Mobile-Originated location element.
type MoLocationInfo struct {
	South            bool // NSI: false=N, true=S
	West             bool // EWI: false=E, true=W
	LatDeg           uint8
	LatThousandthMin uint16
	LonDeg           uint8
	LonThousandthMin uint16
	CEPRadiusKm      uint32
}

func (MoLocationInfo) ID() ElementID { return ElementMoLocationInfo }

func (l MoLocationInfo) packInto(buf []byte) []byte {
	var flags byte
	if l.South {
		flags |= locFlagNSI
	}
	if l.West {
		flags |= locFlagEWI
	}
	content := make([]byte, 0, moLocationInfoLen)
	content = append(content, flags)
	content = append(content, l.LatDeg)
	content = append(content, serializeBigEndianUint16(l.LatThousandthMin)...)
	content = append(content, l.LonDeg)
	content = append(content, serializeBigEndianUint16(l.LonThousandthMin)...)
	// cep_radius_km is a full 32-bit big-endian field: the original source's
	// use of a 16-bit htons here was a bug (see open questions); this is the
	// corrected, spec-authoritative 32-bit encoding.
	content = append(content, serializeBigEndianUint32(l.CEPRadiusKm)...)
	return packHeader(buf, ElementMoLocationInfo, content)
}

func decodeMoLocationInfo(c []byte) (MoLocationInfo, error) {
	flags := c[0]
	return MoLocationInfo{
		South:            flags&locFlagNSI != 0,
		West:             flags&locFlagEWI != 0,
		LatDeg:           c[1],
		LatThousandthMin: parseBigEndianUint16(c[2:4]),
		LonDeg:           c[4],
		LonThousandthMin: parseBigEndianUint16(c[5:7]),
		CEPRadiusKm:      parseBigEndianUint32(c[7:11]),
	}, nil
}

// --- MO Confirmation ------------------------------------------------------

// MoConfirmation is the 0x05 Mobile-Originated confirmation (acknowledgement) element.
type MoConfirmation struct {
	Status int8
}

func (MoConfirmation) ID() ElementID { return ElementMoConfirmation }

func (m MoConfirmation) packInto(buf []byte) []byte {
	return packHeader(buf, ElementMoConfirmation, []byte{byte(m.Status)})
}

// --- MT Header ------------------------------------------------------------

// MtDispositionFlags is the big-endian u16 bitfield of MT Header disposition
// flags, expressed as named masks since Go has no compiler bitfields.
type MtDispositionFlags uint16

const (
	MtFlagFlushQueue        MtDispositionFlags = 1 << 0
	MtFlagSendRingAlert     MtDispositionFlags = 1 << 1
	MtFlagUpdateSSDLocation MtDispositionFlags = 1 << 3
	MtFlagHighPriority      MtDispositionFlags = 1 << 4
	MtFlagAssignMTMSN       MtDispositionFlags = 1 << 5
)

// MtHeader is the 0x41 Mobile-Terminated header element.
type MtHeader struct {
	UniqueClientMsgID uint32
	IMEI              IMEI
	Disposition       MtDispositionFlags
}

func (MtHeader) ID() ElementID { return ElementMtHeader }

func (h MtHeader) packInto(buf []byte) []byte {
	content := make([]byte, 0, mtHeaderLen)
	content = append(content, serializeBigEndianUint32(h.UniqueClientMsgID)...)
	content = append(content, []byte(h.IMEI)...)
	content = append(content, serializeBigEndianUint16(uint16(h.Disposition))...)
	return packHeader(buf, ElementMtHeader, content)
}

func decodeMtHeader(c []byte) (MtHeader, error) {
	return MtHeader{
		UniqueClientMsgID: parseBigEndianUint32(c[0:4]),
		IMEI:              decodeIMEI(c[4:19]),
		Disposition:       MtDispositionFlags(parseBigEndianUint16(c[19:21])),
	}, nil
}

// --- MT Payload -------------------------------------------------------

// MtPayload is the 0x42 Mobile-Terminated payload element (1..1890 bytes).
type MtPayload struct {
	Data []byte
}

func (MtPayload) ID() ElementID { return ElementMtPayload }

func (p MtPayload) packInto(buf []byte) []byte {
	content := p.Data
	if len(content) > maxMtPayloadLen {
		content = content[:maxMtPayloadLen]
	}
	return packHeader(buf, ElementMtPayload, content)
}

// --- MT Confirmation --------------------------------------------------

// MtConfirmation is the 0x44 Mobile-Terminated confirmation element sent by
// the gateway in response to an MT submission.
type MtConfirmation struct {
	UniqueClientMsgID uint32
	IMEI              IMEI
	AutoIDRef         uint32
	MsgStatus         int16 // >=0 success (queue position); <0 error code
}

func (MtConfirmation) ID() ElementID { return ElementMtConfirmation }

func (m MtConfirmation) packInto(buf []byte) []byte {
	content := make([]byte, 0, mtConfirmationLen)
	content = append(content, serializeBigEndianUint32(m.UniqueClientMsgID)...)
	content = append(content, []byte(m.IMEI)...)
	content = append(content, serializeBigEndianUint32(m.AutoIDRef)...)
	content = append(content, serializeBigEndianInt16(m.MsgStatus)...)
	return packHeader(buf, ElementMtConfirmation, content)
}

func decodeMtConfirmation(c []byte) (MtConfirmation, error) {
	return MtConfirmation{
		UniqueClientMsgID: parseBigEndianUint32(c[0:4]),
		IMEI:              decodeIMEI(c[4:19]),
		AutoIDRef:         parseBigEndianUint32(c[19:23]),
		MsgStatus:         parseBigEndianInt16(c[23:25]),
	}, nil
}

// --- MT Priority --------------------------------------------------------

const (
	minMtPriority = 1
	maxMtPriority = 5
	// clampMtPriority is the value used when an out-of-range priority is
	// encoded: lowest priority, per spec-confirmed policy.
	clampMtPriority = 5
)

// MtPriority is the 0x46 Mobile-Terminated priority element.
type MtPriority struct {
	Priority uint16
}

func (MtPriority) ID() ElementID { return ElementMtPriority }

func (p MtPriority) packInto(buf []byte) []byte {
	priority := p.Priority
	if priority < minMtPriority || priority > maxMtPriority {
		priority = clampMtPriority
	}
	return packHeader(buf, ElementMtPriority, serializeBigEndianUint16(priority))
}
