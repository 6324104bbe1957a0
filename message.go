package iridium

import "fmt"

// MessageCategory is the result of walking a raw Direct-IP message's element
// headers without unpacking their content (see Classify).
type MessageCategory int

const (
	Unknown MessageCategory = iota
	MO
	MT
	MTConfirm
)

func (c MessageCategory) String() string {
	switch c {
	case MO:
		return "MO"
	case MT:
		return "MT"
	case MTConfirm:
		return "MT_CONFIRM"
	default:
		return "UNKNOWN"
	}
}

func isMoFamily(id ElementID) bool {
	switch id {
	case ElementMoHeader, ElementMoPayload, ElementMoLocationInfo, ElementMoConfirmation:
		return true
	default:
		return false
	}
}

func isMtFamily(id ElementID) bool {
	switch id {
	case ElementMtHeader, ElementMtPayload, ElementMtConfirmation, ElementMtPriority:
		return true
	default:
		return false
	}
}

// Classify walks the element headers of body (the bytes following the
// 3-byte message header) without decoding their content, and reports the
// message category per spec: all-MO-family ids -> MO; all ids in
// {0x41, 0x42, 0x46} -> MT; an MT-Confirmation as the first
// (and every subsequent) element -> MT_CONFIRM; any mixing, or any id
// outside the eight recognized kinds, -> Unknown.
func Classify(body []byte) MessageCategory {
	first := true
	category := Unknown
	offset := 0
	for offset < len(body) {
		if offset+3 > len(body) {
			return Unknown
		}
		id := ElementID(body[offset])
		length := int(parseBigEndianUint16(body[offset+1 : offset+3]))
		offset += 3 + length
		if offset > len(body) {
			return Unknown
		}

		switch {
		case first:
			first = false
			switch {
			case id == ElementMtConfirmation:
				category = MTConfirm
			case isMoFamily(id):
				category = MO
			case isMtFamily(id):
				category = MT
			default:
				return Unknown
			}
		case category == MTConfirm:
			if id != ElementMtConfirmation {
				return Unknown
			}
		case category == MO:
			if !isMoFamily(id) {
				return Unknown
			}
		case category == MT:
			if !isMtFamily(id) || id == ElementMtConfirmation {
				return Unknown
			}
		}
	}
	if first {
		return Unknown
	}
	return category
}

// walkElements decodes every element in body in order, invoking fn for each.
// It stops and returns an error as soon as one element fails to decode.
func walkElements(body []byte, fn func(Element) error) error {
	offset := 0
	for offset < len(body) {
		if offset >= len(body) {
			break
		}
		id := ElementID(body[offset])
		offset++
		elem, consumed, err := unpackElement(id, body[offset:])
		if err != nil {
			return err
		}
		offset += consumed
		if err := fn(elem); err != nil {
			return err
		}
	}
	return nil
}

// MoMessage is an ordered collection of elements representing a
// Mobile-Originated message: exactly one MoHeader and one MoPayload, with an
// optional MoLocationInfo.
type MoMessage struct {
	Header   MoHeader
	Payload  MoPayload
	Location *MoLocationInfo
}

// ParseMO parses body (the bytes following the 3-byte message header) into
// an MoMessage. It returns an error if the header or payload is missing, or
// if any element fails to decode.
func ParseMO(body []byte) (*MoMessage, error) {
	var msg MoMessage
	var haveHeader, havePayload bool

	err := walkElements(body, func(e Element) error {
		switch v := e.(type) {
		case MoHeader:
			if haveHeader {
				return errDuplicateHeader
			}
			msg.Header = v
			haveHeader = true
		case MoPayload:
			msg.Payload = v
			havePayload = true
		case MoLocationInfo:
			loc := v
			msg.Location = &loc
		default:
			return errMixedFamily
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !haveHeader {
		return nil, errNoHeader
	}
	if !havePayload {
		return nil, errNoPayload
	}
	return &msg, nil
}

// MtMessage is an ordered collection of elements representing a
// Mobile-Terminated message: exactly one MtHeader, one MtPayload, and one
// MtPriority, always serialized in that order.
type MtMessage struct {
	Header   MtHeader
	Payload  MtPayload
	Priority MtPriority
}

// NewMtMessage builds an MtMessage, validating the header's IMEI.
func NewMtMessage(header MtHeader, payload []byte, priority uint16) (*MtMessage, error) {
	if !header.IMEI.Valid() {
		return nil, errInvalidIMEI{string(header.IMEI)}
	}
	if len(payload) < 1 || len(payload) > maxMtPayloadLen {
		return nil, errLengthOutOfRange{ElementMtPayload, maxMtPayloadLen, len(payload)}
	}
	return &MtMessage{
		Header:   header,
		Payload:  MtPayload{Data: payload},
		Priority: MtPriority{Priority: priority},
	}, nil
}

// MtConfirmMessage is an ordered collection containing exactly one
// MtConfirmation element.
type MtConfirmMessage struct {
	Confirmation MtConfirmation
}

// ParseMTConfirm parses body into an MtConfirmMessage, requiring exactly one
// MtConfirmation element.
func ParseMTConfirm(body []byte) (*MtConfirmMessage, error) {
	var msg MtConfirmMessage
	var have bool
	err := walkElements(body, func(e Element) error {
		conf, ok := e.(MtConfirmation)
		if !ok {
			return errMixedFamily
		}
		if have {
			return errMissingElement{"duplicate MT confirmation"}
		}
		msg.Confirmation = conf
		have = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !have {
		return nil, errNoConfirmation
	}
	return &msg, nil
}

// SerializeMT serializes m into a complete Direct-IP message: the 3-byte
// message header (proto=1, overall_length) followed by the MtHeader,
// MtPayload and MtPriority elements in that order.
func SerializeMT(m *MtMessage) []byte {
	body := make([]byte, 0, mtHeaderLen+3+maxMtPayloadLen+3+mtPriorityLen+3)
	body = m.Header.packInto(body)
	body = m.Payload.packInto(body)
	body = m.Priority.packInto(body)

	out := make([]byte, 0, 3+len(body))
	out = append(out, protocolVersion)
	out = append(out, serializeBigEndianUint16(uint16(len(body)))...)
	out = append(out, body...)
	return out
}

// ParseMessageHeader parses the leading 3-byte Direct-IP message header and
// returns its overall_length field. It fails if fewer than 3 bytes are
// given or if the protocol byte is not 1.
func ParseMessageHeader(data []byte) (overallLength int, err error) {
	if len(data) < 3 {
		return 0, fmt.Errorf("message header: %w", errTruncatedInput{0, 3, len(data)})
	}
	if data[0] != protocolVersion {
		return 0, errInvalidProtocol{data[0]}
	}
	return int(parseBigEndianUint16(data[1:3])), nil
}
