// Package iridium implements the Iridium Short Burst Data (SBD) Direct-IP
// protocol: the binary TLV message codec shared by Mobile-Originated and
// Mobile-Terminated traffic, the MT transmit engine, and the MO receive
// server.
package iridium

import (
	"encoding/binary"

	"github.com/sirupsen/logrus"
)

var _lg = logrus.New()

// SetLogger replaces the package-level logger used by the transmitter and
// receiver. It is not safe to call concurrently with in-flight sessions.
func SetLogger(lg *logrus.Logger) {
	_lg = lg
}

const protocolVersion = 1

func serializeBigEndianUint16(i uint16) []byte {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, i)
	return buf
}

func parseBigEndianUint16(x []byte) uint16 {
	return binary.BigEndian.Uint16(x)
}

func serializeBigEndianUint32(i uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, i)
	return buf
}

func parseBigEndianUint32(x []byte) uint32 {
	return binary.BigEndian.Uint32(x)
}

func parseBigEndianInt16(x []byte) int16 {
	return int16(parseBigEndianUint16(x))
}

func serializeBigEndianInt16(i int16) []byte {
	return serializeBigEndianUint16(uint16(i))
}
