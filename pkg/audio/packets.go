// ABOUTME: Length-prefixed packet container for compressed voice frames
// ABOUTME: One frame carries several codec packets, each with a uint16 length
package audio

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// MaxPacketSize is the largest packet a frame container can carry
const MaxPacketSize = 0xFFFF

// ErrTruncatedFrame is returned when a container ends inside a packet
var ErrTruncatedFrame = errors.New("truncated frame container")

// AppendPacket appends one length-prefixed packet to dst.
// Concatenating two containers yields a valid container.
func AppendPacket(dst, packet []byte) ([]byte, error) {
	if len(packet) > MaxPacketSize {
		return dst, errors.Newf("packet too large: %d bytes", len(packet))
	}
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(packet)))
	return append(dst, packet...), nil
}

// SplitPackets returns the packets of a container without copying
func SplitPackets(data []byte) ([][]byte, error) {
	var packets [][]byte
	for len(data) > 0 {
		if len(data) < 2 {
			return nil, ErrTruncatedFrame
		}
		n := int(binary.BigEndian.Uint16(data))
		data = data[2:]
		if len(data) < n {
			return nil, errors.Wrapf(ErrTruncatedFrame, "want %d bytes, have %d", n, len(data))
		}
		packets = append(packets, data[:n])
		data = data[n:]
	}
	return packets, nil
}
