package types

import (
	"encoding/binary"
)

// FeedbackFrame is the wire-level QCN congestion message (§3). As a UDP
// datagram payload it is exactly 20 bytes; Ethernet encapsulation prepends a
// 14-byte header (DMAC|SMAC|EtherType) in front of the same 20 bytes.
type FeedbackFrame struct {
	DA     uint32 // original packet's destination address, network byte order
	SA     uint32 // original packet's source address, network byte order
	Fb     uint32 // quantized feedback, low 6 bits significant
	Qoff   int32  // Q_EQ - qlen
	Qdelta int32  // qlen - qlen_old
}

// FrameWireLen is the size in bytes of a FeedbackFrame payload.
const FrameWireLen = 20

// EtherTypeQCN is the EtherType used to encapsulate a feedback frame in an
// Ethernet frame (§3).
const EtherTypeQCN = 0xA9A9

// MarshalBinary encodes the frame as the 20-byte big-endian payload from §3.
func (f FeedbackFrame) MarshalBinary() ([]byte, error) {
	b := make([]byte, FrameWireLen)
	binary.BigEndian.PutUint32(b[0:4], f.DA)
	binary.BigEndian.PutUint32(b[4:8], f.SA)
	binary.BigEndian.PutUint32(b[8:12], f.Fb)
	binary.BigEndian.PutUint32(b[12:16], uint32(f.Qoff))
	binary.BigEndian.PutUint32(b[16:20], uint32(f.Qdelta))
	return b, nil
}

// UnmarshalBinary decodes a 20-byte payload produced by MarshalBinary.
func (f *FeedbackFrame) UnmarshalBinary(b []byte) error {
	if len(b) < FrameWireLen {
		return ErrBadConfig
	}
	f.DA = binary.BigEndian.Uint32(b[0:4])
	f.SA = binary.BigEndian.Uint32(b[4:8])
	f.Fb = binary.BigEndian.Uint32(b[8:12])
	f.Qoff = int32(binary.BigEndian.Uint32(b[12:16]))
	f.Qdelta = int32(binary.BigEndian.Uint32(b[16:20]))
	return nil
}
