// Package netlinkcfg decodes and encodes the control-plane configuration
// payload from spec §6 as a netlink-style attribute (TLV) blob, the way
// Linux qdiscs receive their tc parameters. The control-plane transport
// itself (whatever carries the bytes to the process) is out of scope (§1);
// this package only defines the wire contract for the bytes once they
// arrive.
package netlinkcfg

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/mdlayher/netlink"
	"github.com/mdlayher/netlink/nlenc"

	"github.com/galpt/qcn-cp/pkg/types"
)

// Attribute types for the Config payload (§6).
const (
	AttrLimit uint16 = iota + 1
	AttrBuffer
	AttrMtu
	AttrRate
	AttrPeakRate
	AttrCellLog
	AttrPeakCellLog
	AttrQEQ
	AttrW
	AttrFeedbackTransport
	AttrFeedbackAddr
	AttrFeedbackAddressRewrite
)

// Decode parses a netlink attribute blob into a Config (§6 "Configuration
// payload").
func Decode(b []byte) (types.Config, error) {
	var cfg types.Config

	ad, err := netlink.NewAttributeDecoder(b)
	if err != nil {
		return cfg, fmt.Errorf("%w: %s", types.ErrBadConfig, err)
	}
	ad.ByteOrder = binary.BigEndian

	for ad.Next() {
		switch ad.Type() {
		case AttrLimit:
			cfg.Limit = ad.Uint32()
		case AttrBuffer:
			cfg.Buffer = time.Duration(ad.Uint64())
		case AttrMtu:
			cfg.Mtu = time.Duration(ad.Uint64())
		case AttrRate:
			cfg.Rate = decodeRateTable(ad.Bytes())
		case AttrPeakRate:
			peak := decodeRateTable(ad.Bytes())
			cfg.PeakRate = &peak
		case AttrCellLog:
			cfg.CellLog = ad.Uint8()
		case AttrPeakCellLog:
			cfg.PeakCellLog = ad.Uint8()
		case AttrQEQ:
			cfg.QEQ = ad.Int32()
		case AttrW:
			cfg.W = ad.Int32()
		case AttrFeedbackTransport:
			cfg.Feedback.Transport = types.FeedbackTransport(ad.Uint8())
		case AttrFeedbackAddr:
			cfg.Feedback.Addr = ad.String()
		case AttrFeedbackAddressRewrite:
			cfg.Feedback.AddressRewrite = ad.Uint8() != 0
		}
	}
	if err := ad.Err(); err != nil {
		return cfg, fmt.Errorf("%w: %s", types.ErrBadConfig, err)
	}

	cfg.NormalizeDefaults()
	if _, err := cfg.MaxSize(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Encode renders cfg as the netlink attribute blob Decode accepts. Tests use
// it to build configure payloads and to assert round-trip fidelity; Dump
// does not go through it.
func Encode(cfg types.Config) ([]byte, error) {
	ae := netlink.NewAttributeEncoder()
	ae.ByteOrder = binary.BigEndian

	ae.Uint32(AttrLimit, cfg.Limit)
	ae.Uint64(AttrBuffer, uint64(cfg.Buffer))
	ae.Uint64(AttrMtu, uint64(cfg.Mtu))
	ae.Bytes(AttrRate, encodeRateTable(cfg.Rate))
	if cfg.PeakRate != nil {
		ae.Bytes(AttrPeakRate, encodeRateTable(*cfg.PeakRate))
	}
	ae.Uint8(AttrCellLog, cfg.CellLog)
	ae.Uint8(AttrPeakCellLog, cfg.PeakCellLog)
	ae.Int32(AttrQEQ, cfg.QEQ)
	ae.Int32(AttrW, cfg.W)
	ae.Uint8(AttrFeedbackTransport, uint8(cfg.Feedback.Transport))
	ae.String(AttrFeedbackAddr, cfg.Feedback.Addr)
	ae.Uint8(AttrFeedbackAddressRewrite, boolToUint8(cfg.Feedback.AddressRewrite))

	return ae.Encode()
}

func decodeRateTable(b []byte) types.RateTable {
	var tab types.RateTable
	for i := range tab {
		off := i * 8
		if off+8 > len(b) {
			break
		}
		tab[i] = time.Duration(nlenc.Uint64(b[off : off+8]))
	}
	return tab
}

func encodeRateTable(tab types.RateTable) []byte {
	b := make([]byte, len(tab)*8)
	for i, d := range tab {
		nlenc.PutUint64(b[i*8:i*8+8], uint64(d))
	}
	return b
}

func boolToUint8(v bool) uint8 {
	if v {
		return 1
	}
	return 0
}
