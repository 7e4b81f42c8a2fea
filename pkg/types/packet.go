// Package types holds the data model shared across the scheduler: packet
// handles, wire-level feedback frames, configuration and statistics.
package types

import "net"

// Protocol is the L3 protocol tag carried on a Packet handle. QCN sampling
// only emits feedback for IPv4 traffic (§4.2); other protocols still admit
// and account normally.
type Protocol uint8

const (
	ProtocolOther Protocol = iota
	ProtocolIPv4
	ProtocolIPv6
)

// Packet is the opaque handle the host I/O layer hands to the core. The core
// never allocates or frees the header bytes; it only moves ownership of the
// handle across queue boundaries (admission transfers it into the inner
// queue, dequeue transfers it back out, drop transfers it to the host's free
// path).
type Packet struct {
	// Length is the byte length used for all backlog/token accounting.
	Length int

	// Header is a borrowed view of the contiguous Ethernet+IP header bytes.
	// The core only reads it (to build feedback frames); it never retains
	// it past the call that received the packet.
	Header []byte

	// IngressDevice identifies the device the packet arrived on. Feedback
	// sent over Ethernet transport is handed back to this device.
	IngressDevice string

	Protocol Protocol

	SrcIP  net.IP
	DstIP  net.IP
	SrcMAC net.HardwareAddr
	DstMAC net.HardwareAddr
}

// IsIPv4 reports whether this packet is eligible for QCN feedback sampling.
func (p Packet) IsIPv4() bool {
	return p.Protocol == ProtocolIPv4 && p.SrcIP != nil && p.DstIP != nil
}
