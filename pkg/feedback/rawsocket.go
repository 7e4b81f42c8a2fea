//go:build linux

package feedback

import (
	"fmt"
	"net"

	"github.com/higebu/netfd"
	"golang.org/x/sys/unix"
)

// RawSocketTransmitter is the reference DeviceTransmitter: it sends each
// frame raw on an already-opened AF_PACKET connection's file descriptor,
// addressed to a network interface looked up by name through a link-layer
// socket address (the descriptor itself is never bound). Opening the AF_PACKET socket
// itself is the host's job (§1 scope boundary) — this type only turns a
// handed-in conn into sends on a named device.
type RawSocketTransmitter struct {
	fd int
}

// NewRawSocketTransmitter extracts the raw file descriptor backing conn, an
// AF_PACKET socket opened by the host I/O layer, using the fd-extraction
// pattern shared by the pack's socket-stats exporter.
func NewRawSocketTransmitter(conn net.Conn) *RawSocketTransmitter {
	return &RawSocketTransmitter{fd: netfd.GetFdFromConn(conn)}
}

func (r *RawSocketTransmitter) TransmitOn(device string, frame []byte) error {
	iface, err := net.InterfaceByName(device)
	if err != nil {
		return fmt.Errorf("feedback: lookup device %q: %w", device, err)
	}

	addr := unix.SockaddrLinklayer{
		Protocol: 0,
		Ifindex:  iface.Index,
		Halen:    uint8(len(iface.HardwareAddr)),
	}
	copy(addr.Addr[:], iface.HardwareAddr)

	return unix.Sendto(r.fd, frame, 0, &addr)
}
