package feedback

import (
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/galpt/qcn-cp/pkg/types"
)

// Transport serializes and sends one feedback envelope. Implementations
// must not retry on failure (§4.4 "on transport failure, log and
// continue; never retry").
type Transport interface {
	Send(Envelope) error
	Close() error
}

// UDPTransport sends the 20-byte frame payload as a UDP datagram to a
// fixed destination (§3, §4.4 "datagram transport").
type UDPTransport struct {
	conn *net.UDPConn
}

// NewUDPTransport dials addr (default 127.0.0.1:6660, §6) once at
// construction; the emitter goroutine reuses the connection for every send.
func NewUDPTransport(addr string) (*UDPTransport, error) {
	raddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("feedback: resolve udp addr %q: %w", addr, err)
	}
	conn, err := net.DialUDP("udp4", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("feedback: dial udp %q: %w", addr, err)
	}
	return &UDPTransport{conn: conn}, nil
}

func (u *UDPTransport) Send(env Envelope) error {
	payload, err := env.Frame.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err := u.conn.Write(payload); err != nil {
		return fmt.Errorf("%w: %s", types.ErrFeedbackTxFailed, err)
	}
	return nil
}

func (u *UDPTransport) Close() error { return u.conn.Close() }

// DeviceTransmitter is the narrow, out-of-scope collaborator that owns the
// actual device transmit path (§1 "host's packet-I/O substrate"). Ethernet
// transport builds the frame; the host hands it to the wire.
type DeviceTransmitter interface {
	TransmitOn(device string, frame []byte) error
}

// etherFrameLen is the scratch buffer size §4.4 specifies for the Ethernet
// encapsulation, even though the serialized frame (14-byte header + 20-byte
// payload = 34 bytes) is shorter; the remainder is left zeroed.
const etherFrameLen = 64

// EthernetTransport builds a raw Ethernet frame around the 20-byte feedback
// payload and hands it to a DeviceTransmitter on the sampled packet's
// ingress device (§3, §4.4 "Ethernet transport").
type EthernetTransport struct {
	tx DeviceTransmitter
}

// NewEthernetTransport wraps tx, the host's device-transmit collaborator.
func NewEthernetTransport(tx DeviceTransmitter) *EthernetTransport {
	return &EthernetTransport{tx: tx}
}

func (e *EthernetTransport) Send(env Envelope) error {
	payload, err := env.Frame.MarshalBinary()
	if err != nil {
		return err
	}

	eth := &layers.Ethernet{
		SrcMAC:       env.OrigDstMAC,
		DstMAC:       env.OrigSrcMAC,
		EthernetType: layers.EthernetType(types.EtherTypeQCN),
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, gopacket.Payload(payload)); err != nil {
		return fmt.Errorf("feedback: serialize ethernet frame: %w", err)
	}

	frame := make([]byte, etherFrameLen)
	copy(frame, buf.Bytes())

	if err := e.tx.TransmitOn(env.IngressDevice, frame); err != nil {
		return fmt.Errorf("%w: %s", types.ErrFeedbackTxFailed, err)
	}
	return nil
}

func (e *EthernetTransport) Close() error { return nil }
