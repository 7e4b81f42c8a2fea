// Package feedback implements the asynchronous feedback-emission subsystem
// from spec §4.4: a bounded ring decouples frame construction on the
// admission path from transmission on a dedicated consumer goroutine.
package feedback

import (
	"net"

	"github.com/rs/xid"

	"github.com/galpt/qcn-cp/pkg/types"
)

// Envelope is what the admission path hands to the emitter: the wire frame
// plus the addressing context a transport needs to send it back toward the
// sampled packet's source (§3, §4.4).
type Envelope struct {
	// ID correlates a pushed envelope with its eventual transmit log line.
	// Assigned by Push if left zero.
	ID xid.ID

	Frame types.FeedbackFrame

	// OrigSrcMAC/OrigDstMAC are the sampled packet's own MACs. Ethernet
	// transport inverts them: feedback source = sampled packet's
	// destination, feedback destination = sampled packet's source (§4.4 —
	// "this is the inversion that sends feedback toward the sender").
	OrigSrcMAC net.HardwareAddr
	OrigDstMAC net.HardwareAddr

	// IngressDevice is the sampled packet's ingress device; Ethernet
	// transport hands the frame to this device's transmit path.
	IngressDevice string
}
