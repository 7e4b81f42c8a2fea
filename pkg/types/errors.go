package types

import "errors"

// Error kinds from spec §7. BAD_CONFIG and NO_RESOURCES surface to the
// control plane as errors from Configure/init; the rest are counted on the
// per-packet path and only occasionally propagated (CONGESTED, OVERLIMIT_DROP)
// as a distinguished return value rather than a hard failure.
var (
	ErrBadConfig        = errors.New("qcn-cp: bad config")
	ErrOverlimitDrop    = errors.New("qcn-cp: overlimit drop")
	ErrCongested        = errors.New("qcn-cp: congested (head dropped to admit)")
	ErrFeedbackRingFull = errors.New("qcn-cp: feedback ring full")
	ErrFeedbackTxFailed = errors.New("qcn-cp: feedback transmit failed")
	ErrNoResources      = errors.New("qcn-cp: no resources")
)
