package feedback

import (
	"context"
	"sync/atomic"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
)

// ringCapacity is the emitter ring's bound (§3 "bounded ring of up to 32
// feedback frames").
const ringCapacity = 32

// Emitter is the bounded single-producer/single-consumer feedback pipeline
// from §4.4. Push runs on admission-path goroutines and never blocks; Run
// is the dedicated consumer, meant to be supervised by an errgroup.
type Emitter struct {
	ring      chan Envelope
	transport Transport
	logger    zerolog.Logger

	sent atomic.Uint64
	lost atomic.Uint64
}

// New constructs an Emitter that transmits via transport, logging through
// the given component logger (see log.Component).
func New(transport Transport, logger zerolog.Logger) *Emitter {
	return &Emitter{
		ring:      make(chan Envelope, ringCapacity),
		transport: transport,
		logger:    logger,
	}
}

// Push attempts a non-blocking insert into the ring (§4.4 "push(frame)").
// On a full ring it drops the frame and counts it as feedback_lost rather
// than ever blocking the admission path.
func (e *Emitter) Push(env Envelope) bool {
	if env.ID.IsNil() {
		env.ID = xid.New()
	}
	select {
	case e.ring <- env:
		return true
	default:
		e.lost.Add(1)
		return false
	}
}

// Run drains the ring until ctx is cancelled, transmitting one envelope at
// a time. Selecting on ctx.Done() alongside the ring gives the same
// prompt-stop guarantee as the source's bounded-timeout semaphore wait
// (§4.4, §5) without polling.
func (e *Emitter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case env := <-e.ring:
			if err := e.transport.Send(env); err != nil {
				e.logger.Warn().Err(err).Str("envelope", env.ID.String()).Msg("feedback transmit failed")
				continue
			}
			e.sent.Add(1)
		}
	}
}

// Stats reports cumulative sent/lost counts (§6 feedback_sent/feedback_lost).
func (e *Emitter) Stats() (sent, lost uint64) {
	return e.sent.Load(), e.lost.Load()
}

// Close releases the underlying transport.
func (e *Emitter) Close() error {
	return e.transport.Close()
}
