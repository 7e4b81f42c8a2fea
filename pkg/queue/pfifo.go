package queue

import "github.com/galpt/qcn-cp/pkg/types"

// PFIFO is a bounded packet-count FIFO with tail drop on overflow (§4.1).
type PFIFO struct {
	store
	limit int
}

// NewPFIFO constructs a PFIFO with the given packet-count limit.
func NewPFIFO(limit int) *PFIFO {
	return &PFIFO{limit: limit}
}

func (q *PFIFO) Enqueue(p types.Packet) (types.AdmitResult, error) {
	if q.packets.Len() >= q.limit {
		q.overlimits++
		return 0, types.ErrOverlimitDrop
	}
	q.pushTail(p)
	return types.Admitted, nil
}

func (q *PFIFO) Dequeue() (types.Packet, bool) { return q.popHead() }
func (q *PFIFO) Peek() (types.Packet, bool)    { return q.peekHead() }
func (q *PFIFO) Drop() int                     { return q.dropTail() }
func (q *PFIFO) DropHead() int                 { return q.dropHead() }
func (q *PFIFO) Reset()                        { q.reset() }
func (q *PFIFO) Backlog() (int, int)           { return q.backlog() }
func (q *PFIFO) Stats() types.Stats            { return q.stats() }

func (q *PFIFO) SetLimit(limit int) { q.limit = limit }

// PFIFOHeadDrop is the packet-count FIFO variant that, on overflow, evicts
// the oldest packet to admit the new tail instead of rejecting it (§4.1).
// Enqueue returns AdmittedCongested rather than Admitted in that case.
type PFIFOHeadDrop struct {
	store
	limit int
}

// NewPFIFOHeadDrop constructs a head-drop PFIFO with the given packet-count
// limit.
func NewPFIFOHeadDrop(limit int) *PFIFOHeadDrop {
	return &PFIFOHeadDrop{limit: limit}
}

func (q *PFIFOHeadDrop) Enqueue(p types.Packet) (types.AdmitResult, error) {
	if q.packets.Len() < q.limit {
		q.pushTail(p)
		return types.Admitted, nil
	}
	q.dropHead()
	q.pushTail(p)
	return types.AdmittedCongested, types.ErrCongested
}

func (q *PFIFOHeadDrop) Dequeue() (types.Packet, bool) { return q.popHead() }
func (q *PFIFOHeadDrop) Peek() (types.Packet, bool)    { return q.peekHead() }
func (q *PFIFOHeadDrop) Drop() int                     { return q.dropTail() }
func (q *PFIFOHeadDrop) DropHead() int                 { return q.dropHead() }
func (q *PFIFOHeadDrop) Reset()                        { q.reset() }
func (q *PFIFOHeadDrop) Backlog() (int, int)           { return q.backlog() }
func (q *PFIFOHeadDrop) Stats() types.Stats            { return q.stats() }

func (q *PFIFOHeadDrop) SetLimit(limit int) { q.limit = limit }
