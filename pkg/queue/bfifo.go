package queue

import "github.com/galpt/qcn-cp/pkg/types"

// BFIFO is a bounded byte-granular FIFO: admission compares
// backlog_bytes + len(p) against a byte limit, not a packet count (§4.1).
type BFIFO struct {
	store
	limit int
}

// NewBFIFO constructs a BFIFO with the given byte limit.
func NewBFIFO(limit int) *BFIFO {
	return &BFIFO{limit: limit}
}

func (q *BFIFO) Enqueue(p types.Packet) (types.AdmitResult, error) {
	if q.backlogBytes+p.Length > q.limit {
		q.overlimits++
		return 0, types.ErrOverlimitDrop
	}
	q.pushTail(p)
	return types.Admitted, nil
}

func (q *BFIFO) Dequeue() (types.Packet, bool) { return q.popHead() }
func (q *BFIFO) Peek() (types.Packet, bool)    { return q.peekHead() }
func (q *BFIFO) Drop() int                     { return q.dropTail() }
func (q *BFIFO) DropHead() int                 { return q.dropHead() }
func (q *BFIFO) Reset()                        { q.reset() }
func (q *BFIFO) Backlog() (int, int)           { return q.backlog() }
func (q *BFIFO) Stats() types.Stats            { return q.stats() }

// SetLimit changes the byte limit (used by change/Configure).
func (q *BFIFO) SetLimit(limit int) { q.limit = limit }
