// Package queue implements the byte- and packet-granular FIFO admission
// policies from spec §4.1, all backed by the same gammazero/deque storage
// so enqueue-tail/dequeue-head/drop-tail/drop-head are O(1).
package queue

import (
	"github.com/gammazero/deque"

	"github.com/galpt/qcn-cp/pkg/types"
)

// Queue is the capability set every admission policy implements. It is the
// "inner queue" a TBF wraps, and is deliberately narrow enough that TBF
// never needs to know which policy it's holding.
type Queue interface {
	// Enqueue appends p, or fails per the policy's admission rule.
	Enqueue(p types.Packet) (types.AdmitResult, error)
	// Dequeue removes and returns the head packet, if any.
	Dequeue() (types.Packet, bool)
	// Peek borrows the head packet without removing it.
	Peek() (types.Packet, bool)
	// Drop removes and releases the tail packet, returning its byte length
	// (0 if empty).
	Drop() int
	// DropHead removes and releases the oldest packet, returning its byte
	// length (0 if empty).
	DropHead() int
	// Reset releases every packet and zeros backlog.
	Reset()
	// Backlog reports current byte and packet occupancy.
	Backlog() (bytes int, pkts int)
	// Stats returns the queue's own counters (bytes_sent, packets_sent,
	// drops, overlimits — backlog is read separately via Backlog).
	Stats() types.Stats
}

// store is the shared deque-backed packet sequence plus derived stats
// (§3 "Queue (BFIFO/PFIFO)"), embedded by every policy below.
type store struct {
	packets      deque.Deque[types.Packet]
	backlogBytes int

	bytesSent   uint64
	packetsSent uint64
	drops       uint64
	overlimits  uint64
}

func (s *store) pushTail(p types.Packet) {
	s.packets.PushBack(p)
	s.backlogBytes += p.Length
}

func (s *store) popHead() (types.Packet, bool) {
	if s.packets.Len() == 0 {
		return types.Packet{}, false
	}
	p := s.packets.PopFront()
	s.backlogBytes -= p.Length
	s.bytesSent += uint64(p.Length)
	s.packetsSent++
	return p, true
}

func (s *store) peekHead() (types.Packet, bool) {
	if s.packets.Len() == 0 {
		return types.Packet{}, false
	}
	return s.packets.Front(), true
}

func (s *store) dropTail() int {
	if s.packets.Len() == 0 {
		return 0
	}
	p := s.packets.PopBack()
	s.backlogBytes -= p.Length
	s.drops++
	return p.Length
}

func (s *store) dropHead() int {
	if s.packets.Len() == 0 {
		return 0
	}
	p := s.packets.PopFront()
	s.backlogBytes -= p.Length
	s.drops++
	return p.Length
}

func (s *store) reset() {
	s.packets.Clear()
	s.backlogBytes = 0
	s.bytesSent = 0
	s.packetsSent = 0
	s.drops = 0
	s.overlimits = 0
}

func (s *store) backlog() (int, int) {
	return s.backlogBytes, s.packets.Len()
}

func (s *store) stats() types.Stats {
	return types.Stats{
		Bytes:      s.bytesSent,
		Packets:    s.packetsSent,
		Drops:      s.drops,
		Overlimits: s.overlimits,
	}
}
