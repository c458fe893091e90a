package core

import (
	"sort"
)

// PacketQueue buffers the packets of one channel direction and releases them in
// sequence order. Sequences below the cursor are resolved and are never buffered again.
type PacketQueue struct {
	next    uint64
	pending map[uint64]Packet
}

// NewPacketQueue returns a queue whose first unresolved sequence is next.
func NewPacketQueue(next uint64) *PacketQueue {
	if next == 0 {
		next = 1
	}
	return &PacketQueue{next: next, pending: make(map[uint64]Packet)}
}

// Next returns the lowest unresolved sequence.
func (q *PacketQueue) Next() uint64 {
	return q.next
}

func (q *PacketQueue) Len() int {
	return len(q.pending)
}

// Push buffers p. It returns false if p's sequence is already resolved or buffered.
func (q *PacketQueue) Push(p Packet) bool {
	if p.Sequence < q.next {
		return false
	}
	if _, ok := q.pending[p.Sequence]; ok {
		return false
	}
	q.pending[p.Sequence] = p
	return true
}

// Peek returns the packet at the cursor, if it has been observed.
func (q *PacketQueue) Peek() (Packet, bool) {
	p, ok := q.pending[q.next]
	return p, ok
}

// Advance marks the sequence at the cursor resolved.
func (q *PacketQueue) Advance() {
	delete(q.pending, q.next)
	q.next++
}

// Sequences returns the buffered sequences in ascending order.
func (q *PacketQueue) Sequences() []uint64 {
	seqs := make([]uint64, 0, len(q.pending))
	for seq := range q.pending {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs
}

// Reset moves the cursor to next and replaces the buffer with packets.
func (q *PacketQueue) Reset(next uint64, packets []Packet) {
	q.next = next
	q.pending = make(map[uint64]Packet, len(packets))
	for _, p := range packets {
		q.Push(p)
	}
}
