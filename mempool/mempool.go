package mempool

import (
	"github.com/mezonai/omniverse/types"
)

// DelayedQueue is the FIFO of admitted transactions waiting out their cooldown.
// Entries leave the queue in admission order, except for malicious eviction.
// It does no locking; the engine serializes every access.
type DelayedQueue struct {
	entries []*types.QueueEntry
	nextSeq uint64
}

// NewDelayedQueue creates a new, empty queue.
func NewDelayedQueue() *DelayedQueue {
	return &DelayedQueue{
		entries: make([]*types.QueueEntry, 0),
	}
}

// NextSeq returns the sequence number the next pushed entry will get.
func (q *DelayedQueue) NextSeq() uint64 {
	return q.nextSeq
}

// Push appends entry, stamping it with the next sequence number.
func (q *DelayedQueue) Push(entry *types.QueueEntry) {
	entry.Seq = q.nextSeq
	q.nextSeq++
	q.entries = append(q.entries, entry)
}

// Len returns the number of queued entries.
func (q *DelayedQueue) Len() int {
	return len(q.entries)
}

// Head returns the oldest entry without removing it.
func (q *DelayedQueue) Head() (*types.QueueEntry, bool) {
	if len(q.entries) == 0 {
		return nil, false
	}
	return q.entries[0], true
}

// Executable returns the head if its cooldown has elapsed at now.
func (q *DelayedQueue) Executable(now, cooldown uint64) (*types.QueueEntry, bool) {
	head, ok := q.Head()
	if !ok || !CooledDown(head, now, cooldown) {
		return nil, false
	}
	return head, true
}

// Pop removes and returns the oldest entry.
func (q *DelayedQueue) Pop() (*types.QueueEntry, bool) {
	if len(q.entries) == 0 {
		return nil, false
	}
	head := q.entries[0]
	q.entries[0] = nil
	q.entries = q.entries[1:]
	return head, true
}

// Remove drops the entry queued by sender, keeping the order of the rest.
func (q *DelayedQueue) Remove(sender types.PublicKey) (*types.QueueEntry, bool) {
	for i, entry := range q.entries {
		if entry.Sender == sender {
			q.entries = append(q.entries[:i:i], q.entries[i+1:]...)
			return entry, true
		}
	}
	return nil, false
}

// Entries returns a snapshot of the queue in execution order.
func (q *DelayedQueue) Entries() []*types.QueueEntry {
	out := make([]*types.QueueEntry, len(q.entries))
	copy(out, q.entries)
	return out
}

// Restore replaces the queue with entries already ordered by Seq.
func (q *DelayedQueue) Restore(entries []*types.QueueEntry, nextSeq uint64) {
	q.entries = make([]*types.QueueEntry, len(entries))
	copy(q.entries, entries)
	q.nextSeq = nextSeq
	for _, e := range entries {
		if e.Seq >= q.nextSeq {
			q.nextSeq = e.Seq + 1
		}
	}
}

// CooledDown reports whether entry may execute at now.
func CooledDown(entry *types.QueueEntry, now, cooldown uint64) bool {
	return now >= entry.AdmittedAt && now-entry.AdmittedAt >= cooldown
}
