// Package queue holds connections waiting for an opponent in strict arrival order.
// It is not safe for concurrent use; the coordinator loop is its only owner.
package queue

import "slices"

// Queue is a FIFO of connection handles
type Queue struct {
	entries []string
}

// New creates an empty queue
func New() *Queue {
	return &Queue{}
}

// Enqueue appends connID, first dropping any earlier entry for it, and returns
// its 1-based position.
func (q *Queue) Enqueue(connID string) int {
	q.Remove(connID)
	q.entries = append(q.entries, connID)
	return len(q.entries)
}

// DequeuePair removes and returns the two longest-waiting entries in arrival order.
// The first one is the match initiator.
func (q *Queue) DequeuePair() (first, second string, ok bool) {
	if len(q.entries) < 2 {
		return "", "", false
	}
	first, second = q.entries[0], q.entries[1]
	q.entries = slices.Delete(q.entries, 0, 2)
	return first, second, true
}

// Remove deletes connID if present and reports whether it was queued
func (q *Queue) Remove(connID string) bool {
	i := slices.Index(q.entries, connID)
	if i < 0 {
		return false
	}
	q.entries = slices.Delete(q.entries, i, i+1)
	return true
}

// Contains reports whether connID is waiting
func (q *Queue) Contains(connID string) bool {
	return slices.Contains(q.entries, connID)
}

// Position returns the 1-based position of connID, or 0 if absent
func (q *Queue) Position(connID string) int {
	return slices.Index(q.entries, connID) + 1
}

// Len is the number of waiting connections
func (q *Queue) Len() int {
	return len(q.entries)
}
