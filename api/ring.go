// Package api
// Author: momentics@gmail.com
//
// Bounded single-producer/single-consumer ring used between a receiver
// goroutine and a poll loop.

package api

// Ring is a bounded FIFO contract.
type Ring[T any] interface {
	// Enqueue adds an item, returns false if full.
	Enqueue(item T) bool
	// Dequeue removes oldest item, returns false if empty.
	Dequeue() (T, bool)
	// Len returns current number of items.
	Len() int
	// Cap returns buffer capacity.
	Cap() int
}
