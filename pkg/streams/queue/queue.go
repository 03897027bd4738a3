// Package queue implements the size-accounted FIFO that backs every stream
// side. Each entry carries the size computed by the stream's queuing strategy
// when it was enqueued, and the queue keeps the running total so the owner can
// derive its desired size as highWaterMark - TotalSize().
//
// A Queue is not safe for concurrent use; the owning stream serialises access
// with its own mutex.
package queue

import (
	"errors"
	"math"
)

// ErrInvalidSize is returned when a chunk's size is NaN, negative or infinite.
var ErrInvalidSize = errors.New("queue: chunk size must be a finite non-negative number")

// ErrEmptyQueue is returned by Dequeue and Peek on an empty queue.
var ErrEmptyQueue = errors.New("queue: empty")

const minCapacity = 8

// Entry is a queued value together with its strategy size.
type Entry[T any] struct {
	Value T
	Size  float64
}

// Queue is a growable ring buffer of sized entries.
type Queue[T any] struct {
	buffer    []Entry[T]
	head      int
	tail      int
	count     int
	totalSize float64
}

// New creates an empty Queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{buffer: make([]Entry[T], minCapacity)}
}

// ValidateSize returns ErrInvalidSize unless size is finite and non-negative.
func ValidateSize(size float64) error {
	if math.IsNaN(size) || math.IsInf(size, 0) || size < 0 {
		return ErrInvalidSize
	}
	return nil
}

// Enqueue appends value with the given size.
func (q *Queue[T]) Enqueue(value T, size float64) error {
	if err := ValidateSize(size); err != nil {
		return err
	}

	if q.buffer == nil {
		q.buffer = make([]Entry[T], minCapacity)
	}
	if q.count == len(q.buffer) {
		q.grow()
	}

	q.buffer[q.tail] = Entry[T]{Value: value, Size: size}
	q.tail = (q.tail + 1) % len(q.buffer)
	q.count++
	q.totalSize += size

	return nil
}

// Dequeue removes and returns the oldest entry.
func (q *Queue[T]) Dequeue() (Entry[T], error) {
	if q.count == 0 {
		return Entry[T]{}, ErrEmptyQueue
	}

	entry := q.buffer[q.head]
	q.buffer[q.head] = Entry[T]{} // release reference for GC
	q.head = (q.head + 1) % len(q.buffer)
	q.count--

	q.totalSize -= entry.Size
	if q.totalSize < 0 || q.count == 0 {
		// float subtraction drifts; an empty queue is exactly zero
		q.totalSize = 0
	}

	return entry, nil
}

// Peek returns the oldest entry without removing it.
func (q *Queue[T]) Peek() (Entry[T], error) {
	if q.count == 0 {
		return Entry[T]{}, ErrEmptyQueue
	}
	return q.buffer[q.head], nil
}

// Len returns the number of queued entries.
func (q *Queue[T]) Len() int {
	return q.count
}

// TotalSize returns the sum of queued sizes, never negative.
func (q *Queue[T]) TotalSize() float64 {
	return q.totalSize
}

// Reset discards every entry.
func (q *Queue[T]) Reset() {
	q.buffer = make([]Entry[T], minCapacity)
	q.head = 0
	q.tail = 0
	q.count = 0
	q.totalSize = 0
}

// Drain removes and returns all entries in FIFO order.
func (q *Queue[T]) Drain() []Entry[T] {
	out := make([]Entry[T], 0, q.count)
	for q.count > 0 {
		entry, _ := q.Dequeue()
		out = append(out, entry)
	}
	return out
}

func (q *Queue[T]) grow() {
	buffer := make([]Entry[T], len(q.buffer)*2)
	n := copy(buffer, q.buffer[q.head:])
	copy(buffer[n:], q.buffer[:q.head])
	q.buffer = buffer
	q.head = 0
	q.tail = q.count
}
