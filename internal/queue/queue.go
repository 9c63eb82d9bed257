// Package queue provides the task queues feeding the scheduler: FIFO,
// priority, and delayed disciplines behind one interface.
package queue

import (
	"context"
	"errors"
	"time"
)

// Discipline selects a queue implementation.
type Discipline string

// Supported queue disciplines.
const (
	DisciplineFIFO     Discipline = "fifo"
	DisciplinePriority Discipline = "priority"
	DisciplineDelayed  Discipline = "delayed"
)

// ErrClosed is returned by Pop once the queue is closed and drained.
var ErrClosed = errors.New("queue closed")

// Item wraps a queued unit of work. Value is opaque to the queue.
type Item struct {
	ID        string
	Priority  int
	ReleaseAt time.Time
	Value     any
}

// Queue is the discipline-agnostic contract the scheduler consumes. Pop
// blocks until an item is available or ctx ends.
type Queue interface {
	Push(ctx context.Context, item Item) error
	Pop(ctx context.Context) (Item, error)
	Len() int
	Close()
}

// New builds the queue for a discipline. capacity only bounds the FIFO
// variant; heap-backed disciplines grow as needed.
func New(d Discipline, capacity int) (Queue, error) {
	switch d {
	case DisciplineFIFO, "":
		return NewFIFO(capacity), nil
	case DisciplinePriority:
		return NewPriority(), nil
	case DisciplineDelayed:
		return NewDelayed(), nil
	default:
		return nil, errors.New("unknown queue discipline: " + string(d))
	}
}
