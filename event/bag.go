// Package event holds the per-thread accumulator for events awaiting
// delivery. The agent core hands a thread's bag to the dispatch pipeline at
// event-handler entry; the pipeline appends whatever it decides to report
// and drains the bag once the thread's dispatch completes.
package event

import (
	"sync"

	"github.com/hitzhangjie/vmdbg/vm"
)

// Item is one pending event report.
type Item struct {
	Kind     vm.EventKind `json:"kind"`
	Thread   vm.ThreadID  `json:"thread"`
	Location vm.Location  `json:"location"`
	Seq      uint64       `json:"seq"`
}

// Bag accumulates events to be reported once the owning thread's event
// dispatch completes.
type Bag struct {
	mu    sync.Mutex
	items []Item
}

// NewBag creates an empty accumulator.
func NewBag() *Bag {
	return &Bag{}
}

// Add appends an item.
func (b *Bag) Add(it Item) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, it)
}

// Len reports the number of pending items.
func (b *Bag) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Drain removes and returns all pending items in insertion order.
func (b *Bag) Drain() []Item {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.items
	b.items = nil
	return out
}
