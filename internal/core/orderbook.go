package core

import (
	"container/heap"
	"sort"

	"github.com/olyamironova/matching-engine/internal/domain"
)

// entry is a queue slot. seq is the admission number and breaks ties
// between orders stamped with the same time.
type entry struct {
	order *domain.Order
	seq   uint64
}

// orderQueue is one side of the book kept as a binary heap in price-time
// priority. Dead orders stay in the heap until they surface at the top or
// the side is compacted.
type orderQueue struct {
	entries []*entry
	isBid   bool
}

func newOrderQueue(isBid bool) *orderQueue {
	q := &orderQueue{isBid: isBid}
	heap.Init(q)
	return q
}

func (q *orderQueue) Len() int { return len(q.entries) }

func (q *orderQueue) Less(i, j int) bool { return q.before(q.entries[i], q.entries[j]) }

func (q *orderQueue) Swap(i, j int) { q.entries[i], q.entries[j] = q.entries[j], q.entries[i] }

func (q *orderQueue) Push(x any) { q.entries = append(q.entries, x.(*entry)) }

func (q *orderQueue) Pop() any {
	n := len(q.entries)
	e := q.entries[n-1]
	q.entries[n-1] = nil
	q.entries = q.entries[:n-1]
	return e
}

// before orders bids by price desc and asks by price asc, then FIFO.
func (q *orderQueue) before(a, b *entry) bool {
	if c := a.order.Price.Cmp(b.order.Price); c != 0 {
		if q.isBid {
			return c > 0
		}
		return c < 0
	}
	if !a.order.CreatedAt.Equal(b.order.CreatedAt) {
		return a.order.CreatedAt.Before(b.order.CreatedAt)
	}
	return a.seq < b.seq
}

func (q *orderQueue) peek() *entry {
	if len(q.entries) == 0 {
		return nil
	}
	return q.entries[0]
}

// compact drops every dead entry and restores the heap.
func (q *orderQueue) compact() {
	live := q.entries[:0]
	for _, e := range q.entries {
		if e.order.Live() {
			live = append(live, e)
		}
	}
	for i := len(live); i < len(q.entries); i++ {
		q.entries[i] = nil
	}
	q.entries = live
	heap.Init(q)
}

// levels groups live entries into price levels, best price first, and keeps
// at most depth of them. Call compact first.
func (q *orderQueue) levels(depth int) []domain.PriceLevel {
	sorted := make([]*entry, len(q.entries))
	copy(sorted, q.entries)
	sort.Slice(sorted, func(i, j int) bool { return q.before(sorted[i], sorted[j]) })

	levels := []domain.PriceLevel{}
	for _, e := range sorted {
		n := len(levels)
		if n > 0 && levels[n-1].Price.Equal(e.order.Price) {
			levels[n-1].Quantity = levels[n-1].Quantity.Add(e.order.Remaining)
			levels[n-1].Orders++
			continue
		}
		if n == depth {
			break
		}
		levels = append(levels, domain.PriceLevel{
			Price:    e.order.Price,
			Quantity: e.order.Remaining,
			Orders:   1,
		})
	}
	return levels
}
