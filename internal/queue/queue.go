// Package queue provides a bounded top-k selector over scored ids.
package queue

import "sort"

// Item is a scored id. Higher scores rank first; equal scores rank by
// ascending id.
type Item struct {
	ID    uint32
	Score float32
}

// worse reports whether a ranks below b.
func worse(a, b Item) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.ID > b.ID
}

// TopK keeps the k best items pushed into it. The worst retained item sits
// at the root of a binary heap, so each push costs O(log k).
type TopK struct {
	k     int
	items []Item
}

// NewTopK creates a selector retaining at most k items.
// k <= 0 retains everything.
func NewTopK(k int) *TopK {
	capacity := k
	if capacity <= 0 {
		capacity = 16
	}
	return &TopK{k: k, items: make([]Item, 0, capacity)}
}

// Len returns the number of retained items.
func (q *TopK) Len() int { return len(q.items) }

// Push offers an item. It returns false if the item was rejected because
// the selector is full and the item ranks below all retained items.
func (q *TopK) Push(item Item) bool {
	if q.k <= 0 || len(q.items) < q.k {
		q.items = append(q.items, item)
		q.siftUp(len(q.items) - 1)
		return true
	}
	if !worse(q.items[0], item) {
		return false
	}
	q.items[0] = item
	q.siftDown(0)
	return true
}

// Worst returns the lowest ranked retained item.
func (q *TopK) Worst() (Item, bool) {
	if len(q.items) == 0 {
		return Item{}, false
	}
	return q.items[0], true
}

// Sorted drains the selector and returns the items best first.
func (q *TopK) Sorted() []Item {
	out := q.items
	q.items = nil
	sort.Slice(out, func(i, j int) bool { return worse(out[j], out[i]) })
	return out
}

func (q *TopK) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if !worse(q.items[i], q.items[p]) {
			return
		}
		q.items[i], q.items[p] = q.items[p], q.items[i]
		i = p
	}
}

func (q *TopK) siftDown(i int) {
	n := len(q.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		best := l
		r := l + 1
		if r < n && worse(q.items[r], q.items[l]) {
			best = r
		}
		if !worse(q.items[best], q.items[i]) {
			return
		}
		q.items[i], q.items[best] = q.items[best], q.items[i]
		i = best
	}
}
