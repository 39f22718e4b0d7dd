package queue

import (
	"slices"

	"github.com/glebovdev/twindeck/internal/media"
)

// order is an item sequence with an id -> positions index. Duplicates of
// one id are told apart by occurrence number, so the k-th copy in the live
// queue maps to the k-th copy in the original order.
type order struct {
	items     []media.Item
	positions map[string][]int
}

func newOrder(items []media.Item) *order {
	o := &order{items: media.Clone(items)}
	if o.items == nil {
		o.items = []media.Item{}
	}
	o.reindex()
	return o
}

func (o *order) reindex() {
	o.positions = make(map[string][]int, len(o.items))
	for i, it := range o.items {
		o.positions[it.ID] = append(o.positions[it.ID], i)
	}
}

func (o *order) len() int {
	return len(o.items)
}

func (o *order) clone() *order {
	return newOrder(o.items)
}

// occurrence returns which copy of its id the item at index is (0-based).
func (o *order) occurrence(index int) int {
	id := o.items[index].ID
	for n, p := range o.positions[id] {
		if p == index {
			return n
		}
	}
	return 0
}

// find returns the position of the n-th copy of id, the first copy when
// there are fewer than n+1, or -1 when id is absent.
func (o *order) find(id string, n int) int {
	ps := o.positions[id]
	if len(ps) == 0 {
		return -1
	}
	if n < 0 || n >= len(ps) {
		return ps[0]
	}
	return ps[n]
}

// locate maps live positions [from, to) of o onto positions in other.
func (o *order) locate(other *order, from, to int) []int {
	out := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, other.find(o.items[i].ID, o.occurrence(i)))
	}
	return out
}

func (o *order) insert(index int, items ...media.Item) {
	if index < 0 || index > len(o.items) {
		index = len(o.items)
	}
	o.items = slices.Insert(o.items, index, items...)
	o.reindex()
}

func (o *order) set(index int, item media.Item) {
	o.items[index] = item
	o.reindex()
}

func (o *order) replaceRange(from, to int, items []media.Item) {
	o.items = slices.Replace(o.items, from, to, items...)
	o.reindex()
}

// removePositions deletes the given positions, ignoring -1 and duplicates.
func (o *order) removePositions(positions []int) {
	ps := slices.Clone(positions)
	slices.Sort(ps)
	ps = slices.Compact(ps)
	for i := len(ps) - 1; i >= 0; i-- {
		if p := ps[i]; p >= 0 && p < len(o.items) {
			o.items = slices.Delete(o.items, p, p+1)
		}
	}
	o.reindex()
}
