package engine

import "github.com/glebovdev/twindeck/internal/media"

// Splice is a queue after replacing a range, with the transport's new place in it.
type Splice struct {
	Items []media.Item
	Index int
	// Moved is set when the current item is gone and Index points elsewhere.
	Moved bool
	// Replaced is set when the current item was swapped in place.
	Replaced bool
	// Stopped is set when nothing is left to move to.
	Stopped bool
}

// SpliceQueue replaces items[from:to] with repl and works out where an
// engine positioned at current ends up. Inserting is a splice with from == to.
// Out-of-range bounds are clamped.
func SpliceQueue(items []media.Item, current, from, to int, repl []media.Item) Splice {
	from = min(max(from, 0), len(items))
	to = min(max(to, from), len(items))

	out := make([]media.Item, 0, len(items)-(to-from)+len(repl))
	out = append(out, items[:from]...)
	out = append(out, repl...)
	out = append(out, items[to:]...)

	s := Splice{Items: out, Index: current}
	switch {
	case len(out) == 0:
		s.Index, s.Moved, s.Stopped = -1, true, true
	case current < 0:
		s.Index, s.Moved = 0, true
	case current >= to:
		s.Index = current + len(repl) - (to - from)
	case current < from:
	case current-from < len(repl):
		s.Replaced = true
	default:
		s.Index, s.Moved = from+len(repl), true
		if s.Index >= len(out) {
			s.Index, s.Stopped = len(out)-1, true
		}
	}
	return s
}
