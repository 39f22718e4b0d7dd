package engine

// Listeners is a subscriber set owned by an engine. Events are queued while
// the engine holds its lock and delivered by Flush after it lets go.
// Listeners is not safe for concurrent use on its own.
type Listeners struct {
	subs    map[int]Listener
	next    int
	pending []bool
}

// Add registers fn and returns its id for Remove.
func (l *Listeners) Add(fn Listener) int {
	if l.subs == nil {
		l.subs = make(map[int]Listener)
	}
	id := l.next
	l.next++
	l.subs[id] = fn
	return id
}

func (l *Listeners) Remove(id int) {
	delete(l.subs, id)
}

// Queue records a play-state change for the next Flush.
func (l *Listeners) Queue(playing bool) {
	l.pending = append(l.pending, playing)
}

// Reset drops all subscribers and queued events.
func (l *Listeners) Reset() {
	l.subs = nil
	l.pending = nil
}

// Take hands back the queued events with a snapshot of the subscribers in
// registration order. Call it under the owner's lock.
func (l *Listeners) Take() Flush {
	if len(l.pending) == 0 {
		return Flush{}
	}
	f := Flush{events: l.pending}
	l.pending = nil
	for i := 0; i < l.next; i++ {
		if fn, ok := l.subs[i]; ok {
			f.subs = append(f.subs, fn)
		}
	}
	return f
}

// Flush is a batch of events ready for delivery outside the owner's lock.
type Flush struct {
	events []bool
	subs   []Listener
}

func (f Flush) Deliver() {
	for _, playing := range f.events {
		for _, fn := range f.subs {
			fn(playing)
		}
	}
}
