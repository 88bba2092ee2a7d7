package events

import "sync"

// Feed fans committed events out to synchronous sinks (journals, metrics) and
// to asynchronous channel subscribers (streams). Slow subscribers drop events
// instead of blocking the emitter.
type Feed struct {
	mu     sync.RWMutex
	sinks  []Emitter
	subs   map[uint64]chan Event
	nextID uint64
}

// NewFeed returns an empty feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[uint64]chan Event)}
}

// AddSink registers an emitter invoked synchronously for every event.
func (f *Feed) AddSink(sink Emitter) {
	if f == nil || sink == nil {
		return
	}
	f.mu.Lock()
	f.sinks = append(f.sinks, sink)
	f.mu.Unlock()
}

// Subscribe registers a buffered channel subscriber. The returned cancel
// function unregisters and closes the channel.
func (f *Feed) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = ch
	f.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Subscribers reports the number of channel subscribers.
func (f *Feed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// Emit implements Emitter.
func (f *Feed) Emit(evt Event) {
	if f == nil || evt == nil {
		return
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, sink := range f.sinks {
		sink.Emit(evt)
	}
	for _, ch := range f.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}
