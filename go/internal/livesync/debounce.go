package livesync

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// FlushFunc receives the last value pushed for key once its window elapses.
type FlushFunc func(key, value string)

// Debouncer coalesces rapid edits per key. Every Push restarts the key's window
// and only the latest value is flushed.
type Debouncer struct {
	clock  clockwork.Clock
	window time.Duration
	flush  FlushFunc

	mu      sync.Mutex
	pending map[string]*pendingEdit
	seq     uint64
	stopped bool

	// held for the whole of a key's flush so writes for one key never overlap
	flushing map[string]*sync.Mutex
}

type pendingEdit struct {
	value string
	seq   uint64
	timer clockwork.Timer
}

func NewDebouncer(clock clockwork.Clock, window time.Duration, flush FlushFunc) *Debouncer {
	return &Debouncer{
		clock:    clock,
		window:   window,
		flush:    flush,
		pending:  make(map[string]*pendingEdit),
		flushing: make(map[string]*sync.Mutex),
	}
}

// Push records value for key, replacing any value still waiting.
func (d *Debouncer) Push(key, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if existing, ok := d.pending[key]; ok {
		existing.timer.Stop()
	}

	d.seq++
	seq := d.seq
	d.pending[key] = &pendingEdit{
		value: value,
		seq:   seq,
		timer: d.clock.AfterFunc(d.window, func() {
			go d.fire(key, seq)
		}),
	}
}

// fire flushes key unless a newer push superseded this timer. A flush waits
// for any earlier flush of the same key to finish.
func (d *Debouncer) fire(key string, seq uint64) {
	lock := d.flushLock(key)
	lock.Lock()
	defer lock.Unlock()

	d.mu.Lock()
	edit, ok := d.pending[key]
	if !ok || edit.seq != seq || d.stopped {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	d.mu.Unlock()

	d.flush(key, edit.value)
}

func (d *Debouncer) flushLock(key string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	lock, ok := d.flushing[key]
	if !ok {
		lock = &sync.Mutex{}
		d.flushing[key] = lock
	}
	return lock
}

// Pending returns the number of keys waiting to flush.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Stop discards every pending edit. Later pushes are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	for key, edit := range d.pending {
		edit.timer.Stop()
		delete(d.pending, key)
	}
}
