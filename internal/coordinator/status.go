package coordinator

import (
	"sync"
	"time"

	"github.com/Checker-Finance/market-intel/pkg/eventbus"
	"github.com/Checker-Finance/market-intel/pkg/model"
)

// Tracker holds the latest request status and publishes every transition.
// Transitions are published in the order they replace the snapshot.
type Tracker struct {
	emitMu sync.Mutex // serialises emit and Watch
	mu     sync.RWMutex
	last   model.StatusEvent
	bus    *eventbus.Bus[model.StatusEvent]
	now    func() time.Time
}

// NewTracker creates a tracker in the idle state.
func NewTracker(bus *eventbus.Bus[model.StatusEvent]) *Tracker {
	t := &Tracker{bus: bus, now: time.Now}
	t.last = model.StatusEvent{Status: model.StatusIdle, At: t.now()}
	return t
}

// Snapshot returns the latest status event.
func (t *Tracker) Snapshot() model.StatusEvent {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last
}

func (t *Tracker) Loading(kind, key string) {
	t.emit(model.StatusEvent{Status: model.StatusLoading, Kind: kind, Key: key})
}

func (t *Tracker) Success(kind, key string) {
	t.emit(model.StatusEvent{Status: model.StatusSuccess, Kind: kind, Key: key})
}

func (t *Tracker) Error(kind, key string, err error) {
	ev := model.StatusEvent{Status: model.StatusError, Kind: kind, Key: key}
	if err != nil {
		ev.Message = err.Error()
	}
	t.emit(ev)
}

// MarkCached reports a request answered from cache without an outbound call.
func (t *Tracker) MarkCached(kind, key string) {
	t.emit(model.StatusEvent{Status: model.StatusSuccess, Kind: kind, Key: key, Cached: true})
}

// Progress reports batch progress as a loading event.
func (t *Tracker) Progress(kind string, current, total int) {
	t.emit(model.StatusEvent{
		Status:   model.StatusLoading,
		Kind:     kind,
		Progress: &model.Progress{Current: current, Total: total},
	})
}

// Watch returns the current snapshot and a channel of every later
// transition, with nothing lost or repeated in between. stop unsubscribes.
func (t *Tracker) Watch(buffer int, onDrop func()) (snapshot model.StatusEvent, events <-chan model.StatusEvent, stop func()) {
	t.emitMu.Lock()
	defer t.emitMu.Unlock()
	snapshot = t.Snapshot()
	if t.bus == nil {
		return snapshot, nil, func() {}
	}
	events, stop = t.bus.SubscribeChan(buffer, onDrop)
	return snapshot, events, stop
}

func (t *Tracker) emit(ev model.StatusEvent) {
	t.emitMu.Lock()
	defer t.emitMu.Unlock()
	ev.At = t.now()
	t.mu.Lock()
	t.last = ev
	t.mu.Unlock()
	if t.bus != nil {
		t.bus.PublishSync(ev)
	}
}
