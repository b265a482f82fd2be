package notify

import (
	"context"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/activecaptain/internal/geo"
)

// Kind identifies a lifecycle notification.
type Kind string

const (
	// KindInstalled is published when the library database opens successfully.
	KindInstalled Kind = "installed"
	// KindNotInstalled is published when the library database is deleted or rejected.
	KindNotInstalled Kind = "not_installed"
	// KindTileUpdated is published when the content or watermark of a tile changes.
	KindTileUpdated Kind = "tile_updated"
)

// Event is one notification. Tile is set only for KindTileUpdated.
type Event struct {
	Kind      Kind
	Tile      *geo.Tile
	Timestamp time.Time
}

// Installed builds a KindInstalled event.
func Installed() Event {
	return Event{Kind: KindInstalled, Timestamp: time.Now().UTC()}
}

// NotInstalled builds a KindNotInstalled event.
func NotInstalled() Event {
	return Event{Kind: KindNotInstalled, Timestamp: time.Now().UTC()}
}

// TileUpdated builds a KindTileUpdated event for the tile.
func TileUpdated(tile geo.Tile) Event {
	return Event{Kind: KindTileUpdated, Tile: &tile, Timestamp: time.Now().UTC()}
}

// Publisher receives lifecycle events.
type Publisher interface {
	Publish(event Event)
}

// Discard is a Publisher that drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Event) {}

const defaultBufferSize = 16

// Dispatcher fans events out to buffered subscribers.
// Sends never block: a subscriber whose buffer is full misses the event.
type Dispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]*subscriber
	nextID      int64
	bufferSize  int
}

type subscriber struct {
	id     int64
	stream chan Event
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		subscribers: make(map[int64]*subscriber),
		bufferSize:  defaultBufferSize,
	}
}

// Subscribe registers a stream that stays open until ctx is done or the returned cancel runs.
func (d *Dispatcher) Subscribe(ctx context.Context) (<-chan Event, func()) {
	sub := &subscriber{
		stream: make(chan Event, d.bufferSize),
	}
	d.register(sub)

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregister(sub.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return sub.stream, cleanup
}

func (d *Dispatcher) Publish(event Event) {
	if event.Kind == "" {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	d.mu.RLock()
	if len(d.subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*subscriber, 0, len(d.subscribers))
	for _, sub := range d.subscribers {
		copies = append(copies, sub)
	}
	d.mu.RUnlock()
	for _, sub := range copies {
		select {
		case sub.stream <- event:
		default:
		}
	}
}

// SubscriberCount reports the number of registered streams.
func (d *Dispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}

func (d *Dispatcher) register(sub *subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	sub.id = d.nextID
	d.subscribers[sub.id] = sub
}

func (d *Dispatcher) unregister(subscriberID int64) {
	d.mu.Lock()
	delete(d.subscribers, subscriberID)
	d.mu.Unlock()
}
