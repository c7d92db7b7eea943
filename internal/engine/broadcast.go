package engine

import (
	"log/slog"
	"sync"
)

// Event kinds carried by the broadcaster.
const (
	KindPlacement = "placement"
	KindFrontier  = "frontier"
	KindRestart   = "restart"
)

// Event is one notification as delivered to stream subscribers.
type Event struct {
	Kind      string          `json:"kind"`
	Placement *Placement      `json:"placement,omitempty"`
	Frontier  *FrontierUpdate `json:"frontier,omitempty"`
	Restart   *Restart        `json:"restart,omitempty"`
}

const (
	subscriberBuffer = 512
	recentEvents     = 50
)

type subscriber struct {
	ch       chan Event
	frontier bool
	dropped  int
}

// Broadcaster fans simulation notifications out to stream subscribers.
// Slow subscribers lose events rather than blocking the simulation.
type Broadcaster struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*subscriber
	recent []Event // last placements and restarts, for catch-up
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]*subscriber)}
}

// Subscribe registers a subscriber. Frontier updates are only delivered if
// frontier is true.
func (b *Broadcaster) Subscribe(frontier bool) (int, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &subscriber{ch: make(chan Event, subscriberBuffer), frontier: frontier}
	b.subs[b.nextID] = sub
	return b.nextID, sub.ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(sub.ch)
	if sub.dropped > 0 {
		slog.Debug("subscriber dropped events", "sub_id", id, "dropped", sub.dropped)
	}
}

// Recent returns the most recent placement and restart events.
func (b *Broadcaster) Recent() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.recent))
	copy(out, b.recent)
	return out
}

// Subscribers returns the active subscriber count.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broadcaster) PlacementCommitted(p Placement) {
	b.publish(Event{Kind: KindPlacement, Placement: &p}, true)
}

func (b *Broadcaster) FrontierUpdated(u FrontierUpdate) {
	b.publish(Event{Kind: KindFrontier, Frontier: &u}, false)
}

func (b *Broadcaster) Restarted(r Restart) {
	b.publish(Event{Kind: KindRestart, Restart: &r}, true)
}

func (b *Broadcaster) publish(e Event, keep bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if keep {
		b.recent = append(b.recent, e)
		if len(b.recent) > recentEvents {
			b.recent = b.recent[len(b.recent)-recentEvents:]
		}
	}
	for _, sub := range b.subs {
		if e.Kind == KindFrontier && !sub.frontier {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			sub.dropped++
		}
	}
}
