// Package hub provides per-departure broadcast rooms for the live
// seat-map view.  The lock coordinator publishes seat events into a
// departure's room; every subscriber of that room except the acting
// holder receives them.  Delivery is best effort: the layer is pure
// UX, so a slow subscriber is skipped rather than allowed to stall the
// room.
package hub

import "sync"

// Message types carried on a departure's room (and mirrored on the
// external pub/sub channel).
const (
    SeatSelected    = "seat-selected"
    SeatDeselected  = "seat-deselected"
    SeatUnavailable = "seat-unavailable"
    SeatLocked      = "seat-locked"
    SeatsBooked     = "seats-booked"
    SeatsReleased   = "seats-released"
)

// Message is one seat-map event.  Holder, when present, is an opaque
// short token, never a raw holder identity.
type Message struct {
    Type             string   `json:"type"`
    Seat             string   `json:"seat,omitempty"`
    Seats            []string `json:"seats,omitempty"`
    Holder           string   `json:"holder,omitempty"`
    ExpiresInSeconds int      `json:"expires_in_seconds,omitempty"`
    TimeLeftSeconds  int      `json:"time_left_seconds,omitempty"`
}

// Publisher is the fan-out surface the lock coordinator writes to.
type Publisher interface {
    // Publish delivers msg to every watcher of the departure except the
    // one identified by exceptHolder (empty means deliver to all).
    Publish(departureID uint64, exceptHolder string, msg Message)
}

// subscriberBuffer is each subscriber's channel capacity; events beyond
// it are dropped for that subscriber rather than blocking the room.
const subscriberBuffer = 16

// Subscriber is one watcher of a departure's room.
type Subscriber struct {
    holder string
    ch     chan Message
}

// C is the subscriber's receive channel.  It is closed on Unsubscribe.
func (s *Subscriber) C() <-chan Message { return s.ch }

type room struct {
    mu   sync.Mutex
    subs map[*Subscriber]struct{}
}

// Hub keeps one room per departure.  Rooms are created on first
// subscribe and dropped when their last subscriber leaves.
type Hub struct {
    mu    sync.RWMutex
    rooms map[uint64]*room
}

func New() *Hub {
    return &Hub{rooms: make(map[uint64]*room)}
}

// Subscribe registers a watcher on the departure's room.
func (h *Hub) Subscribe(departureID uint64, holder string) *Subscriber {
    sub := &Subscriber{holder: holder, ch: make(chan Message, subscriberBuffer)}
    h.mu.Lock()
    rm := h.rooms[departureID]
    if rm == nil {
        rm = &room{subs: make(map[*Subscriber]struct{})}
        h.rooms[departureID] = rm
    }
    h.mu.Unlock()

    rm.mu.Lock()
    rm.subs[sub] = struct{}{}
    rm.mu.Unlock()
    return sub
}

// Unsubscribe removes the watcher and closes its channel.  Empty rooms
// are reaped so the hub does not grow with departed traffic.
func (h *Hub) Unsubscribe(departureID uint64, sub *Subscriber) {
    h.mu.RLock()
    rm := h.rooms[departureID]
    h.mu.RUnlock()
    if rm == nil {
        return
    }
    rm.mu.Lock()
    _, present := rm.subs[sub]
    delete(rm.subs, sub)
    empty := len(rm.subs) == 0
    rm.mu.Unlock()
    if present {
        close(sub.ch)
    }
    if empty {
        h.mu.Lock()
        if rm2 := h.rooms[departureID]; rm2 == rm {
            rm.mu.Lock()
            if len(rm.subs) == 0 {
                delete(h.rooms, departureID)
            }
            rm.mu.Unlock()
        }
        h.mu.Unlock()
    }
}

// Publish fans msg out to the room, skipping exceptHolder and any
// subscriber whose buffer is full.
func (h *Hub) Publish(departureID uint64, exceptHolder string, msg Message) {
    h.mu.RLock()
    rm := h.rooms[departureID]
    h.mu.RUnlock()
    if rm == nil {
        return
    }
    rm.mu.Lock()
    defer rm.mu.Unlock()
    for sub := range rm.subs {
        if exceptHolder != "" && sub.holder == exceptHolder {
            continue
        }
        select {
        case sub.ch <- msg:
        default:
            // Subscriber is not draining; drop rather than stall the room.
        }
    }
}

// Fanout publishes to several publishers in order.  Used to mirror room
// events onto the external pub/sub channel.
type Fanout []Publisher

func (f Fanout) Publish(departureID uint64, exceptHolder string, msg Message) {
    for _, p := range f {
        p.Publish(departureID, exceptHolder, msg)
    }
}
