package hub

import (
    "testing"
    "time"
)

func recv(t *testing.T, sub *Subscriber) Message {
    t.Helper()
    select {
    case msg, ok := <-sub.C():
        if !ok {
            t.Fatal("channel closed before the expected message")
        }
        return msg
    case <-time.After(time.Second):
        t.Fatal("timed out waiting for a message")
    }
    return Message{}
}

func TestPublishReachesRoomSubscribers(t *testing.T) {
    h := New()
    a := h.Subscribe(1, "alice")
    b := h.Subscribe(1, "bob")
    other := h.Subscribe(2, "carol")
    defer h.Unsubscribe(1, a)
    defer h.Unsubscribe(1, b)
    defer h.Unsubscribe(2, other)

    h.Publish(1, "", Message{Type: SeatSelected, Seat: "14"})

    for _, sub := range []*Subscriber{a, b} {
        if msg := recv(t, sub); msg.Type != SeatSelected || msg.Seat != "14" {
            t.Fatalf("got %+v, want seat-selected for 14", msg)
        }
    }
    select {
    case msg := <-other.C():
        t.Fatalf("departure 2 subscriber received %+v from departure 1", msg)
    default:
    }
}

func TestPublishSkipsActingHolder(t *testing.T) {
    h := New()
    a := h.Subscribe(1, "alice")
    b := h.Subscribe(1, "bob")
    defer h.Unsubscribe(1, a)
    defer h.Unsubscribe(1, b)

    h.Publish(1, "alice", Message{Type: SeatSelected, Seat: "14"})

    recv(t, b)
    select {
    case msg := <-a.C():
        t.Fatalf("acting holder received its own event: %+v", msg)
    default:
    }
}

func TestPublishToEmptyRoomIsNoop(t *testing.T) {
    h := New()
    h.Publish(99, "", Message{Type: SeatsReleased, Seats: []string{"1"}})
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
    h := New()
    slow := h.Subscribe(1, "slow")
    defer h.Unsubscribe(1, slow)

    done := make(chan struct{})
    go func() {
        defer close(done)
        for i := 0; i < subscriberBuffer*3; i++ {
            h.Publish(1, "", Message{Type: SeatDeselected, Seat: "1"})
        }
    }()
    select {
    case <-done:
    case <-time.After(2 * time.Second):
        t.Fatal("publishing stalled on a subscriber that never drains")
    }
    if got := len(slow.ch); got != subscriberBuffer {
        t.Fatalf("buffered %d messages, want the overflow dropped at %d", got, subscriberBuffer)
    }
}

func TestUnsubscribeClosesChannelAndReapsRoom(t *testing.T) {
    h := New()
    sub := h.Subscribe(1, "alice")
    h.Unsubscribe(1, sub)

    if _, ok := <-sub.C(); ok {
        t.Fatal("channel must be closed after unsubscribe")
    }
    h.mu.RLock()
    _, exists := h.rooms[1]
    h.mu.RUnlock()
    if exists {
        t.Fatal("an empty room must be reaped")
    }

    // A second unsubscribe of the same watcher must not close twice.
    h.Unsubscribe(1, sub)
}

func TestFanoutPublishesInOrder(t *testing.T) {
    var order []string
    first := publisherFunc(func(uint64, string, Message) { order = append(order, "first") })
    second := publisherFunc(func(uint64, string, Message) { order = append(order, "second") })

    Fanout{first, second}.Publish(1, "", Message{Type: SeatsBooked, Seats: []string{"3"}})

    if len(order) != 2 || order[0] != "first" || order[1] != "second" {
        t.Fatalf("fanout order = %v", order)
    }
}

type publisherFunc func(uint64, string, Message)

func (f publisherFunc) Publish(departureID uint64, exceptHolder string, msg Message) {
    f(departureID, exceptHolder, msg)
}
