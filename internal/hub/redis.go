package hub

import (
    "context"
    "encoding/json"
    "fmt"
    "log"
    "time"

    "github.com/redis/go-redis/v9"
)

// RedisBridge mirrors room events onto Redis pub/sub channels named
// seatmap.<departureID>, so client-facing gateways outside this process
// can subscribe to the same stream the in-process rooms carry.  Publish
// failures degrade the external view only and are logged, never
// propagated: the advisory layer must not surface infrastructure errors
// into selection traffic.
type RedisBridge struct {
    rdb *redis.Client
}

// NewRedisBridge wraps the given client; a nil client yields a bridge
// that publishes nothing.
func NewRedisBridge(rdb *redis.Client) *RedisBridge {
    return &RedisBridge{rdb: rdb}
}

func (b *RedisBridge) Publish(departureID uint64, exceptHolder string, msg Message) {
    if b == nil || b.rdb == nil {
        return
    }
    body, err := json.Marshal(msg)
    if err != nil {
        log.Printf("seatmap-bridge: marshal event failed: %v", err)
        return
    }
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    channel := fmt.Sprintf("seatmap.%d", departureID)
    if err := b.rdb.Publish(ctx, channel, body).Err(); err != nil {
        log.Printf("seatmap-bridge: publish to %s failed: %v", channel, err)
    }
}
