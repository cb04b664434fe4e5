package server

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"
	"github.com/studyhall/studyhall/internal/stats"
	"github.com/studyhall/studyhall/internal/types"
)

// broadcastChannel carries chat events between instances.
const broadcastChannel = "studyhall:chat:events"

// broadcastEnvelope addresses a chat event to either a room topic or a
// single user's private queue.
type broadcastEnvelope struct {
	RoomId string           `json:"room_id,omitempty"`
	UserId int              `json:"user_id,omitempty"`
	Event  *types.ChatEvent `json:"event"`
}

// Broadcaster fans events out to subscribed connections. With a Redis
// client it publishes through pub/sub so every instance (including this
// one) delivers to its own connections; without one it delivers
// directly.
type Broadcaster struct {
	cs    *ChatServer
	redis *redis.Client
	log   *log.Logger
	stats stats.StatsProvider
}

func NewBroadcaster(cs *ChatServer, redisClient *redis.Client, logger *log.Logger, su stats.StatsProvider) *Broadcaster {
	return &Broadcaster{
		cs:    cs,
		redis: redisClient,
		log:   logger,
		stats: su,
	}
}

// PublishToRoom delivers ev to every connection currently subscribed to
// the room topic. Fire and forget: no acknowledgement, no retry.
func (b *Broadcaster) PublishToRoom(roomId string, ev *types.ChatEvent) {
	b.publish(broadcastEnvelope{RoomId: roomId, Event: ev})
}

// PublishToUser delivers ev on the user's private queue: every live
// connection of that user, or none if they are disconnected.
func (b *Broadcaster) PublishToUser(userId int, ev *types.ChatEvent) {
	b.publish(broadcastEnvelope{UserId: userId, Event: ev})
}

func (b *Broadcaster) publish(env broadcastEnvelope) {
	b.stats.Incr(stats.EventsBroadcast)

	if b.redis != nil {
		data, err := json.Marshal(env)
		if err != nil {
			b.log.Printf("broadcast: marshal envelope: %v", err)
			b.stats.Incr(stats.BroadcastErrors)
			return
		}

		err = b.redis.Publish(context.Background(), broadcastChannel, data).Err()
		if err == nil {
			// delivery happens in Listen when the message comes back
			return
		}

		b.log.Printf("broadcast: redis publish: %v", err)
		b.stats.Incr(stats.BroadcastErrors)
		// fall through to local delivery so this instance's
		// subscribers still hear about it
	}

	b.deliver(env)
}

func (b *Broadcaster) deliver(env broadcastEnvelope) {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: env.Event.Timestamp},
		Event:       env.Event,
	}

	if env.UserId != 0 {
		b.cs.deliverToUser(env.UserId, msg)
		return
	}

	b.cs.deliverToRoom(env.RoomId, msg)
}

// Listen consumes the pub/sub channel and delivers envelopes to this
// instance's connections. Returns when ctx is cancelled. No-op without
// a Redis client.
func (b *Broadcaster) Listen(ctx context.Context) {
	if b.redis == nil {
		<-ctx.Done()
		return
	}

	pubsub := b.redis.Subscribe(ctx, broadcastChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var env broadcastEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.log.Printf("broadcast: decode envelope: %v", err)
				continue
			}
			if env.Event == nil {
				continue
			}

			b.deliver(env)
		}
	}
}
