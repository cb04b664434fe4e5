package server

import (
	"context"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/studyhall/studyhall/internal/database"
	"github.com/studyhall/studyhall/internal/stats"
	"github.com/studyhall/studyhall/internal/types"
)

// ChatServer tracks live connections and their room-topic
// subscriptions, and owns the orchestrator and broadcaster.
type ChatServer struct {
	log   *log.Logger
	db    database.StudyHallRepository
	stats stats.StatsProvider

	orchestrator *ChatOrchestrator
	broadcaster  *Broadcaster

	clientsLock sync.RWMutex
	clients     map[*Client]struct{}
	userMap     map[int]map[*Client]struct{}

	subsLock      sync.RWMutex
	subscriptions map[string]map[*Client]struct{}
}

// NewChatServer wires the chat core. redisClient may be nil, in which
// case broadcasts are delivered to this instance's connections only.
func NewChatServer(logger *log.Logger, db database.StudyHallRepository, redisClient *redis.Client, su stats.StatsProvider) (*ChatServer, error) {
	cs := &ChatServer{
		log:           logger,
		db:            db,
		stats:         su,
		clients:       make(map[*Client]struct{}),
		userMap:       make(map[int]map[*Client]struct{}),
		subscriptions: make(map[string]map[*Client]struct{}),
	}

	cs.broadcaster = NewBroadcaster(cs, redisClient, logger, su)
	cs.orchestrator = NewChatOrchestrator(db, cs.broadcaster, logger, su)

	su.RegisterMetric(stats.NumActiveClients)
	su.RegisterMetric(stats.NumSubscriptions)
	su.RegisterMetric(stats.MessagesPersisted)
	su.RegisterMetric(stats.EventsBroadcast)
	su.RegisterMetric(stats.BroadcastErrors)

	return cs, nil
}

// Run starts the cross-instance broadcast bridge. It returns once ctx
// is cancelled.
func (cs *ChatServer) Run(ctx context.Context) {
	cs.broadcaster.Listen(ctx)
}

func (cs *ChatServer) Orchestrator() *ChatOrchestrator {
	return cs.orchestrator
}

func (cs *ChatServer) RegisterClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	cs.clients[c] = struct{}{}
	if cs.userMap[c.user.Id] == nil {
		cs.userMap[c.user.Id] = make(map[*Client]struct{})
	}
	cs.userMap[c.user.Id][c] = struct{}{}

	cs.stats.Incr(stats.NumActiveClients)
	cs.log.Printf("registered session %s for %q", c.sessionId, c.user.Username)
}

func (cs *ChatServer) DeregisterClient(c *Client) {
	for _, roomId := range c.subscriptions() {
		cs.Unsubscribe(c, roomId)
	}

	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	if _, ok := cs.clients[c]; !ok {
		return
	}

	delete(cs.clients, c)
	if userClients, ok := cs.userMap[c.user.Id]; ok {
		delete(userClients, c)
		if len(userClients) == 0 {
			delete(cs.userMap, c.user.Id)
		}
	}

	cs.stats.Decr(stats.NumActiveClients)
	cs.log.Printf("deregistered session %s for %q", c.sessionId, c.user.Username)
}

// Subscribe records a client on a room's chat topic. Any authenticated
// connection may subscribe to any room; there is no membership check.
func (cs *ChatServer) Subscribe(c *Client, externalId string) error {
	if _, err := cs.db.GetRoomByExternalId(externalId); err != nil {
		return err
	}

	cs.subsLock.Lock()
	defer cs.subsLock.Unlock()

	if cs.subscriptions[externalId] == nil {
		cs.subscriptions[externalId] = make(map[*Client]struct{})
	}
	if _, ok := cs.subscriptions[externalId][c]; ok {
		return nil
	}

	cs.subscriptions[externalId][c] = struct{}{}
	c.addSubscription(externalId)
	cs.stats.Incr(stats.NumSubscriptions)

	return nil
}

func (cs *ChatServer) Unsubscribe(c *Client, externalId string) {
	cs.subsLock.Lock()
	defer cs.subsLock.Unlock()

	subs, ok := cs.subscriptions[externalId]
	if !ok {
		return
	}
	if _, ok := subs[c]; !ok {
		return
	}

	delete(subs, c)
	if len(subs) == 0 {
		delete(cs.subscriptions, externalId)
	}
	c.delSubscription(externalId)
	cs.stats.Decr(stats.NumSubscriptions)
}

// deliverToRoom queues msg on every connection subscribed to the room
// topic right now. Fire and forget: a full or closing connection just
// misses the message.
func (cs *ChatServer) deliverToRoom(externalId string, msg *ServerMessage) {
	cs.subsLock.RLock()
	defer cs.subsLock.RUnlock()

	for client := range cs.subscriptions[externalId] {
		client.queueMessage(msg)
	}
}

// deliverToUser queues msg on every live connection of one user (the
// user's private queue).
func (cs *ChatServer) deliverToUser(userId int, msg *ServerMessage) {
	cs.clientsLock.RLock()
	defer cs.clientsLock.RUnlock()

	for client := range cs.userMap[userId] {
		client.queueMessage(msg)
	}
}

// NotifyRoomDeleted broadcasts a ROOM_DELETED event to the room's live
// subscribers and drops the topic. Called after the storage cascade.
func (cs *ChatServer) NotifyRoomDeleted(externalId string) {
	cs.broadcaster.PublishToRoom(externalId, &types.ChatEvent{
		RoomId:        externalId,
		Content:       "room has been deleted",
		MessageType:   types.MessageTypeRoomDeleted,
		Timestamp:     Now(),
		BroadcastType: types.BroadcastRoomDeleted,
	})

	cs.subsLock.Lock()
	defer cs.subsLock.Unlock()

	for client := range cs.subscriptions[externalId] {
		client.delSubscription(externalId)
		cs.stats.Decr(stats.NumSubscriptions)
	}
	delete(cs.subscriptions, externalId)
}

// Shutdown stops all client sessions. Each gets a best-effort
// service-unavailable notice before its connection closes; in-flight
// frames finish on their own goroutines.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.clientsLock.RLock()
	clients := make([]*Client, 0, len(cs.clients))
	for c := range cs.clients {
		clients = append(clients, c)
	}
	cs.clientsLock.RUnlock()

	for _, c := range clients {
		c.queueMessage(ErrServiceUnavailable(0))
		c.stopClient()
	}

	return ctx.Err()
}
