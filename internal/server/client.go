package server

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/studyhall/studyhall/internal/database"
	"github.com/studyhall/studyhall/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client is one authenticated websocket connection. The identity is
// bound before construction and never changes for the connection's
// lifetime.
type Client struct {
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *log.Logger
	user       types.User
	sessionId  string
	send       chan *ServerMessage
	subs       map[string]struct{}
	subsLock   sync.RWMutex
	stop       chan struct{}
	stopOnce   sync.Once
}

func NewClient(user types.User, conn *websocket.Conn, cs *ChatServer, l *log.Logger) *Client {
	return &Client{
		conn:       conn,
		chatServer: cs,
		log:        l,
		user:       user,
		sessionId:  uuid.NewString(),
		send:       make(chan *ServerMessage, 256),
		subs:       make(map[string]struct{}),
		stop:       make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(msg)
			if err != nil {
				c.log.Printf("session %s: serialize message: %v", c.sessionId, err)
				continue
			}

			if !c.writeFrame(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.writeFrame(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("session %s: read: %v", c.sessionId, err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Printf("session %s: parse message: %v", c.sessionId, err)
			c.queueMessage(ErrInvalidMessage(0))
			continue
		}

		msg.client = c
		c.dispatch(&msg)
	}
}

// dispatch routes one inbound frame. Identity was bound at upgrade time;
// a frame without it is dropped (unreachable unless the upgrade path is
// bypassed).
func (c *Client) dispatch(msg *ClientMessage) {
	if c.user.Id == 0 {
		c.log.Printf("session %s: dropping frame with no bound identity", c.sessionId)
		return
	}

	switch {
	case msg.Subscribe != nil:
		c.handleSubscribe(msg.Id, msg.Subscribe.RoomId)
	case msg.Unsubscribe != nil:
		c.chatServer.Unsubscribe(c, msg.Unsubscribe.RoomId)
		c.queueMessage(NoErrOK(msg.Id, nil))
	case msg.Send != nil:
		if _, err := c.chatServer.orchestrator.SendUserMessage(msg.Send.RoomId, msg.Send.Content, msg.Send.MessageType, c.user); err != nil {
			// the orchestrator already queued the private error event
			return
		}
		c.queueMessage(NoErrAccepted(msg.Id))
	case msg.Join != nil:
		if !c.handleSubscribe(msg.Id, msg.Join.RoomId) {
			return
		}
		if err := c.chatServer.orchestrator.AnnounceJoin(msg.Join.RoomId, c.user); err != nil {
			c.log.Printf("session %s: announce join: %v", c.sessionId, err)
		}
	case msg.Leave != nil:
		if err := c.chatServer.orchestrator.AnnounceLeave(msg.Leave.RoomId, c.user); err != nil {
			c.log.Printf("session %s: announce leave: %v", c.sessionId, err)
		}
		c.chatServer.Unsubscribe(c, msg.Leave.RoomId)
		c.queueMessage(NoErrOK(msg.Id, nil))
	default:
		c.queueMessage(ErrInvalidMessage(msg.Id))
	}
}

func (c *Client) handleSubscribe(msgId int, roomId string) bool {
	if err := c.chatServer.Subscribe(c, roomId); err != nil {
		c.log.Printf("session %s: subscribe %q: %v", c.sessionId, roomId, err)
		if errors.Is(err, database.ErrNotFound) {
			c.queueMessage(ErrRoomNotFound(msgId))
		} else {
			c.queueMessage(ErrInternalError(msgId))
		}
		return false
	}

	c.queueMessage(NoErrOK(msgId, map[string]any{"room_id": roomId}))
	return true
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Printf("session %s: send buffer full, dropping message", c.sessionId)
		return false
	}

	return true
}

func (c *Client) writeFrame(msgType int, data []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, data); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("session %s: write message: %v", c.sessionId, err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

// cleanup releases transport resources only. Leave notices are an
// explicit application command, never derived from disconnect.
func (c *Client) cleanup() {
	c.chatServer.DeregisterClient(c)
	c.stopClient()
}

func (c *Client) addSubscription(roomId string) {
	c.subsLock.Lock()
	defer c.subsLock.Unlock()
	c.subs[roomId] = struct{}{}
}

func (c *Client) delSubscription(roomId string) {
	c.subsLock.Lock()
	defer c.subsLock.Unlock()
	delete(c.subs, roomId)
}

func (c *Client) subscriptions() []string {
	c.subsLock.RLock()
	defer c.subsLock.RUnlock()

	ids := make([]string, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	return ids
}
