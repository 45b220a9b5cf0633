package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/mossy-p/bridge-signaling/internal/auth"
	"github.com/mossy-p/bridge-signaling/internal/codec"
	"github.com/mossy-p/bridge-signaling/internal/logging"
	"github.com/mossy-p/bridge-signaling/internal/models"
	"github.com/mossy-p/bridge-signaling/internal/rooms"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	sendBufferSize = 256
	storeTimeout   = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware
		return true
	},
}

// HubOptions configures a Hub.
type HubOptions struct {
	Store rooms.Store
	// JWTSecret verifies register tokens when RequireToken is set.
	JWTSecret    string
	RequireToken bool
	MaxGuests    int
	Logger       logrus.FieldLogger
}

// Hub tracks the live websocket members of every room on this instance and
// mirrors membership into the room store.
type Hub struct {
	store        rooms.Store
	jwtSecret    string
	requireToken bool
	maxGuests    int
	log          *logrus.Entry

	mu    sync.Mutex
	rooms map[string]*Room
}

// Room is the set of connected members of one room.
type Room struct {
	ID     string
	HostID string
	Peers  map[string]*Client
}

// Client represents a WebSocket client connection. PeerID, Type and room
// are set once the client registers.
type Client struct {
	ID     string
	PeerID string
	Type   string
	Conn   *websocket.Conn
	Send   chan []byte

	hub    *Hub
	room   *Room
	joined bool
	closed bool
	log    *logrus.Entry
}

func NewHub(opts HubOptions) *Hub {
	if opts.MaxGuests <= 0 {
		opts.MaxGuests = 1
	}
	return &Hub{
		store:        opts.Store,
		jwtSecret:    opts.JWTSecret,
		requireToken: opts.RequireToken,
		maxGuests:    opts.MaxGuests,
		log:          logging.Component(opts.Logger, "hub"),
		rooms:        make(map[string]*Room),
	}
}

// HandleSignaling upgrades the request and serves the signaling protocol on
// the connection.
func (h *Hub) HandleSignaling(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Warn("Failed to upgrade connection")
		return
	}

	client := &Client{
		ID:   uuid.New().String(),
		Conn: conn,
		Send: make(chan []byte, sendBufferSize),
		hub:  h,
	}
	client.log = h.log.WithField("conn", client.ID)
	client.log.WithField("remote", c.Request.RemoteAddr).Debug("Connection opened")

	go client.writePump(client.log)
	go client.readPump()
}

// Members returns the peer ids currently connected to roomID.
func (h *Hub) Members(roomID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(room.Peers))
	for id := range room.Peers {
		out = append(out, id)
	}
	return out
}

// CloseRoom tells guests the host is gone and disconnects every member.
func (h *Hub) CloseRoom(roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[roomID]
	if !ok {
		return
	}
	for id, client := range room.Peers {
		if id != room.HostID && client.joined {
			client.queue(models.HostDisconnected{})
		}
		client.closeSend()
		client.room = nil
	}
	delete(h.rooms, roomID)
	h.log.WithField("room", roomID).Info("Room closed")
}

func storeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), storeTimeout)
}

// register admits c into the room named by reg.
func (h *Hub) register(c *Client, reg models.Register) {
	if c.registered() {
		c.sendError("already registered", string(models.TypeRegister))
		return
	}
	if err := reg.Validate(); err != nil {
		c.sendError(err.Error(), string(models.TypeRegister))
		return
	}
	if h.requireToken {
		claims, err := auth.ParseToken(h.jwtSecret, reg.Token)
		if err != nil || claims.PeerID != reg.PeerID || claims.ClientType != reg.ClientType {
			c.log.WithField("peer", reg.PeerID).Warn("Rejected register with invalid token")
			c.sendError("invalid token", string(models.TypeRegister))
			return
		}
	}

	ctx, cancel := storeContext()
	defer cancel()
	if _, err := h.store.Ensure(ctx, reg.RoomID, h.maxGuests); err != nil {
		c.log.WithError(err).Error("Failed to ensure room")
		c.sendError("room unavailable", string(models.TypeRegister))
		return
	}

	h.mu.Lock()
	room, ok := h.rooms[reg.RoomID]
	if !ok {
		room = &Room{ID: reg.RoomID, Peers: make(map[string]*Client)}
		h.rooms[reg.RoomID] = room
	}

	// A peer reconnecting with the same id replaces its stale connection.
	if old, ok := room.Peers[reg.PeerID]; ok {
		old.log.Info("Replaced by a newer connection")
		old.closeSend()
		old.room = nil
		delete(room.Peers, reg.PeerID)
		if room.HostID == reg.PeerID {
			room.HostID = ""
		}
	}

	if err := room.admit(reg, h.maxGuests); err != nil {
		h.dropIfEmpty(room)
		h.mu.Unlock()
		c.sendError(err.Error(), string(models.TypeRegister))
		return
	}

	c.PeerID = reg.PeerID
	c.Type = reg.ClientType
	c.room = room
	c.log = c.log.WithFields(logrus.Fields{"peer": c.PeerID, "room": room.ID})
	room.Peers[c.PeerID] = c
	if c.Type == models.ClientTypeHost {
		room.HostID = c.PeerID
	}

	h.mu.Unlock()

	// Membership is stored before any member is told about it.
	err := h.store.AddPeer(ctx, room.ID, c.PeerID)
	if errors.Is(err, rooms.ErrNotFound) {
		// The last member of a previous incarnation removed it meanwhile.
		if _, err = h.store.Ensure(ctx, room.ID, h.maxGuests); err == nil {
			err = h.store.AddPeer(ctx, room.ID, c.PeerID)
		}
	}
	if err != nil {
		c.log.WithError(err).Warn("Failed to record peer")
	}
	if c.Type == models.ClientTypeHost {
		if err := h.store.SetHost(ctx, room.ID, c.PeerID, c.Type); err != nil {
			c.log.WithError(err).Warn("Failed to record host")
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if c.room != room {
		return // replaced or room closed meanwhile
	}
	c.joined = true
	c.queue(models.Registered{})
	c.queue(models.JoinedRoom{RoomID: room.ID, PeerID: c.PeerID, Role: c.Type})
	for id, other := range room.Peers {
		if id == c.PeerID || !other.joined {
			continue
		}
		other.queue(models.PeerJoined{PeerID: c.PeerID, Role: c.Type})
		c.queue(models.PeerJoined{PeerID: other.PeerID, Role: other.Type})
	}
	members := len(room.Peers)

	c.log.WithFields(logrus.Fields{"type": c.Type, "members": members}).Info("Peer joined room")
}

var (
	errRoomFull  = errors.New("room is full")
	errHostTaken = errors.New("room already has a host")
)

func (r *Room) admit(reg models.Register, maxGuests int) error {
	if reg.ClientType == models.ClientTypeHost {
		if r.HostID != "" {
			return errHostTaken
		}
		return nil
	}
	guests := len(r.Peers)
	if r.HostID != "" {
		guests--
	}
	if guests >= maxGuests {
		return errRoomFull
	}
	return nil
}

// dropIfEmpty must be called with h.mu held.
func (h *Hub) dropIfEmpty(room *Room) bool {
	if len(room.Peers) > 0 {
		return false
	}
	if h.rooms[room.ID] == room {
		delete(h.rooms, room.ID)
	}
	return true
}

// relay forwards a raw frame to every other member of the sender's room.
func (h *Hub) relay(c *Client, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.room == nil {
		return
	}
	for id, other := range c.room.Peers {
		if id != c.PeerID && other.joined {
			other.queueRaw(data)
		}
	}
}

// leave removes c from its room. Guests are told when the host leaves, and
// an emptied room is removed from the store.
func (h *Hub) leave(c *Client) {
	h.mu.Lock()
	room := c.room
	c.closeSend()
	if room == nil || room.Peers[c.PeerID] != c {
		h.mu.Unlock()
		return
	}
	delete(room.Peers, c.PeerID)
	c.room = nil

	wasHost := room.HostID == c.PeerID
	if wasHost {
		room.HostID = ""
		for _, other := range room.Peers {
			if other.joined {
				other.queue(models.HostDisconnected{})
			}
		}
	}
	empty := h.dropIfEmpty(room)
	h.mu.Unlock()

	ctx, cancel := storeContext()
	defer cancel()
	if err := h.store.RemovePeer(ctx, room.ID, c.PeerID); err != nil {
		c.log.WithError(err).Warn("Failed to remove peer")
	}
	if empty {
		if err := h.store.Delete(ctx, room.ID); err != nil && !errors.Is(err, rooms.ErrNotFound) {
			c.log.WithError(err).Warn("Failed to delete empty room")
		}
	} else if wasHost {
		if err := h.store.SetHost(ctx, room.ID, "", ""); err != nil && !errors.Is(err, rooms.ErrNotFound) {
			c.log.WithError(err).Warn("Failed to clear host")
		}
	}

	c.log.WithField("host", wasHost).Info("Peer left room")
}

func (h *Hub) dispatch(c *Client, data []byte) {
	msg, err := codec.Decode(data)
	if err != nil {
		c.log.WithError(err).Debug("Failed to parse message")
		c.sendError("malformed message", "parse")
		return
	}

	switch m := msg.(type) {
	case models.Register:
		h.register(c, m)
	case models.Unknown:
		c.sendError("unknown message type", m.Discriminator)
	default:
		t := msg.Type()
		if !t.Relayed() {
			c.sendError("unexpected message", string(t))
			return
		}
		if !c.registered() {
			c.sendError("not registered", string(t))
			return
		}
		h.relay(c, data)
	}
}

func (c *Client) registered() bool {
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	return c.room != nil
}

func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.WithError(err).Warn("WebSocket error")
			}
			return
		}
		c.hub.dispatch(c, message)
	}
}

func (c *Client) writePump(log *logrus.Entry) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.WithError(err).Debug("Failed to write message")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// queue, queueRaw and closeSend must be called with hub.mu held.
func (c *Client) queue(msg models.Message) {
	data, err := codec.Encode(msg)
	if err != nil {
		c.log.WithError(err).Error("Failed to marshal message")
		return
	}
	c.queueRaw(data)
}

func (c *Client) queueRaw(data []byte) {
	if c.closed {
		return
	}
	select {
	case c.Send <- data:
	default:
		c.log.Warn("Failed to send message, buffer full")
	}
}

func (c *Client) closeSend() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

func (c *Client) sendError(reason, where string) {
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	c.queue(models.Error{Error: reason, Context: where})
}
