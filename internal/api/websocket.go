package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"roach-arena/internal/game"
	"roach-arena/internal/store"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	resolveTimeout = 3 * time.Second
)

// HubConfig configures connection admission and per-connection budgets.
type HubConfig struct {
	MaxConnections      int           // Total connection cap
	MaxConnectionsPerIP int           // Concurrent connections per IP
	MessagesPerSecond   int           // Inbound budget per connection; excess is dropped
	JoinGrace           time.Duration // Silent connections are enrolled anonymously after this
	SendQueueSize       int           // Outbound messages buffered per connection
	SessionExpiry       time.Duration // Saved sessions older than this are not restored
	AllowedOrigins      []string      // nil uses DefaultAllowedOrigins
}

// DefaultHubConfig returns production defaults.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		MaxConnections:      500,
		MaxConnectionsPerIP: 10,
		MessagesPerSecond:   120,
		JoinGrace:           time.Second,
		SendQueueSize:       64,
		SessionExpiry:       5 * time.Minute,
	}
}

// wsClient is one player connection. It implements game.Outbox.
type wsClient struct {
	hub     *WebSocketHub
	conn    *websocket.Conn
	ip      string
	codec   codec
	send    chan any
	limiter *rate.Limiter

	joinOnce sync.Once
	playerID string // set once inside joinOnce

	closeOnce sync.Once
	done      chan struct{}
}

// Send queues a message without blocking. Returns false if it was dropped.
func (c *wsClient) Send(msg any) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- msg:
		return true
	default:
		RecordDropped()
		return false
	}
}

// Close disconnects the client. Safe to call more than once.
func (c *wsClient) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// WebSocketHub manages all player connections with DoS protection
type WebSocketHub struct {
	world    WorldInterface
	store    store.Store
	cfg      HubConfig
	upgrader websocket.Upgrader

	clients    map[*wsClient]struct{}
	register   chan *wsClient
	unregister chan *wsClient
	mu         sync.RWMutex

	// Connection limiting per IP
	conns *ConnLimiter

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewWebSocketHub creates a hub. The store is optional; without one every
// connection joins as a fresh anonymous player.
func NewWebSocketHub(world WorldInterface, st store.Store, cfg HubConfig) *WebSocketHub {
	def := DefaultHubConfig()
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = def.MaxConnections
	}
	if cfg.MaxConnectionsPerIP <= 0 {
		cfg.MaxConnectionsPerIP = def.MaxConnectionsPerIP
	}
	if cfg.MessagesPerSecond <= 0 {
		cfg.MessagesPerSecond = def.MessagesPerSecond
	}
	if cfg.JoinGrace <= 0 {
		cfg.JoinGrace = def.JoinGrace
	}
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = def.SendQueueSize
	}
	if cfg.SessionExpiry <= 0 {
		cfg.SessionExpiry = def.SessionExpiry
	}
	if cfg.AllowedOrigins == nil {
		cfg.AllowedOrigins = DefaultAllowedOrigins
	}

	h := &WebSocketHub{
		world:      world,
		store:      st,
		cfg:        cfg,
		clients:    make(map[*wsClient]struct{}),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		conns:      NewConnLimiter(cfg.MaxConnectionsPerIP),
		stopChan:   make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if IsAllowedOrigin(origin, h.cfg.AllowedOrigins) {
				return true
			}

			// Log rejected origin for security monitoring
			log.Printf("⚠️ WebSocket connection rejected from origin: %s", origin)
			RecordConnectionRejected("origin")
			return false
		},
	}
	return h
}

// Run processes registrations until Stop is called.
func (h *WebSocketHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			count := len(h.clients)
			h.mu.Unlock()

			log.Printf("📱 Client connected from %s (%d total)", client.ip, count)
			UpdateWSConnections(count)

		case client := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[client]
			if ok {
				// Release the connection slot for this IP
				h.conns.Release(client.ip)
				delete(h.clients, client)
			}
			count := len(h.clients)
			h.mu.Unlock()

			if ok {
				client.Close()
				client.conn.Close()
				if client.playerID != "" {
					h.world.Leave(client.playerID, client)
				}
				log.Printf("📱 Client disconnected (%d remaining)", count)
				UpdateWSConnections(count)
			}

		case <-h.stopChan:
			h.mu.Lock()
			for client := range h.clients {
				client.Close()
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop disconnects every client and ends Run.
func (h *WebSocketHub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopChan)
	})
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket handles incoming WebSocket connections with DoS protection
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Get client IP for rate limiting
	ip := GetClientIP(r)

	// Check total connection limit
	if total := h.ClientCount(); total >= h.cfg.MaxConnections {
		log.Printf("⚠️ WebSocket connection rejected: total limit reached (%d)", total)
		RecordConnectionRejected("ws_total_limit")
		http.Error(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}

	// Check per-IP connection limit
	if !h.conns.Acquire(ip) {
		log.Printf("⚠️ WebSocket connection rejected from %s: per-IP limit reached", ip)
		RecordConnectionRejected("ws_ip_limit")
		http.Error(w, "Too many connections from your IP", http.StatusTooManyRequests)
		return
	}

	// Upgrade to WebSocket
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		h.conns.Release(ip)
		return
	}

	client := &wsClient{
		hub:     h,
		conn:    conn,
		ip:      ip,
		codec:   codecFor(r.URL.Query().Get("codec")),
		send:    make(chan any, h.cfg.SendQueueSize),
		limiter: rate.NewLimiter(rate.Limit(h.cfg.MessagesPerSecond), h.cfg.MessagesPerSecond),
		done:    make(chan struct{}),
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump reads commands until the connection fails. The first message may
// carry identity; a client that stays silent past the grace window is
// enrolled anonymously.
func (c *wsClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stopChan:
			c.conn.Close()
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	grace := time.AfterFunc(c.hub.cfg.JoinGrace, func() {
		c.joinOnce.Do(func() { c.join(game.Hello{}) })
	})
	defer grace.Stop()

	first := true
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("⚠️ WebSocket read error from %s: %v", c.ip, err)
			}
			// The grace timer may still be joining; wait for it so Leave sees the id
			grace.Stop()
			c.joinOnce.Do(func() {})
			return
		}

		if !c.limiter.Allow() {
			RecordInbound("rate_limited")
			continue
		}

		if first {
			first = false
			hello := game.ParseHello(data)
			joinedNow := false
			c.joinOnce.Do(func() {
				c.join(hello)
				joinedNow = true
			})
			if joinedNow {
				RecordInbound("accepted")
				if hello.Command != nil {
					c.hub.world.HandleCommand(c.playerID, hello.Command)
				}
				continue
			}
		}

		cmd, err := game.ParseCommand(data)
		if err != nil {
			RecordInbound("malformed")
			continue
		}
		RecordInbound("accepted")
		c.hub.world.HandleCommand(c.playerID, cmd)
	}
}

// join resolves identity against the store and enrols the player.
func (c *wsClient) join(hello game.Hello) {
	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	req := c.hub.resolveJoin(ctx, hello)
	req.Out = c
	sess := c.hub.world.Join(req)
	c.playerID = sess.ID
}

// resolveJoin maps a hello to a join request: reconnect token first, then
// linked platform identity, then a freshly created player. Store failures
// degrade to an anonymous player that is never persisted.
func (h *WebSocketHub) resolveJoin(ctx context.Context, hello game.Hello) game.JoinRequest {
	if h.store == nil {
		return game.JoinRequest{ID: uuid.New().String()}
	}

	if hello.Token != "" {
		p, err := h.store.GetPlayer(ctx, hello.Token)
		if err == nil {
			return h.withSession(ctx, p)
		}
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("⚠️ Reconnect lookup failed: %v", err)
		}
	}

	if hello.HasPlatform() {
		p, err := h.store.GetPlayerByPlatform(ctx, hello.PlatformType, hello.PlatformID)
		if err == nil {
			return h.withSession(ctx, p)
		}
		if errors.Is(err, store.ErrNotFound) {
			name := hello.PlatformName
			if name == "" {
				name = game.RandomName(nil)
			}
			p, err = h.store.CreatePlayer(ctx, name)
			if err == nil {
				if err := h.store.LinkPlatform(ctx, p.ID, hello.PlatformType, hello.PlatformID); err != nil {
					log.Printf("⚠️ Platform link failed for %s: %v", p.ID, err)
				} else {
					p.PlatformType, p.PlatformID = hello.PlatformType, hello.PlatformID
				}
				return game.JoinRequest{ID: p.ID, Name: p.Name, Player: &p}
			}
		}
		log.Printf("⚠️ Platform lookup failed: %v", err)
	}

	p, err := h.store.CreatePlayer(ctx, game.RandomName(nil))
	if err != nil {
		log.Printf("⚠️ Player create failed, joining anonymously: %v", err)
		return game.JoinRequest{ID: uuid.New().String()}
	}
	return game.JoinRequest{ID: p.ID, Name: p.Name, Player: &p}
}

func (h *WebSocketHub) withSession(ctx context.Context, p store.Player) game.JoinRequest {
	req := game.JoinRequest{ID: p.ID, Name: p.Name, Player: &p}
	saved, err := h.store.GetSession(ctx, p.ID, h.cfg.SessionExpiry)
	if err == nil {
		req.Saved = &saved
	} else if !errors.Is(err, store.ErrNotFound) {
		log.Printf("⚠️ Session lookup for %s failed: %v", p.ID, err)
	}
	return req
}

// writePump drains the send queue and keeps the connection alive with pings.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			data, msgType, err := c.codec.Encode(msg)
			if err != nil {
				log.Printf("⚠️ Encode (%s) failed: %v", c.codec.Name(), err)
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(msgType, data); err != nil {
				return
			}
			IncrementWSMessages()

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
