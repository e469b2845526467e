package main

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

type client struct {
	conn *websocket.Conn
	send chan any
	id   string

	// closed is guarded by the registry lock; once set, send is closed
	// and nothing may write to it again.
	closed bool
}

type binding struct {
	roomCode   string
	playerName string
}

// connectionRegistry maps each live connection to the room and player it
// represents. A connection belongs to at most one room; binding it again
// implicitly leaves the previous room.
type connectionRegistry struct {
	mu       sync.RWMutex
	bindings map[*client]binding
	members  map[string]map[*client]bool
}

func newConnectionRegistry() *connectionRegistry {
	return &connectionRegistry{
		bindings: make(map[*client]binding),
		members:  make(map[string]map[*client]bool),
	}
}

func (r *connectionRegistry) bind(c *client, roomCode, playerName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.bindings[c]; ok {
		r.detachLocked(c, prev)
	}

	r.bindings[c] = binding{roomCode: roomCode, playerName: playerName}
	if r.members[roomCode] == nil {
		r.members[roomCode] = make(map[*client]bool)
	}
	r.members[roomCode][c] = true
}

// remove drops a connection's binding and closes its send channel. Safe to
// call for connections that were never bound, and idempotent.
func (r *connectionRegistry) remove(c *client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.bindings[c]; ok {
		r.detachLocked(c, prev)
		delete(r.bindings, c)
	}
	r.closeLocked(c)
}

// closeLocked closes a connection's send channel exactly once. Every close
// in the registry goes through here, under r.mu, so senders holding the
// lock can trust c.closed. Assumes r.mu is held for writing.
func (r *connectionRegistry) closeLocked(c *client) {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// detachLocked assumes r.mu is held and leaves the binding entry itself to
// the caller.
func (r *connectionRegistry) detachLocked(c *client, b binding) {
	if m := r.members[b.roomCode]; m != nil {
		delete(m, c)
		if len(m) == 0 {
			delete(r.members, b.roomCode)
		}
	}
}

// clientFor returns the live connection currently representing a player in
// a room, or nil.
func (r *connectionRegistry) clientFor(roomCode, playerName string) *client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for c := range r.members[roomCode] {
		if r.bindings[c].playerName == playerName {
			return c
		}
	}
	return nil
}

func (r *connectionRegistry) playerNameOf(c *client) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bindings[c]
	return b.playerName, ok
}

// broadcast fans a message out to every connection in a room. Slow
// consumers are evicted rather than allowed to block the room.
func (r *connectionRegistry) broadcast(roomCode string, msg any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for c := range r.members[roomCode] {
		select {
		case c.send <- msg:
		default:
			r.detachLocked(c, r.bindings[c])
			delete(r.bindings, c)
			r.closeLocked(c)
		}
	}
}

// sendTo targets a single connection, which may not be bound to any room
// yet. Messages to a stalled connection are dropped; messages to an
// already-evicted connection are dropped rather than hitting its closed
// channel.
func (r *connectionRegistry) sendTo(c *client, msg any) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if c.closed {
		return
	}

	select {
	case c.send <- msg:
	default:
	}
}

// closeRoom disconnects all clients of a room (used by the idle reaper).
func (r *connectionRegistry) closeRoom(roomCode string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for c := range r.members[roomCode] {
		delete(r.bindings, c)
		r.closeLocked(c)
		_ = c.conn.Close()
	}
	delete(r.members, roomCode)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// serveWS upgrades a connection and feeds its events into the game server.
func serveWS(cfg *Config, srv *gameServer) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "SOCKET: Upgrade error from %s: %v", realIP(r), err)
			return
		}

		c := &client{
			conn: conn,
			send: make(chan any, 8),
			id:   uuid.New().String(),
		}

		logf(cfg, "SOCKET: Connected %s from %s", c.id, realIP(r))

		go c.writePump()
		c.readPump(cfg, srv)
	}
}

func (c *client) readPump(cfg *Config, srv *gameServer) {
	defer func() {
		srv.disconnect(c)
		_ = c.conn.Close()
	}()

	for {
		var event inboundEvent
		if err := c.conn.ReadJSON(&event); err != nil {
			return
		}

		c.dispatch(cfg, srv, event)
	}
}

// dispatch decodes and validates one event, then hands it to the matching
// game operation. Invalid input is dropped here, before any state changes.
func (c *client) dispatch(cfg *Config, srv *gameServer, event inboundEvent) {
	drop := func(err error) {
		logf(cfg, "SOCKET: Dropped %q from %s: %v", event.Type, c.id, err)
	}

	switch event.Type {
	case "joinGameRoom":
		var p joinGameRoomPayload
		if err := json.Unmarshal(event.Data, &p); err != nil {
			drop(err)
			return
		}
		srv.handleJoin(c, p)
	case "gameStarted":
		var p gameStartedPayload
		if err := decodePayload(event.Data, &p); err != nil {
			drop(err)
			return
		}
		srv.handleStartGame(p)
	case "submitEntry":
		var p submitEntryPayload
		if err := decodePayload(event.Data, &p); err != nil {
			drop(err)
			return
		}
		srv.handleSubmitEntry(c, p)
	case "startRankingPhase":
		var p startRankingPayload
		if err := decodePayload(event.Data, &p); err != nil {
			drop(err)
			return
		}
		srv.handleStartRanking(c, p)
	case "submitRanking":
		var p submitRankingPayload
		if err := decodePayload(event.Data, &p); err != nil {
			drop(err)
			return
		}
		srv.handleSubmitRanking(p)
	case "requestEntries":
		var p requestEntriesPayload
		if err := decodePayload(event.Data, &p); err != nil {
			drop(err)
			return
		}
		srv.handleRequestEntries(c, p)
	case "submitGuess":
		var p submitGuessPayload
		if err := decodePayload(event.Data, &p); err != nil {
			drop(err)
			return
		}
		srv.handleSubmitGuess(p)
	default:
		drop(errBadPayload)
	}
}

type validator interface {
	validate() error
}

func decodePayload(data json.RawMessage, p validator) error {
	if err := json.Unmarshal(data, p); err != nil {
		return err
	}
	return p.validate()
}

func (c *client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}
