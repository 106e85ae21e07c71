package transport

import (
	"context"
	"fmt"
	"os"
	"sync"

	"chorus/pkg/protocol"
)

// eventBuffer is the per-connection event channel capacity. The loopback
// server drops events for a connection whose consumer has fallen this far
// behind rather than deadlock the sender.
const eventBuffer = 64

// DefaultChannelPath is the channel every client lands in when no join
// target is given.
const DefaultChannelPath = "Default Channel"

// LocalServer is an in-process chat server. It exists so the farm can run
// end to end in local mode and under test without a real voice server:
// channels, clients, pokes, and private messages behave like the wire
// protocol's, minus the wire.
type LocalServer struct {
	mu          sync.Mutex
	nextClient  protocol.ClientID
	nextChannel protocol.ChannelID
	channels    map[protocol.ChannelID]string // id -> path
	paths       map[string]protocol.ChannelID
	clients     map[protocol.ClientID]*localClient
}

type localClient struct {
	id          protocol.ClientID
	name        string
	channel     protocol.ChannelID
	description string
	inbox       []string
	conn        *LocalConn // nil for simulated users
	subscribed  map[protocol.ChannelID]bool
}

// NewLocalServer creates a server with only the default channel.
func NewLocalServer() *LocalServer {
	s := &LocalServer{
		channels: make(map[protocol.ChannelID]string),
		paths:    make(map[string]protocol.ChannelID),
		clients:  make(map[protocol.ClientID]*localClient),
	}
	s.nextChannel++
	s.channels[s.nextChannel] = DefaultChannelPath
	s.paths[DefaultChannelPath] = s.nextChannel
	return s
}

// Dial connects a new client. The options' channel path is joined,
// creating the channel if it does not exist yet. Every connection
// (including the new one) observes a ClientAdded event.
func (s *LocalServer) Dial(_ context.Context, opts ConnectOptions) (Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := opts.Channel
	if path == "" {
		path = DefaultChannelPath
	}
	ch := s.ensureChannelLocked(path)

	s.nextClient++
	id := s.nextClient
	conn := &LocalConn{
		server:  s,
		id:      id,
		verbose: opts.Verbose,
		events:  make(chan protocol.Event, eventBuffer),
	}
	s.clients[id] = &localClient{
		id:         id,
		name:       opts.Name,
		channel:    ch,
		conn:       conn,
		subscribed: make(map[protocol.ChannelID]bool),
	}
	s.broadcastLocked(protocol.ClientAdded{ID: id})
	return conn, nil
}

// CreateChannel adds a channel and announces it to every connection.
func (s *LocalServer) CreateChannel(path string) protocol.ChannelID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.paths[path]; ok {
		return id
	}
	id := s.ensureChannelLocked(path)
	s.broadcastLocked(protocol.ChannelAdded{ID: id})
	return id
}

// AddUser places a simulated (connection-less) user in the default channel.
func (s *LocalServer) AddUser(name string) protocol.ClientID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextClient++
	id := s.nextClient
	s.clients[id] = &localClient{
		id:         id,
		name:       name,
		channel:    s.paths[DefaultChannelPath],
		subscribed: make(map[protocol.ChannelID]bool),
	}
	s.broadcastLocked(protocol.ClientAdded{ID: id})
	return id
}

// MoveUser relocates a user to another channel.
func (s *LocalServer) MoveUser(id protocol.ClientID, ch protocol.ChannelID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[id]; ok {
		c.channel = ch
	}
}

// Poke delivers a poke text message to a connected client.
func (s *LocalServer) Poke(from, to protocol.ClientID, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[to]
	if !ok || c.conn == nil {
		return
	}
	c.conn.deliver(protocol.TextMessage{
		Target: protocol.MessageTarget{Kind: protocol.TargetPoke, Who: from},
		From:   from,
		Text:   text,
	})
}

// RequestQuit asks a connected client to shut down.
func (s *LocalServer) RequestQuit(to protocol.ClientID, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[to]; ok && c.conn != nil {
		c.conn.deliver(protocol.QuitRequested{Reason: reason})
	}
}

// Drop forcibly disconnects a client, as a kick or network loss would.
// The dropped connection observes ClientDisconnected for its own ID before
// its event stream closes.
func (s *LocalServer) Drop(id protocol.ClientID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
}

// MessagesTo returns the private messages a user has received.
func (s *LocalServer) MessagesTo(id protocol.ClientID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	if !ok {
		return nil
	}
	out := make([]string, len(c.inbox))
	copy(out, c.inbox)
	return out
}

// Description returns a client's published description.
func (s *LocalServer) Description(id protocol.ClientID) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[id]; ok {
		return c.description
	}
	return ""
}

// Subscribed reports whether a client has subscribed to a channel.
func (s *LocalServer) Subscribed(id protocol.ClientID, ch protocol.ChannelID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[id]; ok {
		return c.subscribed[ch]
	}
	return false
}

// ClientByName finds a client by display name.
func (s *LocalServer) ClientByName(name string) (protocol.ClientID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.clients {
		if c.name == name {
			return id, true
		}
	}
	return 0, false
}

// ChannelPath returns the path of a channel.
func (s *LocalServer) ChannelPath(ch protocol.ChannelID) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channels[ch]
}

func (s *LocalServer) ensureChannelLocked(path string) protocol.ChannelID {
	if id, ok := s.paths[path]; ok {
		return id
	}
	s.nextChannel++
	s.channels[s.nextChannel] = path
	s.paths[path] = s.nextChannel
	return s.nextChannel
}

// broadcastLocked fans an event out to every live connection. Caller must
// hold s.mu.
func (s *LocalServer) broadcastLocked(ev protocol.Event) {
	for _, c := range s.clients {
		if c.conn != nil {
			c.conn.deliver(ev)
		}
	}
}

// removeLocked detaches a client, notifies everyone (the leaving
// connection included), and closes its event stream. Caller must hold s.mu.
func (s *LocalServer) removeLocked(id protocol.ClientID) {
	c, ok := s.clients[id]
	if !ok {
		return
	}
	delete(s.clients, id)
	if c.conn != nil {
		c.conn.deliver(protocol.ClientDisconnected{ID: id})
	}
	s.broadcastLocked(protocol.ClientDisconnected{ID: id})
	if c.conn != nil {
		c.conn.closeEvents()
	}
}

// LocalConn is one client's connection to a LocalServer.
type LocalConn struct {
	server  *LocalServer
	id      protocol.ClientID
	verbose int

	mu     sync.Mutex
	closed bool
	events chan protocol.Event
}

// MyID implements Conn.
func (c *LocalConn) MyID(context.Context) (protocol.ClientID, error) {
	if c.isClosed() {
		return 0, ErrDisconnected
	}
	return c.id, nil
}

// CurrentChannel implements Conn.
func (c *LocalConn) CurrentChannel(context.Context) (protocol.ChannelID, error) {
	if c.isClosed() {
		return 0, ErrDisconnected
	}
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	cl, ok := c.server.clients[c.id]
	if !ok {
		return 0, ErrDisconnected
	}
	return cl.channel, nil
}

// ChannelOfUser implements Conn.
func (c *LocalConn) ChannelOfUser(_ context.Context, id protocol.ClientID) (protocol.ChannelID, bool, error) {
	if c.isClosed() {
		return 0, false, ErrDisconnected
	}
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	cl, ok := c.server.clients[id]
	if !ok {
		return 0, false, nil
	}
	return cl.channel, true, nil
}

// ChannelPathOfUser implements Conn.
func (c *LocalConn) ChannelPathOfUser(_ context.Context, id protocol.ClientID) (string, bool, error) {
	if c.isClosed() {
		return "", false, ErrDisconnected
	}
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	cl, ok := c.server.clients[id]
	if !ok {
		return "", false, nil
	}
	return c.server.channels[cl.channel], true, nil
}

// SendMessageToUser implements Conn.
func (c *LocalConn) SendMessageToUser(_ context.Context, id protocol.ClientID, text string) error {
	if c.isClosed() {
		return ErrDisconnected
	}
	c.trace("message to %d: %s", id, text)
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	cl, ok := c.server.clients[id]
	if !ok {
		return fmt.Errorf("local: no such client %d", id)
	}
	cl.inbox = append(cl.inbox, text)
	if cl.conn != nil {
		cl.conn.deliver(protocol.TextMessage{
			Target: protocol.MessageTarget{Kind: protocol.TargetClient, Who: id},
			From:   c.id,
			Text:   text,
		})
	}
	return nil
}

// SetDescription implements Conn.
func (c *LocalConn) SetDescription(_ context.Context, text string) error {
	if c.isClosed() {
		return ErrDisconnected
	}
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	if cl, ok := c.server.clients[c.id]; ok {
		cl.description = text
	}
	return nil
}

// Subscribe implements Conn.
func (c *LocalConn) Subscribe(_ context.Context, ch protocol.ChannelID) error {
	if c.isClosed() {
		return ErrDisconnected
	}
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	if cl, ok := c.server.clients[c.id]; ok {
		cl.subscribed[ch] = true
	}
	return nil
}

// Events implements Conn.
func (c *LocalConn) Events() <-chan protocol.Event {
	return c.events
}

// Disconnect implements Conn.
func (c *LocalConn) Disconnect(_ context.Context, reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	c.trace("disconnect: %s", reason)

	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	c.server.removeLocked(c.id)
	return nil
}

func (c *LocalConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// deliver queues an event for the consumer, dropping it if the buffer is
// full. Safe to call with the server lock held.
func (c *LocalConn) deliver(ev protocol.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.events <- ev:
	default:
	}
}

func (c *LocalConn) closeEvents() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.events)
}

func (c *LocalConn) trace(format string, args ...any) {
	if c.verbose >= 1 {
		fmt.Fprintf(os.Stderr, "local[%d]: %s\n", c.id, fmt.Sprintf(format, args...))
	}
}
