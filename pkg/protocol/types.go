// Package protocol defines the shared vocabulary of the chorus farm: client
// and channel identifiers, inbound transport events, bot snapshots, the
// creation-denial error taxonomy, and the SQLite schema for the lifecycle
// event log. It has no dependencies on the other chorus packages so that
// transport, pool, master, and bot can all speak the same types.
package protocol

// ClientID identifies a connected client on the chat server.
type ClientID uint64

// ChannelID identifies a channel on the chat server.
type ChannelID uint64

// Identity is a connection identity slot. Each worker bot consumes one for
// the duration of its life. The key is opaque to chorus; the transport
// presents it to the server during connect.
type Identity struct {
	Key string `toml:"key" yaml:"key"`
}

// BotState represents a worker bot's playback state.
type BotState string

// Bot state constants.
const (
	StateStopped BotState = "stopped"
	StatePlaying BotState = "playing"
	StatePaused  BotState = "paused"
)

// BotData is a point-in-time snapshot of one worker bot, served to the
// status API and the dashboard. Snapshots are copies; readers never see
// live dispatcher state.
type BotData struct {
	Name         string   `json:"name"`
	Channel      string   `json:"channel"`
	State        BotState `json:"state"`
	Volume       float64  `json:"volume"`
	Position     float64  `json:"position_secs"`
	CurrentTrack string   `json:"current_track,omitempty"`
	Playlist     []string `json:"playlist,omitempty"`
}

// TargetKind classifies where a text message was aimed.
type TargetKind int

// Message target kinds.
const (
	TargetChannel TargetKind = iota
	TargetClient
	TargetPoke
)

// MessageTarget carries the addressing of an inbound text message. Who is
// only meaningful for TargetClient and TargetPoke.
type MessageTarget struct {
	Kind TargetKind
	Who  ClientID
}

// Event is an inbound transport event consumed by the master's event loop.
// The concrete variants below are the only implementations.
type Event interface {
	isEvent()
}

// TextMessage is a chat message or poke delivered to the connection.
type TextMessage struct {
	Target MessageTarget
	From   ClientID
	Text   string
}

// ClientAdded signals that a client entered the connection's view.
type ClientAdded struct {
	ID ClientID
}

// ClientDisconnected signals that a client left the server. When ID is the
// connection's own identity the connection itself has dropped.
type ClientDisconnected struct {
	ID ClientID
}

// ChannelAdded signals that a channel was created on the server.
type ChannelAdded struct {
	ID ChannelID
}

// QuitRequested instructs the master to shut the whole farm down.
type QuitRequested struct {
	Reason string
}

func (TextMessage) isEvent()        {}
func (ClientAdded) isEvent()        {}
func (ClientDisconnected) isEvent() {}
func (ChannelAdded) isEvent()       {}
func (QuitRequested) isEvent()      {}
