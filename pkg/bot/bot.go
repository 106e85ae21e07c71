// Package bot implements the worker bot: a single connection that joins
// the channel it was summoned to, answers playback commands from channel
// members, and hands its pooled name and identity back to the master when
// it dies. The audio pipeline itself lives behind the transport; the bot
// tracks the playback state it reports through snapshots.
package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"chorus/pkg/protocol"
	"chorus/pkg/transport"
)

// DefaultVolume is the playback volume a bot starts with.
const DefaultVolume = 0.5

// Config is everything a bot needs to come up. OnDisconnect is the release
// capability bound by the master to this bot's exact pool lease; the bot
// guarantees it fires exactly once, on every exit path.
type Config struct {
	Name          string
	NameIndex     int
	Identity      protocol.Identity
	IdentityIndex int
	ChannelPath   string
	Address       string
	Verbose       int
	OnDisconnect  func()
}

// Bot is a spawned worker. All exported methods are safe for concurrent
// use; playback state is guarded by an internal mutex while the run loop
// consumes transport events.
type Bot struct {
	name        string
	channelPath string
	channel     protocol.ChannelID
	myID        protocol.ClientID
	conn        transport.Conn

	mu           sync.Mutex
	state        protocol.BotState
	volume       float64
	currentTrack string
	playlist     []string
	startedAt    time.Time
	elapsed      time.Duration

	releaseOnce  sync.Once
	onDisconnect func()
	done         chan struct{}
}

// Spawn connects the bot to its target channel and starts its event loop.
// On a dial failure nothing is spawned and OnDisconnect does not fire; the
// caller still owns the lease.
func Spawn(ctx context.Context, cfg Config, dialer transport.Dialer) (*Bot, error) {
	conn, err := dialer.Dial(ctx, transport.ConnectOptions{
		Address:  cfg.Address,
		Name:     cfg.Name,
		Identity: cfg.Identity,
		Channel:  cfg.ChannelPath,
		Verbose:  cfg.Verbose,
	})
	if err != nil {
		return nil, fmt.Errorf("dial for bot %s: %w", cfg.Name, err)
	}

	myID, err := conn.MyID(ctx)
	if err != nil {
		_ = conn.Disconnect(ctx, "spawn failed")
		return nil, fmt.Errorf("resolve own id for bot %s: %w", cfg.Name, err)
	}
	channel, err := conn.CurrentChannel(ctx)
	if err != nil {
		_ = conn.Disconnect(ctx, "spawn failed")
		return nil, fmt.Errorf("resolve channel for bot %s: %w", cfg.Name, err)
	}

	b := &Bot{
		name:         cfg.Name,
		channelPath:  cfg.ChannelPath,
		channel:      channel,
		myID:         myID,
		conn:         conn,
		state:        protocol.StateStopped,
		volume:       DefaultVolume,
		onDisconnect: cfg.OnDisconnect,
		done:         make(chan struct{}),
	}
	go b.run()
	return b, nil
}

// run consumes transport events until the connection drops. The release
// callback fires on the way out no matter how the loop ends.
func (b *Bot) run() {
	defer close(b.done)
	defer b.release()

	for ev := range b.conn.Events() {
		switch ev := ev.(type) {
		case protocol.TextMessage:
			b.handleText(ev)
		case protocol.ClientDisconnected:
			if ev.ID == b.myID {
				return
			}
		case protocol.QuitRequested:
			_ = b.conn.Disconnect(context.Background(), ev.Reason)
			return
		}
	}
}

func (b *Bot) release() {
	b.releaseOnce.Do(func() {
		if b.onDisconnect != nil {
			b.onDisconnect()
		}
	})
}

// Name returns the bot's pooled display name.
func (b *Bot) Name() string { return b.name }

// Channel returns the channel the bot joined.
func (b *Bot) Channel() protocol.ChannelID { return b.channel }

// Done is closed once the bot's event loop has exited and its resources
// have been released.
func (b *Bot) Done() <-chan struct{} { return b.done }

// Quit disconnects the bot with the given reason. Idempotent; the release
// callback still fires only once.
func (b *Bot) Quit(ctx context.Context, reason string) error {
	if err := b.conn.Disconnect(ctx, reason); err != nil {
		return fmt.Errorf("disconnect bot %s: %w", b.name, err)
	}
	return nil
}

// Snapshot returns a copy of the bot's reportable state.
func (b *Bot) Snapshot() protocol.BotData {
	b.mu.Lock()
	defer b.mu.Unlock()
	playlist := make([]string, len(b.playlist))
	copy(playlist, b.playlist)
	return protocol.BotData{
		Name:         b.name,
		Channel:      b.channelPath,
		State:        b.state,
		Volume:       b.volume,
		Position:     b.positionLocked().Seconds(),
		CurrentTrack: b.currentTrack,
		Playlist:     playlist,
	}
}

// positionLocked returns the playback position. Caller must hold b.mu.
func (b *Bot) positionLocked() time.Duration {
	if b.state == protocol.StatePlaying {
		return b.elapsed + time.Since(b.startedAt)
	}
	return b.elapsed
}

// handleText reacts to channel chat. Only bang-prefixed messages are
// commands; everything else is other people talking.
func (b *Bot) handleText(msg protocol.TextMessage) {
	if msg.From == b.myID {
		return
	}
	fields := strings.Fields(msg.Text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "!") {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	switch fields[0] {
	case "!play":
		if len(fields) > 1 {
			b.startLocked(strings.Join(fields[1:], " "))
		} else if b.state == protocol.StatePaused {
			b.resumeLocked()
		}
	case "!add":
		if len(fields) > 1 {
			b.playlist = append(b.playlist, strings.Join(fields[1:], " "))
			if b.state == protocol.StateStopped {
				b.advanceLocked()
			}
		}
	case "!pause":
		b.pauseLocked()
	case "!stop":
		b.state = protocol.StateStopped
		b.currentTrack = ""
		b.elapsed = 0
	case "!next":
		b.advanceLocked()
	case "!volume":
		if len(fields) > 1 {
			if v, err := strconv.ParseFloat(fields[1], 64); err == nil {
				b.volume = clampVolume(v)
			}
		}
	}
}

// startLocked begins playback of a track. Caller must hold b.mu.
func (b *Bot) startLocked(track string) {
	b.currentTrack = track
	b.state = protocol.StatePlaying
	b.startedAt = time.Now()
	b.elapsed = 0
}

// advanceLocked pops the next queued track, or stops at end of queue.
// Caller must hold b.mu.
func (b *Bot) advanceLocked() {
	if len(b.playlist) == 0 {
		b.state = protocol.StateStopped
		b.currentTrack = ""
		b.elapsed = 0
		return
	}
	next := b.playlist[0]
	b.playlist = b.playlist[1:]
	b.startLocked(next)
}

func (b *Bot) pauseLocked() {
	if b.state != protocol.StatePlaying {
		return
	}
	b.elapsed += time.Since(b.startedAt)
	b.state = protocol.StatePaused
}

func (b *Bot) resumeLocked() {
	b.state = protocol.StatePlaying
	b.startedAt = time.Now()
}

func clampVolume(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
