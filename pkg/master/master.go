// Package master implements the farm dispatcher: one connection to the
// chat server, a single-consumer event loop over inbound events, the
// bot-creation protocol, and coordinated shutdown of every worker bot.
//
// All dispatcher-state mutation happens on the event loop goroutine, so
// creation protocols never interleave; the resource pool carries its own
// mutex only so that status readers and bot release callbacks can touch it
// concurrently with the loop.
package master

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"chorus/pkg/bot"
	"chorus/pkg/eventlog"
	"chorus/pkg/pool"
	"chorus/pkg/protocol"
	"chorus/pkg/transport"

	"github.com/google/uuid"
)

// Description is published on the master's client after connecting.
const Description = "Poke me if you want a music bot!"

// ErrConnectionLost is returned by Run when the master's own connection
// drops outside an explicit quit. Reconnection is deliberately not
// attempted in-process; the caller exits non-zero and a supervisor
// restarts the farm.
var ErrConnectionLost = errors.New("master: connection to server lost")

// BotHandle is the master's view of a spawned worker.
type BotHandle interface {
	pool.Handle
	Snapshot() protocol.BotData
	Quit(ctx context.Context, reason string) error
	Done() <-chan struct{}
}

// Config is the master's immutable configuration.
type Config struct {
	Name       string
	Address    string
	Channel    string // optional home channel
	Verbose    int
	Names      []string
	Identities []protocol.Identity
	// Seed fixes pool allocation order; zero picks a random seed.
	Seed uint64
}

// Master is the farm dispatcher. Construct with New, then call Run.
type Master struct {
	cfg    Config
	conn   transport.Conn
	dialer transport.Dialer
	pool   *pool.Pool
	log    *eventlog.Store // nil disables event logging
	runID  string
	myID   protocol.ClientID

	// spawnBot is swappable in tests.
	spawnBot func(ctx context.Context, cfg bot.Config) (BotHandle, error)
}

// New creates a Master over an established connection. The dialer is used
// to bring up one further connection per spawned bot. log may be nil.
func New(cfg Config, conn transport.Conn, dialer transport.Dialer, log *eventlog.Store) *Master {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64() //nolint:gosec // allocation order, not crypto
	}
	return &Master{
		cfg:    cfg,
		conn:   conn,
		dialer: dialer,
		pool:   pool.New(cfg.Names, cfg.Identities, seed),
		log:    log,
		runID:  uuid.NewString(),
		spawnBot: func(ctx context.Context, bcfg bot.Config) (BotHandle, error) {
			return bot.Spawn(ctx, bcfg, dialer)
		},
	}
}

// RunID identifies this master session in the event log.
func (m *Master) RunID() string { return m.runID }

// Run consumes inbound events until the context is cancelled, a quit event
// arrives, or the connection drops. Cancellation and quit both perform the
// coordinated shutdown and return nil; a dropped connection returns
// ErrConnectionLost.
func (m *Master) Run(ctx context.Context) error {
	myID, err := m.conn.MyID(ctx)
	if err != nil {
		return fmt.Errorf("resolve own client id: %w", err)
	}
	m.myID = myID
	m.logEvent(ctx, entry{typ: protocol.EvMasterConnected, source: "master"})

	for {
		select {
		case <-ctx.Done():
			// Quit must outlive the cancelled run context.
			m.quit(context.WithoutCancel(ctx), "shutdown")
			return nil
		case ev, ok := <-m.conn.Events():
			if !ok {
				m.logEvent(context.WithoutCancel(ctx), entry{typ: protocol.EvConnectionLost, source: "master"})
				return ErrConnectionLost
			}
			if done, err := m.handleEvent(ctx, ev); done {
				return err
			}
		}
	}
}

// handleEvent routes one inbound event. It returns done=true when the
// event loop must terminate.
func (m *Master) handleEvent(ctx context.Context, ev protocol.Event) (done bool, err error) {
	switch ev := ev.(type) {
	case protocol.TextMessage:
		if ev.Target.Kind == protocol.TargetPoke {
			m.createBot(ctx, ev.From)
		}
	case protocol.ChannelAdded:
		if err := m.conn.Subscribe(ctx, ev.ID); err != nil {
			m.logFault(ctx, "", fmt.Errorf("subscribe to channel %d: %w", ev.ID, err))
		}
	case protocol.ClientAdded:
		if ev.ID == m.myID {
			if err := m.conn.SetDescription(ctx, Description); err != nil {
				m.logFault(ctx, "", fmt.Errorf("set description: %w", err))
			}
		}
	case protocol.ClientDisconnected:
		if ev.ID == m.myID {
			// Unexpected drop, not a quit: terminate and let the
			// supervisor restart us.
			m.logEvent(ctx, entry{typ: protocol.EvConnectionLost, source: "master"})
			return true, ErrConnectionLost
		}
	case protocol.QuitRequested:
		m.quit(ctx, ev.Reason)
		return true, nil
	}
	return false, nil
}

// quit shuts the whole farm down: every active bot receives its quit
// concurrently, the fan-out is awaited (individual failures are logged,
// never blocking the rest), then the master's own connection disconnects.
func (m *Master) quit(ctx context.Context, reason string) {
	var wg sync.WaitGroup
	for _, h := range m.handles() {
		wg.Add(1)
		go func(h BotHandle) {
			defer wg.Done()
			if err := h.Quit(ctx, reason); err != nil {
				m.logFault(ctx, h.Name(), fmt.Errorf("shut down bot: %w", err))
			}
		}(h)
	}
	wg.Wait()

	m.logEvent(ctx, entry{typ: protocol.EvQuit, source: "master", payload: reason})
	if err := m.conn.Disconnect(ctx, reason); err != nil {
		m.logFault(ctx, "", fmt.Errorf("disconnect master: %w", err))
	}
}

// handles returns the registered bots as BotHandles. Registration only
// ever stores BotHandle values, so the assertion cannot fail.
func (m *Master) handles() []BotHandle {
	raw := m.pool.Handles()
	out := make([]BotHandle, 0, len(raw))
	for _, h := range raw {
		out = append(out, h.(BotHandle)) //nolint:forcetypeassert // see above
	}
	return out
}

// entry is the master-side shorthand for an event log row.
type entry struct {
	typ       string
	source    string
	requestID string
	bot       string
	channel   string
	payload   string
}

func (m *Master) logEvent(ctx context.Context, e entry) {
	if m.log == nil {
		return
	}
	err := m.log.Append(ctx, eventlog.Entry{
		RunID:     m.runID,
		RequestID: e.requestID,
		Type:      e.typ,
		Source:    e.source,
		Bot:       e.bot,
		Channel:   e.channel,
		Payload:   e.payload,
	})
	_ = err // the log is an observer; it never fails the dispatcher
}

func (m *Master) logFault(ctx context.Context, botName string, err error) {
	m.logEvent(ctx, entry{typ: protocol.EvFault, source: "master", bot: botName, payload: err.Error()})
}
