package master

import (
	"context"
	"fmt"

	"chorus/pkg/bot"
	"chorus/pkg/pool"
	"chorus/pkg/protocol"

	"github.com/google/uuid"
)

// createBot runs the worker-creation protocol for a poking user. Validation
// rejections are rendered back to the user as a private message and logged
// as denials; they are never dispatcher faults. Transport faults are logged
// and the request is abandoned — the user pokes again.
func (m *Master) createBot(ctx context.Context, who protocol.ClientID) {
	reqID := uuid.NewString()
	m.logEvent(ctx, entry{typ: protocol.EvPoke, source: "master", requestID: reqID,
		payload: fmt.Sprintf("client %d", who)})

	cfg, err := m.botConfigFor(ctx, who)
	if err != nil {
		if ce, ok := protocol.AsCreationError(err); ok {
			m.logEvent(ctx, entry{typ: protocol.EvCreationDenied, source: "master",
				requestID: reqID, payload: ce.Error()})
			if serr := m.conn.SendMessageToUser(ctx, who, ce.Error()); serr != nil {
				m.logFault(ctx, "", fmt.Errorf("send denial to client %d: %w", who, serr))
			}
			return
		}
		m.logFault(ctx, "", err)
		return
	}

	handle, err := m.spawnBot(ctx, cfg)
	if err != nil {
		// Spawn failed after allocation: the bot never came up, so its
		// release callback will not fire. Hand the lease back here.
		m.pool.Release(cfg.Name, cfg.NameIndex, cfg.IdentityIndex)
		m.logFault(ctx, cfg.Name, fmt.Errorf("spawn bot: %w", err))
		return
	}
	m.pool.Register(cfg.Name, handle)
	m.logEvent(ctx, entry{typ: protocol.EvBotCreated, source: "master", requestID: reqID,
		bot: cfg.Name, channel: cfg.ChannelPath})
}

// botConfigFor validates the request and, if admitted, allocates a lease
// and assembles the worker's configuration. Steps fail in order with
// distinct errors; no resource is consumed by any rejection.
func (m *Master) botConfigFor(ctx context.Context, who protocol.ClientID) (bot.Config, error) {
	channel, found, err := m.conn.ChannelOfUser(ctx, who)
	if err != nil {
		return bot.Config{}, fmt.Errorf("resolve channel of client %d: %w", who, err)
	}
	if !found {
		return bot.Config{}, protocol.UnfoundUserError{}
	}

	own, err := m.conn.CurrentChannel(ctx)
	if err != nil {
		return bot.Config{}, fmt.Errorf("resolve master channel: %w", err)
	}
	if channel == own {
		return bot.Config{}, protocol.MasterChannelError{Master: m.cfg.Name}
	}

	if existing, used := m.pool.ChannelInUse(channel); used {
		return bot.Config{}, protocol.MultipleBotsError{Existing: existing}
	}

	path, found, err := m.conn.ChannelPathOfUser(ctx, who)
	if err != nil {
		return bot.Config{}, fmt.Errorf("resolve channel path of client %d: %w", who, err)
	}
	if !found {
		// Admission passed but the user vanished mid-protocol: a fault,
		// not a rejection.
		return bot.Config{}, fmt.Errorf("client %d disappeared during path resolution", who)
	}

	lease, err := m.pool.TryAllocate()
	if err != nil {
		return bot.Config{}, err
	}

	return bot.Config{
		Name:          lease.Name,
		NameIndex:     lease.NameIndex,
		Identity:      lease.Identity,
		IdentityIndex: lease.IdentityIndex,
		ChannelPath:   path,
		Address:       m.cfg.Address,
		Verbose:       m.cfg.Verbose,
		OnDisconnect:  m.releaseFor(lease, path),
	}, nil
}

// releaseFor binds the release capability to one exact lease. The bot
// guarantees single-fire; this is the only place pooled resources re-enter
// circulation.
func (m *Master) releaseFor(lease pool.Lease, channelPath string) func() {
	return func() {
		m.pool.Release(lease.Name, lease.NameIndex, lease.IdentityIndex)
		m.logEvent(context.Background(), entry{typ: protocol.EvBotDisconnected,
			source: lease.Name, bot: lease.Name, channel: channelPath})
	}
}
