package master

import "chorus/pkg/protocol"

// The snapshot surface below is the read-only contract consumed by the
// status web server and the dashboard. Everything returned is a copy;
// readers never hold live dispatcher state.

// BotNames returns the names of all currently active bots.
func (m *Master) BotNames() []string {
	return m.pool.ActiveNames()
}

// BotData returns the snapshot for one bot by name.
func (m *Master) BotData(name string) (protocol.BotData, bool) {
	h, ok := m.pool.Lookup(name)
	if !ok {
		return protocol.BotData{}, false
	}
	return h.(BotHandle).Snapshot(), true //nolint:forcetypeassert // registry only holds BotHandles
}

// BotDatas returns snapshots for every active bot.
func (m *Master) BotDatas() []protocol.BotData {
	handles := m.handles()
	out := make([]protocol.BotData, 0, len(handles))
	for _, h := range handles {
		out = append(out, h.Snapshot())
	}
	return out
}
