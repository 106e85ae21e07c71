package master //nolint:testpackage // white-box: tests drive createBot and swap spawnBot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"chorus/pkg/bot"
	"chorus/pkg/protocol"
)

// callLog records cross-component call ordering for shutdown assertions.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, s)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	copy(out, l.calls)
	return out
}

// fakeConn is a scripted transport connection.
type fakeConn struct {
	mu           sync.Mutex
	id           protocol.ClientID
	channel      protocol.ChannelID
	userChannels map[protocol.ClientID]protocol.ChannelID
	userPaths    map[protocol.ClientID]string
	sent         map[protocol.ClientID][]string
	subscribed   []protocol.ChannelID
	description  string
	disconnected bool
	events       chan protocol.Event
	log          *callLog
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		id:           1,
		channel:      1,
		userChannels: make(map[protocol.ClientID]protocol.ChannelID),
		userPaths:    make(map[protocol.ClientID]string),
		sent:         make(map[protocol.ClientID][]string),
		events:       make(chan protocol.Event, 16),
		log:          &callLog{},
	}
}

func (c *fakeConn) MyID(context.Context) (protocol.ClientID, error) { return c.id, nil }

func (c *fakeConn) CurrentChannel(context.Context) (protocol.ChannelID, error) {
	return c.channel, nil
}

func (c *fakeConn) ChannelOfUser(_ context.Context, id protocol.ClientID) (protocol.ChannelID, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.userChannels[id]
	return ch, ok, nil
}

func (c *fakeConn) ChannelPathOfUser(_ context.Context, id protocol.ClientID) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	path, ok := c.userPaths[id]
	return path, ok, nil
}

func (c *fakeConn) SendMessageToUser(_ context.Context, id protocol.ClientID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent[id] = append(c.sent[id], text)
	return nil
}

func (c *fakeConn) SetDescription(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.description = text
	return nil
}

func (c *fakeConn) Subscribe(_ context.Context, ch protocol.ChannelID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = append(c.subscribed, ch)
	return nil
}

func (c *fakeConn) Events() <-chan protocol.Event { return c.events }

func (c *fakeConn) Disconnect(context.Context, string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
	c.log.add("disconnect")
	return nil
}

func (c *fakeConn) addUser(id protocol.ClientID, ch protocol.ChannelID, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userChannels[id] = ch
	c.userPaths[id] = path
}

func (c *fakeConn) messagesTo(id protocol.ClientID) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent[id]))
	copy(out, c.sent[id])
	return out
}

func (c *fakeConn) getDescription() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.description
}

func (c *fakeConn) subscriptions() []protocol.ChannelID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.ChannelID, len(c.subscribed))
	copy(out, c.subscribed)
	return out
}

func (c *fakeConn) isDisconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

// fakeBot satisfies BotHandle without a real connection.
type fakeBot struct {
	name    string
	channel protocol.ChannelID
	log     *callLog
	done    chan struct{}
}

func newFakeBot(name string, channel protocol.ChannelID, log *callLog) *fakeBot {
	return &fakeBot{name: name, channel: channel, log: log, done: make(chan struct{})}
}

func (b *fakeBot) Name() string                { return b.name }
func (b *fakeBot) Channel() protocol.ChannelID { return b.channel }
func (b *fakeBot) Done() <-chan struct{}       { return b.done }

func (b *fakeBot) Snapshot() protocol.BotData {
	return protocol.BotData{Name: b.name, State: protocol.StateStopped, Volume: bot.DefaultVolume}
}

func (b *fakeBot) Quit(context.Context, string) error {
	b.log.add("quit:" + b.name)
	close(b.done)
	return nil
}

func identities(n int) []protocol.Identity {
	out := make([]protocol.Identity, n)
	for i := range out {
		out[i] = protocol.Identity{Key: fmt.Sprintf("key-%d", i)}
	}
	return out
}

// newTestMaster builds a master whose spawnBot registers fake bots. The
// returned map collects the release callbacks bound to each spawned bot.
func newTestMaster(conn *fakeConn, names []string, ids int) (*Master, map[string]func()) {
	m := New(Config{
		Name:       "Master",
		Names:      names,
		Identities: identities(ids),
		Seed:       1,
	}, conn, nil, nil)

	releases := make(map[string]func())
	var mu sync.Mutex
	m.spawnBot = func(_ context.Context, cfg bot.Config) (BotHandle, error) {
		mu.Lock()
		defer mu.Unlock()
		releases[cfg.Name] = cfg.OnDisconnect
		return newFakeBot(cfg.Name, 0, conn.log), nil
	}
	m.myID = conn.id
	return m, releases
}

func TestCreateBotSpawnsIntoUserChannel(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	conn.addUser(7, 2, "Rock/Jam")
	m, _ := newTestMaster(conn, []string{"Gerhild"}, 1)

	var spawned bot.Config
	m.spawnBot = func(_ context.Context, cfg bot.Config) (BotHandle, error) {
		spawned = cfg
		return newFakeBot(cfg.Name, 2, conn.log), nil
	}

	m.createBot(context.Background(), 7)

	if spawned.Name != "Gerhild" {
		t.Fatalf("spawned name = %q, want Gerhild", spawned.Name)
	}
	if spawned.ChannelPath != "Rock/Jam" {
		t.Fatalf("spawned channel path = %q, want Rock/Jam", spawned.ChannelPath)
	}
	if got := m.BotNames(); len(got) != 1 || got[0] != "Gerhild" {
		t.Fatalf("active bots = %v, want [Gerhild]", got)
	}
	if msgs := conn.messagesTo(7); len(msgs) != 0 {
		t.Fatalf("successful creation sent messages to the user: %v", msgs)
	}
}

func TestCreateBotDeniesUnknownUser(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	m, _ := newTestMaster(conn, []string{"Gerhild"}, 1)

	m.createBot(context.Background(), 99)

	msgs := conn.messagesTo(99)
	if len(msgs) != 1 || msgs[0] != (protocol.UnfoundUserError{}).Error() {
		t.Fatalf("denial to unknown user = %v", msgs)
	}
	if m.pool.AvailableNames() != 1 {
		t.Fatal("denial consumed a name")
	}
}

func TestCreateBotDeniesMasterChannel(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	conn.addUser(7, conn.channel, "Default Channel")
	m, _ := newTestMaster(conn, []string{"Gerhild"}, 1)

	m.createBot(context.Background(), 7)

	want := protocol.MasterChannelError{Master: "Master"}.Error()
	msgs := conn.messagesTo(7)
	if len(msgs) != 1 || msgs[0] != want {
		t.Fatalf("denial = %v, want [%q]", msgs, want)
	}
	if len(m.BotNames()) != 0 {
		t.Fatal("bot created in the master's channel")
	}
}

func TestCreateBotDeniesOccupiedChannel(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	conn.addUser(7, 5, "Rock/Jam")
	conn.addUser(8, 5, "Rock/Jam")
	m, _ := newTestMaster(conn, []string{"Gerhild", "Ortlinde"}, 2)

	m.createBot(context.Background(), 7)
	if len(m.BotNames()) != 1 {
		t.Fatal("first creation failed")
	}
	existing := m.BotNames()[0]
	// Re-point the registered fake at the user's channel; newTestMaster
	// registers channel 0 by default.
	h, _ := m.pool.Lookup(existing)
	h.(*fakeBot).channel = 5 //nolint:forcetypeassert // test registry only holds fakeBots

	namesBefore := m.pool.AvailableNames()
	m.createBot(context.Background(), 8)

	want := protocol.MultipleBotsError{Existing: existing}.Error()
	msgs := conn.messagesTo(8)
	if len(msgs) != 1 || msgs[0] != want {
		t.Fatalf("denial = %v, want [%q]", msgs, want)
	}
	if got := m.pool.AvailableNames(); got != namesBefore {
		t.Fatalf("rejection consumed a name: %d available, want %d", got, namesBefore)
	}
}

func TestCreateBotDeniesWhenPoolsExhausted(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	conn.addUser(7, 2, "Rock/Jam")
	conn.addUser(8, 3, "Jazz/Lounge")
	m, releases := newTestMaster(conn, []string{"Gerhild"}, 1)

	m.createBot(context.Background(), 7)
	m.createBot(context.Background(), 8)

	msgs := conn.messagesTo(8)
	if len(msgs) != 1 || msgs[0] != (protocol.OutOfNamesError{}).Error() {
		t.Fatalf("denial = %v", msgs)
	}

	// The first bot dying returns its slots; the next poke succeeds.
	releases["Gerhild"]()
	m.createBot(context.Background(), 8)
	if got := m.BotNames(); len(got) != 1 || got[0] != "Gerhild" {
		t.Fatalf("active bots after reuse = %v, want [Gerhild]", got)
	}
}

func TestCreateBotSpawnFailureReturnsLease(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	conn.addUser(7, 2, "Rock/Jam")
	m, _ := newTestMaster(conn, []string{"Gerhild"}, 1)
	m.spawnBot = func(context.Context, bot.Config) (BotHandle, error) {
		return nil, errors.New("dial refused")
	}

	m.createBot(context.Background(), 7)

	if got := m.pool.AvailableNames(); got != 1 {
		t.Fatalf("spawn failure leaked the name: %d available, want 1", got)
	}
	if got := m.pool.AvailableIdentities(); got != 1 {
		t.Fatalf("spawn failure leaked the identity: %d available, want 1", got)
	}
	if len(m.BotNames()) != 0 {
		t.Fatal("failed spawn left a registered bot")
	}
	if msgs := conn.messagesTo(7); len(msgs) != 0 {
		t.Fatalf("transport fault rendered as a user denial: %v", msgs)
	}
}

func TestQuitFansOutBeforeMasterDisconnect(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	m, _ := newTestMaster(conn, []string{"a", "b", "c"}, 3)
	for _, name := range []string{"a", "b", "c"} {
		m.pool.Register(name, newFakeBot(name, 0, conn.log))
	}

	m.quit(context.Background(), "shutdown")

	calls := conn.log.snapshot()
	if len(calls) != 4 {
		t.Fatalf("calls = %v, want 3 quits and a disconnect", calls)
	}
	if calls[3] != "disconnect" {
		t.Fatalf("master disconnected before all bots quit: %v", calls)
	}
	quits := map[string]bool{}
	for _, c := range calls[:3] {
		quits[c] = true
	}
	for _, name := range []string{"a", "b", "c"} {
		if !quits["quit:"+name] {
			t.Fatalf("bot %s never received quit: %v", name, calls)
		}
	}
}

func TestRunRoutesEvents(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	m, _ := newTestMaster(conn, []string{"Gerhild"}, 1)

	errCh := make(chan error, 1)
	go func() { errCh <- m.Run(context.Background()) }()

	conn.events <- protocol.ClientAdded{ID: conn.id}
	conn.events <- protocol.ChannelAdded{ID: 9}
	conn.events <- protocol.ClientDisconnected{ID: 42} // someone else, ignored
	conn.events <- protocol.QuitRequested{Reason: "bye"}

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run returned %v after quit, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after quit request")
	}

	if got := conn.getDescription(); got != Description {
		t.Fatalf("description = %q, want %q", got, Description)
	}
	if subs := conn.subscriptions(); len(subs) != 1 || subs[0] != 9 {
		t.Fatalf("subscriptions = %v, want [9]", subs)
	}
	if !conn.isDisconnected() {
		t.Fatal("master connection still up after quit")
	}
}

func TestRunReturnsErrConnectionLostOnStreamClose(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	m, _ := newTestMaster(conn, []string{"Gerhild"}, 1)

	errCh := make(chan error, 1)
	go func() { errCh <- m.Run(context.Background()) }()
	close(conn.events)

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrConnectionLost) {
			t.Fatalf("Run returned %v, want ErrConnectionLost", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after stream close")
	}
}

func TestRunReturnsErrConnectionLostOnOwnDisconnect(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	m, _ := newTestMaster(conn, []string{"Gerhild"}, 1)

	errCh := make(chan error, 1)
	go func() { errCh <- m.Run(context.Background()) }()
	conn.events <- protocol.ClientDisconnected{ID: conn.id}

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrConnectionLost) {
			t.Fatalf("Run returned %v, want ErrConnectionLost", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after own disconnect")
	}
}

func TestRunContextCancelShutsDown(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	m, _ := newTestMaster(conn, []string{"a", "b"}, 2)
	m.pool.Register("a", newFakeBot("a", 0, conn.log))
	m.pool.Register("b", newFakeBot("b", 0, conn.log))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- m.Run(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run returned %v on cancellation, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	calls := conn.log.snapshot()
	if len(calls) != 3 || calls[2] != "disconnect" {
		t.Fatalf("shutdown calls = %v, want two quits then disconnect", calls)
	}
}

func TestSnapshotSurface(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	m, _ := newTestMaster(conn, []string{"a", "b"}, 2)
	m.pool.Register("a", newFakeBot("a", 4, conn.log))

	if got := m.BotNames(); len(got) != 1 || got[0] != "a" {
		t.Fatalf("BotNames = %v, want [a]", got)
	}
	data, ok := m.BotData("a")
	if !ok || data.Name != "a" || data.Volume != bot.DefaultVolume {
		t.Fatalf("BotData(a) = %+v, %v", data, ok)
	}
	if _, ok := m.BotData("nobody"); ok {
		t.Fatal("BotData returned a snapshot for an unknown name")
	}
	if got := m.BotDatas(); len(got) != 1 {
		t.Fatalf("BotDatas returned %d snapshots, want 1", len(got))
	}
}
