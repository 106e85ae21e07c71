// Package pool owns the farm's two finite resource pools — display names
// and connection identities — and the registry of active bots. Allocation
// is all-or-nothing and uniformly random (shuffle-then-pop, never FIFO, so
// no slot is starved); release returns the exact indices that were handed
// out. All state is guarded by one mutex so status readers observe
// consistent snapshots while the master's event loop mutates.
package pool

import (
	"math/rand/v2"
	"sync"

	"chorus/pkg/protocol"
)

// Handle is the pool's view of a live bot: just enough to key the registry
// and enforce the one-bot-per-channel invariant.
type Handle interface {
	Name() string
	Channel() protocol.ChannelID
}

// Lease is a successful allocation: one name slot and one identity slot.
// The indices must be passed back verbatim to Release.
type Lease struct {
	Name          string
	NameIndex     int
	Identity      protocol.Identity
	IdentityIndex int
}

// Pool is the resource allocator. Construct with New.
type Pool struct {
	mu         sync.Mutex
	names      []string
	identities []protocol.Identity
	availNames []int
	availIDs   []int
	active     map[string]Handle
	rng        *rand.Rand
}

// New creates a pool over the configured name and identity lists. The seed
// fixes the allocation order; pass different seeds per run for uniform
// selection, or a constant in tests for determinism.
func New(names []string, identities []protocol.Identity, seed uint64) *Pool {
	p := &Pool{
		names:      names,
		identities: identities,
		availNames: make([]int, len(names)),
		availIDs:   make([]int, len(identities)),
		active:     make(map[string]Handle),
		rng:        rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), //nolint:gosec // allocation order, not crypto
	}
	for i := range p.availNames {
		p.availNames[i] = i
	}
	for i := range p.availIDs {
		p.availIDs[i] = i
	}
	return p
}

// TryAllocate removes one random index from each available set and returns
// the lease. It fails with OutOfNamesError or OutOfIdentitiesError when the
// respective set is empty; a failure consumes nothing from either set.
func (p *Pool) TryAllocate() (Lease, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Check both sets before touching either: a name must not leak when
	// the identity pool turns out to be empty.
	if len(p.availNames) == 0 {
		return Lease{}, protocol.OutOfNamesError{}
	}
	if len(p.availIDs) == 0 {
		return Lease{}, protocol.OutOfIdentitiesError{}
	}

	ni := p.popLocked(&p.availNames)
	ii := p.popLocked(&p.availIDs)
	return Lease{
		Name:          p.names[ni],
		NameIndex:     ni,
		Identity:      p.identities[ii],
		IdentityIndex: ii,
	}, nil
}

// popLocked removes and returns a uniformly random element. Caller must
// hold p.mu.
func (p *Pool) popLocked(set *[]int) int {
	s := *set
	j := p.rng.IntN(len(s))
	v := s[j]
	s[j] = s[len(s)-1]
	*set = s[:len(s)-1]
	return v
}

// Register inserts a live bot into the registry. Call only after
// TryAllocate succeeded for the bot's lease.
func (p *Pool) Register(name string, h Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active[name] = h
}

// Release removes the bot from the registry and returns both indices to
// their available sets. It must fire exactly once per bot lifetime; the
// spawner binds it into a single-fire callback.
func (p *Pool) Release(name string, nameIndex, identityIndex int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.active, name)
	p.availNames = append(p.availNames, nameIndex)
	p.availIDs = append(p.availIDs, identityIndex)
}

// ChannelInUse scans the registry for a bot occupying the channel and
// returns its name.
func (p *Pool) ChannelInUse(ch protocol.ChannelID) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, h := range p.active {
		if h.Channel() == ch {
			return name, true
		}
	}
	return "", false
}

// Lookup returns the registered handle for a name.
func (p *Pool) Lookup(name string) (Handle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.active[name]
	return h, ok
}

// ActiveNames returns the names of all registered bots.
func (p *Pool) ActiveNames() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.active))
	for name := range p.active {
		out = append(out, name)
	}
	return out
}

// Handles returns a snapshot of all registered handles.
func (p *Pool) Handles() []Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Handle, 0, len(p.active))
	for _, h := range p.active {
		out = append(out, h)
	}
	return out
}

// AvailableNames returns how many name slots remain unallocated.
func (p *Pool) AvailableNames() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.availNames)
}

// AvailableIdentities returns how many identity slots remain unallocated.
func (p *Pool) AvailableIdentities() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.availIDs)
}
