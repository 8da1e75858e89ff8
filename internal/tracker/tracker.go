package tracker

import (
	"context"
	"maps"
	"sync"

	"github.com/mbeoliero/kit/log"
	"golang.org/x/sync/errgroup"
)

// Snapshot is a consistent view of the unread state
type Snapshot struct {
	Identity        string         `json:"identity"`
	Total           int            `json:"total"`
	PerConversation map[string]int `json:"per_conversation"`
}

// Tracker keeps the unread counts of the current identity live and applies
// optimistic mark-as-read with background reconciliation.
// Every piece of in-flight work carries the generation it started under;
// a generation change (identity switch, stop) turns it into a no-op.
type Tracker struct {
	store      Store
	identities IdentitySource
	sched      Scheduler
	opts       Options
	counter    *Counter

	baseCtx    context.Context
	baseCancel context.CancelFunc

	// lifecycleMu serializes start, stop and identity changes
	lifecycleMu sync.Mutex

	mu              sync.Mutex
	identity        string
	generation      uint64
	genCtx          context.Context
	genCancel       context.CancelFunc
	listening       bool
	disposed        bool
	perConv         map[string]int
	total           int
	optimistic      map[string]struct{}
	reconciles      map[string]*reconciliation
	recomputeSeq    uint64
	appliedSeq      uint64
	unwatchStore    func()
	unwatchIdentity func()
	listeners       map[int]chan Snapshot
	nextListener    int
}

// New creates an idle tracker. sched may be nil for the wall clock.
func New(store Store, identities IdentitySource, sched Scheduler, opts Options) *Tracker {
	if sched == nil {
		sched = NewClockScheduler()
	}
	opts = opts.withDefaults()
	baseCtx, baseCancel := context.WithCancel(context.Background())
	genCtx, genCancel := context.WithCancel(baseCtx)
	return &Tracker{
		store:      store,
		identities: identities,
		sched:      sched,
		opts:       opts,
		counter:    NewCounter(store, opts.Tolerance, sched.Now),
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
		genCtx:     genCtx,
		genCancel:  genCancel,
		perConv:    make(map[string]int),
		optimistic: make(map[string]struct{}),
		reconciles: make(map[string]*reconciliation),
		listeners:  make(map[int]chan Snapshot),
	}
}

// StartListening subscribes to the current identity's conversations and to
// identity changes. The initial count is computed before it returns.
func (t *Tracker) StartListening(ctx context.Context) error {
	t.lifecycleMu.Lock()
	defer t.lifecycleMu.Unlock()

	identity := t.identities.Current()
	if identity == "" {
		return ErrNoIdentity
	}

	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		return ErrDisposed
	}
	if t.unwatchIdentity == nil {
		t.unwatchIdentity = t.identities.Watch(t.onIdentityChange)
	}
	t.mu.Unlock()

	t.listen(ctx, identity)
	return nil
}

// StopListening cancels the subscriptions and zeroes all state. Idempotent.
func (t *Tracker) StopListening() {
	t.lifecycleMu.Lock()
	defer t.lifecycleMu.Unlock()

	t.mu.Lock()
	unwatchIdentity := t.unwatchIdentity
	t.unwatchIdentity = nil
	identity := t.identity
	t.mu.Unlock()

	if unwatchIdentity != nil {
		unwatchIdentity()
	}
	t.runAll(t.reset(identity, false))
}

// Dispose stops the tracker for good and closes every subscriber channel
func (t *Tracker) Dispose() {
	t.StopListening()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disposed {
		return
	}
	t.disposed = true
	for id, ch := range t.listeners {
		close(ch)
		delete(t.listeners, id)
	}
	t.baseCancel()
}

func (t *Tracker) onIdentityChange(next string) {
	t.lifecycleMu.Lock()
	defer t.lifecycleMu.Unlock()

	t.mu.Lock()
	cur, listening, disposed := t.identity, t.listening, t.disposed
	t.mu.Unlock()

	if disposed {
		return
	}
	if next == "" {
		log.Info("identity cleared, tracker idle: previous=%s", cur)
		t.runAll(t.reset("", false))
		return
	}
	if next == cur && listening {
		return
	}

	log.Info("identity changed, resubscribing: previous=%s, current=%s", cur, next)
	t.listen(t.baseCtx, next)
}

// listen tears down the previous generation, computes the first count and
// opens the membership subscription for identity. Caller holds lifecycleMu.
func (t *Tracker) listen(ctx context.Context, identity string) {
	t.runAll(t.reset(identity, true))

	t.mu.Lock()
	gen, genCtx := t.generation, t.genCtx
	t.mu.Unlock()

	opCtx, cancel := context.WithTimeout(ctx, t.opts.OpTimeout)
	t.aggregate(opCtx, gen, identity)
	cancel()

	unwatch, err := t.store.WatchConversations(genCtx, identity, func(conversationIds []string) {
		t.onConversations(gen, identity, conversationIds)
	})
	if err != nil {
		log.CtxWarn(ctx, "watch conversations failed: user_id=%s, error=%v", identity, err)
		return
	}

	t.mu.Lock()
	if t.generation != gen {
		t.mu.Unlock()
		unwatch()
		return
	}
	t.unwatchStore = unwatch
	t.mu.Unlock()
}

// reset starts a new generation and returns the cancel funcs of the old one
func (t *Tracker) reset(identity string, listening bool) []func() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.generation++
	t.genCancel()
	t.genCtx, t.genCancel = context.WithCancel(t.baseCtx)

	for _, rec := range t.reconciles {
		if rec.stop != nil {
			rec.stop()
		}
	}
	t.reconciles = make(map[string]*reconciliation)
	t.optimistic = make(map[string]struct{})
	t.perConv = make(map[string]int)
	t.total = 0
	t.identity = identity
	t.listening = listening
	t.recomputeSeq++
	t.appliedSeq = t.recomputeSeq

	var cancels []func()
	if t.unwatchStore != nil {
		cancels = append(cancels, t.unwatchStore)
		t.unwatchStore = nil
	}
	t.publishLocked()
	return cancels
}

func (t *Tracker) runAll(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}

func (t *Tracker) onConversations(gen uint64, identity string, conversationIds []string) {
	t.mu.Lock()
	if t.generation != gen {
		t.mu.Unlock()
		return
	}
	genCtx := t.genCtx
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(genCtx, t.opts.OpTimeout)
	defer cancel()
	t.recompute(ctx, gen, identity, conversationIds)
}

// CalculateUnreadCount recomputes every conversation of the current identity
func (t *Tracker) CalculateUnreadCount(ctx context.Context) {
	t.mu.Lock()
	identity, gen, listening := t.identity, t.generation, t.listening
	t.mu.Unlock()

	if identity == "" || !listening {
		return
	}
	t.aggregate(ctx, gen, identity)
}

func (t *Tracker) aggregate(ctx context.Context, gen uint64, identity string) {
	conversationIds, err := t.store.ListConversations(ctx, identity)
	if err != nil {
		log.CtxWarn(ctx, "list conversations failed, resetting unread: user_id=%s, error=%v", identity, err)
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.generation != gen {
			return
		}
		t.recomputeSeq++
		t.appliedSeq = t.recomputeSeq
		t.perConv = make(map[string]int)
		t.total = 0
		t.publishLocked()
		return
	}
	t.recompute(ctx, gen, identity, conversationIds)
}

// recompute counts every conversation outside the lock and applies the
// result only if no newer recompute or generation got there first.
// Optimistic conversations contribute 0 and are never read.
func (t *Tracker) recompute(ctx context.Context, gen uint64, identity string, conversationIds []string) {
	t.mu.Lock()
	if t.generation != gen {
		t.mu.Unlock()
		return
	}
	t.recomputeSeq++
	seq := t.recomputeSeq
	counts := make(map[string]int, len(conversationIds))
	pending := make([]string, 0, len(conversationIds))
	for _, id := range conversationIds {
		counts[id] = 0
		if _, ok := t.optimistic[id]; !ok {
			pending = append(pending, id)
		}
	}
	t.mu.Unlock()

	var (
		g   errgroup.Group
		cmu sync.Mutex
	)
	g.SetLimit(t.opts.Concurrency)
	for _, id := range pending {
		g.Go(func() error {
			n := t.counter.Count(ctx, id, identity)
			cmu.Lock()
			counts[id] = n
			cmu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.generation != gen || seq < t.appliedSeq {
		log.CtxDebug(ctx, "discarding stale recompute: user_id=%s, seq=%d, applied=%d", identity, seq, t.appliedSeq)
		return
	}
	t.appliedSeq = seq
	for id := range counts {
		if _, ok := t.optimistic[id]; ok {
			counts[id] = 0
		}
	}
	t.perConv = counts
	t.total = sum(counts)
	t.publishLocked()
}

// CountUnreadInConversation returns the server-truth count for the current identity
func (t *Tracker) CountUnreadInConversation(ctx context.Context, conversationId string) int {
	t.mu.Lock()
	identity := t.identity
	t.mu.Unlock()
	return t.counter.Count(ctx, conversationId, identity)
}

// TotalUnread returns the published total
func (t *Tracker) TotalUnread() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// PerConversationUnread returns a copy of the published per-conversation counts
func (t *Tracker) PerConversationUnread() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return maps.Clone(t.perConv)
}

// Snapshot returns the current state
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// IsOptimistic reports whether the conversation is forced to zero
func (t *Tracker) IsOptimistic(conversationId string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.optimistic[conversationId]
	return ok
}

// Subscribe returns a channel receiving every published snapshot, starting
// with the current one. A slow subscriber loses older snapshots, never the latest.
func (t *Tracker) Subscribe(buffer int) (<-chan Snapshot, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Snapshot, buffer)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disposed {
		close(ch)
		return ch, func() {}
	}
	id := t.nextListener
	t.nextListener++
	t.listeners[id] = ch
	ch <- t.snapshotLocked()

	return ch, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if c, ok := t.listeners[id]; ok {
			delete(t.listeners, id)
			close(c)
		}
	}
}

func (t *Tracker) snapshotLocked() Snapshot {
	return Snapshot{
		Identity:        t.identity,
		Total:           t.total,
		PerConversation: maps.Clone(t.perConv),
	}
}

func (t *Tracker) publishLocked() {
	snap := t.snapshotLocked()
	for _, ch := range t.listeners {
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func sum(m map[string]int) int {
	total := 0
	for _, n := range m {
		total += n
	}
	return total
}
