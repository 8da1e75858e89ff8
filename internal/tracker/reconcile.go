package tracker

import (
	"context"
	"time"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/bazaar/pkg/constant"
	"github.com/mbeoliero/bazaar/pkg/timestamp"
)

// State is the step of a mark-as-read reconciliation
type State int

const (
	StatePendingWrite State = iota
	StateAwaitingShortConfirm
	StateAwaitingLongConfirm
	StateRetry
	StateVerifying
	StateSettled
)

func (s State) String() string {
	switch s {
	case StatePendingWrite:
		return "pending_write"
	case StateAwaitingShortConfirm:
		return "awaiting_short_confirm"
	case StateAwaitingLongConfirm:
		return "awaiting_long_confirm"
	case StateRetry:
		return "retry"
	case StateVerifying:
		return "verifying"
	case StateSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// Outcome is how a settled reconciliation left the optimistic flag
type Outcome int

const (
	OutcomeNone Outcome = iota
	// OutcomeCleared means the server confirmed zero unread and the flag was dropped
	OutcomeCleared
	// OutcomeRetained means the flag stays for the rest of the generation
	OutcomeRetained
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCleared:
		return "cleared"
	case OutcomeRetained:
		return "retained"
	default:
		return "none"
	}
}

type reconciliation struct {
	conversationId string
	identity       string
	generation     uint64
	markedAt       time.Time
	state          State
	outcome        Outcome
	retried        bool
	stop           func() bool
}

// MarkConversationAsRead zeroes the conversation immediately and reconciles
// the receipt write in the background. It never blocks on the store.
// A second call on the same conversation supersedes the first reconciliation.
func (t *Tracker) MarkConversationAsRead(ctx context.Context, conversationId string) {
	t.mu.Lock()
	if t.identity == "" || conversationId == "" {
		t.mu.Unlock()
		log.CtxDebug(ctx, "mark as read ignored: conversation_id=%s", conversationId)
		return
	}

	t.optimistic[conversationId] = struct{}{}
	t.perConv[conversationId] = 0
	t.total = sum(t.perConv)
	t.publishLocked()

	if prev, ok := t.reconciles[conversationId]; ok && prev.stop != nil {
		prev.stop()
	}
	rec := &reconciliation{
		conversationId: conversationId,
		identity:       t.identity,
		generation:     t.generation,
		markedAt:       t.sched.Now(),
		state:          StatePendingWrite,
	}
	t.reconciles[conversationId] = rec
	rec.stop = t.sched.AfterFunc(0, func() { t.writeReceipt(rec) })
	t.mu.Unlock()
}

// Reconciliation reports the state of the latest reconciliation of a conversation
func (t *Tracker) Reconciliation(conversationId string) (State, Outcome, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.reconciles[conversationId]
	if !ok {
		return 0, OutcomeNone, false
	}
	return rec.state, rec.outcome, true
}

// liveLocked reports whether rec is still the current reconciliation of its generation
func (t *Tracker) liveLocked(rec *reconciliation) bool {
	return t.generation == rec.generation && t.reconciles[rec.conversationId] == rec
}

// opContext returns a bounded context for one step, false if rec is stale
func (t *Tracker) opContext(rec *reconciliation) (context.Context, context.CancelFunc, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.liveLocked(rec) {
		return nil, nil, false
	}
	ctx, cancel := context.WithTimeout(t.genCtx, t.opts.OpTimeout)
	return ctx, cancel, true
}

func (t *Tracker) advance(rec *reconciliation, next State, delay time.Duration, step func(*reconciliation)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.liveLocked(rec) {
		return
	}
	rec.state = next
	rec.stop = t.sched.AfterFunc(delay, func() { step(rec) })
}

func (t *Tracker) settle(rec *reconciliation, outcome Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.liveLocked(rec) {
		return
	}
	rec.state = StateSettled
	rec.outcome = outcome
	rec.stop = nil
	if outcome == OutcomeCleared {
		delete(t.optimistic, rec.conversationId)
		t.perConv[rec.conversationId] = 0
		t.total = sum(t.perConv)
		t.publishLocked()
	}
	log.Info("reconciliation settled: conversation_id=%s, user_id=%s, outcome=%s", rec.conversationId, rec.identity, outcome)
}

func (t *Tracker) writeReceipt(rec *reconciliation) {
	ctx, cancel, ok := t.opContext(rec)
	if !ok {
		return
	}
	defer cancel()

	err := t.store.PutReceipt(ctx, rec.conversationId, rec.identity, map[string]any{
		"client_marked_at": rec.markedAt,
		"source":           constant.ReceiptSourceTracker,
	})
	if err != nil {
		log.CtxWarn(ctx, "write receipt failed, keeping optimistic read: conversation_id=%s, user_id=%s, error=%v", rec.conversationId, rec.identity, err)
		t.settle(rec, OutcomeRetained)
		return
	}

	t.advance(rec, StateAwaitingShortConfirm, t.opts.ShortConfirm, t.shortConfirm)
}

// shortConfirm re-reads the receipt. The result is informational only.
func (t *Tracker) shortConfirm(rec *reconciliation) {
	ctx, cancel, ok := t.opContext(rec)
	if !ok {
		return
	}
	defer cancel()

	if !t.receiptPresent(ctx, rec) {
		log.CtxDebug(ctx, "receipt not confirmed yet: conversation_id=%s, user_id=%s", rec.conversationId, rec.identity)
	}

	t.advance(rec, StateAwaitingLongConfirm, t.opts.LongConfirm-t.opts.ShortConfirm, t.longConfirm)
}

// longConfirm checks the receipt once settled. Absent receipts get one retry.
func (t *Tracker) longConfirm(rec *reconciliation) {
	ctx, cancel, ok := t.opContext(rec)
	if !ok {
		return
	}
	defer cancel()

	if t.receiptPresent(ctx, rec) {
		t.advance(rec, StateVerifying, t.opts.Settle, t.verify)
		return
	}

	t.mu.Lock()
	retried := rec.retried
	rec.retried = true
	t.mu.Unlock()

	if retried {
		log.CtxWarn(ctx, "receipt still missing after retry, keeping optimistic read: conversation_id=%s, user_id=%s", rec.conversationId, rec.identity)
		t.settle(rec, OutcomeRetained)
		return
	}
	t.advance(rec, StateRetry, t.opts.Retry, t.longConfirm)
}

// verify counts server truth. Only an exact zero clears the optimistic flag.
func (t *Tracker) verify(rec *reconciliation) {
	ctx, cancel, ok := t.opContext(rec)
	if !ok {
		return
	}
	defer cancel()

	n := t.counter.Count(ctx, rec.conversationId, rec.identity)
	if n != 0 {
		log.CtxInfo(ctx, "unread remains after mark as read: conversation_id=%s, user_id=%s, unread=%d", rec.conversationId, rec.identity, n)
		t.settle(rec, OutcomeRetained)
		return
	}
	t.settle(rec, OutcomeCleared)
}

func (t *Tracker) receiptPresent(ctx context.Context, rec *reconciliation) bool {
	receipt, err := t.store.GetReceipt(ctx, rec.conversationId, rec.identity)
	if err != nil {
		log.CtxDebug(ctx, "get receipt failed: conversation_id=%s, user_id=%s, error=%v", rec.conversationId, rec.identity, err)
		return false
	}
	if receipt == nil {
		return false
	}
	_, ok := timestamp.Normalize(receipt.LastReadAt)
	return ok
}
