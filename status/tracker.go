package status

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/smartcontractkit/chainlink-common/pkg/logger"
	"github.com/smartcontractkit/chainlink-common/pkg/services"
	"github.com/smartcontractkit/chainlink-common/pkg/utils"
	"golang.org/x/exp/maps"

	"github.com/perseid-labs/txengine"
	"github.com/perseid-labs/txengine/clock"
	"github.com/perseid-labs/txengine/txerrors"
)

// ReceiptClient is the slice of the chain capability the tracker needs for
// confirmation polling.
type ReceiptClient interface {
	GetReceipt(ctx context.Context, txID string) (*txengine.Receipt, error)
}

// Config tunes the tracker.
type Config struct {
	// ConfirmationTarget is the confirmation count at which a transaction is
	// considered final.
	ConfirmationTarget uint32
	// BlockPeriod is the expected interval between ledger entries, used for
	// completion estimates.
	BlockPeriod time.Duration
	// PollPeriod is the confirmation polling interval.
	PollPeriod time.Duration
	// UpdateHistoryCap bounds each entry's update history; the oldest update
	// is dropped beyond it.
	UpdateHistoryCap int
	// SubscriberBuffer is the per-subscriber channel capacity. A subscriber
	// that falls this far behind starts losing updates rather than blocking
	// delivery to others.
	SubscriberBuffer int
}

func (c Config) withDefaults() Config {
	if c.ConfirmationTarget == 0 {
		c.ConfirmationTarget = 3
	}
	if c.BlockPeriod <= 0 {
		c.BlockPeriod = 3 * time.Second
	}
	if c.PollPeriod <= 0 {
		c.PollPeriod = 2 * time.Second
	}
	if c.UpdateHistoryCap <= 0 {
		c.UpdateHistoryCap = 50
	}
	if c.SubscriberBuffer <= 0 {
		c.SubscriberBuffer = 64
	}
	return c
}

type subscription struct {
	id     string
	filter func(StatusUpdate) bool
	ch     chan StatusUpdate
}

// Tracker is the transaction status state machine. It owns the tracked-entry
// registry; all mutation goes through its methods, and updates for a given
// key are delivered to subscribers in generation order.
type Tracker struct {
	services.StateMachine
	lggr   logger.Logger
	cfg    Config
	client ReceiptClient
	clk    clock.Clock

	lock    sync.RWMutex
	entries map[string]*Entry
	subs    map[string]*subscription

	chStop services.StopChan
	done   sync.WaitGroup
}

func NewTracker(lggr logger.Logger, client ReceiptClient, clk clock.Clock, cfg Config) *Tracker {
	return &Tracker{
		lggr:    logger.Named(lggr, "StatusTracker"),
		cfg:     cfg.withDefaults(),
		client:  client,
		clk:     clk,
		entries: make(map[string]*Entry),
		subs:    make(map[string]*subscription),
		chStop:  make(services.StopChan),
	}
}

func (t *Tracker) Name() string { return t.lggr.Name() }

func (t *Tracker) Start(context.Context) error {
	return t.StartOnce("StatusTracker", func() error {
		t.done.Add(1)
		go t.pollLoop()
		return nil
	})
}

func (t *Tracker) Close() error {
	return t.StopOnce("StatusTracker", func() error {
		close(t.chStop)
		t.done.Wait()
		t.lock.Lock()
		defer t.lock.Unlock()
		for _, sub := range t.subs {
			close(sub.ch)
		}
		t.subs = make(map[string]*subscription)
		return nil
	})
}

func (t *Tracker) HealthReport() map[string]error {
	return map[string]error{t.Name(): t.Healthy()}
}

// StartTracking registers a transaction and emits the initial update.
// Entries are removed only by StopTracking, never implicitly.
func (t *Tracker) StartTracking(txKey string, opCtx txengine.OperationContext, initial TxStatus) error {
	t.lock.Lock()
	defer t.lock.Unlock()

	if _, exists := t.entries[txKey]; exists {
		return fmt.Errorf("already tracking: %s", txKey)
	}

	now := t.clk.Now()
	entry := &Entry{
		TxKey:     txKey,
		Context:   opCtx.Clone(),
		Status:    initial,
		StartTime: now,
	}
	entry.LastUpdate = now
	entry.EstimatedCompletion = t.estimateCompletion(entry, now)
	t.entries[txKey] = entry

	t.lggr.Debugw("started tracking", "txKey", txKey, "status", initial)
	t.appendAndPublish(entry, "tracking started", nil)
	return nil
}

// UpdateStatus moves a tracked transaction through the state machine. An
// update to the current status is treated as a message-only update; invalid
// transitions and any transition out of a terminal state are rejected.
func (t *Tracker) UpdateStatus(txKey string, st TxStatus, message string, meta map[string]string) error {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.updateStatusLocked(txKey, st, message, meta)
}

func (t *Tracker) updateStatusLocked(txKey string, st TxStatus, message string, meta map[string]string) error {
	entry, ok := t.entries[txKey]
	if !ok {
		return fmt.Errorf("not tracking: %s", txKey)
	}

	if st != entry.Status {
		if entry.Status.IsTerminal() {
			return fmt.Errorf("invalid transition: %s is terminal (tx: %s)", entry.Status, txKey)
		}
		if !entry.Status.CanTransitionTo(st) {
			return fmt.Errorf("invalid transition: %s -> %s (tx: %s)", entry.Status, st, txKey)
		}
		entry.Status = st
	}

	now := t.clk.Now()
	entry.LastUpdate = now
	entry.EstimatedCompletion = t.estimateCompletion(entry, now)
	if st.IsTerminal() {
		t.lggr.Infow("transaction reached terminal status", "txKey", txKey, "status", st)
	}
	t.appendAndPublish(entry, message, meta)
	return nil
}

// FailWith marks a transaction failed and attaches the canonical error.
func (t *Tracker) FailWith(txKey string, cerr *txerrors.CanonicalError) error {
	t.lock.Lock()
	defer t.lock.Unlock()
	entry, ok := t.entries[txKey]
	if !ok {
		return fmt.Errorf("not tracking: %s", txKey)
	}
	entry.Err = cerr
	message := ""
	if cerr != nil {
		message = cerr.UserMessage
	}
	return t.updateStatusLocked(txKey, Failed, message, nil)
}

// UpdateConfirmations records a new confirmation count. Counts are monotonic
// non-decreasing; a lower count is rejected. The first confirmation
// auto-promotes SUBMITTED to CONFIRMING, and reaching the target promotes
// CONFIRMING to COMPLETED and stops polling for the key.
func (t *Tracker) UpdateConfirmations(txKey string, n uint32) error {
	t.lock.Lock()
	defer t.lock.Unlock()

	entry, ok := t.entries[txKey]
	if !ok {
		return fmt.Errorf("not tracking: %s", txKey)
	}
	if n < entry.Confirmations {
		return fmt.Errorf("confirmations must not decrease: have %d, got %d (tx: %s)", entry.Confirmations, n, txKey)
	}
	entry.Confirmations = n

	if entry.Status == Submitted && n >= 1 {
		if err := t.updateStatusLocked(txKey, Confirming, fmt.Sprintf("%d/%d confirmations", n, t.cfg.ConfirmationTarget), nil); err != nil {
			return err
		}
		if n >= t.cfg.ConfirmationTarget {
			return t.updateStatusLocked(txKey, Completed, "confirmation target reached", nil)
		}
		return nil
	}
	if entry.Status == Confirming {
		if n >= t.cfg.ConfirmationTarget {
			return t.updateStatusLocked(txKey, Completed, "confirmation target reached", nil)
		}
		return t.updateStatusLocked(txKey, Confirming, fmt.Sprintf("%d/%d confirmations", n, t.cfg.ConfirmationTarget), nil)
	}
	return nil
}

// SetTxID records the chain transaction id once submission succeeds. The
// confirmation poller only polls entries that have one.
func (t *Tracker) SetTxID(txKey, txID string) error {
	t.lock.Lock()
	defer t.lock.Unlock()
	entry, ok := t.entries[txKey]
	if !ok {
		return fmt.Errorf("not tracking: %s", txKey)
	}
	entry.Context = entry.Context.WithTxID(txID)
	return nil
}

// Entry returns a snapshot of the tracked entry.
func (t *Tracker) Entry(txKey string) (Entry, bool) {
	t.lock.RLock()
	defer t.lock.RUnlock()
	entry, ok := t.entries[txKey]
	if !ok {
		return Entry{}, false
	}
	return snapshot(entry), true
}

// Keys lists all tracked transaction keys.
func (t *Tracker) Keys() []string {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return maps.Keys(t.entries)
}

// StopTracking removes an entry. This is the only way entries are removed.
func (t *Tracker) StopTracking(txKey string) bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	if _, ok := t.entries[txKey]; !ok {
		return false
	}
	delete(t.entries, txKey)
	t.lggr.Debugw("stopped tracking", "txKey", txKey)
	return true
}

// Progress returns the completion percentage for a key, with CONFIRMING
// interpolated toward 100 by confirmations/target.
func (t *Tracker) Progress(txKey string) (int, bool) {
	t.lock.RLock()
	defer t.lock.RUnlock()
	entry, ok := t.entries[txKey]
	if !ok {
		return 0, false
	}
	return t.progressLocked(entry), true
}

func (t *Tracker) progressLocked(entry *Entry) int {
	base := progressTable[entry.Status]
	if entry.Status != Confirming {
		return base
	}
	target := t.cfg.ConfirmationTarget
	span := 100 - base
	p := base + int(uint32(span)*entry.Confirmations/target)
	if p > 100 {
		p = 100
	}
	return p
}

// Subscribe registers a typed-event subscriber. The returned channel
// receives every update matching the optional filter in generation order;
// nil filter receives everything. The channel is closed on Unsubscribe or
// tracker Close.
func (t *Tracker) Subscribe(filter func(StatusUpdate) bool) (string, <-chan StatusUpdate) {
	t.lock.Lock()
	defer t.lock.Unlock()
	sub := &subscription{
		id:     uuid.NewString(),
		filter: filter,
		ch:     make(chan StatusUpdate, t.cfg.SubscriberBuffer),
	}
	t.subs[sub.id] = sub
	return sub.id, sub.ch
}

func (t *Tracker) Unsubscribe(id string) bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	sub, ok := t.subs[id]
	if !ok {
		return false
	}
	delete(t.subs, id)
	close(sub.ch)
	return true
}

// appendAndPublish must be called with t.lock held; holding the lock across
// delivery is what guarantees per-key FIFO ordering to subscribers.
func (t *Tracker) appendAndPublish(entry *Entry, message string, meta map[string]string) {
	update := StatusUpdate{
		TxKey:         entry.TxKey,
		Status:        entry.Status,
		Message:       message,
		Confirmations: entry.Confirmations,
		Progress:      t.progressLocked(entry),
		Meta:          meta,
		Timestamp:     t.clk.Now(),
	}

	entry.Updates = append(entry.Updates, update)
	if len(entry.Updates) > t.cfg.UpdateHistoryCap {
		entry.Updates = entry.Updates[len(entry.Updates)-t.cfg.UpdateHistoryCap:]
	}

	for _, sub := range t.subs {
		if sub.filter != nil && !sub.filter(update) {
			continue
		}
		select {
		case sub.ch <- update:
		default:
			// A stalled subscriber loses updates; it never blocks delivery
			// to the others.
			t.lggr.Warnw("subscriber buffer full, dropping update", "subscriptionID", sub.id, "txKey", update.TxKey)
		}
	}
}

func (t *Tracker) estimateCompletion(entry *Entry, now time.Time) time.Time {
	if entry.Status.IsTerminal() {
		return time.Time{}
	}
	remaining := t.cfg.ConfirmationTarget
	if entry.Confirmations < remaining {
		remaining -= entry.Confirmations
	} else {
		remaining = 0
	}
	// Pre-submission stages add one block period of slack.
	if entry.Status == Preparing || entry.Status == Validating || entry.Status == WaitingConfirmation || entry.Status == Retrying {
		remaining++
	}
	return now.Add(time.Duration(remaining) * t.cfg.BlockPeriod)
}

func (t *Tracker) pollLoop() {
	defer t.done.Done()

	ctx, cancel := t.chStop.NewCtx()
	defer cancel()

	t.lggr.Debugw("pollLoop: started")
	tick := time.After(utils.WithJitter(t.cfg.PollPeriod))
	for {
		select {
		case <-tick:
			start := time.Now()
			t.checkPending(ctx)
			remaining := t.cfg.PollPeriod - time.Since(start)
			tick = time.After(utils.WithJitter(remaining.Abs()))
		case <-t.chStop:
			t.lggr.Debugw("pollLoop: stopped")
			return
		}
	}
}

// checkPending polls receipts for every non-terminal entry that has a
// transaction id. Terminal entries are skipped, which is what stops polling
// once COMPLETED or FAILED is reached.
func (t *Tracker) checkPending(ctx context.Context) {
	type pending struct {
		txKey string
		txID  string
		confs uint32
	}
	t.lock.RLock()
	var work []pending
	for _, entry := range t.entries {
		if entry.Status.IsTerminal() || entry.Context.TxID == "" {
			continue
		}
		work = append(work, pending{txKey: entry.TxKey, txID: entry.Context.TxID, confs: entry.Confirmations})
	}
	t.lock.RUnlock()

	for _, p := range work {
		receipt, err := t.client.GetReceipt(ctx, p.txID)
		if err != nil {
			t.lggr.Errorw("could not get receipt", "txKey", p.txKey, "txID", p.txID, "error", err)
			continue
		}
		if receipt == nil {
			continue
		}
		if !receipt.Success {
			if err := t.FailWith(p.txKey, txerrors.Classify(fmt.Errorf("execution reverted in block %d", receipt.BlockNumber))); err != nil {
				t.lggr.Errorw("could not mark transaction failed", "txKey", p.txKey, "error", err)
			}
			continue
		}
		if receipt.Confirmations > p.confs {
			if err := t.UpdateConfirmations(p.txKey, receipt.Confirmations); err != nil {
				t.lggr.Errorw("could not update confirmations", "txKey", p.txKey, "error", err)
			}
		}
	}
}

func snapshot(entry *Entry) Entry {
	out := *entry
	out.Context = entry.Context.Clone()
	out.Updates = append([]StatusUpdate(nil), entry.Updates...)
	return out
}
