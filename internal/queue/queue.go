package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bassista/fitsync/internal/logger"
	"github.com/bassista/fitsync/internal/store"
)

// QueueNamespace is the wire-visible key namespace the UI layer expects.
const QueueNamespace = "analytics_queue"

const deadLetterNamespace = "dead_letter"

// FlushStatus describes the outcome of one Flush call.
type FlushStatus string

const (
	// FlushCompleted means every queued batch was acknowledged.
	FlushCompleted FlushStatus = "completed"
	// FlushFailed means a batch failed; that batch and all later ones
	// stay queued.
	FlushFailed FlushStatus = "failed"
	// FlushSkippedOffline means no network, nothing attempted.
	FlushSkippedOffline FlushStatus = "skipped_offline"
	// FlushSkippedBusy means another flush was already in flight.
	FlushSkippedBusy FlushStatus = "skipped_busy"
)

// FlushResult reports what one Flush call did.
type FlushResult struct {
	Status       FlushStatus
	Sent         int
	Remaining    int
	DeadLettered int
}

// Config bounds the queue's flush behavior.
type Config struct {
	BatchSize     int
	MaxAttempts   int
	DeadLetterCap int
}

// ErrorReporter surfaces dead-lettered events to an external error
// tracker. Dead letters are terminal; reporting them is the only way they
// become visible outside the local log.
type ErrorReporter interface {
	ReportDeadLetter(ev Event, cause error)
}

// Queue is the durable outbound event buffer. Enqueue is the single
// guaranteed-success operation: it persists locally and never touches the
// network. Delivery is at-least-once, in creation order, with the event ID
// as the receiver-side dedup key.
type Queue struct {
	ns       *store.Namespaced
	dead     *store.Namespaced
	sender   Sender
	conn     Connectivity
	reporter ErrorReporter
	cfg      Config

	mu      sync.Mutex
	items   []Event
	nextSeq uint64

	// at most one flush in flight; later callers are turned away
	flushing sync.Mutex
}

// New loads any events persisted by a previous run and returns a ready
// queue. Events enqueued before a crash are flushed like any others.
// A nil sender disables delivery; events still accumulate durably.
func New(s store.Store, sender Sender, conn Connectivity, reporter ErrorReporter, cfg Config) (*Queue, error) {
	q := &Queue{
		ns:       store.Namespace(s, QueueNamespace),
		dead:     store.Namespace(s, deadLetterNamespace),
		sender:   sender,
		conn:     conn,
		reporter: reporter,
		cfg:      cfg,
	}

	keys, err := q.ns.List("")
	if err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}
	for _, k := range keys {
		var ev Event
		if err := store.GetJSON(q.ns, k, &ev); err != nil {
			return nil, fmt.Errorf("load queued event %s: %w", k, err)
		}
		q.items = append(q.items, ev)
		if ev.Seq >= q.nextSeq {
			q.nextSeq = ev.Seq + 1
		}
	}

	if len(q.items) > 0 {
		logger.WithComponent("queue").Infof("recovered %d queued events from store", len(q.items))
	}
	return q, nil
}

func seqKey(seq uint64) string {
	return fmt.Sprintf("%016d", seq)
}

// Enqueue durably appends an event and returns its idempotency id. It
// never blocks on the network; a non-nil error means the event was NOT
// persisted and the caller must not assume it will ever be delivered.
func (q *Queue) Enqueue(kind Kind, payload json.RawMessage, userID string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	ev := Event{
		ID:        uuid.NewString(),
		Seq:       q.nextSeq,
		Kind:      kind,
		Payload:   payload,
		UserID:    userID,
		CreatedAt: time.Now().UnixMilli(),
	}

	if err := store.SetJSON(q.ns, seqKey(ev.Seq), ev); err != nil {
		return "", fmt.Errorf("enqueue %s: %w", kind, err)
	}

	q.items = append(q.items, ev)
	q.nextSeq++
	logger.WithComponent("queue").Debugf("enqueued %s event %s (depth %d)", kind, ev.ID, len(q.items))
	return ev.ID, nil
}

// Flush drains the queue in batches, in enqueue order. A batch failure
// aborts the remaining batches so retries never reorder delivery. Items
// over the attempt cutoff move to the dead-letter log.
func (q *Queue) Flush(ctx context.Context) FlushResult {
	if q.sender == nil || (q.conn != nil && !q.conn.Online()) {
		return FlushResult{Status: FlushSkippedOffline, Remaining: q.Depth()}
	}
	if !q.flushing.TryLock() {
		return FlushResult{Status: FlushSkippedBusy, Remaining: q.Depth()}
	}
	defer q.flushing.Unlock()

	result := FlushResult{Status: FlushCompleted}
	for {
		batch := q.peekBatch()
		if len(batch) == 0 {
			break
		}

		if err := q.sender.Send(ctx, batch); err != nil {
			logger.WithComponent("queue").Warnf("batch of %d failed, aborting flush: %v", len(batch), err)
			result.Status = FlushFailed
			result.DeadLettered = q.recordFailure(err)
			break
		}

		q.ack(batch)
		result.Sent += len(batch)
	}

	result.Remaining = q.Depth()
	if result.Status == FlushCompleted && result.Sent > 0 {
		logger.WithComponent("queue").Infof("flushed %d events", result.Sent)
	}
	return result
}

// OnConnectivityRestored is the connectivity-change hook: it flushes the
// backlog. Dead-lettered events stay dead.
func (q *Queue) OnConnectivityRestored(ctx context.Context) FlushResult {
	logger.WithComponent("queue").Info("connectivity restored, flushing backlog")
	return q.Flush(ctx)
}

func (q *Queue) peekBatch() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	if n > q.cfg.BatchSize {
		n = q.cfg.BatchSize
	}
	batch := make([]Event, n)
	copy(batch, q.items[:n])
	return batch
}

// ack removes an acknowledged batch from the head of the queue.
func (q *Queue) ack(batch []Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, ev := range batch {
		if err := q.ns.Remove(seqKey(ev.Seq)); err != nil {
			// Worst case the event is re-sent next run; the receiver
			// dedups on ID.
			logger.WithComponent("queue").Errorf("remove acked event %s: %v", ev.ID, err)
		}
	}
	q.items = q.items[len(batch):]
}

// recordFailure bumps the attempt count on every still-queued item of the
// aborted flush and dead-letters those past the cutoff. Returns how many
// were dead-lettered.
func (q *Queue) recordFailure(cause error) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	var kept []Event
	deadLettered := 0
	for _, ev := range q.items {
		ev.Attempts++
		if ev.Attempts >= q.cfg.MaxAttempts {
			q.deadLetter(ev, cause)
			deadLettered++
			continue
		}
		if err := store.SetJSON(q.ns, seqKey(ev.Seq), ev); err != nil {
			logger.WithComponent("queue").Errorf("persist attempt count for %s: %v", ev.ID, err)
		}
		kept = append(kept, ev)
	}
	q.items = kept
	return deadLettered
}

// deadLetter moves an event to the bounded terminal log. Callers hold q.mu.
func (q *Queue) deadLetter(ev Event, cause error) {
	logger.WithComponent("queue").Errorf("event %s (%s) exceeded %d attempts, dead-lettering", ev.ID, ev.Kind, q.cfg.MaxAttempts)

	if err := q.ns.Remove(seqKey(ev.Seq)); err != nil {
		logger.WithComponent("queue").Errorf("remove dead event %s from queue: %v", ev.ID, err)
	}

	dl := DeadLetter{Event: ev, FailedAt: time.Now().UnixMilli(), Reason: cause.Error()}
	if err := store.SetJSON(q.dead, seqKey(ev.Seq), dl); err != nil {
		logger.WithComponent("queue").Errorf("persist dead letter %s: %v", ev.ID, err)
	}
	q.trimDeadLetters()

	if q.reporter != nil {
		q.reporter.ReportDeadLetter(ev, cause)
	}
}

// trimDeadLetters enforces the cap, dropping oldest first.
func (q *Queue) trimDeadLetters() {
	keys, err := q.dead.List("")
	if err != nil {
		logger.WithComponent("queue").Errorf("list dead letters: %v", err)
		return
	}
	for len(keys) > q.cfg.DeadLetterCap {
		if err := q.dead.Remove(keys[0]); err != nil {
			logger.WithComponent("queue").Errorf("trim dead letter %s: %v", keys[0], err)
			return
		}
		keys = keys[1:]
	}
}

// Depth is the number of events waiting to be delivered.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// DeadLetterCount is the size of the terminal log. The UI derives its
// sync-problem indicator from this and Depth, by polling.
func (q *Queue) DeadLetterCount() int {
	keys, err := q.dead.List("")
	if err != nil {
		return 0
	}
	return len(keys)
}

// DeadLetters returns the terminal log, oldest first.
func (q *Queue) DeadLetters() ([]DeadLetter, error) {
	keys, err := q.dead.List("")
	if err != nil {
		return nil, err
	}
	out := make([]DeadLetter, 0, len(keys))
	for _, k := range keys {
		var dl DeadLetter
		if err := store.GetJSON(q.dead, k, &dl); err != nil {
			return nil, err
		}
		out = append(out, dl)
	}
	return out, nil
}
