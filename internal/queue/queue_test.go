package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/bassista/fitsync/internal/store"
)

// fakeSender records batches and can be told to fail from a given batch
// number onwards.
type fakeSender struct {
	mu          sync.Mutex
	batches     [][]Event
	failOnBatch int // 1-based; 0 means never fail
}

func (s *fakeSender) Send(_ context.Context, events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOnBatch > 0 && len(s.batches)+1 >= s.failOnBatch {
		return errors.New("telemetry endpoint returned 503")
	}
	batch := make([]Event, len(events))
	copy(batch, events)
	s.batches = append(s.batches, batch)
	return nil
}

func (s *fakeSender) sentBatches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batches
}

type fakeReporter struct {
	mu     sync.Mutex
	events []Event
}

func (r *fakeReporter) ReportDeadLetter(ev Event, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// failingStore rejects writes, simulating an unavailable persistence layer.
type failingStore struct {
	store.Store
}

func (f *failingStore) Set(key string, _ []byte) error {
	return &store.StorageError{Op: "set", Key: key, Err: errors.New("disk full")}
}

func testConfig() Config {
	return Config{BatchSize: 2, MaxAttempts: 3, DeadLetterCap: 5}
}

func newTestQueue(t *testing.T, s store.Store, sender Sender, online bool) (*Queue, *OnlineFlag, *fakeReporter) {
	t.Helper()
	flag := NewOnlineFlag()
	flag.SetOnline(online)
	reporter := &fakeReporter{}
	q, err := New(s, sender, flag, reporter, testConfig())
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	return q, flag, reporter
}

func enqueueN(t *testing.T, q *Queue, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id, err := q.Enqueue(KindExerciseCompleted, json.RawMessage(`{}`), "user-1")
		if err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
		ids = append(ids, id)
	}
	return ids
}

func TestQueue_EnqueueSurvivesRestart(t *testing.T) {
	s := store.NewMemStore()
	q, _, _ := newTestQueue(t, s, &fakeSender{}, true)

	id, err := q.Enqueue(KindExerciseCompleted, json.RawMessage(`{"exercise":"squat"}`), "user-1")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// Crash-simulated restart: a fresh queue over the same store
	q2, _, _ := newTestQueue(t, s, &fakeSender{}, true)
	if q2.Depth() != 1 {
		t.Fatalf("expected 1 recovered event, got %d", q2.Depth())
	}

	res := q2.Flush(context.Background())
	if res.Status != FlushCompleted || res.Sent != 1 {
		t.Errorf("unexpected flush result: %+v", res)
	}
	_ = id
}

func TestQueue_EnqueueFailsLoudlyOnStorageFailure(t *testing.T) {
	s := &failingStore{Store: store.NewMemStore()}
	q, _, _ := newTestQueue(t, s, &fakeSender{}, true)

	_, err := q.Enqueue(KindSessionStart, nil, "")
	if err == nil {
		t.Fatal("expected error when persistence is unavailable")
	}
	if !store.IsStorageError(err) {
		t.Errorf("expected a storage error, got %v", err)
	}
	if q.Depth() != 0 {
		t.Errorf("failed enqueue must not grow the queue, depth %d", q.Depth())
	}
}

func TestQueue_FlushSkippedOffline(t *testing.T) {
	sender := &fakeSender{}
	q, _, _ := newTestQueue(t, store.NewMemStore(), sender, false)
	enqueueN(t, q, 3)

	res := q.Flush(context.Background())
	if res.Status != FlushSkippedOffline {
		t.Errorf("expected skipped_offline, got %s", res.Status)
	}
	if len(sender.sentBatches()) != 0 {
		t.Error("offline flush must not touch the network")
	}
	if q.Depth() != 3 {
		t.Errorf("expected all events retained, depth %d", q.Depth())
	}
}

func TestQueue_FlushSendsInOrderInBatches(t *testing.T) {
	sender := &fakeSender{}
	q, _, _ := newTestQueue(t, store.NewMemStore(), sender, true)
	ids := enqueueN(t, q, 5)

	res := q.Flush(context.Background())
	if res.Status != FlushCompleted || res.Sent != 5 {
		t.Fatalf("unexpected result: %+v", res)
	}

	batches := sender.sentBatches()
	if len(batches) != 3 { // batch size 2: 2+2+1
		t.Fatalf("expected 3 batches, got %d", len(batches))
	}

	var got []string
	for _, b := range batches {
		for _, ev := range b {
			got = append(got, ev.ID)
		}
	}
	for i := range ids {
		if got[i] != ids[i] {
			t.Errorf("delivery order broken at %d: expected %s, got %s", i, ids[i], got[i])
		}
	}

	if q.Depth() != 0 {
		t.Errorf("expected drained queue, depth %d", q.Depth())
	}
}

func TestQueue_FailedBatchAbortsAndIncrementsOnlyRemaining(t *testing.T) {
	s := store.NewMemStore()
	sender := &fakeSender{failOnBatch: 2}
	q, _, _ := newTestQueue(t, s, sender, true)
	ids := enqueueN(t, q, 5) // batches: [0,1] [2,3] [4]

	res := q.Flush(context.Background())
	if res.Status != FlushFailed {
		t.Fatalf("expected failed flush, got %s", res.Status)
	}
	if res.Sent != 2 {
		t.Errorf("expected batch 1 sent (2 events), got %d", res.Sent)
	}
	if q.Depth() != 3 {
		t.Errorf("expected batches 2-3 retained (3 events), depth %d", q.Depth())
	}

	// Batch 1 removed from the store, the rest persisted with attempts=1
	keys, err := store.Namespace(s, QueueNamespace).List("")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 3 {
		t.Fatalf("expected 3 persisted events, got %d", len(keys))
	}
	for _, k := range keys {
		var ev Event
		if err := store.GetJSON(store.Namespace(s, QueueNamespace), k, &ev); err != nil {
			t.Fatal(err)
		}
		if ev.Attempts != 1 {
			t.Errorf("event %s: expected 1 attempt, got %d", ev.ID, ev.Attempts)
		}
	}

	// A later successful flush resumes from batch 2, order intact
	sender.mu.Lock()
	sender.failOnBatch = 0
	sender.mu.Unlock()

	res = q.Flush(context.Background())
	if res.Status != FlushCompleted || res.Sent != 3 {
		t.Fatalf("unexpected retry result: %+v", res)
	}

	var delivered []string
	for _, b := range sender.sentBatches() {
		for _, ev := range b {
			delivered = append(delivered, ev.ID)
		}
	}
	for i := range ids {
		if delivered[i] != ids[i] {
			t.Errorf("order broken across retries at %d", i)
		}
	}
}

func TestQueue_DeadLetterAfterMaxAttempts(t *testing.T) {
	s := store.NewMemStore()
	sender := &fakeSender{failOnBatch: 1}
	q, _, reporter := newTestQueue(t, s, sender, true)
	enqueueN(t, q, 2)

	// MaxAttempts is 3: the third failed flush dead-letters everything
	for i := 0; i < 3; i++ {
		res := q.Flush(context.Background())
		if res.Status != FlushFailed {
			t.Fatalf("flush %d: expected failure, got %s", i, res.Status)
		}
	}

	if q.Depth() != 0 {
		t.Errorf("expected empty queue after dead-lettering, depth %d", q.Depth())
	}
	if got := q.DeadLetterCount(); got != 2 {
		t.Errorf("expected 2 dead letters, got %d", got)
	}

	reporter.mu.Lock()
	reported := len(reporter.events)
	reporter.mu.Unlock()
	if reported != 2 {
		t.Errorf("expected 2 reported dead letters, got %d", reported)
	}

	// Dead letters are terminal: a working sender gets nothing
	sender.mu.Lock()
	sender.failOnBatch = 0
	sender.mu.Unlock()
	res := q.OnConnectivityRestored(context.Background())
	if res.Sent != 0 {
		t.Errorf("dead letters must never be resent, sent %d", res.Sent)
	}
}

func TestQueue_DeadLetterCapDropsOldest(t *testing.T) {
	s := store.NewMemStore()
	sender := &fakeSender{failOnBatch: 1}
	flag := NewOnlineFlag()
	q, err := New(s, sender, flag, nil, Config{BatchSize: 10, MaxAttempts: 1, DeadLetterCap: 3})
	if err != nil {
		t.Fatal(err)
	}
	enqueueN(t, q, 5)

	// MaxAttempts 1: one failed flush dead-letters all five
	q.Flush(context.Background())

	if got := q.DeadLetterCount(); got != 3 {
		t.Errorf("expected dead letter log capped at 3, got %d", got)
	}

	dls, err := q.DeadLetters()
	if err != nil {
		t.Fatal(err)
	}
	// Oldest dropped: the survivors are the three newest
	for _, dl := range dls {
		if dl.Event.Seq < 2 {
			t.Errorf("expected oldest dead letters dropped, found seq %d", dl.Event.Seq)
		}
	}
}

// blockingSender parks the first Send until released.
type blockingSender struct {
	started chan struct{}
	release chan struct{}
}

func (s *blockingSender) Send(context.Context, []Event) error {
	close(s.started)
	<-s.release
	return nil
}

func TestQueue_SingleFlushInFlight(t *testing.T) {
	sender := &blockingSender{started: make(chan struct{}), release: make(chan struct{})}
	q, _, _ := newTestQueue(t, store.NewMemStore(), sender, true)
	enqueueN(t, q, 1)

	first := make(chan FlushResult)
	go func() { first <- q.Flush(context.Background()) }()

	<-sender.started
	res := q.Flush(context.Background())
	if res.Status != FlushSkippedBusy {
		t.Errorf("expected skipped_busy while a flush is in flight, got %s", res.Status)
	}

	close(sender.release)
	if res := <-first; res.Status != FlushCompleted {
		t.Errorf("expected first flush to complete, got %s", res.Status)
	}
}
