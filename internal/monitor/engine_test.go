package monitor

import (
	"context"
	"errors"
	"testing"

	"bikewatch/internal/history"
	logx "bikewatch/pkg/logx"
)

type fakeFetcher struct {
	records map[int64][]history.Record
	fail    map[int64]error
}

func (f *fakeFetcher) Fetch(ctx context.Context, bikeID int64) ([]history.Record, error) {
	if err, ok := f.fail[bikeID]; ok {
		return nil, err
	}
	return f.records[bikeID], nil
}

type memStore struct {
	set     map[string]struct{}
	loadErr error
	saveErr error
	saves   int
}

func newMemStore(ids ...string) *memStore {
	set := map[string]struct{}{}
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return &memStore{set: set}
}

func (s *memStore) Load(ctx context.Context) (map[string]struct{}, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	cp := make(map[string]struct{}, len(s.set))
	for id := range s.set {
		cp[id] = struct{}{}
	}
	return cp, nil
}

func (s *memStore) Save(ctx context.Context, set map[string]struct{}) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.set = make(map[string]struct{}, len(set))
	for id := range set {
		s.set[id] = struct{}{}
	}
	return nil
}

func (s *memStore) Close() error { return nil }

type recordingNotifier struct {
	batches [][]history.Record
}

func (n *recordingNotifier) Dispatch(ctx context.Context, records []history.Record) int {
	n.batches = append(n.batches, records)
	return len(records)
}

func (n *recordingNotifier) total() int {
	total := 0
	for _, b := range n.batches {
		total += len(b)
	}
	return total
}

func rec(bikeID int64, start, end string) history.Record {
	return history.Record{BikeID: bikeID, ScheduledStart: start, EndDate: end}
}

func TestRunColdStartSeedsSilently(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{records: map[int64][]history.Record{
		3592: {rec(3592, "2024-01-01T10:00:00.000Z", "-"), rec(3592, "2024-01-02T09:00:00.000Z", "2024-01-02T11:00:00.000Z")},
		3593: {rec(3593, "2024-01-03T08:00:00.000Z", "-")},
	}}
	store := newMemStore()
	notifier := &recordingNotifier{}

	e := NewEngine([]int64{3592, 3593}, fetcher, store, notifier, logx.Nop())
	report, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !report.ColdStart {
		t.Fatal("expected cold start")
	}
	if notifier.total() != 0 {
		t.Fatalf("cold start must not notify, sent %d", notifier.total())
	}
	if !report.Persisted {
		t.Fatal("cold start run should persist the seeded set")
	}
	if len(store.set) != 3 {
		t.Fatalf("expected 3 seeded identities, got %d", len(store.set))
	}
}

func TestRunIncrementalDetection(t *testing.T) {
	t.Parallel()

	known := rec(3592, "2024-01-01T10:00:00.000Z", "-")
	fresh := rec(3592, "2024-01-05T09:00:00.000Z", "-")
	fetcher := &fakeFetcher{records: map[int64][]history.Record{
		3592: {known, fresh},
	}}
	store := newMemStore(Identity(known))
	notifier := &recordingNotifier{}

	e := NewEngine([]int64{3592}, fetcher, store, notifier, logx.Nop())
	report, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if notifier.total() != 1 {
		t.Fatalf("expected exactly 1 notification, got %d", notifier.total())
	}
	got := notifier.batches[0][0]
	if Identity(got) != Identity(fresh) {
		t.Fatalf("notified the wrong record: %q", Identity(got))
	}
	if report.Notified != 1 {
		t.Fatalf("Notified = %d, want 1", report.Notified)
	}
	if _, ok := store.set[Identity(fresh)]; !ok {
		t.Fatal("persisted set missing the new identity")
	}
	if _, ok := store.set[Identity(known)]; !ok {
		t.Fatal("persisted set lost the prior identity")
	}
}

func TestRunPersistSafeguardOnTotalFailure(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{fail: map[int64]error{
		3592: errors.New("timeout"),
		3593: errors.New("connection refused"),
	}}
	store := newMemStore("3592_2024-01-01T10:00:00.000Z_-")
	notifier := &recordingNotifier{}

	e := NewEngine([]int64{3592, 3593}, fetcher, store, notifier, logx.Nop())
	report, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.FetchErrors != 2 {
		t.Fatalf("FetchErrors = %d, want 2", report.FetchErrors)
	}
	if report.Persisted {
		t.Fatal("total-failure run must not persist")
	}
	if store.saves != 0 {
		t.Fatalf("store saved %d times, want 0", store.saves)
	}
	if notifier.total() != 0 {
		t.Fatalf("total-failure run must not notify, sent %d", notifier.total())
	}
	if len(store.set) != 1 {
		t.Fatalf("prior state changed: %d identities", len(store.set))
	}
}

func TestRunPartialFailureIsolated(t *testing.T) {
	t.Parallel()

	known := rec(3592, "2024-01-01T10:00:00.000Z", "-")
	fresh := rec(3592, "2024-01-06T10:00:00.000Z", "-")
	fetcher := &fakeFetcher{
		records: map[int64][]history.Record{3592: {known, fresh}},
		fail:    map[int64]error{3593: errors.New("timeout")},
	}
	store := newMemStore(Identity(known))
	notifier := &recordingNotifier{}

	e := NewEngine([]int64{3592, 3593}, fetcher, store, notifier, logx.Nop())
	report, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.FetchErrors != 1 {
		t.Fatalf("FetchErrors = %d, want 1", report.FetchErrors)
	}
	if notifier.total() != 1 {
		t.Fatalf("expected 1 notification, got %d", notifier.total())
	}
	if !report.Persisted {
		t.Fatal("partial failure should still persist")
	}
	if len(store.set) != 2 {
		t.Fatalf("persisted set has %d identities, want 2", len(store.set))
	}
}

func TestRunIdempotentOnUnchangedData(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{records: map[int64][]history.Record{
		3592: {rec(3592, "2024-01-01T10:00:00.000Z", "-")},
	}}
	store := newMemStore()
	notifier := &recordingNotifier{}
	e := NewEngine([]int64{3592}, fetcher, store, notifier, logx.Nop())

	// First run seeds, second run sees identical data.
	if _, err := e.Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	before := len(store.set)
	report, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}

	if notifier.total() != 0 {
		t.Fatalf("unchanged data must not notify, sent %d", notifier.total())
	}
	if len(store.set) != before {
		t.Fatalf("persisted set changed: %d -> %d", before, len(store.set))
	}
	if report.NewRecords != 0 {
		t.Fatalf("NewRecords = %d, want 0", report.NewRecords)
	}
}

func TestRunEmptyHistorySuccessStillPersists(t *testing.T) {
	t.Parallel()

	// A bike with verifiably zero history is a successful fetch: it contributes
	// no identities and must not block persistence.
	known := rec(3592, "2024-01-01T10:00:00.000Z", "-")
	fetcher := &fakeFetcher{records: map[int64][]history.Record{
		3592: {known},
		3593: {},
	}}
	store := newMemStore(Identity(known))
	notifier := &recordingNotifier{}

	e := NewEngine([]int64{3592, 3593}, fetcher, store, notifier, logx.Nop())
	report, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.FetchErrors != 0 {
		t.Fatalf("FetchErrors = %d, want 0", report.FetchErrors)
	}
	if !report.Persisted {
		t.Fatal("empty-but-successful fetch must not block persistence")
	}
}

func TestRunReturnTransitionNotifies(t *testing.T) {
	t.Parallel()

	// The rental was previously seen as "not yet returned"; it now comes back
	// with a real end date. That is a new identity and a "returned" event.
	const priorID = "3592_2024-01-01T10:00:00.000Z_-"
	returned := rec(3592, "2024-01-01T10:00:00.000Z", "2024-01-01T12:00:00.000Z")

	fetcher := &fakeFetcher{records: map[int64][]history.Record{3592: {returned}}}
	store := newMemStore(priorID)
	notifier := &recordingNotifier{}

	e := NewEngine([]int64{3592}, fetcher, store, notifier, logx.Nop())
	if _, err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if notifier.total() != 1 {
		t.Fatalf("expected 1 notification for the return, got %d", notifier.total())
	}
	if !notifier.batches[0][0].Returned() {
		t.Fatal("notified record should read as returned")
	}
	if _, ok := store.set[priorID]; !ok {
		t.Fatal("old identity must be retained")
	}
	if _, ok := store.set[Identity(returned)]; !ok {
		t.Fatal("new identity must be persisted")
	}
	if len(store.set) != 2 {
		t.Fatalf("persisted set has %d identities, want 2", len(store.set))
	}
}

func TestRunUnreadableStateIsColdStart(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{records: map[int64][]history.Record{
		3592: {rec(3592, "2024-01-01T10:00:00.000Z", "-")},
	}}
	store := newMemStore()
	store.loadErr = errors.New("unmarshal state file: unexpected end of JSON input")
	notifier := &recordingNotifier{}

	e := NewEngine([]int64{3592}, fetcher, store, notifier, logx.Nop())
	report, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !report.ColdStart {
		t.Fatal("unreadable state should be treated as cold start")
	}
	if notifier.total() != 0 {
		t.Fatalf("cold start must not notify, sent %d", notifier.total())
	}
}

func TestRunSaveFailureReturnsError(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{records: map[int64][]history.Record{
		3592: {rec(3592, "2024-01-01T10:00:00.000Z", "-")},
	}}
	store := newMemStore()
	store.saveErr = errors.New("disk full")
	notifier := &recordingNotifier{}

	e := NewEngine([]int64{3592}, fetcher, store, notifier, logx.Nop())
	report, err := e.Run(context.Background())
	if err == nil {
		t.Fatal("expected error from failed save")
	}
	if report.Persisted {
		t.Fatal("Persisted must be false when the save failed")
	}
}
