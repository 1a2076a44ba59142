package relay

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"personrelay/internal/broker"
	"personrelay/internal/config"
	"personrelay/internal/constants"
	"personrelay/internal/logger"
	"personrelay/internal/person"
	"personrelay/pkg/errors"
)

type fakeStore struct {
	mu      sync.Mutex
	batches [][]person.Person
	err     error
	// affected overrides the reported count when set.
	affected func(batch []person.Person) int64
}

func (f *fakeStore) InsertBatch(ctx context.Context, people []person.Person) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.batches = append(f.batches, people)
	if f.affected != nil {
		return f.affected(people), nil
	}
	return int64(len(people)), nil
}

func (f *fakeStore) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

type fakeLocker struct {
	err      error
	released int
}

func (l *fakeLocker) Acquire(ctx context.Context) (func(ctx context.Context) error, error) {
	if l.err != nil {
		return nil, l.err
	}
	return func(ctx context.Context) error {
		l.released++
		return nil
	}, nil
}

type fakeAudit struct {
	records []CycleRecord
}

func (a *fakeAudit) Record(ctx context.Context, rec CycleRecord) error {
	a.records = append(a.records, rec)
	return nil
}

func testRelayConfig() config.RelayConfig {
	return config.RelayConfig{
		MaxMessages: 1000,
		MaxWait:     20 * time.Millisecond,
		AckMode:     constants.AckBeforePersist,
	}
}

func newTestService(t *testing.T, q *broker.MemoryQueue, store Store, cfg config.RelayConfig, opts ...Option) *Service {
	t.Helper()
	svc, err := NewService(q, store, cfg, logger.NopLogger(), opts...)
	require.NoError(t, err)
	return svc
}

func enqueuePeople(q *broker.MemoryQueue, ids ...int) {
	for _, i := range ids {
		q.Enqueue([]byte(fmt.Sprintf(`{"PersonID":"%d","Email":"user%d@example.com"}`, i, i)))
	}
}

func TestDrainAndInsert_EmptyQueueSkipsStore(t *testing.T) {
	q := broker.NewMemoryQueue()
	store := &fakeStore{}
	svc := newTestService(t, q, store, testRelayConfig())

	res, err := svc.DrainAndInsert(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
	assert.Zero(t, store.calls())
}

func TestDrainAndInsert_SkipsMalformed(t *testing.T) {
	q := broker.NewMemoryQueue()
	enqueuePeople(q, 1)
	q.Enqueue([]byte(`not json`))
	enqueuePeople(q, 2)
	q.Enqueue([]byte(`{"Email":"missing-id@example.com"}`))
	enqueuePeople(q, 3)

	store := &fakeStore{}
	svc := newTestService(t, q, store, testRelayConfig())

	res, err := svc.DrainAndInsert(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Result{Received: 5, Parsed: 3, Skipped: 2, Inserted: 3}, res)
	require.Equal(t, 1, store.calls())

	ids := make([]string, 0, 3)
	for _, p := range store.batches[0] {
		ids = append(ids, p.PersonID)
	}
	assert.Equal(t, []string{"1", "2", "3"}, ids)
	assert.Equal(t, 5, q.Completed())
	assert.Zero(t, q.Len())
}

func TestDrainAndInsert_CountIsStoreReported(t *testing.T) {
	q := broker.NewMemoryQueue()
	enqueuePeople(q, 1, 1, 2)

	store := &fakeStore{affected: func(batch []person.Person) int64 {
		seen := map[string]bool{}
		for _, p := range batch {
			seen[p.PersonID] = true
		}
		return int64(len(seen))
	}}
	svc := newTestService(t, q, store, testRelayConfig())

	res, err := svc.DrainAndInsert(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, res.Parsed)
	assert.Equal(t, 2, res.Inserted)
	assert.LessOrEqual(t, res.Inserted, res.Parsed)
}

func TestDrainAndInsert_DrainsAcrossReceiveCalls(t *testing.T) {
	q := broker.NewMemoryQueue()
	enqueuePeople(q, 1, 2, 3, 4, 5)

	cfg := testRelayConfig()
	cfg.MaxMessages = 2
	store := &fakeStore{}
	svc := newTestService(t, q, store, cfg)

	res, err := svc.DrainAndInsert(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 5, res.Received)
	assert.Equal(t, 1, store.calls())
	assert.Len(t, store.batches[0], 5)
}

func TestDrainAndInsert_CallerCancellationDoesNotStrandAcks(t *testing.T) {
	q := broker.NewMemoryQueue()
	enqueuePeople(q, 1, 2, 3)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	receives := 0
	q.OnReceive(func() error {
		receives++
		if receives == 2 {
			cancel()
		}
		return nil
	})

	store := &fakeStore{}
	svc := newTestService(t, q, store, testRelayConfig())

	res, err := svc.DrainAndInsert(ctx)

	require.NoError(t, err)
	assert.Equal(t, 3, q.Completed())
	require.Equal(t, 1, store.calls())
	assert.Len(t, store.batches[0], 3)
	assert.Equal(t, 3, res.Inserted)
}

func TestDrainAndInsert_SkipsRecordsTheTableCannotHold(t *testing.T) {
	q := broker.NewMemoryQueue()
	enqueuePeople(q, 1)
	q.Enqueue([]byte(`{"PersonID":"` + strings.Repeat("x", person.MaxFieldLength+1) + `"}`))
	q.Enqueue([]byte(`{"PersonID":"nul\u0000id"}`))
	enqueuePeople(q, 2)

	store := &fakeStore{}
	svc := newTestService(t, q, store, testRelayConfig())

	res, err := svc.DrainAndInsert(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Result{Received: 4, Parsed: 2, Skipped: 2, Inserted: 2}, res)
	require.Equal(t, 1, store.calls())
	assert.Equal(t, "1", store.batches[0][0].PersonID)
	assert.Equal(t, "2", store.batches[0][1].PersonID)
}

func TestDrainAndInsert_StoreErrorKeepsAcks(t *testing.T) {
	q := broker.NewMemoryQueue()
	enqueuePeople(q, 1, 2)

	store := &fakeStore{err: stderrors.New("login failed")}
	svc := newTestService(t, q, store, testRelayConfig())

	res, err := svc.DrainAndInsert(context.Background())

	assert.ErrorIs(t, err, errors.ErrStore)
	assert.Equal(t, 2, res.Received)
	assert.Zero(t, res.Inserted)
	assert.Equal(t, 2, q.Completed())
	assert.Zero(t, q.Len())
}

func TestDrainAndInsert_AfterCommitAbandonsOnStoreError(t *testing.T) {
	q := broker.NewMemoryQueue()
	enqueuePeople(q, 1, 2)

	cfg := testRelayConfig()
	cfg.AckMode = constants.AckAfterCommit
	store := &fakeStore{err: stderrors.New("deadlock")}
	svc := newTestService(t, q, store, cfg)

	_, err := svc.DrainAndInsert(context.Background())

	assert.ErrorIs(t, err, errors.ErrStore)
	assert.Zero(t, q.Completed())
	assert.Equal(t, 2, q.Len())
}

func TestDrainAndInsert_AfterCommitCompletesAfterInsert(t *testing.T) {
	q := broker.NewMemoryQueue()
	enqueuePeople(q, 1, 2)
	q.Enqueue([]byte(`{}`))

	cfg := testRelayConfig()
	cfg.AckMode = constants.AckAfterCommit
	store := &fakeStore{}
	svc := newTestService(t, q, store, cfg)

	res, err := svc.DrainAndInsert(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 3, q.Completed())
	assert.Zero(t, q.InFlight())
}

func TestDrainAndInsert_QueueError(t *testing.T) {
	q := broker.NewMemoryQueue()
	q.OnReceive(func() error { return stderrors.New("unauthorized") })

	store := &fakeStore{}
	svc := newTestService(t, q, store, testRelayConfig())

	_, err := svc.DrainAndInsert(context.Background())

	assert.ErrorIs(t, err, errors.ErrQueue)
	assert.ErrorContains(t, err, "unauthorized")
	assert.Zero(t, store.calls())
}

func TestDrainAndInsert_Filter(t *testing.T) {
	q := broker.NewMemoryQueue()
	enqueuePeople(q, 1, 2)
	q.Enqueue([]byte(`{"PersonID":"3","Email":null}`))

	cfg := testRelayConfig()
	cfg.FilterExpression = `record.Email != null && record.PersonID != "2"`
	store := &fakeStore{}
	svc := newTestService(t, q, store, cfg)

	res, err := svc.DrainAndInsert(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Result{Received: 3, Parsed: 3, Filtered: 2, Inserted: 1}, res)
	assert.Equal(t, "1", store.batches[0][0].PersonID)
}

func TestNewService_LogsFilterExpression(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	cfg := testRelayConfig()
	cfg.FilterExpression = `record.PersonID != ""`

	_, err := NewService(broker.NewMemoryQueue(), &fakeStore{}, cfg, &logger.SugaredLogger{SugaredLogger: zap.New(core).Sugar()})
	require.NoError(t, err)

	entries := logs.FilterMessage("Record filter enabled").All()
	require.Len(t, entries, 1)
	assert.Equal(t, `record.PersonID != ""`, entries[0].ContextMap()["expression"])
}

func TestNewService_RejectsBadConfig(t *testing.T) {
	q := broker.NewMemoryQueue()

	cfg := testRelayConfig()
	cfg.FilterExpression = `record.PersonID +`
	_, err := NewService(q, &fakeStore{}, cfg, logger.NopLogger())
	assert.Error(t, err)

	cfg = testRelayConfig()
	cfg.AckMode = "whenever"
	_, err = NewService(q, &fakeStore{}, cfg, logger.NopLogger())
	assert.Error(t, err)
}

func TestDrainAndInsert_LockConflict(t *testing.T) {
	q := broker.NewMemoryQueue()
	enqueuePeople(q, 1)

	locker := &fakeLocker{err: errors.ErrConflict.WithMessage("a drain is already in progress")}
	store := &fakeStore{}
	svc := newTestService(t, q, store, testRelayConfig(), WithLocker(locker))

	_, err := svc.DrainAndInsert(context.Background())

	assert.ErrorIs(t, err, errors.ErrConflict)
	assert.Equal(t, 1, q.Len())
	assert.Zero(t, store.calls())
}

func TestDrainAndInsert_LockReleasedAndAudited(t *testing.T) {
	q := broker.NewMemoryQueue()
	enqueuePeople(q, 1)

	locker := &fakeLocker{}
	audit := &fakeAudit{}
	svc := newTestService(t, q, &fakeStore{}, testRelayConfig(), WithLocker(locker), WithAuditSink(audit))

	_, err := svc.DrainAndInsert(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, locker.released)
	require.Len(t, audit.records, 1)
	assert.Equal(t, "success", audit.records[0].Status)
	assert.Equal(t, 1, audit.records[0].Result.Inserted)
	assert.NotEmpty(t, audit.records[0].CycleID)
}

func TestDrainAndInsert_Concurrent(t *testing.T) {
	q := broker.NewMemoryQueue()
	for i := 0; i < 200; i++ {
		enqueuePeople(q, i)
	}

	store := &fakeStore{}
	svc := newTestService(t, q, store, testRelayConfig())

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.DrainAndInsert(context.Background())
			assert.NoError(t, err)
			mu.Lock()
			total += res.Inserted
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 200, total)
	assert.Equal(t, 200, q.Completed())
}
