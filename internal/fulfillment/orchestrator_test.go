package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/imrishuroy/leadflow/internal/actor"
	"github.com/imrishuroy/leadflow/internal/idempotency"
	"github.com/imrishuroy/leadflow/internal/metacodec"
	"github.com/imrishuroy/leadflow/internal/notify"
	"github.com/imrishuroy/leadflow/internal/orders"
	"github.com/stretchr/testify/require"
)

type memOrders struct {
	mu      sync.Mutex
	items   map[string]orders.PendingOrder
	getErr  error
	deletes int
}

func newMemOrders(list ...orders.PendingOrder) *memOrders {
	m := &memOrders{items: map[string]orders.PendingOrder{}}
	for _, o := range list {
		m.items[o.SessionID] = o
	}
	return m
}

func (m *memOrders) Get(ctx context.Context, id string) (*orders.PendingOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	o, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (m *memOrders) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	delete(m.items, id)
	return nil
}

type memLedger struct {
	mu       sync.Mutex
	status   map[string]string
	notes    map[string]string
	claimErr error
}

func newMemLedger() *memLedger {
	return &memLedger{status: map[string]string{}, notes: map[string]string{}}
}

func (l *memLedger) IsProcessed(ctx context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status[id] == idempotency.StatusDone, nil
}

func (l *memLedger) Claim(ctx context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.claimErr != nil {
		return false, l.claimErr
	}
	switch l.status[id] {
	case "", idempotency.StatusFailed:
		l.status[id] = idempotency.StatusInProgress
		return true, nil
	}
	return false, nil
}

func (l *memLedger) Release(ctx context.Context, id, note string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.status[id] == idempotency.StatusInProgress {
		l.status[id] = idempotency.StatusFailed
		l.notes[id] = note
	}
	return nil
}

func (l *memLedger) MarkProcessed(ctx context.Context, id, runID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status[id] = idempotency.StatusDone
	return nil
}

type fakeTrigger struct {
	mu    sync.Mutex
	calls []actor.RunInput
	err   error
	delay time.Duration
}

func (f *fakeTrigger) Start(ctx context.Context, in actor.RunInput) (string, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, in)
	if f.err != nil {
		return "", f.err
	}
	return "run_1", nil
}

func (f *fakeTrigger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
	err  error
}

func (f *fakeNotifier) Notify(ctx context.Context, msg notify.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return f.err
}

type fakeRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (f *fakeRecorder) Record(ctx context.Context, outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, outcome)
}

func stagedOrder(id string) orders.PendingOrder {
	return orders.PendingOrder{
		SessionID:               id,
		DestinationURL:          "https://app.apollo.io/#/people?personTitles[]=cto",
		ContactAddress:          "buyer@example.com",
		RequestedVolume:         2000,
		OutputCleaningRequested: true,
		CreatedAt:               time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

var alnum = regexp.MustCompile(`^[a-z0-9]+$`)

func TestProcess_StagedOrder(t *testing.T) {
	store := newMemOrders(stagedOrder("cs_1"))
	ledger := newMemLedger()
	trig := &fakeTrigger{}
	notif := &fakeNotifier{}
	rec := &fakeRecorder{}
	o := New(store, ledger, trig, notif, rec, Options{FileNameLength: 12})

	res, err := o.Process(context.Background(), Event{SessionID: "cs_1"})
	require.NoError(t, err)
	require.Equal(t, StateFinalized, res.State)
	require.Equal(t, "run_1", res.RunID)
	require.Len(t, res.FileName, 12)
	require.Regexp(t, alnum, res.FileName)

	require.Len(t, trig.calls, 1)
	in := trig.calls[0]
	require.Equal(t, "https://app.apollo.io/#/people?personTitles[]=cto", in.URL)
	require.Equal(t, 2000, in.TotalRecords)
	require.Equal(t, "buyer@example.com", in.Email)
	require.True(t, in.CleanOutput)
	require.Equal(t, res.FileName, in.FileName)

	require.Len(t, notif.msgs, 1)
	require.Equal(t, notify.KindFulfilled, notif.msgs[0].Kind)
	require.Equal(t, res.FileName, notif.msgs[0].FileName)

	done, _ := ledger.IsProcessed(context.Background(), "cs_1")
	require.True(t, done)
	got, _ := store.Get(context.Background(), "cs_1")
	require.Nil(t, got)
	require.Equal(t, []string{string(StateFinalized)}, rec.outcomes)
}

func TestProcess_AlreadyProcessedIsNoop(t *testing.T) {
	store := newMemOrders(stagedOrder("cs_2"))
	ledger := newMemLedger()
	require.NoError(t, ledger.MarkProcessed(context.Background(), "cs_2", "run_0"))
	trig := &fakeTrigger{}
	notif := &fakeNotifier{}
	o := New(store, ledger, trig, notif, nil, Options{})

	res, err := o.Process(context.Background(), Event{SessionID: "cs_2"})
	require.NoError(t, err)
	require.Equal(t, StateDeduplicated, res.State)
	require.Zero(t, trig.count())
	require.Empty(t, notif.msgs)
	require.Zero(t, store.deletes)
}

func TestProcess_MetadataFallbackUsesFullURL(t *testing.T) {
	longURL := "https://app.apollo.io/#/people?" + strings.Repeat("organizationIndustryTagIds[]=5567cd4773696439b10b0000&", 40)
	md := EncodeMetadata(orders.PendingOrder{
		DestinationURL:  longURL,
		ContactAddress:  "buyer@example.com",
		RequestedVolume: 750,
	}, 500)
	for _, v := range md {
		require.LessOrEqual(t, len(v), 500)
	}

	trig := &fakeTrigger{}
	o := New(newMemOrders(), newMemLedger(), trig, nil, nil, Options{})
	res, err := o.Process(context.Background(), Event{SessionID: "cs_3", Metadata: md})
	require.NoError(t, err)
	require.Equal(t, StateFinalized, res.State)
	require.Len(t, trig.calls, 1)
	require.Equal(t, longURL, trig.calls[0].URL)
	require.Equal(t, 750, trig.calls[0].TotalRecords)
	require.False(t, trig.calls[0].CleanOutput)
}

func TestProcess_MetadataMissingChunkUsesTruncatedCopy(t *testing.T) {
	longURL := "https://app.apollo.io/#/people?q=" + strings.Repeat("x", 1200)
	md := EncodeMetadata(orders.PendingOrder{
		DestinationURL:  longURL,
		ContactAddress:  "buyer@example.com",
		RequestedVolume: 500,
	}, 500)
	delete(md, MetaURL+"_1")

	trig := &fakeTrigger{}
	o := New(newMemOrders(), newMemLedger(), trig, nil, nil, Options{})
	_, err := o.Process(context.Background(), Event{SessionID: "cs_4", Metadata: md})
	require.NoError(t, err)
	require.Len(t, trig.calls, 1)
	require.LessOrEqual(t, len(trig.calls[0].URL), 500)
	require.True(t, strings.HasSuffix(trig.calls[0].URL, "..."))
}

func TestProcess_CorruptChunkCountUsesTruncatedCopy(t *testing.T) {
	dir := t.TempDir()
	ledger, err := idempotency.NewDiskStore(dir+"/ledger", 10*time.Minute)
	require.NoError(t, err)

	for i, count := range []string{"-1", "999999999999"} {
		id := fmt.Sprintf("cs_chunks_%d", i)
		md := map[string]string{
			MetaURL:                     "https://app.apollo.io/#/people?q=cto",
			metacodec.CountKey(MetaURL): count,
			MetaLeads:                   "600",
			MetaEmail:                   "buyer@example.com",
		}
		trig := &fakeTrigger{}
		o := New(newMemOrders(), ledger, trig, nil, nil, Options{})

		res, err := o.Process(context.Background(), Event{SessionID: id, Metadata: md})
		require.NoError(t, err)
		require.Equal(t, StateFinalized, res.State)
		require.Len(t, trig.calls, 1)
		require.Equal(t, "https://app.apollo.io/#/people?q=cto", trig.calls[0].URL)

		rec, err := ledger.Get(context.Background(), id)
		require.NoError(t, err)
		require.Equal(t, idempotency.StatusDone, rec.Status)
	}
}

func TestProcess_RecoveryFailureAcksWithoutTrigger(t *testing.T) {
	md := map[string]string{MetaEmail: "buyer@example.com"}
	metacodec.Put(md, MetaURL, "https://app.apollo.io/#/people", 500)

	ledger := newMemLedger()
	trig := &fakeTrigger{}
	notif := &fakeNotifier{}
	rec := &fakeRecorder{}
	o := New(newMemOrders(), ledger, trig, notif, rec, Options{})

	res, err := o.Process(context.Background(), Event{SessionID: "cs_5", Metadata: md})
	require.NoError(t, err)
	require.Equal(t, StateErrored, res.State)
	require.Zero(t, trig.count())
	require.Len(t, notif.msgs, 1)
	require.Equal(t, notify.KindFailed, notif.msgs[0].Kind)
	require.Contains(t, notif.msgs[0].Reason, "lead count")
	require.Equal(t, idempotency.StatusFailed, ledger.status["cs_5"])
	require.Equal(t, []string{string(StateErrored)}, rec.outcomes)
}

func TestProcess_ContactFallback(t *testing.T) {
	md := EncodeMetadata(orders.PendingOrder{
		DestinationURL:  "https://app.apollo.io/#/people",
		RequestedVolume: 600,
	}, 500)
	trig := &fakeTrigger{}
	o := New(newMemOrders(), newMemLedger(), trig, nil, nil, Options{})

	_, err := o.Process(context.Background(), Event{SessionID: "cs_6", Metadata: md, ContactFallback: "payer@example.com"})
	require.NoError(t, err)
	require.Len(t, trig.calls, 1)
	require.Equal(t, "payer@example.com", trig.calls[0].Email)
}

func TestProcess_TriggerFailureReleasesClaim(t *testing.T) {
	store := newMemOrders(stagedOrder("cs_7"))
	ledger := newMemLedger()
	trig := &fakeTrigger{err: errors.New("503 from actor platform")}
	notif := &fakeNotifier{}
	o := New(store, ledger, trig, notif, nil, Options{})

	res, err := o.Process(context.Background(), Event{SessionID: "cs_7"})
	require.ErrorIs(t, err, ErrJobTrigger)
	require.Equal(t, StateErrored, res.State)
	require.Empty(t, notif.msgs)
	require.Zero(t, store.deletes)
	require.Equal(t, idempotency.StatusFailed, ledger.status["cs_7"])
	require.Contains(t, ledger.notes["cs_7"], "503")

	// redelivery retries
	trig.err = nil
	res, err = o.Process(context.Background(), Event{SessionID: "cs_7"})
	require.NoError(t, err)
	require.Equal(t, StateFinalized, res.State)
	require.Equal(t, 2, trig.count())
}

func TestProcess_NotificationFailureIsNonFatal(t *testing.T) {
	ledger := newMemLedger()
	notif := &fakeNotifier{err: errors.New("connection refused")}
	o := New(newMemOrders(stagedOrder("cs_8")), ledger, &fakeTrigger{}, notif, nil, Options{})

	res, err := o.Process(context.Background(), Event{SessionID: "cs_8"})
	require.NoError(t, err)
	require.Equal(t, StateFinalized, res.State)
	done, _ := ledger.IsProcessed(context.Background(), "cs_8")
	require.True(t, done)
}

func TestProcess_StorageErrors(t *testing.T) {
	store := newMemOrders()
	store.getErr = errors.New("disk I/O error")
	ledger := newMemLedger()
	trig := &fakeTrigger{}
	o := New(store, ledger, trig, nil, nil, Options{})

	_, err := o.Process(context.Background(), Event{SessionID: "cs_9"})
	require.ErrorIs(t, err, ErrStorage)
	require.Zero(t, trig.count())
	require.Equal(t, idempotency.StatusFailed, ledger.status["cs_9"])

	ledger.claimErr = errors.New("throttled")
	_, err = o.Process(context.Background(), Event{SessionID: "cs_10"})
	require.ErrorIs(t, err, ErrStorage)
}

func TestProcess_ConcurrentDeliveriesTriggerOnce(t *testing.T) {
	dir := t.TempDir()
	store, err := orders.NewDiskStore(dir+"/orders", time.Hour)
	require.NoError(t, err)
	ledger, err := idempotency.NewDiskStore(dir+"/ledger", 10*time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), stagedOrder("cs_race")))

	trig := &fakeTrigger{delay: 10 * time.Millisecond}
	o := New(store, ledger, trig, nil, nil, Options{})

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.Process(context.Background(), Event{SessionID: "cs_race"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 1, trig.count())
	done, err := ledger.IsProcessed(context.Background(), "cs_race")
	require.NoError(t, err)
	require.True(t, done)
}

func TestNewFileName(t *testing.T) {
	seen := map[string]bool{}
	for _, n := range []int{1, 12, 32, 40, 100} {
		name := NewFileName(n)
		require.Len(t, name, n)
		require.Regexp(t, alnum, name)
		require.False(t, seen[name])
		seen[name] = true
	}
	require.Empty(t, NewFileName(0))
}
