package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mmdatafocus/shopdash_backend/models"
	"github.com/mmdatafocus/shopdash_backend/utils"
)

// countingFetcher returns "v<n>" for its n-th call; the first call blocks until release is closed.
type countingFetcher struct {
	calls   atomic.Int32
	release chan struct{}
	fail    atomic.Bool
}

func newCountingFetcher(blockFirst bool) *countingFetcher {
	f := &countingFetcher{release: make(chan struct{})}
	if !blockFirst {
		close(f.release)
	}
	return f
}

func (f *countingFetcher) fetch(ctx context.Context) (any, error) {
	n := f.calls.Add(1)
	if n == 1 {
		<-f.release
	}
	if f.fail.Load() {
		return nil, errors.New("backend unavailable")
	}
	return "v" + string(rune('0'+n)), nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

var salesKey = ListKey(models.ResourceSales, models.QueryOptions{SortColumn: "id", SortOrder: models.SortAsc})

func TestGetSharesOneInFlightFetch(t *testing.T) {
	c := New()
	f := newCountingFetcher(true)

	var wg sync.WaitGroup
	results := make([]Entry, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0] = c.Get(context.Background(), salesKey, f.fetch)
	}()
	waitFor(t, func() bool { return f.calls.Load() == 1 })
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1] = c.Get(context.Background(), salesKey, f.fetch)
	}()
	time.Sleep(50 * time.Millisecond)
	close(f.release)
	wg.Wait()

	if n := f.calls.Load(); n != 1 {
		t.Fatalf("backend called %d times, want 1", n)
	}
	if results[0].Data != "v1" || results[1].Data != "v1" {
		t.Fatalf("subscribers saw %v and %v", results[0].Data, results[1].Data)
	}

	again := c.Get(context.Background(), salesKey, f.fetch)
	if again.Data != "v1" || f.calls.Load() != 1 {
		t.Fatalf("a fresh entry must be served without a new fetch")
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	c := New()
	f := newCountingFetcher(false)
	key := DetailKey(models.ResourceSales, "1041")

	c.Get(context.Background(), key, f.fetch)
	c.Invalidate(context.Background(), key)
	got := c.Get(context.Background(), key, f.fetch)

	if f.calls.Load() != 2 || got.Data != "v2" {
		t.Fatalf("after invalidation got %v with %d calls", got.Data, f.calls.Load())
	}
}

func TestInvalidateDuringFetch(t *testing.T) {
	c := New()
	f := newCountingFetcher(true)
	key := DetailKey(models.ResourceSales, "1041")

	done := make(chan Entry)
	go func() { done <- c.Get(context.Background(), key, f.fetch) }()
	waitFor(t, func() bool { return f.calls.Load() == 1 })

	c.Invalidate(context.Background(), key)

	// a read issued after the invalidation must not join the older flight
	fresh := c.Get(context.Background(), key, f.fetch)
	if fresh.Data != "v2" {
		t.Fatalf("post-invalidation read = %v, want v2", fresh.Data)
	}

	close(f.release)
	if old := <-done; old.Data != "v1" {
		t.Fatalf("the older flight resolves with its own value, got %v", old.Data)
	}

	// the older result resolved last but must not replace the newer one
	if peek := c.Peek(key); peek.Data != "v2" {
		t.Fatalf("older fetch overwrote the newer one: %v", peek.Data)
	}
	if got := c.Get(context.Background(), key, f.fetch); got.Data != "v2" || f.calls.Load() != 2 {
		t.Fatalf("got %v after %d calls", got.Data, f.calls.Load())
	}
}

func TestInvalidateResourceAndLists(t *testing.T) {
	c := New()
	f := newCountingFetcher(false)
	list := salesKey
	detail := DetailKey(models.ResourceSales, "1")
	other := ListKey(models.ResourceProducts, models.QueryOptions{})
	for _, k := range []Key{list, detail, other} {
		c.Get(context.Background(), k, f.fetch)
	}

	c.InvalidateLists(context.Background(), models.ResourceSales)
	c.Get(context.Background(), detail, f.fetch)
	c.Get(context.Background(), other, f.fetch)
	if f.calls.Load() != 3 {
		t.Fatalf("list invalidation touched other keys: %d calls", f.calls.Load())
	}
	c.Get(context.Background(), list, f.fetch)
	if f.calls.Load() != 4 {
		t.Fatalf("list key was not invalidated")
	}

	c.InvalidateResource(context.Background(), models.ResourceSales)
	c.Get(context.Background(), list, f.fetch)
	c.Get(context.Background(), detail, f.fetch)
	c.Get(context.Background(), other, f.fetch)
	if f.calls.Load() != 6 {
		t.Fatalf("resource invalidation: %d calls, want 6", f.calls.Load())
	}
}

func TestErrorsAreNotCached(t *testing.T) {
	c := New()
	f := newCountingFetcher(false)
	f.fail.Store(true)

	first := c.Get(context.Background(), salesKey, f.fetch)
	if first.Err == nil || first.Data != nil {
		t.Fatalf("want an error and no data, got %+v", first)
	}

	f.fail.Store(false)
	second := c.Get(context.Background(), salesKey, f.fetch)
	if second.Err != nil || second.Data != "v2" || f.calls.Load() != 2 {
		t.Fatalf("failed entry was served from cache: %+v", second)
	}
}

func TestNullKeyNeverFetches(t *testing.T) {
	c := New()
	f := newCountingFetcher(false)
	e := c.Get(context.Background(), NullKey, f.fetch)
	if e.Data != nil || e.Err != nil || e.Loading {
		t.Fatalf("null key entry = %+v", e)
	}
	if DetailKey(models.ResourceSales, "  ") != NullKey {
		t.Fatalf("missing id must give the null key")
	}
	sub := c.Subscribe(context.Background(), NullKey, f.fetch)
	sub.Close()
	if f.calls.Load() != 0 {
		t.Fatalf("null key fetched %d times", f.calls.Load())
	}
}

func TestEntriesExpireAfterInterval(t *testing.T) {
	now := time.Date(2026, 2, 23, 10, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	c := New(WithClock(clock))
	f := newCountingFetcher(false)

	c.Get(context.Background(), salesKey, f.fetch)
	mu.Lock()
	now = now.Add(59 * time.Second)
	mu.Unlock()
	c.Get(context.Background(), salesKey, f.fetch)
	if f.calls.Load() != 1 {
		t.Fatalf("refetched inside the revalidation window")
	}

	mu.Lock()
	now = now.Add(2 * time.Second)
	mu.Unlock()
	c.Get(context.Background(), salesKey, f.fetch)
	if f.calls.Load() != 2 {
		t.Fatalf("entry older than the interval was served")
	}
}

func TestSubscriptionRefreshesUntilClosed(t *testing.T) {
	c := New(WithRefreshInterval(20 * time.Millisecond))
	f := newCountingFetcher(false)

	sub := c.Subscribe(context.Background(), salesKey, f.fetch)
	other := c.Subscribe(context.Background(), salesKey, f.fetch)
	c.Get(context.Background(), salesKey, f.fetch)

	select {
	case e := <-sub.Updates():
		if e.Data == nil {
			t.Fatalf("update without data")
		}
	case <-time.After(time.Second):
		t.Fatalf("no update delivered")
	}
	waitFor(t, func() bool { return f.calls.Load() >= 3 })

	sub.Close()
	waitFor(t, func() bool { return f.calls.Load() >= 4 })
	other.Close()
	time.Sleep(30 * time.Millisecond)
	settled := f.calls.Load()
	time.Sleep(100 * time.Millisecond)
	if f.calls.Load() != settled {
		t.Fatalf("refresh continued after the last subscription closed")
	}
}

func TestListKeyEquality(t *testing.T) {
	a := ListKey(models.ResourceSales, models.QueryOptions{Page: utils.NewInt(2), PageSize: utils.NewInt(10), FilterColumn: "customer_name", FilterValue: "ana"})
	b := ListKey(models.ResourceSales, models.QueryOptions{Page: utils.NewInt(2), PageSize: utils.NewInt(10), FilterColumn: "customer_name", FilterValue: "ana"})
	if a != b {
		t.Fatalf("equal options produced different keys: %v / %v", a, b)
	}
	c := ListKey(models.ResourceSales, models.QueryOptions{Page: utils.NewInt(3), PageSize: utils.NewInt(10), FilterColumn: "customer_name", FilterValue: "ana"})
	if a == c {
		t.Fatalf("different pages share a key")
	}
	if ListKey(models.ResourcePurchases, models.QueryOptions{}) == ListKey(models.ResourceSales, models.QueryOptions{}) {
		t.Fatalf("different resources share a key")
	}
	if DetailKey(models.ResourceSales, "7").String() != "sales:detail:7" {
		t.Fatalf("detail key string = %q", DetailKey(models.ResourceSales, "7").String())
	}
}

// memoryMirror follows the epoch rules of RedisMirror in process.
type memoryMirror struct {
	mu     sync.Mutex
	values map[Key]mirrorRecord
	epochs map[string]int64
	loads  int
}

func newMemoryMirror() *memoryMirror {
	return &memoryMirror{values: make(map[Key]mirrorRecord), epochs: make(map[string]int64)}
}

func (m *memoryMirror) Load(ctx context.Context, key Key, dest any) (bool, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	epoch := m.epochs[key.Resource]
	rec, ok := m.values[key]
	if !ok || rec.Epoch != epoch {
		return false, epoch, nil
	}
	return true, epoch, json.Unmarshal(rec.Data, dest)
}

func (m *memoryMirror) Store(ctx context.Context, key Key, value any, epoch int64, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epochs[key.Resource] != epoch {
		return nil
	}
	m.values[key] = mirrorRecord{Epoch: epoch, Data: b}
	return nil
}

func (m *memoryMirror) Invalidate(ctx context.Context, inv Invalidation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range inv.TouchedResources() {
		m.epochs[r]++
	}
	for k := range m.values {
		if inv.Matches(k) {
			delete(m.values, k)
		}
	}
	return nil
}

// putStale plants a copy that ignores the epoch check, as a Store racing an invalidation would.
func (m *memoryMirror) putStale(key Key, value any, epoch int64) {
	b, _ := json.Marshal(value)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = mirrorRecord{Epoch: epoch, Data: b}
}

type page struct {
	Rows  []string `json:"rows"`
	Count int      `json:"count"`
}

func TestFetchReadsThroughMirror(t *testing.T) {
	mirror := newMemoryMirror()
	first := New(WithMirror(mirror, time.Minute))
	second := New(WithMirror(mirror, time.Minute))

	var calls atomic.Int32
	fn := func(ctx context.Context) (*page, error) {
		calls.Add(1)
		return &page{Rows: []string{"a", "b"}, Count: 2}, nil
	}

	r := Fetch(context.Background(), first, salesKey, fn)
	if r.Err != nil || r.Data == nil || r.Data.Count != 2 {
		t.Fatalf("first fetch = %+v", r)
	}
	r = Fetch(context.Background(), second, salesKey, fn)
	if r.Data == nil || len(r.Data.Rows) != 2 || calls.Load() != 1 {
		t.Fatalf("second instance should read the mirror: %+v after %d calls", r, calls.Load())
	}

	first.Invalidate(context.Background(), salesKey)
	second.Invalidate(context.Background(), salesKey)
	Fetch(context.Background(), second, salesKey, fn)
	if calls.Load() != 2 {
		t.Fatalf("invalidation must also clear the mirror")
	}
}

type brokenMirror struct{}

func (brokenMirror) Load(context.Context, Key, any) (bool, int64, error) {
	return false, 0, errors.New("redis down")
}
func (brokenMirror) Store(context.Context, Key, any, int64, time.Duration) error {
	return errors.New("redis down")
}
func (brokenMirror) Invalidate(context.Context, Invalidation) error { return errors.New("redis down") }

func TestMirrorFailureNeverFailsARead(t *testing.T) {
	c := New(WithMirror(brokenMirror{}, time.Minute))
	r := Fetch(context.Background(), c, salesKey, func(ctx context.Context) (string, error) { return "ok", nil })
	if r.Err != nil || r.Data != "ok" {
		t.Fatalf("read failed with a broken mirror: %+v", r)
	}
	c.Invalidate(context.Background(), salesKey)
	r = Fetch(context.Background(), c, salesKey, func(ctx context.Context) (string, error) { return "again", nil })
	if r.Data != "again" {
		t.Fatalf("invalidation with a broken mirror: %+v", r)
	}
}

func TestRemoteInvalidationAppliesLocally(t *testing.T) {
	c := New()
	f := newCountingFetcher(false)
	c.Get(context.Background(), salesKey, f.fetch)
	c.invalidateLocal(Invalidation{Lists: []string{models.ResourceSales}})
	c.Get(context.Background(), salesKey, f.fetch)
	if f.calls.Load() != 2 {
		t.Fatalf("remote invalidation was not applied")
	}
}

// A read that started before a correction on another instance must not bring the
// pre-correction value back through the mirror.
func TestCorrectionOnAnotherInstanceIsNotUndoneByALateRead(t *testing.T) {
	mirror := newMemoryMirror()
	a := New(WithMirror(mirror, time.Minute))
	b := New(WithMirror(mirror, time.Minute))
	key := DetailKey(models.ResourceSales, "7")

	var mu sync.Mutex
	current := "pre"
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	fn := func(ctx context.Context) (string, error) {
		mu.Lock()
		v := current
		mu.Unlock()
		if calls.Add(1) == 1 {
			close(started)
			<-release
		}
		return v, nil
	}

	done := make(chan Result[string])
	go func() { done <- Fetch(context.Background(), b, key, fn) }()
	<-started

	mu.Lock()
	current = "post"
	mu.Unlock()
	inv := Invalidation{Keys: []Key{key}}
	a.Apply(context.Background(), inv)

	close(release)
	if old := <-done; old.Data != "pre" {
		t.Fatalf("the late read resolves with what it read, got %q", old.Data)
	}
	// the pub/sub message reaches b only now
	b.invalidateLocal(inv)

	before := calls.Load()
	if r := Fetch(context.Background(), a, key, fn); r.Data != "post" {
		t.Fatalf("instance a after correction = %q, want post", r.Data)
	}
	if r := Fetch(context.Background(), b, key, fn); r.Data != "post" {
		t.Fatalf("instance b after correction = %q, want post", r.Data)
	}
	if calls.Load() == before {
		t.Fatalf("no read reached the backend after the correction")
	}
}

func TestMirroredCopyFromAnOlderEpochIsRefused(t *testing.T) {
	mirror := newMemoryMirror()
	c := New(WithMirror(mirror, time.Minute))
	c.Apply(context.Background(), Invalidation{Resources: []string{models.ResourceSales}})
	mirror.putStale(salesKey, "pre", 0)

	r := Fetch(context.Background(), c, salesKey, func(ctx context.Context) (string, error) { return "post", nil })
	if r.Data != "post" {
		t.Fatalf("copy from epoch 0 was served: %q", r.Data)
	}
}

func TestLocalInvalidationSkipsTheMirror(t *testing.T) {
	mirror := newMemoryMirror()
	c := New(WithMirror(mirror, time.Minute))
	var calls atomic.Int32
	fn := func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "backend", nil
	}
	Fetch(context.Background(), c, salesKey, fn)

	// only the local entry is invalidated; the mirrored copy is still current
	c.invalidateLocal(Invalidation{Keys: []Key{salesKey}})
	Fetch(context.Background(), c, salesKey, fn)
	if calls.Load() != 2 {
		t.Fatalf("invalidated key was answered from the mirror after %d calls", calls.Load())
	}

	// once refetched, the mirror serves again
	other := New(WithMirror(mirror, time.Minute))
	Fetch(context.Background(), other, salesKey, fn)
	if calls.Load() != 2 {
		t.Fatalf("fresh mirrored copy was not reused")
	}
}
