package registry

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/termcache/termcache/internal/cache"
	"github.com/termcache/termcache/internal/terminology"
)

const termsDocument = `<odML version="1">
  <section><name>Subject</name><type>subject</type></section>
  <section><name>Cell</name><type>cell</type></section>
</odML>`

func TestConcurrentLoadsFetchOnce(t *testing.T) {
	fetcher := newGatedFetcher([]byte(termsDocument), nil)
	reg, _ := newTestRegistry(t, fetcher)
	id := "https://example.org/terms.xml"

	const callers = 16
	results := make([]*terminology.Terminology, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = reg.Load(context.Background(), id)
		}(i)
	}

	fetcher.waitStarted(t)
	close(fetcher.release)
	wg.Wait()

	if got := fetcher.calls.Load(); got != 1 {
		t.Fatalf("expected exactly one fetch, got %d", got)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: unexpected error %v", i, errs[i])
		}
		if results[i] != results[0] {
			t.Fatalf("caller %d observed a different terminology value", i)
		}
	}
}

func TestConcurrentMixedLoadsFetchOnce(t *testing.T) {
	fetcher := newGatedFetcher([]byte(termsDocument), nil)
	reg, _ := newTestRegistry(t, fetcher)
	id := "https://example.org/terms.xml"

	reg.DeferredLoad(id)
	fetcher.waitStarted(t)

	var wg sync.WaitGroup
	results := make(chan *terminology.Terminology, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reg.DeferredLoad(id)
			term, err := reg.Load(context.Background(), id)
			if err != nil {
				t.Errorf("unexpected error %v", err)
			}
			results <- term
		}()
	}
	close(fetcher.release)
	wg.Wait()
	close(results)

	var first *terminology.Terminology
	for term := range results {
		if first == nil {
			first = term
		}
		if term != first {
			t.Fatalf("callers observed different values")
		}
	}
	if got := fetcher.calls.Load(); got != 1 {
		t.Fatalf("expected exactly one fetch, got %d", got)
	}
}

func TestConcurrentFailuresConverge(t *testing.T) {
	fetcher := newGatedFetcher(nil, errors.New("connection refused"))
	reg, _ := newTestRegistry(t, fetcher)
	id := "https://example.org/down.xml"

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = reg.Load(context.Background(), id)
		}(i)
	}
	fetcher.waitStarted(t)
	close(fetcher.release)
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, ErrUnavailable) {
			t.Fatalf("caller %d: expected ErrUnavailable, got %v", i, err)
		}
	}
	if got := fetcher.calls.Load(); got != 1 {
		t.Fatalf("expected exactly one fetch, got %d", got)
	}
}

func TestDeferredLoadIsIdempotent(t *testing.T) {
	fetcher := newGatedFetcher([]byte(termsDocument), nil)
	reg, _ := newTestRegistry(t, fetcher)
	id := "https://example.org/terms.xml"

	reg.DeferredLoad(id)
	reg.DeferredLoad(id)
	fetcher.waitStarted(t)
	if state := reg.State(id); state != StateInFlight {
		t.Fatalf("expected in-flight state, got %s", state)
	}
	reg.DeferredLoad(id)
	close(fetcher.release)

	term, err := reg.Load(context.Background(), id)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	reg.DeferredLoad(id)
	if again, _ := reg.Load(context.Background(), id); again != term {
		t.Fatalf("completed entry must not be reloaded")
	}
	if got := fetcher.calls.Load(); got != 1 {
		t.Fatalf("expected one background fetch, got %d", got)
	}
	if state := reg.State(id); state != StateLoaded {
		t.Fatalf("expected loaded state, got %s", state)
	}
}

func TestDeferredLoadDoesNotBlock(t *testing.T) {
	fetcher := newGatedFetcher([]byte(termsDocument), nil)
	reg, _ := newTestRegistry(t, fetcher)
	id := "https://example.org/terms.xml"

	done := make(chan struct{})
	go func() {
		reg.DeferredLoad(id)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("DeferredLoad blocked on the fetch")
	}

	close(fetcher.release)
	if _, err := reg.Load(context.Background(), id); err != nil {
		t.Fatalf("load error: %v", err)
	}
}

func TestParseFailureIsIsolated(t *testing.T) {
	var calls atomic.Int32
	fetcher := cache.FetcherFunc(func(_ context.Context, id string) ([]byte, error) {
		calls.Add(1)
		if strings.HasSuffix(id, "bad") {
			return []byte("<odML><section><name>x</name>"), nil
		}
		return []byte(termsDocument), nil
	})
	reg, _ := newTestRegistry(t, fetcher)

	if _, err := reg.Load(context.Background(), "bad"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable for bad document, got %v", err)
	}
	term, err := reg.Load(context.Background(), "https://example.org/good.xml")
	if err != nil || term == nil {
		t.Fatalf("good id must load independently: %v", err)
	}
	if _, err := reg.Load(context.Background(), "bad"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("failed state must be terminal, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("failed id must not be retried, got %d fetches", calls.Load())
	}
	if reg.State("bad") != StateFailed || reg.State("https://example.org/good.xml") != StateLoaded {
		t.Fatalf("unexpected states: %s / %s", reg.State("bad"), reg.State("https://example.org/good.xml"))
	}
}

func TestTransportFailureIsTerminal(t *testing.T) {
	var calls atomic.Int32
	fetcher := cache.FetcherFunc(func(context.Context, string) ([]byte, error) {
		calls.Add(1)
		return nil, errors.New("no route to host")
	})
	reg, _ := newTestRegistry(t, fetcher)
	id := "https://example.org/terms.xml"

	for i := 0; i < 3; i++ {
		if _, err := reg.Load(context.Background(), id); !errors.Is(err, ErrUnavailable) {
			t.Fatalf("expected ErrUnavailable, got %v", err)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("transport failure must be recorded, got %d fetches", calls.Load())
	}
}

func TestEndToEndLoadPopulatesCache(t *testing.T) {
	payload := []byte(termsDocument)
	var calls atomic.Int32
	fetcher := cache.FetcherFunc(func(context.Context, string) ([]byte, error) {
		calls.Add(1)
		return payload, nil
	})
	reg, store := newTestRegistry(t, fetcher)
	id := "https://example.org/terms.xml"

	term, err := reg.Load(context.Background(), id)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if term.Name != "terms" {
		t.Fatalf("expected terminology named terms, got %q", term.Name)
	}

	cacheFile := store.Path(id)
	if filepath.Base(cacheFile) != cache.FileName(id) {
		t.Fatalf("cache file %s does not use the computed name", cacheFile)
	}
	onDisk, err := os.ReadFile(cacheFile)
	if err != nil {
		t.Fatalf("cache file missing: %v", err)
	}
	if string(onDisk) != string(payload) {
		t.Fatalf("cache file must contain exactly the fetched bytes")
	}

	again, err := reg.Load(context.Background(), id)
	if err != nil || again != term {
		t.Fatalf("second load must return the identical value: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("second load must not fetch again, got %d", calls.Load())
	}
}

func TestLoadWaitTimeout(t *testing.T) {
	fetcher := newGatedFetcher([]byte(termsDocument), nil)
	reg, _ := newTestRegistry(t, fetcher)
	id := "https://example.org/terms.xml"

	reg.DeferredLoad(id)
	fetcher.waitStarted(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := reg.Load(ctx, id); !errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("expected ErrWaitTimeout, got %v", err)
	}

	close(fetcher.release)
	if _, err := reg.Load(context.Background(), id); err != nil {
		t.Fatalf("load after timeout should observe the background result: %v", err)
	}
	if fetcher.calls.Load() != 1 {
		t.Fatalf("timed out waiter must not start a second fetch")
	}
}

func TestConfiguredWaitTimeout(t *testing.T) {
	fetcher := newGatedFetcher([]byte(termsDocument), nil)
	store, err := cache.NewStore(filepath.Join(t.TempDir(), cache.DefaultDirName))
	if err != nil {
		t.Fatalf("store error: %v", err)
	}
	reg, err := New(Options{
		Source:      cache.New(store, fetcher, 0, nil),
		WaitTimeout: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("registry error: %v", err)
	}

	id := "https://example.org/terms.xml"
	reg.DeferredLoad(id)
	fetcher.waitStarted(t)
	if _, err := reg.Load(context.Background(), id); !errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("expected ErrWaitTimeout, got %v", err)
	}

	close(fetcher.release)
	waitSettled(t, reg, id)
}

func TestFilesystemErrorPropagates(t *testing.T) {
	fsErr := &cache.FilesystemError{Op: "mkdir", Path: "/nope", Err: os.ErrPermission}
	var calls atomic.Int32
	source := sourceFunc(func(context.Context, string) (io.ReadCloser, error) {
		calls.Add(1)
		return nil, fsErr
	})
	reg, err := New(Options{Source: source})
	if err != nil {
		t.Fatalf("registry error: %v", err)
	}

	id := "https://example.org/terms.xml"
	_, err = reg.Load(context.Background(), id)
	var got *cache.FilesystemError
	if !errors.As(err, &got) {
		t.Fatalf("expected FilesystemError, got %v", err)
	}
	if state := reg.State(id); state != StateUnrequested {
		t.Fatalf("fatal errors must not be recorded, got %s", state)
	}
	if _, err := reg.Load(context.Background(), id); err == nil {
		t.Fatalf("expected the fatal error again")
	}
	if calls.Load() != 2 {
		t.Fatalf("expected second attempt after fatal error, got %d", calls.Load())
	}
}

func TestNilParserResultIsUnavailable(t *testing.T) {
	source := sourceFunc(func(context.Context, string) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader("x")), nil
	})
	parser := terminology.ParserFunc(func(io.Reader, string) (*terminology.Terminology, error) {
		return nil, nil
	})
	reg, err := New(Options{Source: source, Parser: parser})
	if err != nil {
		t.Fatalf("registry error: %v", err)
	}
	if _, err := reg.Load(context.Background(), "x"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestSnapshot(t *testing.T) {
	fetcher := cache.FetcherFunc(func(_ context.Context, id string) ([]byte, error) {
		if strings.Contains(id, "down") {
			return nil, errors.New("down")
		}
		return []byte(termsDocument), nil
	})
	reg, _ := newTestRegistry(t, fetcher)
	_, _ = reg.Load(context.Background(), "https://b.example.org/terms.xml")
	_, _ = reg.Load(context.Background(), "https://a.example.org/down.xml")

	snapshot := reg.Snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(snapshot))
	}
	if snapshot[0].ID != "https://a.example.org/down.xml" || snapshot[0].State != StateFailed {
		t.Fatalf("unexpected first entry %+v", snapshot[0])
	}
	if snapshot[1].State != StateLoaded || snapshot[1].Name != "terms" || snapshot[1].Sections != 2 {
		t.Fatalf("unexpected second entry %+v", snapshot[1])
	}
	if reg.State("https://c.example.org/never.xml") != StateUnrequested {
		t.Fatalf("unknown id should be unrequested")
	}
}

func TestNewRequiresSource(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatalf("missing source should be rejected")
	}
	if _, err := New(Options{Source: sourceFunc(nil), WaitTimeout: -time.Second}); err == nil {
		t.Fatalf("negative wait timeout should be rejected")
	}
}

type sourceFunc func(ctx context.Context, id string) (io.ReadCloser, error)

func (f sourceFunc) FetchOrLoad(ctx context.Context, id string) (io.ReadCloser, error) {
	return f(ctx, id)
}

type gatedFetcher struct {
	calls   atomic.Int32
	started chan struct{}
	once    sync.Once
	release chan struct{}
	payload []byte
	err     error
}

func newGatedFetcher(payload []byte, err error) *gatedFetcher {
	return &gatedFetcher{
		started: make(chan struct{}),
		release: make(chan struct{}),
		payload: payload,
		err:     err,
	}
}

func (f *gatedFetcher) Fetch(context.Context, string) ([]byte, error) {
	f.calls.Add(1)
	f.once.Do(func() { close(f.started) })
	<-f.release
	if f.err != nil {
		return nil, f.err
	}
	return f.payload, nil
}

func (f *gatedFetcher) waitStarted(t *testing.T) {
	t.Helper()
	select {
	case <-f.started:
	case <-time.After(5 * time.Second):
		t.Fatalf("fetch never started")
	}
}

// waitSettled polls until id leaves the in-flight state.
func waitSettled(t *testing.T, reg *Registry, id string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for reg.State(id) == StateInFlight {
		if time.Now().After(deadline) {
			t.Fatalf("%s never settled", id)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newTestRegistry(t *testing.T, fetcher cache.Fetcher) (*Registry, cache.Store) {
	t.Helper()
	store, err := cache.NewStore(filepath.Join(t.TempDir(), cache.DefaultDirName))
	if err != nil {
		t.Fatalf("store error: %v", err)
	}
	reg, err := New(Options{Source: cache.New(store, fetcher, 24*time.Hour, nil)})
	if err != nil {
		t.Fatalf("registry error: %v", err)
	}
	return reg, store
}
