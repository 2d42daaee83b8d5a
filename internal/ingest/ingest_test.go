package ingest

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telo-ai/server/internal/agent/model"
	errx "github.com/telo-ai/server/internal/core/error"
	"github.com/telo-ai/server/pkg/storage"
)

type fakeStore struct {
	objects map[string][]byte
	order   []string
	walkErr error
}

func (f *fakeStore) Walk(_ context.Context, fn func(storage.Object) error) error {
	if f.walkErr != nil {
		return f.walkErr
	}
	for _, k := range f.order {
		if err := fn(storage.Object{Key: k, Size: int64(len(f.objects[k]))}); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeStore) Get(_ context.Context, key string) ([]byte, string, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, "", storage.ErrObjectNotFound
	}
	return data, "", nil
}

type memCache struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemCache() *memCache { return &memCache{data: map[string]string{}} }

func (c *memCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Put(_ context.Context, key, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = text
	return nil
}

type fakeExtractor struct {
	calls atomic.Int32
	fail  map[string]bool
	mimes sync.Map
	delay time.Duration
}

func (e *fakeExtractor) Extract(ctx context.Context, filename string, data []byte, mimeType string) (string, error) {
	e.calls.Add(1)
	e.mimes.Store(filename, mimeType)
	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if e.fail[filename] {
		return "", errors.New("unreadable scan")
	}
	return "TEXT:" + string(data), nil
}

func cfg() model.ParserConfig {
	return model.ParserConfig{Concurrency: 2, Timeout: time.Second}
}

func TestEnsureCachesExtraction(t *testing.T) {
	store := &fakeStore{objects: map[string][]byte{"perda-1-2020.pdf": []byte("pasal 1")}}
	cache := newMemCache()
	ext := &fakeExtractor{}
	svc := NewService(store, cache, ext, cfg())

	text, cached, err := svc.Ensure(context.Background(), "perda-1-2020.pdf")
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "TEXT:pasal 1", text)

	text, cached, err = svc.Ensure(context.Background(), "perda-1-2020.pdf")
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, "TEXT:pasal 1", text)
	assert.Equal(t, int32(1), ext.calls.Load())

	mt, _ := ext.mimes.Load("perda-1-2020.pdf")
	assert.Equal(t, "application/pdf", mt)
}

func TestEnsureMissingObject(t *testing.T) {
	svc := NewService(&fakeStore{objects: map[string][]byte{}}, newMemCache(), &fakeExtractor{}, cfg())

	_, _, err := svc.Ensure(context.Background(), "nope.pdf")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, errx.StatusOf(err))
}

func TestEnsureSharesConcurrentExtraction(t *testing.T) {
	store := &fakeStore{objects: map[string][]byte{"a.pdf": []byte("a")}}
	ext := &fakeExtractor{delay: 50 * time.Millisecond}
	svc := NewService(store, newMemCache(), ext, cfg())

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			text, _, err := svc.Ensure(context.Background(), "a.pdf")
			assert.NoError(t, err)
			assert.Equal(t, "TEXT:a", text)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), ext.calls.Load())
}

func TestEnsureSurvivesFirstCallerCancelling(t *testing.T) {
	store := &fakeStore{objects: map[string][]byte{"perda-3-2019.pdf": []byte("c")}}
	cache := newMemCache()
	ext := &fakeExtractor{delay: 100 * time.Millisecond}
	svc := NewService(store, cache, ext, cfg())

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, _, err := svc.Ensure(first, "perda-3-2019.pdf")
		firstErr <- err
	}()

	time.Sleep(10 * time.Millisecond)
	secondDone := make(chan struct{})
	var text string
	var err error
	go func() {
		defer close(secondDone)
		text, _, err = svc.Ensure(context.Background(), "perda-3-2019.pdf")
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	<-secondDone
	require.NoError(t, err)
	assert.Equal(t, "TEXT:c", text)
	assert.Equal(t, int32(1), ext.calls.Load())

	cached, ok, _ := cache.Get(context.Background(), "perda-3-2019.pdf")
	assert.True(t, ok)
	assert.Equal(t, "TEXT:c", cached)
}

func TestBackfillSkipsParsedAndReportsFailures(t *testing.T) {
	store := &fakeStore{
		objects: map[string][]byte{
			"perbup-2-2021.pdf": []byte("b"),
			"perda-1-2020.pdf":  []byte("a"),
			"scan.pdf":          []byte("c"),
			"notes.txt":         []byte("d"),
		},
		order: []string{"perbup-2-2021.pdf", "perda-1-2020.pdf", "scan.pdf", "notes.txt"},
	}
	cache := newMemCache()
	require.NoError(t, cache.Put(context.Background(), "perda-1-2020.pdf", "already"))
	ext := &fakeExtractor{fail: map[string]bool{"scan.pdf": true}}
	svc := NewService(store, cache, ext, cfg())

	report, err := svc.Backfill(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, report.Total)
	assert.Equal(t, 2, report.Parsed)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, []string{"scan.pdf"}, report.Failed)
	assert.Equal(t, int32(3), ext.calls.Load())

	text, ok, _ := cache.Get(context.Background(), "perda-1-2020.pdf")
	assert.True(t, ok)
	assert.Equal(t, "already", text)

	_, ok, _ = cache.Get(context.Background(), "scan.pdf")
	assert.False(t, ok)

	mt, _ := ext.mimes.Load("notes.txt")
	assert.Equal(t, "text/plain", mt)
}

func TestBackfillListingFailure(t *testing.T) {
	svc := NewService(&fakeStore{walkErr: errors.New("403")}, newMemCache(), &fakeExtractor{}, cfg())

	_, err := svc.Backfill(context.Background())
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, errx.StatusOf(err))
}

func TestMimeTypeOf(t *testing.T) {
	assert.Equal(t, "application/pdf", mimeTypeOf("x.pdf", "application/pdf"))
	assert.Equal(t, "application/pdf", mimeTypeOf("x.pdf", "application/octet-stream"))
	assert.Equal(t, "text/plain", mimeTypeOf("x.txt", ""))
	assert.Equal(t, "application/pdf", mimeTypeOf("no-extension", ""))
}
