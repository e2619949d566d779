package pool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stardustagi/gptshell/libs/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeClient struct {
	id     int64
	closed atomic.Bool
}

func newTestPool(t *testing.T, opts ...Option[*fakeClient]) *ClientPool[*fakeClient] {
	opts = append([]Option[*fakeClient]{
		WithLogger[*fakeClient](zaptest.NewLogger(t)),
		WithCloser(func(c *fakeClient) { c.closed.Store(true) }),
	}, opts...)
	return NewClientPool(opts...)
}

func TestGetOrCreateCachesClient(t *testing.T) {
	p := newTestPool(t)
	var created int64
	create := func() (*fakeClient, error) {
		return &fakeClient{id: atomic.AddInt64(&created, 1)}, nil
	}

	first, cached, err := p.GetOrCreate("/keys/a", create)
	require.NoError(t, err)
	assert.False(t, cached)

	second, cached, err := p.GetOrCreate("/keys/a", create)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Same(t, first, second)
	assert.Equal(t, int64(1), created)

	other, _, err := p.GetOrCreate("/keys/b", create)
	require.NoError(t, err)
	assert.NotSame(t, first, other)
	assert.Equal(t, 2, p.Len())
}

func TestGetOrCreateCreateError(t *testing.T) {
	p := newTestPool(t)
	_, _, err := p.GetOrCreate("k", func() (*fakeClient, error) {
		return nil, errors.New(errors.KindNotFound, "no key")
	})
	require.Error(t, err)
	assert.Equal(t, 0, p.Len())
}

func TestConcurrentGetOrCreateSingleVisibleClient(t *testing.T) {
	p := newTestPool(t)
	var created int64
	var all sync.Map
	create := func() (*fakeClient, error) {
		c := &fakeClient{id: atomic.AddInt64(&created, 1)}
		all.Store(c.id, c)
		time.Sleep(2 * time.Millisecond)
		return c, nil
	}

	const workers = 16
	results := make([]*fakeClient, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, _, err := p.GetOrCreate("/keys/shared", create)
			assert.NoError(t, err)
			results[i] = c
		}(i)
	}
	wg.Wait()

	a, ok, err := p.GetClient("/keys/shared")
	require.NoError(t, err)
	require.True(t, ok)
	b, _, _ := p.GetClient("/keys/shared")
	assert.Same(t, a, b)
	for _, r := range results {
		assert.Same(t, a, r)
	}
	assert.False(t, a.closed.Load())

	// every losing duplicate was closed
	all.Range(func(_, v any) bool {
		c := v.(*fakeClient)
		if c != a {
			assert.True(t, c.closed.Load())
		}
		return true
	})
}

func TestLockTimeoutIsRetryable(t *testing.T) {
	p := newTestPool(t, WithLockTimeout[*fakeClient](10*time.Millisecond))
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	_, _, err := p.GetClient("k")
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)

	se, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.KindTimeout, se.Kind())
	assert.True(t, se.Retryable())

	_, _, err = p.GetOrCreate("k", func() (*fakeClient, error) { return &fakeClient{}, nil })
	assert.Error(t, err)
	assert.Error(t, p.Remove("k"))
}

func TestRemoveThenRecreate(t *testing.T) {
	p := newTestPool(t)
	var created int64
	create := func() (*fakeClient, error) {
		return &fakeClient{id: atomic.AddInt64(&created, 1)}, nil
	}
	old, _, err := p.GetOrCreate("k", create)
	require.NoError(t, err)
	require.NoError(t, p.Remove("k"))
	require.NoError(t, p.Remove("missing"))

	fresh, cached, err := p.GetOrCreate("k", create)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.NotSame(t, old, fresh)
	assert.True(t, old.closed.Load())
	assert.Equal(t, int64(2), fresh.id)
}

func TestRemoveAndCloseAll(t *testing.T) {
	p := newTestPool(t)
	a, _, err := p.GetOrCreate("a", func() (*fakeClient, error) { return &fakeClient{id: 1}, nil })
	require.NoError(t, err)
	b, _, err := p.GetOrCreate("b", func() (*fakeClient, error) { return &fakeClient{id: 2}, nil })
	require.NoError(t, err)

	require.NoError(t, p.Remove("a"))
	assert.True(t, a.closed.Load())
	assert.Equal(t, 1, p.Len())

	p.CloseAll()
	assert.True(t, b.closed.Load())
	assert.Equal(t, 0, p.Len())
}
