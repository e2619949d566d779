package pool

import (
	"sync"
	"time"

	"github.com/stardustagi/gptshell/libs/errors"
	"github.com/stardustagi/gptshell/libs/logs"
	"go.uber.org/zap"
)

// DefaultLockTimeout 读写锁最长等待时间
const DefaultLockTimeout = 100 * time.Millisecond

const lockPollInterval = time.Millisecond

// ClientPool 按 key（凭据路径）缓存客户端
type ClientPool[T any] struct {
	mu          sync.RWMutex
	clients     map[string]T
	lockTimeout time.Duration
	closeFn     func(T)
	logger      *zap.Logger
}

type Option[T any] func(*ClientPool[T])

func WithLockTimeout[T any](d time.Duration) Option[T] {
	return func(p *ClientPool[T]) {
		if d > 0 {
			p.lockTimeout = d
		}
	}
}

// WithCloser sets the hook used to release clients dropped by the pool.
func WithCloser[T any](fn func(T)) Option[T] {
	return func(p *ClientPool[T]) {
		p.closeFn = fn
	}
}

func WithLogger[T any](logger *zap.Logger) Option[T] {
	return func(p *ClientPool[T]) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func NewClientPool[T any](opts ...Option[T]) *ClientPool[T] {
	p := &ClientPool[T]{
		clients:     make(map[string]T),
		lockTimeout: DefaultLockTimeout,
		logger:      logs.GetLogger("pool"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *ClientPool[T]) lock() error {
	return acquire(p.mu.TryLock, p.lockTimeout)
}

func (p *ClientPool[T]) rlock() error {
	return acquire(p.mu.TryRLock, p.lockTimeout)
}

// acquire polls try until it succeeds or timeout elapses.
func acquire(try func() bool, timeout time.Duration) error {
	if try() {
		return nil
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		time.Sleep(lockPollInterval)
		if try() {
			return nil
		}
	}
	return errors.Newf(errors.KindTimeout, "client pool lock not acquired within %s", timeout)
}

// GetClient 根据 key 获取客户端
func (p *ClientPool[T]) GetClient(key string) (T, bool, error) {
	var zero T
	if err := p.rlock(); err != nil {
		return zero, false, err
	}
	defer p.mu.RUnlock()
	c, ok := p.clients[key]
	return c, ok, nil
}

// GetOrCreate returns the client cached under key, building it with create
// when absent. create runs outside the lock; when two callers race, the
// first insert wins and the loser's client is closed and discarded, so every
// caller observes the same client afterwards.
func (p *ClientPool[T]) GetOrCreate(key string, create func() (T, error)) (T, bool, error) {
	var zero T
	if c, ok, err := p.GetClient(key); err != nil || ok {
		return c, ok, err
	}

	created, err := create()
	if err != nil {
		return zero, false, err
	}

	if err := p.lock(); err != nil {
		p.close(created)
		return zero, false, err
	}
	defer p.mu.Unlock()
	if existing, ok := p.clients[key]; ok {
		p.logger.Debug("discarding duplicate client", logs.String("key", key))
		p.close(created)
		return existing, true, nil
	}
	p.clients[key] = created
	return created, false, nil
}

// Remove 删除并关闭 key 对应的客户端
func (p *ClientPool[T]) Remove(key string) error {
	if err := p.lock(); err != nil {
		return err
	}
	defer p.mu.Unlock()
	if c, ok := p.clients[key]; ok {
		p.close(c)
		delete(p.clients, key)
	}
	return nil
}

func (p *ClientPool[T]) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.clients)
}

// CloseAll 关闭所有客户端，并清空 map
func (p *ClientPool[T]) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, c := range p.clients {
		p.close(c)
		delete(p.clients, k)
	}
}

func (p *ClientPool[T]) close(c T) {
	if p.closeFn != nil {
		p.closeFn(c)
	}
}
