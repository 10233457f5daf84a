// Package intercept implements the caching layer that sits between
// the intercepted resolve/release entry points and the real
// implementations.
//
// The layer reconciles two ownership models: every caller believes it
// owns the handle its resolve call returned and must release it
// exactly once, while the cache keeps the same handle alive and hands
// it out to any number of concurrent callers. Borrow counting plus a
// deferred reclamation queue make both views hold at once.
package intercept

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pmkol/gaicached/pkg/addrinfo"
	"github.com/pmkol/gaicached/pkg/reclaim"
	"github.com/pmkol/gaicached/pkg/refcount"
	"github.com/pmkol/gaicached/pkg/reqkey"
	"github.com/pmkol/gaicached/pkg/rescache"
)

const (
	defaultTTL           = time.Second
	defaultQueueCapacity = 1000
)

var nopLogger = zap.NewNop()

// ResolveFunc is the real resolve implementation. A negative status
// is a failure and res must be nil.
type ResolveFunc func(ctx context.Context, host, service string, hints *addrinfo.Hints) (res *addrinfo.AddrInfo, status int)

// ReleaseFunc is the real release implementation. It physically
// reclaims the whole chain; it is assumed fast and non-blocking.
type ReleaseFunc func(h *addrinfo.AddrInfo)

type Opts struct {
	// Logger optionally specifies a logger for diagnostics.
	// A nil Logger will disable the logging.
	Logger *zap.Logger

	// TTL is the maximum age of a cached result. Default is 1s.
	TTL time.Duration

	// QueueCapacity bounds the deferred reclamation queue.
	// Default is 1000.
	QueueCapacity int

	// Resolve and Release are the real implementations, required.
	// How they are obtained is the caller's concern.
	Resolve ResolveFunc
	Release ReleaseFunc
}

func (opts *Opts) init() error {
	if opts.Resolve == nil || opts.Release == nil {
		return errors.New("intercept: missing real resolve/release func")
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = defaultQueueCapacity
	}
	return nil
}

// Interceptor is the process-lifetime context shared by the two entry
// points. It is safe for concurrent use; a single mutex serializes
// all cache, reverse index, borrow count and queue mutations.
// Resolution calls are assumed rare enough that the coarse lock makes
// no difference in practice.
type Interceptor struct {
	opts Opts

	mu    sync.Mutex
	cache *rescache.Cache
	refs  *refcount.Tracker
	queue *reclaim.Queue

	metrics metrics
}

type metrics struct {
	query       *prometheus.CounterVec
	reclaimed   prometheus.Counter
	stranded    prometheus.Counter
	logicErrors prometheus.Counter
	queueLen    prometheus.GaugeFunc
	cacheSize   prometheus.GaugeFunc
}

func NewInterceptor(opts Opts) (*Interceptor, error) {
	if err := opts.init(); err != nil {
		return nil, err
	}

	i := &Interceptor{
		opts:  opts,
		cache: rescache.New(),
		refs:  refcount.NewTracker(),
		queue: reclaim.NewQueue(opts.QueueCapacity),
	}
	i.initMetrics()
	return i, nil
}

// Resolve is the intercepted resolve entry point. It returns a cached
// handle when a fresh equivalent result exists, otherwise it calls
// the real resolve outside the lock. The returned handle is borrowed
// by the caller, who must pass it to Release exactly once. Failures
// (negative status) are returned verbatim and never cached.
func (i *Interceptor) Resolve(ctx context.Context, host, service string, hints *addrinfo.Hints) (*addrinfo.AddrInfo, int) {
	key := reqkey.Canonicalize(host, service, hints)

	i.mu.Lock()
	if e, ok := i.cache.Lookup(key); ok {
		if time.Since(e.CreatedAt) < i.opts.TTL {
			i.refs.Borrow(e.Handle)
			i.mu.Unlock()
			i.metrics.query.WithLabelValues("hit").Inc()
			return e.Handle, e.Status
		}
		// Stale. Unhook it from the cache side; the handle stays
		// alive through its outstanding borrows and queue entry.
		i.cache.RemoveIfStale(key, time.Now(), i.opts.TTL)
		i.metrics.query.WithLabelValues("expired").Inc()
	} else {
		i.metrics.query.WithLabelValues("miss").Inc()
	}

	// The real call is the only network bound step. It must not block
	// concurrent lookups.
	i.mu.Unlock()

	h, status := i.opts.Resolve(ctx, host, service, hints)
	if status < 0 {
		return h, status
	}

	i.mu.Lock()
	// Another caller may have resolved and inserted the same key
	// while we were off the lock. The winner's entry stays
	// authoritative for lookups made so far; our fresh result
	// supersedes it and the loser handle keeps living through its
	// own borrows until reclaimed.
	if displaced := i.cache.Insert(key, rescache.Entry{
		CreatedAt: time.Now(),
		Handle:    h,
		Status:    status,
	}); displaced != nil {
		i.opts.Logger.Debug("insert race, superseding entry",
			zap.String("host", host), zap.String("service", service))
	}
	i.refs.Borrow(h)
	i.mu.Unlock()
	return h, status
}

// Release is the intercepted release entry point. The caller's borrow
// is returned; the physical free is deferred until queue pressure
// forces the oldest parked handle out. The whole path, including the
// real release call, runs under the lock (release is assumed fast).
//
// Releasing a handle that was never borrowed is a caller bug. It is
// reported and ignored; the intercepted API has no error channel for
// release, so the call still returns normally.
func (i *Interceptor) Release(h *addrinfo.AddrInfo) {
	i.mu.Lock()
	defer i.mu.Unlock()

	enqueue, known := i.refs.ReleaseOne(h)
	if !known {
		i.metrics.logicErrors.Inc()
		i.opts.Logger.Warn("releasing an unknown handle")
	}
	if enqueue {
		i.queue.Push(h)
	}

	d, ok := i.queue.PopIfOver()
	if !ok {
		return
	}

	borrows, known := i.refs.Peek(d)
	if !known {
		i.metrics.logicErrors.Inc()
		i.opts.Logger.Warn("asking borrow count of an unknown handle")
	}
	if borrows > 0 {
		// Still referenced somewhere. The entry is dropped without
		// requeueing, so if the borrows never drain through another
		// path the handle is permanently unreclaimable. Kept as is;
		// see the stranded_total metric.
		i.metrics.stranded.Inc()
		i.opts.Logger.Warn("dequeued handle still borrowed, dropping it",
			zap.Int("borrows", borrows))
		return
	}

	i.refs.Remove(d)
	// The owning cache entry can already be gone if it was
	// superseded or expired.
	i.cache.RemoveByHandle(d)
	i.opts.Release(d)
	i.metrics.reclaimed.Inc()
}

// CacheLen returns the number of live cache entries.
func (i *Interceptor) CacheLen() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.cache.Len()
}

// QueueLen returns the number of handles parked for reclamation.
func (i *Interceptor) QueueLen() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.queue.Len()
}
