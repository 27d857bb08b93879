// Package query is the keyed fetch layer between the map view and the
// provider clients. Each Client memoizes results per key for a freshness
// window, collapses concurrent fetches of the same key into one call and
// applies the default retry policy.
package query

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// ErrDisabled is returned for an empty key. No request is issued.
var ErrDisabled = errors.New("query disabled: empty key")

const defaultTimeout = 30 * time.Second

type Options struct {
	// Name labels metrics, spans and logs.
	Name string
	// StaleTime is how long a result is served without refetching. Zero
	// disables memoization; in-flight calls are still shared.
	StaleTime time.Duration
	// Timeout bounds one fetch including retries.
	Timeout time.Duration
	Retry   RetryPolicy
	Logger  *slog.Logger
	Now     func() time.Time
}

type entry[V any] struct {
	value     V
	fetchedAt time.Time
}

type Client[V any] struct {
	name      string
	staleTime time.Duration
	timeout   time.Duration
	retry     RetryPolicy
	logger    *slog.Logger
	now       func() time.Time

	cache *cache.Cache
	group singleflight.Group
}

func New[V any](opts Options) *Client[V] {
	c := &Client[V]{
		name:      opts.Name,
		staleTime: opts.StaleTime,
		timeout:   opts.Timeout,
		retry:     opts.Retry,
		logger:    opts.Logger,
		now:       opts.Now,
	}
	if c.name == "" {
		c.name = "query"
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	cleanup := 10 * time.Minute
	if c.staleTime > 0 && 2*c.staleTime < cleanup {
		cleanup = 2 * c.staleTime
	}
	c.cache = cache.New(c.staleTime, cleanup)
	return c
}

func (c *Client[V]) Name() string { return c.name }

// Fetch returns the fresh cached value for key, or joins/starts a fetch with fn.
// Errors are never cached.
func (c *Client[V]) Fetch(ctx context.Context, key string, fn func(ctx context.Context) (V, error)) (V, error) {
	var zero V
	if key == "" {
		requestsTotal.WithLabelValues(c.name, "disabled").Inc()
		return zero, ErrDisabled
	}

	ctx, span := otel.Tracer("libraryfinder/query").Start(ctx, c.name+".Fetch", trace.WithAttributes(
		attribute.String("query.name", c.name),
		attribute.String("query.key", key),
	))
	defer span.End()

	if v, ok := c.fresh(key); ok {
		requestsTotal.WithLabelValues(c.name, "hit").Inc()
		span.SetAttributes(attribute.Bool("query.cache_hit", true))
		return v, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		// A flight that finished between the check above and this one already stored it.
		if v, ok := c.fresh(key); ok {
			return v, nil
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		start := time.Now()
		v, err := Retry(fetchCtx, c.retry, fn)
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		fetchDuration.WithLabelValues(c.name, outcome).Observe(time.Since(start).Seconds())
		if err != nil {
			c.logger.Warn("query fetch failed", "query", c.name, "key", key, "error", err)
			return nil, err
		}
		c.store(key, v)
		c.logger.Debug("query fetched", "query", c.name, "key", key, "duration_ms", time.Since(start).Milliseconds())
		return v, nil
	})

	select {
	case <-ctx.Done():
		requestsTotal.WithLabelValues(c.name, "canceled").Inc()
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			requestsTotal.WithLabelValues(c.name, "error").Inc()
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Err.Error())
			return zero, res.Err
		}
		if res.Shared {
			requestsTotal.WithLabelValues(c.name, "shared").Inc()
		} else {
			requestsTotal.WithLabelValues(c.name, "miss").Inc()
		}
		return res.Val.(V), nil
	}
}

// Peek returns a fresh cached value without fetching.
func (c *Client[V]) Peek(key string) (V, time.Time, bool) {
	var zero V
	raw, found := c.cache.Get(key)
	if !found {
		return zero, time.Time{}, false
	}
	e := raw.(entry[V])
	if !c.isFresh(e) {
		return zero, time.Time{}, false
	}
	return e.value, e.fetchedAt, true
}

func (c *Client[V]) Invalidate(key string) {
	c.cache.Delete(key)
}

func (c *Client[V]) fresh(key string) (V, bool) {
	v, _, ok := c.Peek(key)
	return v, ok
}

func (c *Client[V]) isFresh(e entry[V]) bool {
	return c.now().Sub(e.fetchedAt) < c.staleTime
}

func (c *Client[V]) store(key string, v V) {
	if c.staleTime <= 0 {
		return
	}
	c.cache.Set(key, entry[V]{value: v, fetchedAt: c.now()}, cache.DefaultExpiration)
}
