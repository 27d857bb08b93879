package web

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"libraryfinder/internal/view"
)

const DefaultSessionIdle = 30 * time.Minute

// Sessions is the registry of live map views. An entry expires after the
// idle window without a request, and its loop is stopped on eviction.
type Sessions struct {
	ctx     context.Context
	queries *view.Queries
	opts    view.Options
	idle    time.Duration
	items   *cache.Cache
	logger  *slog.Logger
}

// NewSessions ties every session's lifetime to ctx, not to the request that
// created it.
func NewSessions(ctx context.Context, queries *view.Queries, idle time.Duration, opts view.Options) *Sessions {
	if idle <= 0 {
		idle = DefaultSessionIdle
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cleanup := idle / 2
	if cleanup > 5*time.Minute {
		cleanup = 5 * time.Minute
	}
	items := cache.New(idle, cleanup)
	items.OnEvicted(func(id string, v any) {
		if s, ok := v.(*view.Session); ok {
			s.Close()
			logger.Debug("session closed", "session_id", id)
		}
	})
	return &Sessions{
		ctx:     ctx,
		queries: queries,
		opts:    opts,
		idle:    idle,
		items:   items,
		logger:  logger,
	}
}

func (r *Sessions) Create() *view.Session {
	id := uuid.NewString()
	s := view.Start(r.ctx, id, r.queries, r.opts)
	r.items.SetDefault(id, s)
	r.logger.Info("session started", "session_id", id)
	return s
}

// Get returns a live session and extends its idle window.
func (r *Sessions) Get(id string) (*view.Session, bool) {
	v, found := r.items.Get(id)
	if !found {
		return nil, false
	}
	s := v.(*view.Session)
	select {
	case <-s.Done():
		r.items.Delete(id)
		return nil, false
	default:
	}
	r.items.SetDefault(id, s)
	return s, true
}

func (r *Sessions) Remove(id string) bool {
	if _, found := r.items.Get(id); !found {
		return false
	}
	r.items.Delete(id)
	return true
}

func (r *Sessions) Len() int { return r.items.ItemCount() }

// CloseAll stops every session; used on shutdown.
func (r *Sessions) CloseAll() {
	for id := range r.items.Items() {
		r.items.Delete(id)
	}
}
