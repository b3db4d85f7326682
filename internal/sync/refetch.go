package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/matheus3301/convsync/internal/convo"
	"go.uber.org/zap"
)

// HistorySource serves a conversation's persisted history, newest first:
// offset 0 is the most recent window.
type HistorySource interface {
	FetchHistory(ctx context.Context, conversationID string, limit, offset int) (convo.Page[convo.Message], error)
}

type cursor struct {
	offset  int
	hasMore bool
	loaded  bool
}

// Refetcher corrects divergence between the engine's views and the message
// store, and pages older history into them.
type Refetcher struct {
	engine   *Engine
	source   HistorySource
	interval time.Duration
	pageSize int
	logger   *zap.Logger

	mu      sync.Mutex
	cursors map[string]*cursor
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewRefetcher creates a refetcher. An interval of zero disables the periodic loop.
func NewRefetcher(engine *Engine, source HistorySource, interval time.Duration, pageSize int, logger *zap.Logger) *Refetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	return &Refetcher{
		engine:   engine,
		source:   source,
		interval: interval,
		pageSize: pageSize,
		logger:   logger,
		cursors:  make(map[string]*cursor),
	}
}

// Start runs the periodic refresh of every open view.
func (r *Refetcher) Start(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.refreshAll(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the periodic loop and waits for it to exit.
func (r *Refetcher) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}

func (r *Refetcher) refreshAll(ctx context.Context) {
	for _, id := range r.engine.Conversations() {
		if _, err := r.RefreshNow(ctx, id); err != nil {
			r.logger.Warn("periodic refetch failed", zap.String("conversation_id", id), zap.Error(err))
		}
	}
}

// RefreshNow fetches the newest window of a conversation and merges it.
func (r *Refetcher) RefreshNow(ctx context.Context, conversationID string) (MergeResult, error) {
	page, err := r.source.FetchHistory(ctx, conversationID, r.pageSize, 0)
	if err != nil {
		return MergeResult{}, fmt.Errorf("fetch history %s: %w", conversationID, err)
	}
	res := r.engine.Merge(conversationID, SourceStore, page.Items)

	r.mu.Lock()
	c := r.cursorLocked(conversationID)
	if !c.loaded {
		c.offset = len(page.Items)
		c.hasMore = page.HasMore
		c.loaded = true
	}
	r.mu.Unlock()
	return res, nil
}

// LoadOlder fetches the next older window and merges it without auto-scroll.
// It reports whether even older history remains.
func (r *Refetcher) LoadOlder(ctx context.Context, conversationID string) (MergeResult, bool, error) {
	r.mu.Lock()
	c := r.cursorLocked(conversationID)
	offset, hasMore, loaded := c.offset, c.hasMore, c.loaded
	r.mu.Unlock()

	if !loaded {
		if _, err := r.RefreshNow(ctx, conversationID); err != nil {
			return MergeResult{}, false, err
		}
		return r.LoadOlder(ctx, conversationID)
	}
	if !hasMore {
		return MergeResult{}, false, nil
	}

	page, err := r.source.FetchHistory(ctx, conversationID, r.pageSize, offset)
	if err != nil {
		return MergeResult{}, hasMore, fmt.Errorf("fetch older %s: %w", conversationID, err)
	}
	res := r.engine.LoadOlder(conversationID, page.Items)

	r.mu.Lock()
	c = r.cursorLocked(conversationID)
	c.offset = offset + len(page.Items)
	c.hasMore = page.HasMore
	hasMore = c.hasMore
	r.mu.Unlock()

	r.logger.Debug("older history loaded",
		zap.String("conversation_id", conversationID),
		zap.Int("offset", offset),
		zap.Int("count", len(page.Items)),
		zap.Bool("has_more", hasMore))
	return res, hasMore, nil
}

// Forget drops the paging cursor of a conversation.
func (r *Refetcher) Forget(conversationID string) {
	r.mu.Lock()
	delete(r.cursors, conversationID)
	r.mu.Unlock()
}

func (r *Refetcher) cursorLocked(conversationID string) *cursor {
	c, ok := r.cursors[conversationID]
	if !ok {
		c = &cursor{}
		r.cursors[conversationID] = c
	}
	return c
}
