// Package pagesession binds browser sessions to their in-memory map board and report workflow.
package pagesession

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/potholemap/potholemap/internal/board"
	"github.com/potholemap/potholemap/internal/errors"
	"github.com/potholemap/potholemap/internal/workflow"
)

var ErrNotFound = errors.NewSentinel("page session not found")

// Page is the state of one browser session.
type Page struct {
	ID       string
	Board    *board.Board
	Workflow *workflow.Controller

	cancel   context.CancelFunc
	lastSeen time.Time
}

// Factory builds the board of a new page, typically by fetching the pothole listing.
type Factory func(ctx context.Context) (*board.Board, error)

// WorkflowFactory creates the workflow of a new page. The workflow is expected to mark submitted reports on b.
type WorkflowFactory func(ctx context.Context, b *board.Board) *workflow.Controller

type Registry struct {
	newBoard    Factory
	newWorkflow WorkflowFactory
	idleTimeout time.Duration
	logger      *slog.Logger
	ctx         context.Context //nolint:containedctx // parent of the page workflows.
	now         func() time.Time

	mu    sync.Mutex
	pages map[string]*Page
}

type Config struct {
	NewBoard    Factory
	NewWorkflow WorkflowFactory
	// IdleTimeout after which unused pages are evicted. Defaults to one hour.
	IdleTimeout time.Duration
	Logger      *slog.Logger
}

// NewRegistry creates a registry. Cancelling ctx aborts the calls of every page.
func NewRegistry(ctx context.Context, cfg Config) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	idleTimeout := cfg.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = time.Hour
	}
	return &Registry{
		newBoard:    cfg.NewBoard,
		newWorkflow: cfg.NewWorkflow,
		idleTimeout: idleTimeout,
		logger:      logger,
		ctx:         ctx,
		now:         time.Now,
		mu:          sync.Mutex{},
		pages:       make(map[string]*Page),
	}
}

// Create builds a new page and returns it. The board is built before the registry lock is taken.
func (r *Registry) Create(ctx context.Context) (*Page, error) {
	b, err := r.newBoard(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "new board")
	}
	pageCtx, cancel := context.WithCancel(r.ctx)
	page := &Page{
		ID:       uuid.NewString(),
		Board:    b,
		Workflow: r.newWorkflow(pageCtx, b),
		cancel:   cancel,
		lastSeen: r.now(),
	}

	r.mu.Lock()
	r.pages[page.ID] = page
	r.mu.Unlock()

	r.logger.LogAttrs(ctx, slog.LevelDebug, "created page session",
		slog.String("page_id", page.ID), slog.Int("markers", b.Len()))
	return page, nil
}

// Get returns the page with the given ID and marks it as used.
func (r *Registry) Get(id string) (*Page, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	page, ok := r.pages[id]
	if !ok {
		return nil, errors.Wrap(ErrNotFound, "get page", slog.String("page_id", id))
	}
	page.lastSeen = r.now()
	return page, nil
}

// Len returns the number of live pages.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pages)
}

// EvictIdle removes pages unused for longer than the idle timeout and returns how many were removed.
func (r *Registry) EvictIdle() int {
	cutoff := r.now().Add(-r.idleTimeout)
	var evicted []*Page

	r.mu.Lock()
	for id, page := range r.pages {
		if page.lastSeen.Before(cutoff) {
			evicted = append(evicted, page)
			delete(r.pages, id)
		}
	}
	r.mu.Unlock()

	for _, page := range evicted {
		page.cancel()
	}
	return len(evicted)
}

// StartJanitor evicts idle pages every interval until ctx is done.
func (r *Registry) StartJanitor(ctx context.Context, interval time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
			if n := r.EvictIdle(); n > 0 {
				r.logger.LogAttrs(ctx, slog.LevelInfo, "evicted idle page sessions",
					slog.Int("evicted", n), slog.Int("remaining", r.Len()))
			}
		}
	}
}

// Shutdown aborts the calls of every page and waits for them to finish.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	pages := make([]*Page, 0, len(r.pages))
	for _, page := range r.pages {
		pages = append(pages, page)
	}
	r.mu.Unlock()

	for _, page := range pages {
		page.cancel()
		page.Workflow.Wait()
	}
}
