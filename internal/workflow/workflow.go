// Package workflow is the presentation-agnostic controller behind the
// classification filter: it loads the index, drives the selection cascade,
// searches stocks and runs the edit lifecycle.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/stockclass/internal/classapi"
	"github.com/dgallion1/stockclass/internal/classification"
	"github.com/dgallion1/stockclass/internal/selection"
	"golang.org/x/sync/singleflight"
)

// Client is the subset of the classification API the workflow needs.
type Client interface {
	DropdownData(ctx context.Context) ([]byte, error)
	BasicIndustries(ctx context.Context) ([]classification.BasicOption, error)
	Stocks(ctx context.Context, basicCode string) (classapi.StocksPage, error)
	UpdateStock(ctx context.Context, companyID int64, req classapi.UpdateRequest) (classification.StockRow, error)
}

// Status is the state of one request line.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

var (
	ErrNotLoaded   = errors.New("classifications are not loaded")
	ErrRowNotFound = errors.New("company is not in the current results")
)

// Messages shown for failures that carry no server detail.
const (
	MsgLoadFailed    = "Failed to load classifications. Please try again."
	MsgSearchFailed  = "Failed to load stocks. Please try again."
	MsgCatalogFailed = "Failed to load"
	MsgUpdateFailed  = "Failed to update stock."
)

const defaultRefreshTimeout = 30 * time.Second

// Option configures a Workflow.
type Option func(*Workflow)

// WithNotifier sets the selection-changed sink. It is called outside the
// workflow's lock, in the order changes happened.
func WithNotifier(fn func(selection.Notification)) Option {
	return func(w *Workflow) { w.notify = fn }
}

// WithRefreshTimeout bounds the background refresh issued after an edit.
func WithRefreshTimeout(d time.Duration) Option {
	return func(w *Workflow) {
		if d > 0 {
			w.refreshTimeout = d
		}
	}
}

// Workflow owns one user's selection, results and edit draft. All methods
// are safe for concurrent use.
type Workflow struct {
	mu     sync.Mutex
	client Client
	log    *slog.Logger
	sel    *selection.Machine

	notify  func(selection.Notification)
	pending []selection.Notification
	last    selection.Notification

	// classification load
	loadStatus Status
	loadErr    error
	loaded     bool
	loadCancel context.CancelFunc
	loadSeq    uint64
	// status to restore when the in-flight load is canceled
	loadPrevStatus Status
	loadPrevErr    error

	// search results
	rows         []classification.StockRow
	count        int
	searchStatus Status
	searchErr    error
	searchedCode string
	searchSeq    uint64

	// basic-industry catalog
	catalog       []classification.BasicOption
	catalogStatus Status
	catalogErr    error
	catalogGroup  singleflight.Group

	draft *EditDraft

	refreshTimeout time.Duration
	refreshCtx     context.Context
	stopRefresh    context.CancelFunc
	wg             sync.WaitGroup
}

// New creates a Workflow. Call Mount before use.
func New(client Client, log *slog.Logger, opts ...Option) *Workflow {
	if log == nil {
		log = slog.Default()
	}
	w := &Workflow{
		client:         client,
		log:            log,
		loadStatus:     StatusIdle,
		searchStatus:   StatusIdle,
		catalogStatus:  StatusIdle,
		refreshTimeout: defaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.refreshCtx, w.stopRefresh = context.WithCancel(context.Background())
	w.sel = selection.New(nil, func(n selection.Notification) {
		w.last = n
		w.pending = append(w.pending, n)
	})
	w.sel.OnInvalidate(w.invalidateResults)
	return w
}

// unlock releases the lock and then delivers queued notifications.
func (w *Workflow) unlock() {
	pending := w.pending
	w.pending = nil
	notify := w.notify
	w.mu.Unlock()
	if notify == nil {
		return
	}
	for _, n := range pending {
		notify(n)
	}
}

// Mount resets the selection and fires the initial all-null notification.
func (w *Workflow) Mount() {
	w.mu.Lock()
	defer w.unlock()
	w.sel.Mount()
	w.invalidateResults()
}

// Unmount aborts an in-flight classification load.
func (w *Workflow) Unmount() {
	w.mu.Lock()
	defer w.unlock()
	if w.loadCancel != nil {
		w.loadCancel()
	}
}

// Close aborts in-flight work and waits for background refreshes. No
// refresh starts once Close has begun.
func (w *Workflow) Close() {
	w.mu.Lock()
	if w.loadCancel != nil {
		w.loadCancel()
	}
	w.stopRefresh()
	w.unlock()
	w.wg.Wait()
}

// Load fetches the classification payload and rebuilds the index. It is a
// no-op once a load has succeeded. A newer Load aborts an older one still
// in flight; aborted loads return nil and leave the state untouched.
func (w *Workflow) Load(ctx context.Context) error {
	w.mu.Lock()
	if w.loaded {
		w.unlock()
		return nil
	}
	if w.loadCancel != nil {
		w.loadCancel()
	} else {
		w.loadPrevStatus, w.loadPrevErr = w.loadStatus, w.loadErr
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w.loadSeq++
	seq := w.loadSeq
	w.loadCancel = cancel
	w.loadStatus = StatusLoading
	w.loadErr = nil
	w.unlock()

	raw, err := w.client.DropdownData(ctx)

	w.mu.Lock()
	defer w.unlock()
	if seq != w.loadSeq {
		return nil
	}
	w.loadCancel = nil
	if err != nil {
		if errors.Is(err, context.Canceled) {
			w.loadStatus, w.loadErr = w.loadPrevStatus, w.loadPrevErr
			return nil
		}
		w.loadStatus = StatusError
		w.loadErr = err
		w.log.Error("classification load failed", "error", err)
		return fmt.Errorf("load classifications: %w", err)
	}

	idx := classification.BuildIndex(classification.Normalize(raw))
	w.sel.SetIndex(idx)
	w.loaded = true
	w.loadStatus = StatusSuccess
	st := idx.Stats()
	w.log.Info("classification index built",
		"macros", st.Macros,
		"sectors", st.Sectors,
		"industries", st.Industries,
		"basics", st.Basics,
	)
	return nil
}

// Select sets one level of the cascade.
func (w *Workflow) Select(level selection.Level, value string) error {
	w.mu.Lock()
	defer w.unlock()
	if w.loadStatus != StatusSuccess {
		return ErrNotLoaded
	}
	return w.sel.Set(level, value)
}

// invalidateResults drops the current result set. Caller holds the lock.
func (w *Workflow) invalidateResults() {
	w.rows = nil
	w.count = 0
	w.searchStatus = StatusIdle
	w.searchErr = nil
	w.searchedCode = ""
	w.searchSeq++
}

// Search loads the stocks for the selected basic industry. It does nothing
// when no basic industry is selected or a search is already running.
func (w *Workflow) Search(ctx context.Context) error {
	w.mu.Lock()
	code := w.sel.Selection().BasicCode
	if code == "" || w.searchStatus == StatusLoading {
		w.unlock()
		return nil
	}
	w.searchSeq++
	seq := w.searchSeq
	prevStatus := w.searchStatus
	w.searchStatus = StatusLoading
	w.searchErr = nil
	w.unlock()

	page, err := w.client.Stocks(ctx, code)

	w.mu.Lock()
	defer w.unlock()
	if seq != w.searchSeq {
		return nil
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			w.searchStatus = prevStatus
			return nil
		}
		w.searchStatus = StatusError
		w.searchErr = err
		w.log.Warn("stock search failed", "basic_ind_code", code, "error", err)
		return fmt.Errorf("search stocks: %w", err)
	}
	w.applyPage(code, page)
	w.searchStatus = StatusSuccess
	return nil
}

// applyPage replaces the result set. Caller holds the lock.
func (w *Workflow) applyPage(code string, page classapi.StocksPage) {
	w.rows = page.Rows
	if w.rows == nil {
		w.rows = []classification.StockRow{}
	}
	w.count = len(w.rows)
	if page.Count != nil {
		w.count = *page.Count
	}
	w.searchedCode = code
}

// LoadCatalog fetches the basic-industry catalog once per session.
// Concurrent callers share one request; after a success it never refetches.
// The shared request outlives the caller that started it. It is bounded by
// the refresh timeout and aborted by Close.
func (w *Workflow) LoadCatalog(ctx context.Context) error {
	w.mu.Lock()
	if w.catalogStatus == StatusSuccess {
		w.unlock()
		return nil
	}
	w.unlock()

	_, err, _ := w.catalogGroup.Do("catalog", func() (any, error) {
		w.mu.Lock()
		if w.catalogStatus == StatusSuccess {
			w.unlock()
			return nil, nil
		}
		prevStatus, prevErr := w.catalogStatus, w.catalogErr
		w.catalogStatus = StatusLoading
		w.catalogErr = nil
		w.unlock()

		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.refreshTimeout)
		defer cancel()
		stop := context.AfterFunc(w.refreshCtx, cancel)
		defer stop()

		list, err := w.client.BasicIndustries(fetchCtx)

		w.mu.Lock()
		defer w.unlock()
		if err != nil {
			if errors.Is(err, context.Canceled) {
				w.catalogStatus, w.catalogErr = prevStatus, prevErr
				return nil, nil
			}
			w.catalogStatus = StatusError
			w.catalogErr = err
			w.log.Warn("basic industry catalog load failed", "error", err)
			return nil, fmt.Errorf("load basic industries: %w", err)
		}
		w.catalog = list
		w.catalogStatus = StatusSuccess
		if w.draft != nil && w.draft.BasicName == "" {
			w.draft.BasicName, _ = classification.LookupName(list, w.draft.BasicCode)
		}
		return nil, nil
	})
	return err
}

// findRow returns the index of the row for companyID. Caller holds the lock.
func (w *Workflow) findRow(companyID int64) int {
	for i, r := range w.rows {
		if id, ok := r.ID(); ok && id == companyID {
			return i
		}
	}
	return -1
}
