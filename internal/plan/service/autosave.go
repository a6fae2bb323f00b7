package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nholding/lifting-book/internal/logger"
	"github.com/nholding/lifting-book/internal/plan/domain"
	"github.com/nholding/lifting-book/internal/plan/repository"
)

// FlushReport is handed to the flush callback after every flush attempt.
// Month and Row locate the visible buffer row the batch belonged to at edit
// time, so the caller can mark the right row as saved or failed. On success
// Result is the authoritative server record; on failure it is nil and Err
// carries the cause (including *domain.ConflictError, which means the caller
// must re-fetch before editing further).
type FlushReport struct {
	PlanID string
	Month  domain.MonthKey
	Row    int
	Result *domain.MonthlyEntry
	Err    error
}

// FlushFunc is invoked after every flush attempt, successful or not.
type FlushFunc func(FlushReport)

// pendingBatch accumulates field edits for one plan record between flushes.
// Later writes to the same field overwrite earlier ones; different fields
// merge. month/row pin the buffer position the edits came from.
type pendingBatch struct {
	fields  map[string]any
	version int64
	month   domain.MonthKey
	row     int
}

// AutosaveCoordinator batches field-level edits per persisted plan record
// and debounces the remote write: a timer is (re)armed on every edit, and
// when it fires with no further edits the whole accumulated batch goes out
// as ONE update carrying the last known version token.
//
// Each coordinator owns its timer and batch maps outright; two editing
// sessions get two coordinators and never share scheduling state. Close
// cancels everything still pending without flushing.
//
// Conflicts are never resolved here: a stale-version rejection drops the
// batch and is surfaced through the flush callback, because retrying with
// the old payload would overwrite someone else's accepted edit.
type AutosaveCoordinator struct {
	mu       sync.Mutex
	gateway  repository.Gateway
	store    *domain.MonthlyEntryStore
	debounce time.Duration
	onFlush  FlushFunc
	log      *logrus.Logger

	pending  map[string]*pendingBatch
	timers   map[string]*time.Timer
	versions map[string]int64 // server-confirmed versions, authoritative over caller-supplied ones
	closed   bool
}

// NewAutosaveCoordinator wires a coordinator to one editing session's store.
// store may be nil when the caller does not track buffer positions.
func NewAutosaveCoordinator(gateway repository.Gateway, store *domain.MonthlyEntryStore, debounce time.Duration, onFlush FlushFunc) *AutosaveCoordinator {
	return &AutosaveCoordinator{
		gateway:  gateway,
		store:    store,
		debounce: debounce,
		onFlush:  onFlush,
		log:      logger.Get(),
		pending:  make(map[string]*pendingBatch),
		timers:   make(map[string]*time.Timer),
		versions: make(map[string]int64),
	}
}

// Edit records one field change for a persisted plan record and (re)arms its
// debounce timer. version is the caller's last known version token; if the
// coordinator has already seen a newer server-confirmed version for this
// record, that one wins.
func (a *AutosaveCoordinator) Edit(planID, field string, value any, version int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed || planID == "" {
		return
	}

	batch, ok := a.pending[planID]
	if !ok {
		batch = &pendingBatch{fields: make(map[string]any), row: -1}
		a.pending[planID] = batch
	}
	batch.fields[field] = value
	batch.version = version
	if confirmed, ok := a.versions[planID]; ok && confirmed > version {
		batch.version = confirmed
	}
	if a.store != nil {
		if e := a.store.FindByID(planID); e != nil {
			batch.month = e.Key()
			batch.row = a.store.IndexOf(e)
		}
	}

	if t, ok := a.timers[planID]; ok {
		t.Stop()
	}
	a.timers[planID] = time.AfterFunc(a.debounce, func() {
		a.flush(planID)
	})
}

// Flush forces an immediate write of any pending batch for the record,
// cancelling its timer. No-op when nothing is pending.
func (a *AutosaveCoordinator) Flush(planID string) {
	a.mu.Lock()
	if t, ok := a.timers[planID]; ok {
		t.Stop()
		delete(a.timers, planID)
	}
	a.mu.Unlock()
	a.flush(planID)
}

// Close cancels all pending timers and discards unflushed batches. The
// coordinator accepts no edits afterwards.
func (a *AutosaveCoordinator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.closed = true
	for id, t := range a.timers {
		t.Stop()
		delete(a.timers, id)
	}
	a.pending = make(map[string]*pendingBatch)
}

func (a *AutosaveCoordinator) flush(planID string) {
	a.mu.Lock()
	batch, ok := a.pending[planID]
	if ok {
		delete(a.pending, planID)
	}
	delete(a.timers, planID)
	a.mu.Unlock()

	if !ok || len(batch.fields) == 0 {
		return
	}

	report := FlushReport{PlanID: planID, Month: batch.month, Row: batch.row}

	updated, err := a.gateway.Update(context.Background(), planID, batch.fields, batch.version)
	if err != nil {
		logger.LogError(a.log, "plan", "autosave", "flush rejected", planID, err)
		if a.onFlush != nil {
			report.Err = classifyRemoteError("autosave flush", err)
			a.onFlush(report)
		}
		return
	}

	a.mu.Lock()
	a.versions[planID] = updated.Version
	a.mu.Unlock()

	if a.onFlush != nil {
		report.Result = updated
		a.onFlush(report)
	}
}
