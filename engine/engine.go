// Package engine implements the journalizing pipeline: the fixed, ordered
// sequence of business steps for one item, step-level dashboard reporting,
// error classification, and guaranteed teardown.
package engine

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/dentalrpa/journalize/app"
	"github.com/dentalrpa/journalize/logkeys"
	"github.com/dentalrpa/journalize/process"
	dentalstorage "github.com/dentalrpa/journalize/subsystem/dental/storage"
	statusstorage "github.com/dentalrpa/journalize/subsystem/status/storage"
	"github.com/dentalrpa/journalize/utils/uuid"

	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

// response metadata step keys in the status store.
const (
	StepKeyDocument    = "Document"
	StepKeyJournalNote = "JournalNote"
)

// Reporter reports step outcomes and run metadata to the dashboard.
type Reporter interface {
	// ReportStep updates the dashboard step-run record for stepName.
	ReportStep(ctx context.Context, rctx *process.Context, stepName string, status process.StepStatus, failure error, rerun bool) error

	// ReportRunMetadata records the item's clinic identifiers on the
	// citizen's latest run.
	ReportRunMetadata(ctx context.Context, item *process.Item) error

	// LatestRunMeta returns the metadata of the citizen's latest run,
	// or nil when no run exists.
	LatestRunMeta(ctx context.Context, nationalID string) (map[string]string, error)
}

// Downloader stages the item's source document on disk.
type Downloader interface {
	Download(ctx context.Context, rctx *process.Context, dir, fileName string) (string, error)
}

// Engine processes journalizing items one at a time. The desktop
// application is a single exclusively-owned resource, so runs are
// serialized; each run owns its application session from start to
// unconditional teardown.
type Engine struct {
	runMu sync.Mutex

	cfg      Config
	app      app.App
	reporter Reporter
	status   statusstorage.Storage
	dental   dentalstorage.Storage
	forms    Downloader

	logger log.Logger
	ider   uuid.IDer
}

// Option configures the engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger log.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithIDer sets the generator for work-item ids of items submitted
// without one.
func WithIDer(ider uuid.IDer) Option {
	return func(e *Engine) {
		e.ider = ider
	}
}

// New creates a new journalizing engine.
func New(cfg Config, a app.App, reporter Reporter, status statusstorage.Storage, dental dentalstorage.Storage, forms Downloader, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		app:      a,
		reporter: reporter,
		status:   status,
		dental:   dental,
		forms:    forms,
		logger:   log.NopLogger,
		ider:     uuid.NewUUID(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// newRunContext populates a fresh run context from the item. The context
// lives for this item's processing only.
func newRunContext(item *process.Item) *process.Context {
	rctx := process.NewContext()
	rctx.Set(map[string]interface{}{
		process.KeyReference:      item.Reference,
		process.KeyNationalID:     item.NationalID,
		process.KeyURL:            item.URL,
		process.KeyClinicName:     item.ClinicName,
		process.KeyClinicAddress:  item.ClinicAddress,
		process.KeyClinicPhone:    item.ClinicPhone,
		process.KeyClinicProvider: item.ClinicProvider,
		process.KeyConsent:        item.Consent,
		process.KeyWorkItemID:     item.WorkItemID,
	})
	return rctx
}

// Run processes one item start to finish.
//
// A BusinessError from any step is returned unchanged so the caller sees
// the precise business reason. Any other error is returned as an opaque
// process error with the cause kept on the chain. On every exit path the
// temp artifacts are removed and the application is shut down, exactly
// once, before the error surfaces.
func (e *Engine) Run(ctx context.Context, item *process.Item) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if err := item.Validate(); err != nil {
		return err
	}
	if item.WorkItemID == "" {
		item.WorkItemID = e.ider.ID()
	}

	logger := ctxlog.Logger(ctx, e.logger).With(
		logkeys.Reference, item.Reference,
		logkeys.WorkItemID, item.WorkItemID,
	)

	rctx := newRunContext(item)

	// teardown runs on every exit path, panics included; the desktop
	// application is exclusively owned and must never leak into the
	// next item
	defer func() {
		e.cleanUp(ctx)
		app.Shutdown(ctx, e.app, logger)
	}()

	err := e.runPipeline(ctx, rctx, item)
	if err != nil {
		if process.IsBusiness(err) {
			logger.Info(logkeys.Message, "business error", logkeys.Error, err)
		} else {
			logger.Info(logkeys.Message, "process error", logkeys.Error, err)
		}
		if serr := e.status.UpdateProcessStatus(ctx, item.Reference, process.StatusFailed); serr != nil {
			logger.Info(logkeys.Message, "updating process status", logkeys.Error, serr)
		}
		// business errors pass through unchanged; everything else is
		// wrapped opaque
		err = process.NewProcessError(err)
	}

	return err
}

// runPipeline is the strictly sequential step sequence; no step is
// skipped or reordered.
func (e *Engine) runPipeline(ctx context.Context, rctx *process.Context, item *process.Item) error {
	logger := ctxlog.Logger(ctx, e.logger).With(logkeys.Reference, item.Reference)

	// hygiene; a stuck modifier key from a previous run breaks UI
	// automation in surprising ways
	if err := e.app.ReleaseKeys(ctx); err != nil {
		logger.Info(logkeys.Message, "releasing stuck keys", logkeys.Error, err)
	}

	if err := e.reporter.ReportRunMetadata(ctx, item); err != nil {
		return fmt.Errorf("updating run metadata: %w", err)
	}

	if err := e.reporter.ReportStep(ctx, rctx, e.cfg.Steps.Intake, process.StepRunning, nil, false); err != nil {
		return fmt.Errorf("reporting intake step: %w", err)
	}
	if err := e.reporter.ReportStep(ctx, rctx, e.cfg.Steps.Intake, process.StepSuccess, nil, false); err != nil {
		return fmt.Errorf("reporting intake step: %w", err)
	}

	if err := e.status.UpdateProcessStatus(ctx, item.Reference, process.StatusInProgress); err != nil {
		return fmt.Errorf("updating process status: %w", err)
	}

	if err := e.app.Start(ctx); err != nil {
		return fmt.Errorf("starting application: %w", err)
	}
	if err := e.app.Login(ctx); err != nil {
		return fmt.Errorf("application login: %w", err)
	}

	logger.Debug(logkeys.Message, "opening patient record")
	if err := e.app.OpenPatient(ctx, item.NationalID); err != nil {
		return fmt.Errorf("opening patient: %w", err)
	}

	if _, err := e.forms.Download(ctx, rctx, e.cfg.Document.Dir, e.cfg.Document.FileName); err != nil {
		return fmt.Errorf("downloading document: %w", err)
	}

	if err := e.journalizeForm(ctx, rctx, item); err != nil {
		return err
	}

	if err := e.validateContractor(ctx, rctx, item); err != nil {
		return err
	}

	if err := e.checkConsent(ctx, rctx, item); err != nil {
		return err
	}

	if err := e.status.UpdateProcessStatus(ctx, item.Reference, process.StatusSuccessful); err != nil {
		return fmt.Errorf("updating process status: %w", err)
	}
	return nil
}

// journalizeForm runs the document and journal-note handlers inside one
// dashboard step.
func (e *Engine) journalizeForm(ctx context.Context, rctx *process.Context, item *process.Item) error {
	step := e.cfg.Steps.Journalize
	if err := e.reporter.ReportStep(ctx, rctx, step, process.StepRunning, nil, false); err != nil {
		return fmt.Errorf("reporting journalize step: %w", err)
	}
	if err := e.journalizeDocument(ctx, rctx, item); err != nil {
		return err
	}
	if err := e.createJournalNote(ctx, rctx, item); err != nil {
		return err
	}
	if err := e.reporter.ReportStep(ctx, rctx, step, process.StepSuccess, nil, false); err != nil {
		return fmt.Errorf("reporting journalize step: %w", err)
	}
	return nil
}

// cleanUp removes the staged document folder. Failures are logged, never
// returned; cleanup must not mask the error that ended the item.
func (e *Engine) cleanUp(ctx context.Context) {
	logger := ctxlog.Logger(ctx, e.logger)
	if err := os.RemoveAll(e.cfg.Document.Dir); err != nil {
		logger.Info(logkeys.Message, "cleaning up document folder", logkeys.Error, err)
		return
	}
	logger.Debug(logkeys.Message, "cleaned up document folder", logkeys.Path, e.cfg.Document.Dir)
}
