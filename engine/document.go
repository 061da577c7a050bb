package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/dentalrpa/journalize/logkeys"
	"github.com/dentalrpa/journalize/process"
	dentalstorage "github.com/dentalrpa/journalize/subsystem/dental/storage"
	statusstorage "github.com/dentalrpa/journalize/subsystem/status/storage"

	"github.com/micromdm/nanolib/log/ctxlog"
)

// ErrCreateNotObserved is returned when a create capability reported
// success but the target system still shows no record.
var ErrCreateNotObserved = errors.New("created record not observed in target system")

// journalizeDocument journalizes the staged document into the patient
// record, check-then-act: skip the create when the target system already
// holds a matching document, and confirm the create landed afterwards.
// The status store's DocumentCreated flag always reflects the true
// outcome, also when the broader process fails.
func (e *Engine) journalizeDocument(ctx context.Context, rctx *process.Context, item *process.Item) (err error) {
	logger := ctxlog.Logger(ctx, e.logger).With(logkeys.Reference, item.Reference)

	defer func() {
		if err == nil {
			return
		}
		if merr := e.status.UpdateResponseMetadata(ctx, item.Reference, StepKeyDocument, statusstorage.Fragment{"DocumentCreated": false}); merr != nil {
			logger.Info(logkeys.Message, "recording document failure flag", logkeys.Error, merr)
		}
		if serr := e.status.UpdateProcessStatus(ctx, item.Reference, process.StatusFailed); serr != nil {
			logger.Info(logkeys.Message, "updating process status", logkeys.Error, serr)
		}
		// a failed report replaces the step error, same policy as the
		// checkpoints: the status update is a required side effect
		if rerr := e.reporter.ReportStep(ctx, rctx, e.cfg.Steps.Journalize, process.StepFailed, err, true); rerr != nil {
			logger.Info(logkeys.Message, "reporting journalize step failure", logkeys.Error, rerr)
			err = fmt.Errorf("reporting failed status for step %s: %w", e.cfg.Steps.Journalize, rerr)
		}
		err = fmt.Errorf("journalizing document: %w", err)
	}()

	filter := &dentalstorage.DocumentFilter{
		NationalID:       item.NationalID,
		FileName:         e.cfg.Document.FileName,
		DocumentType:     e.cfg.Document.Type,
		DescriptionMatch: item.Reference,
	}
	exists, err := e.dental.DocumentExists(ctx, filter)
	if err != nil {
		return fmt.Errorf("checking document: %w", err)
	}
	if !exists {
		var path string
		if path, err = rctx.RequireString(process.KeyDocumentPath); err != nil {
			return err
		}
		if err = e.app.CreateDocument(ctx, path, e.cfg.Document.Type, item.Reference); err != nil {
			return fmt.Errorf("creating document: %w", err)
		}
		if exists, err = e.dental.DocumentExists(ctx, filter); err != nil {
			return fmt.Errorf("confirming document: %w", err)
		}
		if !exists {
			return fmt.Errorf("%w: document", ErrCreateNotObserved)
		}
	} else {
		logger.Debug(logkeys.Message, "document already journalized")
	}

	if err = e.status.UpdateResponseMetadata(ctx, item.Reference, StepKeyDocument, statusstorage.Fragment{"DocumentCreated": true}); err != nil {
		return fmt.Errorf("recording document flag: %w", err)
	}
	logger.Debug(logkeys.Message, "document journalized")
	return nil
}
