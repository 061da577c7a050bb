package engine

import (
	"context"
	"fmt"

	"github.com/dentalrpa/journalize/logkeys"
	"github.com/dentalrpa/journalize/process"
	dentalstorage "github.com/dentalrpa/journalize/subsystem/dental/storage"
	statusstorage "github.com/dentalrpa/journalize/subsystem/status/storage"

	"github.com/micromdm/nanolib/log/ctxlog"
)

// createJournalNote records the administrative journal note on the
// patient record, with the same check-then-act and flag semantics as the
// document handler.
func (e *Engine) createJournalNote(ctx context.Context, rctx *process.Context, item *process.Item) (err error) {
	logger := ctxlog.Logger(ctx, e.logger).With(logkeys.Reference, item.Reference)

	defer func() {
		if err == nil {
			return
		}
		if merr := e.status.UpdateResponseMetadata(ctx, item.Reference, StepKeyJournalNote, statusstorage.Fragment{"JournalNoteCreated": false}); merr != nil {
			logger.Info(logkeys.Message, "recording journal note failure flag", logkeys.Error, merr)
		}
		if serr := e.status.UpdateProcessStatus(ctx, item.Reference, process.StatusFailed); serr != nil {
			logger.Info(logkeys.Message, "updating process status", logkeys.Error, serr)
		}
		err = fmt.Errorf("creating journal note: %w", err)
	}()

	filter := &dentalstorage.NoteFilter{
		NationalID:  item.NationalID,
		Description: e.cfg.NoteLookup(),
	}
	exists, err := e.dental.JournalNoteExists(ctx, filter)
	if err != nil {
		return fmt.Errorf("checking journal note: %w", err)
	}
	if !exists {
		if err = e.app.CreateJournalNote(ctx, e.cfg.Note.Message, true); err != nil {
			return fmt.Errorf("creating note: %w", err)
		}
		if exists, err = e.dental.JournalNoteExists(ctx, filter); err != nil {
			return fmt.Errorf("confirming journal note: %w", err)
		}
		if !exists {
			return fmt.Errorf("%w: journal note", ErrCreateNotObserved)
		}
	} else {
		logger.Debug(logkeys.Message, "journal note already present")
	}

	if err = e.status.UpdateResponseMetadata(ctx, item.Reference, StepKeyJournalNote, statusstorage.Fragment{"JournalNoteCreated": true}); err != nil {
		return fmt.Errorf("recording journal note flag: %w", err)
	}
	logger.Debug(logkeys.Message, "journal note created")
	return nil
}
