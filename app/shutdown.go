package app

import (
	"context"

	"github.com/dentalrpa/journalize/logkeys"

	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

// Shutdown tears the application down: a soft close first, then a
// forceful terminate while the process is still alive. Shutdown failures
// are logged, never returned; teardown must not mask the error that
// ended the item.
func Shutdown(ctx context.Context, a App, logger log.Logger) {
	logger = ctxlog.Logger(ctx, logger)
	if err := a.Close(ctx); err != nil {
		logger.Info(logkeys.Message, "soft close", logkeys.Error, err)
	}
	if !a.Running(ctx) {
		logger.Debug(logkeys.Message, "application closed softly")
		return
	}
	if err := a.Terminate(ctx); err != nil {
		logger.Info(logkeys.Message, "forceful terminate", logkeys.Error, err)
		return
	}
	logger.Info(logkeys.Message, "application terminated forcefully")
}
