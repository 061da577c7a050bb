package dashboard

import (
	"context"
	"time"

	"github.com/dentalrpa/journalize/logkeys"
	"github.com/dentalrpa/journalize/process"

	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

// failure error codes on step-run updates.
const (
	ErrorCodeBusiness = "business"
	ErrorCodeProcess  = "process"
)

// processFailureMessage is the operator-facing text attached to step runs
// that failed for non-business reasons.
const processFailureMessage = "The process failed. Operations has been notified and will investigate and restart the process."

// StepRunFailure is the structured failure payload on a step-run update.
type StepRunFailure struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
}

// StepRunRerun marks a failed step run as resubmittable by carrying the
// originating work-item id.
type StepRunRerun struct {
	WorkItemID string `json:"workitem_id"`
}

// StepRunUpdate is the PATCH body for a step-run record. The step is
// reported as a point-in-time transition: started and finished carry the
// same timestamp.
type StepRunUpdate struct {
	Status      string          `json:"status"`
	StartedAt   string          `json:"started_at"`
	FinishedAt  string          `json:"finished_at"`
	Failure     *StepRunFailure `json:"failure"`
	RerunConfig *StepRunRerun   `json:"rerun_config"`
}

// timestamp format: ISO-8601, millisecond precision, UTC "Z" suffix.
const timestampFormat = "2006-01-02T15:04:05.000Z07:00"

func nowTimestamp() string {
	return time.Now().UTC().Format(timestampFormat)
}

// Reporter reports pipeline step outcomes against the dashboard for one
// fixed process display name.
type Reporter struct {
	client      *Client
	processName string
	logger      log.Logger
}

// ReporterOption configures a Reporter.
type ReporterOption func(*Reporter)

// WithReporterLogger sets the reporter logger.
func WithReporterLogger(logger log.Logger) ReporterOption {
	return func(r *Reporter) {
		r.logger = logger
	}
}

// NewReporter creates a step reporter for the named dashboard process.
func NewReporter(client *Client, processName string, opts ...ReporterOption) *Reporter {
	r := &Reporter{
		client:      client,
		processName: processName,
		logger:      log.NopLogger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// resolveStepRunID walks process name -> process id -> step id -> latest
// run id -> step-run id. The dashboard exposes no stable handle, so the
// chain is re-resolved on every report; ids are never cached across steps.
func (r *Reporter) resolveStepRunID(ctx context.Context, stepName, nationalID string) (int, error) {
	processID, err := r.client.ProcessID(ctx, r.processName)
	if err != nil {
		return 0, err
	}
	stepID, err := r.client.StepID(ctx, processID, stepName)
	if err != nil {
		return 0, err
	}
	runID, err := r.client.LatestRunID(ctx, processID, nationalID)
	if err != nil {
		return 0, err
	}
	return r.client.StepRunID(ctx, runID, stepID)
}

// buildUpdate builds the step-run PATCH body for a status transition.
func buildUpdate(rctx *process.Context, status process.StepStatus, failure error, rerun bool) *StepRunUpdate {
	now := nowTimestamp()
	update := &StepRunUpdate{
		Status:     string(status),
		StartedAt:  now,
		FinishedAt: now,
	}
	if failure != nil {
		if process.IsBusiness(failure) {
			update.Failure = &StepRunFailure{
				ErrorCode: ErrorCodeBusiness,
				Message:   failure.Error(),
			}
		} else {
			update.Failure = &StepRunFailure{
				ErrorCode: ErrorCodeProcess,
				Message:   processFailureMessage,
				Details:   failure.Error(),
			}
		}
	}
	if rerun {
		update.RerunConfig = &StepRunRerun{
			WorkItemID: rctx.GetString(process.KeyWorkItemID),
		}
	}
	return update
}

// ReportStep updates the dashboard step-run record for stepName with a
// status transition. Failures of the report itself propagate to the
// caller: a status update is a required side effect of the business step,
// never silently skipped.
func (r *Reporter) ReportStep(ctx context.Context, rctx *process.Context, stepName string, status process.StepStatus, failure error, rerun bool) error {
	logger := ctxlog.Logger(ctx, r.logger).With(
		logkeys.StepName, stepName,
		logkeys.Status, string(status),
	)
	nationalID, err := rctx.RequireString(process.KeyNationalID)
	if err != nil {
		return err
	}
	stepRunID, err := r.resolveStepRunID(ctx, stepName, nationalID)
	if err != nil {
		logger.Info(logkeys.Message, "resolving step run", logkeys.Error, err)
		return err
	}
	if err = r.client.UpdateStepRun(ctx, stepRunID, buildUpdate(rctx, status, failure, rerun)); err != nil {
		logger.Info(logkeys.Message, "updating step run", logkeys.Error, err)
		return err
	}
	logger.Debug(logkeys.Message, "updated step run", "step_run_id", stepRunID)
	return nil
}

// run metadata keys recording the clinic chosen on the submitted form.
// "ydernummer" is the Danish health-service provider number.
const (
	MetaClinicPhone    = "new_clinic_phone_number"
	MetaClinicProvider = "new_clinic_ydernummer"
)

// ReportRunMetadata patches the citizen's latest run metadata with the
// item's clinic phone and provider number. Empty values are omitted.
func (r *Reporter) ReportRunMetadata(ctx context.Context, item *process.Item) error {
	meta := make(map[string]string)
	if item.ClinicPhone != "" {
		meta[MetaClinicPhone] = item.ClinicPhone
	}
	if item.ClinicProvider != "" {
		meta[MetaClinicProvider] = item.ClinicProvider
	}
	processID, err := r.client.ProcessID(ctx, r.processName)
	if err != nil {
		return err
	}
	runID, err := r.client.LatestRunID(ctx, processID, item.NationalID)
	if err != nil {
		return err
	}
	return r.client.UpdateRunMetadata(ctx, runID, meta)
}

// LatestRunMeta returns the metadata recorded on the citizen's latest
// run, or nil when no run exists.
func (r *Reporter) LatestRunMeta(ctx context.Context, nationalID string) (map[string]string, error) {
	processID, err := r.client.ProcessID(ctx, r.processName)
	if err != nil {
		return nil, err
	}
	return r.client.LatestRunMeta(ctx, processID, nationalID)
}
