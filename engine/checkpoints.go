package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/dentalrpa/journalize/dashboard"
	"github.com/dentalrpa/journalize/logkeys"
	"github.com/dentalrpa/journalize/process"
	dentalstorage "github.com/dentalrpa/journalize/subsystem/dental/storage"

	"github.com/micromdm/nanolib/log/ctxlog"
)

// contractorNotMatchedMessage is shown to operators when the chosen
// clinic cannot be found in the target system. The item can be
// resubmitted once the clinic is registered or its numbers corrected.
const contractorNotMatchedMessage = "The chosen dental clinic could not be matched to a clinic in the target system by provider number or phone number. " +
	"Ask the dental administration to verify the clinic's registration and its provider and phone numbers, then restart the process."

// reportCheckpointFailure reports a failed step run with a rerun marker
// when *errp holds a checkpoint error. A failed report replaces the step
// error: a status update is a required side effect and its failure must
// surface (the original reason is logged first).
func (e *Engine) reportCheckpointFailure(ctx context.Context, rctx *process.Context, step string, errp *error) {
	if *errp == nil {
		return
	}
	logger := ctxlog.Logger(ctx, e.logger).With(logkeys.StepName, step)
	logger.Info(logkeys.Message, "checkpoint failed", logkeys.Error, *errp)
	if rerr := e.reporter.ReportStep(ctx, rctx, step, process.StepFailed, *errp, true); rerr != nil {
		logger.Info(logkeys.Message, "reporting checkpoint failure", logkeys.Error, rerr)
		*errp = fmt.Errorf("reporting failed status for step %s: %w", step, rerr)
	}
}

// validateContractor checks that the item's clinic exists unambiguously
// in the target system and reassigns the patient's clinic when the
// currently assigned contractor differs from the matched one.
func (e *Engine) validateContractor(ctx context.Context, rctx *process.Context, item *process.Item) (err error) {
	step := e.cfg.Steps.Contractor
	logger := ctxlog.Logger(ctx, e.logger).With(logkeys.StepName, step)

	if err = e.reporter.ReportStep(ctx, rctx, step, process.StepRunning, nil, false); err != nil {
		return fmt.Errorf("reporting contractor step: %w", err)
	}
	defer e.reportCheckpointFailure(ctx, rctx, step, &err)

	clinics, lerr := e.dental.ListClinics(ctx, []dentalstorage.ClinicFilter{{
		Phone:        item.ClinicPhone,
		ContractorID: item.ClinicProvider,
	}})
	if lerr != nil {
		err = fmt.Errorf("looking up clinic: %w", lerr)
		return err
	}
	logger.Debug(logkeys.Message, "clinic lookup", logkeys.GenericCount, len(clinics))

	if len(clinics) < 1 {
		err = process.NewBusinessError(contractorNotMatchedMessage)
		return err
	}
	if len(clinics) > 1 {
		err = process.NewBusinessError("the phone number matches more than one clinic in the target system")
		return err
	}

	matched := clinics[0]
	current, derr := e.dental.ListExternDentists(ctx, item.NationalID)
	if derr != nil {
		err = fmt.Errorf("looking up assigned contractor: %w", derr)
		return err
	}
	// reassign only when a contractor is currently assigned and differs
	// from the matched clinic by id or phone
	if len(current) > 0 && (current[0].ContractorID != matched.ContractorID || current[0].Phone != matched.Phone) {
		logger.Debug(
			logkeys.Message, "reassigning clinic",
			"clinic_name", matched.Name,
		)
		if cerr := e.app.ChangeClinic(ctx, matched.Name); cerr != nil {
			err = fmt.Errorf("reassigning clinic: %w", cerr)
			return err
		}
	}

	if err = e.reporter.ReportStep(ctx, rctx, step, process.StepSuccess, nil, false); err != nil {
		err = fmt.Errorf("reporting contractor step: %w", err)
	}
	return err
}

// checkConsent verifies the clinic data recorded on the citizen's latest
// dashboard run against the item. Any match passes regardless of consent;
// no match is a business failure either way, and no match with claimed
// consent flags a data inconsistency for manual review.
func (e *Engine) checkConsent(ctx context.Context, rctx *process.Context, item *process.Item) (err error) {
	step := e.cfg.Steps.Consent

	if err = e.reporter.ReportStep(ctx, rctx, step, process.StepRunning, nil, false); err != nil {
		return fmt.Errorf("reporting consent step: %w", err)
	}
	defer e.reportCheckpointFailure(ctx, rctx, step, &err)

	matches, merr := e.clinicDataMatches(ctx, item)
	if merr != nil {
		err = fmt.Errorf("checking clinic data match: %w", merr)
		return err
	}

	switch {
	case !matches && item.Consent:
		err = process.NewBusinessError("clinic data does not match, but consent was given; manual review required")
		return err
	case !matches && !item.Consent:
		err = process.NewBusinessError("clinic data does not match and consent was not given")
		return err
	}

	if err = e.reporter.ReportStep(ctx, rctx, step, process.StepSuccess, nil, false); err != nil {
		err = fmt.Errorf("reporting consent step: %w", err)
	}
	return err
}

// normalizeID trims surrounding whitespace and case-folds for the
// clinic-data comparison.
func normalizeID(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// clinicDataMatches compares the clinic identifiers recorded on the
// citizen's latest dashboard run against the item's, OR semantics: a
// phone match or a provider-number match is a data match. A citizen with
// no recorded run never matches.
func (e *Engine) clinicDataMatches(ctx context.Context, item *process.Item) (bool, error) {
	meta, err := e.reporter.LatestRunMeta(ctx, item.NationalID)
	if err != nil {
		return false, err
	}
	if meta == nil {
		return false, nil
	}
	return normalizeID(meta[dashboard.MetaClinicPhone]) == normalizeID(item.ClinicPhone) ||
		normalizeID(meta[dashboard.MetaClinicProvider]) == normalizeID(item.ClinicProvider), nil
}
