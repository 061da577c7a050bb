// Package process defines the shared types of the journalizing pipeline:
// the work item, process and step statuses, the error taxonomy, and the
// per-item run context.
package process

import (
	"encoding/json"
	"errors"
)

// Status is the persistent state of one item's journalizing process.
type Status string

const (
	StatusInProgress Status = "InProgress"
	StatusSuccessful Status = "Successful"
	StatusFailed     Status = "Failed"
)

// StepStatus is the dashboard-facing state of a single pipeline step.
type StepStatus string

const (
	StepRunning StepStatus = "running"
	StepSuccess StepStatus = "success"
	StepFailed  StepStatus = "failed"
)

var (
	ErrMissingReference  = errors.New("missing item reference")
	ErrMissingNationalID = errors.New("missing national id")
)

// Item is one citizen's request for journal documents.
// The JSON field names follow the submitted form payload.
type Item struct {
	Reference      string          `json:"reference"`
	NationalID     string          `json:"national_id"`
	URL            string          `json:"url"`
	ClinicName     string          `json:"clinic_name"`
	ClinicAddress  string          `json:"clinic_address"`
	ClinicPhone    string          `json:"clinic_phone_number"`
	ClinicProvider string          `json:"clinic_provider_number"`
	Consent        bool            `json:"consent"`
	FormData       json.RawMessage `json:"form_data,omitempty"`
	WorkItemID     string          `json:"work_item_id"`
}

// Validate checks for the identifiers no processing can proceed without.
func (it *Item) Validate() error {
	if it == nil || it.Reference == "" {
		return ErrMissingReference
	}
	if it.NationalID == "" {
		return ErrMissingNationalID
	}
	return nil
}
