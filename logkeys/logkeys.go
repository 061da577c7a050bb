// Package logkeys defines some static logging keys for consistent structured logging output.
// Mostly exists as a mental aid when drafting log messages.
package logkeys

const (
	Message = "msg"
	Error   = "err"

	// business item reference (form id) correlating one processing run.
	Reference = "reference"

	// citizen correlation key across the dashboard, the status store,
	// and the dental system.
	NationalID = "national_id"

	ProcessName = "process_name"
	StepName    = "step_name"
	Status      = "status"

	WorkItemID = "work_item_id"

	Path = "path"

	// a context-dependent numerical count/length of something
	GenericCount = "count"
)
