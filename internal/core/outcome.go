package core

// OutcomeStatus classifies the result of a best-effort maintenance step.
type OutcomeStatus string

const (
	// OutcomeOK means the step ran and succeeded.
	OutcomeOK OutcomeStatus = "ok"
	// OutcomeSkipped means the step was deliberately not run (for example,
	// a validation-interval gate had not elapsed yet).
	OutcomeSkipped OutcomeStatus = "skipped"
	// OutcomeFailed means the step ran and failed. Maintenance failures are
	// logged and swallowed, never propagated into the authentication path,
	// so the reason is carried here for callers and tests to assert on.
	OutcomeFailed OutcomeStatus = "failed"
)

// MaintenanceOutcome is the typed result of a validation or cleanup step.
// It replaces inferring "why was this a no-op" from the absence of a log
// line.
type MaintenanceOutcome struct {
	Status OutcomeStatus
	Reason string
}

// Skipped builds a skipped outcome with the given reason.
func Skipped(reason string) MaintenanceOutcome {
	return MaintenanceOutcome{Status: OutcomeSkipped, Reason: reason}
}

// Failed builds a failed outcome carrying the error text.
func Failed(err error) MaintenanceOutcome {
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	return MaintenanceOutcome{Status: OutcomeFailed, Reason: reason}
}

// OK is the successful outcome.
func OK() MaintenanceOutcome {
	return MaintenanceOutcome{Status: OutcomeOK}
}
