package spooler

// IPP job-state values (RFC 8011 section 5.3.7)
const (
	JobPending    = 3
	JobHeld       = 4
	JobProcessing = 5
	JobStopped    = 6
	JobCanceled   = 7
	JobAborted    = 8
	JobCompleted  = 9
)

// IPP printer-state values
const (
	PrinterIdle       = 3
	PrinterProcessing = 4
	PrinterStopped    = 5
)

var jobStateLabels = map[int]string{
	JobPending:    "pending",
	JobHeld:       "held",
	JobProcessing: "processing",
	JobStopped:    "stopped",
	JobCanceled:   "canceled",
	JobAborted:    "aborted",
	JobCompleted:  "completed",
}

// JobStateLabel maps an IPP job-state code to its label, "unknown" if unrecognised.
func JobStateLabel(state int) string {
	if label, ok := jobStateLabels[state]; ok {
		return label
	}
	return "unknown"
}

// PrinterStateLabel maps an IPP printer-state code to its label.
func PrinterStateLabel(state int) string {
	switch state {
	case PrinterIdle:
		return "idle"
	case PrinterProcessing:
		return "processing"
	case PrinterStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// JobFinished reports whether state is terminal
func JobFinished(state int) bool {
	return state >= JobCanceled && state <= JobCompleted
}
