package migration

const (
	statusPendingStringConstant            = "Pending"
	statusInProgressStringConstant         = "InProgress"
	statusCompletedStringConstant          = "Completed"
	statusFailedStringConstant             = "Failed"
	statusPartiallyCompletedStringConstant = "PartiallyCompleted"
	statusSkippedStringConstant            = "Skipped"
)

// Status enumerates the lifecycle states of a migrated entity.
type Status string

// Lifecycle states.
const (
	StatusPending            Status = Status(statusPendingStringConstant)
	StatusInProgress         Status = Status(statusInProgressStringConstant)
	StatusCompleted          Status = Status(statusCompletedStringConstant)
	StatusFailed             Status = Status(statusFailedStringConstant)
	StatusPartiallyCompleted Status = Status(statusPartiallyCompletedStringConstant)
	StatusSkipped            Status = Status(statusSkippedStringConstant)
)

// AllStatuses lists every lifecycle state in declaration order.
func AllStatuses() []Status {
	return []Status{
		StatusPending,
		StatusInProgress,
		StatusCompleted,
		StatusFailed,
		StatusPartiallyCompleted,
		StatusSkipped,
	}
}

// IsTerminal reports whether the transfer phase must leave the entity untouched.
func (status Status) IsTerminal() bool {
	return status == StatusCompleted || status == StatusSkipped
}

// IsDone reports whether the status counts as finished for aggregation.
func (status Status) IsDone() bool {
	return status.IsTerminal()
}

// String returns the textual status.
func (status Status) String() string {
	return string(status)
}

// Aggregate derives a parent status from the statuses of its children.
//
// A parent with no children is Skipped.
func Aggregate(childStatuses []Status) Status {
	allDone := true
	anyCompleted := false
	anyFailed := false

	for _, childStatus := range childStatuses {
		if !childStatus.IsDone() {
			allDone = false
		}
		switch childStatus {
		case StatusCompleted:
			anyCompleted = true
		case StatusFailed:
			anyFailed = true
		}
	}

	switch {
	case anyFailed && allDone:
		return StatusPartiallyCompleted
	case anyFailed:
		return StatusFailed
	case allDone && anyCompleted:
		return StatusCompleted
	case allDone:
		return StatusSkipped
	default:
		return StatusPartiallyCompleted
	}
}
