package erpsync

// Status is the lifecycle state of a sync record
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// transitions lists the states reachable from each state through the
// processing path. Only a claimed record can be settled. Payload revisions
// and manual retries are handled by Record.Revise and Record.ResetForRetry.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusCompleted, StatusPending, StatusFailed},
	StatusCompleted:  {},
	StatusFailed:     {},
}

// IsValid reports whether s is a known status
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransitionTo reports whether the processing path may move s to next
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the record is out of the processing path
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// AllStatuses returns every status in display order
func AllStatuses() []Status {
	return []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed}
}

// Direction of a sync flow relative to the Hub
type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// IsValid reports whether d is a known direction
func (d Direction) IsValid() bool {
	return d == DirectionIn || d == DirectionOut
}
