package remotejob

// Envelope codes reported by the task outputs endpoint.
const (
	CodeSuccess       = 0
	CodeRunning       = 804
	CodeFailed        = 805
	CodeQueueExceeded = 806
	CodeQueued        = 813
)

type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeSuccess
	OutcomeRunning
	OutcomeQueued
	OutcomeFailed
	OutcomeQueueExceeded
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRunning:
		return "running"
	case OutcomeQueued:
		return "queued"
	case OutcomeFailed:
		return "failed"
	case OutcomeQueueExceeded:
		return "queue-exceeded"
	}
	return "unknown"
}

// Classify maps a raw envelope code onto an Outcome.
func Classify(code int) Outcome {
	switch code {
	case CodeSuccess:
		return OutcomeSuccess
	case CodeRunning:
		return OutcomeRunning
	case CodeQueued:
		return OutcomeQueued
	case CodeFailed:
		return OutcomeFailed
	case CodeQueueExceeded:
		return OutcomeQueueExceeded
	}
	return OutcomeUnknown
}
