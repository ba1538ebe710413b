package model

// Row status strings, written to and compared against store cells verbatim.
// Deployments may rename them through the configuration surface; these are
// the defaults every table ships with.
const (
	StatusPending    = "pending"
	StatusInProgress = "in-progress"
	StatusDone       = "done"
	StatusError      = "error"
)

// Worker liveness statuses. "unknown" is never written by a worker; readers
// substitute it for rows whose heartbeat has gone stale.
const (
	WorkerActive  = "active"
	WorkerIdle    = "idle"
	WorkerUnknown = "unknown"
)

// allowedTransitions encodes the legal lifecycle of a queue row. Dead-letter
// moves are deletions from the origin table, so they do not appear here; a
// row only ever leaves through in-progress.
var allowedTransitions = map[string]map[string]bool{
	"": {
		StatusPending: true,
	},
	StatusPending: {
		StatusPending:    true,
		StatusInProgress: true,
	},
	StatusInProgress: {
		StatusInProgress: true,
		StatusPending:    true, // retry or stall reset
		StatusDone:       true,
		StatusError:      true,
	},
	StatusDone: {
		StatusDone: true,
	},
	StatusError: {
		StatusError:   true,
		StatusPending: true, // manual requeue
	},
}

func IsKnownStatus(status string) bool {
	_, ok := allowedTransitions[status]
	return ok
}

func CanTransition(from, to string) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}
