package model

// Worker is a self-reported liveness record. Each row is owned exclusively
// by the worker whose hostname it names; no other worker writes to it.
type Worker struct {
	Hostname string
	LastSeen string
	Status   string
}

// WorkerFromRow decodes a store row into a Worker.
func WorkerFromRow(row map[string]string) *Worker {
	return &Worker{
		Hostname: row[ColHostname],
		LastSeen: row[ColLastSeen],
		Status:   row[ColStatus],
	}
}

// ToRow encodes the worker back into a store row.
func (w *Worker) ToRow() map[string]string {
	return map[string]string{
		ColHostname: w.Hostname,
		ColLastSeen: w.LastSeen,
		ColStatus:   w.Status,
	}
}
