package ledger

import "time"

// RunStatus is the lifecycle state of a recorded run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Run is one invocation of the composer.
type Run struct {
	ID         string
	Source     string
	Records    int
	Batches    int
	Status     RunStatus
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration reports how long a finished run took, or zero while running.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Batch is one archive emitted by a run.
type Batch struct {
	RunID       string
	Index       int
	Archive     string
	GCode       string
	RemoteID    string
	SpecimenIDs []string
	CreatedAt   time.Time
}
