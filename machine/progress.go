package machine

// JobState is the state of the Runner.
type JobState string

const (
	StateIdle    JobState = "idle"
	StateRunning JobState = "running"
	StatePaused  JobState = "paused"

	// StateStopping is reserved; a stop always ends in StateDone.
	StateStopping JobState = "stopping"

	StateError JobState = "error"
	StateDone  JobState = "done"
)

// Active reports whether a job is in progress.
func (s JobState) Active() bool {
	return s == StateRunning || s == StatePaused
}

// Progress is a snapshot of the current job.
type Progress struct {
	State        JobState `json:"state"`
	CurrentLine  int      `json:"current_line"`
	TotalLines   int      `json:"total_lines"`
	Filename     string   `json:"filename"`
	ErrorMessage string   `json:"error_message"`
}

// ProgressFunc receives a snapshot after every state or line change.
type ProgressFunc func(Progress)

// Messages reported in Progress.ErrorMessage for failed preconditions.
const (
	MsgFileNotFound = "File not found"
	MsgNotConnected = "Not connected"
)
