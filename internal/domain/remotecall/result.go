package remotecall

// Status is the overall outcome of a remote call.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// HostOutcome captures what one host reported for one step.
type HostOutcome struct {
	Host    string `json:"host"`
	Stdout  string `json:"stdout"`
	Stderr  string `json:"stderr"`
	RC      int    `json:"rc"`
	Msg     string `json:"msg"`
	Changed bool   `json:"changed"`
	Failed  bool   `json:"failed"`
}

// StepOutcome groups the host outcomes of one executed step.
type StepOutcome struct {
	Task   string        `json:"task"`
	Focus  bool          `json:"focus"`
	Result []HostOutcome `json:"result"`
}

// Failed reports whether any host failed the step.
func (s StepOutcome) Failed() bool {
	for _, outcome := range s.Result {
		if outcome.Failed {
			return true
		}
	}
	return false
}

// ExecutionResult is the aggregated outcome of running a chain.
type ExecutionResult struct {
	Status  Status
	Primary *HostOutcome
	Steps   []StepOutcome
	Err     *DomainError
	// Target holds the event data of the first ok event in the chain.
	Target map[string]interface{}
	// Executed is false when the chain aborted before any step finished.
	Executed bool
}

// HasFailures reports whether any step outcome is marked failed.
func (r ExecutionResult) HasFailures() bool {
	for _, step := range r.Steps {
		if step.Failed() {
			return true
		}
	}
	return false
}
