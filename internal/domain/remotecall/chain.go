package remotecall

import "fmt"

// Step is one backend invocation within a chain.
type Step struct {
	Module string
	Args   string
	// Focus marks the step whose outcome is surfaced as the primary result.
	Focus bool
}

// Label renders the step as "module:args", the form used in all_results.
func (s Step) Label() string {
	return fmt.Sprintf("%s:%s", s.Module, s.Args)
}

// StepChain is the ordered list of steps resolved for one request.
type StepChain []Step

// Validate checks that the chain is non-empty and has exactly one focused step.
func (c StepChain) Validate() error {
	if len(c) == 0 {
		return NewInternalError("resolved chain is empty", nil)
	}
	focused := 0
	for _, step := range c {
		if step.Module == "" {
			return NewInternalError("resolved step has no module", nil)
		}
		if step.Focus {
			focused++
		}
	}
	if focused != 1 {
		return NewInternalError(fmt.Sprintf("resolved chain has %d focused steps", focused), nil)
	}
	return nil
}

// FocusIndex returns the position of the focused step, or -1.
func (c StepChain) FocusIndex() int {
	for i, step := range c {
		if step.Focus {
			return i
		}
	}
	return -1
}
