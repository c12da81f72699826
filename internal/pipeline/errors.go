package pipeline

import "fmt"

// StageError reports a stage whose unit of work failed after exhausting its
// configured retries. Recoverable is carried for future per-stage policy; no
// stage marks it true today.
type StageError struct {
	Stage       string
	Err         error
	Recoverable bool
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// DependencyError reports a stage that required an earlier stage's output
// which is absent. Raised immediately, never retried.
type DependencyError struct {
	Stage   string
	Missing string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("stage %s requires %s output, which is missing", e.Stage, e.Missing)
}
