package ai

import "fmt"

// ServiceError reports a failed call to the generation endpoint (network,
// non-2xx status, empty candidate list).
type ServiceError struct {
	Op     string
	Status int
	Msg    string
	Err    error
}

func (e *ServiceError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("ai: %s failed: status=%d %s", e.Op, e.Status, e.Msg)
	}
	return fmt.Sprintf("ai: %s failed: %s", e.Op, e.Msg)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// ParseError reports a generation response that was not valid JSON or did not
// match the expected shape. Callers must treat the whole operation as failed;
// partial results are never kept.
type ParseError struct {
	Op  string
	Msg string
	Raw string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("ai: %s response rejected: %s", e.Op, e.Msg)
}
