package engine

import "fmt"

// InvariantError describes a broken engine invariant: search and commit
// disagreed about legality or availability. It is raised with panic and
// is never recovered by the engine.
type InvariantError struct {
	Op  string
	Err error
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("engine invariant violated in %s: %v", e.Op, e.Err)
}

func (e *InvariantError) Unwrap() error {
	return e.Err
}

func violate(op string, err error) {
	panic(&InvariantError{Op: op, Err: err})
}
