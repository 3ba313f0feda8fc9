package process

import (
	"errors"
	"fmt"
)

// ErrExecutableNotFound is returned (wrapped with the path) when the configured
// executable does not exist or is not executable.
var ErrExecutableNotFound = errors.New("executable not found")

// SpawnError reports an OS-level failure to create the child.
type SpawnError struct {
	Name string
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s (%s): %v", e.Name, e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }
