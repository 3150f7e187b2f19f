package build

import (
	"errors"
	"fmt"
)

// ErrDeferred is returned by RedoTarget/IfChangeTarget when called with
// block=false and the target's LockFile is already held by another
// process. The caller is expected to retry the same target later with
// block=true (spec §4.5 step 2's two-pass acquisition): a first pass over
// every requested target that only takes locks it can get immediately,
// followed by a second pass that waits on whatever is left.
var ErrDeferred = errors.New("build: target lock held elsewhere, deferred")

// NoDoFileError is returned when no .do script can be found for a target
// (spec §7 "No .do found for a requested target").
type NoDoFileError struct {
	Target string
}

func (e *NoDoFileError) Error() string {
	return fmt.Sprintf("%s: no .do file found", e.Target)
}

// ExitError wraps a failing .do script's exit code so callers (the
// multi-target driver, in particular) can propagate it verbatim per spec
// §7 "propagate the child's exit code unless keep-going".
type ExitError struct {
	Target string
	Code   int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s: .do exited with status %d", e.Target, e.Code)
}
