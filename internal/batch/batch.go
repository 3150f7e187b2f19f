// Package batch implements the multi-target driver behind a single
// redo/redo-ifchange invocation with more than one argument: the two-pass
// lock acquisition and REDO_KEEP_GOING semantics of spec §4.5 step 2 and
// §7. Unlike distri's internal/batch.go — which schedules a whole
// repository's packages concurrently against a statically known
// dependency graph built with gonum/graph and golang.org/x/sync/errgroup
// — targets here have no graph to schedule against up front (each
// target's dependencies are discovered only while its .do script runs,
// via the recursive redo-ifchange/-ifcreate/-always calls it makes), and
// the engine is single-threaded per process: concurrency exists only
// across separate OS processes, never between goroutines inside one of
// them. So this driver never spawns a goroutine; it processes the given
// targets one at a time, in two sequential passes, so that a target whose
// lock is free doesn't wait behind one that isn't.
package batch

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"strings"

	"github.com/distr1/redo/internal/build"
	"golang.org/x/xerrors"
)

// Op is one of the two ways a target can be driven: an unconditional
// rebuild (`redo`) or a conditional one (`redo-ifchange`). block is
// forwarded to build.Session's lock acquisition (spec §4.5 step 2).
type Op func(ctx context.Context, s *build.Session, target string, block bool) error

// Redo drives build.Session.RedoTarget.
func Redo(ctx context.Context, s *build.Session, target string, block bool) error {
	return s.RedoTarget(ctx, target, block)
}

// IfChange drives build.Session.IfChangeTarget.
func IfChange(ctx context.Context, s *build.Session, target string, block bool) error {
	return s.IfChangeTarget(ctx, target, block)
}

// Run builds targets under op, sequentially, one at a time. It implements
// spec §4.5 step 2's two-pass lock acquisition: a first pass attempts
// every target with a non-blocking lock, deferring any that are already
// held by another process; a second pass then waits on whatever is left.
// This lets progress happen on uncontended targets before the driver
// blocks on a contended one, without ever running two .do scripts
// concurrently in this process.
//
// Non-keep-going mode stops at the first failing target and returns its
// error, leaving any remaining targets unattempted — since nothing here
// ever runs concurrently, there is no in-flight sibling to cancel (spec
// §5: REDO_KEEP_GOING "never cancels an in-flight child"). Keep-going
// mode lets every target run and returns a combined error naming every
// target that failed.
func Run(ctx context.Context, s *build.Session, op Op, targets []string, keepGoing bool) error {
	if len(targets) == 0 {
		return nil
	}
	ordered := targets
	if s.Shuffle == "random" {
		ordered = shuffled(targets)
	}

	var deferred, failed []string
	var lastErr error

	run := func(t string, block bool) (stop bool) {
		log.Printf("redo: %s", t)
		err := op(ctx, s, t, block)
		switch {
		case err == nil:
			return false
		case !block && errors.Is(err, build.ErrDeferred):
			deferred = append(deferred, t)
			return false
		default:
			failed = append(failed, t)
			lastErr = err
			return !keepGoing
		}
	}

	for _, t := range ordered {
		if run(t, false) {
			return xerrors.Errorf("%s: %w", t, lastErr)
		}
	}
	for _, t := range deferred {
		if run(t, true) {
			return xerrors.Errorf("%s: %w", t, lastErr)
		}
	}

	if len(failed) == 0 {
		return nil
	}
	return xerrors.Errorf("%d of %d targets failed (%s): %w", len(failed), len(ordered), strings.Join(failed, ", "), lastErr)
}

func shuffled(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
