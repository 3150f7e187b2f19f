// Package redo implements the process-wide plumbing shared by every redo
// command: signal-aware contexts, exit-time cleanup, and the environment
// contract children inherit from their parent .do invocation.
package redo

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
)

// InterruptibleContext returns a context canceled on SIGINT/SIGTERM. The
// currently running .do script (if any) is passed this context via
// exec.CommandContext, so an interrupt kills it directly; the build
// orchestrator still runs its normal non-zero-exit path afterward
// (mark_dirty, temp file removal) rather than skipping cleanup. This is
// distinct from REDO_KEEP_GOING's sibling-failure handling, which never
// cancels a child on its own.
func InterruptibleContext() (context.Context, context.CancelFunc) {
	ctx, canc := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Println("redo: interrupted, waiting for the running .do to exit")
		// A second signal falls through to the default disposition and
		// terminates immediately, in case the child or cleanup hangs.
		signal.Stop(sig)
		canc()
	}()
	return ctx, canc
}
