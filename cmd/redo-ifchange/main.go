// Command redo-ifchange builds each named target only if it is out of
// date, then records each as an ifchange dependency of the parent target
// whose .do is currently running (spec §4.6, §6). When invoked directly
// by a user rather than from inside a .do, there is no parent to record
// against; only the conditional build happens.
package main

import (
	"errors"
	"flag"
	"log"
	"os"
	"strings"

	"github.com/distr1/redo"
	"github.com/distr1/redo/internal/batch"
	"github.com/distr1/redo/internal/build"
	"github.com/distr1/redo/internal/depcmd"
	"github.com/distr1/redo/internal/env"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("redo-ifchange: ")
	if err := run(); err != nil {
		log.Println(err)
		os.Exit(exitCode(err))
	}
}

func run() error {
	var (
		verbose = flag.Bool("v", false, "verbose: pass -v to the spawned shell")
		trace   = flag.Bool("x", false, "trace: pass -x to the spawned shell")
		_       = flag.Int("j", 1, "reserved: this process always builds one target at a time; parallelism only comes from separate OS processes")
	)
	flag.Parse()

	var extra []string
	if *trace {
		extra = append(extra, "-x")
	}
	if *verbose {
		extra = append(extra, "-v")
	}
	if len(extra) > 0 {
		combined := strings.TrimSpace(env.ShellExtraArgs() + " " + strings.Join(extra, " "))
		os.Setenv(env.ShellArgs, combined)
	}

	targets := flag.Args()
	if len(targets) == 0 {
		targets = []string{"all"}
	}

	ctx, cancel := redo.InterruptibleContext()
	defer cancel()

	sess, err := build.NewSession()
	if err != nil {
		return err
	}

	buildErr := batch.Run(ctx, sess, batch.IfChange, targets, sess.KeepGoing)

	// Record dependency declarations regardless of individual build
	// failures under keep-going, so sibling targets that did succeed are
	// still properly tracked.
	if env.ParentTarget() != "" {
		for _, t := range targets {
			if err := depcmd.StoreIfChange(sess.Root, t); err != nil && buildErr == nil {
				buildErr = err
			}
		}
	}

	if err := redo.RunAtExit(); err != nil && buildErr == nil {
		buildErr = err
	}
	return buildErr
}

func exitCode(err error) int {
	var exitErr *build.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}
