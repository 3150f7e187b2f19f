// Command redo unconditionally rebuilds the named targets (spec §6
// "redo [targets…] — build each target unconditionally"). Flag handling
// and the interruptible-context / atexit wiring follow distri's cmd/
// binaries (distri.go's per-subcommand main pattern).
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
	"github.com/distr1/redo/internal/env"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("redo: ")
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

	buildErr := batch.Run(ctx, sess, batch.Redo, targets, sess.KeepGoing)
	if err := redo.RunAtExit(); err != nil {
		if buildErr == nil {
			buildErr = err
		}
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
