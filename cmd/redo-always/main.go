// Command redo-always records an always dependency on the parent target,
// forcing it to rebuild on every subsequent redo-ifchange (spec §4.6,
// §6). It takes no arguments.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/distr1/redo/internal/depcmd"
	"github.com/distr1/redo/internal/env"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("redo-always: ")
	flag.Parse()

	root, err := env.Root()
	if err != nil {
		log.Println(err)
		os.Exit(1)
	}
	if err := depcmd.StoreAlways(root); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}
