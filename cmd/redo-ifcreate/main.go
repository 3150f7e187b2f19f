// Command redo-ifcreate records an ifcreate dependency on each named path
// in the parent target's MetaDir, without building anything. It fails if
// any named path already exists (spec §4.6, §6).
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
	log.SetPrefix("redo-ifcreate: ")
	flag.Parse()

	root, err := env.Root()
	if err != nil {
		log.Println(err)
		os.Exit(1)
	}

	var failed bool
	for _, p := range flag.Args() {
		if err := depcmd.StoreIfCreate(root, p); err != nil {
			log.Println(err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}
