package main

import (
	"log"

	memory "github.com/datachainlab/ibc-relayer/chains/memchain/module"
	"github.com/datachainlab/ibc-relayer/cmd"
)

func main() {
	if err := cmd.Execute(
		memory.Module{},
	); err != nil {
		log.Fatal(err)
	}
}
