package main

import (
	"github.com/gantry-io/gantry/cmd"
	"github.com/gantry-io/gantry/env"
	"github.com/gantry-io/gantry/pkg/log"
)

func main() {
	if err := env.Process(); err != nil {
		log.Fatal("environment failure", "error", err)
	}

	if err := cmd.Execute(); err != nil {
		log.Fatal("gantry failure", "error", err)
	}
}
