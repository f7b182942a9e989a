package main

import (
	"os"

	"github.com/slighter12/maya-livelink-go/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
