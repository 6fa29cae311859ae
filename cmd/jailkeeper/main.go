package main

import (
	"os"

	"github.com/Wikid82/jailkeeper/internal/app"
	"github.com/Wikid82/jailkeeper/internal/cli"
)

func main() {
	app.LoadEnv()
	if err := cli.New().Execute(); err != nil {
		os.Exit(1)
	}
}
