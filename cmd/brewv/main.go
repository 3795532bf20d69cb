package main

import (
	"os"

	"brewv/internal/cli"
	"brewv/internal/errors"
)

func main() {
	os.Exit(run())
}

func run() int {
	err := cli.Execute(os.Args[1:], cli.Options{})
	return errors.ExitCode(err)
}
