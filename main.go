package main

import (
	"context"
	"os"

	"github.com/dkmnx/with/cmd"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, stop := cmd.SignalContext(context.Background())
	defer stop()

	return cmd.ExitCode(cmd.Execute(ctx, args))
}
