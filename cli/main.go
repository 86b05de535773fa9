package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/devilmonastery/tessera/cli/internal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cli.Execute(ctx, cli.Deps{}, nil); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", cli.FormatError(err))
		stop()
		os.Exit(1)
	}
}
