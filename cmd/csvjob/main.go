package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/csvjob/cmd/csvjob/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.NewApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, commands.Describe(err))
		os.Exit(1)
	}
}
