package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tphakala/streambridge/cmd"
	"github.com/tphakala/streambridge/internal/buildinfo"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	cli := cmd.New(buildinfo.Current())
	err := cli.Execute(ctx)

	stop()
	cli.Close()
	if err != nil {
		os.Exit(1)
	}
}
