package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/automaxprocs/maxprocs"

	"github.com/moweilong/tokenservice/cmd/tokenctl/app"
	"github.com/moweilong/tokenservice/pkg/log"
)

func main() {
	// Match GOMAXPROCS to the container CPU quota.
	_, _ = maxprocs.Set(maxprocs.Logger(log.Debugf))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.NewTokenctlCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
