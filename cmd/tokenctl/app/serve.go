package app

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/moweilong/tokenservice/pkg/log"
	"github.com/moweilong/tokenservice/pkg/tokenclient"
)

func newServeCommand(a *tokenctl) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve health, statistics and metrics of the token sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
}

// serve registers every configured source, keeps their tokens fresh and runs the apiserver.
func (a *tokenctl) serve(ctx context.Context) error {
	c, release, err := a.container(ctx)
	if err != nil {
		return err
	}
	defer release()

	if _, err := tokenclient.AddDefault(c); err != nil {
		return err
	}
	for _, section := range a.opts.Sections {
		if _, err := tokenclient.AddSection(c, section); err != nil {
			return err
		}
	}

	server, err := a.opts.Config(c.Registry()).NewServer()
	if err != nil {
		return err
	}

	if a.opts.RefreshInterval > 0 {
		go refresh(ctx, c, a.opts.RefreshInterval)
	}
	return server.Run(ctx)
}

// refresh asks every source for a token now and then every interval. Cached tokens are
// served from the cache, so only expired ones reach the token service.
func refresh(ctx context.Context, c *tokenclient.Container, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := c.Warmup(ctx); err != nil && ctx.Err() == nil {
			log.Errorw(err, "Failed to refresh access tokens")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
