// Package app implements the tokenctl command line.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/moweilong/tokenservice/cmd/tokenctl/app/options"
	"github.com/moweilong/tokenservice/internal/pkg/contextx"
	"github.com/moweilong/tokenservice/internal/pkg/known"
	"github.com/moweilong/tokenservice/pkg/cache"
	"github.com/moweilong/tokenservice/pkg/log"
	"github.com/moweilong/tokenservice/pkg/tokenclient"
)

const (
	// defaultHomeDir defines the default directory to store the configuration for tokenctl.
	defaultHomeDir = ".tokenctl"

	// defaultConfigName specifies the default configuration file name, without extension.
	defaultConfigName = "tokenctl"

	// envPrefix prefixes every environment variable read by tokenctl.
	envPrefix = "TOKENCTL"
)

// tokenctl carries the state shared by the sub commands.
type tokenctl struct {
	v          *viper.Viper
	configFile string
	opts       *options.ServerOptions
}

// NewTokenctlCommand creates the root command.
func NewTokenctlCommand() *cobra.Command {
	a := &tokenctl{v: viper.New(), opts: options.NewServerOptions()}

	cmd := &cobra.Command{
		Use:   "tokenctl",
		Short: "Acquire OAuth2 client credentials tokens and watch their health",
		Long: `tokenctl reads token service sections from its configuration file and
either prints a token or serves the health, statistics and metrics of every source.`,
		// Do not print help information when the command encounters an error.
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.complete(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			log.Sync()
		},
	}

	cmd.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "Path to the tokenctl configuration file.")
	a.opts.AddFlags(cmd.PersistentFlags())

	cmd.AddCommand(newTokenCommand(a), newServeCommand(a))
	return cmd
}

// complete loads the configuration, layers the flags over it and initializes logging.
func (a *tokenctl) complete(cmd *cobra.Command) error {
	if err := a.readConfig(); err != nil {
		return err
	}
	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if err := a.v.Unmarshal(a.opts); err != nil {
		return fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := a.opts.Validate(); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}

	log.Init(a.opts.Log, log.WithContextExtractor(logExtractors()))
	return nil
}

// logExtractors lists the request scoped values copied into every log.W line.
func logExtractors() log.ContextExtractors {
	return log.ContextExtractors{
		known.ContextRequestIDKey: contextx.RequestID,
	}
}

// readConfig reads the explicit --config file, or searches the default directories.
// A missing default file is not an error, flags and environment still apply.
func (a *tokenctl) readConfig() error {
	if a.configFile != "" {
		a.v.SetConfigFile(a.configFile)
	} else {
		for _, dir := range searchDirs() {
			a.v.AddConfigPath(dir)
		}
		a.v.SetConfigName(defaultConfigName)
		a.v.SetConfigType("yaml")
	}

	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	a.v.AutomaticEnv()

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if a.configFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read configuration: %w", err)
	}
	return nil
}

// container builds the token client container over the configured cache.
// The returned function releases both.
func (a *tokenctl) container(ctx context.Context) (*tokenclient.Container, func(), error) {
	store, closer, err := cache.New(ctx, a.opts.Cache)
	if err != nil {
		return nil, nil, err
	}

	c, err := tokenclient.NewContainer(a.v, tokenclient.WithCache(store), tokenclient.WithLogger(log.Std()))
	if err != nil {
		_ = closer.Close()
		return nil, nil, err
	}

	return c, func() {
		_ = c.Close()
		_ = closer.Close()
	}, nil
}

// searchDirs returns the default directories to search for the configuration file.
func searchDirs() []string {
	dirs := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append([]string{filepath.Join(home, defaultHomeDir)}, dirs...)
	}
	return dirs
}
