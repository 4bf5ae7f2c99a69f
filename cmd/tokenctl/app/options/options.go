// nolint: err113
package options

import (
	"errors"
	"time"

	"github.com/spf13/pflag"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/moweilong/tokenservice/internal/apiserver"
	"github.com/moweilong/tokenservice/pkg/cache"
	"github.com/moweilong/tokenservice/pkg/log"
	"github.com/moweilong/tokenservice/pkg/stat"
)

// ServerOptions contains the configuration options for tokenctl.
type ServerOptions struct {
	// Addr is the listen address of the serve command.
	Addr string `json:"addr" mapstructure:"addr"`
	// ShutdownTimeout bounds the graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`
	// ReportInterval is how often the statistics are written to the log.
	ReportInterval time.Duration `json:"report-interval" mapstructure:"report-interval"`
	// RefreshInterval is how often serve asks every source for a token. Zero disables refreshing.
	RefreshInterval time.Duration `json:"refresh-interval" mapstructure:"refresh-interval"`
	// FailureThreshold raises an alarm after this many new failures of one source.
	FailureThreshold int64 `json:"failure-threshold" mapstructure:"failure-threshold"`
	// Sections lists extra configuration sections served next to the TokenService one.
	Sections []string `json:"sections" mapstructure:"sections"`
	// Cache selects where acquired tokens are stored.
	Cache *cache.Config `json:"cache" mapstructure:"cache"`
	// Log used to specify the log options.
	Log *log.Options `json:"log" mapstructure:"log"`
}

// NewServerOptions creates a ServerOptions instance with default values.
func NewServerOptions() *ServerOptions {
	return &ServerOptions{
		Addr:             ":8080",
		ShutdownTimeout:  10 * time.Second,
		ReportInterval:   time.Minute,
		RefreshInterval:  30 * time.Second,
		FailureThreshold: 3,
		Cache:            cache.DefaultConfig(),
		Log:              log.NewOptions(),
	}
}

// AddFlags binds the options in ServerOptions to command-line flags.
func (o *ServerOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Addr, "addr", o.Addr, "Listen `ADDRESS` of the HTTP server.")
	fs.DurationVar(&o.ShutdownTimeout, "shutdown-timeout", o.ShutdownTimeout, "Maximum time to wait for in-flight requests on shutdown.")
	fs.DurationVar(&o.ReportInterval, "report-interval", o.ReportInterval, "Interval between two statistics log lines.")
	fs.DurationVar(&o.RefreshInterval, "refresh-interval", o.RefreshInterval, "Interval between two token refreshes, 0 disables refreshing.")
	fs.Int64Var(&o.FailureThreshold, "failure-threshold", o.FailureThreshold, "Failures of one source that raise an alarm.")
	fs.StringSliceVar(&o.Sections, "sections", o.Sections, "Extra configuration sections to serve.")
	fs.StringVar((*string)(&o.Cache.Type), "cache.type", string(o.Cache.Type), "Token cache backend, memory or redis.")
	o.Log.AddFlags(fs)
}

// Validate checks whether the options in ServerOptions are valid.
func (o *ServerOptions) Validate() error {
	errs := []error{}

	if o.Addr == "" {
		errs = append(errs, errors.New("addr cannot be empty"))
	}
	if o.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown-timeout must be positive"))
	}
	if o.ReportInterval < time.Second {
		errs = append(errs, errors.New("report-interval must be at least 1s"))
	}
	if o.RefreshInterval < 0 {
		errs = append(errs, errors.New("refresh-interval cannot be negative"))
	}
	if o.FailureThreshold < 0 {
		errs = append(errs, errors.New("failure-threshold cannot be negative"))
	}

	errs = append(errs, o.Cache.Validate()...)
	errs = append(errs, o.Log.Validate()...)

	// Aggregate all errors and return them.
	return utilerrors.NewAggregate(errs)
}

// Config builds an apiserver.Config serving registry.
func (o *ServerOptions) Config(registry *stat.Registry) *apiserver.Config {
	return &apiserver.Config{
		Addr:             o.Addr,
		ShutdownTimeout:  o.ShutdownTimeout,
		ReportInterval:   o.ReportInterval,
		FailureThreshold: o.FailureThreshold,
		Registry:         registry,
		Logger:           log.Std().Z(),
	}
}
