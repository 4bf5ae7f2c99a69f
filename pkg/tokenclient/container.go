package tokenclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/moweilong/tokenservice/pkg/cache"
	"github.com/moweilong/tokenservice/pkg/httpcli"
	"github.com/moweilong/tokenservice/pkg/log"
	"github.com/moweilong/tokenservice/pkg/stat"
)

// Container owns the infrastructure shared by every token client of a process and
// registers at most one client per options type.
type Container struct {
	v          *viper.Viper
	cache      cache.Cache
	closer     io.Closer
	registry   *stat.Registry
	factory    httpcli.ClientFactory
	logger     log.Logger
	validate   *validator.Validate
	resilience *ResilienceOptions

	mu       sync.Mutex
	clients  map[reflect.Type]TokenSource
	sections map[string]*Client[*SectionOptions]
}

// TokenSource is satisfied by every *Client.
type TokenSource interface {
	GetAccessToken(ctx context.Context) (string, error)
}

// ContainerOption overrides a piece of shared infrastructure.
type ContainerOption func(*Container)

// WithCache replaces the default in-process cache.
func WithCache(c cache.Cache) ContainerOption {
	return func(ct *Container) {
		ct.cache = c
	}
}

// WithRegistry replaces the statistics registry.
func WithRegistry(r *stat.Registry) ContainerOption {
	return func(ct *Container) {
		ct.registry = r
	}
}

// WithClientFactory replaces the HTTP client factory built from the resilience options.
func WithClientFactory(f httpcli.ClientFactory) ContainerOption {
	return func(ct *Container) {
		ct.factory = f
	}
}

// WithLogger set the logger handed to every client.
func WithLogger(l log.Logger) ContainerOption {
	return func(ct *Container) {
		ct.logger = l
	}
}

// NewContainer builds the shared cache, registry and HTTP client factory from v.
func NewContainer(v *viper.Viper, opts ...ContainerOption) (*Container, error) {
	if v == nil {
		return nil, missingDependency("configuration")
	}

	c := &Container{
		v:          v,
		registry:   stat.NewRegistry(),
		logger:     log.Std(),
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		resilience: NewResilienceOptions(),
		clients:    map[reflect.Type]TokenSource{},
		sections:   map[string]*Client[*SectionOptions]{},
	}
	for _, opt := range opts {
		opt(c)
	}

	if v.IsSet(DefaultSectionName) {
		if err := v.UnmarshalKey(DefaultSectionName, c.resilience); err != nil {
			return nil, &ConfigError{Field: DefaultSectionName, Message: err.Error()}
		}
	}

	if c.cache == nil {
		m, err := cache.NewMemoryCache()
		if err != nil {
			return nil, err
		}
		c.cache, c.closer = m, m
	}
	if c.factory == nil {
		c.factory = httpcli.NewFactory(
			httpcli.WithRetry(c.resilience.RetryCount, time.Duration(c.resilience.RetryDelayMilliseconds)*time.Millisecond),
			httpcli.WithLogger(c.logger),
		)
	}

	return c, nil
}

// Registry returns the statistics registry shared by every client.
func (c *Container) Registry() *stat.Registry { return c.registry }

// Cache returns the token cache shared by every client.
func (c *Container) Cache() cache.Cache { return c.cache }

// Resilience returns the effective retry settings.
func (c *Container) Resilience() ResilienceOptions { return *c.resilience }

// Close releases the cache created by NewContainer.
func (c *Container) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

// AddOption customizes the registration of one options type.
type AddOption func(*addOptions)

type addOptions struct {
	sectionName    string
	hasSectionName bool
}

// WithSectionName binds the options to name instead of the type's own section.
func WithSectionName(name string) AddOption {
	return func(o *addOptions) {
		o.sectionName = name
		o.hasSectionName = true
	}
}

// Add binds, validates and registers the client for T. Registering the same type again
// returns the existing client.
func Add[T OptionsProvider](c *Container, opts ...AddOption) (*Client[T], error) {
	ao := &addOptions{}
	for _, opt := range opts {
		opt(ao)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := reflect.TypeFor[T]()
	if existing, ok := c.clients[key]; ok {
		return existing.(*Client[T]), nil
	}

	section := ao.sectionName
	if ao.hasSectionName {
		if err := ValidateSectionName(section); err != nil {
			return nil, err
		}
	} else {
		name, err := SectionNameFor[T]()
		if err != nil {
			return nil, err
		}
		section = name
	}

	options := newOptions[T]()
	if err := c.bind(options.TokenServiceOptions(), section); err != nil {
		return nil, err
	}

	client, err := New[T](c.cache, options, c.factory, c.registry, c.logger)
	if err != nil {
		return nil, err
	}
	c.clients[key] = client
	c.logger.Infow("Registered token service client", "options", TypeName[T](), "section", section)
	return client, nil
}

// AddDefault registers the client bound to DefaultSectionName only.
func AddDefault(c *Container) (*Client[*DefaultOptions], error) {
	return Add[*DefaultOptions](c)
}

// SectionOptions binds a section chosen at run time, see AddSection.
type SectionOptions struct {
	Options
}

// AddSection registers a client for a section only known at run time, such as one named
// on the command line. Its keys carry the section name so several sections never collide.
func AddSection(c *Container, section string) (*Client[*SectionOptions], error) {
	if err := ValidateSectionName(section); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.sections[section]; ok {
		return existing, nil
	}

	options := &SectionOptions{}
	if err := c.bind(options.TokenServiceOptions(), section); err != nil {
		return nil, err
	}
	if isNil(c.cache) || isNil(c.factory) || isNil(c.registry) || isNil(c.logger) {
		return nil, missingDependency("container")
	}

	client := newClient(c.cache, options, c.factory, c.registry, c.logger, TypeName[*SectionOptions]()+"["+section+"]")
	c.sections[section] = client
	c.logger.Infow("Registered token service client", "section", section)
	return client, nil
}

// Get returns the registered client for T.
func Get[T OptionsProvider](c *Container) (*Client[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.clients[reflect.TypeFor[T]()]
	if !ok {
		return nil, false
	}
	return existing.(*Client[T]), true
}

// bind layers section over DefaultSectionName onto o, then validates the result.
func (c *Container) bind(o *Options, section string) error {
	for i, key := range []string{DefaultSectionName, section} {
		if (i > 0 && key == DefaultSectionName) || !c.v.IsSet(key) {
			continue
		}
		if err := c.v.UnmarshalKey(key, o); err != nil {
			return &ConfigError{Field: key, Message: err.Error()}
		}
	}

	if err := c.validate.Struct(o); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on '%s'", fe.Field(), fe.Tag()))
			}
			return &ConfigError{Field: section, Message: fmt.Sprint(msgs)}
		}
		return &ConfigError{Field: section, Message: err.Error()}
	}
	return nil
}

// Warmup fetches a token for every registered client so misconfiguration surfaces at start.
func (c *Container) Warmup(ctx context.Context) error {
	c.mu.Lock()
	clients := make([]TokenSource, 0, len(c.clients)+len(c.sections))
	for _, client := range c.clients {
		clients = append(clients, client)
	}
	for _, client := range c.sections {
		clients = append(clients, client)
	}
	c.mu.Unlock()

	var errs []error
	for _, client := range clients {
		if _, err := client.GetAccessToken(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
