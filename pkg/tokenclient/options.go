package tokenclient

import (
	"encoding/base64"
	"sync"

	"github.com/google/uuid"
)

// ClientName is the logical HTTP client name used for every token request made by this process.
var ClientName = "TokenServiceClient-" + uuid.NewString()

// ErrBasicAuthNotSet is returned by EncodedAuthToken when BasicAuth was never assigned.
var ErrBasicAuthNotSet = &ConfigError{Field: "basicAuth", Message: "basic auth credentials are not set"}

// Options configures one token source. Embed it in a named struct to declare a new source:
//
//	type BillingOptions struct{ tokenclient.Options }
type Options struct {
	// BasicAuth holds "user:password". Nil means unset, which is distinct from empty.
	BasicAuth *string `json:"basicAuth,omitempty" mapstructure:"basicAuth" validate:"required"`
	// ServiceURL is the token endpoint.
	ServiceURL string `json:"serviceUrl" mapstructure:"serviceUrl" validate:"required,url"`

	mu          sync.Mutex
	memoized    bool
	encodedFrom string
	encoded     string
}

// TokenServiceOptions returns o. It lets every struct embedding Options satisfy OptionsProvider.
func (o *Options) TokenServiceOptions() *Options { return o }

// SetBasicAuth assigns the credentials and drops the memoized encoding.
func (o *Options) SetBasicAuth(v string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.BasicAuth = &v
	o.memoized = false
}

// EncodedAuthToken returns the Base64 form of BasicAuth, memoized until BasicAuth changes.
func (o *Options) EncodedAuthToken() (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.BasicAuth == nil {
		return "", ErrBasicAuthNotSet
	}
	// A direct assignment to BasicAuth is caught by comparing against the encoded source.
	if o.memoized && o.encodedFrom == *o.BasicAuth {
		return o.encoded, nil
	}

	o.encodedFrom = *o.BasicAuth
	o.encoded = base64.StdEncoding.EncodeToString([]byte(o.encodedFrom))
	o.memoized = true
	return o.encoded, nil
}

// OptionsProvider is implemented by every options type that embeds Options.
type OptionsProvider interface {
	TokenServiceOptions() *Options
}

// DefaultOptions is the options type bound to the DefaultSectionName section only.
type DefaultOptions struct {
	Options
}

// SectionName implements SectionNamer.
func (*DefaultOptions) SectionName() string { return DefaultSectionName }

// ResilienceOptions tunes the retry behaviour of the token HTTP client.
// It is read from the DefaultSectionName section.
type ResilienceOptions struct {
	RetryCount             int `json:"retryCount" mapstructure:"retryCount"`
	RetryDelayMilliseconds int `json:"retryDelayMilliseconds" mapstructure:"retryDelayMilliseconds"`
}

// NewResilienceOptions returns the defaults: 3 retries after the first attempt, starting at 2 seconds.
func NewResilienceOptions() *ResilienceOptions {
	return &ResilienceOptions{
		RetryCount:             3,
		RetryDelayMilliseconds: 2000,
	}
}

// String is used when a pointer ends up in a log line.
func (o *Options) String() string {
	auth := "<unset>"
	if o.BasicAuth != nil {
		auth = "<redacted>"
	}
	return "serviceUrl=" + o.ServiceURL + " basicAuth=" + auth
}
