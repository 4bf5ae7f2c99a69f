package tokenclient

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moweilong/tokenservice/pkg/cache"
	"github.com/moweilong/tokenservice/pkg/log"
	"github.com/moweilong/tokenservice/pkg/stat"
)

const testServiceURL = "https://token.example.com/oauth/token"

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

type staticFactory struct {
	client *http.Client
	names  []string
	mu     sync.Mutex
}

func (f *staticFactory) Client(name string) *http.Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.names = append(f.names, name)
	return f.client
}

// stubTransport counts requests and answers with respond.
type stubTransport struct {
	calls   atomic.Int32
	respond func(r *http.Request) (*http.Response, error)
}

func (s *stubTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	s.calls.Add(1)
	return s.respond(r)
}

func jsonResponse(r *http.Request, status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    r,
	}
}

func tokenJSON(token string, expiresIn int) string {
	return `{"access_token":"` + token + `","expires_in":` + strconv.Itoa(expiresIn) + `,"token_type":"Bearer"}`
}

type fixture struct {
	client    *Client[*testOptions]
	cache     *cache.MemoryCache
	transport *stubTransport
	registry  *stat.Registry
	factory   *staticFactory
}

func newFixture(t *testing.T, respond func(r *http.Request) (*http.Response, error)) *fixture {
	t.Helper()

	mc, err := cache.NewMemoryCache()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mc.Close() })

	transport := &stubTransport{respond: respond}
	factory := &staticFactory{client: &http.Client{Transport: transport}}
	registry := stat.NewRegistry()

	opts := &testOptions{}
	opts.ServiceURL = testServiceURL
	opts.SetBasicAuth("user:pass")

	client, err := New[*testOptions](mc, opts, factory, registry, log.NewNop())
	require.NoError(t, err)

	return &fixture{client: client, cache: mc, transport: transport, registry: registry, factory: factory}
}

func okResponder(token string) func(r *http.Request) (*http.Response, error) {
	return func(r *http.Request) (*http.Response, error) {
		return jsonResponse(r, http.StatusOK, tokenJSON(token, 3600)), nil
	}
}

func TestNew_MissingDependencies(t *testing.T) {
	mc, err := cache.NewMemoryCache()
	require.NoError(t, err)
	defer mc.Close()

	opts := &testOptions{}
	factory := &staticFactory{client: http.DefaultClient}
	registry := stat.NewRegistry()
	logger := log.NewNop()

	tests := []struct {
		field string
		build func() error
	}{
		{"cache", func() error { _, err := New[*testOptions](nil, opts, factory, registry, logger); return err }},
		{"options", func() error { _, err := New[*testOptions](mc, nil, factory, registry, logger); return err }},
		{"factory", func() error { _, err := New[*testOptions](mc, opts, nil, registry, logger); return err }},
		{"statsRegistry", func() error {
			var r *stat.Registry
			_, err := New[*testOptions](mc, opts, factory, r, logger)
			return err
		}},
		{"logger", func() error { _, err := New[*testOptions](mc, opts, factory, registry, nil); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			err := tt.build()
			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestClient_Keys(t *testing.T) {
	f := newFixture(t, okResponder("x"))

	assert.Equal(t, "github.com/moweilong/tokenservice/pkg/tokenclient.testOptions:AccessToken", f.client.CacheKey())
	assert.Equal(t, "github.com/moweilong/tokenservice/pkg/tokenclient.testOptions:ServiceStats", f.client.StatsKey())
}

func TestGetAccessToken_ReturnsCachedToken(t *testing.T) {
	f := newFixture(t, okResponder("fresh"))
	ctx := context.Background()
	require.NoError(t, f.cache.Set(ctx, f.client.CacheKey(), &AccessToken{AccessToken: "cached", ExpiresIn: 3600}, time.Hour))

	got, err := f.client.GetAccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cached", got)
	assert.Zero(t, f.transport.calls.Load())
	assert.True(t, f.client.Stats().Snapshot().HasToken)
	assert.Nil(t, f.client.Stats().Snapshot().LastAcquireAttemptAt)
}

func TestGetAccessToken_FetchesAndCachesOnMiss(t *testing.T) {
	f := newFixture(t, okResponder("fresh"))
	ctx := context.Background()

	got, err := f.client.GetAccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fresh", got)
	assert.EqualValues(t, 1, f.transport.calls.Load())

	var cached AccessToken
	require.NoError(t, f.cache.Get(ctx, f.client.CacheKey(), &cached))
	assert.Equal(t, "fresh", cached.AccessToken)
	assert.Equal(t, 3600, cached.ExpiresIn)

	again, err := f.client.GetAccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fresh", again)
	assert.EqualValues(t, 1, f.transport.calls.Load())

	v := f.client.Stats().Snapshot()
	assert.True(t, v.HasToken)
	require.NotNil(t, v.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(3540*time.Second), *v.ExpiresAt, 5*time.Second)
	assert.Equal(t, []string{ClientName}, f.factory.names)
}

func TestGetAccessToken_ConcurrentCallersShareOneRequest(t *testing.T) {
	f := newFixture(t, func(r *http.Request) (*http.Response, error) {
		time.Sleep(100 * time.Millisecond)
		return jsonResponse(r, http.StatusOK, tokenJSON("shared", 3600)), nil
	})

	const callers = 3
	results := make([]string, callers)
	errs := make([]error, callers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = f.client.GetAccessToken(context.Background())
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared", results[i])
	}
	assert.EqualValues(t, 1, f.transport.calls.Load())

	got, err := f.client.GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "shared", got)
	assert.EqualValues(t, 1, f.transport.calls.Load())
}

// racingCache misses on the first lookup and stores a token written by a competing process.
type racingCache struct {
	cache.Cache
	once sync.Once
}

func (c *racingCache) Get(ctx context.Context, key string, val any) error {
	raced := false
	c.once.Do(func() {
		_ = c.Cache.Set(ctx, key, &AccessToken{AccessToken: "racer", ExpiresIn: 3600}, time.Hour)
		raced = true
	})
	if raced {
		return cache.ErrCacheNotFound
	}
	return c.Cache.Get(ctx, key, val)
}

func TestGetAccessToken_UsesTokenCachedWhileWaiting(t *testing.T) {
	mc, err := cache.NewMemoryCache()
	require.NoError(t, err)
	defer mc.Close()

	transport := &stubTransport{respond: okResponder("fresh")}
	opts := &testOptions{}
	opts.ServiceURL = testServiceURL
	opts.SetBasicAuth("user:pass")

	client, err := New[*testOptions](&racingCache{Cache: mc}, opts,
		&staticFactory{client: &http.Client{Transport: transport}}, stat.NewRegistry(), log.NewNop())
	require.NoError(t, err)

	got, err := client.GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "racer", got)
	assert.Zero(t, transport.calls.Load())
	assert.True(t, client.Stats().Snapshot().HasToken)
}

func TestGetAccessToken_FailureReleasesFlight(t *testing.T) {
	boom := errors.New("boom")
	var fail atomic.Bool
	fail.Store(true)
	f := newFixture(t, func(r *http.Request) (*http.Response, error) {
		if fail.Load() {
			return nil, boom
		}
		return jsonResponse(r, http.StatusOK, tokenJSON("recovered", 3600)), nil
	})

	_, err := f.client.GetAccessToken(context.Background())
	require.Error(t, err)
	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, reasonUnexpected, reqErr.Reason)
	assert.ErrorIs(t, err, boom)
	assert.EqualValues(t, 1, f.client.Stats().FailedAttempts())

	fail.Store(false)
	got, err := f.client.GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "recovered", got)
	assert.EqualValues(t, 2, f.transport.calls.Load())
	assert.EqualValues(t, 1, f.client.Stats().FailedAttempts())
}

func TestGetAccessToken_Cancellation(t *testing.T) {
	var block atomic.Bool
	block.Store(true)
	f := newFixture(t, func(r *http.Request) (*http.Response, error) {
		if block.Load() {
			<-r.Context().Done()
			return nil, r.Context().Err()
		}
		return jsonResponse(r, http.StatusOK, tokenJSON("after-cancel", 3600)), nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := f.client.GetAccessToken(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	block.Store(false)
	require.Eventually(t, func() bool {
		got, err := f.client.GetAccessToken(context.Background())
		return err == nil && got == "after-cancel"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestGetAccessToken_WaiterOutlivesCanceledStarter(t *testing.T) {
	var first atomic.Bool
	first.Store(true)
	started := make(chan struct{})
	f := newFixture(t, func(r *http.Request) (*http.Response, error) {
		if first.CompareAndSwap(true, false) {
			close(started)
			<-r.Context().Done()
			return nil, r.Context().Err()
		}
		return jsonResponse(r, http.StatusOK, tokenJSON("second-flight", 3600)), nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	starterErr := make(chan error, 1)
	go func() {
		_, err := f.client.GetAccessToken(ctx)
		starterErr <- err
	}()
	<-started

	type result struct {
		token string
		err   error
	}
	waiter := make(chan result, 1)
	go func() {
		got, err := f.client.GetAccessToken(context.Background())
		waiter <- result{got, err}
	}()
	// Give the waiter time to join the running flight.
	time.Sleep(50 * time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-starterErr, context.Canceled)
	select {
	case res := <-waiter:
		require.NoError(t, res.err)
		assert.Equal(t, "second-flight", res.token)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter did not receive a token")
	}
	assert.EqualValues(t, 2, f.transport.calls.Load())
}

func TestGetAccessToken_TimeoutWithLiveContextIsNotRetried(t *testing.T) {
	f := newFixture(t, func(r *http.Request) (*http.Response, error) {
		return nil, context.DeadlineExceeded
	})

	_, err := f.client.GetAccessToken(context.Background())
	assert.ErrorIs(t, err, ErrTokenRequest)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.EqualValues(t, 1, f.transport.calls.Load())
}

func TestGetAccessToken_VeryLongLifetimeIsCached(t *testing.T) {
	f := newFixture(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(r, http.StatusOK, tokenJSON("long-lived", 10_000_000_000)), nil
	})

	for range 2 {
		got, err := f.client.GetAccessToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "long-lived", got)
	}
	assert.EqualValues(t, 1, f.transport.calls.Load())

	v := f.client.Stats().Snapshot()
	require.NotNil(t, v.ExpiresAt)
	assert.True(t, v.ExpiresAt.After(time.Now().AddDate(100, 0, 0)))
}

func TestGetAccessToken_ShortLivedTokenIsNotCached(t *testing.T) {
	f := newFixture(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(r, http.StatusOK, tokenJSON("ephemeral", 0)), nil
	})

	got, err := f.client.GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ephemeral", got)

	var cached AccessToken
	assert.ErrorIs(t, f.cache.Get(context.Background(), f.client.CacheKey(), &cached), cache.ErrCacheNotFound)
}

func TestRequestAccessToken_Success(t *testing.T) {
	var gotForm, gotAuth, gotContentType, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		_ = r.ParseForm()
		gotForm = r.PostForm.Encode()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"abc","expires_in":3600,"refresh_token":"r","token_type":"Bearer"}`)
	}))
	defer srv.Close()

	mc, err := cache.NewMemoryCache()
	require.NoError(t, err)
	defer mc.Close()

	opts := &testOptions{}
	opts.ServiceURL = srv.URL
	opts.SetBasicAuth("user:pass")
	client, err := New[*testOptions](mc, opts, &staticFactory{client: srv.Client()}, stat.NewRegistry(), log.NewNop())
	require.NoError(t, err)

	token, err := client.RequestAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &AccessToken{AccessToken: "abc", ExpiresIn: 3600, RefreshToken: "r", TokenType: "Bearer"}, token)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "Basic "+base64.StdEncoding.EncodeToString([]byte("user:pass")), gotAuth)
	assert.Equal(t, "application/x-www-form-urlencoded", gotContentType)
	assert.Equal(t, "grant_type=client_credentials", gotForm)

	v := client.Stats().Snapshot()
	assert.True(t, v.HasToken)
	assert.NotNil(t, v.LastAcquireAttemptAt)
	assert.NotNil(t, v.LastSuccessfulAcquireAt)
	assert.NotNil(t, v.LastAcquireDuration)
	assert.Zero(t, v.FailedAttempts)
}

func TestRequestAccessToken_NonSuccessStatus(t *testing.T) {
	f := newFixture(t, func(r *http.Request) (*http.Response, error) {
		resp := jsonResponse(r, http.StatusBadRequest, `{"error":"invalid_client"}`)
		resp.Status = "400 Bad"
		return resp, nil
	})

	_, err := f.client.RequestAccessToken(context.Background())
	require.Error(t, err)
	assert.Equal(t, "TokenServiceClient: Error when attempting to retrieve bearer token from "+testServiceURL+": Service returned response 400 Bad", err.Error())

	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, http.StatusBadRequest, reqErr.StatusCode)
	assert.Nil(t, reqErr.Err)
	assert.EqualValues(t, 1, f.transport.calls.Load())

	v := f.client.Stats().Snapshot()
	assert.False(t, v.HasToken)
	assert.EqualValues(t, 1, v.FailedAttempts)
}

func TestRequestAccessToken_StatusWithoutReason(t *testing.T) {
	f := newFixture(t, func(r *http.Request) (*http.Response, error) {
		resp := jsonResponse(r, http.StatusUnauthorized, "")
		resp.Status = "401"
		return resp, nil
	})

	_, err := f.client.RequestAccessToken(context.Background())
	assert.EqualError(t, err, "TokenServiceClient: Error when attempting to retrieve bearer token from "+testServiceURL+": Service returned response 401 Unauthorized")
}

func TestRequestAccessToken_EmptyPayload(t *testing.T) {
	for name, body := range map[string]string{"null": "null", "empty": "", "blank": "  \n"} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, func(r *http.Request) (*http.Response, error) {
				return jsonResponse(r, http.StatusOK, body), nil
			})

			_, err := f.client.RequestAccessToken(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), "Unable to deserialize response from token service.")
			assert.Nil(t, errors.Unwrap(err))
			assert.EqualValues(t, 1, f.client.Stats().FailedAttempts())
		})
	}
}

func TestRequestAccessToken_MalformedPayload(t *testing.T) {
	f := newFixture(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(r, http.StatusOK, `{"access_token":`), nil
	})

	_, err := f.client.RequestAccessToken(context.Background())
	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, reasonUnexpected, reqErr.Reason)
	assert.NotNil(t, reqErr.Err)
	assert.EqualValues(t, 1, f.client.Stats().FailedAttempts())
}

func TestRequestAccessToken_TransportErrorIsWrapped(t *testing.T) {
	boom := errors.New("boom")
	f := newFixture(t, func(*http.Request) (*http.Response, error) {
		return nil, boom
	})

	_, err := f.client.RequestAccessToken(context.Background())
	require.Error(t, err)
	assert.Equal(t, "TokenServiceClient: Error when attempting to retrieve bearer token from "+testServiceURL+": Unexpected error occurred", err.Error())
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, ErrTokenRequest)
	assert.EqualValues(t, 1, f.transport.calls.Load())
}

func TestRequestAccessToken_UnsetBasicAuth(t *testing.T) {
	mc, err := cache.NewMemoryCache()
	require.NoError(t, err)
	defer mc.Close()

	transport := &stubTransport{respond: okResponder("x")}
	opts := &testOptions{}
	opts.ServiceURL = testServiceURL
	client, err := New[*testOptions](mc, opts, &staticFactory{client: &http.Client{Transport: transport}}, stat.NewRegistry(), log.NewNop())
	require.NoError(t, err)

	_, err = client.RequestAccessToken(context.Background())
	assert.ErrorIs(t, err, ErrTokenRequest)
	assert.ErrorIs(t, err, ErrBasicAuthNotSet)
	assert.Zero(t, transport.calls.Load())
}
