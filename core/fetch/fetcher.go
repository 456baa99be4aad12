// Package fetch implements the Fetcher interface.
// It retrieves remote images through an ordered list of relay endpoints:
// the first endpoint to answer with a successful response wins.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/gaurav-prasanna/promptpipe/core"
)

// Defaults applied by New.
const (
	DefaultTimeout   = 20 * time.Second
	DefaultCacheSize = 64
	defaultUserAgent = "PromptPipe/1.0 (https://github.com/gaurav-prasanna/promptpipe)"

	// Direct is the relay template for fetching the URL itself.
	Direct = "{url}"
)

// DefaultRelays is the fallback chain used when none is configured.
var DefaultRelays = []string{
	Direct,
	"https://corsproxy.io/?url={url}",
	"https://api.allorigins.win/raw?url={url}",
}

// RelayFetcher fetches resources via relay endpoints. Templates contain
// "{url}", which is replaced by the query-escaped target ("{url}" alone
// means a direct request).
type RelayFetcher struct {
	client *resty.Client
	relays []string
	cache  *lru.Cache[string, *core.FetchResult]
	group  singleflight.Group
	log    zerolog.Logger
}

// Option configures a RelayFetcher.
type Option func(*RelayFetcher)

// WithRelays replaces the relay chain.
func WithRelays(relays []string) Option {
	return func(f *RelayFetcher) {
		if len(relays) > 0 {
			f.relays = append([]string(nil), relays...)
		}
	}
}

// WithTimeout bounds each relay request.
func WithTimeout(d time.Duration) Option {
	return func(f *RelayFetcher) {
		if d > 0 {
			f.client.SetTimeout(d)
		}
	}
}

// WithCacheSize sets the number of cached responses. Zero disables caching.
func WithCacheSize(n int) Option {
	return func(f *RelayFetcher) {
		if n <= 0 {
			f.cache = nil
			return
		}
		if c, err := lru.New[string, *core.FetchResult](n); err == nil {
			f.cache = c
		}
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l zerolog.Logger) Option { return func(f *RelayFetcher) { f.log = l } }

// New creates a RelayFetcher with the default relays, timeout and cache.
func New(opts ...Option) *RelayFetcher {
	client := resty.New().
		SetTimeout(DefaultTimeout).
		SetHeader("User-Agent", defaultUserAgent).
		SetHeader("Accept", "image/*,*/*;q=0.8")
	cache, _ := lru.New[string, *core.FetchResult](DefaultCacheSize)
	f := &RelayFetcher{
		client: client,
		relays: append([]string(nil), DefaultRelays...),
		cache:  cache,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch walks the relay chain for rawURL. Concurrent fetches of the same URL
// share one retrieval.
func (f *RelayFetcher) Fetch(ctx context.Context, rawURL string) (*core.FetchResult, error) {
	if !isHTTP(rawURL) {
		return nil, fmt.Errorf("unsupported URL %q: %w", rawURL, core.ErrRetrievalFailed)
	}
	if f.cache != nil {
		if res, ok := f.cache.Get(rawURL); ok {
			return res, nil
		}
	}
	v, err, _ := f.group.Do(rawURL, func() (any, error) {
		return f.fetchChain(ctx, rawURL)
	})
	if err != nil {
		return nil, err
	}
	res := v.(*core.FetchResult)
	if f.cache != nil {
		f.cache.Add(rawURL, res)
	}
	return res, nil
}

func (f *RelayFetcher) fetchChain(ctx context.Context, rawURL string) (*core.FetchResult, error) {
	var errs []error
	for _, relay := range f.relays {
		res, err := f.fetchOnce(ctx, relay, rawURL)
		if err == nil {
			return res, nil
		}
		f.log.Debug().Err(err).Str("url", rawURL).Str("relay", relay).Msg("relay attempt failed")
		errs = append(errs, err)
	}
	f.log.Warn().Str("url", rawURL).Int("relays", len(f.relays)).Msg("all relays failed")
	return nil, fmt.Errorf("fetching %s: %w", rawURL, errors.Join(append([]error{core.ErrRetrievalFailed}, errs...)...))
}

func (f *RelayFetcher) fetchOnce(ctx context.Context, relay, rawURL string) (*core.FetchResult, error) {
	target := RelayURL(relay, rawURL)
	resp, err := f.client.R().SetContext(ctx).Get(target)
	if err != nil {
		return nil, fmt.Errorf("relay %s: %w", relay, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("relay %s: unexpected status %d", relay, resp.StatusCode())
	}
	body := resp.Body()
	if len(body) == 0 {
		return nil, fmt.Errorf("relay %s: empty body", relay)
	}
	ct := resp.Header().Get("Content-Type")
	if ct == "" || strings.HasPrefix(ct, "application/octet-stream") || strings.HasPrefix(ct, "text/plain") {
		ct = mimetype.Detect(body).String()
	}
	return &core.FetchResult{
		URL:         rawURL,
		StatusCode:  resp.StatusCode(),
		ContentType: ct,
		Body:        body,
		Relay:       relay,
	}, nil
}

// RelayURL expands a relay template for target.
func RelayURL(relay, target string) string {
	if relay == Direct || relay == "" {
		return target
	}
	return strings.ReplaceAll(relay, "{url}", url.QueryEscape(target))
}

func isHTTP(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}
