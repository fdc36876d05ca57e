package api

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// redirectMarker identifies the intermediary URLs the search backend returns
// in place of real source links.
const redirectMarker = "grounding-api-redirect"

const urlResolutionTimeout = 5 * time.Second

// URLResolver resolves grounding redirect URLs to their final destinations
// via HEAD requests, caching results for the process lifetime. Source URLs
// are assumed stable within a session, so the cache has no TTL and no bound.
type URLResolver struct {
	httpClient *http.Client

	mu    sync.Mutex
	cache map[string]string
}

// NewURLResolver creates a resolver using the given client for HEAD calls.
func NewURLResolver(httpClient *http.Client) *URLResolver {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &URLResolver{
		httpClient: httpClient,
		cache:      make(map[string]string),
	}
}

// Resolve returns the final destination of a redirect URL. URLs that do not
// match the redirect pattern are returned unchanged with no network call.
// On any error the original URL is returned: a broken resolution must never
// break the response.
func (r *URLResolver) Resolve(ctx context.Context, redirectURL string) string {
	if !strings.Contains(redirectURL, redirectMarker) {
		return redirectURL
	}

	r.mu.Lock()
	cached, ok := r.cache[redirectURL]
	r.mu.Unlock()
	if ok {
		return cached
	}

	reqCtx, cancel := context.WithTimeout(ctx, urlResolutionTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, redirectURL, nil)
	if err != nil {
		return redirectURL
	}

	resp, errDo := r.httpClient.Do(req)
	if errDo != nil {
		log.Debugf("url resolver: HEAD %s failed: %v", redirectURL, errDo)
		return redirectURL
	}
	_ = resp.Body.Close()

	resolved := redirectURL
	if resp.Request != nil && resp.Request.URL != nil {
		resolved = resp.Request.URL.String()
	}

	r.mu.Lock()
	r.cache[redirectURL] = resolved
	r.mu.Unlock()

	return resolved
}

// ResolveSources resolves all source URLs in parallel and returns a new
// slice in the original order. Individual failures degrade to the original
// URL.
func (r *URLResolver) ResolveSources(ctx context.Context, sources []Source) []Source {
	if len(sources) == 0 {
		return sources
	}

	resolved := make([]Source, len(sources))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, source := range sources {
		group.Go(func() error {
			resolved[i] = Source{Title: source.Title, URL: r.Resolve(groupCtx, source.URL)}
			return nil
		})
	}
	// Resolve never returns an error, so Wait cannot fail.
	_ = group.Wait()
	return resolved
}

// CacheSize reports the number of cached resolutions.
func (r *URLResolver) CacheSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache)
}
