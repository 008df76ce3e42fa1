package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
)

// Source yields the raw manifest document. Tests supply in-memory sources
// while production code uses FileSource or HTTPSource.
type Source interface {
	Load(ctx context.Context) ([]byte, error)
	Path() string
}

// Fetcher retrieves secondary resources (decks, stories, level documents)
// addressed by the manifest.
type Fetcher interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

type fileSource struct {
	path string
}

// FileSource reads the manifest from the local filesystem.
func FileSource(path string) Source {
	return fileSource{path: path}
}

func (f fileSource) Load(context.Context) ([]byte, error) {
	return os.ReadFile(f.path)
}

func (f fileSource) Path() string {
	return f.path
}

type httpSource struct {
	client *http.Client
	url    string
}

// HTTPSource fetches the manifest over HTTP. A nil client falls back to
// http.DefaultClient.
func HTTPSource(client *http.Client, rawURL string) Source {
	if client == nil {
		client = http.DefaultClient
	}
	return httpSource{client: client, url: rawURL}
}

func (s httpSource) Load(ctx context.Context) ([]byte, error) {
	return doGet(ctx, s.client, s.url)
}

func (s httpSource) Path() string {
	return s.url
}

type fetcherSource struct {
	fetch Fetcher
	path  string
}

// FetcherSource adapts a Fetcher into a Source for a fixed path.
func FetcherSource(fetch Fetcher, path string) Source {
	return fetcherSource{fetch: fetch, path: path}
}

func (s fetcherSource) Load(ctx context.Context) ([]byte, error) {
	return s.fetch.Fetch(ctx, s.path)
}

func (s fetcherSource) Path() string {
	return s.path
}

type fileFetcher struct {
	root string
}

// FileFetcher resolves paths relative to root on the local filesystem.
// An empty root resolves against the working directory.
func FileFetcher(root string) Fetcher {
	return fileFetcher{root: root}
}

func (f fileFetcher) Fetch(_ context.Context, path string) ([]byte, error) {
	resolved := filepath.FromSlash(path)
	if f.root != "" && !filepath.IsAbs(resolved) {
		resolved = filepath.Join(f.root, resolved)
	}
	return os.ReadFile(resolved)
}

type httpFetcher struct {
	client *http.Client
	base   *url.URL
}

// HTTPFetcher resolves paths against the provided base URL. Absolute URLs
// pass through unchanged.
func HTTPFetcher(client *http.Client, base string) (Fetcher, error) {
	if client == nil {
		client = http.DefaultClient
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("registry: invalid base url %q: %w", base, err)
	}
	return httpFetcher{client: client, base: parsed}, nil
}

func (f httpFetcher) Fetch(ctx context.Context, path string) ([]byte, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("registry: invalid resource url %q: %w", path, err)
	}
	target := ref.String()
	if !ref.IsAbs() && f.base != nil {
		target = f.base.ResolveReference(ref).String()
	}
	return doGet(ctx, f.client, target)
}

func doGet(ctx context.Context, client *http.Client, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}
