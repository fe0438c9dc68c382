package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	appLog "lifehub/internal/log"
)

// Source identifies a calendar feed.
type Source struct {
	ID  string
	URL string
}

// FetchResult is the body of one feed, fresh or from cache.
type FetchResult struct {
	Source    Source
	Body      []byte
	FromCache bool
}

// Fetcher downloads subscribed feeds. It sends conditional requests and
// serves the last good body when the origin is unreachable or failing.
type Fetcher struct {
	client *http.Client
	root   string
}

// NewFetcher returns a Fetcher caching under cacheDir.
func NewFetcher(cacheDir string) *Fetcher {
	if cacheDir == "" {
		cacheDir = filepath.Join("var", "ics-cache")
	}
	return &Fetcher{
		client: &http.Client{Timeout: 15 * time.Second},
		root:   cacheDir,
	}
}

// FetchOne fetches one feed. A transport error, a non-OK status or a 304
// all resolve to the cached body when there is one.
func (f *Fetcher) FetchOne(ctx context.Context, src Source) (FetchResult, error) {
	if src.URL == "" {
		return FetchResult{}, errors.New("ics: source URL is empty")
	}

	c, err := f.cacheFor(src.URL)
	if err != nil {
		return FetchResult{}, err
	}
	v, cached := c.load()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return FetchResult{}, err
	}
	v.apply(req)

	fallback := func(cause error) (FetchResult, error) {
		if len(cached) == 0 {
			return FetchResult{}, cause
		}
		appLog.Warn("ics fetch failed, serving cached feed", cause, "id", src.ID, "url", redactURL(src.URL))
		return FetchResult{Source: src, Body: cached, FromCache: true}, nil
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fallback(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotModified:
		if len(cached) == 0 {
			return FetchResult{}, errors.New("ics: 304 Not Modified without cached body")
		}
		appLog.Debug("ics feed not modified", "id", src.ID)
		return FetchResult{Source: src, Body: cached, FromCache: true}, nil

	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fallback(err)
		}
		if err := c.save(validatorsFrom(resp), body); err != nil {
			appLog.Warn("ics cache write failed", err, "id", src.ID)
		}
		appLog.Info("ics fetch success", "id", src.ID, "url", redactURL(src.URL), "bytes", len(body))
		return FetchResult{Source: src, Body: body}, nil

	default:
		return fallback(fmt.Errorf("ics: unexpected status %s", resp.Status))
	}
}

// validators are the HTTP cache validators remembered per feed.
type validators struct {
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	FetchedAt    time.Time `json:"fetched_at"`
}

func validatorsFrom(resp *http.Response) validators {
	return validators{
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		FetchedAt:    time.Now().UTC(),
	}
}

func (v validators) apply(req *http.Request) {
	if v.ETag != "" {
		req.Header.Set("If-None-Match", v.ETag)
	}
	if v.LastModified != "" {
		req.Header.Set("If-Modified-Since", v.LastModified)
	}
}

// feedCache is one directory per feed URL holding body.ics and meta.json.
type feedCache struct {
	dir string
}

func (f *Fetcher) cacheFor(rawURL string) (feedCache, error) {
	sum := sha256.Sum256([]byte(rawURL))
	dir := filepath.Join(f.root, hex.EncodeToString(sum[:8]))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return feedCache{}, err
	}
	return feedCache{dir: dir}, nil
}

// load returns whatever is on disk; a missing or unreadable cache is empty.
func (c feedCache) load() (validators, []byte) {
	var v validators
	if data, err := os.ReadFile(filepath.Join(c.dir, "meta.json")); err == nil {
		_ = json.Unmarshal(data, &v)
	}
	body, _ := os.ReadFile(filepath.Join(c.dir, "body.ics"))
	return v, body
}

func (c feedCache) save(v validators, body []byte) error {
	// Body first so meta never points at a missing body.
	if err := os.WriteFile(filepath.Join(c.dir, "body.ics"), body, 0o600); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.dir, "meta.json"), data, 0o600)
}

// redactURL keeps only scheme and host; feed URLs often carry secrets.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "ics://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
