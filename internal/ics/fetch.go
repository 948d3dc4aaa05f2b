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
	"os"
	"path/filepath"
	"strings"
	"time"

	appLog "synccal/internal/log"
)

// maxFeedBytes bounds a single feed download.
const maxFeedBytes = 16 << 20

// Source is the external calendar feed being read.
type Source struct {
	// ID names the provider; it becomes the importedFrom of every event.
	ID string
	// URL is the ICS endpoint or a local file path.
	URL string
}

// FetchResult is the payload of one feed read.
type FetchResult struct {
	Source    Source
	Body      []byte
	FromCache bool
}

// Fetcher reads ICS feeds over HTTP with conditional requests
// (ETag / Last-Modified), keeping the last good body on disk so a flaky
// provider does not empty the import.
type Fetcher struct {
	client   *http.Client
	cacheDir string
}

// NewFetcher returns a Fetcher caching under cacheDir, one subdirectory per
// feed URL. A nil client gets a 15s timeout.
func NewFetcher(cacheDir string, client *http.Client) *Fetcher {
	if cacheDir == "" {
		cacheDir = "./var/ics-cache"
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Fetcher{client: client, cacheDir: cacheDir}
}

// FetchOne reads src. A 304 answer, a transport error or a non-OK status
// fall back to the cached body when one exists.
func (f *Fetcher) FetchOne(ctx context.Context, src Source) (FetchResult, error) {
	if src.URL == "" {
		return FetchResult{}, errors.New("source URL is empty")
	}

	cache := f.cacheFor(src.URL)
	meta, cached := cache.load()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return FetchResult{}, err
	}
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	log := []any{"id", src.ID, "url", redactURL(src.URL)}
	appLog.Debug("ics fetch start", log...)

	fromCache := func(reason string, cause error) (FetchResult, error) {
		if len(cached) == 0 {
			return FetchResult{}, cause
		}
		if reason != "" {
			appLog.Warn("ics fetch failed; using cached body", append(log, "reason", reason)...)
		}
		return FetchResult{Source: src, Body: cached, FromCache: true}, nil
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return FetchResult{}, ctx.Err()
		}
		return fromCache(err.Error(), err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes+1))
		if err != nil {
			return fromCache(err.Error(), err)
		}
		if len(body) > maxFeedBytes {
			return FetchResult{}, fmt.Errorf("ics feed exceeds %d bytes", maxFeedBytes)
		}
		fresh := cacheMeta{
			URL:          src.URL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			UpdatedAt:    time.Now().UTC(),
		}
		if err := cache.store(fresh, body); err != nil {
			appLog.Error("ics cache save failed", err, log...)
		}
		appLog.Info("ics fetch success", append(log, "bytes", len(body))...)
		return FetchResult{Source: src, Body: body}, nil

	case http.StatusNotModified:
		appLog.Info("ics feed not modified", log...)
		return fromCache("", errors.New("304 Not Modified without a cached body"))

	default:
		return fromCache(resp.Status, &StatusError{Code: resp.StatusCode, Status: resp.Status})
	}
}

// StatusError is a non-OK feed response with no cached body to fall back to.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return "ics fetch: " + e.Status
}

// Temporary reports whether retrying the request may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests || e.Code == http.StatusRequestTimeout
}

type cacheMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// feedCache is the on-disk cache directory of one feed URL.
type feedCache string

func (f *Fetcher) cacheFor(url string) feedCache {
	sum := sha256.Sum256([]byte(url))
	return feedCache(filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8])))
}

func (c feedCache) metaPath() string { return filepath.Join(string(c), "meta.json") }
func (c feedCache) bodyPath() string { return filepath.Join(string(c), "body.ics") }

// load returns the cached metadata and body. Missing or unreadable entries
// yield zero values so the request goes out unconditionally.
func (c feedCache) load() (cacheMeta, []byte) {
	body, err := os.ReadFile(c.bodyPath())
	if err != nil {
		return cacheMeta{}, nil
	}
	var meta cacheMeta
	if data, err := os.ReadFile(c.metaPath()); err == nil {
		if json.Unmarshal(data, &meta) != nil {
			meta = cacheMeta{}
		}
	}
	return meta, body
}

// store writes the body before the metadata so the validators never refer
// to a body that is not on disk.
func (c feedCache) store(meta cacheMeta, body []byte) error {
	if err := writeAtomic(c.bodyPath(), body); err != nil {
		return err
	}
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(c.metaPath(), data)
}

// redactURL keeps only scheme and host of a feed URL for logging:
//
//	https://example.com/path/to/private.ics?token=abcd
//	-> https://example.com/...(redacted)
func redactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	i := strings.Index(u, "://")
	if i == -1 {
		return "ics://...(redacted)"
	}
	rest := u[i+3:]
	if j := strings.IndexByte(rest, '/'); j >= 0 {
		rest = rest[:j]
	}
	return u[:i+3] + rest + redactedSuffix
}
