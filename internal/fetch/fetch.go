package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/tengjizhang/feedexec/internal/logger"
)

const maxBodyBytes = 16 << 20

type Options struct {
	// HTTPTimeout of zero leaves the client without a timeout.
	HTTPTimeout time.Duration
	// Concurrency of zero fetches every URL at once.
	Concurrency int
	// UserAgent is only sent when non-empty.
	UserAgent string
}

type Fetcher struct {
	opts   Options
	client *http.Client
}

type fetchProgressFn func(done, total int, result FetchResult)

func NewFetcher(opts Options) *Fetcher {
	return &Fetcher{
		opts:   opts,
		client: &http.Client{Timeout: opts.HTTPTimeout},
	}
}

// NewFetcherWithClient is used when the caller owns the transport.
func NewFetcherWithClient(client *http.Client, opts Options) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: opts.HTTPTimeout}
	}
	return &Fetcher{opts: opts, client: client}
}

func (f *Fetcher) HTTPClient() *http.Client {
	return f.client
}

// FetchAll fetches every URL concurrently and returns once all of them have
// finished. Results are in the same order as urls.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) []FetchResult {
	return f.FetchAllWithProgress(ctx, urls, nil)
}

func (f *Fetcher) FetchAllWithProgress(ctx context.Context, urls []string, onResult fetchProgressFn) []FetchResult {
	total := len(urls)
	results := make([]FetchResult, total)
	if total == 0 {
		return results
	}

	concurrency := f.opts.Concurrency
	if concurrency < 1 || concurrency > total {
		concurrency = total
	}

	jobs := make(chan int)
	var mu sync.Mutex
	done := 0
	wg := sync.WaitGroup{}
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				result := f.Fetch(ctx, urls[idx])
				results[idx] = result
				if onResult != nil {
					mu.Lock()
					done++
					onResult(done, total, result)
					mu.Unlock()
				}
			}
		}()
	}

	for idx := range urls {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()
	return results
}

// Fetch downloads url and parses it as an RSS document. Every failure is
// reported through FetchResult.Err.
func (f *Fetcher) Fetch(ctx context.Context, url string) FetchResult {
	result := FetchResult{URL: url}

	req, err := f.newFeedRequest(ctx, url)
	if err != nil {
		return failFeed(result, err)
	}

	started := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return failFeed(result, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return failFeed(result, fmt.Errorf("read body: %w", err))
	}

	channel, err := ParseChannel(data)
	if err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			err = fmt.Errorf("http %d: %w", resp.StatusCode, err)
		}
		return failFeed(result, err)
	}

	logger.L.Debugw("fetched feed",
		"url", url,
		"status", resp.StatusCode,
		"items", len(channel.Items),
		"elapsed", time.Since(started),
	)
	result.Channel = channel
	return result
}

func (f *Fetcher) newFeedRequest(ctx context.Context, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if ua := strings.TrimSpace(f.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	return req, nil
}

// ParseChannel parses data as RSS. Other formats gofeed understands (Atom,
// JSON Feed) are rejected.
func ParseChannel(data []byte) (*Channel, error) {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	if parsed.FeedType != "rss" {
		return nil, fmt.Errorf("parse feed: expected rss document, got %s", parsed.FeedType)
	}

	channel := &Channel{
		Title:       strings.TrimSpace(parsed.Title),
		Link:        strings.TrimSpace(parsed.Link),
		Description: strings.TrimSpace(parsed.Description),
		Items:       make([]Item, 0, len(parsed.Items)),
	}
	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		channel.Items = append(channel.Items, Item{
			Title:   item.Title,
			Link:    strings.TrimSpace(item.Link),
			PubDate: strings.TrimSpace(item.Published),
		})
	}
	return channel, nil
}

func failFeed(result FetchResult, err error) FetchResult {
	result.Err = err
	result.Channel = nil
	return result
}
