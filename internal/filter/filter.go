package filter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/tengjizhang/feedexec/internal/logger"
	"github.com/tengjizhang/feedexec/internal/model"
)

var ErrMissingField = errors.New("missing item field")

type Item = model.Item

type Options struct {
	// Timestamp is the exclusive lower bound on publish time, in Unix seconds.
	Timestamp int64
	// Keywords of nil match every item. An empty non-nil slice matches none.
	Keywords []string
	// Strict aborts on items without a usable date or title instead of
	// skipping them.
	Strict bool
}

type Filter struct {
	cutoff   int64
	keywords []string
	strict   bool
}

func New(opts Options) *Filter {
	var keywords []string
	if opts.Keywords != nil {
		keywords = lo.Map(opts.Keywords, func(k string, _ int) string {
			return strings.ToLower(k)
		})
	}
	return &Filter{cutoff: opts.Timestamp, keywords: keywords, strict: opts.Strict}
}

// Result is the outcome of Apply over one channel.
type Result struct {
	Matched []Item
	Skipped int
}

// Apply runs the date predicate and then the keyword predicate over items,
// keeping their original order.
func (f *Filter) Apply(items []Item) (Result, error) {
	var res Result
	for i, item := range items {
		ok, err := f.Match(item)
		if err != nil {
			if f.strict {
				return res, fmt.Errorf("item %d: %w", i, err)
			}
			res.Skipped++
			logger.L.Warnw("skipping item",
				"index", i,
				"title", item.Title,
				"link", item.Link,
				"error", err,
			)
			continue
		}
		if ok {
			res.Matched = append(res.Matched, item)
		}
	}
	return res, nil
}

func (f *Filter) Match(item Item) (bool, error) {
	ok, err := PublishedAfter(item.PubDate, f.cutoff)
	if err != nil || !ok {
		return false, err
	}
	return matchLowered(item.Title, f.keywords)
}

// PublishedAfter reports whether pubDate, an RFC 2822 date, is strictly
// later than cutoff (Unix seconds).
func PublishedAfter(pubDate string, cutoff int64) (bool, error) {
	if strings.TrimSpace(pubDate) == "" {
		return false, fmt.Errorf("%w: pubDate", ErrMissingField)
	}
	t, err := ParseRFC2822(pubDate)
	if err != nil {
		return false, fmt.Errorf("%w: pubDate %q: %v", ErrMissingField, pubDate, err)
	}
	return t.Unix() > cutoff, nil
}

// MatchKeywords reports whether any keyword is a case-insensitive substring
// of title. A nil keyword list matches everything.
func MatchKeywords(title string, keywords []string) (bool, error) {
	if keywords == nil {
		return true, nil
	}
	return matchLowered(title, lo.Map(keywords, func(k string, _ int) string {
		return strings.ToLower(k)
	}))
}

func matchLowered(title string, lowered []string) (bool, error) {
	if lowered == nil {
		return true, nil
	}
	if len(lowered) == 0 {
		return false, nil
	}
	if title == "" {
		return false, fmt.Errorf("%w: title", ErrMissingField)
	}
	haystack := strings.ToLower(title)
	return lo.SomeBy(lowered, func(k string) bool {
		return strings.Contains(haystack, k)
	}), nil
}
