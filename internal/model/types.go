package model

// Channel is one parsed RSS document.
type Channel struct {
	Title       string `json:"title,omitempty"`
	Link        string `json:"link,omitempty"`
	Description string `json:"description,omitempty"`
	Items       []Item `json:"items"`
}

// Item fields are empty when the feed omits them.
type Item struct {
	Title   string `json:"title,omitempty"`
	Link    string `json:"link,omitempty"`
	PubDate string `json:"pub_date,omitempty"`
}

// FetchResult holds exactly one of Channel or Err.
type FetchResult struct {
	URL     string   `json:"url"`
	Channel *Channel `json:"channel,omitempty"`
	Err     error    `json:"-"`
}

func (r FetchResult) OK() bool {
	return r.Err == nil && r.Channel != nil
}

// FeedReport summarizes one feed of a run. Error is set when the feed could
// not be fetched or parsed.
type FeedReport struct {
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Items   int    `json:"items"`
	Matched int    `json:"matched"`
	Skipped int    `json:"skipped"`
	Error   string `json:"error,omitempty"`
}

type RunStats struct {
	Feeds      int          `json:"feeds"`
	FeedErrors int          `json:"feed_errors"`
	Items      int          `json:"items"`
	Skipped    int          `json:"skipped"`
	Matched    int          `json:"matched"`
	Dispatched int          `json:"dispatched"`
	Reports    []FeedReport `json:"reports"`
}
