package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// DryRunOutput is the --dry-run --json document.
type DryRunOutput struct {
	Items  []Item      `json:"items"`
	Errors []FeedError `json:"errors"`
}

type FeedError struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeItemsTable(out io.Writer, items []Item) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TITLE\tPUBLISHED\tLINK")
	for _, item := range items {
		fmt.Fprintf(
			tw,
			"%s\t%s\t%s\n",
			compactText(displayItemTitle(item), 56),
			compactText(item.PubDate, 32),
			item.Link,
		)
	}
	_ = tw.Flush()
}

func writeReportTable(out io.Writer, stats RunStats) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FEED\tITEMS\tMATCHED\tSKIPPED\tERROR")
	for _, r := range stats.Reports {
		fmt.Fprintf(
			tw,
			"%s\t%d\t%d\t%d\t%s\n",
			compactText(fallback(r.Title, r.URL), 40),
			r.Items,
			r.Matched,
			r.Skipped,
			compactText(oneLine(r.Error), 70),
		)
	}
	fmt.Fprintf(tw, "total\t%d\t%d\t%d\t%d failed\n", stats.Items, stats.Matched, stats.Skipped, stats.FeedErrors)
	_ = tw.Flush()
}

func compactText(v string, max int) string {
	v = oneLine(v)
	if max <= 0 {
		return v
	}
	r := []rune(v)
	if len(r) <= max {
		return v
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

func displayItemTitle(item Item) string {
	if strings.TrimSpace(item.Title) != "" {
		return item.Title
	}
	if strings.TrimSpace(item.Link) != "" {
		return item.Link
	}
	return "(untitled)"
}
