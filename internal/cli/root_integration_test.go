package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// 2026-02-13T10:00:00Z
const cutoff = int64(1770976800)

func setEnvForTest(t *testing.T, key, value string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if had {
			_ = os.Setenv(key, old)
		} else {
			_ = os.Unsetenv(key)
		}
	})
}

func unsetEnvForTest(t *testing.T, key string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if had {
			_ = os.Setenv(key, old)
		} else {
			_ = os.Unsetenv(key)
		}
	})
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"urls", "URLS",
		"cmd", "CMD",
		"args", "ARGS",
		"keywords", "KEYWORDS",
		"timestamp", "TIMESTAMP",
		"XDG_CONFIG_HOME",
		"FEEDEXEC_HTTP_TIMEOUT_SECONDS",
		"FEEDEXEC_FETCH_CONCURRENCY",
		"FEEDEXEC_USER_AGENT",
		"FEEDEXEC_STRICT",
		"FEEDEXEC_LOG_LEVEL",
		"FEEDEXEC_LOG_FILE",
		"FEEDEXEC_OPML",
	} {
		unsetEnvForTest(t, key)
	}
	setEnvForTest(t, "HOME", t.TempDir())
}

func requireEcho(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("echo"); err != nil {
		t.Skipf("echo not available: %v", err)
	}
}

type rssItem struct {
	title string
	link  string
	at    int64
}

func rssDoc(items ...rssItem) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><rss version="2.0"><channel><title>T</title><link>https://example.com</link>`)
	for _, it := range items {
		b.WriteString("<item>")
		if it.title != "" {
			fmt.Fprintf(&b, "<title>%s</title>", it.title)
		}
		if it.link != "" {
			fmt.Fprintf(&b, "<link>%s</link>", it.link)
		}
		if it.at != 0 {
			fmt.Fprintf(&b, "<pubDate>%s</pubDate>", time.Unix(it.at, 0).UTC().Format(time.RFC1123Z))
		}
		b.WriteString("</item>")
	}
	b.WriteString(`</channel></rss>`)
	return b.String()
}

func newFeedServer(t *testing.T, feeds map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := feeds[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func runRoot(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env")}, args...))
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestRootCommand_KeywordMatchPrintsTitle(t *testing.T) {
	requireEcho(t)
	clearConfigEnv(t)
	srv := newFeedServer(t, map[string]string{
		"/a.xml": rssDoc(
			rssItem{title: "Golang 1.24 released", link: "https://example.com/go", at: cutoff + 60},
			rssItem{title: "Golang 1.23 released", link: "https://example.com/old", at: cutoff - 60},
		),
		"/b.xml": rssDoc(
			rssItem{title: "Rust weekly", link: "https://example.com/rust", at: cutoff + 60},
		),
	})

	setEnvForTest(t, "urls", fmt.Sprintf(`["%s/a.xml", "%s/b.xml"]`, srv.URL, srv.URL))
	setEnvForTest(t, "timestamp", fmt.Sprint(cutoff))
	setEnvForTest(t, "keywords", `["golang"]`)
	setEnvForTest(t, "cmd", "echo")
	setEnvForTest(t, "args", `["#TITLE"]`)

	stdout, stderr, err := runRoot(t)
	if err != nil {
		t.Fatalf("execute: %v (stderr: %s)", err, stderr)
	}
	if stdout != "Golang 1.24 released\n" {
		t.Fatalf("unexpected stdout: %q", stdout)
	}
}

func TestRootCommand_FutureCutoffDispatchesNothing(t *testing.T) {
	requireEcho(t)
	clearConfigEnv(t)
	srv := newFeedServer(t, map[string]string{
		"/a.xml": rssDoc(
			rssItem{title: "one", link: "https://example.com/1", at: cutoff},
			rssItem{title: "two", link: "https://example.com/2", at: cutoff + 10},
		),
	})

	setEnvForTest(t, "urls", srv.URL+"/a.xml")
	setEnvForTest(t, "timestamp", fmt.Sprint(time.Now().AddDate(10, 0, 0).Unix()))
	setEnvForTest(t, "cmd", "echo")
	setEnvForTest(t, "args", "#TITLE")

	stdout, stderr, err := runRoot(t)
	if err != nil {
		t.Fatalf("execute: %v (stderr: %s)", err, stderr)
	}
	if stdout != "" {
		t.Fatalf("expected no output, got %q", stdout)
	}
}

func TestRootCommand_NoKeywordsDispatchesAllInFeedOrder(t *testing.T) {
	requireEcho(t)
	clearConfigEnv(t)
	srv := newFeedServer(t, map[string]string{
		"/a.xml": rssDoc(
			rssItem{title: "third newest", link: "https://example.com/1", at: cutoff + 1},
			rssItem{title: "newest", link: "https://example.com/2", at: cutoff + 300},
			rssItem{title: "middle", link: "https://example.com/3", at: cutoff + 100},
		),
	})

	setEnvForTest(t, "urls", srv.URL+"/a.xml")
	setEnvForTest(t, "timestamp", fmt.Sprint(cutoff))
	setEnvForTest(t, "cmd", "echo")
	setEnvForTest(t, "args", `["#LINK"]`)

	stdout, stderr, err := runRoot(t)
	if err != nil {
		t.Fatalf("execute: %v (stderr: %s)", err, stderr)
	}
	want := "https://example.com/1\nhttps://example.com/2\nhttps://example.com/3\n"
	if stdout != want {
		t.Fatalf("unexpected stdout:\n%s\nwant:\n%s", stdout, want)
	}
}

func TestRootCommand_UnreachableFeedReportedOnce(t *testing.T) {
	requireEcho(t)
	clearConfigEnv(t)
	srv := newFeedServer(t, map[string]string{
		"/ok.xml": rssDoc(rssItem{title: "kept", link: "https://example.com/kept", at: cutoff + 1}),
	})
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	setEnvForTest(t, "urls", fmt.Sprintf(`["%s/feed.xml", "%s/ok.xml"]`, deadURL, srv.URL))
	setEnvForTest(t, "timestamp", fmt.Sprint(cutoff))
	setEnvForTest(t, "cmd", "echo")
	setEnvForTest(t, "args", `["#TITLE", "#LINK"]`)

	stdout, stderr, err := runRoot(t)
	if err != nil {
		t.Fatalf("execute: %v (stderr: %s)", err, stderr)
	}
	lines := strings.Split(strings.TrimRight(stdout, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 output lines, got %q", stdout)
	}
	if !strings.HasPrefix(lines[0], "Error: ") {
		t.Fatalf("expected error line first, got %q", lines[0])
	}
	if lines[1] != "kept https://example.com/kept" {
		t.Fatalf("unexpected dispatch output %q", lines[1])
	}
}

func TestRootCommand_NoCommandMeansNoOutput(t *testing.T) {
	clearConfigEnv(t)
	srv := newFeedServer(t, map[string]string{
		"/a.xml": rssDoc(rssItem{title: "x", link: "https://example.com/x", at: cutoff + 1}),
	})
	setEnvForTest(t, "urls", srv.URL+"/a.xml")
	setEnvForTest(t, "timestamp", fmt.Sprint(cutoff))

	stdout, _, err := runRoot(t)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if stdout != "" {
		t.Fatalf("expected no output without cmd, got %q", stdout)
	}
}

func TestRootCommand_MissingRequiredConfig(t *testing.T) {
	clearConfigEnv(t)

	_, _, err := runRoot(t)
	if err == nil {
		t.Fatalf("expected error when urls is missing")
	}
	if code := ErrorExitCode(err); code != exitInvalidConfig {
		t.Fatalf("expected exit code %d, got %d (%v)", exitInvalidConfig, code, err)
	}
	if !strings.Contains(FormatError(err), "[invalid-config]") {
		t.Fatalf("unexpected formatted error: %s", FormatError(err))
	}

	setEnvForTest(t, "urls", "https://example.com/rss")
	setEnvForTest(t, "timestamp", "yesterday")
	_, _, err = runRoot(t)
	if code := ErrorExitCode(err); code != exitInvalidConfig {
		t.Fatalf("expected invalid config for bad timestamp, got %d (%v)", code, err)
	}
}

func TestRootCommand_TimestampFlagOverridesEnv(t *testing.T) {
	requireEcho(t)
	clearConfigEnv(t)
	srv := newFeedServer(t, map[string]string{
		"/a.xml": rssDoc(rssItem{title: "recent", at: cutoff + 10}),
	})
	setEnvForTest(t, "urls", srv.URL+"/a.xml")
	setEnvForTest(t, "timestamp", fmt.Sprint(cutoff+100))
	setEnvForTest(t, "cmd", "echo")
	setEnvForTest(t, "args", "#TITLE")

	stdout, _, err := runRoot(t, "--timestamp", fmt.Sprint(cutoff))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if stdout != "recent\n" {
		t.Fatalf("unexpected stdout %q", stdout)
	}
}

func TestRootCommand_MissingDateSkippedUnlessStrict(t *testing.T) {
	requireEcho(t)
	clearConfigEnv(t)
	srv := newFeedServer(t, map[string]string{
		"/a.xml": rssDoc(
			rssItem{title: "undated", link: "https://example.com/u"},
			rssItem{title: "dated", link: "https://example.com/d", at: cutoff + 1},
		),
	})
	setEnvForTest(t, "urls", srv.URL+"/a.xml")
	setEnvForTest(t, "timestamp", fmt.Sprint(cutoff))
	setEnvForTest(t, "cmd", "echo")
	setEnvForTest(t, "args", "#TITLE")

	stdout, stderr, err := runRoot(t)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if stdout != "dated\n" {
		t.Fatalf("unexpected stdout %q", stdout)
	}
	if !strings.Contains(stderr, "skipping item") {
		t.Fatalf("expected skip warning on stderr, got %q", stderr)
	}

	stdout, _, err = runRoot(t, "--strict")
	if err == nil {
		t.Fatalf("expected strict mode to abort")
	}
	if code := ErrorExitCode(err); code != exitMissingField {
		t.Fatalf("expected exit code %d, got %d (%v)", exitMissingField, code, err)
	}
	if stdout != "" {
		t.Fatalf("strict abort should happen before dispatching later items, got %q", stdout)
	}
}

func TestRootCommand_LaunchFailureAborts(t *testing.T) {
	clearConfigEnv(t)
	srv := newFeedServer(t, map[string]string{
		"/a.xml": rssDoc(rssItem{title: "x", at: cutoff + 1}),
	})
	setEnvForTest(t, "urls", srv.URL+"/a.xml")
	setEnvForTest(t, "timestamp", fmt.Sprint(cutoff))
	setEnvForTest(t, "cmd", filepath.Join(t.TempDir(), "no-such-binary"))

	_, _, err := runRoot(t)
	if code := ErrorExitCode(err); code != exitLaunchFailed {
		t.Fatalf("expected exit code %d, got %d (%v)", exitLaunchFailed, code, err)
	}
}

func TestRootCommand_EnvFileOverlay(t *testing.T) {
	requireEcho(t)
	clearConfigEnv(t)
	srv := newFeedServer(t, map[string]string{
		"/a.xml": rssDoc(rssItem{title: "from env file", at: cutoff + 1}),
	})

	envPath := filepath.Join(t.TempDir(), "feedexec.env")
	body := fmt.Sprintf("urls=%s/a.xml\ntimestamp=%d\ncmd=echo\nargs='#TITLE'\n", srv.URL, cutoff+1000)
	if err := os.WriteFile(envPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	// already-set variables win over the file
	setEnvForTest(t, "timestamp", fmt.Sprint(cutoff))

	root := NewRootCmd()
	var stdout bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--env-file", envPath})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if stdout.String() != "from env file\n" {
		t.Fatalf("unexpected stdout %q", stdout.String())
	}
}

func TestRootCommand_DryRunListsWithoutDispatching(t *testing.T) {
	clearConfigEnv(t)
	srv := newFeedServer(t, map[string]string{
		"/a.xml": rssDoc(
			rssItem{title: "Golang tips", link: "https://example.com/go", at: cutoff + 1},
			rssItem{title: "Old golang", link: "https://example.com/old", at: cutoff - 1},
		),
	})
	setEnvForTest(t, "urls", fmt.Sprintf(`["%s/a.xml", "%s/missing.xml"]`, srv.URL, srv.URL))
	setEnvForTest(t, "timestamp", fmt.Sprint(cutoff))
	setEnvForTest(t, "cmd", filepath.Join(t.TempDir(), "never-run"))

	stdout, stderr, err := runRoot(t, "--dry-run", "--json")
	if err != nil {
		t.Fatalf("execute: %v (stderr: %s)", err, stderr)
	}
	var got DryRunOutput
	if err := json.Unmarshal([]byte(stdout), &got); err != nil {
		t.Fatalf("decode dry-run output %q: %v", stdout, err)
	}
	if len(got.Items) != 1 || got.Items[0].Link != "https://example.com/go" {
		t.Fatalf("unexpected items: %+v", got.Items)
	}
	if len(got.Errors) != 1 || !strings.Contains(got.Errors[0].Error, "http 404") {
		t.Fatalf("unexpected errors: %+v", got.Errors)
	}

	stdout, _, err = runRoot(t, "--dry-run")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(stdout, "TITLE") || !strings.Contains(stdout, "Golang tips") {
		t.Fatalf("expected item table, got %q", stdout)
	}
	if strings.Contains(stdout, "Old golang") {
		t.Fatalf("old item should not be listed: %q", stdout)
	}
}

func TestRootCommand_ReportWritesSummaryToStderr(t *testing.T) {
	requireEcho(t)
	clearConfigEnv(t)
	srv := newFeedServer(t, map[string]string{
		"/a.xml": rssDoc(
			rssItem{title: "one", link: "https://example.com/1", at: cutoff + 1},
			rssItem{title: "undated", link: "https://example.com/2"},
		),
	})
	setEnvForTest(t, "urls", srv.URL+"/a.xml")
	setEnvForTest(t, "timestamp", fmt.Sprint(cutoff))
	setEnvForTest(t, "cmd", "echo")
	setEnvForTest(t, "args", "#TITLE")
	setEnvForTest(t, "FEEDEXEC_LOG_LEVEL", "error")

	stdout, stderr, err := runRoot(t, "--report", "--json")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if stdout != "one\n" {
		t.Fatalf("report must not change stdout, got %q", stdout)
	}
	var stats RunStats
	if err := json.Unmarshal([]byte(stderr), &stats); err != nil {
		t.Fatalf("decode report %q: %v", stderr, err)
	}
	if stats.Feeds != 1 || stats.Items != 2 || stats.Matched != 1 || stats.Skipped != 1 || stats.Dispatched != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(stats.Reports) != 1 || stats.Reports[0].Title != "T" {
		t.Fatalf("unexpected reports: %+v", stats.Reports)
	}
}
