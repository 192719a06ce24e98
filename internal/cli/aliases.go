package cli

import "github.com/tengjizhang/feedexec/internal/model"

type FetchResult = model.FetchResult
type RunStats = model.RunStats
type FeedReport = model.FeedReport
type Item = model.Item
