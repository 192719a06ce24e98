package fetch

import "github.com/tengjizhang/feedexec/internal/model"

type Channel = model.Channel
type Item = model.Item
type FetchResult = model.FetchResult
