// Package grouping partitions an ordered media list into date buckets for
// display. It only partitions: items are never re-sorted within or across
// buckets, so flattening the groups in order reproduces the input exactly.
package grouping

import (
	"github.com/yourorg/photo-gallery/internal/model"
)

// Granularity selects the date-bucketing resolution.
type Granularity string

const (
	ByDay   Granularity = "day"
	ByMonth Granularity = "month"
	ByYear  Granularity = "year"
)

// UnknownDateKey collects items whose capture timestamp is missing or
// unparsable. They land wherever the incoming order puts them.
const UnknownDateKey = "未知日期"

// layouts render group keys the way the original UI did for the zh-CN locale.
var layouts = map[Granularity]string{
	ByDay:   "2006年1月2日",
	ByMonth: "2006年1月",
	ByYear:  "2006年",
}

// Group is one date bucket holding an ordered sublist of the input.
type Group struct {
	Key   string            `json:"key"`
	Items []model.MediaItem `json:"items"`
}

// GroupByDate buckets items by their capture date at the given granularity.
// First-seen order of keys defines display order.
func GroupByDate(items []model.MediaItem, granularity Granularity) []Group {
	layout, ok := layouts[granularity]
	if !ok {
		layout = layouts[ByDay]
	}

	var groups []Group
	index := make(map[string]int)

	for _, item := range items {
		key := UnknownDateKey
		if t, ok := model.ParseCaptureTime(item.MediaCreatedAt); ok {
			key = t.Format(layout)
		}

		i, seen := index[key]
		if !seen {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Key: key})
		}
		groups[i].Items = append(groups[i].Items, item)
	}

	return groups
}

// Flatten concatenates the groups in order. Its output equals GroupByDate's
// input, which the grid relies on when mapping a tile back to a list index.
func Flatten(groups []Group) []model.MediaItem {
	var items []model.MediaItem
	for _, g := range groups {
		items = append(items, g.Items...)
	}
	return items
}
