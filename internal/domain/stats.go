package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// GalleryStats holds aggregate counts over a snapshot.
type GalleryStats struct {
	Total         int            `json:"total"`
	Categories    map[string]int `json:"categories"`
	Subcategories map[string]int `json:"subcategories,omitempty"`
}

// ComputeStats counts records per category and, for jm, per subcategory.
func ComputeStats(s Snapshot) GalleryStats {
	stats := GalleryStats{Total: len(s), Categories: make(map[string]int)}
	for _, r := range s {
		if c := CategoryOf(r); c != "" {
			stats.Categories[c]++
		}
		if sub := labelTitle(r["category_sub"]); sub != "" {
			if stats.Subcategories == nil {
				stats.Subcategories = make(map[string]int)
			}
			stats.Subcategories[sub]++
		}
	}

	return stats
}

// QuarterCount is the number of galleries published in one calendar quarter.
type QuarterCount struct {
	Quarter string `json:"quarter"` // e.g. 2024-Q3
	Count   int    `json:"count"`
}

// ComputeQuarterly buckets records by the UTC quarter of their publish time,
// addtime for jm and posted for ex. Records without a positive timestamp are
// not counted. The result is ordered oldest quarter first.
func ComputeQuarterly(s Snapshot) []QuarterCount {
	type quarter struct{ year, q int }

	counts := make(map[quarter]int)
	for _, r := range s {
		ts := publishedAt(r)
		if ts <= 0 {
			continue
		}
		t := time.Unix(ts, 0).UTC()
		counts[quarter{t.Year(), (int(t.Month())-1)/3 + 1}]++
	}

	keys := make([]quarter, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].year != keys[j].year {
			return keys[i].year < keys[j].year
		}
		return keys[i].q < keys[j].q
	})

	out := make([]QuarterCount, len(keys))
	for i, k := range keys {
		out[i] = QuarterCount{Quarter: fmt.Sprintf("%d-Q%d", k.year, k.q), Count: counts[k]}
	}

	return out
}

// TagCount is the number of records carrying a tag.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// TopTags returns the n most common tags, most frequent first. Ties keep the
// order in which tags were first seen. A non-empty namespace keeps only ex
// style "namespace:value" tags of that namespace.
func TopTags(s Snapshot, n int, namespace string) []TagCount {
	if n < 1 {
		n = 1
	}
	prefix := ""
	if namespace != "" {
		prefix = namespace + ":"
	}

	counts := make(map[string]int)
	var order []string
	for _, r := range s {
		for _, tag := range r.Tags() {
			if tag == "" || !strings.HasPrefix(tag, prefix) {
				continue
			}
			if counts[tag] == 0 {
				order = append(order, tag)
			}
			counts[tag]++
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > n {
		order = order[:n]
	}

	out := make([]TagCount, len(order))
	for i, tag := range order {
		out[i] = TagCount{Tag: tag, Count: counts[tag]}
	}

	return out
}

// CategoryOf returns the category title of a record for either provider.
func CategoryOf(r Record) string {
	return labelTitle(r["category"])
}

func publishedAt(r Record) int64 {
	if v, ok := r["addtime"]; ok {
		return ToInt(v)
	}

	return ToInt(r["posted"])
}

// labelTitle reads a plain ex label or the title of a jm {id, title} object.
func labelTitle(v any) string {
	switch c := v.(type) {
	case string:
		return c
	case map[string]any:
		if t, ok := c["title"].(string); ok {
			return t
		}
	case map[string]string:
		return c["title"]
	}

	return ""
}

func labelID(v any) string {
	switch c := v.(type) {
	case map[string]any:
		if id, ok := c["id"]; ok && id != nil {
			return Stringify(id)
		}
	case map[string]string:
		return c["id"]
	}

	return ""
}

func labelMatches(v any, want string) bool {
	return labelTitle(v) == want || labelID(v) == want
}
