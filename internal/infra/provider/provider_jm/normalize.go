package provider_jm

import (
	"fmt"
	"strings"
	"time"

	"favorites-sync-service/internal/domain"
)

// DefaultCoverURLTemplate builds cover image URLs; {id} is replaced.
const DefaultCoverURLTemplate = "https://cdn-msp.18comic.vip/media/albums/{id}_3x4.jpg"

// EnrichedAtKey marks records whose detail fetch succeeded.
const EnrichedAtKey = "enriched_at"

var counterKeys = []string{"addtime", "total_views", "likes", "comment_total"}

// Normalize coerces one album record into stable types so sorting and
// stats never see mixed representations.
func Normalize(item map[string]any, coverTemplate string) domain.Record {
	rec := domain.Record(item).Clone()

	if v, ok := rec["id"]; ok && v != nil {
		rec["id"] = domain.Stringify(v)
	}
	for _, k := range counterKeys {
		rec[k] = domain.ToInt(rec[k])
	}
	for _, k := range []string{"latest_ep", "latest_ep_aid"} {
		if v, ok := rec[k]; ok && v != nil {
			rec[k] = domain.Stringify(v)
		}
	}

	rec["tags"] = stringList(rec["tags"])
	rec["category"] = category(rec["category"])
	rec["category_sub"] = category(rec["category_sub"])

	for _, k := range []string{"author", "description", "name"} {
		rec[k] = text(rec[k])
	}

	rec["image"] = ""
	if id := rec.ID(); id != "" {
		if coverTemplate == "" {
			coverTemplate = DefaultCoverURLTemplate
		}
		rec["image"] = strings.ReplaceAll(coverTemplate, "{id}", id)
	}

	return rec
}

// MergeDetail layers album detail fields onto a base record. Only counters,
// timestamps and tags are taken; author and description fill gaps.
func MergeDetail(base domain.Record, detail map[string]any, now time.Time) domain.Record {
	fields := map[string]any{EnrichedAtKey: now.Unix()}

	for _, k := range counterKeys {
		if v, ok := detail[k]; ok {
			fields[k] = domain.ToInt(v)
		}
	}
	if v, ok := detail["tags"]; ok {
		fields["tags"] = stringList(v)
	}
	for _, k := range []string{"author", "description"} {
		if cur, _ := base[k].(string); cur == "" {
			if s := text(detail[k]); s != "" {
				fields[k] = s
			}
		}
	}

	return base.Merge(fields)
}

func stringList(v any) []string {
	out := []string{}
	switch list := v.(type) {
	case []string:
		out = append(out, list...)
	case []any:
		for _, t := range list {
			if s, ok := t.(string); ok {
				out = append(out, s)
			}
		}
	}

	return out
}

func category(v any) map[string]any {
	out := map[string]any{"id": "", "title": ""}
	m, ok := v.(map[string]any)
	if !ok {
		return out
	}
	for _, k := range []string{"id", "title"} {
		if x, ok := m[k]; ok && x != nil {
			out[k] = domain.Stringify(x)
		}
	}

	return out
}

// text flattens a string or a list of strings (author is sometimes a list).
func text(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []any:
		parts := stringList(s)
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(s)
	}
}
