package domain

import (
	"sort"
	"strconv"
	"strings"
)

// SortField represents the field to sort by.
type SortField string

const (
	SortFieldRecent SortField = "recent" // jm addtime / ex posted, newest first
	SortFieldPosted SortField = "posted"
	SortFieldViews  SortField = "views"
	SortFieldLikes  SortField = "likes"
	SortFieldRating SortField = "rating"
	SortFieldNone   SortField = "source" // keep snapshot order
)

// SortFields lists every accepted sort field.
var SortFields = []SortField{
	SortFieldRecent, SortFieldPosted, SortFieldViews,
	SortFieldLikes, SortFieldRating, SortFieldNone,
}

// Valid reports whether f is one of SortFields.
func (f SortField) Valid() bool {
	for _, known := range SortFields {
		if f == known {
			return true
		}
	}

	return false
}

// GalleryQuery holds filter and paging parameters for snapshot queries.
// Subcategory only narrows jm results, ex records carry no category_sub.
type GalleryQuery struct {
	Provider    string
	Keyword     string
	Category    string
	Subcategory string
	SortBy      SortField
	Page        int
	PageSize    int
}

// DefaultGalleryQuery returns query params with sensible defaults.
func DefaultGalleryQuery(provider string) GalleryQuery {
	return GalleryQuery{
		Provider: provider,
		SortBy:   SortFieldNone,
		Page:     1,
		PageSize: 20,
	}
}

// Normalize clamps paging values into acceptable bounds.
func (q *GalleryQuery) Normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 20
	}
	if q.PageSize > 100 {
		q.PageSize = 100
	}
	if q.SortBy == "" {
		q.SortBy = SortFieldNone
	}
}

// Offset calculates the slice offset for pagination.
func (q *GalleryQuery) Offset() int {
	return (q.Page - 1) * q.PageSize
}

// Matches reports whether r passes the keyword and category filters.
// Keywords match title, author and tags case-insensitively; category
// matches either the category id or title (jm) or the category name (ex).
// Subcategory matches the jm category_sub the same way.
func (q *GalleryQuery) Matches(r Record) bool {
	if q.Keyword != "" {
		kw := strings.ToLower(q.Keyword)
		found := strings.Contains(strings.ToLower(r.Title()), kw)
		if !found {
			if author, ok := r["author"].(string); ok {
				found = strings.Contains(strings.ToLower(author), kw)
			}
		}
		if !found {
			for _, t := range r.Tags() {
				if strings.Contains(strings.ToLower(t), kw) {
					found = true
					break
				}
			}
		}
		if !found {
			return false
		}
	}

	if q.Category != "" && !labelMatches(r["category"], q.Category) {
		return false
	}
	if q.Subcategory != "" && !labelMatches(r["category_sub"], q.Subcategory) {
		return false
	}

	return true
}

// Apply filters, sorts and pages a snapshot. The snapshot is not modified.
func (q GalleryQuery) Apply(s Snapshot) *GalleryPage {
	q.Normalize()

	filtered := make([]Record, 0, len(s))
	for _, r := range s {
		if q.Matches(r) {
			filtered = append(filtered, r)
		}
	}

	if key := sortKey(q.SortBy); key != nil {
		sort.SliceStable(filtered, func(i, j int) bool {
			return key(filtered[i]) > key(filtered[j])
		})
	}

	total := len(filtered)
	start := q.Offset()
	if start > total {
		start = total
	}
	end := start + q.PageSize
	if end > total {
		end = total
	}

	return NewGalleryPage(filtered[start:end], total, q)
}

// GalleryPage holds one page of query results.
type GalleryPage struct {
	Records    []Record `json:"results"`
	Total      int      `json:"total"`
	Page       int      `json:"page"`
	PageSize   int      `json:"per_page"`
	TotalPages int      `json:"total_pages"`
}

// NewGalleryPage creates a GalleryPage with calculated pagination.
func NewGalleryPage(records []Record, total int, q GalleryQuery) *GalleryPage {
	totalPages := total / q.PageSize
	if total%q.PageSize > 0 {
		totalPages++
	}

	return &GalleryPage{
		Records:    records,
		Total:      total,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: totalPages,
	}
}

func sortKey(field SortField) func(Record) float64 {
	switch field {
	case SortFieldRecent, SortFieldPosted:
		return func(r Record) float64 { return float64(publishedAt(r)) }
	case SortFieldViews:
		return func(r Record) float64 { return float64(r.Int("total_views")) }
	case SortFieldLikes:
		return func(r Record) float64 { return float64(r.Int("likes")) }
	case SortFieldRating:
		return func(r Record) float64 {
			switch v := r["rating"].(type) {
			case float64:
				return v
			case string:
				f, _ := strconv.ParseFloat(v, 64)
				return f
			}
			return 0
		}
	default:
		return nil
	}
}
