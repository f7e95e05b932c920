// Package dto provides Data Transfer Objects for HTTP requests and responses.
package dto

import "favorites-sync-service/internal/domain"

// GalleryRequest represents the query parameters of a gallery listing.
type GalleryRequest struct {
	Keyword     string `query:"keyword" validate:"max=200"`
	Category    string `query:"category" validate:"max=100"`
	Subcategory string `query:"subcategory" validate:"max=100"`
	Sort        string `query:"sort" validate:"omitempty,sortfield"`
	Page        int    `query:"page" validate:"omitempty,min=1"`
	PerPage     int    `query:"per_page" validate:"omitempty,min=1,max=100"`
}

// ToGalleryQuery converts GalleryRequest to domain.GalleryQuery.
func (r *GalleryRequest) ToGalleryQuery(provider string) domain.GalleryQuery {
	q := domain.DefaultGalleryQuery(provider)

	q.Keyword = r.Keyword
	q.Category = r.Category
	q.Subcategory = r.Subcategory
	if r.Sort != "" {
		q.SortBy = domain.SortField(r.Sort)
	}
	if r.Page > 0 {
		q.Page = r.Page
	}
	if r.PerPage > 0 {
		q.PageSize = r.PerPage
	}

	return q
}

// SyncRequest represents the query parameters of a sync trigger.
type SyncRequest struct {
	Async bool `query:"async"`
}

// HistoryRequest represents the query parameters of the run history.
type HistoryRequest struct {
	Provider string `query:"provider" validate:"omitempty,provider"`
	Limit    int    `query:"limit" validate:"omitempty,min=1,max=50"`
}

// DefaultTopTags is the tag count returned when n is omitted.
const DefaultTopTags = 20

// TopTagsRequest represents the query parameters of the top tags ranking.
// Type is an ex tag namespace such as artist or female.
type TopTagsRequest struct {
	N    int    `query:"n" validate:"omitempty,min=1,max=100"`
	Type string `query:"type" validate:"omitempty,max=32,alpha"`
}

// Limit returns N or DefaultTopTags when unset.
func (r *TopTagsRequest) Limit() int {
	if r.N > 0 {
		return r.N
	}

	return DefaultTopTags
}
