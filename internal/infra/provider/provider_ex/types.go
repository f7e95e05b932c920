package provider_ex

import (
	"strconv"

	"favorites-sync-service/internal/domain"
)

// Listing fields attached to every metadata record.
const (
	FavCategoryKey = "favCategory"
	FavTimeKey     = "favTime"

	unknown = "Unknown"
)

// Favorite is one row of the favorites listing.
type Favorite struct {
	GID         string
	Token       string
	FavCategory string
	FavTime     string
}

// GDataRequest is the bulk metadata request body.
type GDataRequest struct {
	Method    string  `json:"method"`
	GIDList   [][]any `json:"gidlist"`
	Namespace int     `json:"namespace"`
}

// GDataResponse is the bulk metadata response body.
type GDataResponse struct {
	GMetadata []map[string]any `json:"gmetadata"`
}

// NewGDataRequest builds a request for favs. Gids are sent as integers.
func NewGDataRequest(favs []Favorite) GDataRequest {
	list := make([][]any, 0, len(favs))
	for _, f := range favs {
		gid, err := strconv.ParseInt(f.GID, 10, 64)
		if err != nil {
			continue
		}
		list = append(list, []any{gid, f.Token})
	}

	return GDataRequest{Method: "gdata", GIDList: list, Namespace: 1}
}

// ToRecord attaches the listing fields of fav to a metadata entry.
func ToRecord(meta map[string]any, fav Favorite) domain.Record {
	return domain.Record(meta).Merge(map[string]any{
		FavCategoryKey: fav.FavCategory,
		FavTimeKey:     fav.FavTime,
	})
}
