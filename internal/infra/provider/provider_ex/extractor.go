package provider_ex

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"favorites-sync-service/internal/domain"
)

var galleryLink = regexp.MustCompile(`/g/(\d+)/(\w+)`)

// Page is the parsed content of one favorites listing page.
type Page struct {
	Favorites []Favorite
	Next      string // absolute URL, empty on the last page
}

// ParsePage extracts the favorites rows and the next-page link. Relative
// next links are resolved against base minus its last path segment.
func ParsePage(body []byte, base string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing favorites page: %w: %v", domain.ErrProtocol, err)
	}

	page := &Page{}
	doc.Find("table.itg tr").Each(func(_ int, row *goquery.Selection) {
		if fav, ok := parseRow(row); ok {
			page.Favorites = append(page.Favorites, fav)
		}
	})

	if href, ok := doc.Find("div.searchnav a#unext").First().Attr("href"); ok && href != "" {
		page.Next = resolveNext(base, href)
	}

	return page, nil
}

func parseRow(row *goquery.Selection) (Favorite, bool) {
	href, ok := row.Find(`a[href*="/g/"]`).First().Attr("href")
	if !ok {
		return Favorite{}, false
	}
	m := galleryLink.FindStringSubmatch(href)
	if m == nil {
		return Favorite{}, false
	}

	fav := Favorite{GID: m[1], Token: m[2], FavCategory: unknown, FavTime: unknown}

	if title, ok := row.Find("div[title]").First().Attr("title"); ok {
		fav.FavCategory = strings.TrimSpace(title)
	}

	var parts []string
	row.Find("td.glfc p").Each(func(_ int, p *goquery.Selection) {
		parts = append(parts, strings.TrimSpace(p.Text()))
	})
	if len(parts) > 0 {
		fav.FavTime = strings.Join(parts, " ")
	}

	return fav, true
}

func resolveNext(base, href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}

	root := base
	host := strings.Index(base, "://") + 3
	if i := strings.LastIndex(base, "/"); i >= host && host >= 3 {
		root = base[:i]
	}
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}

	return root + href
}
