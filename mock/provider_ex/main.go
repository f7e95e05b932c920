package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	galleries = 120
	perPage   = 50
)

var categories = []string{"Doujinshi", "Manga", "Artist CG", "Game CG", "Non-H"}

func main() {
	http.HandleFunc("/favorites.php", func(w http.ResponseWriter, r *http.Request) {
		// Simulate network latency (50-200ms)
		time.Sleep(time.Duration(50+time.Now().UnixNano()%150) * time.Millisecond)

		if _, err := r.Cookie("ipb_member_id"); err != nil {
			// The real site answers refused cookies with an empty 200.
			w.WriteHeader(http.StatusOK)
			log.Printf("[Provider EX] %s %s - 200 empty (no cookies)", r.Method, r.URL.Path)
			return
		}

		start, _ := strconv.Atoi(r.URL.Query().Get("next"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if _, err := w.Write([]byte(favoritesPage(start))); err != nil {
			log.Printf("[Provider EX] Write error: %v", err)
		}

		log.Printf("[Provider EX] %s %s?%s - 200 OK", r.Method, r.URL.Path, r.URL.RawQuery)
	})

	http.HandleFunc("/api.php", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			GIDList [][]any `json:"gidlist"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		meta := make([]map[string]any, 0, len(req.GIDList))
		for _, pair := range req.GIDList {
			if len(pair) != 2 {
				continue
			}
			gid, _ := pair[0].(float64)
			meta = append(meta, gdata(int(gid), fmt.Sprint(pair[1])))
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{"gmetadata": meta}); err != nil {
			log.Printf("[Provider EX] Write error: %v", err)
		}

		log.Printf("[Provider EX] %s %s - 200 OK (%d galleries)", r.Method, r.URL.Path, len(meta))
	})

	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	log.Println("Mock Provider EX running on :8081")
	server := &http.Server{
		Addr:         ":8081",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	log.Fatal(server.ListenAndServe())
}

func favoritesPage(start int) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="searchnav">`)
	if end := start + perPage; end < galleries {
		fmt.Fprintf(&b, `<a id="unext" href="/favorites.php?next=%d">Next &gt;</a>`, end)
	}
	b.WriteString(`</div><table class="itg gltc">`)

	for i := start; i < start+perPage && i < galleries; i++ {
		gid := 1000 + i
		fmt.Fprintf(&b, `<tr><td class="gl1c"><div class="cn">%s</div></td>`, categories[i%len(categories)])
		fmt.Fprintf(&b, `<td class="gl3c glname"><a href="/g/%d/%s/"><div class="glink">Gallery %d</div></a>`, gid, token(gid), gid)
		fmt.Fprintf(&b, `<div title="Favorites %d"></div></td>`, i%10)
		fmt.Fprintf(&b, `<td class="glfc"><p>2024-%02d-%02d</p><p>12:00</p></td></tr>`, 1+i%12, 1+i%28)
	}

	b.WriteString(`</table></body></html>`)
	return b.String()
}

func gdata(gid int, tok string) map[string]any {
	if tok != token(gid) {
		return map[string]any{"gid": gid, "error": "Key missing, or incorrect key provided."}
	}

	i := gid - 1000
	return map[string]any{
		"gid":       gid,
		"token":     tok,
		"title":     fmt.Sprintf("Gallery %d", gid),
		"title_jpn": fmt.Sprintf("ギャラリー %d", gid),
		"category":  categories[i%len(categories)],
		"uploader":  fmt.Sprintf("uploader%d", i%7),
		"posted":    strconv.Itoa(1700000000 + i*3600),
		"filecount": strconv.Itoa(10 + i%40),
		"rating":    fmt.Sprintf("%.2f", 3+float64(i%20)/10),
		"tags":      []string{"language:english", fmt.Sprintf("artist:artist%d", i%9)},
		"thumb":     fmt.Sprintf("https://ex.example.org/t/%d.jpg", gid),
	}
}

func token(gid int) string {
	return fmt.Sprintf("%010x", gid*7919)
}
