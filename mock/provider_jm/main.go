package main

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"favorites-sync-service/internal/infra/provider/provider_jm"
)

const (
	tokenSecret = "mock-token-secret"
	dataSecret  = "mock-data-secret"
	session     = "mock-session"

	albums  = 75
	perPage = 20
)

var codec = provider_jm.NewCodec(tokenSecret, dataSecret, "mock")

func main() {
	http.HandleFunc(provider_jm.ProbePath, func(w http.ResponseWriter, r *http.Request) {
		respond(w, r, map[string]any{"version": "mock"})
	})

	http.HandleFunc(provider_jm.LoginPath, func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("username") == "" || r.FormValue("password") == "" {
			writeCode(w, 400, "missing credentials")
			return
		}
		respond(w, r, map[string]any{"s": session, "username": r.FormValue("username")})
	})

	http.HandleFunc(provider_jm.FavoritePath, func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r) {
			writeCode(w, 401, "login required")
			return
		}
		// Simulate network latency (50-200ms)
		time.Sleep(time.Duration(50+time.Now().UnixNano()%150) * time.Millisecond)

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page < 1 {
			page = 1
		}
		list := make([]map[string]any, 0, perPage)
		for i := (page - 1) * perPage; i < page*perPage && i < albums; i++ {
			list = append(list, base(i))
		}
		respond(w, r, map[string]any{"list": list, "total": strconv.Itoa(albums)})
	})

	http.HandleFunc(provider_jm.AlbumPath, func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r) {
			writeCode(w, 401, "login required")
			return
		}
		id, err := strconv.Atoi(r.URL.Query().Get("id"))
		if err != nil || id < 100 || id >= 100+albums {
			writeCode(w, 404, "album not found")
			return
		}
		respond(w, r, detail(id-100))
	})

	log.Println("Mock Provider JM running on :8082")
	server := &http.Server{
		Addr:         ":8082",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	log.Fatal(server.ListenAndServe())
}

func authorized(r *http.Request) bool {
	c, err := r.Cookie(provider_jm.SessionCookie)
	return err == nil && c.Value == session
}

// respond encrypts payload with the timestamp the client signed with.
func respond(w http.ResponseWriter, r *http.Request, payload any) {
	tsPart, _, _ := strings.Cut(r.Header.Get("tokenparam"), ",")
	ts, err := strconv.ParseInt(tsPart, 10, 64)
	if err != nil || codec.Sign(ts).Token != r.Header.Get("token") {
		writeCode(w, 403, "bad signature")
		return
	}

	body, err := codec.Envelope(ts, payload)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(body); err != nil {
		log.Printf("[Provider JM] Write error: %v", err)
	}
	log.Printf("[Provider JM] %s %s - 200 OK", r.Method, r.URL.Path)
}

func writeCode(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"code":%d,"errorMsg":%q,"data":""}`, code, msg)
}

func base(i int) map[string]any {
	return map[string]any{
		"id":          strconv.Itoa(100 + i),
		"name":        fmt.Sprintf("Album %d", 100+i),
		"author":      fmt.Sprintf("author%d", i%6),
		"description": "",
		"category":    map[string]any{"id": strconv.Itoa(1 + i%3), "title": []string{"Doujin", "Single", "Short"}[i%3]},
	}
}

func detail(i int) map[string]any {
	return map[string]any{
		"id":          strconv.Itoa(100 + i),
		"name":        fmt.Sprintf("Album %d", 100+i),
		"addtime":     strconv.Itoa(1700000000 + i*600),
		"total_views": strconv.Itoa(1000 + i*37),
		"likes":       strconv.Itoa(10 + i*3),
		"tags":        []string{"romance", fmt.Sprintf("tag%d", i%5)},
		"works":       []string{},
		"actors":      []string{},
		"series":      []any{},
	}
}
