package http

import (
	"io"
	"net/http"
)

// maxCommandBodyBytes bounds the size of a POST /command request body.
const maxCommandBodyBytes = 1024

func (s *Server) registerRoutes(commands CommandHandler) {
	fileServer := http.FileServer(http.Dir(s.config.StaticDir))
	s.router.Handle("/statique/*", http.StripPrefix("/statique/", cacheControl(fileServer)))

	s.router.Post("/command", s.handleCommand(commands))
}

// cacheControl sets a short cache lifetime on static assets; the web client
// is small enough that aggressive caching isn't worth the staleness risk.
func cacheControl(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=60")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleCommand(commands CommandHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxCommandBodyBytes)

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "request body too large or unreadable", http.StatusBadRequest)
			return
		}

		snapshot, status := commands.HandleCommand(body)
		if status == 0 {
			status = http.StatusOK
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write(snapshot)
	}
}
