package route

import (
	"embed"
	"io/fs"
	"net/http"

	"videodetect/internal/config"
	"videodetect/internal/handler"
	"videodetect/internal/logger"
	"videodetect/internal/middleware"
	"videodetect/internal/pipeline"
	hub "videodetect/internal/services/websocket"
)

//go:embed static
var staticFiles embed.FS

// pageHandler serves /name as static/name.html; / is the viewer page.
func pageHandler(pages fs.FS) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Path[1:]
		if name == "" {
			name = "index"
		}

		data, err := fs.ReadFile(pages, name+".html")
		if err != nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(data)
	}
}

// SetupRoutes registers the preview endpoints and wraps the mux with the
// authentication middleware.
func SetupRoutes(cfg *config.Config, logger *logger.Logger, hubService *hub.HubService, status func() pipeline.Result) http.Handler {
	mux := http.NewServeMux()

	pages, _ := fs.Sub(staticFiles, "static")
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(pages))))

	// API endpoints
	mux.HandleFunc("/api/view", handler.ViewWebsocketHandler(hubService, logger))
	mux.HandleFunc("/api/status", handler.StatusHandler(status, logger))
	mux.HandleFunc("/logs", handler.ShowLogsHandler(logger))

	// Auth endpoints
	mux.HandleFunc("/auth/login", handler.LoginHandler(cfg, logger))
	mux.HandleFunc("/auth/logout", handler.LogoutHandler)

	mux.HandleFunc("/", pageHandler(pages))

	return middleware.AuthMiddleware(cfg.Password, mux)
}
