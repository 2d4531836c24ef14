package handler

import (
	"encoding/json"
	"net/http"
	"os"

	"videodetect/internal/logger"
	"videodetect/internal/pipeline"
)

// StatusHandler reports the progress of the current run as JSON.
func StatusHandler(status func() pipeline.Result, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		if err := json.NewEncoder(w).Encode(status()); err != nil {
			logger.Error("Failed to encode status: %v", err)
		}
	}
}

// ShowLogsHandler serves the current log file as text/plain.
func ShowLogsHandler(logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filePath := logger.LogFile()
		if filePath == "" {
			http.NotFound(w, r)
			return
		}
		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte("Log file not found"))
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		http.ServeFile(w, r, filePath)
	}
}
