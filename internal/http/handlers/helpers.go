package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeErrorKind(w http.ResponseWriter, status int, kind string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": kind})
}

func queryCSV(r *http.Request, key string) []string {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func dateOrToday(r *http.Request) string {
	if d := strings.TrimSpace(r.URL.Query().Get("date")); d != "" {
		return d
	}
	return time.Now().Format("2006-01-02")
}
