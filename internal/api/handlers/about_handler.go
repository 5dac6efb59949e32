package handlers

import (
	"encoding/json"
	"net/http"
)

// About serves the static informational page. No data access.
func About(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"title":       "About",
		"description": "A small personal blog: write posts, browse authors, keep a profile.",
	})
}
