package http

import (
	"encoding/json"
	"net/http"
)

type versionInfo struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []struct {
		Rel  string `json:"rel"`
		Href string `json:"href"`
	} `json:"links"`
}

// NewVersionHandler serves API version metadata at the service root.
func NewVersionHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		info := versionInfo{ID: "v2.0", Status: "CURRENT"}
		info.Links = append(info.Links, struct {
			Rel  string `json:"rel"`
			Href string `json:"href"`
		}{Rel: "self", Href: "/v2.0"})

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(info)
	})
}
