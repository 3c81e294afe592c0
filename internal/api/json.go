package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

// problemTypePrefix namespaces problem types; the suffix is the title slug,
// e.g. urn:storefront:problem:subscription-inactive.
const problemTypePrefix = "urn:storefront:problem:"

// Problem is an RFC 7807 problem document.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Type:     problemType(title),
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

func problemType(title string) string {
	slug := strings.Join(strings.Fields(strings.ToLower(title)), "-")
	if slug == "" {
		return "about:blank"
	}
	return problemTypePrefix + slug
}
