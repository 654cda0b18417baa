package application

import (
	"net/url"
)

// Page is a bounded result page with hypermedia links.
type Page struct {
	Links    []Link `json:"links"`
	Elements any    `json:"elements"`
}

// Paginate wraps an already limit-bounded result in a page. A next link is
// attached only when the page is full and the caller supplied a
// continuation token: the last alarm id for alarm listings, the numeric
// offset+limit for history listings. The token replaces the offset query
// parameter of the request URI.
func Paginate[T any](elements []T, requestURI string, limit int, nextOffset string) Page {
	links := []Link{{Rel: "self", Href: requestURI}}
	if limit > 0 && len(elements) >= limit && nextOffset != "" {
		if next, ok := offsetURI(requestURI, nextOffset); ok {
			links = append(links, Link{Rel: "next", Href: next})
		}
	}
	return Page{Links: links, Elements: elements}
}

func offsetURI(requestURI, offset string) (string, bool) {
	parsed, err := url.Parse(requestURI)
	if err != nil {
		return "", false
	}
	query := parsed.Query()
	query.Set("offset", offset)
	parsed.RawQuery = query.Encode()
	return parsed.String(), true
}
