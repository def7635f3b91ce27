// Package board builds job-board search URLs and condenses rendered pages
// into compact text for extraction.
package board

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultBaseURL is the board searched when no base URL is configured.
const DefaultBaseURL = "https://www.indeed.com"

// SearchURL returns the board's search URL for keywords and location.
func SearchURL(baseURL, keywords, location string) (string, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse board base url %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("board base url %q must be absolute", baseURL)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + "/jobs"
	q := url.Values{}
	q.Set("q", strings.TrimSpace(keywords))
	if loc := strings.TrimSpace(location); loc != "" {
		q.Set("l", loc)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// SourceName identifies a search in records and logs, e.g. "www.indeed.com:golang@remote".
func SourceName(pageURL, keywords, location string) string {
	host := pageURL
	if u, err := url.Parse(pageURL); err == nil && u.Host != "" {
		host = u.Host
	}
	name := host
	if k := strings.TrimSpace(keywords); k != "" {
		name += ":" + strings.ToLower(k)
	}
	if l := strings.TrimSpace(location); l != "" {
		name += "@" + strings.ToLower(l)
	}
	return name
}
