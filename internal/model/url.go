package model

import "net/url"

// WithSize appends the resizing-service size parameter (small, preview,
// large) to a thumbnail or media URL, preserving any existing query.
func WithSize(rawURL, size string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set("size", size)
	u.RawQuery = q.Encode()
	return u.String()
}
