package tool

import (
	"net/url"
	"strings"
)

// BuildJoinURL builds the client link that opens a session, e.g.
// http://localhost:5173/?sessionId=<id>
func BuildJoinURL(publicURL, sessionID string) string {
	base := strings.TrimRight(publicURL, "/")
	if base == "" {
		base = "http://localhost:5173"
	}
	q := url.Values{}
	q.Set("sessionId", sessionID)
	return base + "/?" + q.Encode()
}
