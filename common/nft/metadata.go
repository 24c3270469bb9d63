package nft

import (
	"net/url"
	"path"
	"strings"
)

// MetadataID returns the id of the metadata record an NFT URI points at:
// the last path segment of the URI, or "" when the URI has no path.
func MetadataID(uri string) string {
	p := uri
	if u, err := url.Parse(uri); err == nil {
		p = u.Path
	}
	p = strings.TrimRight(p, "/")
	if p == "" {
		return ""
	}
	return path.Base(p)
}
