package download

import (
	"net/url"
	"strings"
)

// DefaultTrustedPlatformMarkers are the host substrings identifying video
// platforms for which the extractor tool is authoritative. A failure from
// the extractor against one of these hosts is surfaced directly; a generic
// HTTP fetch of such a URL would almost certainly return a web page rather
// than media, masking the real error.
var DefaultTrustedPlatformMarkers = []string{"youtube.", "youtu.be"}

// Resolver orders the available handlers for a URL and implements the
// fallback policy. It holds no mutable state; Resolve is a pure function
// of the URL string.
type Resolver struct {
	extractor Handler
	direct    Handler
	markers   []string
}

func NewResolver(extractor Handler, direct Handler, trustedMarkers []string) *Resolver {
	if trustedMarkers == nil {
		trustedMarkers = DefaultTrustedPlatformMarkers
	}

	return &Resolver{extractor: extractor, direct: direct, markers: trustedMarkers}
}

// Resolve returns the ordered list of handlers to attempt for the given
// URL. The extractor-backed handler always comes first as it supports the
// broadest provider set. The direct-fetch handler is offered as a fallback
// unless the URL belongs to a trusted platform, in which case exactly one
// handler is returned.
//
// A syntactically invalid URL, or one with a scheme other than http/https,
// yields a ValidationError: the caller should reject it outright rather
// than queueing it.
func (resolver *Resolver) Resolve(rawURL string) ([]Handler, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, NewValidationError("URL '%s' is malformed: %s", rawURL, err.Error())
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, NewValidationError("URL '%s' has unsupported scheme '%s' (only http/https are accepted)", rawURL, parsed.Scheme)
	}

	if parsed.Host == "" {
		return nil, NewValidationError("URL '%s' has no host", rawURL)
	}

	if resolver.isTrustedPlatform(parsed.Host) {
		return []Handler{resolver.extractor}, nil
	}

	return []Handler{resolver.extractor, resolver.direct}, nil
}

func (resolver *Resolver) isTrustedPlatform(host string) bool {
	host = strings.ToLower(host)
	for _, marker := range resolver.markers {
		if strings.Contains(host, marker) {
			return true
		}
	}

	return false
}
