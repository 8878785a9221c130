package api

import (
	"net/url"
	"regexp"
	"strings"

	"curator/internal/services"
)

// sourceRule describes what a single-item URL looks like for one source
// family. URLs on a matching host must satisfy the item pattern; listing
// patterns are rejected outright even when the item pattern also matches.
type sourceRule struct {
	hostSuffix string
	item       *regexp.Regexp
	listing    *regexp.Regexp
}

var sourceRules = []sourceRule{
	{
		hostSuffix: "twitter.com",
		item:       regexp.MustCompile(`^/[^/]+/status/\d+`),
	},
	{
		hostSuffix: "x.com",
		item:       regexp.MustCompile(`^/[^/]+/status/\d+`),
	},
	{
		hostSuffix: "reddit.com",
		item:       regexp.MustCompile(`^/r/[^/]+/comments/[a-z0-9]+`),
	},
	{
		hostSuffix: "pixiv.net",
		item:       regexp.MustCompile(`^(/en)?/artworks/\d+`),
	},
	{
		hostSuffix: "deviantart.com",
		item:       regexp.MustCompile(`^/[^/]+/art/[^/]+`),
	},
	{
		hostSuffix: "tumblr.com",
		item:       regexp.MustCompile(`^(/[^/]+)?/post/\d+`),
	},
	{
		hostSuffix: "bsky.app",
		item:       regexp.MustCompile(`^/profile/[^/]+/post/[^/]+`),
	},
}

// Path segments that only ever identify listings, never a single item.
var listingSegments = map[string]struct{}{
	"feed":     {},
	"feeds":    {},
	"rss":      {},
	"atom":     {},
	"search":   {},
	"explore":  {},
	"browse":   {},
	"popular":  {},
	"trending": {},
	"tags":     {},
	"tagged":   {},
}

// ValidateSourceURL rejects URLs that point at a feed or home page instead of
// a single identifiable item. Validation failures carry the validation marker
// and are never retried.
func ValidateSourceURL(raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return validationErr("validate_url", "source url is required", nil)
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return validationErr("validate_url", "source url is not a valid URL", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return validationErr("validate_url", "source url must use http or https", nil)
	}
	if parsed.Host == "" {
		return validationErr("validate_url", "source url is missing a host", nil)
	}

	path := strings.TrimSuffix(parsed.EscapedPath(), "/")
	if path == "" {
		return validationErr("validate_url", "source url points at a home page, not a single item", nil)
	}

	for _, segment := range strings.Split(strings.Trim(path, "/"), "/") {
		if _, ok := listingSegments[strings.ToLower(segment)]; ok {
			return validationErr("validate_url", "source url points at a feed or listing, not a single item", nil)
		}
	}

	host := strings.ToLower(parsed.Hostname())
	for _, rule := range sourceRules {
		if !hostMatches(host, rule.hostSuffix) {
			continue
		}
		if rule.listing != nil && rule.listing.MatchString(path) {
			return validationErr("validate_url", "source url points at a listing for this source", nil)
		}
		if !rule.item.MatchString(path) {
			return validationErr("validate_url", "source url does not identify a single item for this source", nil)
		}
		return nil
	}

	// Unknown families pass the generic checks only; extraction decides the rest.
	return nil
}

func hostMatches(host, suffix string) bool {
	return host == suffix || strings.HasSuffix(host, "."+suffix)
}

func validationErr(operation, message string, cause error) error {
	return services.Wrap(services.ErrValidation, "submission", operation, message, cause)
}
