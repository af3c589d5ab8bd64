package adapter

import (
	"html"
	"net/url"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
)

var (
	ugcPolicy    = bluemonday.UGCPolicy()
	strictPolicy = bluemonday.StrictPolicy()
	mdConverter  = converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
)

// extractText converts an HTML or HTML-encoded description to readable
// markdown. Entities are unescaped first (Greenhouse double-encodes its
// content), scripts and styles are dropped, and links are resolved against
// pageURL.
func extractText(content, pageURL string) string {
	unescaped := html.UnescapeString(content)
	safe := ugcPolicy.Sanitize(unescaped)
	md, err := mdConverter.ConvertString(safe, converter.WithDomain(pageURL))
	if err != nil {
		return cleanText(strictPolicy.Sanitize(safe))
	}
	return strings.TrimSpace(md)
}

// cleanText collapses whitespace, including non-breaking spaces.
func cleanText(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.Join(strings.Fields(s), " ")
}

// canonicalURL lowercases scheme and host and drops the fragment and
// tracking parameters, so re-scrapes of the same posting hash identically.
func canonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	q := u.Query()
	for k := range q {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "utm_") || lk == "gclid" || lk == "fbclid" || lk == "ref" || lk == "source" {
			q.Del(k)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// matchesQuery reports whether every word of query occurs in text,
// case-insensitively. An empty query matches everything.
func matchesQuery(text, query string) bool {
	text = strings.ToLower(text)
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if !strings.Contains(text, w) {
			return false
		}
	}
	return true
}
