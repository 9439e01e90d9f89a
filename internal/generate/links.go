package generate

import "regexp"

var markdownLink = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^\s)]+)\)`)

// Link is a markdown link found in generated prose.
type Link struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// ExtractLinks returns the http(s) markdown links in md, in order, without
// duplicate URLs.
func ExtractLinks(md string) []Link {
	out := []Link{}
	seen := make(map[string]bool)
	for _, m := range markdownLink.FindAllStringSubmatch(md, -1) {
		if seen[m[2]] {
			continue
		}
		seen[m[2]] = true
		out = append(out, Link{Title: m[1], URL: m[2]})
	}
	return out
}
