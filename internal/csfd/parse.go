package csfd

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"csfdoverlay/internal/matching"
)

const (
	titleClass  = "film-title-nooverflow"
	ratingClass = "film-rating-average"
)

var (
	filmHrefPattern = regexp.MustCompile(`^/film/(\d+)-`)
	yearPattern     = regexp.MustCompile(`(?:19|20)\d{2}`)
	percentPattern  = regexp.MustCompile(`^\s*(\d{1,3})%`)
)

// ParseCandidates extracts search hits from a search results page. Pages
// with no recognizable hits yield an empty slice.
func ParseCandidates(doc string) ([]matching.Candidate, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return nil, err
	}
	var candidates []matching.Candidate
	walk(root, func(n *html.Node) bool {
		if !isElement(n, "h3") || !hasClass(n, titleClass) {
			return true
		}
		if candidate, ok := candidateFromHeading(n); ok {
			candidates = append(candidates, candidate)
		}
		return false
	})
	return candidates, nil
}

// ParsePercent extracts the average rating percentage from a detail page.
func ParsePercent(doc string) (int, bool) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return 0, false
	}
	var rating *html.Node
	walk(root, func(n *html.Node) bool {
		if rating != nil {
			return false
		}
		if n.Type == html.ElementNode && hasClass(n, ratingClass) {
			rating = n
			return false
		}
		return true
	})
	if rating == nil {
		return 0, false
	}
	match := percentPattern.FindStringSubmatch(textContent(rating))
	if match == nil {
		return 0, false
	}
	percent, err := strconv.Atoi(match[1])
	if err != nil || percent < 0 || percent > 100 {
		return 0, false
	}
	return percent, true
}

func candidateFromHeading(h3 *html.Node) (matching.Candidate, bool) {
	var anchor *html.Node
	var id string
	walk(h3, func(n *html.Node) bool {
		if anchor != nil {
			return false
		}
		if isElement(n, "a") {
			if m := filmHrefPattern.FindStringSubmatch(attr(n, "href")); m != nil {
				anchor = n
				id = m[1]
				return false
			}
		}
		return true
	})
	if anchor == nil {
		return matching.Candidate{}, false
	}

	var rest strings.Builder
	after := false
	walk(h3, func(n *html.Node) bool {
		if n == anchor {
			after = true
			return false
		}
		if after && n.Type == html.TextNode {
			rest.WriteString(n.Data)
			rest.WriteByte(' ')
		}
		return true
	})
	tail := rest.String()

	candidate := matching.Candidate{
		RemoteID: id,
		Title:    strings.TrimSpace(textContent(anchor)),
		IsSeries: isSeriesMarker(tail),
	}
	if year := yearPattern.FindString(tail); year != "" {
		candidate.Year, _ = strconv.Atoi(year)
	}
	return candidate, true
}

func isSeriesMarker(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "(seriál)") || strings.Contains(lower, "tv seriál")
}

// walk visits n and its descendants depth-first; fn returning false skips
// the node's children.
func walk(n *html.Node, fn func(*html.Node) bool) {
	if !fn(n) {
		return
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		walk(child, fn)
	}
}

func isElement(n *html.Node, tag string) bool {
	return n.Type == html.ElementNode && n.Data == tag
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, field := range strings.Fields(attr(n, "class")) {
		if field == class {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	var b strings.Builder
	walk(n, func(node *html.Node) bool {
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
		}
		return true
	})
	return b.String()
}
