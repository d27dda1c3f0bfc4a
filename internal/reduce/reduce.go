package reduce

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	// MaxTextLen caps reducer output to bound downstream inference cost.
	MaxTextLen = 40000
	// TruncationMarker is appended whenever output was cut at MaxTextLen.
	TruncationMarker = "\n[... truncated ...]"
)

// contentRules is the ordered list of content-region probes; the first rule
// with a match wins. Patterns cover the attribute names job boards actually
// use, then the structural landmarks before the body fallback.
var contentRules = []string{
	"[id*='job-description'],[class*='job-description']",
	"[id*='jobDescription'],[class*='jobDescription']",
	"[id*='job-detail'],[class*='job-detail']",
	"[id*='job-content'],[class*='job-content']",
	"[id*='description'],[class*='description']",
	"[role='main']",
	"main",
	"article",
}

const strippedTags = "script,style,noscript,nav,header,footer,aside,iframe"

// Reduce converts raw HTML into denoised plain text bounded at MaxTextLen.
// It is pure and deterministic: identical input yields identical output, and
// an empty document yields an empty string.
func Reduce(rawHTML string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}
	doc.Find(strippedTags).Remove()

	region := contentRegion(doc)

	var b strings.Builder
	for _, n := range region.Nodes {
		collectText(&b, n)
	}
	return Truncate(joinLines(b.String()))
}

func contentRegion(doc *goquery.Document) *goquery.Selection {
	for _, rule := range contentRules {
		if m := doc.Find(rule); m.Length() > 0 {
			return m.First()
		}
	}
	if body := doc.Find("body"); body.Length() > 0 {
		return body.First()
	}
	return doc.Selection
}

// collectText walks the subtree collecting visible text, inserting newlines at
// block-element boundaries so distinct lines on the page stay distinct.
func collectText(b *strings.Builder, n *html.Node) {
	if n.Type == html.ElementNode {
		name := strings.ToLower(n.Data)
		switch name {
		case "script", "style", "noscript", "nav", "header", "footer", "aside", "iframe":
			return
		case "br", "hr":
			b.WriteString("\n")
		case "p", "div", "section", "table", "tr", "ul", "ol", "li",
			"h1", "h2", "h3", "h4", "h5", "h6", "dt", "dd":
			b.WriteString("\n")
		}
	}

	if n.Type == html.TextNode {
		b.WriteString(n.Data)
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(b, c)
	}

	if n.Type == html.ElementNode {
		switch strings.ToLower(n.Data) {
		case "p", "div", "section", "tr", "li", "h1", "h2", "h3", "h4", "h5", "h6", "dt", "dd":
			b.WriteString("\n")
		}
	}
}

// joinLines trims each line, collapses internal whitespace runs, drops blank
// lines entirely and joins the remainder with single newlines.
func joinLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		out = append(out, collapseSpaces(trimmed))
	}
	return strings.Join(out, "\n")
}

func collapseSpaces(s string) string {
	var b strings.Builder
	lastSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\r' {
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return b.String()
}

// Truncate enforces MaxTextLen, appending TruncationMarker when input was cut.
// The cut is by rune so a multi-byte character is never split.
func Truncate(s string) string {
	r := []rune(s)
	if len(r) <= MaxTextLen {
		return s
	}
	return string(r[:MaxTextLen]) + TruncationMarker
}
