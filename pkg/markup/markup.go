// Package markup turns user-authored post and comment bodies into plain text.
package markup

import (
	"strings"

	"golang.org/x/net/html"
)

// DefaultExcerptRunes is the preview length used for post listings.
const DefaultExcerptRunes = 200

// PlainText strips tags, drops script/style content and collapses whitespace.
// Input that is not markup at all passes through normalized.
func PlainText(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	if !strings.ContainsAny(s, "<&") {
		return normalize(s)
	}
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return normalize(s)
	}
	return normalize(extractText(doc))
}

// IsBlank reports whether s has no visible text once markup is removed.
func IsBlank(s string) bool {
	return PlainText(s) == ""
}

// Excerpt returns the first maxRunes runes of the plain text of s, cut on a
// word boundary when possible and suffixed with "..." when truncated.
func Excerpt(s string, maxRunes int) string {
	text := PlainText(s)
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	cut := string(runes[:maxRunes])
	if i := strings.LastIndexByte(cut, ' '); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " .,;:") + "..."
}

func normalize(text string) string {
	text = strings.ReplaceAll(text, "\x00", " ")
	text = strings.ToValidUTF8(text, "")
	return strings.Join(strings.Fields(text), " ")
}

func extractText(n *html.Node) string {
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			buf.WriteString(node.Data)
		case html.ElementNode:
			switch node.Data {
			case "script", "style", "template":
				return
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
		if node.Type == html.ElementNode && blockElement(node.Data) {
			buf.WriteString(" ")
		}
	}
	walk(n)
	return buf.String()
}

func blockElement(tag string) bool {
	switch tag {
	case "p", "br", "div", "li", "h1", "h2", "h3", "h4", "h5", "h6", "blockquote", "pre", "tr", "td":
		return true
	}
	return false
}
