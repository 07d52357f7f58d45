package webmention

import (
	"strings"

	"github.com/tanzawa/core/internal/models"
	"golang.org/x/net/html"
)

// parsedEntry is the subset of an h-entry this module cares about: enough
// to render the mention as a comment and classify its intent.
type parsedEntry struct {
	Name        string   `json:"name,omitempty"`
	URL         string   `json:"url,omitempty"`
	Content     string   `json:"content,omitempty"`
	AuthorName  string   `json:"author_name,omitempty"`
	AuthorURL   string   `json:"author_url,omitempty"`
	AuthorPhoto string   `json:"author_photo,omitempty"`
	LikeOf      []string `json:"like_of,omitempty"`
	InReplyTo   []string `json:"in_reply_to,omitempty"`
	RepostOf    []string `json:"repost_of,omitempty"`
}

// mentions reports every URL the entry points at through a typed property.
func (e *parsedEntry) mentions(target string) (models.MentionType, bool) {
	if containsURL(e.LikeOf, target) {
		return models.MentionLike, true
	}
	if containsURL(e.RepostOf, target) {
		return models.MentionRepost, true
	}
	if containsURL(e.InReplyTo, target) {
		return models.MentionReply, true
	}
	return models.MentionGeneric, false
}

// ExtractComment parses the source page body and finds the h-entry that
// mentions target. The mention type follows the typed property naming the
// target (like-of, repost-of, in-reply-to); a plain content link is a
// generic mention. Returns nil when no entry references the target at all.
func ExtractComment(body, source, target string) (map[string]interface{}, models.MentionType) {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil, models.MentionGeneric
	}

	entries := collectEntries(doc)
	for _, entry := range entries {
		mtype, typed := entry.mentions(target)
		if !typed && !strings.Contains(entry.Content, target) {
			continue
		}
		if entry.URL == "" {
			entry.URL = source
		}
		return map[string]interface{}{
			"url":          entry.URL,
			"name":         entry.Name,
			"content":      entry.Content,
			"author_name":  entry.AuthorName,
			"author_url":   entry.AuthorURL,
			"author_photo": entry.AuthorPhoto,
		}, mtype
	}

	// The page links to the target but outside any h-entry. Still a valid
	// mention per the protocol; record it bare.
	if strings.Contains(body, target) {
		return map[string]interface{}{"url": source}, models.MentionGeneric
	}
	return nil, models.MentionGeneric
}

// collectEntries walks the document and parses every h-entry or h-cite root.
func collectEntries(doc *html.Node) []*parsedEntry {
	var entries []*parsedEntry
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (hasClass(n, "h-entry") || hasClass(n, "h-cite")) {
			entries = append(entries, parseEntry(n))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return entries
}

// parseEntry reads the microformat properties of one h-entry subtree.
func parseEntry(root *html.Node) *parsedEntry {
	entry := &parsedEntry{}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case hasClass(n, "p-author") && hasClass(n, "h-card"):
				parseAuthorCard(n, entry)
				return
			case hasClass(n, "u-like-of"):
				entry.LikeOf = append(entry.LikeOf, urlValue(n))
			case hasClass(n, "u-in-reply-to"):
				entry.InReplyTo = append(entry.InReplyTo, urlValue(n))
			case hasClass(n, "u-repost-of"):
				entry.RepostOf = append(entry.RepostOf, urlValue(n))
			case hasClass(n, "e-content"):
				entry.Content = strings.TrimSpace(renderText(n))
			case hasClass(n, "u-url") && entry.URL == "":
				entry.URL = urlValue(n)
			case hasClass(n, "p-name") && entry.Name == "":
				entry.Name = strings.TrimSpace(textContent(n))
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		walk(c)
	}
	return entry
}

func parseAuthorCard(card *html.Node, entry *parsedEntry) {
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case hasClass(n, "u-photo") && entry.AuthorPhoto == "":
				entry.AuthorPhoto = attr(n, "src")
			case hasClass(n, "u-url") && entry.AuthorURL == "":
				entry.AuthorURL = urlValue(n)
			case hasClass(n, "p-name") && entry.AuthorName == "":
				entry.AuthorName = strings.TrimSpace(textContent(n))
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(card)
	// A bare <a class="p-author h-card" href=...>Name</a> card carries
	// everything on the root element.
	if entry.AuthorName == "" {
		entry.AuthorName = strings.TrimSpace(textContent(card))
	}
	if entry.AuthorURL == "" && card.Data == "a" {
		entry.AuthorURL = attr(card, "href")
	}
}

// urlValue resolves a u-* property: href for links, src for media, text
// otherwise.
func urlValue(n *html.Node) string {
	switch n.Data {
	case "a", "link", "area":
		return attr(n, "href")
	case "img", "video", "audio":
		return attr(n, "src")
	default:
		return strings.TrimSpace(textContent(n))
	}
}

func hasClass(n *html.Node, class string) bool {
	for _, v := range strings.Fields(attr(n, "class")) {
		if v == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// renderText flattens e-content to plain text but keeps link targets
// visible, so mentions-by-link survive the flattening.
func renderText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		if n.Type == html.ElementNode && n.Data == "a" {
			if href := attr(n, "href"); href != "" {
				b.WriteString(" ")
				b.WriteString(href)
				b.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

func containsURL(list []string, target string) bool {
	for _, u := range list {
		if strings.TrimSuffix(u, "/") == strings.TrimSuffix(target, "/") {
			return true
		}
	}
	return false
}
