package entry

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"golang.org/x/net/html"
)

// FetchLinkedPageMeta fetches the page an entry links to and extracts a
// title and author for display. It never fails: an unreachable or
// unparseable page yields a LinkedPage whose title is the URL itself, so
// a dead target can never block entry creation.
func FetchLinkedPageMeta(ctx context.Context, client *http.Client, pageURL string) *LinkedPage {
	page := &LinkedPage{URL: pageURL, Title: pageURL}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return page
	}
	resp, err := client.Do(req)
	if err != nil {
		return page
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return page
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return page
	}

	meta := scrapeMeta(doc)
	if meta.Title != "" {
		page.Title = meta.Title
	}
	page.AuthorName = meta.AuthorName
	page.AuthorURL = meta.AuthorURL
	page.AuthorPhoto = meta.AuthorPhoto
	return page
}

type pageMeta struct {
	Title       string
	AuthorName  string
	AuthorURL   string
	AuthorPhoto string
}

// scrapeMeta walks the document collecting candidate titles. JSON-LD wins
// over Open Graph, which wins over <title>.
func scrapeMeta(doc *html.Node) pageMeta {
	var meta pageMeta
	var ogTitle, docTitle string

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script":
				if attrVal(n, "type") == "application/ld+json" && n.FirstChild != nil {
					applyJSONLD(&meta, n.FirstChild.Data)
				}
			case "meta":
				if attrVal(n, "property") == "og:title" {
					ogTitle = attrVal(n, "content")
				}
			case "title":
				if n.FirstChild != nil && docTitle == "" {
					docTitle = strings.TrimSpace(n.FirstChild.Data)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if meta.Title == "" {
		meta.Title = ogTitle
	}
	if meta.Title == "" {
		meta.Title = docTitle
	}
	return meta
}

// applyJSONLD pulls a headline and author out of a JSON-LD block. Key
// precedence for the title is headline, then name, then
// alternativeHeadline.
func applyJSONLD(meta *pageMeta, raw string) {
	var data map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return
	}

	if meta.Title == "" {
		for _, key := range []string{"headline", "name", "alternativeHeadline"} {
			if s, ok := data[key].(string); ok && s != "" {
				meta.Title = s
				break
			}
		}
	}

	author, ok := data["author"].(map[string]interface{})
	if !ok {
		// Some publishers wrap the author in a one-element list.
		if list, isList := data["author"].([]interface{}); isList && len(list) > 0 {
			author, ok = list[0].(map[string]interface{})
		}
	}
	if !ok {
		return
	}
	if s, isStr := author["name"].(string); isStr && meta.AuthorName == "" {
		meta.AuthorName = s
	}
	if s, isStr := author["url"].(string); isStr && meta.AuthorURL == "" {
		meta.AuthorURL = s
	}
	if s, isStr := author["image"].(string); isStr && meta.AuthorPhoto == "" {
		meta.AuthorPhoto = s
	}
}

func attrVal(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
