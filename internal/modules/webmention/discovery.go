package webmention

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// DiscoverLinks collects the absolute http(s) URLs linked from an HTML
// fragment, in document order, without duplicates.
func DiscoverLinks(fragment string) []string {
	tokenizer := html.NewTokenizer(strings.NewReader(fragment))
	var links []string
	seen := map[string]struct{}{}
	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			return links
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		name, hasAttr := tokenizer.TagName()
		if string(name) != "a" || !hasAttr {
			continue
		}
		for {
			key, val, more := tokenizer.TagAttr()
			if string(key) == "href" {
				href := string(val)
				if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
					if _, dup := seen[href]; !dup {
						seen[href] = struct{}{}
						links = append(links, href)
					}
				}
			}
			if !more {
				break
			}
		}
	}
}

// DiscoverEndpoint fetches the target and resolves its advertised webmention
// endpoint: the HTTP Link header wins, then the first <link> or <a> with
// rel="webmention" in document order. Relative endpoints resolve against the
// target URL; an empty href means the target itself is the endpoint.
func DiscoverEndpoint(ctx context.Context, client *http.Client, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	base, err := url.Parse(target)
	if err != nil {
		return "", err
	}

	for _, header := range resp.Header.Values("Link") {
		for _, link := range strings.Split(header, ",") {
			if endpoint, ok := parseLinkHeader(link); ok {
				return resolveEndpoint(base, endpoint)
			}
		}
	}

	endpoint, found := findEndpointInBody(resp.Body)
	if !found {
		return "", ErrNoEndpoint
	}
	return resolveEndpoint(base, endpoint)
}

// resolveEndpoint makes a discovered endpoint absolute. An empty href is
// valid and resolves to the page URL itself.
func resolveEndpoint(base *url.URL, endpoint string) (string, error) {
	if endpoint == "" {
		return base.String(), nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(u).String(), nil
}

// findEndpointInBody scans the document for the first <link> or <a> tag
// carrying rel="webmention".
func findEndpointInBody(body io.Reader) (string, bool) {
	tokenizer := html.NewTokenizer(body)
	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			return "", false
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		name, hasAttr := tokenizer.TagName()
		tag := string(name)
		if (tag != "link" && tag != "a") || !hasAttr {
			continue
		}
		var rel, href string
		var hasHref bool
		for {
			key, val, more := tokenizer.TagAttr()
			switch string(key) {
			case "rel":
				rel = string(val)
			case "href":
				href = string(val)
				hasHref = true
			}
			if !more {
				break
			}
		}
		if hasHref && hasRelValue(rel, "webmention") {
			return href, true
		}
	}
}

// parseLinkHeader extracts the target of a `<url>; rel="webmention"` Link
// header entry.
func parseLinkHeader(link string) (string, bool) {
	parts := strings.Split(link, ";")
	if len(parts) < 2 {
		return "", false
	}
	target := strings.TrimSpace(parts[0])
	if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
		return "", false
	}
	target = strings.Trim(target, "<>")

	for _, param := range parts[1:] {
		param = strings.TrimSpace(param)
		if !strings.HasPrefix(param, "rel=") {
			continue
		}
		rel := strings.Trim(strings.TrimPrefix(param, "rel="), `"`)
		if hasRelValue(rel, "webmention") {
			return target, true
		}
	}
	return "", false
}

func hasRelValue(rel, want string) bool {
	for _, v := range strings.Fields(rel) {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}
