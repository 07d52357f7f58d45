package entry

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

const summaryLimit = 255

// Summarize strips markup from rendered entry content and truncates the
// result so it fits the summary column.
func Summarize(content string) string {
	text := htmlToText(content)
	if utf8.RuneCountInString(text) <= summaryLimit {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:summaryLimit-1])) + "…"
}

// htmlToText extracts the text content of an HTML fragment, collapsing
// runs of whitespace to single spaces.
func htmlToText(fragment string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(fragment))
	var b strings.Builder
	skip := 0
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "script", "style":
				skip++
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "script", "style":
				if skip > 0 {
					skip--
				}
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(tokenizer.Text())
				b.WriteByte(' ')
			}
		}
	}
}
