package entry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tanzawa/core/internal/models"
)

func props(pairs ...interface{}) map[string][]interface{} {
	out := map[string][]interface{}{}
	for i := 0; i < len(pairs); i += 2 {
		out[pairs[i].(string)] = []interface{}{pairs[i+1]}
	}
	return out
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name  string
		props map[string][]interface{}
		want  models.EntryKind
	}{
		{"plain note", props("content", "hello"), models.KindNote},
		{"titled article", props("content", "body", "name", "Title"), models.KindArticle},
		{"reply", props("content", "agree!", "in_reply_to", "https://example.com/1"), models.KindReply},
		{"bookmark", props("bookmark_of", "https://example.com/2"), models.KindBookmark},
		{"checkin", props("checkin", map[string]interface{}{"name": "Cafe"}), models.KindCheckin},
		{"checkin beats bookmark", map[string][]interface{}{
			"checkin":     {map[string]interface{}{"name": "Cafe"}},
			"bookmark_of": {"https://example.com/2"},
		}, models.KindCheckin},
		{"bookmark beats reply", map[string][]interface{}{
			"bookmark_of": {"https://example.com/2"},
			"in_reply_to": {"https://example.com/1"},
		}, models.KindBookmark},
		{"reply beats title", map[string][]interface{}{
			"in_reply_to": {"https://example.com/1"},
			"name":        {"Title"},
		}, models.KindReply},
		{"empty string values ignored", props("in_reply_to", "", "content", "note"), models.KindNote},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.props))
		})
	}
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, "plain text", Summarize("<p>plain <b>text</b></p>"))
	assert.Equal(t, "", Summarize(""))
	assert.Equal(t, "no script", Summarize("<p>no script</p><script>alert(1)</script>"))

	long := ""
	for i := 0; i < 60; i++ {
		long += "<p>0123456789</p>"
	}
	got := Summarize(long)
	assert.LessOrEqual(t, len([]rune(got)), 255)
	assert.Equal(t, "…", string([]rune(got)[len([]rune(got))-1:]))
}

func TestRenderContent(t *testing.T) {
	assert.Contains(t, RenderContent("**bold** text"), "<strong>bold</strong>")
	assert.Equal(t, "<p>already html</p>", RenderContent("<p>already html</p>"))
	assert.Equal(t, "", RenderContent("   "))
}
