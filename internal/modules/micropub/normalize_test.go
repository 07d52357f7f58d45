package micropub

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeFormDefaults(t *testing.T) {
	form := url.Values{
		"content":      {"hello world"},
		"access_token": {"secret"},
	}
	obj, err := Normalize("application/x-www-form-urlencoded", nil, form)
	require.NoError(t, err)

	assert.Equal(t, "h-entry", obj.Type)
	assert.Equal(t, "hello world", obj.First("content"))
	assert.False(t, obj.Has("access_token"), "transport keys are not properties")
}

func TestNormalizeFormExplicitType(t *testing.T) {
	form := url.Values{"h": {"card"}, "name": {"Example"}}
	obj, err := Normalize("application/x-www-form-urlencoded; charset=utf-8", nil, form)
	require.NoError(t, err)
	assert.Equal(t, "h-card", obj.Type)
}

func TestNormalizeFormArrayKeys(t *testing.T) {
	form := url.Values{
		"category[]": {"go", "indieweb"},
		"content":    {"note"},
	}
	obj, err := Normalize("multipart/form-data; boundary=x", nil, form)
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "indieweb"}, obj.Strings("category"))
}

func TestNormalizeFormHyphenKeys(t *testing.T) {
	form := url.Values{
		"in-reply-to":      {"https://example.com/1"},
		"mp-syndicate-to":  {"https://brid.gy/publish/mastodon"},
	}
	obj, err := Normalize("application/x-www-form-urlencoded", nil, form)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/1", obj.First("in_reply_to"))
	assert.Equal(t, "https://brid.gy/publish/mastodon", obj.First("mp_syndicate_to"))
}

func TestNormalizeJSON(t *testing.T) {
	body := []byte(`{
		"type": ["h-entry"],
		"properties": {
			"content": ["json note"],
			"bookmark-of": ["https://example.com/article"],
			"category": ["reading"]
		}
	}`)
	obj, err := Normalize("application/json", body, nil)
	require.NoError(t, err)

	assert.Equal(t, "h-entry", obj.Type)
	assert.Equal(t, "json note", obj.First("content"))
	assert.Equal(t, "https://example.com/article", obj.First("bookmark_of"))
}

func TestNormalizeJSONScalarCoercedToList(t *testing.T) {
	body := []byte(`{"properties": {"content": "bare string"}}`)
	obj, err := Normalize("application/json", body, nil)
	require.NoError(t, err)
	assert.Equal(t, "bare string", obj.First("content"))
}

func TestNormalizeJSONInvalid(t *testing.T) {
	_, err := Normalize("application/json", []byte("{nope"), nil)
	assert.Error(t, err)
}

func TestNormalizeUnknownContentType(t *testing.T) {
	_, err := Normalize("text/plain", []byte("hi"), nil)
	assert.ErrorIs(t, err, errUnknownContentType)
}

func TestContentValueHTMLObject(t *testing.T) {
	obj := Object{Properties: map[string][]interface{}{
		"content": {map[string]interface{}{"html": "<p>rich</p>"}},
	}}
	assert.Equal(t, "<p>rich</p>", contentValue(obj))
}
