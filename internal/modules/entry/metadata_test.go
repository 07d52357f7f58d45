package entry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func metaServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchLinkedPageMetaJSONLD(t *testing.T) {
	srv := metaServer(t, `<html><head>
		<title>Doc Title</title>
		<meta property="og:title" content="OG Title">
		<script type="application/ld+json">{
			"headline": "Headline Wins",
			"name": "Name Loses",
			"author": {"name": "Aaron", "url": "https://aaron.example"}
		}</script>
	</head><body></body></html>`)

	page := FetchLinkedPageMeta(context.Background(), srv.Client(), srv.URL)
	require.NotNil(t, page)
	assert.Equal(t, "Headline Wins", page.Title)
	assert.Equal(t, "Aaron", page.AuthorName)
	assert.Equal(t, "https://aaron.example", page.AuthorURL)
}

func TestFetchLinkedPageMetaJSONLDNameFallback(t *testing.T) {
	srv := metaServer(t, `<html><head>
		<script type="application/ld+json">{"name": "Only Name", "alternativeHeadline": "Alt"}</script>
	</head></html>`)

	page := FetchLinkedPageMeta(context.Background(), srv.Client(), srv.URL)
	assert.Equal(t, "Only Name", page.Title)
}

func TestFetchLinkedPageMetaOGFallback(t *testing.T) {
	srv := metaServer(t, `<html><head>
		<title>Doc Title</title>
		<meta property="og:title" content="OG Title">
	</head></html>`)

	page := FetchLinkedPageMeta(context.Background(), srv.Client(), srv.URL)
	assert.Equal(t, "OG Title", page.Title)
}

func TestFetchLinkedPageMetaTitleFallback(t *testing.T) {
	srv := metaServer(t, `<html><head><title>Just A Title</title></head></html>`)
	page := FetchLinkedPageMeta(context.Background(), srv.Client(), srv.URL)
	assert.Equal(t, "Just A Title", page.Title)
}

func TestFetchLinkedPageMetaNeverFails(t *testing.T) {
	client := &http.Client{Timeout: 200 * time.Millisecond}

	// Unreachable host: the URL itself becomes the title.
	page := FetchLinkedPageMeta(context.Background(), client, "http://127.0.0.1:1/dead")
	require.NotNil(t, page)
	assert.Equal(t, "http://127.0.0.1:1/dead", page.Title)
	assert.Equal(t, "http://127.0.0.1:1/dead", page.URL)

	// Non-2xx responses are treated the same way.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()
	page = FetchLinkedPageMeta(context.Background(), srv.Client(), srv.URL)
	assert.Equal(t, srv.URL, page.Title)
}
