package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meridian/pkg/httpclient"
)

const rssXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
	<channel>
		<title>Test Feed</title>
		<link>https://news.example</link>
		<item>
			<title>Article 1</title>
			<link>https://news.example/2025/06/20/article-1</link>
			<pubDate>Fri, 20 Jun 2025 08:00:00 GMT</pubDate>
		</item>
		<item>
			<title>No link</title>
		</item>
		<item>
			<title>Article 3</title>
			<link>https://news.example/2025/06/20/article-3</link>
		</item>
	</channel>
</rss>`

func TestReader_Read(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rssXML))
	}))
	defer server.Close()

	r := NewReader(httpclient.NewClient(httpclient.Config{}))
	items, err := r.Read(context.Background(), server.URL)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "https://news.example/2025/06/20/article-1", items[0].Link)
	assert.Equal(t, "Article 1", items[0].Title)
	require.NotNil(t, items[0].PublishedAt)
	assert.Equal(t, 2025, items[0].PublishedAt.Year())
	assert.Nil(t, items[1].PublishedAt)
}

func TestReader_ParseInvalid(t *testing.T) {
	r := NewReader(nil)
	_, err := r.Parse("<html><body>not a feed</body></html>")
	assert.Error(t, err)
}

func TestReader_FetchError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	r := NewReader(httpclient.NewClient(httpclient.Config{}))
	_, err := r.Read(context.Background(), server.URL)
	assert.Error(t, err)
}
