package content

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meridian/pkg/httpclient"
	"meridian/pkg/sources"
)

var fixedNow = time.Date(2025, 6, 21, 9, 0, 0, 0, time.UTC)

const body = "The KLIA Aerotrain will resume operations on July 1 after a lengthy upgrade, " +
	"the transport minister said on Friday."

func testSource() sources.Source {
	return sources.Source{
		ID:            "malay_mail",
		FetchStrategy: sources.FetchStatic,
		Extraction: sources.Extraction{
			TitleSelector:    "h1.article-title",
			ContentSelector:  "div.article-body",
			DateSelector:     "time.published",
			ElementsToRemove: []string{"script", ".ad", "figure"},
		},
	}
}

func page(title, date, content string) string {
	return `<html><head><title>ignored</title></head><body>
<h1 class="article-title">  ` + title + `
</h1>` + date + `
<div class="article-body">
  <p>` + content + `</p>
  <div class="ad">BUY NOW</div>
  <script>var tracking = true;</script>
  <figure>Photo credit</figure>
</div>
</body></html>`
}

func TestParse_SelectorsAndNoiseRemoval(t *testing.T) {
	html := page("KLIA Aerotrain resumes July 1", `<time class="published" datetime="2025-06-20T08:00:00+08:00">20 Jun</time>`, body)

	a, err := Parse(html, "https://www.malaymail.com/news/1", testSource(), fixedNow)
	require.NoError(t, err)

	assert.Equal(t, "malay_mail", a.SourceID)
	assert.Equal(t, "KLIA Aerotrain resumes July 1", a.Title)
	assert.Equal(t, body, a.Content)
	assert.NotContains(t, a.Content, "BUY NOW")
	assert.NotContains(t, a.Content, "tracking")
	assert.Len(t, a.URLHash, 64)
	assert.True(t, a.PublishedAt.Equal(time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC)))
}

func TestParse_DateFallbacks(t *testing.T) {
	tests := []struct {
		name string
		head string
		date string
		want time.Time
	}{
		{
			name: "meta tag wins",
			head: `<meta property="article:published_time" content="2025-06-19T10:00:00Z">`,
			date: `<time class="published" datetime="2025-06-20T08:00:00Z"></time>`,
			want: time.Date(2025, 6, 19, 10, 0, 0, 0, time.UTC),
		},
		{
			name: "element text",
			date: `<time class="published">2025-06-18 14:30:00</time>`,
			want: time.Date(2025, 6, 18, 14, 30, 0, 0, time.UTC),
		},
		{
			name: "unparseable falls back to now",
			date: `<time class="published">Jumaat lepas</time>`,
			want: fixedNow,
		},
		{
			name: "missing falls back to now",
			want: fixedNow,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			html := strings.Replace(page("KLIA Aerotrain resumes July 1", tt.date, body), "<head>", "<head>"+tt.head, 1)
			a, err := Parse(html, "https://www.malaymail.com/news/1", testSource(), fixedNow)
			require.NoError(t, err)
			assert.True(t, a.PublishedAt.Equal(tt.want), "got %s", a.PublishedAt)
		})
	}
}

func TestParse_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		title   string
		content string
	}{
		{"four character title", "News", body},
		{"missing title", "", body},
		{"short content", "KLIA Aerotrain resumes July 1", "Too short."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(page(tt.title, "", tt.content), "https://www.malaymail.com/news/1", testSource(), fixedNow)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrRejected))

			var re *RejectedError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, "https://www.malaymail.com/news/1", re.URL)
		})
	}
}

func TestParse_ContentSelectorMissWithoutReadabilityRejects(t *testing.T) {
	html := `<html><body><h1 class="article-title">KLIA Aerotrain resumes July 1</h1><article><p>` + body + `</p></article></body></html>`
	_, err := Parse(html, "https://www.malaymail.com/news/1", testSource(), fixedNow)
	assert.ErrorIs(t, err, ErrRejected)
}

func TestExtractor_Extract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gone" {
			http.Error(w, "gone", http.StatusGone)
			return
		}
		_, _ = w.Write([]byte(page("KLIA Aerotrain resumes July 1", "", body)))
	}))
	defer srv.Close()

	e := NewExtractor(httpclient.NewClient(httpclient.Config{}))
	e.now = func() time.Time { return fixedNow }

	a, err := e.Extract(context.Background(), srv.URL+"/news/1", testSource())
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/news/1", a.URL)
	assert.Equal(t, fixedNow, a.PublishedAt)

	_, err = e.Extract(context.Background(), srv.URL+"/gone", testSource())
	assert.True(t, httpclient.IsStatus(err, http.StatusGone))
	assert.False(t, errors.Is(err, ErrRejected))
}
