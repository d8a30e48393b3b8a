package crawler

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// baseURL returns the URL relative links on the page resolve against: the page's <base href>
// when present, otherwise the page URL itself.
func baseURL(doc *goquery.Document, pageURL *url.URL) *url.URL {
	href, exists := doc.Find("base[href]").First().Attr("href")
	if !exists || strings.TrimSpace(href) == "" {
		return pageURL
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return pageURL
	}
	return pageURL.ResolveReference(ref)
}

// resolveLink turns an href into an absolute http(s) URL without fragment. It returns "" for
// anchors, script and mail links, and anything unparseable.
func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") {
		return ""
	}

	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	abs.Fragment = ""
	abs.RawFragment = ""
	return abs.String()
}

// extractLinks returns every resolvable a[href] on the page, in document order.
func extractLinks(doc *goquery.Document, base *url.URL) []string {
	var links []string
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if link := resolveLink(base, href); link != "" {
			links = append(links, link)
		}
	})
	return links
}

// paginationLinks returns the pages to visit next. next_button follows only the first match of
// selector; numbered_list follows every match.
func paginationLinks(doc *goquery.Document, base *url.URL, selector string, all bool) []string {
	sel := doc.Find(selector)
	if !all {
		sel = sel.First()
	}

	var links []string
	sel.Each(func(_ int, s *goquery.Selection) {
		href, exists := s.Attr("href")
		if !exists {
			// selector may point at a wrapper such as li.next
			href, exists = s.Find("a[href]").First().Attr("href")
		}
		if !exists {
			return
		}
		if link := resolveLink(base, href); link != "" {
			links = append(links, link)
		}
	})
	return links
}
