package fetch

import (
	"bytes"
	"compress/gzip"
	"encoding/xml"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"go-wget/internal/urlcanon"
)

// DiscoveredLink is one URL found while parsing a fetched body, tagged
// with whether it came from an inline (src) attribute rather than a
// navigational (href) one — the distinction spec.md §4.5(g) uses for
// the page-requisites boundary rule.
type DiscoveredLink struct {
	URL        urlcanon.URL
	InlineOnly bool
}

// ParseLinks dispatches body to a parser chosen by contentType, per
// spec.md §4.5 step 7. Unrecognized content types yield no links, which
// is non-fatal: the body is still saved by the caller.
func ParseLinks(contentType string, base urlcanon.URL, body []byte) ([]DiscoveredLink, error) {
	mediaType := strings.ToLower(strings.SplitN(contentType, ";", 2)[0])
	mediaType = strings.TrimSpace(mediaType)

	switch {
	case strings.Contains(mediaType, "html"):
		return parseHTML(base, body)
	case strings.Contains(mediaType, "css"):
		return parseCSS(base, body)
	case strings.Contains(mediaType, "xml"):
		return parseSitemapXML(base, body)
	case mediaType == "text/plain":
		return parseSitemapText(base, body)
	default:
		return nil, nil
	}
}

func parseHTML(base urlcanon.URL, body []byte) ([]DiscoveredLink, error) {
	if override, ok := findBaseHref(body); ok {
		if u, err := urlcanon.ResolveReference(base, override); err == nil {
			base = u
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var links []DiscoveredLink
	addHref := func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		if u, err := urlcanon.ResolveReference(base, href); err == nil {
			links = append(links, DiscoveredLink{URL: u, InlineOnly: false})
		}
	}
	addSrc := func(_ int, sel *goquery.Selection) {
		src, ok := sel.Attr("src")
		if !ok {
			return
		}
		if u, err := urlcanon.ResolveReference(base, src); err == nil {
			links = append(links, DiscoveredLink{URL: u, InlineOnly: true})
		}
	}

	doc.Find("a[href], link[href]").Each(addHref)
	doc.Find("img[src], script[src], iframe[src]").Each(addSrc)

	return links, nil
}

// findBaseHref scans for an HTML <base href="..."> element using
// golang.org/x/net/html's tokenizer directly, ahead of the full goquery
// parse, since a <base> tag changes how every other link in the
// document resolves.
func findBaseHref(body []byte) (string, bool) {
	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return "", false
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := tokenizer.Token()
			if tok.Data != "base" {
				continue
			}
			for _, attr := range tok.Attr {
				if attr.Key == "href" {
					return attr.Val, true
				}
			}
		}
	}
}

func parseCSS(base urlcanon.URL, body []byte) ([]DiscoveredLink, error) {
	var links []DiscoveredLink
	text := string(body)
	for {
		idx := strings.Index(text, "url(")
		if idx < 0 {
			break
		}
		text = text[idx+4:]
		end := strings.IndexByte(text, ')')
		if end < 0 {
			break
		}
		raw := strings.Trim(strings.TrimSpace(text[:end]), `"'`)
		text = text[end+1:]
		if raw == "" {
			continue
		}
		if u, err := urlcanon.ResolveReference(base, raw); err == nil {
			links = append(links, DiscoveredLink{URL: u, InlineOnly: true})
		}
	}
	return links, nil
}

// sitemapURLSet mirrors the subset of the sitemaps.org schema the
// coordinator needs: the list of <loc> entries.
type sitemapURLSet struct {
	XMLName xml.Name      `xml:"urlset"`
	URLs    []sitemapEntry `xml:"url"`
}

type sitemapEntry struct {
	Loc string `xml:"loc"`
}

func parseSitemapXML(base urlcanon.URL, body []byte) ([]DiscoveredLink, error) {
	reader := io.Reader(bytes.NewReader(body))
	if gz, err := gzip.NewReader(bytes.NewReader(body)); err == nil {
		reader = gz
		defer gz.Close()
	}

	var set sitemapURLSet
	if err := xml.NewDecoder(reader).Decode(&set); err != nil {
		return nil, err
	}

	var links []DiscoveredLink
	for _, entry := range set.URLs {
		if u, err := urlcanon.Parse(entry.Loc); err == nil {
			links = append(links, DiscoveredLink{URL: u})
		}
	}
	return links, nil
}

func parseSitemapText(base urlcanon.URL, body []byte) ([]DiscoveredLink, error) {
	var links []DiscoveredLink
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if u, err := urlcanon.Parse(line); err == nil {
			links = append(links, DiscoveredLink{URL: u})
		}
	}
	return links, nil
}
