package genai

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"

	"github.com/thebtf/parla/pkg/models"
)

// maxPageBytes bounds how much of a page is downloaded. Context
// assembly truncates much earlier; there is no point pulling megabytes.
const maxPageBytes = 2 << 20

// PageFetcher retrieves webpages over plain HTTP and reduces them to
// title plus visible text. It implements WebFetcher: every failure is
// logged and returned as (nil, nil) so callers never branch on it.
type PageFetcher struct {
	client *http.Client
}

// NewPageFetcher creates a fetcher with a bounded request timeout.
func NewPageFetcher() *PageFetcher {
	return &PageFetcher{client: &http.Client{Timeout: 20 * time.Second}}
}

// Fetch downloads the page and extracts its text content.
func (f *PageFetcher) Fetch(ctx context.Context, url string) (*models.WebpageDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("Invalid webpage URL")
		return nil, nil
	}
	req.Header.Set("User-Agent", "parla/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("Webpage fetch failed")
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warn().Int("status", resp.StatusCode).Str("url", url).Msg("Webpage fetch rejected")
		return nil, nil
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("Webpage parse failed")
		return nil, nil
	}

	title, content := extractText(doc)
	if content == "" {
		log.Warn().Str("url", url).Msg("Webpage had no extractable text")
		return nil, nil
	}
	return &models.WebpageDocument{URL: url, Title: title, Content: content}, nil
}

// extractText walks the parse tree collecting the title and the visible
// text, skipping script and style subtrees.
func extractText(doc *html.Node) (title, content string) {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				return
			case "title":
				if title == "" && n.FirstChild != nil {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
				return
			}
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title, sb.String()
}
