package extract

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"SemHub/internal/modules/kb/domain/knowledge"

	"github.com/PuerkitoBio/goquery"
)

// extractURL 拉取单个网页并剥离为正文文本
func (e *Extractor) extractURL(ctx context.Context, rawURL string) (string, error) {
	wrap := func(err error) error {
		return &knowledge.ExtractionError{Kind: knowledge.SourceKindURL, Locator: rawURL, Err: err}
	}
	doc, err := e.fetchDocument(ctx, rawURL)
	if err != nil {
		return "", wrap(err)
	}
	text := documentText(doc)
	if text == "" {
		return "", wrap(fmt.Errorf("page contains no text"))
	}
	return text, nil
}

func (e *Extractor) fetchDocument(ctx context.Context, rawURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "SemHub/1.0")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return goquery.NewDocumentFromReader(resp.Body)
}

// documentText 去掉脚本样式导航后取正文，折叠空白
func documentText(doc *goquery.Document) string {
	doc.Find("script, style, noscript, nav, header, footer, iframe").Remove()

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}
	return strings.Join(strings.Fields(root.Text()), " ")
}
