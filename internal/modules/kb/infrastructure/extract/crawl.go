package extract

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"SemHub/internal/modules/kb/domain/knowledge"
	"SemHub/pkg/zlog"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// crawl 从起始页出发做同域广度优先抓取，受 maxDepth/maxPages 约束。
// 单页失败只记日志；起始页失败才算整体失败。
func (e *Extractor) crawl(ctx context.Context, startURL string) (string, error) {
	wrap := func(err error) error {
		return &knowledge.ExtractionError{Kind: knowledge.SourceKindRecursiveURL, Locator: startURL, Err: err}
	}

	start, err := url.Parse(startURL)
	if err != nil {
		return "", wrap(err)
	}
	if start.Scheme != "http" && start.Scheme != "https" {
		return "", wrap(fmt.Errorf("unsupported scheme %q", start.Scheme))
	}

	type page struct {
		u     *url.URL
		depth int
	}

	visited := map[string]bool{canonical(start): true}
	queue := []page{{u: start, depth: 0}}
	var parts []string

	for len(queue) > 0 && len(parts) < e.maxPages {
		if err := ctx.Err(); err != nil {
			return "", wrap(err)
		}
		cur := queue[0]
		queue = queue[1:]

		doc, err := e.fetchDocument(ctx, cur.u.String())
		if err != nil {
			if cur.depth == 0 {
				return "", wrap(err)
			}
			zlog.Warn("抓取子页面失败，跳过",
				zap.String("url", cur.u.String()), zap.Error(err))
			continue
		}

		if text := documentText(doc); text != "" {
			parts = append(parts, text)
		}

		if cur.depth >= e.maxDepth {
			continue
		}
		for _, next := range sameHostLinks(doc, cur.u) {
			key := canonical(next)
			if visited[key] {
				continue
			}
			visited[key] = true
			queue = append(queue, page{u: next, depth: cur.depth + 1})
		}
	}

	if len(parts) == 0 {
		return "", wrap(fmt.Errorf("crawl yielded no text"))
	}
	return strings.Join(parts, "\n\n"), nil
}

func sameHostLinks(doc *goquery.Document, base *url.URL) []*url.URL {
	var out []*url.URL
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "javascript:") {
			return
		}
		u, err := base.Parse(href)
		if err != nil {
			return
		}
		if u.Host != base.Host || (u.Scheme != "http" && u.Scheme != "https") {
			return
		}
		out = append(out, u)
	})
	return out
}

func canonical(u *url.URL) string {
	c := *u
	c.Fragment = ""
	return c.String()
}
