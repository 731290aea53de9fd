package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/nao1215/fisgon/internal/model"
)

// htmlExtractor reads the head and link structure of HTML pages. It needs
// no optional capability.
type htmlExtractor struct{}

func (*htmlExtractor) Name() string { return VariantHTML }

func (*htmlExtractor) Extract(_ context.Context, f *File) model.Metadata {
	md := model.Metadata{}
	doc, err := parseHTML(f)
	if err != nil {
		md[model.KeyExtractionError] = fmt.Sprintf("html: %v", err)
		return md
	}

	meta := map[string]any{
		"links_count":  doc.Find("a[href]").Length(),
		"images_count": doc.Find("img[src]").Length(),
	}
	if title := doc.Find("title").First(); title.Length() > 0 {
		meta["title"] = strings.TrimSpace(title.Text())
	}
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		content, ok := s.Attr("content")
		if !ok {
			return
		}
		if name, ok := s.Attr("name"); ok && name != "" {
			meta["meta_"+strings.ToLower(name)] = content
		} else if prop, ok := s.Attr("property"); ok && prop != "" {
			meta["property_"+prop] = content
		}
	})
	md[model.CategoryHTML] = meta
	return md
}

// Content returns the visible text of the body, one block per line.
func (*htmlExtractor) Content(_ context.Context, f *File) (string, error) {
	doc, err := parseHTML(f)
	if err != nil {
		return "", fmt.Errorf("html: %w", err)
	}
	doc.Find("script, style, noscript").Remove()

	var lines []string
	for _, line := range strings.Split(doc.Find("body").Text(), "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// parseHTML decodes the page using the charset of its Content-Type or
// meta declaration.
func parseHTML(f *File) (*goquery.Document, error) {
	r, err := charset.NewReader(bytes.NewReader(f.Data), f.ContentType)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(r)
}
