package ingestion

import (
	"errors"
	"fmt"
	"mime"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrUnsupportedType is returned for uploads the extractor cannot read.
var ErrUnsupportedType = errors.New("unsupported content type")

var (
	spaceRuns   = regexp.MustCompile(`[ \t]+`)
	newlineRuns = regexp.MustCompile(`\n{3,}`)
)

// ExtractText converts uploaded bytes to plain text ready for
// chunking. The content type may carry parameters ("text/html;
// charset=utf-8").
func ExtractText(contentType string, data []byte) (string, error) {
	mediaType := contentType
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = mt
	}
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))

	switch mediaType {
	case "text/html", "application/xhtml+xml":
		text, err := htmlToText(string(data))
		if err != nil {
			return "", fmt.Errorf("failed to parse html: %w", err)
		}
		return normalizeText(text), nil
	case "", "text/plain", "text/markdown", "text/csv", "application/json":
		return normalizeText(string(data)), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
}

// htmlToText keeps heading, paragraph, list, and preformatted content
// and drops everything script-like.
func htmlToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script,style,noscript").Remove()

	var out []string
	doc.Find("h1,h2,h3,h4,h5,h6,p,li,pre,blockquote,td,th").Each(func(i int, s *goquery.Selection) {
		// Skip containers whose text is already collected via children.
		if s.Children().Length() > 0 && goquery.NodeName(s) != "pre" {
			if s.Find("p,li,pre,td,th").Length() > 0 {
				return
			}
		}
		text := strings.TrimSpace(s.Text())
		if text != "" {
			out = append(out, text)
		}
	})

	// Markup-free documents still parse as HTML with all content in
	// the body text.
	if len(out) == 0 {
		return strings.TrimSpace(doc.Text()), nil
	}

	return strings.Join(out, "\n\n"), nil
}

// normalizeText collapses whitespace runs so chunk sizes track words,
// not formatting.
func normalizeText(text string) string {
	text = spaceRuns.ReplaceAllString(text, " ")
	text = newlineRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
