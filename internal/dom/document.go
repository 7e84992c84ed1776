// Package dom wraps a rendered page snapshot so the crawler can query element
// attributes without depending on a browser session.
package dom

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Document is a parsed HTML snapshot.
type Document struct {
	doc *goquery.Document
}

// Parse builds a Document from serialized HTML.
func Parse(html string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{doc: doc}, nil
}

// QueryAttributes returns attr for every tag element that carries it, in
// document order.
func (d *Document) QueryAttributes(tag, attr string) ([]string, error) {
	if d == nil || d.doc == nil {
		return nil, fmt.Errorf("document is not loaded")
	}
	if tag == "" || attr == "" {
		return nil, fmt.Errorf("tag and attribute are required")
	}
	var values []string
	d.doc.Find(fmt.Sprintf("%s[%s]", tag, attr)).Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr(attr); ok {
			values = append(values, v)
		}
	})
	return values, nil
}
