// Package extract pulls structured fields (text, links, tables, metadata)
// out of fetched HTML.
package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var whitespaceRE = regexp.MustCompile(`\s+`)

// Link is one anchor found in a document.
type Link struct {
	HRef  string `json:"href"`
	Text  string `json:"text"`
	Title string `json:"title,omitempty"`
}

// Document wraps a parsed HTML page for repeated extraction.
type Document struct {
	doc *goquery.Document
}

// Parse builds a Document from raw HTML.
func Parse(html string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{doc: doc}, nil
}

// Text returns the collapsed text content of the document, or of the
// elements matching selector when it is non-empty.
func (d *Document) Text(selector string) string {
	var text string
	if selector == "" {
		text = d.doc.Text()
	} else {
		parts := d.doc.Find(selector).Map(func(_ int, s *goquery.Selection) string {
			return s.Text()
		})
		text = strings.Join(parts, " ")
	}
	return collapseWhitespace(text)
}

// Links returns the anchors in the document, resolving relative hrefs
// against baseURL when given. javascript: and empty hrefs are skipped.
// A non-empty selector restricts the search to anchors inside matches.
func (d *Document) Links(baseURL, selector string) []Link {
	scope := d.doc.Selection
	if selector != "" {
		scope = d.doc.Find(selector)
	}

	var links []Link
	scope.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "javascript:") {
			return
		}
		links = append(links, Link{
			HRef:  resolveHref(baseURL, href),
			Text:  collapseWhitespace(s.Text()),
			Title: s.AttrOr("title", ""),
		})
	})
	return links
}

// Table extracts the first table matching selector (or the first table in
// the document) as one map per row. Header names come from thead, then the
// first row, then generated Column_N names.
func (d *Document) Table(selector string) []map[string]string {
	if selector == "" {
		selector = "table"
	}
	table := d.doc.Find(selector).First()
	if table.Length() == 0 {
		return nil
	}

	headers, headerInFirstRow := tableHeaders(table)

	var rows []map[string]string
	table.Find("tr").Each(func(i int, tr *goquery.Selection) {
		if tr.ParentsFiltered("thead").Length() > 0 {
			return
		}
		if headerInFirstRow && i == 0 {
			return
		}
		cells := tr.Find("td, th")
		if cells.Length() == 0 {
			return
		}
		row := make(map[string]string, cells.Length())
		cells.Each(func(j int, cell *goquery.Selection) {
			name := fmt.Sprintf("Column_%d", j+1)
			if j < len(headers) {
				name = headers[j]
			}
			row[name] = collapseWhitespace(cell.Text())
		})
		rows = append(rows, row)
	})
	return rows
}

// Metadata returns the page title and meta tag contents keyed by name,
// property, or http-equiv:<name>.
func (d *Document) Metadata() map[string]string {
	meta := make(map[string]string)
	if title := collapseWhitespace(d.doc.Find("title").First().Text()); title != "" {
		meta["title"] = title
	}
	d.doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		content, ok := s.Attr("content")
		if !ok {
			return
		}
		switch {
		case s.AttrOr("name", "") != "":
			meta[s.AttrOr("name", "")] = content
		case s.AttrOr("property", "") != "":
			meta[s.AttrOr("property", "")] = content
		case s.AttrOr("http-equiv", "") != "":
			meta["http-equiv:"+s.AttrOr("http-equiv", "")] = content
		}
	})
	return meta
}

// Fields extracts the default field set used when no site-specific parser
// is registered for a page.
func (d *Document) Fields(url string) map[string]any {
	fields := map[string]any{
		"url":      url,
		"metadata": d.Metadata(),
		"text":     d.Text(""),
		"links":    d.Links(url, ""),
	}
	if rows := d.Table(""); len(rows) > 0 {
		fields["table"] = rows
	}
	return fields
}

func tableHeaders(table *goquery.Selection) (headers []string, headerInFirstRow bool) {
	table.Find("thead th").Each(func(_ int, th *goquery.Selection) {
		headers = append(headers, collapseWhitespace(th.Text()))
	})
	if len(headers) > 0 {
		return headers, false
	}

	first := table.Find("tr").First()
	ths := first.Find("th")
	if ths.Length() > 0 {
		ths.Each(func(_ int, th *goquery.Selection) {
			headers = append(headers, collapseWhitespace(th.Text()))
		})
		return headers, true
	}
	first.Find("td").Each(func(_ int, td *goquery.Selection) {
		headers = append(headers, collapseWhitespace(td.Text()))
	})
	return headers, len(headers) > 0
}

func resolveHref(baseURL, href string) string {
	if baseURL == "" || strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	base := strings.TrimRight(baseURL, "/")
	if strings.HasPrefix(href, "/") {
		return base + href
	}
	return base + "/" + href
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(s, " "))
}
