package cmd

import (
	"github.com/webharvest/webharvest/internal/extract"
)

// parsers holds the named extractors selectable via --parser. Site-specific
// parsers register here; the generic field set is the unnamed default.
var parsers = extract.NewRegistry()

func init() {
	mustRegister("links", extract.ParserFunc(func(html, url string) (map[string]any, error) {
		doc, err := extract.Parse(html)
		if err != nil {
			return nil, err
		}
		return map[string]any{"url": url, "links": doc.Links(url, "")}, nil
	}))
	mustRegister("table", extract.ParserFunc(func(html, url string) (map[string]any, error) {
		doc, err := extract.Parse(html)
		if err != nil {
			return nil, err
		}
		return map[string]any{"url": url, "table": doc.Table("")}, nil
	}))
	mustRegister("metadata", extract.ParserFunc(func(html, url string) (map[string]any, error) {
		doc, err := extract.Parse(html)
		if err != nil {
			return nil, err
		}
		return map[string]any{"url": url, "metadata": doc.Metadata()}, nil
	}))
}

func mustRegister(name string, p extract.Parser) {
	if err := parsers.Register(name, p); err != nil {
		panic(err)
	}
}
