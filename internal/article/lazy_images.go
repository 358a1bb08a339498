package article

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// lazySrcAttrs are the common attributes lazy-loading scripts park the real
// image URL in. Readability drops imgs without a src, so promote them first.
var lazySrcAttrs = []string{"data-src", "data-lazy-src", "data-original"}

// promoteLazyImages copies lazy-load attributes into src for images that have
// no usable src yet. On any parse trouble the input is returned unchanged.
func promoteLazyImages(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}

	changed := false
	doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
		if src, ok := sel.Attr("src"); ok && strings.TrimSpace(src) != "" {
			return
		}
		for _, attr := range lazySrcAttrs {
			if v, ok := sel.Attr(attr); ok && strings.TrimSpace(v) != "" {
				sel.SetAttr("src", strings.TrimSpace(v))
				changed = true
				return
			}
		}
	})
	if !changed {
		return html
	}

	out, err := doc.Html()
	if err != nil {
		return html
	}
	return out
}
