package resolver

import (
	"bytes"

	"golang.org/x/net/html"
)

// extractTitleTag scans an HTML document's <title> element text, stopping
// early once <body> opens. Grounded on the teacher's
// rustyguts-bken/server/linkpreview.go's parseOGTags: the same
// golang.org/x/net/html tokenizer loop, the same inTitle/accumulate/stop-at-
// body shape, reused here as a title fallback for resolver pages whose
// embedded-state JSON omits a title field.
func extractTitleTag(body []byte) string {
	tok := html.NewTokenizer(bytes.NewReader(body))
	var inTitle bool
	var title string
	for {
		switch tok.Next() {
		case html.ErrorToken:
			return title
		case html.StartTagToken, html.SelfClosingTagToken:
			tn, _ := tok.TagName()
			switch string(tn) {
			case "title":
				inTitle = true
			case "body":
				return title
			}
		case html.TextToken:
			if inTitle {
				title += string(tok.Text())
			}
		case html.EndTagToken:
			tn, _ := tok.TagName()
			if string(tn) == "title" {
				inTitle = false
			}
		}
	}
}
