package preprocess

import (
	"fmt"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// rewriteImageSrc points the first <img> in markup at src. Markup without an
// image gets one appended; empty markup becomes a bare <img>.
func rewriteImageSrc(markup, src string) string {
	tag := fmt.Sprintf(`<img src="%s"/>`, html.EscapeString(src))
	if strings.TrimSpace(markup) == "" {
		return tag
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return markup + tag
	}
	img := doc.Find("img").First()
	if img.Length() == 0 {
		return markup + tag
	}
	img.SetAttr("src", src)

	out, err := doc.Find("body").Html()
	if err != nil {
		return markup
	}
	return out
}
