package transport

import (
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/wasilibs/go-re2"
)

var blankLines = re2.MustCompile(`\n{3,}`)

// CleanHTML drops active content from a drafted HTML body: script, style,
// iframe, object and embed elements, on* handlers and javascript: links.
func CleanHTML(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, iframe, object, embed, form").Remove()
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		var drop []string
		for _, node := range s.Nodes {
			for _, attr := range node.Attr {
				key := strings.ToLower(attr.Key)
				val := strings.ToLower(strings.TrimSpace(attr.Val))
				if strings.HasPrefix(key, "on") ||
					((key == "href" || key == "src") && strings.HasPrefix(val, "javascript:")) {
					drop = append(drop, attr.Key)
				}
			}
		}
		for _, key := range drop {
			s.RemoveAttr(key)
		}
	})
	out, err := doc.Find("body").Html()
	if err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// PlainText renders the text/plain alternative of an HTML body.
func PlainText(html string) (string, error) {
	converter := md.NewConverter("", true, &md.Options{
		HeadingStyle:     "atx",
		EmDelimiter:      "*",
		StrongDelimiter:  "**",
		LinkStyle:        "inlined",
		BulletListMarker: "-",
	})
	converter.AddRules(md.Rule{
		Filter: []string{"script", "style", "img"},
		Replacement: func(_ string, _ *goquery.Selection, _ *md.Options) *string {
			empty := ""
			return &empty
		},
	})
	text, err := converter.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("html to text: %w", err)
	}
	return strings.TrimSpace(blankLines.ReplaceAllString(text, "\n\n")), nil
}
