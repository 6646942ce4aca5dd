package utils

import (
	"bytes"
	"html"
	"html/template"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

var (
	mdParser = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			gmhtml.WithHardWraps(),
			gmhtml.WithXHTML(),
		),
	)
	// 正文策略：允许图片
	bodyPolicy = bluemonday.UGCPolicy()
	// 评论策略：不允许图片和标题
	commentPolicy = bluemonday.NewPolicy()
	// 入库前清洗：纯文本
	strictPolicy = bluemonday.StrictPolicy()
)

func init() {
	bodyPolicy.AllowImages()
	bodyPolicy.AddTargetBlankToFullyQualifiedLinks(true)
	bodyPolicy.RequireNoReferrerOnLinks(true)

	commentPolicy.AllowElements("p", "br", "em", "strong", "code", "pre", "blockquote", "ul", "ol", "li")
	commentPolicy.AllowStandardURLs()
	commentPolicy.AllowAttrs("href").OnElements("a")
	commentPolicy.RequireNoFollowOnLinks(true)
	commentPolicy.AddTargetBlankToFullyQualifiedLinks(true)
}

func convert(source string) ([]byte, bool) {
	var buf bytes.Buffer
	if err := mdParser.Convert([]byte(source), &buf); err != nil {
		return nil, false
	}
	return buf.Bytes(), true
}

// RenderMarkdown renders a content body: markdown → sanitized HTML → enhanced images.
func RenderMarkdown(source string) template.HTML {
	out, ok := convert(source)
	if !ok {
		return template.HTML(template.HTMLEscapeString(source)) // Fallback
	}
	return EnhanceHTMLContent(string(bodyPolicy.SanitizeBytes(out)))
}

// RenderCommentMarkdown renders a reader comment with the narrower comment policy.
func RenderCommentMarkdown(source string) template.HTML {
	out, ok := convert(source)
	if !ok {
		return template.HTML(template.HTMLEscapeString(source))
	}
	return template.HTML(commentPolicy.SanitizeBytes(out))
}

const maxStripPasses = 8

// StripHTML removes every tag from user input before it is stored, including
// tags hidden behind one or more layers of entity encoding. The result is plain
// text: entities are decoded, and no pass of decoding can yield markup.
func StripHTML(s string) string {
	for i := 0; i < maxStripPasses; i++ {
		next := html.UnescapeString(strictPolicy.Sanitize(html.UnescapeString(s)))
		if next == s {
			return strings.TrimSpace(s)
		}
		s = next
	}
	return strings.TrimSpace(angleBrackets.Replace(s))
}

var angleBrackets = strings.NewReplacer("<", "", ">", "")
