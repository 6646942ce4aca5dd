package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderMarkdownSanitizesAndEnhances(t *testing.T) {
	out := string(RenderMarkdown("# Soup\n\n![bowl](/img/bowl.jpg)\n\n<script>alert(1)</script>"))

	assert.Contains(t, out, "Soup</h1>")
	assert.Contains(t, out, `loading="lazy"`)
	assert.NotContains(t, out, "<script>")
}

func TestRenderMarkdownEmbedsYouTube(t *testing.T) {
	out := string(RenderMarkdown("https://youtu.be/abc123?t=4"))
	assert.Contains(t, out, "youtube-nocookie.com/embed/abc123")
}

func TestRenderCommentMarkdownDropsImages(t *testing.T) {
	out := string(RenderCommentMarkdown("**nice** ![x](http://evil/x.png)"))
	assert.Contains(t, out, "<strong>nice</strong>")
	assert.NotContains(t, out, "<img")
}

func TestStripHTML(t *testing.T) {
	assert.Equal(t, "hello world", StripHTML("  <b>hello</b> <i>world</i> "))
	assert.False(t, strings.Contains(StripHTML(`<a href="x">link</a>`), "href"))
	assert.Equal(t, "salt & pepper", StripHTML("salt & pepper"))
	assert.Equal(t, "a < b", StripHTML("a &lt; b"))
}

func TestStripHTMLEncodedMarkup(t *testing.T) {
	assert.Equal(t, "", StripHTML("&lt;script&gt;alert(1)&lt;/script&gt;"))
	assert.Equal(t, "bold", StripHTML("&lt;b&gt;bold&lt;/b&gt;"))
	assert.Equal(t, "hi", StripHTML("&amp;lt;img src=x onerror=alert(1)&amp;gt;hi"))
	assert.Equal(t, "nice soup", StripHTML("&lt;script&gt;alert(1)&lt;/script&gt; nice soup"))

	for _, in := range []string{
		"&lt;iframe src=//evil&gt;&lt;/iframe&gt;",
		"&amp;amp;lt;svg onload=x&amp;amp;gt;",
		"<p>&lt;a href=javascript:x&gt;go&lt;/a&gt;</p>",
	} {
		out := StripHTML(in)
		assert.NotContains(t, out, "<", in)
	}
}
