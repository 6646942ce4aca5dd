package utils

import (
	"html/template"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// EnhanceHTMLContent 为正文中的图片增加懒加载属性，并把单独一行的视频链接转换为嵌入播放器
func EnhanceHTMLContent(htmlStr string) template.HTML {
	if htmlStr == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return template.HTML(htmlStr)
	}

	doc.Find("img").Each(func(i int, s *goquery.Selection) {
		s.SetAttr("loading", "lazy")
		s.SetAttr("decoding", "async")
		if alt, ok := s.Attr("alt"); !ok || strings.TrimSpace(alt) == "" {
			s.SetAttr("alt", "")
		}
	})

	// 食谱视频多为 YouTube
	doc.Find("p").Each(func(i int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if !strings.HasPrefix(text, "http") || strings.Contains(text, " ") {
			return
		}
		if id := youtubeID(text); id != "" {
			s.ReplaceWithHtml(`<div class="video-container"><iframe src="https://www.youtube-nocookie.com/embed/` + id + `" loading="lazy" frameborder="0" allowfullscreen allow="encrypted-media; picture-in-picture"></iframe></div>`)
		}
	})

	// goquery renders full document tags if missing, we just want the body content
	html, _ := doc.Find("body").Html()
	if html == "" {
		html, _ = doc.Html()
	}

	return template.HTML(html)
}

func youtubeID(link string) string {
	switch {
	case strings.Contains(link, "youtube.com/watch?v="):
		parts := strings.SplitN(link, "v=", 2)
		return strings.Split(parts[1], "&")[0]
	case strings.Contains(link, "youtu.be/"):
		parts := strings.SplitN(link, "youtu.be/", 2)
		return strings.Split(parts[1], "?")[0]
	}
	return ""
}
