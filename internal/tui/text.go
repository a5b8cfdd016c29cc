package tui

import (
	"strings"

	"golang.org/x/net/html"

	"whiteboard/internal/board"
)

// plainText flattens stored HTML into lines of text. Block elements and
// <br> start a new line.
func plainText(src string) string {
	if strings.TrimSpace(src) == "" {
		return ""
	}
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return src
	}
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
		case html.ElementNode:
			if n.Data == "br" {
				b.WriteByte('\n')
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && isBlock(n.Data) {
			b.WriteByte('\n')
		}
	}
	walk(doc)
	return strings.TrimRight(b.String(), "\n")
}

func isBlock(tag string) bool {
	switch tag {
	case "p", "div", "li", "h1", "h2", "h3", "h4", "h5", "h6", "pre", "blockquote", "tr":
		return true
	}
	return false
}

// toHTML wraps each line of plain text in a paragraph.
func toHTML(text string) string {
	if text == "" {
		return ""
	}
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		b.WriteString("<p>")
		b.WriteString(html.EscapeString(line))
		b.WriteString("</p>")
	}
	return b.String()
}

func mask(secret string) string {
	n := len([]rune(secret))
	if n > maskWidth {
		n = maskWidth
	}
	if n == 0 {
		n = 1
	}
	return strings.Repeat(string(maskRune), n)
}

// itemLines is the text shown inside an item, before wrapping.
func itemLines(it board.Item) []string {
	switch b := it.Body.(type) {
	case board.Grid:
		secret := mask(b.Secret)
		if b.SecretShown {
			secret = b.Secret
		}
		return []string{b.Title, "", secret}
	case board.Image:
		return []string{"[image]", b.URL}
	case board.Text:
		if t := plainText(b.HTML); t != "" {
			return strings.Split(t, "\n")
		}
	}
	return nil
}

// copyText is what "y" puts on the clipboard for an item.
func copyText(it board.Item) string {
	switch b := it.Body.(type) {
	case board.Grid:
		return b.Secret
	case board.Image:
		return b.URL
	case board.Text:
		return plainText(b.HTML)
	}
	return ""
}
