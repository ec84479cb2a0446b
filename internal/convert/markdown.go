// Package convert turns a model-produced markdown draft into the rendered
// HTML and plain-text artifacts. It covers the subset of markdown the
// draft prompt asks for (headings, lists, emphasis, inline code,
// paragraphs); everything is HTML-escaped before any tag is emitted.
package convert

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

var (
	boldRegex   = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	italicRegex = regexp.MustCompile(`\*([^*]+)\*`)
	codeRegex   = regexp.MustCompile("`([^`]+)`")
)

// ToHTML renders a markdown draft as an HTML fragment.
func ToHTML(markdown string) string {
	var b strings.Builder
	lines := strings.Split(markdown, "\n")

	inList := false
	var paragraph []string

	flushParagraph := func() {
		if len(paragraph) == 0 {
			return
		}
		b.WriteString("<p>")
		b.WriteString(inline(strings.Join(paragraph, " ")))
		b.WriteString("</p>\n")
		paragraph = paragraph[:0]
	}
	closeList := func() {
		if inList {
			b.WriteString("</ul>\n")
			inList = false
		}
	}

	for _, raw := range lines {
		line := strings.TrimSpace(raw)

		switch {
		case line == "":
			flushParagraph()
			closeList()

		case strings.HasPrefix(line, "#"):
			flushParagraph()
			closeList()
			level := 0
			for level < len(line) && line[level] == '#' && level < 6 {
				level++
			}
			text := strings.TrimSpace(line[level:])
			fmt.Fprintf(&b, "<h%d>%s</h%d>\n", level, inline(text), level)

		case strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* "):
			flushParagraph()
			if !inList {
				b.WriteString("<ul>\n")
				inList = true
			}
			fmt.Fprintf(&b, "<li>%s</li>\n", inline(strings.TrimSpace(line[2:])))

		default:
			closeList()
			paragraph = append(paragraph, line)
		}
	}

	flushParagraph()
	closeList()

	return b.String()
}

// ToPlainText strips markdown syntax and returns readable text with one
// blank line between blocks.
func ToPlainText(markdown string) string {
	var blocks []string
	var paragraph []string

	flush := func() {
		if len(paragraph) > 0 {
			blocks = append(blocks, strings.Join(paragraph, " "))
			paragraph = paragraph[:0]
		}
	}

	for _, raw := range strings.Split(markdown, "\n") {
		line := strings.TrimSpace(raw)

		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "#"):
			flush()
			blocks = append(blocks, stripInline(strings.TrimLeft(line, "# ")))
		case strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* "):
			flush()
			blocks = append(blocks, "- "+stripInline(strings.TrimSpace(line[2:])))
		default:
			paragraph = append(paragraph, stripInline(line))
		}
	}
	flush()

	return strings.Join(blocks, "\n\n")
}

// inline escapes the text and applies inline markdown spans.
func inline(text string) string {
	s := html.EscapeString(text)
	s = boldRegex.ReplaceAllString(s, "<strong>$1</strong>")
	s = italicRegex.ReplaceAllString(s, "<em>$1</em>")
	s = codeRegex.ReplaceAllString(s, "<code>$1</code>")
	return s
}

// stripInline removes inline markdown markers without escaping.
func stripInline(text string) string {
	s := boldRegex.ReplaceAllString(text, "$1")
	s = italicRegex.ReplaceAllString(s, "$1")
	s = codeRegex.ReplaceAllString(s, "$1")
	return s
}
