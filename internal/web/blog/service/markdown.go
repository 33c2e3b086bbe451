package service

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

const (
	// tocMaxLevel is the deepest heading listed in the table of contents
	tocMaxLevel = 3
)

var imgRegexp = regexp.MustCompile(`<img src="([^"]*)"[^>]*>`)

// TOCEntry is a heading of a rendered post
type TOCEntry struct {
	Level int
	ID    string
	Text  string
}

// RenderMarkdown converts a post body to HTML and collects its table of contents.
//
// Headings get stable ids derived from their text, raw HTML is dropped,
// links and images open in a new tab.
func RenderMarkdown(md []byte) (string, []TOCEntry) {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.Footnotes)
	doc := p.Parse(md)

	toc := assignHeadingIDs(doc)

	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.HrefTargetBlank | html.SkipHTML | html.Safelink,
	})
	cnt := string(markdown.Render(doc, renderer))
	cnt = imgRegexp.ReplaceAllString(cnt,
		`<a href="$1" target="_blank" rel="noopener noreferrer">$0</a>`)

	return cnt, toc
}

// assignHeadingIDs gives every heading a unique slug id and returns
// the headings up to tocMaxLevel in document order.
func assignHeadingIDs(doc ast.Node) []TOCEntry {
	var (
		toc  []TOCEntry
		seen = map[string]int{}
	)
	ast.WalkFunc(doc, func(node ast.Node, entering bool) ast.WalkStatus {
		heading, ok := node.(*ast.Heading)
		if !ok || !entering {
			return ast.GoToNext
		}

		text := nodeText(heading)
		id := headingSlug(text)
		if id == "" {
			id = "section"
		}
		if n := seen[id]; n > 0 {
			seen[id] = n + 1
			id += "-" + strconv.Itoa(n)
		} else {
			seen[id] = 1
		}
		heading.HeadingID = id

		if heading.Level <= tocMaxLevel {
			toc = append(toc, TOCEntry{Level: heading.Level, ID: id, Text: text})
		}
		return ast.SkipChildren
	})

	return toc
}

// nodeText concatenates the literal text below node.
func nodeText(node ast.Node) string {
	var buf bytes.Buffer
	ast.WalkFunc(node, func(n ast.Node, entering bool) ast.WalkStatus {
		if !entering {
			return ast.GoToNext
		}
		if leaf := n.AsLeaf(); leaf != nil {
			buf.Write(leaf.Literal)
		}
		return ast.GoToNext
	})

	return strings.TrimSpace(buf.String())
}

// headingSlug lowercases text, keeps letters, digits, dashes and underscores,
// and turns spaces into dashes.
func headingSlug(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte('-')
		}
	}

	return b.String()
}
