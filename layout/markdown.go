package layout

import (
	"strconv"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"github.com/wudi/charterkit/builder"
)

const listIndent = 15.0

var linkColor = builder.Color{B: 0.8}

// RenderMarkdown renders CommonMark with ~~strikethrough~~ onto the pages.
// Strong emphasis is bold, emphasis is oblique and struck text carries a
// strike rule.
func (e *Engine) RenderMarkdown(source string) error {
	md := goldmark.New(goldmark.WithExtensions(extension.Strikethrough))
	src := []byte(source)
	doc := md.Parser().Parse(text.NewReader(src))
	e.ensurePage()
	e.walkMarkdown(doc, src, 0)
	return nil
}

func (e *Engine) walkMarkdown(node ast.Node, src []byte, indent float64) {
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		switch n := child.(type) {
		case *ast.Heading:
			size := e.headingSize(n.Level)
			spans := inlineSpans(n, src, TextSpan{Bold: true, FontSize: size})
			e.Spacer(size * 0.5)
			e.renderSpans(spans, indent)
			e.cursorY -= size * 0.3
		case *ast.Paragraph, *ast.TextBlock:
			e.renderSpans(inlineSpans(n, src, TextSpan{}), indent)
			if _, tight := n.(*ast.TextBlock); !tight {
				e.Spacer(e.DefaultFontSize * 0.5)
			}
		case *ast.List:
			e.renderList(n, src, indent)
		case *ast.Blockquote:
			e.walkMarkdown(n, src, indent+listIndent)
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			e.renderCode(n, src, indent)
		case *ast.ThematicBreak:
			e.Rule(builder.Color{R: 0.6, G: 0.6, B: 0.6}, 0.5)
		}
	}
}

func (e *Engine) renderList(list *ast.List, src []byte, indent float64) {
	number := list.Start
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		marker := "•"
		if list.IsOrdered() {
			marker = strconv.Itoa(number) + string(list.Marker)
			number++
		}
		first := true
		for block := item.FirstChild(); block != nil; block = block.NextSibling() {
			switch b := block.(type) {
			case *ast.Paragraph, *ast.TextBlock:
				spans := inlineSpans(b, src, TextSpan{})
				if first {
					spans = append([]TextSpan{{Text: marker + " "}}, spans...)
				}
				e.renderSpans(spans, indent)
			case *ast.List:
				e.renderList(b, src, indent+listIndent)
			default:
				e.walkMarkdown(b, src, indent+listIndent)
			}
			first = false
		}
	}
	e.Spacer(e.DefaultFontSize * 0.3)
}

func (e *Engine) renderCode(n ast.Node, src []byte, indent float64) {
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		line := string(seg.Value(src))
		if l := len(line); l > 0 && line[l-1] == '\n' {
			line = line[:l-1]
		}
		e.renderSpans([]TextSpan{{Text: line, Mono: true}}, indent+listIndent)
	}
	e.Spacer(e.DefaultFontSize * 0.5)
}

// inlineSpans flattens the inline children of n into styled spans.
func inlineSpans(n ast.Node, src []byte, style TextSpan) []TextSpan {
	var out []TextSpan
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch v := c.(type) {
		case *ast.Text:
			s := style
			s.Text = string(util.UnescapePunctuations(v.Segment.Value(src)))
			switch {
			case v.HardLineBreak():
				s.Text += "\n"
			case v.SoftLineBreak():
				s.Text += " "
			}
			out = append(out, s)
		case *ast.String:
			s := style
			s.Text = string(v.Value)
			out = append(out, s)
		case *ast.CodeSpan:
			s := style
			s.Mono = true
			out = append(out, inlineSpans(v, src, s)...)
		case *ast.Emphasis:
			s := style
			if v.Level >= 2 {
				s.Bold = true
			} else {
				s.Italic = true
			}
			out = append(out, inlineSpans(v, src, s)...)
		case *extast.Strikethrough:
			s := style
			s.Strikethrough = true
			out = append(out, inlineSpans(v, src, s)...)
		case *ast.Link:
			s := style
			s.Link = string(v.Destination)
			s.Color = linkColor
			s.Underline = true
			out = append(out, inlineSpans(v, src, s)...)
		case *ast.AutoLink:
			s := style
			s.Link = string(v.URL(src))
			s.Text = string(v.Label(src))
			s.Color = linkColor
			s.Underline = true
			out = append(out, s)
		default:
			out = append(out, inlineSpans(v, src, style)...)
		}
	}
	return out
}
