package layout

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/wudi/charterkit/builder"
)

// ParseMarkup turns inline HTML such as "<b>12</b> text <s>old</s>
// <font color="#008000">new</font>" into spans styled from base.
func ParseMarkup(markup string, base TextSpan) ([]TextSpan, error) {
	nodes, err := html.ParseFragment(strings.NewReader(markup), &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}
	var out []TextSpan
	for _, n := range nodes {
		out = append(out, markupSpans(n, base)...)
	}
	return out, nil
}

// RenderMarkup renders one inline-markup paragraph.
func (e *Engine) RenderMarkup(markup string, base TextSpan) error {
	spans, err := ParseMarkup(markup, base)
	if err != nil {
		return err
	}
	e.renderSpans(spans, 0)
	return nil
}

// RenderHTML renders headings, paragraphs and list items of an HTML
// document, with inline styling inside each block.
func (e *Engine) RenderHTML(source string) error {
	doc, err := html.Parse(strings.NewReader(source))
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}
	e.ensurePage()
	e.walkHTML(doc, 0)
	return nil
}

func (e *Engine) walkHTML(n *html.Node, indent float64) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
			level := int(n.Data[1] - '0')
			size := e.headingSize(level)
			e.Spacer(size * 0.5)
			e.renderSpans(childSpans(n, TextSpan{Bold: true, FontSize: size}), indent)
			e.cursorY -= size * 0.3
			return
		case atom.P, atom.Div:
			if hasBlockChild(n) {
				break
			}
			e.renderSpans(childSpans(n, TextSpan{}), indent)
			e.Spacer(e.DefaultFontSize * 0.5)
			return
		case atom.Li:
			spans := append([]TextSpan{{Text: "• "}}, childSpans(n, TextSpan{})...)
			e.renderSpans(spans, indent)
			return
		case atom.Ul, atom.Ol:
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				e.walkHTML(c, indent+listIndent)
			}
			e.Spacer(e.DefaultFontSize * 0.3)
			return
		case atom.Hr:
			e.Rule(builder.Color{R: 0.6, G: 0.6, B: 0.6}, 0.5)
			return
		case atom.Script, atom.Style, atom.Head:
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		e.walkHTML(c, indent)
	}
}

func hasBlockChild(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.DataAtom {
		case atom.P, atom.Div, atom.Ul, atom.Ol, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
			return true
		}
	}
	return false
}

func childSpans(n *html.Node, style TextSpan) []TextSpan {
	var out []TextSpan
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, markupSpans(c, style)...)
	}
	return trimSpans(out)
}

func markupSpans(n *html.Node, style TextSpan) []TextSpan {
	switch n.Type {
	case html.TextNode:
		s := style
		s.Text = collapseBreaks.Replace(n.Data)
		return []TextSpan{s}
	case html.ElementNode:
	default:
		return nil
	}
	s := style
	switch n.DataAtom {
	case atom.B, atom.Strong:
		s.Bold = true
	case atom.I, atom.Em:
		s.Italic = true
	case atom.S, atom.Strike, atom.Del:
		s.Strikethrough = true
	case atom.U, atom.Ins:
		s.Underline = true
	case atom.Code, atom.Tt:
		s.Mono = true
	case atom.Br:
		br := style
		br.Text = "\n"
		return []TextSpan{br}
	case atom.A:
		if href := attr(n, "href"); href != "" {
			s.Link = href
		}
	case atom.Font:
		if c, err := builder.Hex(attr(n, "color")); err == nil {
			s.Color = c
		}
	}
	if c, ok := styleColor(attr(n, "style")); ok {
		s.Color = c
	}
	var out []TextSpan
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, markupSpans(c, s)...)
	}
	return out
}

// Source line breaks are plain whitespace; only <br> breaks a line.
var collapseBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\t", " ")

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// styleColor reads a "color: #RRGGBB" declaration from an inline style.
func styleColor(style string) (builder.Color, bool) {
	for _, decl := range strings.Split(style, ";") {
		k, v, ok := strings.Cut(decl, ":")
		if !ok || strings.TrimSpace(strings.ToLower(k)) != "color" {
			continue
		}
		if c, err := builder.Hex(strings.TrimSpace(v)); err == nil {
			return c, true
		}
	}
	return builder.Color{}, false
}

// trimSpans drops leading and trailing whitespace of a block.
func trimSpans(spans []TextSpan) []TextSpan {
	for len(spans) > 0 {
		spans[0].Text = strings.TrimLeft(spans[0].Text, " \t\r\n")
		if spans[0].Text != "" {
			break
		}
		spans = spans[1:]
	}
	for len(spans) > 0 {
		last := &spans[len(spans)-1]
		last.Text = strings.TrimRight(last.Text, " \t\r\n")
		if last.Text != "" {
			break
		}
		spans = spans[:len(spans)-1]
	}
	return spans
}
