package layout

import (
	"strings"
	"testing"

	"github.com/wudi/charterkit/builder"
)

func TestRenderMarkdown_Features(t *testing.T) {
	mb := &MockBuilder{}
	engine := NewEngine(mb)

	md := `# Title

Plain **bold** and ~~gone~~ text with a [link](https://example.com).

1. first
2. second

- item

---
`
	if err := engine.RenderMarkdown(md); err != nil {
		t.Fatalf("RenderMarkdown failed: %v", err)
	}

	if d := findText(t, mb, "Title"); d.Opts.FontSize != 24 || d.Opts.Font != "Helvetica-Bold" {
		t.Fatalf("heading opts = %+v", d.Opts)
	}
	if d := findText(t, mb, "bold"); d.Opts.Font != "Helvetica-Bold" || d.Opts.Strike {
		t.Fatalf("bold opts = %+v", d.Opts)
	}
	if d := findText(t, mb, "gone"); !d.Opts.Strike {
		t.Fatalf("strikethrough lost: %+v", d.Opts)
	}
	if d := findText(t, mb, "link"); !d.Opts.Underline {
		t.Fatalf("link should be underlined: %+v", d.Opts)
	}
	findText(t, mb, "1.")
	findText(t, mb, "2.")
	findText(t, mb, "•")
	if len(mb.Pages[0].Annotations) != 1 {
		t.Fatalf("annotations = %d", len(mb.Pages[0].Annotations))
	}
	if mb.Pages[0].DrawnLines != 1 {
		t.Fatalf("thematic break should draw a rule")
	}
}

func TestRenderMarkdown_Escapes(t *testing.T) {
	mb := &MockBuilder{}
	engine := NewEngine(mb)
	if err := engine.RenderMarkdown(`Rate \*per day\* \~net\~`); err != nil {
		t.Fatalf("RenderMarkdown failed: %v", err)
	}
	got := strings.Join(texts(mb.Pages[0]), "")
	if got != "Rate *per day* ~net~" {
		t.Fatalf("text = %q", got)
	}
}

func TestParseMarkup(t *testing.T) {
	spans, err := ParseMarkup(`<b>12</b>&nbsp;&nbsp;Vessel <s>to force</s> <font color="#008000">may follow</font><br>next`, TextSpan{FontSize: 10})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(spans) != 7 {
		t.Fatalf("spans = %+v", spans)
	}
	if spans[0].Text != "12" || !spans[0].Bold {
		t.Fatalf("number span = %+v", spans[0])
	}
	if spans[1].Text != "\u00a0\u00a0Vessel " || spans[1].Bold {
		t.Fatalf("text span = %+v", spans[1])
	}
	if !spans[2].Strikethrough || spans[2].Text != "to force" {
		t.Fatalf("struck span = %+v", spans[2])
	}
	if spans[4].Color != builder.MustHex("#008000") {
		t.Fatalf("green span = %+v", spans[4])
	}
	if spans[5].Text != "\n" || spans[6].Text != "next" {
		t.Fatalf("break = %+v %+v", spans[5], spans[6])
	}
	for _, s := range spans {
		if s.FontSize != 10 {
			t.Fatalf("base style not inherited: %+v", s)
		}
	}
}

func TestParseMarkup_StyleColorAndTags(t *testing.T) {
	spans, err := ParseMarkup(`<span style="font-weight:bold; color: #CC0000">red</span><del>x</del><ins>y</ins><code>z</code>`, TextSpan{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(spans) != 4 {
		t.Fatalf("spans = %+v", spans)
	}
	if spans[0].Color != builder.MustHex("#CC0000") {
		t.Fatalf("style colour = %+v", spans[0].Color)
	}
	if !spans[1].Strikethrough || !spans[2].Underline || !spans[3].Mono {
		t.Fatalf("tags = %+v", spans)
	}
}

func TestRenderHTML(t *testing.T) {
	mb := &MockBuilder{}
	engine := NewEngine(mb)
	src := `
<h2>PART II</h2>
<p>Line
   <del>old</del></p>
<ul>
	<li>one</li>
</ul>
<script>ignored()</script>
`
	if err := engine.RenderHTML(src); err != nil {
		t.Fatalf("RenderHTML failed: %v", err)
	}
	if d := findText(t, mb, "PART II"); d.Opts.Font != "Helvetica-Bold" {
		t.Fatalf("heading = %+v", d.Opts)
	}
	if d := findText(t, mb, "old"); !d.Opts.Strike {
		t.Fatalf("del should strike: %+v", d.Opts)
	}
	if d := findText(t, mb, "Line"); d.Y != findText(t, mb, "old").Y {
		t.Fatalf("source newlines must not break the paragraph")
	}
	findText(t, mb, "•")
	for _, s := range texts(mb.Pages[0]) {
		if strings.Contains(s, "ignored") {
			t.Fatalf("script rendered: %q", s)
		}
	}
}
