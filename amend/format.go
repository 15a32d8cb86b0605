package amend

import (
	"fmt"
	"strings"
)

// Format renders the plain-text preview shown by the CLI and the web UI.
func Format(r Result) string {
	var out []string
	if len(r.Deleted) > 0 {
		out = append(out, "DELETED TEXT:")
		for _, it := range r.Deleted {
			out = append(out, fmt.Sprintf("  Line %s: ~~%s~~", it.LineNumber(), it.Text))
		}
	}
	if len(r.Added) > 0 {
		out = append(out, "\nADDED TEXT:")
		for _, it := range r.Added {
			out = append(out, "  + "+it.Text)
		}
	}
	if len(r.New) > 0 {
		out = append(out, "\nNEW LINES:")
		for _, it := range r.New {
			out = append(out, "  (new) "+it.Text)
		}
	}
	if len(out) == 0 {
		return "No amendments detected"
	}
	return strings.Join(out, "\n")
}

// Markdown renders a summary report. Deleted text uses ~~strikethrough~~.
func Markdown(r Result) string {
	var b strings.Builder
	b.WriteString("# Amendment Summary\n\n")
	if r.Empty() {
		b.WriteString("No amendments detected.\n")
		return b.String()
	}
	c := r.Counts()
	fmt.Fprintf(&b, "- **Deleted:** %d\n- **Added:** %d\n- **New lines:** %d\n- **Modified:** %d\n", c.Deleted, c.Added, c.New, c.Modified)

	section := func(title string, items []Item, line func(Item) string) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n## %s\n\n", title)
		for _, it := range items {
			b.WriteString("- ")
			b.WriteString(line(it))
			b.WriteByte('\n')
		}
	}
	where := func(it Item) string {
		return fmt.Sprintf("**%s**, line %s", escape(it.Clause), it.LineNumber())
	}
	section("Deleted", r.Deleted, func(it Item) string { return where(it) + ": ~~" + escape(it.Text) + "~~" })
	section("Added", r.Added, func(it Item) string { return where(it) + ": " + escape(it.Text) })
	section("New lines", r.New, func(it Item) string {
		return fmt.Sprintf("**%s** (after clause): %s", escape(it.Clause), escape(it.Text))
	})
	if len(r.Modified) > 0 {
		b.WriteString("\n## Modified\n\n")
		for _, m := range r.Modified {
			ln := Item{Line: m.Line}.LineNumber()
			fmt.Fprintf(&b, "- **%s**, line %s: ~~%s~~ replaced by %s (%.0f%% similar)\n",
				escape(m.Clause), ln, escape(m.Before), escape(m.After), m.Ratio*100)
		}
	}
	return b.String()
}

var mdEscaper = strings.NewReplacer(
	`\`, `\\`, "*", `\*`, "_", `\_`, "~", `\~`, "`", "\\`",
	"[", `\[`, "]", `\]`, "<", `\<`, "#", `\#`, "|", `\|`,
)

func escape(s string) string { return mdEscaper.Replace(s) }
