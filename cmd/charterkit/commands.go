package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wudi/charterkit/amend"
	"github.com/wudi/charterkit/batch"
	"github.com/wudi/charterkit/charter"
	"github.com/wudi/charterkit/extractor"
	"github.com/wudi/charterkit/fields"
	"github.com/wudi/charterkit/observability"
	"github.com/wudi/charterkit/parser"
	"github.com/wudi/charterkit/pipeline"
	"github.com/wudi/charterkit/server"
)

func (a *app) processCmd() *cobra.Command {
	var (
		template  string
		recap     string
		output    string
		overrides []string
		ocr       bool
	)
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Fill the template from the recap and write the final PDF",
		Example: `  charterkit process --template template.pdf --recap recap.pdf -o Final_Filled.pdf
  charterkit process --template t.pdf --recap r.pdf --field "5=Global Grain SA" -v`,
		RunE: func(cmd *cobra.Command, args []string) error {
			values := make(map[int]string, len(overrides))
			for _, o := range overrides {
				n, v, err := fields.ParseOverride(o)
				if err != nil {
					return err
				}
				values[n] = v
			}
			if ocr {
				a.cfg.OCR.Enabled = true
			}
			if output == "" {
				output = a.cfg.Output.Filename
			}
			p, err := a.processor()
			if err != nil {
				return err
			}
			rep, err := p.Process(cmd.Context(), pipeline.Request{
				Template:  template,
				Recap:     recap,
				Output:    output,
				Overrides: values,
			})
			if err != nil {
				return err
			}
			c := rep.Amendments.Counts()
			fmt.Fprintf(a.stdout, "PDF created: %s (fields %d/%d, deleted %d, added %d, new %d, modified %d)\n",
				rep.Output, rep.Stats.Filled, rep.Stats.Total, c.Deleted, c.Added, c.New, c.Modified)
			return nil
		},
	}
	cmd.Flags().StringVar(&template, "template", "", "Path to template PDF")
	cmd.Flags().StringVar(&recap, "recap", "", "Path to recap PDF")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output PDF (default from config, Final_Filled.pdf)")
	cmd.Flags().BoolVarP(&a.verbose, "verbose", "v", false, "Debug logging")
	cmd.Flags().StringArrayVar(&overrides, "field", nil, "Override a Part I value, N=value (repeatable)")
	cmd.Flags().BoolVar(&ocr, "ocr", false, "Recognise image-only pages with Tesseract")
	_ = cmd.MarkFlagRequired("template")
	_ = cmd.MarkFlagRequired("recap")
	return cmd
}

type fieldsOutput struct {
	Fields []fields.Mapped `json:"fields"`
	Valid  bool            `json:"valid"`
	Errors []string        `json:"errors,omitempty"`
	Stats  fields.Stats    `json:"stats"`
}

func (a *app) fieldsCmd() *cobra.Command {
	var (
		recap     string
		asJSON    bool
		normalize bool
	)
	cmd := &cobra.Command{
		Use:   "fields",
		Short: "Print the Part I fields mapped from a recap",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.processor()
			if err != nil {
				return err
			}
			doc, err := p.Load(cmd.Context(), charter.Recap, recap)
			if err != nil {
				return err
			}
			set := fields.Extract(doc)
			if normalize {
				set = fields.NormalizeAll(set)
			}
			valid, errs := fields.Validate(set)
			out := fieldsOutput{Fields: set.Ordered(), Valid: valid, Errors: fields.Errors(errs), Stats: fields.Statistics(set)}
			if asJSON {
				return writeJSON(a.stdout, out)
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tLABEL\tVALUE")
			for _, m := range out.Fields {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", m.Number, m.Label, m.Value)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "\n%d of %d fields filled (%.0f%%)\n", out.Stats.Filled, out.Stats.Total, out.Stats.CompletionPercentage)
			for _, e := range out.Errors {
				fmt.Fprintf(a.stdout, "  ! %s\n", e)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&recap, "recap", "", "Path to recap PDF")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	cmd.Flags().BoolVar(&normalize, "normalize", false, "Normalise quantity, freight and laytime values")
	_ = cmd.MarkFlagRequired("recap")
	return cmd
}

func (a *app) amendmentsCmd() *cobra.Command {
	var (
		template  string
		recap     string
		format    string
		threshold float64
	)
	cmd := &cobra.Command{
		Use:   "amendments",
		Short: "Print the clause amendments the recap makes to the template",
		RunE: func(cmd *cobra.Command, args []string) error {
			if threshold > 0 {
				a.cfg.Amend.Threshold = threshold
			}
			p, err := a.processor()
			if err != nil {
				return err
			}
			tdoc, err := p.Load(cmd.Context(), charter.Template, template)
			if err != nil {
				return err
			}
			rdoc, err := p.Load(cmd.Context(), charter.Recap, recap)
			if err != nil {
				return err
			}
			result := amend.NewDetector(a.cfg.Amend.Threshold, amend.WithLogger(a.log)).Detect(tdoc.PartII, rdoc.PartII)
			switch format {
			case "text":
				fmt.Fprintln(a.stdout, amend.Format(result))
			case "markdown", "md":
				fmt.Fprint(a.stdout, amend.Markdown(result))
			case "json":
				return writeJSON(a.stdout, result)
			default:
				return fmt.Errorf("unknown format %q (text, markdown, json)", format)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&template, "template", "", "Path to template PDF")
	cmd.Flags().StringVar(&recap, "recap", "", "Path to recap PDF")
	cmd.Flags().StringVar(&format, "format", "text", "Output format (text, markdown, json)")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Similarity for pairing modifications (default from config)")
	_ = cmd.MarkFlagRequired("template")
	_ = cmd.MarkFlagRequired("recap")
	return cmd
}

func (a *app) extractCmd() *cobra.Command {
	var (
		lines bool
		text  bool
		kind  string
	)
	cmd := &cobra.Command{
		Use:   "extract FILE",
		Short: "Dump the text, lines or parsed charter model of a PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if lines || text {
				return a.dumpText(cmd.Context(), args[0], lines)
			}
			k, err := charter.ParseKind(kind)
			if err != nil {
				return err
			}
			p, err := a.processor()
			if err != nil {
				return err
			}
			doc, err := p.Load(cmd.Context(), k, args[0])
			if err != nil {
				return err
			}
			return writeJSON(a.stdout, doc)
		},
	}
	cmd.Flags().BoolVar(&lines, "lines", false, "Print positioned lines with their amendment marks")
	cmd.Flags().BoolVar(&text, "text", false, "Print plain text per page")
	cmd.Flags().StringVar(&kind, "kind", "recap", "Parse as template or recap")
	cmd.MarkFlagsMutuallyExclusive("lines", "text")
	return cmd
}

func (a *app) dumpText(ctx context.Context, path string, lines bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	doc, err := parser.OpenBytes(ctx, data, parser.Config{Password: a.cfg.Extract.Password, Logger: a.log})
	if err != nil {
		return err
	}
	ex, err := extractor.New(doc, extractor.WithLogger(a.log))
	if err != nil {
		return err
	}
	if !lines {
		pages, err := ex.ExtractText(ctx)
		if err != nil {
			return err
		}
		for _, p := range pages {
			fmt.Fprintf(a.stdout, "--- page %s ---\n%s\n", p.Label, p.Content)
		}
		return nil
	}
	all, err := ex.ExtractLines(ctx)
	if err != nil {
		return err
	}
	for _, l := range all {
		fmt.Fprintf(a.stdout, "%d:%d\t%s\t%s\n", l.Page, l.Index, mark(l), l.Text())
	}
	return nil
}

func mark(l extractor.Line) string {
	switch {
	case l.Struck():
		return "deleted"
	case l.Added():
		return "added"
	case l.Mixed():
		return "mixed"
	}
	return "-"
}

func (a *app) batchCmd() *cobra.Command {
	var template, recaps, out string
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Process every recap matching a glob against one template",
		Example: `  charterkit batch --template template.pdf --recaps 'recaps/**/*.pdf' --out output/`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				out = a.cfg.Output.Dir
			}
			p, err := a.processor()
			if err != nil {
				return err
			}
			m, err := a.runner(p).Run(cmd.Context(), batch.Job{Template: template, RecapGlob: recaps, OutputDir: out})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "job %s: %d succeeded, %d failed (manifest %s)\n",
				m.JobID, m.Succeeded, m.Failed, filepath.Join(out, batch.ManifestName))
			if m.Failed > 0 {
				return fmt.Errorf("%d recap(s) failed", m.Failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&template, "template", "", "Path to template PDF")
	cmd.Flags().StringVar(&recaps, "recaps", "", "Recap glob, ** allowed")
	cmd.Flags().StringVar(&out, "out", "", "Output directory (default from config)")
	_ = cmd.MarkFlagRequired("template")
	_ = cmd.MarkFlagRequired("recaps")
	return cmd
}

func (a *app) runner(p *pipeline.Processor) *batch.Runner {
	opts := []batch.Option{batch.WithWorkers(a.cfg.Batch.Workers), batch.WithLogger(a.log)}
	if a.cfg.Metrics.Textfile != "" {
		opts = append(opts, batch.WithTextfile(a.cfg.Metrics.Textfile, a.registry))
	}
	return batch.NewRunner(p, opts...)
}

func (a *app) watchCmd() *cobra.Command {
	var template, inbox, out string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Process recaps as they arrive in an inbox directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				out = a.cfg.Output.Dir
			}
			p, err := a.processor()
			if err != nil {
				return err
			}
			w := batch.NewWatcher(a.runner(p), template, inbox, out,
				batch.WithGlob(a.cfg.Batch.Glob),
				batch.WithDebounce(a.cfg.Batch.Debounce),
			)
			return w.Watch(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&template, "template", "", "Path to template PDF")
	cmd.Flags().StringVar(&inbox, "inbox", "inbox", "Directory to watch")
	cmd.Flags().StringVar(&out, "out", "", "Output directory (default from config)")
	_ = cmd.MarkFlagRequired("template")
	return cmd
}

func (a *app) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web UI",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			p, err := a.processor()
			if err != nil {
				return err
			}
			s := server.New(a.cfg.Server, p,
				server.WithLogger(a.log),
				server.WithGatherer(a.registry),
			)
			a.log.Info("starting web UI", observability.String("addr", a.cfg.Server.Addr))
			return s.Run(cmd.Context(), a.cfg.Server.Addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, :8080)")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
