// Package main provides the charterkit binary: it fills a charter-party
// template from a negotiated recap and writes the final document.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/wudi/charterkit/config"
	"github.com/wudi/charterkit/observability"
	"github.com/wudi/charterkit/pipeline"

	// Register the Tesseract engine as the OCR default via init()
	_ "github.com/wudi/charterkit/ocr/tesseract"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "charterkit"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newApp(os.Stdout, os.Stderr).rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app carries what every subcommand needs once flags and config are read.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	logLevel   string
	logFormat  string
	verbose    bool

	loaderOpts []config.LoaderOption

	cfg      *config.Config
	log      observability.Logger
	registry *prometheus.Registry
	metrics  *observability.Metrics
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{stdout: stdout, stderr: stderr}
}

func (a *app) rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   appName,
		Short: "Charter party PDF automation",
		Long: `charterkit fills a charter-party template with the commercial terms of a
negotiated recap and incorporates the recap's clause amendments:
struck-through text is deleted, green text is added.

Configuration is read from ~/.config/charterkit/config.yaml, the nearest
charterkit.yaml, --config and CHARTERKIT_* variables, in that order.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "Log format (text, json)")

	cmd.AddCommand(
		a.processCmd(),
		a.fieldsCmd(),
		a.amendmentsCmd(),
		a.extractCmd(),
		a.batchCmd(),
		a.watchCmd(),
		a.serveCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(a.stdout, "%s version %s (build: %s)\n", appName, Version, BuildTime)
			},
		},
	)
	return cmd
}

// setup loads the layered config and applies the logging flags on top.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.NewLoader(a.loaderOpts...).Load(a.configPath)
	if err != nil {
		return err
	}
	cfg.Merge(&config.Config{Log: config.LogConfig{Level: a.logLevel, Format: a.logFormat}})
	if a.verbose {
		cfg.Log.Level = "debug"
	}
	a.cfg = cfg
	a.log = observability.NewLogger(a.stderr, cfg.Log.Level, cfg.Log.Format).
		With(observability.String("cmd", cmd.Name()))
	a.registry = prometheus.NewRegistry()
	a.metrics = observability.NewMetrics(a.registry)
	return nil
}

func (a *app) processor(opts ...pipeline.Option) (*pipeline.Processor, error) {
	base := []pipeline.Option{
		pipeline.WithLogger(a.log),
		pipeline.WithMetrics(a.metrics),
		pipeline.WithTracer(observability.LogTracer(a.log)),
	}
	return pipeline.New(a.cfg, append(base, opts...)...)
}
