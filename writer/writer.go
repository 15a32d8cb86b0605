// Package writer serialises a semantic.Document into PDF bytes with a
// classic cross-reference table.
package writer

import (
	"context"
	"io"

	"github.com/wudi/charterkit/ir/raw"
	"github.com/wudi/charterkit/ir/semantic"
	"github.com/wudi/charterkit/observability"
)

type PDFVersion string

const (
	PDF14 PDFVersion = "1.4"
	PDF17 PDFVersion = "1.7"
)

type ContentFilter int

const (
	FilterFlate ContentFilter = iota
	FilterNone
)

type Config struct {
	Version       PDFVersion
	ContentFilter ContentFilter
	// Deterministic derives the file identifier from the document alone so
	// identical input yields identical bytes.
	Deterministic bool
}

type Writer interface {
	Write(ctx context.Context, doc *semantic.Document, w io.Writer, cfg Config) error
	SerializeObject(ref raw.ObjectRef, obj raw.Object) ([]byte, error)
}

// Interceptor observes every indirect object as it is written.
type Interceptor interface {
	BeforeWrite(ctx context.Context, ref raw.ObjectRef, obj raw.Object) error
	AfterWrite(ctx context.Context, ref raw.ObjectRef, bytesWritten int64) error
}

type WriterBuilder struct {
	interceptors []Interceptor
	log          observability.Logger
}

func (b *WriterBuilder) WithInterceptor(i Interceptor) *WriterBuilder {
	b.interceptors = append(b.interceptors, i)
	return b
}

func (b *WriterBuilder) WithLogger(l observability.Logger) *WriterBuilder {
	b.log = l
	return b
}

func (b *WriterBuilder) Build() Writer {
	return &impl{interceptors: b.interceptors, log: observability.OrNop(b.log)}
}

// New returns a writer without interceptors.
func New() Writer { return (&WriterBuilder{}).Build() }
