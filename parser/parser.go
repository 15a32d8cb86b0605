// Package parser opens PDF files and resolves their objects lazily.
package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/wudi/charterkit/filters"
	"github.com/wudi/charterkit/ir/raw"
	"github.com/wudi/charterkit/observability"
	"github.com/wudi/charterkit/scanner"
	"github.com/wudi/charterkit/security"
	"github.com/wudi/charterkit/xref"
)

var (
	ErrNotPDF    = errors.New("not a PDF file")
	ErrEncrypted = errors.New("document is encrypted and the password was rejected")
)

// MaxResolveDepth bounds chains of references to references.
const MaxResolveDepth = 32

type Config struct {
	Password      string
	DisableRepair bool
	Limits        filters.Limits
	Logger        observability.Logger
}

// Document is an opened PDF. It is safe for concurrent use.
type Document struct {
	data     []byte
	version  string
	table    *xref.Table
	sec      *security.Handler
	pipeline *filters.Pipeline
	log      observability.Logger

	mu      sync.Mutex
	cache   map[raw.ObjectRef]raw.Object
	objStms map[int]*objectStream
	loading map[raw.ObjectRef]bool
}

type sizer interface{ Size() int64 }

// Open reads the whole of r and prepares the document. r must report its
// size through a Size() method (bytes.Reader, io.SectionReader) or be an
// *os.File.
func Open(ctx context.Context, r io.ReaderAt, cfg Config) (*Document, error) {
	var size int64
	switch v := r.(type) {
	case sizer:
		size = v.Size()
	case *os.File:
		st, err := v.Stat()
		if err != nil {
			return nil, err
		}
		size = st.Size()
	default:
		return nil, errors.New("parser: reader does not expose its size")
	}
	data := make([]byte, size)
	if _, err := r.ReadAt(data, 0); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	return OpenBytes(ctx, data, cfg)
}

// OpenFile opens the PDF at path.
func OpenFile(ctx context.Context, path string, cfg Config) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return OpenBytes(ctx, data, cfg)
}

// OpenBytes parses an in-memory PDF.
func OpenBytes(ctx context.Context, data []byte, cfg Config) (*Document, error) {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	idx := bytes.Index(head, []byte("%PDF-"))
	if idx < 0 {
		return nil, ErrNotPDF
	}
	if cfg.Limits == (filters.Limits{}) {
		cfg.Limits = filters.DefaultLimits()
	}
	d := &Document{
		data:     data,
		version:  headerVersion(data[idx+5:]),
		pipeline: filters.Default(cfg.Limits),
		log:      observability.OrNop(cfg.Logger),
		cache:    make(map[raw.ObjectRef]raw.Object),
		objStms:  make(map[int]*objectStream),
		loading:  make(map[raw.ObjectRef]bool),
	}

	table, err := xref.Resolve(ctx, data)
	if err == nil {
		d.table = table
		if _, rootErr := d.catalog(); rootErr != nil {
			err = rootErr
		}
	}
	if err != nil {
		if cfg.DisableRepair {
			return nil, fmt.Errorf("read xref: %w", err)
		}
		d.log.Warn("xref unusable, rebuilding", observability.Err(err))
		table, rerr := xref.Repair(ctx, data)
		if rerr != nil {
			return nil, fmt.Errorf("repair xref: %w (after %v)", rerr, err)
		}
		d.table = table
		d.resetCache()
	}

	if encObj, ok := d.table.Trailer.Get("Encrypt"); ok {
		encDict, err := d.loadEncryptDict(encObj)
		if err != nil {
			return nil, err
		}
		h, err := security.FromTrailer(d.table.Trailer, encDict, cfg.Password)
		if err != nil {
			if errors.Is(err, security.ErrBadPassword) {
				return nil, ErrEncrypted
			}
			return nil, err
		}
		d.sec = h
		d.resetCache()
	}
	if _, err := d.catalog(); err != nil {
		return nil, err
	}
	return d, nil
}

// loadEncryptDict reads the /Encrypt dictionary, which is never itself
// encrypted.
func (d *Document) loadEncryptDict(o raw.Object) (*raw.DictObj, error) {
	obj, err := d.Resolve(o)
	if err != nil {
		return nil, fmt.Errorf("encrypt dictionary: %w", err)
	}
	dict, ok := obj.(*raw.DictObj)
	if !ok {
		return nil, errors.New("encrypt entry is not a dictionary")
	}
	return dict, nil
}

func (d *Document) resetCache() {
	d.mu.Lock()
	d.cache = make(map[raw.ObjectRef]raw.Object)
	d.objStms = make(map[int]*objectStream)
	d.mu.Unlock()
}

func headerVersion(b []byte) string {
	end := 0
	for end < len(b) && end < 8 && (b[end] == '.' || (b[end] >= '0' && b[end] <= '9')) {
		end++
	}
	return string(b[:end])
}

func (d *Document) Version() string       { return d.version }
func (d *Document) Trailer() *raw.DictObj { return d.table.Trailer }
func (d *Document) Encrypted() bool       { return d.sec != nil }
func (d *Document) Repaired() bool        { return d.table.Repaired }

func (d *Document) catalog() (*raw.DictObj, error) {
	root, ok := d.table.Trailer.Get("Root")
	if !ok {
		return nil, errors.New("trailer has no /Root")
	}
	obj, err := d.Resolve(root)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	cat, ok := obj.(*raw.DictObj)
	if !ok {
		return nil, errors.New("catalog is not a dictionary")
	}
	return cat, nil
}

// Catalog returns the document catalog.
func (d *Document) Catalog() (*raw.DictObj, error) { return d.catalog() }

// Object loads an indirect object by reference.
func (d *Document) Object(ref raw.ObjectRef) (raw.Object, error) {
	d.mu.Lock()
	if obj, ok := d.cache[ref]; ok {
		d.mu.Unlock()
		return obj, nil
	}
	if d.loading[ref] {
		d.mu.Unlock()
		return nil, fmt.Errorf("object %s: reference cycle", ref)
	}
	d.loading[ref] = true
	d.mu.Unlock()

	obj, err := d.load(ref)

	d.mu.Lock()
	delete(d.loading, ref)
	if err == nil {
		d.cache[ref] = obj
	}
	d.mu.Unlock()
	return obj, err
}

func (d *Document) load(ref raw.ObjectRef) (raw.Object, error) {
	e, ok := d.table.Lookup(ref.Num)
	if !ok {
		// Missing objects are null per the PDF object model.
		return raw.NullObj{}, nil
	}
	if e.Type == xref.EntryCompressed {
		return d.loadCompressed(ref, e)
	}
	s := scanner.New(d.data)
	if err := s.Seek(int(e.Offset)); err != nil {
		return nil, fmt.Errorf("object %s: %w", ref, err)
	}
	got, obj, err := s.ReadIndirect(d.streamLength)
	if err != nil {
		return nil, err
	}
	if got.Num != ref.Num {
		return nil, fmt.Errorf("object %s: offset points at %s", ref, got)
	}
	if d.sec != nil {
		obj, err = d.decrypt(got, obj)
		if err != nil {
			return nil, fmt.Errorf("object %s: %w", ref, err)
		}
	}
	return obj, nil
}

func (d *Document) streamLength(ref raw.ObjectRef) (int, bool) {
	obj, err := d.Object(ref)
	if err != nil {
		return 0, false
	}
	n, ok := obj.(raw.NumberObj)
	return int(n.Int()), ok
}

func (d *Document) decrypt(ref raw.ObjectRef, obj raw.Object) (raw.Object, error) {
	switch o := obj.(type) {
	case raw.StringObj:
		b, err := d.sec.DecryptString(ref, o.Bytes)
		if err != nil {
			return nil, err
		}
		return raw.StringObj{Bytes: b, Hex: o.Hex}, nil
	case *raw.ArrayObj:
		out := raw.NewArray()
		for _, it := range o.Items {
			v, err := d.decrypt(ref, it)
			if err != nil {
				return nil, err
			}
			out.Append(v)
		}
		return out, nil
	case *raw.DictObj:
		out := raw.Dict()
		for k, v := range o.KV {
			dv, err := d.decrypt(ref, v)
			if err != nil {
				return nil, err
			}
			out.Set(k, dv)
		}
		return out, nil
	case *raw.StreamObj:
		typ, _ := o.Dict.Name("Type")
		if typ == "XRef" || (typ == "Metadata" && !d.sec.EncryptMetadata()) {
			return o, nil
		}
		dict, err := d.decrypt(ref, o.Dict)
		if err != nil {
			return nil, err
		}
		data, err := d.sec.DecryptStream(ref, o.Data)
		if err != nil {
			return nil, err
		}
		return raw.NewStream(dict.(*raw.DictObj), data), nil
	}
	return obj, nil
}

// Resolve follows references until a direct object is reached.
func (d *Document) Resolve(o raw.Object) (raw.Object, error) {
	for i := 0; i < MaxResolveDepth; i++ {
		ref, ok := o.(raw.RefObj)
		if !ok {
			if o == nil {
				return raw.NullObj{}, nil
			}
			return o, nil
		}
		next, err := d.Object(ref.R)
		if err != nil {
			return nil, err
		}
		o = next
	}
	return nil, errors.New("reference chain too deep")
}

// Stream returns the decoded payload of a stream object. When the stream
// ends in an image filter the data is left encoded by it and its name is
// returned.
func (d *Document) Stream(ctx context.Context, o raw.Object) ([]byte, string, error) {
	obj, err := d.Resolve(o)
	if err != nil {
		return nil, "", err
	}
	st, ok := obj.(*raw.StreamObj)
	if !ok {
		return nil, "", fmt.Errorf("expected stream, got %s", obj.Type())
	}
	names, params := d.StreamFilters(st.Dict)
	return d.pipeline.Decode(ctx, st.Data, names, params)
}

// StreamFilters returns the resolved /Filter names and /DecodeParms.
func (d *Document) StreamFilters(dict *raw.DictObj) ([]string, []*raw.DictObj) {
	var names []string
	var params []*raw.DictObj
	filter, _ := dict.Get("Filter")
	if filter == nil {
		filter, _ = dict.Get("F")
	}
	switch f := d.resolveQuiet(filter).(type) {
	case raw.NameObj:
		names = []string{f.Val}
	case *raw.ArrayObj:
		for _, it := range f.Items {
			if n, ok := d.resolveQuiet(it).(raw.NameObj); ok {
				names = append(names, n.Val)
			}
		}
	}
	parms, _ := dict.Get("DecodeParms")
	if parms == nil {
		parms, _ = dict.Get("DP")
	}
	switch p := d.resolveQuiet(parms).(type) {
	case *raw.DictObj:
		params = []*raw.DictObj{p}
	case *raw.ArrayObj:
		for _, it := range p.Items {
			pd, _ := d.resolveQuiet(it).(*raw.DictObj)
			params = append(params, pd)
		}
	}
	return names, params
}

// DecodeInline decodes inline image data with the given filters.
func (d *Document) DecodeInline(ctx context.Context, data []byte, names []string, params []*raw.DictObj) ([]byte, string, error) {
	return d.pipeline.Decode(ctx, data, names, params)
}

func (d *Document) resolveQuiet(o raw.Object) raw.Object {
	if o == nil {
		return nil
	}
	v, err := d.Resolve(o)
	if err != nil {
		return nil
	}
	return v
}
