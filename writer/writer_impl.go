package writer

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/wudi/charterkit/filters"
	"github.com/wudi/charterkit/fonts"
	"github.com/wudi/charterkit/ir/raw"
	"github.com/wudi/charterkit/ir/semantic"
	"github.com/wudi/charterkit/observability"
	"github.com/wudi/charterkit/security"
)

type impl struct {
	interceptors []Interceptor
	log          observability.Logger
}

// objectTable hands out object numbers in creation order.
type objectTable struct {
	objects map[raw.ObjectRef]raw.Object
	next    int
}

func (t *objectTable) reserve() raw.ObjectRef {
	t.next++
	return raw.ObjectRef{Num: t.next}
}

func (t *objectTable) add(obj raw.Object) raw.ObjectRef {
	ref := t.reserve()
	t.objects[ref] = obj
	return ref
}

func (w *impl) SerializeObject(ref raw.ObjectRef, obj raw.Object) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%d %d obj\n", ref.Num, ref.Gen)
	if obj == nil {
		buf.WriteString("null")
	} else {
		buf.Write(serializePrimitive(obj))
	}
	buf.WriteString("\nendobj\n")
	return buf.Bytes(), nil
}

func (w *impl) Write(ctx context.Context, doc *semantic.Document, out io.Writer, cfg Config) error {
	if doc == nil || len(doc.Pages) == 0 {
		return fmt.Errorf("writer: document has no pages")
	}
	if cfg.Version == "" {
		cfg.Version = PDF17
	}
	tbl := &objectTable{objects: make(map[raw.ObjectRef]raw.Object)}
	catalogRef := tbl.reserve()
	pagesRef := tbl.reserve()

	fontRefs := &fontSet{refs: make(map[fonts.Font]raw.ObjectRef)}
	pageRefs := make([]raw.ObjectRef, 0, len(doc.Pages))
	for _, p := range doc.Pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		ref, err := w.page(tbl, p, pagesRef, fontRefs, cfg)
		if err != nil {
			return fmt.Errorf("page %d: %w", p.Index+1, err)
		}
		pageRefs = append(pageRefs, ref)
	}
	// Fonts go last so every glyph placed by an embedded font is known.
	for _, f := range fontRefs.order {
		if err := writeFont(tbl, f, fontRefs.refs[f]); err != nil {
			return fmt.Errorf("font %s: %w", f.Name(), err)
		}
	}

	kids := raw.NewArray()
	for _, r := range pageRefs {
		kids.Append(raw.RefObj{R: r})
	}
	tbl.objects[pagesRef] = raw.Dict().
		Set("Type", raw.Name("Pages")).
		Set("Count", raw.Int(int64(len(pageRefs)))).
		Set("Kids", kids)
	catalog := raw.Dict().
		Set("Type", raw.Name("Catalog")).
		Set("Pages", raw.RefObj{R: pagesRef})
	if doc.Lang != "" {
		catalog.Set("Lang", raw.Str(raw.EncodeTextString(doc.Lang)))
	}
	tbl.objects[catalogRef] = catalog

	var infoRef *raw.ObjectRef
	if doc.Info != nil {
		ref := tbl.add(infoDict(doc.Info))
		infoRef = &ref
	}

	ids := fileID(doc, cfg)
	var encryptRef *raw.ObjectRef
	var handler *security.Handler
	if doc.Encryption != nil {
		encDict, h, err := security.Setup(*doc.Encryption, ids[0])
		if err != nil {
			return fmt.Errorf("encryption: %w", err)
		}
		for ref, obj := range tbl.objects {
			enc, err := encryptObject(obj, ref, h)
			if err != nil {
				return fmt.Errorf("encrypt %s: %w", ref, err)
			}
			tbl.objects[ref] = enc
		}
		ref := tbl.add(encDict)
		encryptRef = &ref
		handler = h
	}

	trailer := buildTrailer(tbl.next+1, catalogRef, infoRef, encryptRef, ids)
	n, err := w.emit(ctx, tbl, trailer, cfg, out)
	if err != nil {
		return err
	}
	w.log.Debug("pdf written",
		observability.Int("pages", len(pageRefs)),
		observability.Int("objects", tbl.next),
		observability.Int64("bytes", n),
		observability.Bool("encrypted", handler != nil))
	return nil
}

// fontSet assigns one object per distinct font in first-use order.
type fontSet struct {
	refs  map[fonts.Font]raw.ObjectRef
	order []fonts.Font
}

func (s *fontSet) ref(tbl *objectTable, f fonts.Font) raw.ObjectRef {
	if ref, ok := s.refs[f]; ok {
		return ref
	}
	ref := tbl.reserve()
	s.refs[f] = ref
	s.order = append(s.order, f)
	return ref
}

func (w *impl) page(tbl *objectTable, p *semantic.Page, parent raw.ObjectRef, fontRefs *fontSet, cfg Config) (raw.ObjectRef, error) {
	var content []byte
	for _, cs := range p.Contents {
		content = append(content, serializeContentStream(cs)...)
	}
	streamDict := raw.Dict()
	if cfg.ContentFilter == FilterFlate && len(content) > 0 {
		enc, err := filters.FlateEncode(content)
		if err != nil {
			return raw.ObjectRef{}, err
		}
		content = enc
		streamDict.Set("Filter", raw.Name("FlateDecode"))
	}
	streamDict.Set("Length", raw.Int(int64(len(content))))
	contentRef := tbl.add(raw.NewStream(streamDict, content))

	res := raw.Dict()
	if p.Resources != nil && len(p.Resources.Fonts) > 0 {
		names := make([]string, 0, len(p.Resources.Fonts))
		for name := range p.Resources.Fonts {
			names = append(names, name)
		}
		sort.Strings(names)
		fontRes := raw.Dict()
		for _, name := range names {
			fontRes.Set(name, raw.RefObj{R: fontRefs.ref(tbl, p.Resources.Fonts[name])})
		}
		res.Set("Font", fontRes)
	}
	res.Set("ProcSet", raw.NewArray(raw.Name("PDF"), raw.Name("Text")))

	pageRef := tbl.reserve()
	pageDict := raw.Dict().
		Set("Type", raw.Name("Page")).
		Set("Parent", raw.RefObj{R: parent}).
		Set("MediaBox", rectArray(p.MediaBox)).
		Set("Resources", res).
		Set("Contents", raw.RefObj{R: contentRef})
	if len(p.Annotations) > 0 {
		annots := raw.NewArray()
		for _, a := range p.Annotations {
			annots.Append(raw.RefObj{R: tbl.add(annotationDict(a, pageRef))})
		}
		pageDict.Set("Annots", annots)
	}
	tbl.objects[pageRef] = pageDict
	return pageRef, nil
}

// emit writes header, objects in number order, xref and trailer, and
// returns the byte count.
func (w *impl) emit(ctx context.Context, tbl *objectTable, trailer *raw.DictObj, cfg Config, out io.Writer) (int64, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%%PDF-%s\n%%\xE2\xE3\xCF\xD3\n", cfg.Version)
	offsets := make(map[int]int64, len(tbl.objects))
	ordered := make([]raw.ObjectRef, 0, len(tbl.objects))
	for ref := range tbl.objects {
		ordered = append(ordered, ref)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Num < ordered[j].Num })
	for _, ref := range ordered {
		obj := tbl.objects[ref]
		for _, ic := range w.interceptors {
			if err := ic.BeforeWrite(ctx, ref, obj); err != nil {
				return 0, err
			}
		}
		offsets[ref.Num] = int64(buf.Len())
		serialized, err := w.SerializeObject(ref, obj)
		if err != nil {
			return 0, err
		}
		buf.Write(serialized)
		for _, ic := range w.interceptors {
			if err := ic.AfterWrite(ctx, ref, int64(len(serialized))); err != nil {
				return 0, err
			}
		}
	}
	xrefOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", tbl.next+1)
	for i := 1; i <= tbl.next; i++ {
		if off, ok := offsets[i]; ok {
			fmt.Fprintf(&buf, "%010d 00000 n \n", off)
		} else {
			buf.WriteString("0000000000 00000 f \n")
		}
	}
	buf.WriteString("trailer\n")
	buf.Write(serializePrimitive(trailer))
	fmt.Fprintf(&buf, "\nstartxref\n%d\n%%%%EOF\n", xrefOffset)
	n, err := out.Write(buf.Bytes())
	return int64(n), err
}

func infoDict(info *semantic.DocumentInfo) *raw.DictObj {
	d := raw.Dict()
	text := func(key, v string) {
		if v != "" {
			d.Set(key, raw.Str(raw.EncodeTextString(v)))
		}
	}
	text("Title", info.Title)
	text("Author", info.Author)
	text("Subject", info.Subject)
	text("Creator", info.Creator)
	text("Producer", info.Producer)
	text("Keywords", strings.Join(info.Keywords, ", "))
	if !info.CreationDate.IsZero() {
		d.Set("CreationDate", raw.Str([]byte(pdfDate(info.CreationDate))))
	}
	if !info.ModDate.IsZero() {
		d.Set("ModDate", raw.Str([]byte(pdfDate(info.ModDate))))
	}
	return d
}

func pdfDate(t time.Time) string {
	return t.UTC().Format("D:20060102150405Z")
}

func fileID(doc *semantic.Document, cfg Config) [2][]byte {
	h := md5.New()
	if doc.Info != nil {
		fmt.Fprintf(h, "%s|%s|%s|%d", doc.Info.Title, doc.Info.Author, doc.Info.Subject, doc.Info.CreationDate.Unix())
	}
	fmt.Fprintf(h, "|%d", len(doc.Pages))
	for _, p := range doc.Pages {
		for _, cs := range p.Contents {
			h.Write(serializeContentStream(cs))
		}
	}
	if !cfg.Deterministic {
		fmt.Fprintf(h, "|%d", time.Now().UnixNano())
	}
	id := h.Sum(nil)
	return [2][]byte{id, id}
}

func buildTrailer(size int, catalogRef raw.ObjectRef, infoRef, encryptRef *raw.ObjectRef, ids [2][]byte) *raw.DictObj {
	trailer := raw.Dict().
		Set("Size", raw.Int(int64(size))).
		Set("Root", raw.RefObj{R: catalogRef}).
		Set("ID", raw.NewArray(raw.HexStr(ids[0]), raw.HexStr(ids[1])))
	if infoRef != nil {
		trailer.Set("Info", raw.RefObj{R: *infoRef})
	}
	if encryptRef != nil {
		trailer.Set("Encrypt", raw.RefObj{R: *encryptRef})
	}
	return trailer
}

// encryptObject encrypts every string and stream payload reachable from
// obj without following references.
func encryptObject(obj raw.Object, ref raw.ObjectRef, h *security.Handler) (raw.Object, error) {
	switch v := obj.(type) {
	case raw.StringObj:
		enc, err := h.EncryptString(ref, v.Bytes)
		if err != nil {
			return nil, err
		}
		return raw.StringObj{Bytes: enc, Hex: true}, nil
	case *raw.ArrayObj:
		out := raw.NewArray()
		for _, it := range v.Items {
			e, err := encryptObject(it, ref, h)
			if err != nil {
				return nil, err
			}
			out.Append(e)
		}
		return out, nil
	case *raw.DictObj:
		out := raw.Dict()
		for k, it := range v.KV {
			e, err := encryptObject(it, ref, h)
			if err != nil {
				return nil, err
			}
			out.Set(k, e)
		}
		return out, nil
	case *raw.StreamObj:
		data, err := h.EncryptStream(ref, v.Data)
		if err != nil {
			return nil, err
		}
		d, err := encryptObject(v.Dict, ref, h)
		if err != nil {
			return nil, err
		}
		dict := d.(*raw.DictObj)
		dict.Set("Length", raw.Int(int64(len(data))))
		return raw.NewStream(dict, data), nil
	}
	return obj, nil
}
