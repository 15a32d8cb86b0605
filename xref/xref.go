// Package xref locates indirect objects: it reads classic cross-reference
// tables and cross-reference streams, follows /Prev chains and can rebuild
// a table by scanning the file when it is damaged.
package xref

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/wudi/charterkit/filters"
	"github.com/wudi/charterkit/ir/raw"
	"github.com/wudi/charterkit/scanner"
)

type EntryType int

const (
	EntryFree EntryType = iota
	EntryInUse
	EntryCompressed // stored inside an object stream
)

// Entry locates one object. For compressed entries Stream is the object
// stream number and Index the position inside it.
type Entry struct {
	Type   EntryType
	Offset int64
	Gen    int
	Stream int
	Index  int
}

// Table is the merged view over every xref section of a file.
type Table struct {
	Entries  map[int]Entry
	Trailer  *raw.DictObj
	Sections int
	Repaired bool
}

func (t *Table) Lookup(num int) (Entry, bool) {
	e, ok := t.Entries[num]
	if !ok || e.Type == EntryFree {
		return Entry{}, false
	}
	return e, true
}

// Size is the highest object number plus one.
func (t *Table) Size() int {
	max := 0
	for n := range t.Entries {
		if n+1 > max {
			max = n + 1
		}
	}
	return max
}

var ErrNoStartXref = errors.New("startxref not found")

// MaxSections bounds /Prev chains.
const MaxSections = 256

// Resolve reads every section reachable from the last startxref. Newer
// sections win over older ones.
func Resolve(ctx context.Context, data []byte) (*Table, error) {
	offset, err := findStartXref(data)
	if err != nil {
		return nil, err
	}
	t := &Table{Entries: make(map[int]Entry)}
	seen := make(map[int64]bool)
	pending := []int64{offset}
	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		off := pending[0]
		pending = pending[1:]
		if seen[off] {
			continue
		}
		if len(seen) >= MaxSections {
			return nil, fmt.Errorf("xref: more than %d sections", MaxSections)
		}
		seen[off] = true
		trailer, err := readSection(ctx, data, off, t)
		if err != nil {
			return nil, fmt.Errorf("xref section at %d: %w", off, err)
		}
		t.Sections++
		if t.Trailer == nil {
			t.Trailer = trailer
		} else {
			for _, k := range trailer.Keys() {
				if _, ok := t.Trailer.Get(k); !ok && k != "Prev" && k != "XRefStm" {
					t.Trailer.Set(k, trailer.KV[k])
				}
			}
		}
		// A hybrid file's /XRefStm is read before /Prev so it takes precedence.
		if stm, ok := trailer.Int("XRefStm"); ok {
			pending = append([]int64{stm}, pending...)
		}
		if prev, ok := trailer.Int("Prev"); ok {
			pending = append(pending, prev)
		}
	}
	if t.Trailer == nil {
		return nil, errors.New("xref: no trailer")
	}
	return t, nil
}

func findStartXref(data []byte) (int64, error) {
	idx := bytes.LastIndex(data, []byte("startxref"))
	if idx < 0 {
		return 0, ErrNoStartXref
	}
	s := scanner.New(data)
	_ = s.Seek(idx + len("startxref"))
	tok, err := s.Next()
	if err != nil || tok.Type != scanner.TokenNumber || !tok.IsInt {
		return 0, fmt.Errorf("%w: bad offset", ErrNoStartXref)
	}
	if tok.Int < 0 || tok.Int >= int64(len(data)) {
		return 0, fmt.Errorf("%w: offset %d out of range", ErrNoStartXref, tok.Int)
	}
	return tok.Int, nil
}

// readSection merges one section into t; entries already present (from a
// newer section) are kept.
func readSection(ctx context.Context, data []byte, off int64, t *Table) (*raw.DictObj, error) {
	s := scanner.New(data)
	if err := s.Seek(int(off)); err != nil {
		return nil, err
	}
	tok, err := s.Peek()
	if err != nil {
		return nil, err
	}
	if tok.Type == scanner.TokenKeyword && tok.Str == "xref" {
		_, _ = s.Next()
		return readTable(s, t)
	}
	return readStream(ctx, s, t)
}

func readTable(s *scanner.Scanner, t *Table) (*raw.DictObj, error) {
	for {
		tok, err := s.Next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "trailer" {
			obj, err := s.ReadObject()
			if err != nil {
				return nil, fmt.Errorf("trailer: %w", err)
			}
			d, ok := obj.(*raw.DictObj)
			if !ok {
				return nil, errors.New("trailer is not a dictionary")
			}
			return d, nil
		}
		if tok.Type != scanner.TokenNumber {
			return nil, fmt.Errorf("unexpected token %q in xref table", tok.Str)
		}
		countTok, err := s.Next()
		if err != nil || countTok.Type != scanner.TokenNumber {
			return nil, errors.New("bad subsection header")
		}
		first, count := int(tok.Int), int(countTok.Int)
		for i := 0; i < count; i++ {
			offTok, err1 := s.Next()
			genTok, err2 := s.Next()
			kind, err3 := s.Next()
			if err1 != nil || err2 != nil || err3 != nil {
				return nil, errors.New("truncated xref table")
			}
			num := first + i
			if _, exists := t.Entries[num]; exists {
				continue
			}
			e := Entry{Offset: offTok.Int, Gen: int(genTok.Int)}
			switch kind.Str {
			case "n":
				e.Type = EntryInUse
			case "f":
				e.Type = EntryFree
			default:
				return nil, fmt.Errorf("bad xref entry type %q", kind.Str)
			}
			// Object 0 is always free; some writers start subsections at 1 but
			// number from 0.
			if num == 0 && e.Type == EntryInUse {
				continue
			}
			t.Entries[num] = e
		}
	}
}

func readStream(ctx context.Context, s *scanner.Scanner, t *Table) (*raw.DictObj, error) {
	_, obj, err := s.ReadIndirect(nil)
	if err != nil {
		return nil, err
	}
	st, ok := obj.(*raw.StreamObj)
	if !ok {
		return nil, errors.New("xref offset does not point at a table or stream")
	}
	if typ, _ := st.Dict.Name("Type"); typ != "XRef" {
		return nil, fmt.Errorf("stream type %q is not XRef", typ)
	}
	payload, err := decodeStream(ctx, st)
	if err != nil {
		return nil, err
	}
	wArr, ok := st.Dict.Array("W")
	if !ok || wArr.Len() != 3 {
		return nil, errors.New("xref stream missing /W")
	}
	var w [3]int
	for i := 0; i < 3; i++ {
		v, _ := raw.Float(wArr.Items[i])
		w[i] = int(v)
	}
	size, _ := st.Dict.Int("Size")
	index := []int{0, int(size)}
	if arr, ok := st.Dict.Array("Index"); ok {
		index = index[:0]
		for _, it := range arr.Items {
			v, _ := raw.Float(it)
			index = append(index, int(v))
		}
	}
	rowLen := w[0] + w[1] + w[2]
	if rowLen == 0 {
		return nil, errors.New("xref stream has zero-width rows")
	}
	pos := 0
	for i := 0; i+1 < len(index); i += 2 {
		first, count := index[i], index[i+1]
		for j := 0; j < count; j++ {
			if pos+rowLen > len(payload) {
				return st.Dict, nil
			}
			row := payload[pos : pos+rowLen]
			pos += rowLen
			typ := 1
			if w[0] > 0 {
				typ = int(field(row[:w[0]]))
			}
			f2 := field(row[w[0] : w[0]+w[1]])
			f3 := field(row[w[0]+w[1]:])
			num := first + j
			if _, exists := t.Entries[num]; exists {
				continue
			}
			switch typ {
			case 0:
				t.Entries[num] = Entry{Type: EntryFree}
			case 1:
				t.Entries[num] = Entry{Type: EntryInUse, Offset: f2, Gen: int(f3)}
			case 2:
				t.Entries[num] = Entry{Type: EntryCompressed, Stream: int(f2), Index: int(f3)}
			}
		}
	}
	return st.Dict, nil
}

func decodeStream(ctx context.Context, st *raw.StreamObj) ([]byte, error) {
	var names []string
	var params []*raw.DictObj
	switch f := st.Dict.KV["Filter"].(type) {
	case raw.NameObj:
		names = []string{f.Val}
	case *raw.ArrayObj:
		for _, it := range f.Items {
			if n, ok := it.(raw.NameObj); ok {
				names = append(names, n.Val)
			}
		}
	}
	switch p := st.Dict.KV["DecodeParms"].(type) {
	case *raw.DictObj:
		params = []*raw.DictObj{p}
	case *raw.ArrayObj:
		for _, it := range p.Items {
			d, _ := it.(*raw.DictObj)
			params = append(params, d)
		}
	}
	out, _, err := filters.Default(filters.DefaultLimits()).Decode(ctx, st.Data, names, params)
	return out, err
}

func field(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}
