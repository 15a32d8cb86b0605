package xref

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"strconv"

	"github.com/wudi/charterkit/ir/raw"
	"github.com/wudi/charterkit/scanner"
)

var objHeader = regexp.MustCompile(`(?m)(?:^|[\r\n\s])(\d+)\s+(\d+)\s+obj\b`)

// Repair rebuilds a table by scanning for "N G obj" headers. Later
// definitions of the same object win, as they would after incremental
// updates. The trailer is taken from the last "trailer" keyword, or
// synthesized from the first catalog found.
func Repair(ctx context.Context, data []byte) (*Table, error) {
	t := &Table{Entries: make(map[int]Entry), Repaired: true}
	for _, m := range objHeader.FindAllSubmatchIndex(data, -1) {
		num, err1 := strconv.Atoi(string(data[m[2]:m[3]]))
		gen, err2 := strconv.Atoi(string(data[m[4]:m[5]]))
		if err1 != nil || err2 != nil {
			continue
		}
		t.Entries[num] = Entry{Type: EntryInUse, Offset: int64(m[2]), Gen: gen}
	}
	if len(t.Entries) == 0 {
		return nil, errors.New("xref repair: no objects found")
	}
	t.Trailer = lastTrailer(data)

	var catalog *raw.ObjectRef
	for num, e := range t.Entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s := scanner.New(data)
		if s.Seek(int(e.Offset)) != nil {
			continue
		}
		ref, obj, err := s.ReadIndirect(nil)
		if err != nil {
			continue
		}
		switch o := obj.(type) {
		case *raw.DictObj:
			if typ, _ := o.Name("Type"); typ == "Catalog" && catalog == nil {
				r := ref
				catalog = &r
			}
		case *raw.StreamObj:
			typ, _ := o.Dict.Name("Type")
			if typ == "ObjStm" {
				indexObjectStream(ctx, t, num, o)
			}
			if typ == "XRef" && t.Trailer == nil {
				if _, ok := o.Dict.Get("Root"); ok {
					t.Trailer = o.Dict
				}
			}
		}
	}
	if t.Trailer == nil {
		t.Trailer = raw.Dict()
	}
	if _, ok := t.Trailer.Get("Root"); !ok {
		if catalog == nil {
			return nil, errors.New("xref repair: no catalog found")
		}
		t.Trailer.Set("Root", raw.RefObj{R: *catalog})
	}
	t.Trailer.Set("Size", raw.Int(int64(t.Size())))
	t.Sections = 1
	return t, nil
}

func lastTrailer(data []byte) *raw.DictObj {
	idx := bytes.LastIndex(data, []byte("trailer"))
	if idx < 0 {
		return nil
	}
	s := scanner.New(data)
	_ = s.Seek(idx + len("trailer"))
	obj, err := s.ReadObject()
	if err != nil {
		return nil
	}
	d, _ := obj.(*raw.DictObj)
	return d
}

// indexObjectStream adds compressed entries for the objects held by an
// object stream, unless a direct definition was already found.
func indexObjectStream(ctx context.Context, t *Table, streamNum int, st *raw.StreamObj) {
	payload, err := decodeStream(ctx, st)
	if err != nil {
		return
	}
	n, _ := st.Dict.Int("N")
	s := scanner.New(payload)
	for i := 0; i < int(n); i++ {
		numTok, err1 := s.Next()
		_, err2 := s.Next()
		if err1 != nil || err2 != nil || numTok.Type != scanner.TokenNumber {
			return
		}
		num := int(numTok.Int)
		if _, exists := t.Entries[num]; !exists {
			t.Entries[num] = Entry{Type: EntryCompressed, Stream: streamNum, Index: i}
		}
	}
}
