package parser

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/charterkit/ir/raw"
	"github.com/wudi/charterkit/scanner"
	"github.com/wudi/charterkit/xref"
)

type objectStream struct {
	data    []byte
	offsets []int
}

func (d *Document) loadCompressed(ref raw.ObjectRef, e xref.Entry) (raw.Object, error) {
	stm, err := d.objectStream(e.Stream)
	if err != nil {
		return nil, fmt.Errorf("object %s in stream %d: %w", ref, e.Stream, err)
	}
	if e.Index < 0 || e.Index >= len(stm.offsets) {
		return nil, fmt.Errorf("object %s: index %d outside object stream", ref, e.Index)
	}
	s := scanner.New(stm.data)
	if err := s.Seek(stm.offsets[e.Index]); err != nil {
		return nil, err
	}
	return s.ReadObject()
}

func (d *Document) objectStream(num int) (*objectStream, error) {
	d.mu.Lock()
	cached, ok := d.objStms[num]
	d.mu.Unlock()
	if ok {
		return cached, nil
	}
	obj, err := d.Object(raw.ObjectRef{Num: num})
	if err != nil {
		return nil, err
	}
	st, ok := obj.(*raw.StreamObj)
	if !ok {
		return nil, errors.New("object stream is not a stream")
	}
	data, _, err := d.Stream(context.Background(), st)
	if err != nil {
		return nil, err
	}
	n, _ := st.Dict.Int("N")
	first, _ := st.Dict.Int("First")
	s := scanner.New(data)
	out := &objectStream{data: data}
	for i := 0; i < int(n); i++ {
		numTok, err1 := s.Next()
		offTok, err2 := s.Next()
		if err1 != nil || err2 != nil || numTok.Type != scanner.TokenNumber || offTok.Type != scanner.TokenNumber {
			return nil, errors.New("malformed object stream header")
		}
		out.offsets = append(out.offsets, int(first+offTok.Int))
	}
	d.mu.Lock()
	d.objStms[num] = out
	d.mu.Unlock()
	return out, nil
}
