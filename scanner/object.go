package scanner

import (
	"errors"
	"fmt"
	"io"

	"github.com/wudi/charterkit/ir/raw"
)

// MaxDepth bounds array/dictionary nesting.
const MaxDepth = 64

// LengthFunc resolves an indirect /Length value while a stream is read.
type LengthFunc func(ref raw.ObjectRef) (int, bool)

// ReadObject parses one direct object, folding "N G R" into references.
func (s *Scanner) ReadObject() (raw.Object, error) {
	tok, err := s.Next()
	if err != nil {
		return nil, err
	}
	return s.objectFrom(tok, 0)
}

func (s *Scanner) objectFrom(tok Token, depth int) (raw.Object, error) {
	if depth > MaxDepth {
		return nil, fmt.Errorf("scanner: nesting deeper than %d at %d", MaxDepth, tok.Pos)
	}
	switch tok.Type {
	case TokenName:
		return raw.Name(tok.Str), nil
	case TokenString:
		return raw.StringObj{Bytes: tok.Bytes, Hex: tok.Hex}, nil
	case TokenBoolean:
		return raw.Bool(tok.Bool), nil
	case TokenNull:
		return raw.NullObj{}, nil
	case TokenNumber:
		if tok.IsInt && tok.Int >= 0 {
			if ref, ok := s.tryRef(tok); ok {
				return ref, nil
			}
		}
		if tok.IsInt {
			return raw.Int(tok.Int), nil
		}
		return raw.Real(tok.Float), nil
	case TokenArrayStart:
		arr := raw.NewArray()
		for {
			next, err := s.Next()
			if err != nil {
				return nil, wrapEOF(err)
			}
			if next.Type == TokenArrayEnd {
				return arr, nil
			}
			item, err := s.objectFrom(next, depth+1)
			if err != nil {
				return nil, err
			}
			arr.Append(item)
		}
	case TokenDictStart:
		dict := raw.Dict()
		for {
			key, err := s.Next()
			if err != nil {
				return nil, wrapEOF(err)
			}
			if key.Type == TokenDictEnd {
				return dict, nil
			}
			if key.Type != TokenName {
				return nil, fmt.Errorf("scanner: dictionary key must be a name at %d", key.Pos)
			}
			valTok, err := s.Next()
			if err != nil {
				return nil, wrapEOF(err)
			}
			if valTok.Type == TokenDictEnd {
				// Missing value: treat as null and close.
				dict.Set(key.Str, raw.NullObj{})
				return dict, nil
			}
			val, err := s.objectFrom(valTok, depth+1)
			if err != nil {
				return nil, err
			}
			dict.Set(key.Str, val)
		}
	}
	return nil, fmt.Errorf("scanner: unexpected token %q at %d", tok.Str, tok.Pos)
}

func (s *Scanner) tryRef(num Token) (raw.Object, bool) {
	save := s.pos
	gen, err := s.Next()
	if err != nil || gen.Type != TokenNumber || !gen.IsInt || gen.Int < 0 {
		s.pos = save
		return nil, false
	}
	r, err := s.Next()
	if err != nil || r.Type != TokenKeyword || r.Str != "R" {
		s.pos = save
		return nil, false
	}
	return raw.Ref(int(num.Int), int(gen.Int)), true
}

// ReadIndirect parses "N G obj <object> [stream ... endstream] endobj" at the
// current position.
func (s *Scanner) ReadIndirect(length LengthFunc) (raw.ObjectRef, raw.Object, error) {
	num, err := s.Next()
	if err != nil {
		return raw.ObjectRef{}, nil, err
	}
	gen, err := s.Next()
	if err != nil {
		return raw.ObjectRef{}, nil, err
	}
	kw, err := s.Next()
	if err != nil {
		return raw.ObjectRef{}, nil, err
	}
	if num.Type != TokenNumber || gen.Type != TokenNumber || kw.Type != TokenKeyword || kw.Str != "obj" {
		return raw.ObjectRef{}, nil, fmt.Errorf("scanner: no object header at %d", num.Pos)
	}
	ref := raw.ObjectRef{Num: int(num.Int), Gen: int(gen.Int)}
	obj, err := s.ReadObject()
	if err != nil {
		return ref, nil, fmt.Errorf("object %s: %w", ref, err)
	}
	next, err := s.Peek()
	if err == nil && next.Type == TokenKeyword && next.Str == "stream" {
		dict, ok := obj.(*raw.DictObj)
		if !ok {
			return ref, nil, fmt.Errorf("object %s: stream without dictionary", ref)
		}
		_, _ = s.Next()
		n := -1
		switch v := dict.KV["Length"].(type) {
		case raw.NumberObj:
			n = int(v.Int())
		case raw.RefObj:
			if length != nil {
				if l, ok := length(v.R); ok {
					n = l
				}
			}
		}
		data, err := s.ReadStream(n)
		if err != nil {
			return ref, nil, fmt.Errorf("object %s: %w", ref, err)
		}
		obj = raw.NewStream(dict, data)
	}
	return ref, obj, nil
}

func wrapEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return ErrUnexpectedEOF
	}
	return err
}
