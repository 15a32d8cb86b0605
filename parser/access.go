package parser

import (
	"github.com/wudi/charterkit/coords"
	"github.com/wudi/charterkit/ir/raw"
)

// The Get helpers resolve indirect values before type-checking them.

func (d *Document) Get(dict *raw.DictObj, key string) (raw.Object, bool) {
	o, ok := dict.Get(key)
	if !ok {
		return nil, false
	}
	v := d.resolveQuiet(o)
	if v == nil {
		return nil, false
	}
	if _, null := v.(raw.NullObj); null {
		return nil, false
	}
	return v, true
}

func (d *Document) GetDict(dict *raw.DictObj, key string) (*raw.DictObj, bool) {
	o, _ := d.Get(dict, key)
	switch v := o.(type) {
	case *raw.DictObj:
		return v, true
	case *raw.StreamObj:
		return v.Dict, true
	}
	return nil, false
}

func (d *Document) GetArray(dict *raw.DictObj, key string) (*raw.ArrayObj, bool) {
	o, _ := d.Get(dict, key)
	a, ok := o.(*raw.ArrayObj)
	return a, ok
}

func (d *Document) GetName(dict *raw.DictObj, key string) (string, bool) {
	o, _ := d.Get(dict, key)
	n, ok := o.(raw.NameObj)
	return n.Val, ok
}

func (d *Document) GetInt(dict *raw.DictObj, key string) (int64, bool) {
	o, _ := d.Get(dict, key)
	n, ok := o.(raw.NumberObj)
	return n.Int(), ok
}

func (d *Document) GetFloat(dict *raw.DictObj, key string) (float64, bool) {
	o, _ := d.Get(dict, key)
	return raw.Float(o)
}

// GetText decodes a text string entry.
func (d *Document) GetText(dict *raw.DictObj, key string) (string, bool) {
	o, _ := d.Get(dict, key)
	s, ok := o.(raw.StringObj)
	if !ok {
		return "", false
	}
	return s.Text(), true
}

// GetRect reads a four-number rectangle.
func (d *Document) GetRect(dict *raw.DictObj, key string) (coords.Rect, bool) {
	arr, ok := d.GetArray(dict, key)
	if !ok {
		return coords.Rect{}, false
	}
	return d.Rect(arr)
}

// Rect converts an array of four (possibly indirect) numbers.
func (d *Document) Rect(arr *raw.ArrayObj) (coords.Rect, bool) {
	if arr.Len() != 4 {
		return coords.Rect{}, false
	}
	var v [4]float64
	for i, it := range arr.Items {
		f, ok := raw.Float(d.resolveQuiet(it))
		if !ok {
			return coords.Rect{}, false
		}
		v[i] = f
	}
	return coords.Rect{LLX: v[0], LLY: v[1], URX: v[2], URY: v[3]}.Normalize(), true
}

// Floats resolves every item of arr to a number.
func (d *Document) Floats(arr *raw.ArrayObj) ([]float64, bool) {
	if arr == nil {
		return nil, false
	}
	out := make([]float64, 0, len(arr.Items))
	for _, it := range arr.Items {
		f, ok := raw.Float(d.resolveQuiet(it))
		if !ok {
			return nil, false
		}
		out = append(out, f)
	}
	return out, true
}
