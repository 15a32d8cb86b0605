package raw

import (
	"sort"
)

type NameObj struct{ Val string }

func (NameObj) Type() string { return "name" }

// NumberObj keeps integers exact; F is only meaningful when IsInt is false.
type NumberObj struct {
	I     int64
	F     float64
	IsInt bool
}

func (NumberObj) Type() string { return "number" }

func (n NumberObj) Float() float64 {
	if n.IsInt {
		return float64(n.I)
	}
	return n.F
}

func (n NumberObj) Int() int64 {
	if n.IsInt {
		return n.I
	}
	return int64(n.F)
}

type BoolObj struct{ V bool }

func (BoolObj) Type() string { return "boolean" }

type NullObj struct{}

func (NullObj) Type() string { return "null" }

// StringObj holds the decoded bytes of a literal or hex string.
type StringObj struct {
	Bytes []byte
	Hex   bool
}

func (StringObj) Type() string { return "string" }

// Text decodes the string as a PDF text string.
func (s StringObj) Text() string { return DecodeTextString(s.Bytes) }

type ArrayObj struct{ Items []Object }

func (*ArrayObj) Type() string { return "array" }

func (a *ArrayObj) Len() int {
	if a == nil {
		return 0
	}
	return len(a.Items)
}

func (a *ArrayObj) Get(i int) (Object, bool) {
	if a == nil || i < 0 || i >= len(a.Items) {
		return nil, false
	}
	return a.Items[i], true
}

func (a *ArrayObj) Append(o ...Object) { a.Items = append(a.Items, o...) }

// Floats returns the numeric items of a; ok is false if any item is not a
// direct number.
func (a *ArrayObj) Floats() ([]float64, bool) {
	if a == nil {
		return nil, false
	}
	out := make([]float64, 0, len(a.Items))
	for _, it := range a.Items {
		f, ok := Float(it)
		if !ok {
			return nil, false
		}
		out = append(out, f)
	}
	return out, true
}

type DictObj struct{ KV map[string]Object }

func (*DictObj) Type() string { return "dict" }

func (d *DictObj) Get(key string) (Object, bool) {
	if d == nil {
		return nil, false
	}
	o, ok := d.KV[key]
	return o, ok
}

func (d *DictObj) Set(key string, value Object) *DictObj {
	if d.KV == nil {
		d.KV = make(map[string]Object)
	}
	d.KV[key] = value
	return d
}

// Keys returns the keys in sorted order so serialization is stable.
func (d *DictObj) Keys() []string {
	if d == nil {
		return nil
	}
	keys := make([]string, 0, len(d.KV))
	for k := range d.KV {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (d *DictObj) Len() int {
	if d == nil {
		return 0
	}
	return len(d.KV)
}

// The typed accessors below do not follow indirect references; use the
// parser's resolving variants for objects read from a file.

func (d *DictObj) Name(key string) (string, bool) {
	o, _ := d.Get(key)
	n, ok := o.(NameObj)
	return n.Val, ok
}

func (d *DictObj) Int(key string) (int64, bool) {
	o, _ := d.Get(key)
	n, ok := o.(NumberObj)
	return n.Int(), ok
}

func (d *DictObj) Float(key string) (float64, bool) {
	o, _ := d.Get(key)
	return Float(o)
}

func (d *DictObj) Array(key string) (*ArrayObj, bool) {
	o, _ := d.Get(key)
	a, ok := o.(*ArrayObj)
	return a, ok
}

func (d *DictObj) Dict(key string) (*DictObj, bool) {
	o, _ := d.Get(key)
	v, ok := o.(*DictObj)
	return v, ok
}

func (d *DictObj) String(key string) ([]byte, bool) {
	o, _ := d.Get(key)
	s, ok := o.(StringObj)
	return s.Bytes, ok
}

// StreamObj is a stream dictionary plus its raw (still encoded) payload.
type StreamObj struct {
	Dict *DictObj
	Data []byte
}

func (*StreamObj) Type() string { return "stream" }

type RefObj struct{ R ObjectRef }

func (RefObj) Type() string { return "ref" }

// Float converts a direct number object.
func Float(o Object) (float64, bool) {
	n, ok := o.(NumberObj)
	if !ok {
		return 0, false
	}
	return n.Float(), true
}

func Name(v string) NameObj                            { return NameObj{Val: v} }
func Int(i int64) NumberObj                            { return NumberObj{I: i, IsInt: true} }
func Real(f float64) NumberObj                         { return NumberObj{F: f} }
func Bool(v bool) BoolObj                              { return BoolObj{V: v} }
func Str(b []byte) StringObj                           { return StringObj{Bytes: b} }
func HexStr(b []byte) StringObj                        { return StringObj{Bytes: b, Hex: true} }
func NewArray(items ...Object) *ArrayObj               { return &ArrayObj{Items: items} }
func Dict() *DictObj                                   { return &DictObj{KV: make(map[string]Object)} }
func NewStream(dict *DictObj, data []byte) *StreamObj  { return &StreamObj{Dict: dict, Data: data} }
func Ref(num, gen int) RefObj                          { return RefObj{R: ObjectRef{Num: num, Gen: gen}} }

// Floats builds an array of real numbers.
func Floats(vals ...float64) *ArrayObj {
	a := &ArrayObj{Items: make([]Object, len(vals))}
	for i, v := range vals {
		if v == float64(int64(v)) {
			a.Items[i] = Int(int64(v))
		} else {
			a.Items[i] = Real(v)
		}
	}
	return a
}
