// Package raw is the untyped PDF object model produced by the scanner and
// consumed by the parser, the extractor and the writer.
package raw

import "fmt"

// ObjectRef uniquely identifies an indirect PDF object.
type ObjectRef struct {
	Num int
	Gen int
}

func (r ObjectRef) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// Object is the base interface for all raw PDF objects.
type Object interface {
	Type() string
}

// Document is a flat collection of indirect objects plus the trailer.
type Document struct {
	Objects map[ObjectRef]Object
	Trailer *DictObj
	Version string // e.g. "1.7"
}

// NewDocument returns an empty document for the given header version.
func NewDocument(version string) *Document {
	return &Document{Objects: make(map[ObjectRef]Object), Trailer: Dict(), Version: version}
}

// Add stores obj under the next free object number and returns its reference.
func (d *Document) Add(obj Object) RefObj {
	next := 1
	for ref := range d.Objects {
		if ref.Num >= next {
			next = ref.Num + 1
		}
	}
	ref := ObjectRef{Num: next}
	d.Objects[ref] = obj
	return RefObj{R: ref}
}
