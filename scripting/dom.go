package scripting

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/wudi/charterkit/charter"
	"github.com/wudi/charterkit/fields"
	"github.com/wudi/charterkit/observability"
)

// Document is the CharterDOM over a mapped field set and the recap clauses.
// Field writes go to the set it owns; read it back with Fields.
type Document struct {
	mu      sync.Mutex
	set     fields.Set
	clauses []charter.Clause
	alerts  []string
	log     observability.Logger
}

// NewDocument copies set so scripts never mutate the caller's map. recap
// may be nil.
func NewDocument(set fields.Set, recap *charter.Document, log observability.Logger) *Document {
	d := &Document{set: set.Clone(), log: observability.OrNop(log)}
	if recap != nil {
		d.clauses = recap.PartII
	}
	return d
}

// Fields returns a copy of the current values.
func (d *Document) Fields() fields.Set {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.set.Clone()
}

// Alerts returns the messages raised with app.alert.
func (d *Document) Alerts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.alerts...)
}

func (d *Document) GetField(key string) (FieldProxy, error) {
	key = strings.TrimSpace(key)
	if n, err := strconv.Atoi(strings.TrimSuffix(key, ".")); err == nil {
		if fields.Label(n) == "" {
			return nil, fmt.Errorf("scripting: no field %d", n)
		}
		return &fieldProxy{doc: d, n: n}, nil
	}
	for n := 1; n <= charter.FieldCount; n++ {
		if strings.EqualFold(fields.Labels[n], key) {
			return &fieldProxy{doc: d, n: n}, nil
		}
		d.mu.Lock()
		orig := d.set[n].OriginalLabel
		d.mu.Unlock()
		if orig != "" && strings.EqualFold(orig, key) {
			return &fieldProxy{doc: d, n: n}, nil
		}
	}
	return nil, fmt.Errorf("scripting: no field %q", key)
}

func (d *Document) NumFields() int { return charter.FieldCount }

func (d *Document) Clauses() []ClauseView {
	out := make([]ClauseView, len(d.clauses))
	for i, c := range d.clauses {
		v := ClauseView{Number: c.Number, Title: c.Title, Lines: make([]LineView, len(c.Lines))}
		for j, l := range c.Lines {
			v.Lines[j] = LineView{Number: l.Number, Text: l.Text, Origin: string(l.Origin)}
		}
		out[i] = v
	}
	return out
}

func (d *Document) Alert(message string) {
	d.mu.Lock()
	d.alerts = append(d.alerts, message)
	d.mu.Unlock()
	d.log.Warn("rule alert", observability.String("message", message))
}

type fieldProxy struct {
	doc *Document
	n   int
}

func (f *fieldProxy) Number() int   { return f.n }
func (f *fieldProxy) Label() string { return fields.Labels[f.n] }

func (f *fieldProxy) GetValue() interface{} {
	f.doc.mu.Lock()
	defer f.doc.mu.Unlock()
	return f.doc.set[f.n].Value
}

func (f *fieldProxy) SetValue(value interface{}) {
	s := ""
	if value != nil {
		s = strings.TrimSpace(fmt.Sprint(value))
	}
	f.doc.mu.Lock()
	m, ok := f.doc.set[f.n]
	if !ok {
		m = fields.Mapped{Number: f.n, Label: fields.Labels[f.n]}
	}
	m.Value = s
	f.doc.set[f.n] = m
	f.doc.mu.Unlock()
	f.doc.log.Debug("rule set field", observability.Int("field", f.n), observability.String("value", s))
}
