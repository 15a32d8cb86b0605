// Package scripting runs JavaScript rule scripts over a recap's Part I
// fields and Part II clauses. Scripts see an Acrobat-like API: getField,
// numFields, clauses() and app.alert.
package scripting

import (
	"context"
)

// Engine represents a scripting engine.
type Engine interface {
	// Execute runs script and exports its completion value.
	Execute(ctx context.Context, script string) (interface{}, error)

	// RegisterDOM exposes the charter document to scripts.
	RegisterDOM(dom CharterDOM) error
}

// CharterDOM is the document surface scripts may read and modify.
type CharterDOM interface {
	// GetField looks a Part I slot up by number ("8") or label ("Laycan").
	GetField(key string) (FieldProxy, error)

	// NumFields is the number of Part I slots.
	NumFields() int

	// Clauses lists the Part II clauses.
	Clauses() []ClauseView

	// Alert reports a message from the script.
	Alert(message string)
}

// FieldProxy is a Part I slot exposed to scripts.
type FieldProxy interface {
	Number() int
	Label() string
	GetValue() interface{}
	SetValue(value interface{})
}

// ClauseView is the read-only clause shape handed to scripts.
type ClauseView struct {
	Number int        `json:"number"`
	Title  string     `json:"title"`
	Lines  []LineView `json:"lines"`
}

// LineView is one clause line. Number is nil when unnumbered.
type LineView struct {
	Number *int   `json:"number"`
	Text   string `json:"text"`
	Origin string `json:"origin"`
}
