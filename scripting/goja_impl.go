package scripting

import (
	"context"
	"errors"
	"fmt"

	"github.com/dop251/goja"

	"github.com/wudi/charterkit/charter"
	"github.com/wudi/charterkit/fields"
	"github.com/wudi/charterkit/observability"
)

type GojaEngine struct {
	vm *goja.Runtime
}

func NewEngine() *GojaEngine {
	vm := goja.New()
	return &GojaEngine{vm: vm}
}

func (e *GojaEngine) Execute(ctx context.Context, script string) (interface{}, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	done := make(chan struct{})
	defer close(done)
	defer e.vm.ClearInterrupt()

	go func() {
		select {
		case <-ctx.Done():
			e.vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	val, err := e.vm.RunString(script)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			if cause := interrupted.Unwrap(); cause != nil {
				return nil, cause
			}
			return nil, context.Canceled
		}
		return nil, err
	}
	return val.Export(), nil
}

func (e *GojaEngine) RegisterDOM(dom CharterDOM) error {
	app := e.vm.NewObject()
	err := app.Set("alert", func(call goja.FunctionCall) goja.Value {
		msg := ""
		if len(call.Arguments) > 0 {
			msg = call.Arguments[0].String()
		}
		dom.Alert(msg)
		return goja.Undefined()
	})
	if err != nil {
		return err
	}
	if err := e.vm.Set("app", app); err != nil {
		return err
	}
	if err := e.vm.Set("numFields", dom.NumFields()); err != nil {
		return err
	}

	err = e.vm.Set("getField", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			return goja.Undefined()
		}
		field, err := dom.GetField(call.Arguments[0].String())
		if err != nil || field == nil {
			return goja.Null()
		}

		obj := e.vm.NewObject()
		_ = obj.Set("number", field.Number())
		_ = obj.Set("label", field.Label())
		_ = obj.DefineAccessorProperty("value",
			e.vm.ToValue(func(goja.FunctionCall) goja.Value {
				return e.vm.ToValue(field.GetValue())
			}),
			e.vm.ToValue(func(call goja.FunctionCall) goja.Value {
				if len(call.Arguments) > 0 {
					field.SetValue(call.Arguments[0].Export())
				}
				return goja.Undefined()
			}),
			goja.FLAG_TRUE,
			goja.FLAG_TRUE,
		)
		return obj
	})
	if err != nil {
		return err
	}

	return e.vm.Set("clauses", func(goja.FunctionCall) goja.Value {
		views := dom.Clauses()
		out := make([]interface{}, len(views))
		for i, c := range views {
			lines := make([]interface{}, len(c.Lines))
			for j, l := range c.Lines {
				var number interface{}
				if l.Number != nil {
					number = *l.Number
				}
				lines[j] = map[string]interface{}{"number": number, "text": l.Text, "origin": l.Origin}
			}
			out[i] = map[string]interface{}{"number": c.Number, "title": c.Title, "lines": lines}
		}
		return e.vm.ToValue(out)
	})
}

// Rule is a named script.
type Rule struct {
	Name   string
	Source string
}

// Run executes rules in order against set and the recap clauses and
// returns the updated fields with any alerts raised. The first failing
// rule stops the run.
func Run(ctx context.Context, set fields.Set, recap *charter.Document, rules []Rule, log observability.Logger) (fields.Set, []string, error) {
	log = observability.OrNop(log)
	doc := NewDocument(set, recap, log)
	if len(rules) == 0 {
		return doc.Fields(), nil, nil
	}
	engine := NewEngine()
	if err := engine.RegisterDOM(doc); err != nil {
		return nil, nil, fmt.Errorf("scripting: register: %w", err)
	}
	for _, r := range rules {
		if _, err := engine.Execute(ctx, r.Source); err != nil {
			return nil, doc.Alerts(), fmt.Errorf("scripting: rule %s: %w", r.Name, err)
		}
		log.Debug("rule executed", observability.String("rule", r.Name))
	}
	return doc.Fields(), doc.Alerts(), nil
}
