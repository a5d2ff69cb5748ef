// Package typefactory builds the decoding routines of generated code. Every
// structurally distinct type gets exactly one routine; types with the same
// UID share it.
package typefactory

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/ngAnzar/rpc/core/schema"
)

// Prefix of every routine identifier.
const Prefix = "rpcFactory"

// Namer maps an entity to the Go identifier of its generated struct.
type Namer interface {
	EntityName(e *schema.Entity) string
}

// NamerFunc adapts a function to Namer.
type NamerFunc func(e *schema.Entity) string

func (f NamerFunc) EntityName(e *schema.Entity) string { return f(e) }

// Routine is one generated decoding routine.
type Routine struct {
	Name   string
	UID    string
	GoType string
	Body   string // complete Go declaration
	native bool
}

// Factory is the run-scoped routine table.
type Factory struct {
	mu       sync.Mutex
	namer    Namer
	byKey    map[string]*Routine
	routines []*Routine
	refs     map[string]*schema.Entity
	next     int
}

// New creates an empty table.
func New(namer Namer) *Factory {
	return &Factory{
		namer: namer,
		byKey: make(map[string]*Routine),
		refs:  make(map[string]*schema.Entity),
	}
}

// Get returns the name of the routine decoding t, creating it on first use.
func (f *Factory) Get(t schema.Type) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.get(t)
	if err != nil {
		return "", err
	}
	return r.Name, nil
}

// GoType returns the Go type expression the routine of t produces.
func (f *Factory) GoType(t schema.Type) (string, error) {
	return GoType(t, f.namer.EntityName)
}

func (f *Factory) get(t schema.Type) (*Routine, error) {
	key := t.UID()
	if r, ok := f.byKey[key]; ok {
		return r, nil
	}
	r, err := f.create(t)
	if err != nil {
		return nil, err
	}
	f.byKey[key] = r
	return r, nil
}

func (f *Factory) create(t schema.Type) (*Routine, error) {
	switch t := t.(type) {
	case *schema.Native:
		return f.native(t.Name, t.UID())
	case *schema.List:
		item, err := f.get(t.Item)
		if err != nil {
			return nil, err
		}
		return f.add(t.UID(), "[]"+item.GoType, "rpc.NewList(raw, "+item.Name+")"), nil
	case *schema.Mapping:
		if n, ok := t.Item.(*schema.Native); ok && n.Name == schema.NativeAny {
			return f.helper("AnyMapping", t.UID(), "map[string]any", "rpc.ParseAnyMapping"), nil
		}
		item, err := f.get(t.Item)
		if err != nil {
			return nil, err
		}
		return f.add(t.UID(), "map[string]"+item.GoType, "rpc.NewMapping(raw, "+item.Name+")"), nil
	case *schema.Tuple:
		args := make([]string, len(t.Items))
		for i, it := range t.Items {
			item, err := f.get(it)
			if err != nil {
				return nil, err
			}
			args[i] = "rpc.Erase(" + item.Name + ")"
		}
		return f.add(t.UID(), "[]any", "rpc.NewTuple(raw, "+strings.Join(args, ", ")+")"), nil
	case *schema.Optional:
		item, err := f.get(t.Item)
		if err != nil {
			return nil, err
		}
		if Nilable(item.GoType) {
			return f.add(t.UID(), item.GoType, "rpc.NewNullable(raw, "+item.Name+")"), nil
		}
		return f.add(t.UID(), "*"+item.GoType, "rpc.NewOptional(raw, "+item.Name+")"), nil
	case *schema.Reference:
		if target, ok := t.Type(); ok {
			return f.get(target)
		}
		ent, ok := t.Entity()
		if !ok {
			return nil, fmt.Errorf("%s: %w", t.Ref, schema.ErrInvalidTarget)
		}
		f.refs[ent.Name.UID()] = ent
		if ent.Polymorph != nil {
			return f.get(ent.Polymorph)
		}
		return f.entity(ent), nil
	case *schema.Polymorphic:
		return f.polymorphic(t)
	default:
		return nil, &schema.InternalError{Op: "build factory", Value: t}
	}
}

// entity returns the routine constructing ent directly, bypassing its union
// form.
func (f *Factory) entity(ent *schema.Entity) *Routine {
	key := "entity:" + ent.Name.UID()
	if r, ok := f.byKey[key]; ok {
		return r
	}
	name := f.namer.EntityName(ent)
	r := f.add(ent.Name.UID(), "*"+name, "rpc.NewEntity["+name+"](raw)")
	f.byKey[key] = r
	return r
}

func (f *Factory) polymorphic(t *schema.Polymorphic) (*Routine, error) {
	field, ok := t.SingleField()
	if !ok {
		return nil, &schema.NotImplementedError{Feature: "multi field polymorphic mapping"}
	}

	var b strings.Builder
	b.WriteString("rpc.Dispatch(raw, " + strconv.Quote(field) + ", map[string]func(any) (any, error){\n")
	for _, arm := range t.Arms {
		var item *Routine
		if ent, ok := arm.Type.Entity(); ok {
			f.refs[ent.Name.UID()] = ent
			item = f.entity(ent)
		} else {
			var err error
			if item, err = f.get(arm.Type); err != nil {
				return nil, err
			}
		}
		fmt.Fprintf(&b, "%s: rpc.Erase(%s),\n", strconv.Quote(strings.Join(arm.ID.Values, "@")), item.Name)
	}
	b.WriteString("})")
	return f.add(t.UID(), "any", b.String()), nil
}

var nativeHelpers = map[string]struct{ suffix, goType, parse string }{
	schema.NativeString:   {"String", "string", "rpc.ParseString"},
	schema.NativeInteger:  {"Integer", "int64", "rpc.ParseInteger"},
	schema.NativeNumber:   {"Number", "float64", "rpc.ParseNumber"},
	schema.NativeBoolean:  {"Boolean", "bool", "rpc.ParseBoolean"},
	schema.NativeDate:     {"Date", "time.Time", "rpc.ParseDate"},
	schema.NativeDateTime: {"DateTime", "time.Time", "rpc.ParseDateTime"},
	schema.NativeTime:     {"Time", "rpc.Time", "rpc.ParseTime"},
	schema.NativeAny:      {"Any", "any", "rpc.ParseAny"},
	schema.NativeNull:     {"Null", "any", "rpc.ParseNull"},
}

func (f *Factory) native(name, uid string) (*Routine, error) {
	h, ok := nativeHelpers[name]
	if !ok {
		return nil, &schema.InternalError{Op: "native factory", Value: name}
	}
	return f.helper(h.suffix, uid, h.goType, h.parse), nil
}

// helper wraps a runtime parse function. It is a function rather than a
// variable so seed data decoded during package initialization can call it.
func (f *Factory) helper(suffix, uid, goType, fn string) *Routine {
	key := "helper:" + suffix
	if r, ok := f.byKey[key]; ok {
		return r
	}
	name := Prefix + suffix
	r := &Routine{
		Name:   name,
		UID:    uid,
		GoType: goType,
		Body:   "func " + name + "(raw any) (" + goType + ", error) {\n\treturn " + fn + "(raw)\n}",
		native: true,
	}
	f.byKey[key] = r
	f.routines = append(f.routines, r)
	return r
}

func (f *Factory) add(uid, goType, expr string) *Routine {
	f.next++
	name := Prefix + strconv.Itoa(f.next)
	r := &Routine{
		Name:   name,
		UID:    uid,
		GoType: goType,
		Body:   "func " + name + "(raw any) (" + goType + ", error) {\n\treturn " + expr + "\n}",
	}
	f.routines = append(f.routines, r)
	return r
}

// Routines returns the shared helpers sorted by name followed by the
// numbered routines in creation order.
func (f *Factory) Routines() []Routine {
	f.mu.Lock()
	defer f.mu.Unlock()

	var helpers, numbered []Routine
	for _, r := range f.routines {
		if r.native {
			helpers = append(helpers, *r)
		} else {
			numbered = append(numbered, *r)
		}
	}
	sort.Slice(helpers, func(i, j int) bool { return helpers[i].Name < helpers[j].Name })
	return append(helpers, numbered...)
}

// Len returns how many routines exist.
func (f *Factory) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.routines)
}

// References returns the entities the routines construct, sorted by UID.
func (f *Factory) References() []*schema.Entity {
	f.mu.Lock()
	defer f.mu.Unlock()

	keys := make([]string, 0, len(f.refs))
	for k := range f.refs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*schema.Entity, len(keys))
	for i, k := range keys {
		out[i] = f.refs[k]
	}
	return out
}

// Imports returns the packages the routine declarations use.
func (f *Factory) Imports() []string {
	imports := []string{}
	seen := map[string]bool{}
	for _, r := range f.Routines() {
		for _, pkg := range PackagesOf(r.GoType + " " + r.Body) {
			if !seen[pkg] {
				seen[pkg] = true
				imports = append(imports, pkg)
			}
		}
	}
	sort.Strings(imports)
	return imports
}

// Render writes every routine declaration.
func (f *Factory) Render(w io.Writer) error {
	for _, r := range f.Routines() {
		if _, err := io.WriteString(w, r.Body+"\n\n"); err != nil {
			return err
		}
	}
	return nil
}
