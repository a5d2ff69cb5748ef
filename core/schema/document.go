package schema

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Module is the logical identity of a document.
type Module struct {
	Parent string // value of the top-level "module" key
	Name   string // file name without its last extension
}

// Document is one parsed schema file.
type Document struct {
	Path     string
	Module   Module
	Entities []*Entity
	Methods  []*Method
	OutPath  string // assigned when the document is emitted

	entityByName map[string]*Entity
	methodByName map[string]*Method
}

// NewDocument builds the declarations of a validated document. Types are
// left unresolved; call ResolveTypes once the document is reachable from
// the resolver.
func NewDocument(path string, raw *Object) (*Document, error) {
	base := filepath.Base(path)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	doc := &Document{
		Path:         path,
		Module:       Module{Parent: raw.String("module"), Name: base},
		entityByName: make(map[string]*Entity),
		methodByName: make(map[string]*Method),
	}
	b := builder{doc: doc}
	if ents := raw.Object("entities"); ents != nil {
		if err := b.entities(ents); err != nil {
			return nil, err
		}
	}
	if mets := raw.Object("methods"); mets != nil {
		if err := b.methods(mets); err != nil {
			return nil, err
		}
	}
	if data := raw.Object("data"); data != nil {
		if err := b.data(data); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

// Entity returns a local entity by dotted name.
func (d *Document) Entity(name string) (*Entity, bool) {
	e, ok := d.entityByName[name]
	return e, ok
}

// Method returns a local method by dotted name.
func (d *Document) Method(name string) (*Method, bool) {
	m, ok := d.methodByName[name]
	return m, ok
}

// ResolveTypes resolves every type of the document, then rejects types that
// only ever point back at themselves.
func (d *Document) ResolveTypes(r Resolver) error {
	for _, e := range d.Entities {
		if err := e.Resolve(r); err != nil {
			return err
		}
	}
	for _, m := range d.Methods {
		if err := m.Resolve(r); err != nil {
			return err
		}
	}
	for _, e := range d.Entities {
		for _, f := range e.Fields {
			if err := checkFinite(f.Type, nil); err != nil {
				return fmt.Errorf("%s.%s: %w", e.Name.FullName(), f.Name, err)
			}
		}
	}
	for _, m := range d.Methods {
		for _, p := range m.Params {
			if err := checkFinite(p.Type, nil); err != nil {
				return fmt.Errorf("%s(%s): %w", m.Name.FullName(), p.Name, err)
			}
		}
		if err := checkFinite(m.Returns.Type, nil); err != nil {
			return fmt.Errorf("%s returns: %w", m.Name.FullName(), err)
		}
	}
	return nil
}

// checkFinite walks t without crossing entities. Reaching a node that is
// already on the path means the type has no finite shape.
func checkFinite(t Type, path []Type) error {
	for _, seen := range path {
		if seen == t {
			return ErrReferenceCycle
		}
	}
	path = append(path, t)
	switch t := t.(type) {
	case *Native:
		return nil
	case *List:
		return checkFinite(t.Item, path)
	case *Mapping:
		return checkFinite(t.Item, path)
	case *Optional:
		return checkFinite(t.Item, path)
	case *Tuple:
		for _, item := range t.Items {
			if err := checkFinite(item, path); err != nil {
				return err
			}
		}
		return nil
	case *Polymorphic:
		return nil
	case *Reference:
		if target, ok := t.Type(); ok {
			return checkFinite(target, path)
		}
		return nil
	default:
		return &InternalError{Op: "check type", Value: t}
	}
}

// JSONLookup exposes the document to JSON pointers.
func (d Document) JSONLookup(token string) (any, error) {
	switch token {
	case "entities":
		return entityIndex(d.entityByName), nil
	case "methods":
		return methodIndex(d.methodByName), nil
	}
	return nil, fmt.Errorf("document %s has no %q", d.Path, token)
}

type entityIndex map[string]*Entity

func (idx entityIndex) JSONLookup(token string) (any, error) {
	if e, ok := idx[token]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("no entity %q", token)
}

type methodIndex map[string]*Method

func (idx methodIndex) JSONLookup(token string) (any, error) {
	if m, ok := idx[token]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("no method %q", token)
}

type builder struct {
	doc *Document
}

func (b builder) entities(ents *Object) error {
	for _, name := range ents.Keys {
		def, ok := ents.Values[name].(*Object)
		if !ok {
			return fmt.Errorf("entity %s: definition must be an object", name)
		}
		ent := NewEntity(NewQName(b.doc.Path, PathEntities, name))
		if fields := def.Object("fields"); fields != nil {
			for _, fname := range fields.Keys {
				prop, _ := fields.Values[fname].(*Object)
				t, err := b.typeOf(prop.Value("type"))
				if err != nil {
					return fmt.Errorf("entity %s field %s: %w", name, fname, err)
				}
				f := &Field{Name: fname, Type: t, Summary: prop.String("summary"), Description: prop.String("description")}
				if err := ent.AddField(f); err != nil {
					return err
				}
			}
		}
		keys, err := stringList(def.Value("primaryKey"))
		if err != nil {
			return fmt.Errorf("entity %s primaryKey: %w", name, err)
		}
		for _, k := range keys {
			if _, ok := ent.Field(k); !ok {
				return fmt.Errorf("entity %s primaryKey: unknown field %q", name, k)
			}
		}
		ent.PrimaryKey = keys
		if poly := def.Object("polymorph"); poly != nil {
			p, err := b.polymorph(poly)
			if err != nil {
				return fmt.Errorf("entity %s polymorph: %w", name, err)
			}
			ent.Polymorph = p
		}
		if ent.PolymorphID, err = stringList(def.Value("polymorphId")); err != nil {
			return fmt.Errorf("entity %s polymorphId: %w", name, err)
		}
		b.doc.entityByName[name] = ent
		b.doc.Entities = append(b.doc.Entities, ent)
	}
	return nil
}

func (b builder) methods(mets *Object) error {
	for _, name := range mets.Keys {
		def, ok := mets.Values[name].(*Object)
		if !ok {
			return fmt.Errorf("method %s: definition must be an object", name)
		}
		ret := def.Object("returns")
		rt, err := b.typeOf(ret.Value("type"))
		if err != nil {
			return fmt.Errorf("method %s returns: %w", name, err)
		}
		met := NewMethod(NewQName(b.doc.Path, PathMethods, name), Returns{
			Type:        rt,
			Summary:     ret.String("summary"),
			Description: ret.String("description"),
		})
		if params := def.Object("params"); params != nil {
			for _, pname := range params.Keys {
				prop, _ := params.Values[pname].(*Object)
				pt, err := b.typeOf(prop.Value("type"))
				if err != nil {
					return fmt.Errorf("method %s param %s: %w", name, pname, err)
				}
				optional, _ := prop.Value("optional").(bool)
				p := &Param{
					Name:        pname,
					Type:        pt,
					Optional:    optional,
					Summary:     prop.String("summary"),
					Description: prop.String("description"),
				}
				if err := met.AddParam(p); err != nil {
					return err
				}
			}
		}
		if throws, ok := def.Value("throws").([]any); ok {
			for i, item := range throws {
				th, _ := item.(*Object)
				code, err := intValue(th.Value("code"))
				if err != nil {
					return fmt.Errorf("method %s throws[%d].code: %w", name, i, err)
				}
				met.Throws = append(met.Throws, Throw{
					Code:        code,
					Message:     th.String("message"),
					Data:        Plain(th.Value("data")),
					Summary:     th.String("summary"),
					Description: th.String("description"),
				})
			}
		}
		b.doc.methodByName[name] = met
		b.doc.Methods = append(b.doc.Methods, met)
	}
	return nil
}

func (b builder) data(data *Object) error {
	for _, name := range data.Keys {
		ent, ok := b.doc.entityByName[name]
		if !ok {
			return fmt.Errorf("data %s: unknown entity", name)
		}
		records, ok := data.Values[name].([]any)
		if !ok {
			return fmt.Errorf("data %s: records must be an array", name)
		}
		for i, rec := range records {
			m, ok := Plain(rec).(map[string]any)
			if !ok {
				return fmt.Errorf("data %s[%d]: record must be an object", name, i)
			}
			ent.Data = append(ent.Data, m)
		}
	}
	return nil
}

// typeOf builds a type from its raw form: a primitive name, an array read
// as a tuple, or an object with one constructor key.
func (b builder) typeOf(raw any) (Type, error) {
	switch v := raw.(type) {
	case string:
		if !IsNative(v) {
			return nil, fmt.Errorf("%w: %q", ErrUndefinedType, v)
		}
		return NewNative(v), nil
	case []any:
		items := make([]Type, len(v))
		for i, item := range v {
			t, err := b.typeOf(item)
			if err != nil {
				return nil, err
			}
			items[i] = t
		}
		return NewTuple(items...), nil
	case *Object:
		if ref := v.String("$ref"); ref != "" {
			return NewReference(ref, b.doc.Path)
		}
		if item, ok := v.Get("mapOf"); ok {
			t, err := b.typeOf(item)
			if err != nil {
				return nil, err
			}
			return NewMapping(t), nil
		}
		if item, ok := v.Get("listOf"); ok {
			t, err := b.typeOf(item)
			if err != nil {
				return nil, err
			}
			return NewList(t), nil
		}
		if item, ok := v.Get("optional"); ok {
			t, err := b.typeOf(item)
			if err != nil {
				return nil, err
			}
			return NewOptional(t), nil
		}
		poly := v.Object("polymorph")
		if poly == nil {
			poly = v.Object("polymorphic")
		}
		if poly != nil {
			return b.polymorph(poly)
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrUndefinedType, Plain(raw))
}

func (b builder) polymorph(def *Object) (*Polymorphic, error) {
	fields, err := stringList(def.Value("identity"))
	if err != nil {
		return nil, fmt.Errorf("identity: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("identity: at least one field is required")
	}
	mapping, _ := def.Value("mapping").([]any)
	p := &Polymorphic{}
	for i, item := range mapping {
		arm, _ := item.(*Object)
		values, err := stringList(arm.Value("id"))
		if err != nil {
			return nil, fmt.Errorf("mapping[%d].id: %w", i, err)
		}
		if len(values) != len(fields) {
			return nil, fmt.Errorf("mapping[%d]: incorrect number of id values in polymorphic mapping definition", i)
		}
		ref, err := NewReference(arm.String("$ref"), b.doc.Path)
		if err != nil {
			return nil, fmt.Errorf("mapping[%d]: %w", i, err)
		}
		p.Arms = append(p.Arms, PolymorphicArm{
			ID:   PolymorphicID{Fields: fields, Values: values},
			Type: ref,
		})
	}
	return p, nil
}

// stringList accepts a scalar or an array of scalars.
func stringList(raw any) ([]string, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []any:
		out := make([]string, len(v))
		for i, item := range v {
			s, err := scalarString(item)
			if err != nil {
				return nil, err
			}
			out[i] = s
		}
		return out, nil
	default:
		s, err := scalarString(v)
		if err != nil {
			return nil, err
		}
		return []string{s}, nil
	}
}

func scalarString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case bool:
		return strconv.FormatBool(x), nil
	}
	return "", fmt.Errorf("expected a scalar, got %T", v)
}

func intValue(v any) (int, error) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
	i, err := n.Int64()
	if err != nil {
		return 0, err
	}
	return int(i), nil
}
