package schema

import "fmt"

// Entity is a named record type.
type Entity struct {
	Name        QName
	Fields      []*Field
	PrimaryKey  []string
	Polymorph   *Polymorphic // union form of the entity itself
	PolymorphID []string     // discriminator values of the entity inside a parent union
	Data        []map[string]any

	fieldByName map[string]*Field
}

// Field is one entity field.
type Field struct {
	Name        string
	Type        Type
	Summary     string
	Description string
}

// NewEntity creates an empty entity.
func NewEntity(name QName) *Entity {
	return &Entity{Name: name, fieldByName: make(map[string]*Field)}
}

// AddField appends a field, keeping declaration order.
func (e *Entity) AddField(f *Field) error {
	if _, exists := e.fieldByName[f.Name]; exists {
		return fmt.Errorf("entity %s: duplicate field %q", e.Name.FullName(), f.Name)
	}
	e.fieldByName[f.Name] = f
	e.Fields = append(e.Fields, f)
	return nil
}

// Field returns a field by name.
func (e *Entity) Field(name string) (*Field, bool) {
	f, ok := e.fieldByName[name]
	return f, ok
}

// IsPrimary reports whether the field belongs to the primary key.
func (e *Entity) IsPrimary(field string) bool {
	for _, k := range e.PrimaryKey {
		if k == field {
			return true
		}
	}
	return false
}

// Resolve resolves the types of every field and of the union form.
func (e *Entity) Resolve(r Resolver) error {
	for _, f := range e.Fields {
		if err := f.Type.Resolve(r); err != nil {
			return fmt.Errorf("%s.%s: %w", e.Name.FullName(), f.Name, err)
		}
	}
	if e.Polymorph != nil {
		if err := e.Polymorph.Resolve(r); err != nil {
			return fmt.Errorf("%s polymorph: %w", e.Name.FullName(), err)
		}
	}
	return nil
}

// JSONLookup exposes the entity to JSON pointers.
func (e Entity) JSONLookup(token string) (any, error) {
	switch token {
	case "fields":
		return fieldIndex(e.fieldByName), nil
	case "polymorph":
		if e.Polymorph == nil {
			return nil, fmt.Errorf("entity %s has no polymorph", e.Name.FullName())
		}
		return e.Polymorph, nil
	}
	if f, ok := e.fieldByName[token]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("entity %s has no %q", e.Name.FullName(), token)
}

type fieldIndex map[string]*Field

func (idx fieldIndex) JSONLookup(token string) (any, error) {
	if f, ok := idx[token]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("no field %q", token)
}

// JSONLookup exposes the field type to JSON pointers.
func (f Field) JSONLookup(token string) (any, error) {
	if token == "type" {
		return f.Type, nil
	}
	return nil, fmt.Errorf("field %s has no %q", f.Name, token)
}
