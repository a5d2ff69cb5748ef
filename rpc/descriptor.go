package rpc

// FieldDescriptor describes one generated entity field.
type FieldDescriptor struct {
	Name    string // wire name
	GoName  string
	Type    string // Go type expression
	Primary bool
	Factory string // decoding routine
}

// EntityDescriptor describes a generated entity.
type EntityDescriptor struct {
	Name        string // dotted schema name
	Module      string
	PolymorphID []string // discriminator values inside the parent union
	Fields      []FieldDescriptor
}

// PrimaryKey returns the wire names of the primary key fields.
func (d EntityDescriptor) PrimaryKey() []string {
	var keys []string
	for _, f := range d.Fields {
		if f.Primary {
			keys = append(keys, f.Name)
		}
	}
	return keys
}

// Field returns a field by wire name.
func (d EntityDescriptor) Field(name string) (FieldDescriptor, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDescriptor{}, false
}

// Provider is a generated client that a container can instantiate.
type Provider struct {
	Name    string
	Module  string
	Methods []string
	New     func(c Caller) any
}

// Registrar receives the providers of generated modules.
type Registrar interface {
	Register(p Provider) error
}
