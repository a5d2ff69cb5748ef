package schema

import "fmt"

// Method is a named remote call.
type Method struct {
	Name    QName
	Params  []*Param
	Returns Returns
	Throws  []Throw

	paramByName map[string]*Param
}

// Param is one method parameter.
type Param struct {
	Name        string
	Type        Type
	Optional    bool
	Summary     string
	Description string
}

// IsOptional reports whether the caller may omit the parameter, either by
// flag or because its type is nullable.
func (p *Param) IsOptional() bool {
	if p.Optional {
		return true
	}
	_, ok := p.Type.(*Optional)
	return ok
}

// Returns describes the result of a method.
type Returns struct {
	Type        Type
	Summary     string
	Description string
}

// Throw is an error condition a method declares.
type Throw struct {
	Code        int
	Message     string
	Data        any
	Summary     string
	Description string
}

// NewMethod creates a method without parameters.
func NewMethod(name QName, returns Returns) *Method {
	return &Method{Name: name, Returns: returns, paramByName: make(map[string]*Param)}
}

// AddParam appends a parameter, keeping declaration order.
func (m *Method) AddParam(p *Param) error {
	if _, exists := m.paramByName[p.Name]; exists {
		return fmt.Errorf("method %s: duplicate param %q", m.Name.FullName(), p.Name)
	}
	m.paramByName[p.Name] = p
	m.Params = append(m.Params, p)
	return nil
}

// Resolve resolves parameter and return types.
func (m *Method) Resolve(r Resolver) error {
	for _, p := range m.Params {
		if err := p.Type.Resolve(r); err != nil {
			return fmt.Errorf("%s(%s): %w", m.Name.FullName(), p.Name, err)
		}
	}
	if err := m.Returns.Type.Resolve(r); err != nil {
		return fmt.Errorf("%s returns: %w", m.Name.FullName(), err)
	}
	return nil
}

// JSONLookup exposes parameters and the return type to JSON pointers.
func (m Method) JSONLookup(token string) (any, error) {
	switch token {
	case "params":
		return paramIndex(m.paramByName), nil
	case "returns":
		return m.Returns, nil
	}
	return nil, fmt.Errorf("method %s has no %q", m.Name.FullName(), token)
}

type paramIndex map[string]*Param

func (idx paramIndex) JSONLookup(token string) (any, error) {
	if p, ok := idx[token]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("no param %q", token)
}

func (p Param) JSONLookup(token string) (any, error) {
	if token == "type" {
		return p.Type, nil
	}
	return nil, fmt.Errorf("param %s has no %q", p.Name, token)
}

func (r Returns) JSONLookup(token string) (any, error) {
	if token == "type" {
		return r.Type, nil
	}
	return nil, fmt.Errorf("returns has no %q", token)
}
