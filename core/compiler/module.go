package compiler

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/ngAnzar/rpc/core/schema"
)

// Module aggregates the documents that share a module parent.
type Module struct {
	Parent    string
	Name      string // Go name, e.g. AuthModule
	Docs      []*schema.Document
	Exports   []string
	Providers []string
	Deps      []string // parents of the modules this one references
}

// Empty reports whether the module has nothing to export or register.
func (m *Module) Empty() bool {
	return len(m.Exports) == 0 && len(m.Providers) == 0
}

// FileName is the name of the generated module file.
func (m *Module) FileName() string {
	return fileStem(m.Parent) + "_module.gen.go"
}

// Modules groups compilers by module parent, sorted by parent.
func Modules(s *Session, compilers []*Compiler) []*Module {
	byParent := map[string]*Module{}
	var parents []string
	for _, c := range compilers {
		parent := c.doc.Module.Parent
		m, ok := byParent[parent]
		if !ok {
			m = &Module{Parent: parent}
			byParent[parent] = m
			parents = append(parents, parent)
		}
		m.Docs = append(m.Docs, c.doc)
		m.Exports = mergeSorted(m.Exports, c.Exports())
		m.Providers = append(m.Providers, c.Providers()...)
		for _, d := range c.Foreign() {
			if d.Module.Parent != parent {
				m.Deps = mergeSorted(m.Deps, []string{d.Module.Parent})
			}
		}
	}
	sort.Strings(parents)
	out := make([]*Module, len(parents))
	for i, p := range parents {
		m := byParent[p]
		m.Name = s.Scope.Claim(moduleName(p), "module:"+p)
		out[i] = m
	}
	return out
}

// moduleName turns the last path element of parent into a Go identifier:
// "app/auth.v2" becomes AuthV2Module.
func moduleName(parent string) string {
	var b strings.Builder
	for _, part := range strings.Split(path.Base(parent), ".") {
		if part != "" {
			b.WriteString(GoName(part))
		}
	}
	return b.String() + "Module"
}

// RenderModule writes the module file of m. all holds every module of the
// run so that registration calls reach only modules that emit a file.
func RenderModule(w io.Writer, pkg string, m *Module, all []*Module) error {
	byParent := map[string]*Module{}
	for _, o := range all {
		byParent[o.Parent] = o
	}

	data := struct {
		Parent, ExportsVar, ImportsVar, Register string
		Exports, ImportNames, Calls, Providers   []string
	}{
		Parent:     m.Parent,
		ExportsVar: m.Name + "Exports",
		ImportsVar: m.Name + "Imports",
		Register:   "Register" + m.Name,
		Exports:    m.Exports,
		Providers:  m.Providers,
	}
	for _, dep := range m.Deps {
		d, ok := byParent[dep]
		if !ok {
			continue
		}
		data.ImportNames = append(data.ImportNames, d.Name)
		if !d.Empty() && !reaches(byParent, dep, m.Parent, map[string]bool{}) {
			data.Calls = append(data.Calls, "Register"+d.Name)
		}
	}

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "module", data); err != nil {
		return fmt.Errorf("render module %s: %w", m.Parent, err)
	}
	return renderFile(w, pkg, []*Block{{Key: "module:" + m.Parent, Content: buf.String()}})
}

// reaches reports whether module from depends on module to, directly or
// through other modules. Registration calls that would close a cycle are
// left out.
func reaches(byParent map[string]*Module, from, to string, seen map[string]bool) bool {
	if from == to {
		return true
	}
	if seen[from] {
		return false
	}
	seen[from] = true
	m, ok := byParent[from]
	if !ok {
		return false
	}
	for _, d := range m.Deps {
		if reaches(byParent, d, to, seen) {
			return true
		}
	}
	return false
}

func mergeSorted(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string(nil), a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// fileStem flattens a module path into a file name prefix.
func fileStem(s string) string {
	s = strings.Trim(s, "/.")
	if s == "" {
		return "root"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '.', '\\', ' ', '-':
			return '_'
		}
		return r
	}, s)
}
