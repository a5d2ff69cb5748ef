package compiler

import (
	"bytes"
	"fmt"
	"go/format"
	"io"
	"sort"

	"github.com/ngAnzar/rpc/core/typefactory"
)

// Flat merges the blocks of several documents into one dependency ordered
// Go file.
type Flat struct {
	pkg    string
	blocks map[string]*Block
}

// NewFlat collects the blocks of compilers, entities first.
func NewFlat(pkg string, compilers ...*Compiler) *Flat {
	f := &Flat{pkg: pkg, blocks: make(map[string]*Block)}
	for _, c := range compilers {
		f.Add(c.entities...)
	}
	for _, c := range compilers {
		f.Add(c.methods...)
		if c.data != nil {
			f.Add(c.data)
		}
		if c.aliases != nil {
			f.Add(c.aliases)
		}
	}
	return f
}

// Add stores blocks by key. A later block with the same key wins.
func (f *Flat) Add(blocks ...*Block) {
	for _, b := range blocks {
		f.blocks[b.Key] = b
	}
}

// AddFactory adds the routines of fac as one block placed after the
// entities they construct.
func (f *Flat) AddFactory(fac *typefactory.Factory) error {
	var buf bytes.Buffer
	if err := fac.Render(&buf); err != nil {
		return err
	}
	b := &Block{Key: FactoryKey, Content: buf.String()}
	for _, e := range fac.References() {
		b.depend(e.Name.UID())
	}
	f.Add(b)
	return nil
}

// Len returns the number of blocks.
func (f *Flat) Len() int { return len(f.blocks) }

// Order returns the block keys so that every block follows the blocks it
// depends on. Keys are visited in sorted order; each one is appended if
// absent, then its dependencies are moved in front of it, recursively.
// Members of a dependency cycle keep the order in which they were first
// placed.
func (f *Flat) Order() []string {
	keys := make([]string, 0, len(f.blocks))
	for k := range f.blocks {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var order []string
	for _, k := range keys {
		order = f.place(order, k, map[string]bool{})
	}
	return order
}

func (f *Flat) place(order []string, key string, visiting map[string]bool) []string {
	if visiting[key] {
		return order
	}
	visiting[key] = true
	defer delete(visiting, key)

	if indexOf(order, key) < 0 {
		order = append(order, key)
	}
	for _, dep := range f.blocks[key].Deps {
		if _, ok := f.blocks[dep]; !ok || visiting[dep] {
			continue
		}
		at := indexOf(order, key)
		switch di := indexOf(order, dep); {
		case di < 0:
			order = insertAt(order, at, dep)
		case di > at:
			order = insertAt(removeAt(order, di), at, dep)
		}
		order = f.place(order, dep, visiting)
	}
	return order
}

func indexOf(order []string, key string) int {
	for i, k := range order {
		if k == key {
			return i
		}
	}
	return -1
}

func insertAt(order []string, i int, key string) []string {
	order = append(order, "")
	copy(order[i+1:], order[i:])
	order[i] = key
	return order
}

func removeAt(order []string, i int) []string {
	return append(order[:i], order[i+1:]...)
}

// Render writes the ordered blocks as one formatted Go file.
func (f *Flat) Render(w io.Writer) error {
	order := f.Order()
	blocks := make([]*Block, len(order))
	for i, k := range order {
		blocks[i] = f.blocks[k]
	}
	return renderFile(w, f.pkg, blocks)
}

func renderFile(w io.Writer, pkg string, blocks []*Block) error {
	contents := make([]string, len(blocks))
	for i, b := range blocks {
		contents[i] = b.Content
	}
	data := struct {
		Package string
		Imports []string
		Blocks  []string
	}{pkg, importsOf(blocks), contents}

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "file", data); err != nil {
		return fmt.Errorf("render file: %w", err)
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return fmt.Errorf("format generated code: %w", err)
	}
	_, err = w.Write(src)
	return err
}
