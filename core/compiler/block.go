package compiler

import (
	"sort"

	"github.com/ngAnzar/rpc/core/schema"
	"github.com/ngAnzar/rpc/core/typefactory"
)

// Keys of blocks that do not belong to a single declaration.
const (
	FactoryKey = "#FACTORY"
	dataKey    = "#DATA"
	aliasKey   = "#ALIASES"
)

// Block is one rendered piece of generated code.
type Block struct {
	Key     string
	Doc     *schema.Document // nil for the factory block
	Content string
	Deps    []string // keys of blocks that must come first
}

func (b *Block) depend(key string) {
	if key == b.Key {
		return
	}
	for _, d := range b.Deps {
		if d == key {
			return
		}
	}
	b.Deps = append(b.Deps, key)
}

// Imports returns the packages the block content uses.
func (b *Block) Imports() []string {
	return typefactory.PackagesOf(b.Content)
}

func importsOf(blocks []*Block) []string {
	seen := map[string]bool{}
	var out []string
	for _, b := range blocks {
		for _, pkg := range b.Imports() {
			if !seen[pkg] {
				seen[pkg] = true
				out = append(out, pkg)
			}
		}
	}
	sort.Strings(out)
	return out
}
