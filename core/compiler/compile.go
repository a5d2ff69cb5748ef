package compiler

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"reflect"
	"sort"

	"github.com/ngAnzar/rpc/adapters/clock"
	"github.com/ngAnzar/rpc/adapters/fsio"
	"github.com/ngAnzar/rpc/adapters/idgen"
	"github.com/ngAnzar/rpc/core/registry"
	"github.com/ngAnzar/rpc/core/schema"
	"github.com/ngAnzar/rpc/ports"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/blake2b"
)

// Layout selects how generated code is split into files.
type Layout string

const (
	// LayoutFlat writes every document into one file.
	LayoutFlat Layout = "flat"
	// LayoutFiles writes one file per document plus a shared factory file.
	LayoutFiles Layout = "files"
)

// Names of the shared output files.
const (
	FlatFile    = "rpc_output.gen.go"
	FactoryFile = "rpc_factory.gen.go"
)

// DefaultPackage is the package clause of generated files.
const DefaultPackage = "api"

// Options configures a compile run.
type Options struct {
	Inputs  []string // absolute document paths
	OutPath string   // output directory
	Package string
	Layout  Layout

	Docs   schema.DocumentSource // a fresh registry when nil
	Writer ports.OutputWriter
	Cache  ports.BuildCache // optional
	IDs    ports.IDGenerator
	Clock  ports.Clock
	Logger zerolog.Logger
}

// Output is one generated file.
type Output struct {
	Path    string
	Content []byte
	Skipped bool // unchanged since the last run

	origin string // document path or module name
}

// Result describes a finished run.
type Result struct {
	RunID     string
	Documents []*schema.Document
	Outputs   []Output
	Modules   int
	Routines  int
	Written   int
	Skipped   int
}

func (o *Options) setDefaults() error {
	if o.Package == "" {
		o.Package = DefaultPackage
	}
	if o.Layout == "" {
		o.Layout = LayoutFlat
	}
	if o.Writer == nil {
		o.Writer = fsio.OS{}
	}
	if isNil(o.Cache) {
		o.Cache = nil
	}
	if o.IDs == nil {
		o.IDs = idgen.UUID{}
	}
	if o.Clock == nil {
		o.Clock = clock.Real{}
	}
	if o.Docs == nil {
		reg, err := registry.New(registry.WithLogger(o.Logger))
		if err != nil {
			return err
		}
		o.Docs = reg
	}
	switch o.Layout {
	case LayoutFlat, LayoutFiles:
	default:
		return fmt.Errorf("unknown layout %q", o.Layout)
	}
	return nil
}

// isNil reports whether c is nil or an interface holding a nil pointer.
func isNil(c ports.BuildCache) bool {
	if c == nil {
		return true
	}
	v := reflect.ValueOf(c)
	return v.Kind() == reflect.Ptr && v.IsNil()
}

// Compile compiles the input documents and every document they reference,
// then writes the generated files.
func Compile(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.setDefaults(); err != nil {
		return nil, err
	}
	run := ports.Run{
		ID:        opts.IDs.New(),
		Inputs:    opts.Inputs,
		StartedAt: opts.Clock.Now(),
	}
	logger := opts.Logger.With().Str("run_id", run.ID).Logger()
	logger.Info().Int("inputs", len(opts.Inputs)).Str("layout", string(opts.Layout)).Msg("compile started")

	if opts.Cache != nil {
		if err := opts.Cache.BeginRun(ctx, run); err != nil {
			return nil, fmt.Errorf("begin run: %w", err)
		}
	}

	res, err := compile(ctx, opts, run.ID, logger)
	if res == nil {
		res = &Result{}
	}
	res.RunID = run.ID

	run.FinishedAt = opts.Clock.Now()
	run.Written, run.Skipped = res.Written, res.Skipped
	if err != nil {
		run.Error = err.Error()
	}
	if opts.Cache != nil {
		if ferr := opts.Cache.FinishRun(ctx, run); ferr != nil {
			logger.Warn().Err(ferr).Msg("failed to record run")
		}
	}
	if err != nil {
		logger.Error().Err(err).Msg("compile failed")
		return nil, err
	}

	logger.Info().
		Int("documents", len(res.Documents)).
		Int("routines", res.Routines).
		Int("written", res.Written).
		Int("skipped", res.Skipped).
		Dur("duration", run.FinishedAt.Sub(run.StartedAt)).
		Msg("compile finished")
	return res, nil
}

func compile(ctx context.Context, opts Options, runID string, logger zerolog.Logger) (*Result, error) {
	s := NewSession(opts.Docs, logger)
	res := &Result{}

	var queue []*schema.Document
	for _, in := range opts.Inputs {
		doc, err := opts.Docs.Get(in)
		if err != nil {
			return nil, err
		}
		queue = append(queue, doc)
	}

	var compilers []*Compiler
	done := map[string]bool{}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc := queue[0]
		queue = queue[1:]
		if done[doc.Path] {
			continue
		}
		done[doc.Path] = true

		c := New(doc, s)
		if err := c.Compile(); err != nil {
			return nil, fmt.Errorf("compile %s: %w", doc.Path, err)
		}
		compilers = append(compilers, c)
		res.Documents = append(res.Documents, doc)
		queue = append(queue, c.Foreign()...)
	}

	outputs, err := render(opts, s, compilers)
	if err != nil {
		return nil, err
	}
	modules := Modules(s, compilers)
	for _, m := range modules {
		if m.Empty() {
			logger.Debug().Str("module", m.Parent).Msg("module has nothing to export, skipped")
			continue
		}
		var buf bytes.Buffer
		if err := RenderModule(&buf, opts.Package, m, modules); err != nil {
			return nil, err
		}
		outputs = append(outputs, Output{
			Path:    filepath.Join(opts.OutPath, m.FileName()),
			Content: buf.Bytes(),
			origin:  "module " + m.Parent,
		})
		res.Modules++
	}
	res.Routines = s.Factory.Len()
	if err := checkPaths(outputs); err != nil {
		return nil, err
	}

	sort.Slice(outputs, func(i, j int) bool { return outputs[i].Path < outputs[j].Path })
	for i := range outputs {
		if err := write(ctx, opts, runID, &outputs[i]); err != nil {
			return nil, err
		}
		if outputs[i].Skipped {
			res.Skipped++
		} else {
			res.Written++
		}
	}
	res.Outputs = outputs
	return res, nil
}

func render(opts Options, s *Session, compilers []*Compiler) ([]Output, error) {
	if opts.Layout == LayoutFlat {
		path := filepath.Join(opts.OutPath, FlatFile)
		f := NewFlat(opts.Package, compilers...)
		if err := f.AddFactory(s.Factory); err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := f.Render(&buf); err != nil {
			return nil, err
		}
		for _, c := range compilers {
			c.doc.OutPath = path
		}
		return []Output{{Path: path, Content: buf.Bytes(), origin: "flat output"}}, nil
	}

	var outputs []Output
	for _, c := range compilers {
		c.doc.OutPath = filepath.Join(opts.OutPath, fileStem(c.doc.Module.Parent)+"_"+fileStem(c.doc.Module.Name)+".gen.go")
		if len(c.Blocks()) == 0 {
			continue
		}
		var buf bytes.Buffer
		if err := NewFlat(opts.Package, c).Render(&buf); err != nil {
			return nil, fmt.Errorf("render %s: %w", c.doc.Path, err)
		}
		outputs = append(outputs, Output{Path: c.doc.OutPath, Content: buf.Bytes(), origin: c.doc.Path})
	}
	if s.Factory.Len() > 0 {
		f := NewFlat(opts.Package)
		if err := f.AddFactory(s.Factory); err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := f.Render(&buf); err != nil {
			return nil, err
		}
		outputs = append(outputs, Output{Path: filepath.Join(opts.OutPath, FactoryFile), Content: buf.Bytes(), origin: "factory"})
	}
	return outputs, nil
}

// checkPaths rejects runs where two outputs map to the same file, which
// happens when module and document names differ only in separators.
func checkPaths(outputs []Output) error {
	seen := make(map[string]string, len(outputs))
	for _, out := range outputs {
		if prev, ok := seen[out.Path]; ok {
			return fmt.Errorf("output %s of %s collides with %s", out.Path, out.origin, prev)
		}
		seen[out.Path] = out.origin
	}
	return nil
}

// write stores out unless the cache holds the same digest for its path and
// the file is still present.
func write(ctx context.Context, opts Options, runID string, out *Output) error {
	sum := blake2b.Sum256(out.Content)
	digest := hex.EncodeToString(sum[:])

	if opts.Cache != nil {
		prev, ok, err := opts.Cache.Digest(ctx, out.Path)
		if err != nil {
			return fmt.Errorf("read digest of %s: %w", out.Path, err)
		}
		if ok && prev == digest {
			exists, err := opts.Writer.Exists(out.Path)
			if err != nil {
				return fmt.Errorf("stat %s: %w", out.Path, err)
			}
			if exists {
				out.Skipped = true
				return nil
			}
		}
	}
	if err := opts.Writer.WriteFile(out.Path, out.Content); err != nil {
		return err
	}
	if opts.Cache != nil {
		if err := opts.Cache.Record(ctx, runID, out.Path, digest); err != nil {
			return fmt.Errorf("record digest of %s: %w", out.Path, err)
		}
	}
	return nil
}
