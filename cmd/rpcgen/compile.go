package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/ngAnzar/rpc/adapters/sqlite"
	"github.com/ngAnzar/rpc/config"
	"github.com/ngAnzar/rpc/core/compiler"
	"github.com/ngAnzar/rpc/core/registry"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// buildFlags are shared by compile and watch.
type buildFlags struct {
	outPath string
	inputs  []string
	pkg     string
	layout  string
	cache   string
}

func (f *buildFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.outPath, "outPath", "o", "", "output directory (default from config, else .)")
	cmd.Flags().StringSliceVarP(&f.inputs, "input", "i", nil, "input files or globs; ** matches any depth")
	cmd.Flags().StringVar(&f.pkg, "package", "", "package clause of generated files")
	cmd.Flags().StringVar(&f.layout, "layout", "", "output layout: flat or files")
	cmd.Flags().StringVar(&f.cache, "cache", "", "build cache file; enables the cache")
}

// apply overrides cfg with the flags that were given. Positional arguments
// are inputs too, so `-i a.json b.json` works.
func (f *buildFlags) apply(cfg *config.Config, args []string) {
	inputs := append(append([]string{}, f.inputs...), args...)
	if len(inputs) > 0 {
		cfg.Inputs = inputs
	}
	if f.outPath != "" {
		cfg.Output.Path = f.outPath
	}
	if f.pkg != "" {
		cfg.Output.Package = f.pkg
	}
	if f.layout != "" {
		cfg.Output.Layout = f.layout
	}
	if f.cache != "" {
		cfg.Cache.Enabled = true
		cfg.Cache.Path = f.cache
	}
}

func newCompileCmd(c *cli) *cobra.Command {
	var flags buildFlags

	cmd := &cobra.Command{
		Use:   "compile [inputs...]",
		Short: "Generate Go code from definition documents",
		Long: `Compile the input documents and every document they reference.

Inputs are files or glob patterns. Patterns support ** to match any number
of directories; quote them so the shell does not expand them first.

Examples:
  rpcgen compile -o internal/api -i 'schema/**/*.json'
  rpcgen compile -o internal/api -i app.json -i auth.yaml --layout files
  rpcgen compile --cache .rpcgen-cache.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			flags.apply(cfg, args)
			if len(cfg.Inputs) == 0 {
				return errMissingInput
			}

			logger := c.logger(cfg.Logging)
			res, err := c.build(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			c.printResult(res, cfg.Output.Path)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

// build runs one compile with a fresh registry.
func (c *cli) build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*compiler.Result, error) {
	inputs, err := expandInputs(cfg.Inputs)
	if err != nil {
		return nil, err
	}
	outPath, err := filepath.Abs(cfg.Output.Path)
	if err != nil {
		return nil, fmt.Errorf("output path: %w", err)
	}
	reg, err := registry.New(registry.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	opts := compiler.Options{
		Inputs:  inputs,
		OutPath: outPath,
		Package: cfg.Output.Package,
		Layout:  compiler.Layout(cfg.Output.Layout),
		Docs:    reg,
		Logger:  logger,
	}
	if cfg.Cache.Enabled {
		cache, err := sqlite.OpenCache(ctx, cfg.Cache.Path)
		if err != nil {
			return nil, fmt.Errorf("open build cache: %w", err)
		}
		defer cache.Close()
		opts.Cache = cache
	}
	return compiler.Compile(ctx, opts)
}

func (c *cli) printResult(res *compiler.Result, outPath string) {
	fmt.Fprintf(c.stdout, "  %s %d documents, %d modules, %d factory routines\n",
		checkMark, len(res.Documents), res.Modules, res.Routines)
	fmt.Fprintf(c.stdout, "  %s %d files written, %d unchanged in %s\n",
		checkMark, res.Written, res.Skipped, outPath)
}

// expandInputs resolves glob patterns to absolute file paths, keeping the
// first occurrence of each file.
func expandInputs(patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		return nil, errMissingInput
	}

	seen := make(map[string]bool)
	var files []string
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", pattern, err)
		}
		for _, m := range matches {
			abs, err := filepath.Abs(m)
			if err != nil {
				return nil, fmt.Errorf("input %q: %w", m, err)
			}
			if !seen[abs] {
				seen[abs] = true
				files = append(files, abs)
			}
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no input files match %s", strings.Join(patterns, ", "))
	}
	return files, nil
}
