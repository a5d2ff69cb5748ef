package main

import (
	"errors"
	"fmt"

	"github.com/ngAnzar/rpc/core/formatter"
	"github.com/ngAnzar/rpc/core/registry"
	"github.com/ngAnzar/rpc/core/schema"
	"github.com/spf13/cobra"
)

var validateColumns = []string{"path", "valid", "module", "entities", "methods", "error"}

func newValidateCmd(c *cli) *cobra.Command {
	var inputs []string
	var output string

	cmd := &cobra.Command{
		Use:   "validate [inputs...]",
		Short: "Load and validate definition documents without generating code",
		Long: `Validate the input documents and every document they reference.

Checks:
  - JSON or YAML syntax is valid
  - Documents match the definition schema
  - Every $ref resolves to a declaration

Examples:
  rpcgen validate -i 'schema/**/*.json'
  rpcgen validate -i 'schema/**/*.json' --output json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if all := append(append([]string{}, inputs...), args...); len(all) > 0 {
				cfg.Inputs = all
			}
			if len(cfg.Inputs) == 0 {
				return errMissingInput
			}

			var f formatter.Formatter
			if output != "" {
				if f, err = formatter.Lookup(output); err != nil {
					return err
				}
			}

			files, err := expandInputs(cfg.Inputs)
			if err != nil {
				return err
			}
			reg, err := registry.New(registry.WithLogger(c.logger(cfg.Logging)))
			if err != nil {
				return err
			}
			return c.validate(reg, files, f)
		},
	}
	cmd.Flags().StringSliceVarP(&inputs, "input", "i", nil, "input files or globs; ** matches any depth")
	cmd.Flags().StringVarP(&output, "output", "o", "", "report format: table, json or yaml (default: checklist)")
	return cmd
}

// validate loads every file. With a formatter it writes one record per file
// instead of the checklist.
func (c *cli) validate(reg *registry.Registry, files []string, f formatter.Formatter) error {
	failed := 0
	records := make([]map[string]any, 0, len(files))
	for _, file := range files {
		doc, err := reg.Get(file)
		rec := map[string]any{"path": file, "valid": err == nil}
		if err != nil {
			failed++
			rec["error"] = err.Error()
		} else {
			rec["module"] = doc.Module.Parent
			rec["entities"] = len(doc.Entities)
			rec["methods"] = len(doc.Methods)
		}
		records = append(records, rec)

		if f != nil {
			continue
		}
		if err != nil {
			fmt.Fprintf(c.stdout, "  %s %s\n", crossMark, file)
			printValidationError(c, err)
			continue
		}
		fmt.Fprintf(c.stdout, "  %s %s\n", checkMark, file)
	}

	if f != nil {
		if err := f.FormatList(c.stdout, records, formatter.FormatOptions{Columns: validateColumns}); err != nil {
			return err
		}
	} else {
		entities, methods := 0, 0
		docs := reg.Documents()
		for _, doc := range docs {
			entities += len(doc.Entities)
			methods += len(doc.Methods)
		}
		fmt.Fprintln(c.stdout)
		fmt.Fprintf(c.stdout, "%d documents loaded: %d entities, %d methods\n", len(docs), entities, methods)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d documents are invalid", failed, len(files))
	}
	if f == nil {
		fmt.Fprintln(c.stdout, "All documents are valid.")
	}
	return nil
}

func printValidationError(c *cli, err error) {
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		for _, v := range verr.Violations {
			fmt.Fprintf(c.stdout, "      %s\n", v)
		}
		return
	}
	fmt.Fprintf(c.stdout, "      Error: %v\n", err)
}
