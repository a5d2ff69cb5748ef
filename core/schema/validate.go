package schema

import (
	_ "embed"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// DefinitionURL identifies the embedded document schema.
const DefinitionURL = "https://github.com/ngAnzar/rpc/definition.schema.json"

//go:embed definition.schema.json
var definitionSchema string

// Validator checks raw documents against the document schema before any
// declaration is built.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the embedded document schema.
func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(DefinitionURL, strings.NewReader(definitionSchema)); err != nil {
		return nil, fmt.Errorf("add document schema: %w", err)
	}
	s, err := c.Compile(DefinitionURL)
	if err != nil {
		return nil, fmt.Errorf("compile document schema: %w", err)
	}
	return &Validator{schema: s}, nil
}

// Validate returns a *ValidationError listing every violation of raw.
func (v *Validator) Validate(docPath string, raw *Object) error {
	err := v.schema.Validate(Plain(raw))
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return fmt.Errorf("validate %s: %w", docPath, err)
	}
	out := &ValidationError{Path: docPath}
	collectViolations(ve, &out.Violations)
	return out
}

// collectViolations keeps the leaves of the error tree; inner nodes only
// repeat "doesn't validate with ..." for their children.
func collectViolations(ve *jsonschema.ValidationError, out *[]Violation) {
	if len(ve.Causes) == 0 {
		*out = append(*out, Violation{
			Pointer:    ve.InstanceLocation,
			Message:    ve.Message,
			Params:     map[string]any{"keyword": path.Base(ve.KeywordLocation)},
			SchemaPath: "#" + ve.KeywordLocation,
		})
		return
	}
	for _, c := range ve.Causes {
		collectViolations(c, out)
	}
}
