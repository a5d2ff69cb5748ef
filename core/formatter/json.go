package formatter

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

// JSONFormatter formats output as JSON.
type JSONFormatter struct{}

// NewJSONFormatter creates a new JSON formatter.
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

func (f *JSONFormatter) Name() string { return "json" }

func (f *JSONFormatter) Description() string { return "JSON output" }

// FormatList writes {"data": [...], "count": n}.
func (f *JSONFormatter) FormatList(w io.Writer, records []map[string]any, opts FormatOptions) error {
	data := project(records, opts.Columns)
	if data == nil {
		data = []map[string]any{}
	}
	return f.encode(w, map[string]any{
		"data":  data,
		"count": len(records),
	}, opts.Compact)
}

func (f *JSONFormatter) FormatRecord(w io.Writer, record map[string]any, opts FormatOptions) error {
	if record == nil {
		return f.encode(w, nil, opts.Compact)
	}
	return f.encode(w, projectOne(record, opts.Columns), opts.Compact)
}

func (f *JSONFormatter) FormatError(w io.Writer, err error) error {
	return f.encode(w, map[string]any{"error": err.Error()}, false)
}

func (f *JSONFormatter) encode(w io.Writer, data any, compact bool) error {
	enc := json.NewEncoder(w)
	if !compact {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

func init() {
	if err := Register(NewJSONFormatter()); err != nil {
		fmt.Printf("failed to register json formatter: %v\n", err)
	}
}
