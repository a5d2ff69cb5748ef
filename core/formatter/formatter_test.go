package formatter

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func testRecords() []map[string]any {
	return []map[string]any{
		{"path": "user.json", "module": "app", "entities": 2, "valid": true},
		{"path": "bad.json", "module": nil, "entities": 0, "valid": false},
	}
}

type fakeFormatter struct{ name string }

func (f fakeFormatter) Name() string        { return f.name }
func (f fakeFormatter) Description() string { return "fake" }
func (f fakeFormatter) FormatList(w io.Writer, records []map[string]any, opts FormatOptions) error {
	return nil
}
func (f fakeFormatter) FormatRecord(w io.Writer, record map[string]any, opts FormatOptions) error {
	return nil
}
func (f fakeFormatter) FormatError(w io.Writer, err error) error { return nil }

// ===========================================
// Registry Tests
// ===========================================

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(fakeFormatter{"a"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register(fakeFormatter{"a"}); err == nil {
		t.Error("expected error on duplicate registration")
	}
	if _, ok := r.Get("a"); !ok {
		t.Error("Get(a) not found")
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("Get(missing) should not be found")
	}
}

func TestRegistry_Default(t *testing.T) {
	r := NewRegistry()
	if r.Default() != nil {
		t.Error("empty registry should have no default")
	}

	r.Register(fakeFormatter{"json"})
	if got := r.Default(); got == nil || got.Name() != "json" {
		t.Errorf("Default() fallback = %v, want json", got)
	}

	r.Register(fakeFormatter{"table"})
	if got := r.Default(); got.Name() != "table" {
		t.Errorf("Default() = %s, want table", got.Name())
	}

	if err := r.SetDefault("json"); err != nil {
		t.Fatalf("SetDefault() error = %v", err)
	}
	if got := r.Default(); got.Name() != "json" {
		t.Errorf("Default() after SetDefault = %s, want json", got.Name())
	}
	if err := r.SetDefault("nope"); err == nil {
		t.Error("SetDefault(nope) should fail")
	}
}

func TestRegistry_Lookup(t *testing.T) {
	f, err := Lookup("")
	if err != nil || f.Name() != "table" {
		t.Errorf("Lookup(\"\") = %v, %v, want table", f, err)
	}
	if f, err := Lookup("yaml"); err != nil || f.Name() != "yaml" {
		t.Errorf("Lookup(yaml) = %v, %v", f, err)
	}
	_, err = Lookup("xml")
	if err == nil || !strings.Contains(err.Error(), "unknown output format") {
		t.Errorf("Lookup(xml) error = %v", err)
	}
}

func TestList(t *testing.T) {
	want := []string{"json", "table", "yaml"}
	if got := List(); !reflect.DeepEqual(got, want) {
		t.Errorf("List() = %v, want %v", got, want)
	}
}

// ===========================================
// Table Tests
// ===========================================

func TestTableFormatter_FormatList(t *testing.T) {
	var buf bytes.Buffer
	err := NewTableFormatter().FormatList(&buf, testRecords(), FormatOptions{Columns: []string{"path", "valid", "module"}})
	if err != nil {
		t.Fatalf("FormatList() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), buf.String())
	}
	if fields := strings.Fields(lines[0]); !reflect.DeepEqual(fields, []string{"PATH", "VALID", "MODULE"}) {
		t.Errorf("header = %v", fields)
	}
	if fields := strings.Fields(lines[2]); !reflect.DeepEqual(fields, []string{"bad.json", "no", "-"}) {
		t.Errorf("row = %v", fields)
	}
}

func TestTableFormatter_FormatList_SortedColumns(t *testing.T) {
	var buf bytes.Buffer
	NewTableFormatter().FormatList(&buf, testRecords(), FormatOptions{NoHeader: true})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	// entities, module, path, valid
	if fields := strings.Fields(lines[0]); !reflect.DeepEqual(fields, []string{"2", "app", "user.json", "yes"}) {
		t.Errorf("row = %v", fields)
	}
}

func TestTableFormatter_FormatList_Empty(t *testing.T) {
	var buf bytes.Buffer
	NewTableFormatter().FormatList(&buf, nil, FormatOptions{})
	if buf.String() != "No records found.\n" {
		t.Errorf("got %q", buf.String())
	}
}

func TestTableFormatter_FormatRecord(t *testing.T) {
	var buf bytes.Buffer
	rec := map[string]any{"run_id": "r1", "written": 3}
	if err := NewTableFormatter().FormatRecord(&buf, rec, FormatOptions{}); err != nil {
		t.Fatalf("FormatRecord() error = %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Run Id:") || !strings.Contains(out, "r1") || !strings.Contains(out, "Written:") {
		t.Errorf("output = %q", out)
	}

	buf.Reset()
	NewTableFormatter().FormatRecord(&buf, nil, FormatOptions{})
	if buf.String() != "Record not found.\n" {
		t.Errorf("nil record = %q", buf.String())
	}
}

func TestTableFormatter_FormatValue(t *testing.T) {
	f := NewTableFormatter()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in   any
		want string
	}{
		{nil, "-"},
		{"x", "x"},
		{true, "yes"},
		{false, "no"},
		{42, "42"},
		{int64(7), "7"},
		{3.0, "3"},
		{2.5, "2.50"},
		{at, "2024-05-01T12:00:00Z"},
		{time.Time{}, "-"},
		{(*time.Time)(nil), "-"},
		{1500 * time.Millisecond, "1.5s"},
		{[]string{"a", "b"}, "a,b"},
		{[]byte("x"), "[binary]"},
		{map[string]int{"a": 1}, `{"a":1}`},
	}
	for _, tt := range tests {
		if got := f.formatValue(tt.in, 0); got != tt.want {
			t.Errorf("formatValue(%#v) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if got := f.formatValue("abcdefghij", 6); got != "abc..." {
		t.Errorf("truncated = %q", got)
	}
	if got := f.formatValue("abcdefghij", 2); got != "abcdefghij" {
		t.Errorf("tiny max width = %q", got)
	}
}

func TestTableFormatter_FormatError(t *testing.T) {
	var buf bytes.Buffer
	NewTableFormatter().FormatError(&buf, errors.New("boom"))
	if buf.String() != "Error: boom\n" {
		t.Errorf("got %q", buf.String())
	}
}

// ===========================================
// JSON Tests
// ===========================================

func TestJSONFormatter_FormatList(t *testing.T) {
	var buf bytes.Buffer
	err := NewJSONFormatter().FormatList(&buf, testRecords(), FormatOptions{Columns: []string{"path", "valid"}})
	if err != nil {
		t.Fatalf("FormatList() error = %v", err)
	}

	var got struct {
		Data  []map[string]any `json:"data"`
		Count int              `json:"count"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid json: %v\n%s", err, buf.String())
	}
	if got.Count != 2 || len(got.Data) != 2 {
		t.Fatalf("got %+v", got)
	}
	if len(got.Data[0]) != 2 || got.Data[0]["path"] != "user.json" || got.Data[1]["valid"] != false {
		t.Errorf("data = %v", got.Data)
	}
}

func TestJSONFormatter_Compact(t *testing.T) {
	var buf bytes.Buffer
	NewJSONFormatter().FormatRecord(&buf, map[string]any{"a": 1}, FormatOptions{Compact: true})
	if buf.String() != "{\"a\":1}\n" {
		t.Errorf("got %q", buf.String())
	}
}

func TestJSONFormatter_EmptyAndNil(t *testing.T) {
	var buf bytes.Buffer
	NewJSONFormatter().FormatList(&buf, nil, FormatOptions{Compact: true})
	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if data, ok := got["data"].([]any); !ok || len(data) != 0 {
		t.Errorf("data = %#v, want empty array", got["data"])
	}

	buf.Reset()
	NewJSONFormatter().FormatRecord(&buf, nil, FormatOptions{})
	if strings.TrimSpace(buf.String()) != "null" {
		t.Errorf("nil record = %q", buf.String())
	}
}

func TestJSONFormatter_FormatError(t *testing.T) {
	var buf bytes.Buffer
	NewJSONFormatter().FormatError(&buf, errors.New("boom"))
	var got map[string]string
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if got["error"] != "boom" {
		t.Errorf("got %v", got)
	}
}

// ===========================================
// YAML Tests
// ===========================================

func TestYAMLFormatter_FormatList(t *testing.T) {
	var buf bytes.Buffer
	if err := NewYAMLFormatter().FormatList(&buf, testRecords(), FormatOptions{Columns: []string{"path"}}); err != nil {
		t.Fatalf("FormatList() error = %v", err)
	}

	var got struct {
		Data  []map[string]any `yaml:"data"`
		Count int              `yaml:"count"`
	}
	if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid yaml: %v", err)
	}
	if got.Count != 2 || got.Data[1]["path"] != "bad.json" || len(got.Data[1]) != 1 {
		t.Errorf("got %+v", got)
	}
}

func TestYAMLFormatter_FormatRecord(t *testing.T) {
	var buf bytes.Buffer
	NewYAMLFormatter().FormatRecord(&buf, map[string]any{"id": "r1", "skipped": 2}, FormatOptions{Columns: []string{"id"}})
	if buf.String() != "id: r1\n" {
		t.Errorf("got %q", buf.String())
	}
}

func TestYAMLFormatter_FormatError(t *testing.T) {
	var buf bytes.Buffer
	NewYAMLFormatter().FormatError(&buf, errors.New("boom"))
	if buf.String() != "error: boom\n" {
		t.Errorf("got %q", buf.String())
	}
}
