package compiler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/template"

	"github.com/goccy/go-json"
)

// Header starts every generated file.
const Header = "// Code generated by rpcgen. DO NOT EDIT."

var templates = template.Must(template.New("rpcgen").Funcs(template.FuncMap{
	"quote":    strconv.Quote,
	"quoteAll": quoteAll,
	"join":     strings.Join,
	"tag":      tag,
	"literal":  literal,
}).Parse(blockTemplates))

const blockTemplates = `
{{define "comment"}}{{range .}}
// {{.}}{{end}}{{end}}

{{define "fields"}}{{range .}}{{range .Doc}}
	// {{.}}{{end}}
	{{.GoName}} {{.Type}} {{tag .JSON .OmitEmpty}}{{end}}{{end}}

{{define "entity"}}
// {{.Name}} is the {{.FullName}} entity of {{.Module}}.
type {{.Name}} struct {
{{- template "fields" .Fields}}
}

// {{.Descriptor}} describes {{.Name}}.
var {{.Descriptor}} = rpc.EntityDescriptor{
	Name:   {{quote .FullName}},
	Module: {{quote .Module}},
{{- if .PolymorphID}}
	PolymorphID: []string{ {{- quoteAll .PolymorphID -}} },
{{- end}}
	Fields: []rpc.FieldDescriptor{
{{- range .Fields}}
		{Name: {{quote .JSON}}, GoName: {{quote .GoName}}, Type: {{quote .Type}}{{if .Primary}}, Primary: true{{end}}, Factory: {{quote .Routine}}},
{{- end}}
	},
}

// FromRaw sets the fields present in raw.
func (e *{{.Name}}) FromRaw(raw map[string]any) (err error) {
{{- range .Fields}}
	if v, ok := raw[{{quote .JSON}}]; ok {
		if e.{{.GoName}}, err = {{.Routine}}(v); err != nil {
			return rpc.FieldError({{quote .JSON}}, err)
		}
	}
{{- end}}
	return nil
}
{{end}}

{{define "declarations"}}{{range .}}
{{- if .Params}}
// {{.ParamsName}} are the parameters of {{.FullName}}.
type {{.ParamsName}} struct {
{{- template "fields" .Params}}
}
{{end}}
{{- if .Errors}}
// {{.ErrorsName}} lists the errors {{.FullName}} declares.
var {{.ErrorsName}} = []rpc.ErrorSpec{
{{- range .Errors}}
	{Code: {{.Code}}, Message: {{quote .Message}}{{if .Data}}, Data: {{.Data}}{{end}}{{if .Summary}}, Summary: {{quote .Summary}}{{end}}},
{{- end}}
}
{{end}}
{{- end}}{{end}}

{{define "extension"}}
{{- template "declarations" .Methods}}
{{- range .Methods}}
{{template "comment" .Doc}}
func {{.Func}}(ctx context.Context, c rpc.Caller{{if .Params}}, params {{.ParamsName}}{{end}}) ({{.Returns}}, error) {
	return rpc.Call(ctx, c, {{quote .FullName}}, {{if .Params}}params{{else}}nil{{end}}, {{.Routine}})
}
{{end}}
{{- end}}

{{define "interface"}}
{{- template "declarations" .Methods}}
// {{.Name}} is the client of the {{.NS}} methods.
type {{.Name}} interface {
{{- range .Methods}}{{range .Doc}}
	// {{.}}{{end}}
	{{.Func}}(ctx context.Context{{if .Params}}, params {{.ParamsName}}{{end}}) ({{.Returns}}, error)
{{- end}}
}

type {{.Client}} struct {
	c rpc.Caller
}

// {{.Constructor}} binds the {{.NS}} methods to c.
func {{.Constructor}}(c rpc.Caller) {{.Name}} {
	return &{{.Client}}{c: c}
}
{{range .Methods}}
func (x *{{$.Client}}) {{.Func}}(ctx context.Context{{if .Params}}, params {{.ParamsName}}{{end}}) ({{.Returns}}, error) {
	return rpc.Call(ctx, x.c, {{quote .FullName}}, {{if .Params}}params{{else}}nil{{end}}, {{.Routine}})
}
{{end}}
// {{.Provider}} registers {{.Name}} with a container.
var {{.Provider}} = rpc.Provider{
	Name:    {{quote .NS}},
	Module:  {{quote .Module}},
	Methods: []string{ {{- quoteAll .MethodNames -}} },
	New:     func(c rpc.Caller) any { return {{.Constructor}}(c) },
}
{{end}}

{{define "source"}}
// {{.Constructor}} binds the {{.NS}} collection to c.
func {{.Constructor}}(c rpc.Caller) *rpc.DataSource[{{.Item}}] {
	return rpc.NewDataSource(c, {{quote .NS}}, {{.Routine}})
}

// {{.Provider}} registers the {{.NS}} data source with a container.
var {{.Provider}} = rpc.Provider{
	Name:    {{quote .Name}},
	Module:  {{quote .Module}},
	Methods: []string{ {{- quoteAll .MethodNames -}} },
	New:     func(c rpc.Caller) any { return {{.Constructor}}(c) },
}
{{end}}

{{define "data"}}{{range .}}
// {{.Var}} holds the seed records of {{.Entity}}.
var {{.Var}} = rpc.MustStaticSource({{.Routine}}, {{.Records}})
{{end}}{{end}}

{{define "aliases"}}{{range .}}
type {{.Alias}} = {{.Target}}
{{- end}}
{{end}}

{{define "module"}}
// {{.ExportsVar}} lists the names the {{.Parent}} module exports.
var {{.ExportsVar}} = []string{ {{- quoteAll .Exports -}} }

// {{.ImportsVar}} lists the modules {{.Parent}} depends on.
var {{.ImportsVar}} = []string{ {{- quoteAll .ImportNames -}} }

// {{.Register}} registers the providers of {{.Parent}} after those of the
// modules it depends on.
func {{.Register}}(r rpc.Registrar) error {
{{- range .Calls}}
	if err := {{.}}(r); err != nil {
		return err
	}
{{- end}}
{{- if .Providers}}
	for _, p := range []rpc.Provider{ {{- join .Providers ", " -}} } {
		if err := r.Register(p); err != nil {
			return err
		}
	}
{{- end}}
	return nil
}
{{end}}

{{define "file"}}` + Header + `

package {{.Package}}
{{if .Imports}}
import (
{{- range .Imports}}
	{{quote .}}
{{- end}}
)
{{end}}
{{- range .Blocks}}
{{.}}
{{- end}}
{{end}}
`

func quoteAll(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = strconv.Quote(s)
	}
	return strings.Join(quoted, ", ")
}

func tag(name string, omitEmpty bool) string {
	value := name
	if omitEmpty {
		value += ",omitempty"
	}
	t := `json:"` + value + `"`
	if strings.ContainsAny(name, "`\"") {
		return strconv.Quote(`json:` + strconv.Quote(value))
	}
	return "`" + t + "`"
}

// rawString returns a Go literal of s, preferring a raw string.
func rawString(s string) string {
	if strings.Contains(s, "`") {
		return strconv.Quote(s)
	}
	return "`" + s + "`"
}

// literal renders a decoded JSON value as a Go expression.
func literal(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "nil", nil
	case bool:
		return strconv.FormatBool(x), nil
	case string:
		return strconv.Quote(x), nil
	case json.Number:
		return x.String(), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case []any:
		items := make([]string, len(x))
		for i, item := range x {
			s, err := literal(item)
			if err != nil {
				return "", err
			}
			items[i] = s
		}
		return "[]any{" + strings.Join(items, ", ") + "}", nil
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		items := make([]string, len(keys))
		for i, k := range keys {
			s, err := literal(x[k])
			if err != nil {
				return "", err
			}
			items[i] = strconv.Quote(k) + ": " + s
		}
		return "map[string]any{" + strings.Join(items, ", ") + "}", nil
	default:
		return "", fmt.Errorf("no Go literal for %T", v)
	}
}
