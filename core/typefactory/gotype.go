package typefactory

import (
	"regexp"
	"strings"

	"github.com/ngAnzar/rpc/core/schema"
)

// RuntimeImport is the import path of the package generated code runs on.
const RuntimeImport = "github.com/ngAnzar/rpc/rpc"

var nativeGoTypes = map[string]string{
	schema.NativeString:   "string",
	schema.NativeInteger:  "int64",
	schema.NativeNumber:   "float64",
	schema.NativeBoolean:  "bool",
	schema.NativeDate:     "time.Time",
	schema.NativeDateTime: "time.Time",
	schema.NativeTime:     "rpc.Time",
	schema.NativeAny:      "any",
	schema.NativeNull:     "any",
}

// GoType renders the Go type expression of t. name returns the identifier
// used for a referenced entity.
func GoType(t schema.Type, name func(*schema.Entity) string) (string, error) {
	switch t := t.(type) {
	case *schema.Native:
		goType, ok := nativeGoTypes[t.Name]
		if !ok {
			return "", &schema.InternalError{Op: "go type", Value: t.Name}
		}
		return goType, nil
	case *schema.List:
		item, err := GoType(t.Item, name)
		if err != nil {
			return "", err
		}
		return "[]" + item, nil
	case *schema.Mapping:
		item, err := GoType(t.Item, name)
		if err != nil {
			return "", err
		}
		return "map[string]" + item, nil
	case *schema.Tuple:
		return "[]any", nil
	case *schema.Optional:
		item, err := GoType(t.Item, name)
		if err != nil {
			return "", err
		}
		if Nilable(item) {
			return item, nil
		}
		return "*" + item, nil
	case *schema.Reference:
		if target, ok := t.Type(); ok {
			return GoType(target, name)
		}
		ent, ok := t.Entity()
		if !ok {
			return "", &schema.InternalError{Op: "go type of unresolved reference", Value: t.Ref}
		}
		if ent.Polymorph != nil {
			return "any", nil
		}
		return "*" + name(ent), nil
	case *schema.Polymorphic:
		return "any", nil
	default:
		return "", &schema.InternalError{Op: "go type", Value: t}
	}
}

// Nilable reports whether the zero value of the Go type expression is nil.
func Nilable(goType string) bool {
	return goType == "any" ||
		strings.HasPrefix(goType, "*") ||
		strings.HasPrefix(goType, "[]") ||
		strings.HasPrefix(goType, "map[")
}

var qualifiers = []struct {
	re  *regexp.Regexp
	pkg string
}{
	{regexp.MustCompile(`\bcontext\.[A-Z]`), "context"},
	{regexp.MustCompile(`\btime\.[A-Z]`), "time"},
	{regexp.MustCompile(`\brpc\.[A-Z]`), RuntimeImport},
}

// PackagesOf returns the import paths a piece of generated code refers to.
func PackagesOf(code string) []string {
	var pkgs []string
	for _, q := range qualifiers {
		if q.re.MatchString(code) {
			pkgs = append(pkgs, q.pkg)
		}
	}
	return pkgs
}
