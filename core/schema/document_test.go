package schema

import (
	"errors"
	"strings"
	"testing"
)

const userJSON = `{
	"module": "app/auth",
	"entities": {
		"User": {
			"primaryKey": ["id"],
			"fields": {
				"id": {"type": "integer"},
				"name": {"type": "string", "summary": "Display name"},
				"roles": {"type": {"listOf": {"$ref": "#/entities/Role"}}},
				"pair": {"type": ["string", "number"]}
			}
		},
		"Role": {
			"fields": {
				"name": {"type": "string"}
			}
		}
	},
	"methods": {
		"User.list": {
			"params": {
				"filter": {"type": {"optional": "string"}},
				"limit": {"type": "integer", "optional": true}
			},
			"returns": {"type": {"listOf": {"$ref": "#/entities/User"}}},
			"throws": [{"code": 404, "message": "not found"}]
		}
	},
	"data": {
		"Role": [{"name": "admin"}, {"name": "guest"}]
	}
}`

func mustParse(t *testing.T, path, content string) *Object {
	t.Helper()
	raw, err := Parse(path, []byte(content))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return raw
}

func TestNewDocument(t *testing.T) {
	doc, err := NewDocument("/app/auth/user.json", mustParse(t, "user.json", userJSON))
	if err != nil {
		t.Fatalf("NewDocument() error = %v", err)
	}

	if doc.Module.Parent != "app/auth" || doc.Module.Name != "user" {
		t.Errorf("Module = %+v, want app/auth user", doc.Module)
	}
	if len(doc.Entities) != 2 || doc.Entities[0].Name.Name != "User" || doc.Entities[1].Name.Name != "Role" {
		t.Fatalf("Entities not in declaration order")
	}

	user := doc.Entities[0]
	var names []string
	for _, f := range user.Fields {
		names = append(names, f.Name)
	}
	if got := strings.Join(names, ","); got != "id,name,roles,pair" {
		t.Errorf("field order = %s, want id,name,roles,pair", got)
	}
	if !user.IsPrimary("id") || user.IsPrimary("name") {
		t.Errorf("PrimaryKey = %v", user.PrimaryKey)
	}
	if f, _ := user.Field("name"); f.Summary != "Display name" {
		t.Errorf("name summary = %q", f.Summary)
	}
	if f, _ := user.Field("pair"); len(f.Type.(*Tuple).Items) != 2 {
		t.Errorf("pair is not a 2-tuple")
	}

	role, _ := doc.Entity("Role")
	if len(role.Data) != 2 || role.Data[0]["name"] != "admin" {
		t.Errorf("Role data = %v", role.Data)
	}

	list, ok := doc.Method("User.list")
	if !ok {
		t.Fatal("method User.list missing")
	}
	if list.Name.NS != "User" || list.Name.Name != "list" {
		t.Errorf("method qname = %+v", list.Name)
	}
	if len(list.Params) != 2 || !list.Params[0].IsOptional() || !list.Params[1].IsOptional() {
		t.Errorf("params = %+v", list.Params)
	}
	if len(list.Throws) != 1 || list.Throws[0].Code != 404 {
		t.Errorf("throws = %+v", list.Throws)
	}
}

func TestNewDocument_YAMLKeepsOrder(t *testing.T) {
	content := `
module: shop
entities:
  Order:
    fields:
      zeta: { type: string }
      alpha: { type: integer }
      mid: { type: { mapOf: number } }
`
	doc, err := NewDocument("/shop/order.yaml", mustParse(t, "order.yaml", content))
	if err != nil {
		t.Fatalf("NewDocument() error = %v", err)
	}
	order := doc.Entities[0]
	if order.Fields[0].Name != "zeta" || order.Fields[1].Name != "alpha" || order.Fields[2].Name != "mid" {
		t.Errorf("fields = %s %s %s, want zeta alpha mid", order.Fields[0].Name, order.Fields[1].Name, order.Fields[2].Name)
	}
	if _, ok := order.Fields[2].Type.(*Mapping); !ok {
		t.Errorf("mid type = %T, want *Mapping", order.Fields[2].Type)
	}
}

func TestNewDocument_PolymorphIDCount(t *testing.T) {
	content := `{
		"module": "zoo",
		"entities": {
			"Pet": {"fields": {"pet": {"type": {"polymorph": {
				"identity": ["kind", "sub"],
				"mapping": [{"id": "cat", "$ref": "#/entities/Cat"}]
			}}}}}
		}
	}`
	_, err := NewDocument("/zoo.json", mustParse(t, "zoo.json", content))
	if err == nil || !strings.Contains(err.Error(), "incorrect number of id values") {
		t.Fatalf("NewDocument() error = %v, want id count error", err)
	}
}

func TestNewDocument_UndefinedType(t *testing.T) {
	content := `{"module": "m", "entities": {"A": {"fields": {"x": {"type": "float"}}}}}`
	_, err := NewDocument("/m.json", mustParse(t, "m.json", content))
	if !errors.Is(err, ErrUndefinedType) {
		t.Fatalf("NewDocument() error = %v, want ErrUndefinedType", err)
	}
}

func TestDocument_ResolveTypesRejectsSelfReference(t *testing.T) {
	content := `{
		"module": "m",
		"entities": {
			"A": {"fields": {"x": {"type": {"listOf": {"$ref": "#/entities/A/fields/x/type"}}}}}
		}
	}`
	doc, err := NewDocument("/m.json", mustParse(t, "m.json", content))
	if err != nil {
		t.Fatalf("NewDocument() error = %v", err)
	}
	ent, _ := doc.Entity("A")
	x, _ := ent.Field("x")

	err = doc.ResolveTypes(staticResolver{target: x.Type})
	if !errors.Is(err, ErrReferenceCycle) {
		t.Fatalf("ResolveTypes() error = %v, want ErrReferenceCycle", err)
	}
}

func TestParse_RejectsNonObjectRoot(t *testing.T) {
	if _, err := Parse("x.json", []byte(`[1, 2]`)); err == nil {
		t.Fatal("Parse() expected error for array root")
	}
	if _, err := Parse("x.json", []byte(`{"module": `)); err == nil {
		t.Fatal("Parse() expected error for truncated input")
	}
}
