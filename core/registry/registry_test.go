package registry

import (
	"errors"
	"testing"

	"github.com/ngAnzar/rpc/adapters/memory"
	"github.com/ngAnzar/rpc/core/schema"
)

func newTestRegistry(t *testing.T, files map[string]string) (*Registry, *memory.FS) {
	t.Helper()
	fs := memory.NewFS(files)
	r, err := New(WithReader(fs))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return r, fs
}

func TestRegistry_GetIsIdempotent(t *testing.T) {
	r, fs := newTestRegistry(t, map[string]string{
		"/app/user.json": `{"module": "app", "entities": {"User": {"fields": {"id": {"type": "integer"}}}}}`,
	})

	first, err := r.Get("/app/user.json")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	second, err := r.Get("/app/../app/user.json")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if first != second {
		t.Error("Get() returned different instances for the same file")
	}
	if r.Loads() != 1 || fs.Reads("/app/user.json") != 1 {
		t.Errorf("Loads() = %d, reads = %d, want 1 and 1", r.Loads(), fs.Reads("/app/user.json"))
	}
}

func TestRegistry_SameDocumentReference(t *testing.T) {
	r, fs := newTestRegistry(t, map[string]string{
		"/app/user.json": `{
			"module": "app",
			"entities": {
				"User": {"fields": {"group": {"type": {"$ref": "#/entities/Group"}}}},
				"Group": {"fields": {"name": {"type": "string"}}}
			}
		}`,
	})

	doc, err := r.Get("/app/user.json")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	user, _ := doc.Entity("User")
	group, _ := doc.Entity("Group")
	f, _ := user.Field("group")

	target, ok := f.Type.(*schema.Reference).Entity()
	if !ok || target != group {
		t.Errorf("reference resolved to %v, want Group entity", target)
	}
	if fs.Reads("/app/user.json") != 1 || r.Loads() != 1 {
		t.Error("same-document reference went through a second load")
	}
}

func TestRegistry_RelativeReference(t *testing.T) {
	r, _ := newTestRegistry(t, map[string]string{
		"/a/b.json": `{"module": "a", "entities": {"B": {"fields": {"x": {"type": {"$ref": "../c.json#/entities/X"}}}}}}`,
		"/c.json":   `{"module": "c", "entities": {"X": {"fields": {"v": {"type": "string"}}}}}`,
	})

	doc, err := r.Get("/a/b.json")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	b, _ := doc.Entity("B")
	f, _ := b.Field("x")
	target, ok := f.Type.(*schema.Reference).Entity()
	if !ok {
		t.Fatal("reference did not resolve to an entity")
	}
	if target.Name.File != "/c.json" {
		t.Errorf("target file = %s, want /c.json", target.Name.File)
	}

	c, err := r.Get("/c.json")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if x, _ := c.Entity("X"); x != target {
		t.Error("referenced entity is not the registry's instance")
	}
}

func TestRegistry_CrossDocumentCycle(t *testing.T) {
	r, _ := newTestRegistry(t, map[string]string{
		"/m/a.json": `{"module": "m", "entities": {"A": {"fields": {"b": {"type": {"$ref": "b.json#/entities/B"}}}}}}`,
		"/m/b.json": `{"module": "m", "entities": {"B": {"fields": {"a": {"type": {"$ref": "a.json#/entities/A"}}}}}}`,
	})

	a, err := r.Get("/m/a.json")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	b, err := r.Get("/m/b.json")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	entA, _ := a.Entity("A")
	entB, _ := b.Entity("B")
	fa, _ := entA.Field("b")
	fb, _ := entB.Field("a")
	if got, _ := fa.Type.(*schema.Reference).Entity(); got != entB {
		t.Error("A.b does not point at B")
	}
	if got, _ := fb.Type.(*schema.Reference).Entity(); got != entA {
		t.Error("B.a does not point at A")
	}
	if len(r.Documents()) != 2 {
		t.Errorf("Documents() = %d, want 2", len(r.Documents()))
	}
}

func TestRegistry_ReferenceToType(t *testing.T) {
	r, _ := newTestRegistry(t, map[string]string{
		"/t.json": `{
			"module": "t",
			"entities": {
				"A": {"fields": {"tags": {"type": {"listOf": "string"}}}},
				"B": {"fields": {"tags": {"type": {"$ref": "#/entities/A/fields/tags/type"}}}}
			}
		}`,
	})

	doc, err := r.Get("/t.json")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	a, _ := doc.Entity("A")
	b, _ := doc.Entity("B")
	fa, _ := a.Field("tags")
	fb, _ := b.Field("tags")

	if fa.Type.UID() != fb.Type.UID() {
		t.Error("reference to a type does not share the type's UID")
	}
}

func TestRegistry_ReferenceErrors(t *testing.T) {
	tests := []struct {
		name string
		ref  string
		want error
	}{
		{"remote", "https://example.com/x.json#/entities/X", schema.ErrRemoteReference},
		{"invalid target", "#/entities/A/fields", schema.ErrInvalidTarget},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestRegistry(t, map[string]string{
				"/e.json": `{"module": "e", "entities": {"A": {"fields": {"x": {"type": {"$ref": "` + tt.ref + `"}}}}}}`,
			})
			_, err := r.Get("/e.json")
			if !errors.Is(err, tt.want) {
				t.Fatalf("Get() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRegistry_DanglingReference(t *testing.T) {
	r, _ := newTestRegistry(t, map[string]string{
		"/e.json": `{"module": "e", "entities": {"A": {"fields": {"x": {"type": {"$ref": "#/entities/Missing"}}}}}}`,
	})
	if _, err := r.Get("/e.json"); err == nil {
		t.Fatal("Get() expected error for dangling reference")
	}
	if len(r.Documents()) != 0 {
		t.Error("failed document stayed cached")
	}
}

func TestRegistry_ValidationFailure(t *testing.T) {
	r, _ := newTestRegistry(t, map[string]string{
		"/bad.json": `{"entities": {}}`,
	})
	_, err := r.Get("/bad.json")
	var ve *schema.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Get() error = %v, want *schema.ValidationError", err)
	}
}

func TestRegistry_MissingFile(t *testing.T) {
	r, _ := newTestRegistry(t, nil)
	if _, err := r.Get("/nope.json"); err == nil {
		t.Fatal("Get() expected error for missing file")
	}
}

func TestSplit(t *testing.T) {
	tests := []struct {
		ref, declared, wantPath, wantPointer string
	}{
		{"#/entities/Foo", "/a/b.json", "/a/b.json", "/entities/Foo"},
		{"../c.json#/entities/X", "/a/b.json", "/c.json", "/entities/X"},
		{"sub/d.yaml#/methods/M", "/a/b.json", "/a/sub/d.yaml", "/methods/M"},
		{"/abs/e.json#", "/a/b.json", "/abs/e.json", ""},
		{"file:///abs/f.json#/entities/F", "/a/b.json", "/abs/f.json", "/entities/F"},
	}

	for _, tt := range tests {
		path, pointer, err := Split(tt.ref, tt.declared)
		if err != nil {
			t.Errorf("Split(%q) error = %v", tt.ref, err)
			continue
		}
		if path != tt.wantPath || pointer != tt.wantPointer {
			t.Errorf("Split(%q) = %s, %s, want %s, %s", tt.ref, path, pointer, tt.wantPath, tt.wantPointer)
		}
	}

	if _, _, err := Split("c.json", "/a/b.json"); !errors.Is(err, schema.ErrMissingHash) {
		t.Errorf("Split() without hash error = %v", err)
	}
}
