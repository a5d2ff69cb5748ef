package idgen_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/ngAnzar/rpc/adapters/idgen"
)

func TestUUID_New(t *testing.T) {
	id := idgen.UUID{}.New()

	parsed, err := uuid.Parse(id)
	if err != nil {
		t.Fatalf("uuid.Parse(%q) error = %v", id, err)
	}
	if parsed.Version() != 4 {
		t.Errorf("Version() = %d, want 4", parsed.Version())
	}
}

func TestSequential_New(t *testing.T) {
	g := idgen.NewSequential("run-")

	for _, want := range []string{"run-1", "run-2", "run-3"} {
		if got := g.New(); got != want {
			t.Errorf("New() = %s, want %s", got, want)
		}
	}
}
