package env

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDefineKeepsExistingValue(t *testing.T) {
	ctx := New()

	first := ctx.Define("x", 5)
	first.Set(7)

	// A reload defines the same name again.
	second := ctx.Define("x", 5)

	got, ok := second.Get()
	if !ok || got != 7 {
		t.Fatalf("Get() after second Define = %v, %v; want 7, true", got, ok)
	}
	if v, _ := first.Get(); v != 7 {
		t.Fatalf("first accessor sees %v, want 7", v)
	}
}

func TestDefineSetsDefaultWhenAbsent(t *testing.T) {
	ctx := New()
	acc := ctx.Define("tempo", 120)

	if acc.Name() != "tempo" {
		t.Fatalf("Name() = %q", acc.Name())
	}
	if v, ok := acc.Get(); !ok || v != 120 {
		t.Fatalf("Get() = %v, %v; want 120, true", v, ok)
	}
}

func TestDefineNilDefaultStillCreatesSlot(t *testing.T) {
	ctx := New()
	ctx.Define("empty", nil)
	if !ctx.Has("empty") {
		t.Fatalf("slot with nil default should exist")
	}
	ctx.Define("empty", 3)
	if v, _ := ctx.Lookup("empty"); v != nil {
		t.Fatalf("second Define overwrote nil slot with %v", v)
	}
}

func TestUndefineMakesAccessorAbsent(t *testing.T) {
	ctx := New()
	acc := ctx.Define("x", 1)

	ctx.Undefine("x")

	if v, ok := acc.Get(); ok || v != nil {
		t.Fatalf("Get() after Undefine = %v, %v; want absent", v, ok)
	}

	// Defining again starts from the new default.
	again := ctx.Define("x", 9)
	if v, _ := again.Get(); v != 9 {
		t.Fatalf("Define after Undefine = %v, want 9", v)
	}
}

func TestNamesSorted(t *testing.T) {
	ctx := New()
	ctx.Set("b", 1)
	ctx.Define("a", 2)
	ctx.Set("c", 3)
	ctx.Delete("c")

	if diff := cmp.Diff([]string{"a", "b"}, ctx.Names()); diff != "" {
		t.Fatalf("Names() mismatch (-want +got):\n%s", diff)
	}
	if ctx.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", ctx.Len())
	}
}
