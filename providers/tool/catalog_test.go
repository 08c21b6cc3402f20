package tool

import (
	"context"
	"iter"
	"testing"
)

func namedTool(name string) GenericTool {
	return New(name, "A test tool that does nothing.", func(ctx context.Context, _ NoArgs) iter.Seq2[Chunk, error] {
		return func(yield func(Chunk, error) bool) {}
	})
}

func TestCatalog_ResolveOrder(t *testing.T) {
	first := namedTool("dup")
	second := namedTool("dup")
	catalog := NewCatalog(first, namedTool("other"), second)

	resolved, ok := catalog.Resolve("dup")
	if !ok {
		t.Fatal("expected to resolve 'dup'")
	}
	if resolved != first {
		t.Error("expected first registration to win on duplicate names")
	}

	if _, ok := catalog.Resolve("missing"); ok {
		t.Error("expected miss for unknown name")
	}
}

func TestCatalog_Describe(t *testing.T) {
	catalog := NewCatalog(namedTool("a"), namedTool("b"))

	descs, err := catalog.Describe()
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if len(descs) != 2 || descs[0].Name != "a" || descs[1].Name != "b" {
		t.Errorf("expected descriptors in registration order, got %+v", descs)
	}
}

func TestCatalog_DescribeValidationError(t *testing.T) {
	catalog := NewCatalog(namedTool("ok"), New("bad", "short", func(ctx context.Context, _ NoArgs) iter.Seq2[Chunk, error] {
		return func(yield func(Chunk, error) bool) {}
	}))

	if _, err := catalog.Describe(); err == nil {
		t.Fatal("expected validation error to propagate from Describe")
	}
}

func TestCatalog_Duplicates(t *testing.T) {
	catalog := NewCatalog(namedTool("a"), namedTool("b"), namedTool("a"), namedTool("a"), namedTool("b"))

	duplicates := catalog.Duplicates()
	if len(duplicates) != 2 || duplicates[0] != "a" || duplicates[1] != "b" {
		t.Errorf("expected [a b], got %v", duplicates)
	}

	if dups := NewCatalog(namedTool("x")).Duplicates(); dups != nil {
		t.Errorf("expected no duplicates, got %v", dups)
	}
}

func TestCatalog_CloneIsIndependent(t *testing.T) {
	catalog := NewCatalog(namedTool("a"))
	clone := catalog.Clone()
	clone.Add(namedTool("b"))

	if catalog.Len() != 1 {
		t.Errorf("clone mutation leaked into the original: len=%d", catalog.Len())
	}
	if clone.Len() != 2 {
		t.Errorf("expected clone len 2, got %d", clone.Len())
	}
}
