package fhirpath

import "testing"

func TestCollectionDistinct(t *testing.T) {
	c := Collection{Integer(1), Integer(2), Integer(1), Integer(3), Integer(2)}
	got := c.Distinct()
	if len(got) != 3 {
		t.Fatalf("got %d distinct elements, want 3: %v", len(got), got)
	}
	if c.IsDistinct() {
		t.Errorf("original collection has duplicates, IsDistinct() should be false")
	}
	if !got.IsDistinct() {
		t.Errorf("Distinct() result should itself be distinct")
	}
}

func TestCollectionUnionIntersectExclude(t *testing.T) {
	a := Collection{Integer(1), Integer(2), Integer(3)}
	b := Collection{Integer(2), Integer(3), Integer(4)}

	union := a.Union(b)
	if len(union) != 4 {
		t.Errorf("Union: got %d elements, want 4: %v", len(union), union)
	}

	intersect := a.Intersect(b)
	if len(intersect) != 2 {
		t.Errorf("Intersect: got %d elements, want 2: %v", len(intersect), intersect)
	}

	excluded := a.Exclude(b)
	if len(excluded) != 1 || excluded[0] != Integer(1) {
		t.Errorf("Exclude: got %v, want [1]", excluded)
	}
}

func TestCollectionCombineKeepsDuplicates(t *testing.T) {
	a := Collection{Integer(1), Integer(2)}
	b := Collection{Integer(2), Integer(3)}
	combined := a.Combine(b)
	if len(combined) != 4 {
		t.Errorf("Combine: got %d elements, want 4 (duplicates kept): %v", len(combined), combined)
	}
}

func TestCollectionSubsetSupersetOf(t *testing.T) {
	small := Collection{Integer(1), Integer(2)}
	big := Collection{Integer(1), Integer(2), Integer(3)}
	if !small.SubsetOf(big) {
		t.Errorf("expected %v to be a subset of %v", small, big)
	}
	if !big.SupersetOf(small) {
		t.Errorf("expected %v to be a superset of %v", big, small)
	}
	if big.SubsetOf(small) {
		t.Errorf("did not expect %v to be a subset of %v", big, small)
	}
}

func TestCollectionContains(t *testing.T) {
	c := Collection{String("a"), String("b")}
	if !c.Contains(String("a")) {
		t.Errorf("expected collection to contain %q", "a")
	}
	if c.Contains(String("z")) {
		t.Errorf("did not expect collection to contain %q", "z")
	}
}

func TestCollectionEqualRequiresSameOrder(t *testing.T) {
	a := Collection{Integer(1), Integer(2)}
	b := Collection{Integer(2), Integer(1)}
	eq, ok := a.Equal(b)
	if !ok {
		t.Fatalf("Equal should be decidable for two fully-populated integer collections")
	}
	if eq {
		t.Errorf("collections in different order should not be Equal")
	}
}

func TestCollectionEquivalentIgnoresOrder(t *testing.T) {
	a := Collection{Integer(1), Integer(2)}
	b := Collection{Integer(2), Integer(1)}
	if !a.Equivalent(b) {
		t.Errorf("collections with the same multiset of elements should be Equivalent regardless of order")
	}
}
