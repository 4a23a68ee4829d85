package model_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fhirpath-go/fhirpath-engine/fhirpath"
	"github.com/fhirpath-go/fhirpath-engine/fhirpath/model"
)

func newPatientProvider() *model.InMemoryProvider {
	p := model.NewInMemoryProvider()
	p.RegisterType("resource", "Patient", "DomainResource", []fhirpath.ClassInfoElement{
		{Name: "active", Type: fhirpath.TypeSpecifier{Namespace: "System", Name: "Boolean"}},
		{Name: "name", Type: fhirpath.TypeSpecifier{Namespace: "FHIR", Name: "HumanName", List: true}},
	})
	p.RegisterType("complex-type", "HumanName", "Element", []fhirpath.ClassInfoElement{
		{Name: "family", Type: fhirpath.TypeSpecifier{Namespace: "System", Name: "String"}},
	})
	p.RegisterChoice("Patient", "deceased", []string{"Boolean", "DateTime"})
	return p
}

func TestInMemoryProviderPropertyType(t *testing.T) {
	p := newPatientProvider()
	ctx := context.Background()
	types, ok, err := p.PropertyType(ctx, fhirpath.TypeSpecifier{Namespace: "FHIR", Name: "Patient"}, "active")
	if err != nil {
		t.Fatalf("PropertyType: %v", err)
	}
	if !ok || len(types) != 1 {
		t.Fatalf("PropertyType(active) = %v, %v, want 1 type", types, ok)
	}
	if _, ok, _ := p.PropertyType(ctx, fhirpath.TypeSpecifier{Namespace: "FHIR", Name: "Patient"}, "nonexistent"); ok {
		t.Errorf("expected PropertyType(nonexistent) to report not-found")
	}
}

func TestInMemoryProviderIsSubtypeOf(t *testing.T) {
	p := newPatientProvider()
	ctx := context.Background()
	ok, err := p.IsSubtypeOf(ctx,
		fhirpath.TypeSpecifier{Namespace: "FHIR", Name: "Patient"},
		fhirpath.TypeSpecifier{Namespace: "FHIR", Name: "DomainResource"},
	)
	if err != nil || !ok {
		t.Errorf("IsSubtypeOf(Patient, DomainResource) = %v, %v, want true", ok, err)
	}
	ok, err = p.IsSubtypeOf(ctx,
		fhirpath.TypeSpecifier{Namespace: "FHIR", Name: "Patient"},
		fhirpath.TypeSpecifier{Namespace: "FHIR", Name: "HumanName"},
	)
	if err != nil || ok {
		t.Errorf("IsSubtypeOf(Patient, HumanName) = %v, %v, want false", ok, err)
	}
}

func TestInMemoryProviderChoiceSuffixes(t *testing.T) {
	p := newPatientProvider()
	ctx := context.Background()
	suffixes, err := p.ChoiceSuffixes(ctx, fhirpath.TypeSpecifier{Namespace: "FHIR", Name: "Patient"}, "deceased")
	if err != nil {
		t.Fatalf("ChoiceSuffixes: %v", err)
	}
	if len(suffixes) != 2 {
		t.Fatalf("got %v, want 2 suffixes", suffixes)
	}
	name, ok, err := p.ResolveChoiceType(ctx, fhirpath.TypeSpecifier{Namespace: "FHIR", Name: "Patient"}, "deceased", "Boolean")
	if err != nil || !ok || name != "deceasedBoolean" {
		t.Errorf("ResolveChoiceType = %q, %v, %v, want deceasedBoolean, true, nil", name, ok, err)
	}
}

func TestInMemoryProviderConformsToHasNoValidator(t *testing.T) {
	p := newPatientProvider()
	_, err := p.ConformsTo(context.Background(), nil, "http://example.org/StructureDefinition/my-profile")
	if err == nil {
		t.Errorf("expected ErrNoProfileValidator from the reference provider")
	}
}

// countingProvider wraps InMemoryProvider and counts calls, so the caching
// decorator's hit/miss/dedup behavior can be observed independently of the
// underlying provider's own state.
type countingProvider struct {
	*model.InMemoryProvider
	mu    sync.Mutex
	calls int
}

func (c *countingProvider) PropertyType(ctx context.Context, parent fhirpath.TypeSpecifier, property string) ([]fhirpath.TypeInfo, bool, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	time.Sleep(5 * time.Millisecond)
	return c.InMemoryProvider.PropertyType(ctx, parent, property)
}

func TestCachingProviderHitsAndMisses(t *testing.T) {
	inner := &countingProvider{InMemoryProvider: newPatientProvider()}
	cache := model.NewCachingProvider(inner, time.Minute)
	ctx := context.Background()
	parent := fhirpath.TypeSpecifier{Namespace: "FHIR", Name: "Patient"}

	if _, _, err := cache.PropertyType(ctx, parent, "active"); err != nil {
		t.Fatalf("PropertyType: %v", err)
	}
	if _, _, err := cache.PropertyType(ctx, parent, "active"); err != nil {
		t.Fatalf("PropertyType: %v", err)
	}

	stats := cache.Stats()
	if stats.Misses != 1 || stats.Hits != 1 {
		t.Errorf("stats = %+v, want 1 miss and 1 hit", stats)
	}
	if inner.calls != 1 {
		t.Errorf("inner provider called %d times, want 1 (second call should hit cache)", inner.calls)
	}
}

func TestCachingProviderDedupsConcurrentMisses(t *testing.T) {
	inner := &countingProvider{InMemoryProvider: newPatientProvider()}
	cache := model.NewCachingProvider(inner, time.Minute)
	ctx := context.Background()
	parent := fhirpath.TypeSpecifier{Namespace: "FHIR", Name: "Patient"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := cache.PropertyType(ctx, parent, "active"); err != nil {
				t.Errorf("PropertyType: %v", err)
			}
		}()
	}
	wg.Wait()

	if inner.calls != 1 {
		t.Errorf("inner provider called %d times concurrently, want exactly 1 (dedup should collapse the rest)", inner.calls)
	}
}

func TestCachingProviderInvalidate(t *testing.T) {
	inner := &countingProvider{InMemoryProvider: newPatientProvider()}
	cache := model.NewCachingProvider(inner, time.Minute)
	ctx := context.Background()
	parent := fhirpath.TypeSpecifier{Namespace: "FHIR", Name: "Patient"}

	if _, _, err := cache.PropertyType(ctx, parent, "active"); err != nil {
		t.Fatalf("PropertyType: %v", err)
	}
	cache.Invalidate()
	if _, _, err := cache.PropertyType(ctx, parent, "active"); err != nil {
		t.Fatalf("PropertyType: %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("inner provider called %d times, want 2 (cache should be cold after Invalidate)", inner.calls)
	}
	if cache.Stats().Evictions == 0 {
		t.Errorf("expected Invalidate to record an eviction")
	}
}
