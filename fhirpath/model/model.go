// Package model supplies two fhirpath.ModelProvider implementations
// (spec.md §4.4, SPEC_FULL.md's module map): an in-memory reference
// provider for tests, and a TTL-caching decorator any
// real provider (backed by a package cache or network StructureDefinition
// source) can be wrapped in.
//
// Grounded on the teacher's own model package shape
// (_examples/damedic-fhir-toolbox-go/fhirpath's TypeByName/Children
// contract) adapted to spec.md §4.4's async, context-first method set.
package model

import (
	"context"
	"sync"
	"time"

	"github.com/fhirpath-go/fhirpath-engine/fhirpath"
)

// typeEntry is one registered type's full reflection record.
type typeEntry struct {
	info       fhirpath.ClassInfo
	kind       string // "resource", "complex", or "primitive"
	properties map[string][]fhirpath.TypeInfo
	choices    map[string][]string // base property -> legal suffixes
}

// InMemoryProvider is a reference fhirpath.ModelProvider backed by an
// explicit in-process type registry, suitable for tests where no real FHIR
// package server is available.
type InMemoryProvider struct {
	mu      sync.RWMutex
	types   map[string]*typeEntry
	parents map[string]string // type name -> immediate base type name
}

// NewInMemoryProvider returns an empty provider; call RegisterType to
// populate it before use.
func NewInMemoryProvider() *InMemoryProvider {
	return &InMemoryProvider{
		types:   make(map[string]*typeEntry),
		parents: make(map[string]string),
	}
}

// RegisterType adds (or replaces) a type definition. kind is one of
// "resource", "complex", "primitive". baseType is the immediate supertype
// name ("" for System.Any-rooted types).
func (p *InMemoryProvider) RegisterType(kind, name, baseType string, elements []fhirpath.ClassInfoElement) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry := &typeEntry{
		kind: kind,
		info: fhirpath.ClassInfo{
			Namespace: "FHIR",
			Name:      name,
			BaseType:  fhirpath.TypeSpecifier{Namespace: "FHIR", Name: baseType},
			Element:   elements,
		},
		properties: make(map[string][]fhirpath.TypeInfo, len(elements)),
	}
	for _, el := range elements {
		entry.properties[el.Name] = []fhirpath.TypeInfo{fhirpath.SimpleTypeInfo{
			Namespace: el.Type.Namespace,
			Name:      el.Type.Name,
		}}
	}
	p.types[name] = entry
	if baseType != "" {
		p.parents[name] = baseType
	}
}

// RegisterChoice declares that baseProperty on parent (e.g. Observation's
// "value") expands to a `value<Suffix>` property per suffix in suffixes.
func (p *InMemoryProvider) RegisterChoice(parent, baseProperty string, suffixes []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.types[parent]
	if !ok {
		return
	}
	if entry.choices == nil {
		entry.choices = make(map[string][]string)
	}
	entry.choices[baseProperty] = suffixes
}

func (p *InMemoryProvider) TypeByName(ctx context.Context, name fhirpath.TypeSpecifier) (fhirpath.TypeInfo, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entry, ok := p.types[name.Name]
	if !ok {
		return nil, false, nil
	}
	return entry.info, true, nil
}

func (p *InMemoryProvider) PropertyType(ctx context.Context, parent fhirpath.TypeSpecifier, property string) ([]fhirpath.TypeInfo, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entry, ok := p.types[parent.Name]
	if !ok {
		return nil, false, nil
	}
	types, ok := entry.properties[property]
	return types, ok, nil
}

func (p *InMemoryProvider) Children(ctx context.Context, parent fhirpath.TypeSpecifier) ([]fhirpath.ClassInfoElement, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entry, ok := p.types[parent.Name]
	if !ok {
		return nil, nil
	}
	return entry.info.Element, nil
}

func (p *InMemoryProvider) TypeNames(ctx context.Context) (resourceTypes, complexTypes, primitiveTypes []string, err error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for name, entry := range p.types {
		switch entry.kind {
		case "resource":
			resourceTypes = append(resourceTypes, name)
		case "complex":
			complexTypes = append(complexTypes, name)
		case "primitive":
			primitiveTypes = append(primitiveTypes, name)
		}
	}
	return resourceTypes, complexTypes, primitiveTypes, nil
}

func (p *InMemoryProvider) IsSubtypeOf(ctx context.Context, sub, base fhirpath.TypeSpecifier) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	name := sub.Name
	for {
		if name == base.Name {
			return true, nil
		}
		parent, ok := p.parents[name]
		if !ok {
			return false, nil
		}
		name = parent
	}
}

func (p *InMemoryProvider) ResolveChoiceType(ctx context.Context, parent fhirpath.TypeSpecifier, baseProperty, suffix string) (string, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entry, ok := p.types[parent.Name]
	if !ok {
		return "", false, nil
	}
	for _, s := range entry.choices[baseProperty] {
		if s == suffix {
			return baseProperty + suffix, true, nil
		}
	}
	return "", false, nil
}

func (p *InMemoryProvider) ChoiceSuffixes(ctx context.Context, parent fhirpath.TypeSpecifier, baseProperty string) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entry, ok := p.types[parent.Name]
	if !ok {
		return nil, nil
	}
	return entry.choices[baseProperty], nil
}

// ConformsTo has no profile validator wired in the reference provider
// (StructureDefinition/profile validation is the out-of-scope package
// manager per spec.md §1), so it always reports ErrNoProfileValidator.
func (p *InMemoryProvider) ConformsTo(ctx context.Context, resource fhirpath.Resource, profileURL string) (fhirpath.ValidationOutcome, error) {
	return fhirpath.ValidationOutcome{}, fhirpath.ErrNoProfileValidator
}

// --- caching decorator ---

// cacheKey identifies one memoized call; concrete keys are built per method
// below to keep the zero-allocation common path (method dispatch) cheap.
type cacheKey struct {
	method string
	a, b   string
}

type cacheEntry struct {
	value   any
	ok      bool
	err     error
	expires time.Time
}

// Stats reports CachingProvider hit/miss/eviction counters, per spec.md §5's
// caching decorator requirement.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

// CachingProvider wraps any fhirpath.ModelProvider with a TTL cache over its
// seven lookup operations (TypeByName, PropertyType, Children, TypeNames,
// IsSubtypeOf, ResolveChoiceType, ChoiceSuffixes); ConformsTo is never cached since
// profile validation may depend on the resource's exact content.
//
// Concurrent lookups for the same key are deduplicated: the first caller to
// miss the cache performs the underlying call while later callers for the
// same key block on its result instead of issuing redundant calls, grounded
// on the standard wait-group-per-key "singleflight" shape (no x/sync
// dependency: the retrieved examples that list golang.org/x/sync carry it
// only as an indirect transitive dependency with no call site to learn the
// API from, see DESIGN.md).
type CachingProvider struct {
	inner fhirpath.ModelProvider
	ttl   time.Duration

	mu     sync.Mutex
	cache  map[cacheKey]cacheEntry
	flight map[cacheKey]*sync.WaitGroup
	stats  Stats
}

// NewCachingProvider wraps inner with a cache whose entries expire after
// ttl. A zero ttl means entries never expire until explicitly invalidated.
func NewCachingProvider(inner fhirpath.ModelProvider, ttl time.Duration) *CachingProvider {
	return &CachingProvider{
		inner:  inner,
		ttl:    ttl,
		cache:  make(map[cacheKey]cacheEntry),
		flight: make(map[cacheKey]*sync.WaitGroup),
	}
}

// Stats returns a snapshot of the cache's hit/miss/eviction counters.
func (c *CachingProvider) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Invalidate clears every cached entry, forcing the next lookup of any key
// to reach the inner provider.
func (c *CachingProvider) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Evictions += int64(len(c.cache))
	c.cache = make(map[cacheKey]cacheEntry)
}

// cached runs compute (the inner provider's call) under the cache/singleflight
// protocol for key, returning a previously stored value if still fresh.
func cached[T any](c *CachingProvider, key cacheKey, compute func() (T, error)) (T, error) {
	c.mu.Lock()
	if entry, ok := c.cache[key]; ok {
		if c.ttl <= 0 || time.Now().Before(entry.expires) {
			c.stats.Hits++
			c.mu.Unlock()
			return entry.value.(T), entry.err
		}
		delete(c.cache, key)
		c.stats.Evictions++
	}
	if wg, inFlight := c.flight[key]; inFlight {
		c.mu.Unlock()
		wg.Wait()
		c.mu.Lock()
		entry := c.cache[key]
		c.mu.Unlock()
		return entry.value.(T), entry.err
	}
	wg := &sync.WaitGroup{}
	wg.Add(1)
	c.flight[key] = wg
	c.stats.Misses++
	c.mu.Unlock()

	value, err := compute()

	c.mu.Lock()
	expires := time.Time{}
	if c.ttl > 0 {
		expires = time.Now().Add(c.ttl)
	}
	c.cache[key] = cacheEntry{value: value, err: err, expires: expires}
	delete(c.flight, key)
	c.mu.Unlock()
	wg.Done()

	return value, err
}

type typeByNameResult struct {
	info fhirpath.TypeInfo
	ok   bool
}

func (c *CachingProvider) TypeByName(ctx context.Context, name fhirpath.TypeSpecifier) (fhirpath.TypeInfo, bool, error) {
	key := cacheKey{method: "TypeByName", a: name.String()}
	r, err := cached(c, key, func() (typeByNameResult, error) {
		info, ok, err := c.inner.TypeByName(ctx, name)
		return typeByNameResult{info: info, ok: ok}, err
	})
	return r.info, r.ok, err
}

type propertyTypeResult struct {
	types []fhirpath.TypeInfo
	ok    bool
}

func (c *CachingProvider) PropertyType(ctx context.Context, parent fhirpath.TypeSpecifier, property string) ([]fhirpath.TypeInfo, bool, error) {
	key := cacheKey{method: "PropertyType", a: parent.String(), b: property}
	r, err := cached(c, key, func() (propertyTypeResult, error) {
		types, ok, err := c.inner.PropertyType(ctx, parent, property)
		return propertyTypeResult{types: types, ok: ok}, err
	})
	return r.types, r.ok, err
}

func (c *CachingProvider) Children(ctx context.Context, parent fhirpath.TypeSpecifier) ([]fhirpath.ClassInfoElement, error) {
	key := cacheKey{method: "Children", a: parent.String()}
	return cached(c, key, func() ([]fhirpath.ClassInfoElement, error) {
		return c.inner.Children(ctx, parent)
	})
}

type typeNamesResult struct {
	resourceTypes, complexTypes, primitiveTypes []string
}

func (c *CachingProvider) TypeNames(ctx context.Context) (resourceTypes, complexTypes, primitiveTypes []string, err error) {
	key := cacheKey{method: "TypeNames"}
	r, err := cached(c, key, func() (typeNamesResult, error) {
		rt, ct, pt, err := c.inner.TypeNames(ctx)
		return typeNamesResult{resourceTypes: rt, complexTypes: ct, primitiveTypes: pt}, err
	})
	return r.resourceTypes, r.complexTypes, r.primitiveTypes, err
}

func (c *CachingProvider) IsSubtypeOf(ctx context.Context, sub, base fhirpath.TypeSpecifier) (bool, error) {
	key := cacheKey{method: "IsSubtypeOf", a: sub.String(), b: base.String()}
	return cached(c, key, func() (bool, error) {
		return c.inner.IsSubtypeOf(ctx, sub, base)
	})
}

type resolveChoiceResult struct {
	name string
	ok   bool
}

func (c *CachingProvider) ResolveChoiceType(ctx context.Context, parent fhirpath.TypeSpecifier, baseProperty, suffix string) (string, bool, error) {
	key := cacheKey{method: "ResolveChoiceType", a: parent.String(), b: baseProperty + "/" + suffix}
	r, err := cached(c, key, func() (resolveChoiceResult, error) {
		name, ok, err := c.inner.ResolveChoiceType(ctx, parent, baseProperty, suffix)
		return resolveChoiceResult{name: name, ok: ok}, err
	})
	return r.name, r.ok, err
}

func (c *CachingProvider) ChoiceSuffixes(ctx context.Context, parent fhirpath.TypeSpecifier, baseProperty string) ([]string, error) {
	key := cacheKey{method: "ChoiceSuffixes", a: parent.String(), b: baseProperty}
	return cached(c, key, func() ([]string, error) {
		return c.inner.ChoiceSuffixes(ctx, parent, baseProperty)
	})
}

// ConformsTo is never cached: profile validity can depend on the exact
// resource content, not just its type, so memoizing by type would be wrong.
func (c *CachingProvider) ConformsTo(ctx context.Context, resource fhirpath.Resource, profileURL string) (fhirpath.ValidationOutcome, error) {
	return c.inner.ConformsTo(ctx, resource, profileURL)
}

var (
	_ fhirpath.ModelProvider = (*InMemoryProvider)(nil)
	_ fhirpath.ModelProvider = (*CachingProvider)(nil)
)
