package compiler

import (
	"sort"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"basegen/pkg/asm"
	"basegen/pkg/vm"
)

// StubCache maps stub keys to generated code objects so each stub variant
// is generated once per compilation context. It is single-writer: share one
// instance across goroutines only with external synchronization.
type StubCache struct {
	alloc   asm.Allocator
	entries map[StubKey]*vm.CodeObject

	// Fixed slot for the stack check stub, which has no minor key.
	stackCheck *vm.CodeObject
}

// NewStubCache builds an empty cache generating through alloc; nil selects
// the default infallible allocator.
func NewStubCache(alloc asm.Allocator) *StubCache {
	if alloc == nil {
		alloc = asm.DefaultAllocator
	}
	return &StubCache{
		alloc:   alloc,
		entries: make(map[StubKey]*vm.CodeObject),
	}
}

// Len reports the number of entries in the shared dictionary. The custom
// slot is not counted.
func (c *StubCache) Len() int { return len(c.entries) }

// Codes returns every generated code object, custom slots included, ordered
// by key for stable listings.
func (c *StubCache) Codes() []*vm.CodeObject {
	keys := make([]StubKey, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Major != keys[j].Major {
			return keys[i].Major < keys[j].Major
		}
		return keys[i].Minor < keys[j].Minor
	})

	out := make([]*vm.CodeObject, 0, len(keys)+1)
	if c.stackCheck != nil {
		out = append(out, c.stackCheck)
	}
	for _, k := range keys {
		out = append(out, c.entries[k])
	}
	return out
}

// GetCode returns the code object for s, generating it on the first
// request. Generation failure is fatal on this path.
func (c *StubCache) GetCode(s Stub) *vm.CodeObject {
	co, err := c.TryGetCode(s)
	if err != nil {
		panic(errors.Wrapf(err, "compiler: stub %s", s.Name()))
	}
	return co
}

// TryGetCode is the fallible variant: it either succeeds or returns the
// generation error with the cache unchanged.
func (c *StubCache) TryGetCode(s Stub) (*vm.CodeObject, error) {
	if cs, ok := s.(customCached); ok {
		slot := cs.customSlot(c)
		if *slot != nil {
			glog.V(2).Infof("stub cache hit: %s (custom slot)", s.Name())
			return *slot, nil
		}
		co, err := c.generate(s)
		if err != nil {
			return nil, err
		}
		*slot = co
		return co, nil
	}

	key := keyOf(s)
	if co, ok := c.entries[key]; ok {
		glog.V(2).Infof("stub cache hit: %s", s.Name())
		return co, nil
	}
	co, err := c.generate(s)
	if err != nil {
		return nil, err
	}
	c.entries[key] = co
	return co, nil
}

func (c *StubCache) generate(s Stub) (*vm.CodeObject, error) {
	glog.V(1).Infof("generating stub %s (major %d, minor %d)", s.Name(), s.Major(), s.MinorKey())
	m := asm.New(c.alloc)
	m.SetGeneratingStub(true)
	m.RecordComment("stub %s", s.Name())
	s.Generate(m)
	co, err := m.Code(s.Name(), 0, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "generating stub %s", s.Name())
	}
	return co, nil
}
