package registry

import (
	"fmt"
	"sync"
)

// Registry is a generic name-keyed component registry.
type Registry[T any] interface {
	Register(name string, item T) error
	Replace(name string, item T)
	Get(name string) (T, bool)
	List() map[string]T
	Names() []string
	Remove(name string) bool
	Count() int
	Clear()
}

// BaseRegistry provides a thread-safe implementation of Registry.
type BaseRegistry[T any] struct {
	mu    sync.RWMutex
	items map[string]T
}

func NewBaseRegistry[T any]() *BaseRegistry[T] {
	return &BaseRegistry[T]{
		items: make(map[string]T),
	}
}

// Register adds an item under name. Empty names and duplicates are rejected.
func (r *BaseRegistry[T]) Register(name string, item T) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[name]; exists {
		return fmt.Errorf("item %s already registered", name)
	}

	r.items[name] = item
	return nil
}

// Replace stores the item under name, overwriting any existing entry.
func (r *BaseRegistry[T]) Replace(name string, item T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[name] = item
}

func (r *BaseRegistry[T]) Get(name string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, exists := r.items[name]
	return item, exists
}

func (r *BaseRegistry[T]) List() map[string]T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]T, len(r.items))
	for name, item := range r.items {
		result[name] = item
	}
	return result
}

func (r *BaseRegistry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.items))
	for name := range r.items {
		names = append(names, name)
	}
	return names
}

func (r *BaseRegistry[T]) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[name]; !exists {
		return false
	}

	delete(r.items, name)
	return true
}

func (r *BaseRegistry[T]) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

func (r *BaseRegistry[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = make(map[string]T)
}
