package core

import (
	"fmt"
	"sort"
	"sync"
)

// FormatInfo describes an upload format for listings and docs.
type FormatInfo struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	ContentType string `json:"content_type"`
	Description string `json:"description"`

	// Tables returns the table names an upload targeting name writes to.
	Tables func(name string) []string `json:"-"`
}

// BuildFunc parses, validates and transforms decoded text into a Plan.
// Validation defects are returned as *ValidationFailed; no storage access
// happens here.
type BuildFunc func(text string, opts BuildOptions) (*Plan, error)

// FormatDefinition contains everything needed to process one format.
type FormatDefinition struct {
	Info  FormatInfo
	Build BuildFunc
}

var (
	registry   = make(map[string]FormatDefinition)
	registryMu sync.RWMutex
)

// Register adds a format definition to the registry.
// Panics if a format with the same key is already registered.
func Register(def FormatDefinition) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[def.Info.Key]; exists {
		panic(fmt.Sprintf("format already registered: %s", def.Info.Key))
	}
	if def.Build == nil {
		panic(fmt.Sprintf("format %s has no Build func", def.Info.Key))
	}
	if def.Info.Tables == nil {
		def.Info.Tables = func(name string) []string { return []string{name} }
	}

	registry[def.Info.Key] = def
}

// Get returns a format definition by key.
// Returns false if not found.
func Get(key string) (FormatDefinition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[key]
	return def, ok
}

// All returns all registered formats sorted by key.
func All() []FormatDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]FormatDefinition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Info.Key < result[j].Info.Key
	})

	return result
}

// Keys returns the sorted keys of all registered formats.
func Keys() []string {
	defs := All()
	keys := make([]string, len(defs))
	for i, def := range defs {
		keys[i] = def.Info.Key
	}
	return keys
}

// FormatCount returns the number of registered formats.
func FormatCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// Clear removes all registered formats.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]FormatDefinition)
}
