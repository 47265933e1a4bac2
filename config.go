package gatekeep

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const featureKeyPrefix = "feature"

// Feature identifies one flag inside a namespace. Its canonical key form
// is "feature::{namespace}::{property}".
type Feature struct {
	Namespace string
	Property  string
}

// Key returns the canonical flag identifier.
func (f Feature) Key() string {
	return featureKeyPrefix + "::" + f.Namespace + "::" + f.Property
}

// ParseFeatureKey parses a canonical "feature::{namespace}::{property}"
// identifier.
func ParseFeatureKey(key string) (Feature, error) {
	parts := strings.Split(key, "::")
	if len(parts) != 3 || parts[0] != featureKeyPrefix || parts[1] == "" || parts[2] == "" {
		return Feature{}, fmt.Errorf("invalid feature key %q", key)
	}
	return Feature{Namespace: parts[1], Property: parts[2]}, nil
}

// Metadata describes where a configuration snapshot came from. All fields
// are optional.
type Metadata struct {
	Version     string
	GeneratedAt time.Time
	Source      string
}

// Configuration is an immutable snapshot mapping flag identifiers to their
// definitions. Configurations are produced wholesale and shared freely:
// a registry's history and any in-flight evaluation may hold the same
// snapshot at once, so nothing may mutate one after construction.
type Configuration struct {
	flags map[string]*FlagDefinition
	meta  Metadata
}

// NewConfiguration builds a snapshot from the given flags, copying the map
// so later changes by the caller cannot leak in.
func NewConfiguration(flags map[string]*FlagDefinition, meta Metadata) *Configuration {
	copied := make(map[string]*FlagDefinition, len(flags))
	for key, def := range flags {
		copied[key] = def
	}
	return &Configuration{flags: copied, meta: meta}
}

// EmptyConfiguration returns a snapshot with no flags.
func EmptyConfiguration() *Configuration {
	return &Configuration{flags: map[string]*FlagDefinition{}}
}

// Flag looks up a definition by its canonical key.
func (c *Configuration) Flag(key string) (*FlagDefinition, bool) {
	def, ok := c.flags[key]
	return def, ok
}

// Len returns the number of flags in the snapshot.
func (c *Configuration) Len() int {
	return len(c.flags)
}

// Keys returns all flag identifiers in lexical order.
func (c *Configuration) Keys() []string {
	keys := make([]string, 0, len(c.flags))
	for key := range c.flags {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Metadata returns the snapshot's metadata.
func (c *Configuration) Metadata() Metadata {
	return c.meta
}

// Patch is a set of overlay operations applied to a prior snapshot:
// add-or-overwrite by key, then remove by key.
type Patch struct {
	Flags      map[string]*FlagDefinition
	RemoveKeys []string
}

// Apply builds a new Configuration by overlaying the patch onto c. The
// receiver is unchanged.
func (c *Configuration) Apply(p Patch, meta Metadata) *Configuration {
	next := make(map[string]*FlagDefinition, len(c.flags)+len(p.Flags))
	for key, def := range c.flags {
		next[key] = def
	}
	for key, def := range p.Flags {
		next[key] = def
	}
	for _, key := range p.RemoveKeys {
		delete(next, key)
	}
	return &Configuration{flags: next, meta: meta}
}
