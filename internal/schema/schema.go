// Package schema answers "what semantic type does this field hold" for record
// kinds. The notification engine consumes it to typecast filters and change
// payloads, and the record stores consume it to follow relations on expansion.
package schema

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// FieldType is the semantic type of a field.
type FieldType string

const (
	TypeScalar    FieldType = "scalar"
	TypeDate      FieldType = "date"
	TypeReference FieldType = "reference"
)

// Field describes one top-level (or dotted) field of a kind.
type Field struct {
	Type FieldType `yaml:"type"`
	// Ref names the kind a reference points at. Empty for opaque identifiers.
	Ref   string `yaml:"ref,omitempty"`
	Array bool   `yaml:"array,omitempty"`
}

// Resolver reports the semantic type of a field path for a record kind.
type Resolver interface {
	Resolve(kind, path string) (Field, bool)
}

// Catalog is a static, read-only Resolver. Safe for concurrent use.
type Catalog struct {
	kinds map[string]map[string]Field
}

type catalogFile struct {
	Kinds map[string]struct {
		Fields map[string]Field `yaml:"fields"`
	} `yaml:"kinds"`
}

// NewCatalog validates kinds and builds a Catalog.
func NewCatalog(kinds map[string]map[string]Field) (*Catalog, error) {
	c := &Catalog{kinds: make(map[string]map[string]Field, len(kinds))}
	for kind, fields := range kinds {
		if strings.TrimSpace(kind) == "" {
			return nil, fmt.Errorf("schema: empty kind name")
		}
		copied := make(map[string]Field, len(fields))
		for name, f := range fields {
			if f.Type == "" {
				f.Type = TypeScalar
			}
			switch f.Type {
			case TypeScalar, TypeDate, TypeReference:
			default:
				return nil, fmt.Errorf("schema: kind %q field %q: unknown type %q", kind, name, f.Type)
			}
			if f.Ref != "" && f.Type != TypeReference {
				return nil, fmt.Errorf("schema: kind %q field %q: ref set on %s field", kind, name, f.Type)
			}
			copied[name] = f
		}
		c.kinds[kind] = copied
	}
	for kind, fields := range c.kinds {
		for name, f := range fields {
			if f.Ref == "" {
				continue
			}
			if _, ok := c.kinds[f.Ref]; !ok {
				return nil, fmt.Errorf("schema: kind %q field %q references unknown kind %q", kind, name, f.Ref)
			}
		}
	}
	return c, nil
}

// LoadCatalog decodes a YAML catalog:
//
//	kinds:
//	  patient:
//	    fields:
//	      dob: {type: date}
//	      practice: {type: reference, ref: practice}
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var file catalogFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("schema: decode catalog: %w", err)
	}
	kinds := make(map[string]map[string]Field, len(file.Kinds))
	for name, k := range file.Kinds {
		kinds[name] = k.Fields
	}
	return NewCatalog(kinds)
}

// LoadCatalogFile reads a YAML catalog from disk.
func LoadCatalogFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("schema: open catalog: %w", err)
	}
	defer f.Close()
	return LoadCatalog(f)
}

// Resolve looks up the exact dotted path first, then its top-level segment so
// sub-document paths inherit the type of their root field. "_id" and "id" always
// resolve to a reference to the kind itself.
func (c *Catalog) Resolve(kind, path string) (Field, bool) {
	fields, ok := c.kinds[kind]
	if !ok {
		return Field{}, false
	}
	if path == "_id" || path == "id" {
		return Field{Type: TypeReference, Ref: kind}, true
	}
	if f, ok := fields[path]; ok {
		return f, true
	}
	root, _, _ := strings.Cut(path, ".")
	f, ok := fields[root]
	return f, ok
}

// Relation returns the kind a single relation segment points at.
func (c *Catalog) Relation(kind, field string) (string, bool) {
	f, ok := c.Resolve(kind, field)
	if !ok || f.Type != TypeReference || f.Ref == "" {
		return "", false
	}
	return f.Ref, true
}

// HasKind reports whether kind is known.
func (c *Catalog) HasKind(kind string) bool {
	_, ok := c.kinds[kind]
	return ok
}

// Kinds lists known kinds in sorted order.
func (c *Catalog) Kinds() []string {
	out := make([]string, 0, len(c.kinds))
	for k := range c.kinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
