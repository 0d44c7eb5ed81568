// Package schemafp fingerprints Go types into a SchemaDescriptor comparable,
// field for field, with the remote's schema.simple response.
package schemafp

import (
	"reflect"

	"github.com/andreyvit/streamrep/fnv"
)

// Descriptor identifies an entry type by a stable fingerprint plus the
// human-chosen entry and namespace names. Equality is structural: two
// descriptors from independently built binaries match iff every field
// matches.
type Descriptor struct {
	TypeID        string `json:"type_id"`
	EntryName     string `json:"entry_name"`
	NamespaceName string `json:"namespace_name"`
}

// Equal reports whether two descriptors are structurally equal.
func (d Descriptor) Equal(other Descriptor) bool {
	return d == other
}

const (
	DefaultEntryName     = "Entry"
	DefaultNamespaceName = "Stream"
)

// Reflect builds a Descriptor for T by hashing its exported field names and
// types with FNV-1a/128. This is a structural fingerprint, not a Go type
// identity check: two types with the same exported field names and field
// types in the same order, and the same total field count, fingerprint
// identically, matching the wire-level schema.simple contract, which only
// ever describes field shape. Scalar fields hash their type's name (t.String),
// so a named type and its underlying type do not match.
func Reflect[T any](entryName, namespaceName string) Descriptor {
	var zero T
	typeID := fingerprint(reflect.TypeOf(zero))
	return Descriptor{
		TypeID:        typeID,
		EntryName:     entryName,
		NamespaceName: namespaceName,
	}
}

func fingerprint(t reflect.Type) string {
	h := fnv.New128()
	writeType(&h, t)
	return h.String()
}

func writeType(h *fnv.Hash128, t reflect.Type) {
	if t == nil {
		h.WriteStringZ("nil")
		return
	}
	for t.Kind() == reflect.Ptr {
		h.WriteStringZ("ptr")
		t = t.Elem()
	}
	h.WriteStringZ(t.Kind().String())
	switch t.Kind() {
	case reflect.Struct:
		h.WriteInt(t.NumField())
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			h.WriteStringZ(f.Name)
			writeType(h, f.Type)
		}
	case reflect.Slice, reflect.Array:
		writeType(h, t.Elem())
	case reflect.Map:
		writeType(h, t.Key())
		writeType(h, t.Elem())
	default:
		h.WriteStringZ(t.String())
	}
}
