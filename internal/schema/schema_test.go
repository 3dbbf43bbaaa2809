package schema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogLoads(t *testing.T) {
	c := DefaultCatalog()
	assert.True(t, c.HasKind("patient"))
	assert.Contains(t, c.Kinds(), "invoice")
}

func TestResolve(t *testing.T) {
	c := DefaultCatalog()

	t.Run("exact field", func(t *testing.T) {
		f, ok := c.Resolve("invoice", "dueDate")
		require.True(t, ok)
		assert.Equal(t, TypeDate, f.Type)
	})

	t.Run("reference carries its kind", func(t *testing.T) {
		f, ok := c.Resolve("appointment", "patient")
		require.True(t, ok)
		assert.Equal(t, TypeReference, f.Type)
		assert.Equal(t, "patient", f.Ref)
	})

	t.Run("dotted path falls back to root segment", func(t *testing.T) {
		f, ok := c.Resolve("patient", "dob.year")
		require.True(t, ok)
		assert.Equal(t, TypeDate, f.Type)
	})

	t.Run("identifier fields are self references", func(t *testing.T) {
		for _, path := range []string{"_id", "id"} {
			f, ok := c.Resolve("patient", path)
			require.True(t, ok, path)
			assert.Equal(t, TypeReference, f.Type)
			assert.Equal(t, "patient", f.Ref)
		}
	})

	t.Run("unknown field and kind", func(t *testing.T) {
		_, ok := c.Resolve("patient", "shoeSize")
		assert.False(t, ok)
		_, ok = c.Resolve("spaceship", "status")
		assert.False(t, ok)
	})
}

func TestRelation(t *testing.T) {
	c := DefaultCatalog()

	kind, ok := c.Relation("appointment", "doctor")
	require.True(t, ok)
	assert.Equal(t, "doctor", kind)

	_, ok = c.Relation("appointment", "createdBy")
	assert.False(t, ok, "opaque references cannot be expanded")

	_, ok = c.Relation("appointment", "status")
	assert.False(t, ok)
}

func TestLoadCatalogValidation(t *testing.T) {
	t.Run("unknown type", func(t *testing.T) {
		_, err := LoadCatalog(strings.NewReader("kinds:\n  a:\n    fields:\n      x: {type: money}\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown type")
	})

	t.Run("dangling reference", func(t *testing.T) {
		_, err := LoadCatalog(strings.NewReader("kinds:\n  a:\n    fields:\n      b: {type: reference, ref: ghost}\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown kind")
	})

	t.Run("missing type defaults to scalar", func(t *testing.T) {
		c, err := LoadCatalog(strings.NewReader("kinds:\n  a:\n    fields:\n      x: {}\n"))
		require.NoError(t, err)
		f, ok := c.Resolve("a", "x")
		require.True(t, ok)
		assert.Equal(t, TypeScalar, f.Type)
	})
}
