package schema

import (
	"bytes"
	_ "embed"
)

//go:embed default.yaml
var defaultCatalog []byte

// DefaultCatalog returns the built-in clinic catalog. It panics if the embedded
// file is invalid, which the package tests rule out.
func DefaultCatalog() *Catalog {
	c, err := LoadCatalog(bytes.NewReader(defaultCatalog))
	if err != nil {
		panic(err)
	}
	return c
}
