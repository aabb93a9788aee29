// Package testutil serves a small, fixed OECD extract for tests.
package testutil

import (
	"embed"
	"io/fs"

	"agridash/internal/engine"
	"agridash/internal/source"
)

//go:embed testdata/*.csv
var fixtures embed.FS

// FS holds agri.csv, area.csv, water.csv and energy.csv.
func FS() fs.FS {
	sub, err := fs.Sub(fixtures, "testdata")
	if err != nil {
		panic(err)
	}
	return sub
}

// Source reads the fixture tables.
func Source() engine.Source {
	return source.NewFiles(FS())
}

// Cache returns a fresh cache over the fixture tables.
func Cache() *engine.Cache {
	return engine.NewCache(Source())
}
