package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"renderd/internal/common/fsutil"
	"renderd/pkg/geom"
)

// LoadDir scans a directory for mountable geometry libraries: either a
// subdirectory containing at least one *.scad file, or a standalone *.scad
// file. ID is the entry name; Path is absolute.
func LoadDir(dir string) ([]geom.Library, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var libs []geom.Library
	for _, e := range entries {
		name := e.Name()
		p := filepath.Join(abs, name)
		if e.IsDir() {
			if !containsSources(p) {
				continue
			}
			libs = append(libs, geom.Library{ID: name, Name: name, Path: p})
			continue
		}
		if strings.HasSuffix(strings.ToLower(name), ".scad") {
			id := strings.TrimSuffix(name, filepath.Ext(name))
			libs = append(libs, geom.Library{ID: id, Name: name, Path: p})
		}
	}
	return libs, nil
}

// containsSources reports whether the directory holds any *.scad file at
// its top level.
func containsSources(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(e.Name()), ".scad") {
			return true
		}
	}
	return false
}
