// Package fsutil provides file system utility functions.
package fsutil

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// FindFilesByExtension recursively collects the files under rootPath whose
// name ends with extension, in lexical order. Hidden directories such as
// .git are not descended into.
func FindFilesByExtension(rootPath string, extension string) ([]string, error) {
	if extension == "" {
		panic("extension must not be empty")
	}

	var files []string
	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != rootPath && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), extension) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}
