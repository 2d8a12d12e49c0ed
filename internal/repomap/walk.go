package repomap

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// collectGoFiles walks root for .go files, skipping test files, hidden
// directories, and the common non-source directories vendored tooling
// tends to dump build output and dependencies into.
func collectGoFiles(root string, maxFiles int) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || isSkippedDir(name)) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		files = append(files, path)
		if len(files) >= maxFiles {
			return errStopWalk
		}
		return nil
	})
	if err != nil && err != errStopWalk {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func isSkippedDir(name string) bool {
	_, skip := skipDirs[name]
	return skip
}

var errStopWalk = stopWalkError{}

type stopWalkError struct{}

func (stopWalkError) Error() string { return "repomap: file limit reached" }
