package processing

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultPattern matches pipeline documents at any depth.
const DefaultPattern = "**/*.pipeline.{json,yaml,yml}"

// DiscoverPipelines returns the files under root matching the doublestar
// pattern. Results are sorted by path depth (parents before children), then
// by name, and are joined with root.
func DiscoverPipelines(root, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q", pattern)
	}

	fsys := os.DirFS(root)
	matches, err := doublestar.Glob(fsys, pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}

	files := make([]string, 0, len(matches))
	for _, m := range matches {
		info, err := fs.Stat(fsys, m)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", m, err)
		}
		if info.IsDir() {
			continue
		}
		files = append(files, m)
	}

	slices.SortFunc(files, func(a, b string) int {
		if d := pathDepth(a) - pathDepth(b); d != 0 {
			return d
		}
		return strings.Compare(a, b)
	})

	for i, f := range files {
		files[i] = filepath.Join(root, filepath.FromSlash(f))
	}
	return files, nil
}

func pathDepth(p string) int {
	if p == "." {
		return 0
	}
	return strings.Count(filepath.ToSlash(p), "/") + 1
}
