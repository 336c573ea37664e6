// Package scene exposes the watched directory to observers: a sorted,
// suffix-filtered listing for seeding state on connect, and raw byte
// serving of the files themselves.
package scene

import (
	"net/http"
	"os"
	"sort"
	"strings"
)

// List returns the names of regular files in dir ending in suffix, in
// ascending lexical order.
func List(dir, suffix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if strings.HasSuffix(entry.Name(), suffix) {
			names = append(names, entry.Name())
		}
	}

	sort.Strings(names)
	return names, nil
}

// FileServer serves the contents of dir by filename.
func FileServer(dir string) http.Handler {
	return http.FileServer(http.Dir(dir))
}
