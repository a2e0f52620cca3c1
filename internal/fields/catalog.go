package fields

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

//go:embed vla-cals.list
var defaultCatalog string

// Catalog is the set of recognised phase calibrator names.
type Catalog map[string]struct{}

// Contains reports whether name is in the catalog.
func (c Catalog) Contains(name string) bool {
	_, ok := c[name]
	return ok
}

// Names returns the catalog names in sorted order.
func (c Catalog) Names() []string {
	out := make([]string, 0, len(c))
	for n := range c {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// ParseCatalog reads a calibrator list. Each line is either a bare name or a calibrator manual
// entry whose second token is J2000; comments, rules and other lines are ignored.
func ParseCatalog(r io.Reader) (Catalog, error) {
	c := Catalog{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.Trim(line, "-=") == "" {
			continue
		}
		tokens := strings.Fields(line)
		switch {
		case len(tokens) == 1:
			c[tokens[0]] = struct{}{}
		case tokens[1] == "J2000":
			c[tokens[0]] = struct{}{}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read calibrator catalog: %w", err)
	}
	return c, nil
}

// LoadCatalog reads the catalog at path, or the built-in list when path is empty.
func LoadCatalog(path string) (Catalog, error) {
	if path == "" {
		return ParseCatalog(strings.NewReader(defaultCatalog))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open calibrator catalog '%s': %w", path, err)
	}
	defer f.Close()
	return ParseCatalog(f)
}
