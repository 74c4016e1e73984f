package secrets

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// fallbackFile is a KEY=VALUE file of local secret values, loaded once on first use. Keys are
// secret names as references (secret://name); one value answers for every version.
type fallbackFile struct {
	path string
	load func() (map[string]string, error)
}

func newFallbackFile(path string) *fallbackFile {
	f := &fallbackFile{path: strings.TrimSpace(path)}
	f.load = sync.OnceValues(f.read)
	return f
}

func (f *fallbackFile) lookup(ref reference) (string, bool, error) {
	values, err := f.load()
	if err != nil {
		return "", false, err
	}
	v, ok := values[ref.canonical()]
	return v, ok, nil
}

// read treats a missing file as empty.
func (f *fallbackFile) read() (map[string]string, error) {
	values := map[string]string{}
	if f.path == "" {
		return values, nil
	}
	file, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("secrets: open fallback file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		ref, err := parseReference(key)
		if err != nil {
			continue
		}
		values[ref.canonical()] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("secrets: read fallback file %s: %w", f.path, err)
	}
	return values, nil
}
