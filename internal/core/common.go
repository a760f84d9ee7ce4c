package core

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"bifrost/pkg/domain"
)

// GroupFromFile reads path and returns capture group of the first match
// of pattern. ok is false when nothing matches.
func GroupFromFile(pattern *regexp.Regexp, path string, group int) (string, bool, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", path, err)
	}
	value, ok := GroupFromBuffer(pattern, string(b), group)
	return value, ok, nil
}

// GroupFromBuffer is GroupFromFile over an in-memory buffer. Compile
// patterns with (?m) to match per line.
func GroupFromBuffer(pattern *regexp.Regexp, buffer string, group int) (string, bool) {
	m := pattern.FindStringSubmatch(buffer)
	if m == nil || group < 0 || group >= len(m) {
		return "", false
	}
	return m[group], true
}

// ReadYAML decodes a YAML mapping file.
func ReadYAML(path string) (map[string]any, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var out map[string]any
	if err := yaml.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// WriteYAML encodes data as block-style YAML into path.
func WriteYAML(path string, data any) error {
	b, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, b, 0o640); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// JSONKeyCleaner turns a file path into a key usable in a document: the
// directory is dropped and dots and spaces become underscores.
func JSONKeyCleaner(key string) string {
	if i := strings.LastIndex(key, "/"); i >= 0 {
		key = key[i+1:]
	}
	return strings.NewReplacer(".", "_", " ", "_").Replace(key)
}

// Masked replaces identifier and timestamp values in MaskForTests output.
const Masked = "MASKED"

// MaskForTests replaces every $oid and $date value in v with Masked, in
// place, so documents can be compared against fixtures.
func MaskForTests(v any) {
	switch t := v.(type) {
	case domain.Document:
		MaskForTests(map[string]any(t))
	case map[string]any:
		for k, item := range t {
			if k == domain.OIDKey || k == domain.DateKey {
				t[k] = Masked
				continue
			}
			MaskForTests(item)
		}
	case []any:
		for _, item := range t {
			MaskForTests(item)
		}
	}
}
