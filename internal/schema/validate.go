package schema

import (
	"errors"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"bifrost/pkg/domain"
)

var printer = message.NewPrinter(language.English)

// Schema is one compiled entry of the registry.
type Schema struct {
	name     string
	version  string
	compiled *jsonschema.Schema
}

// Name describes the schema, e.g. "sample" or "component reference".
func (s *Schema) Name() string { return s.name }

// Version returns the schema version, empty for datatypes.
func (s *Schema) Version() string { return s.version }

// Validate checks a normalized value. Violations are reported as a
// *domain.SchemaValidationError listing every problem found.
func (s *Schema) Validate(value any) error {
	err := s.compiled.Validate(plain(value))
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return &domain.SchemaValidationError{Schema: s.name, Version: s.version, Problems: []string{err.Error()}}
	}
	return &domain.SchemaValidationError{Schema: s.name, Version: s.version, Problems: problems(ve, nil)}
}

// problems flattens the leaves of a validation error tree.
func problems(ve *jsonschema.ValidationError, out []string) []string {
	if len(ve.Causes) == 0 {
		return append(out, instancePath(ve.InstanceLocation)+": "+ve.ErrorKind.LocalizedString(printer))
	}
	for _, cause := range ve.Causes {
		out = problems(cause, out)
	}
	return out
}

func instancePath(location []string) string {
	var b strings.Builder
	b.WriteString("$")
	for _, seg := range location {
		if isIndex(seg) {
			b.WriteString("[" + seg + "]")
			continue
		}
		b.WriteString("." + seg)
	}
	return b.String()
}

func isIndex(seg string) bool {
	if seg == "" {
		return false
	}
	for _, c := range seg {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// plain unwraps domain.Document values so the validator sees plain JSON
// mappings.
func plain(v any) any {
	switch t := v.(type) {
	case domain.Document:
		return plain(map[string]any(t))
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = plain(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = plain(item)
		}
		return out
	}
	return v
}
