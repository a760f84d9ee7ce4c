// Package schema loads the bifrost schema document once and validates
// documents, references and datatypes against it.
package schema

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/zeebo/xxh3"

	schemadoc "bifrost/docs/schema"
	"bifrost/pkg/domain"
)

// ErrUnknownSchema is returned when no schema exists for a kind, version or
// datatype.
var ErrUnknownSchema = errors.New("unknown schema")

// resourceURL names the schema document inside the compiler. It is never
// fetched.
const resourceURL = "https://bifrost.local/schema.json"

// Registry holds a decoded schema document. It is safe for concurrent use
// and is meant to be constructed once per process and passed by reference.
type Registry struct {
	root        map[string]any
	version     string
	fingerprint string

	mu       sync.Mutex
	compiler *jsonschema.Compiler
	cache    map[string]*Schema
}

// Load builds a registry from the embedded canonical schema document.
func Load() (*Registry, error) {
	raw, err := schemadoc.Bifrost()
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// LoadFile builds a registry from a schema document on disk. Comments and
// trailing commas are allowed.
func LoadFile(path string) (*Registry, error) {
	b, err := os.ReadFile(path) // #nosec G304 -- schema path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}
	return Parse(b)
}

// Parse builds a registry from raw schema bytes.
func Parse(data []byte) (*Registry, error) {
	clean, err := schemadoc.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(clean))
	if err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	root, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decode schema: document is not an object")
	}
	defs, ok := root["definitions"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decode schema: missing definitions")
	}
	for _, section := range []string{"datatypes", "references", "objects"} {
		if _, ok := defs[section].(map[string]any); !ok {
			return nil, fmt.Errorf("decode schema: missing definitions.%s", section)
		}
	}

	compiler := jsonschema.NewCompiler()
	compiler.DefaultDraft(jsonschema.Draft7)
	if err := compiler.AddResource(resourceURL, doc); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}

	version, _ := root["version"].(string)
	if version == "" {
		version = schemadoc.DefaultVersion
	}
	return &Registry{
		root:        root,
		version:     version,
		fingerprint: fmt.Sprintf("%016x", xxh3.Hash(clean)),
		compiler:    compiler,
		cache:       make(map[string]*Schema),
	}, nil
}

// DefaultVersion returns the version declared by the schema document.
func (r *Registry) DefaultVersion() string { return r.version }

// Fingerprint returns a content hash of the loaded schema document.
func (r *Registry) Fingerprint() string { return r.fingerprint }

// SchemaFor returns the object schema of kind at version. An empty version
// selects the default.
func (r *Registry) SchemaFor(kind domain.Kind, version string) (*Schema, error) {
	return r.lookup("objects", string(kind), r.pick(version))
}

// ReferenceSchemaFor returns the reference schema of kind at version.
func (r *Registry) ReferenceSchemaFor(kind domain.Kind, version string) (*Schema, error) {
	return r.lookup("references", string(kind), r.pick(version))
}

// DatatypeSchema returns a shared datatype schema such as "metadata",
// "version", "test" or "requirement".
func (r *Registry) DatatypeSchema(name string) (*Schema, error) {
	datatypes := r.definitions("datatypes")
	pointer := ""
	if group, ok := datatypes["bifrost"].(map[string]any); ok && group[name] != nil {
		pointer = "/definitions/datatypes/bifrost/" + escape(name)
	} else if datatypes[name] != nil {
		pointer = "/definitions/datatypes/" + escape(name)
	}
	if pointer == "" {
		return nil, fmt.Errorf("%w: datatype %s", ErrUnknownSchema, name)
	}
	return r.compile("datatypes/"+name, pointer, "datatype "+name, "")
}

// Versions lists the schema versions declared for an object kind.
func (r *Registry) Versions(kind domain.Kind) []string {
	byVersion, _ := r.definitions("objects")[string(kind)].(map[string]any)
	out := make([]string, 0, len(byVersion))
	for v := range byVersion {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) pick(version string) string {
	if version == "" {
		return r.version
	}
	return version
}

func (r *Registry) lookup(section, kind, version string) (*Schema, error) {
	label := strings.TrimSuffix(section, "s")
	byVersion, ok := r.definitions(section)[kind].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", ErrUnknownSchema, label, kind)
	}
	if _, ok := byVersion[version]; !ok {
		return nil, fmt.Errorf("%w: %s %s@%s", ErrUnknownSchema, label, kind, version)
	}
	name := kind
	if section == "references" {
		name = kind + " reference"
	}
	pointer := "/definitions/" + section + "/" + escape(kind) + "/" + escape(version)
	return r.compile(section+"/"+kind+"/"+version, pointer, name, version)
}

func (r *Registry) definitions(section string) map[string]any {
	defs, _ := r.root["definitions"].(map[string]any)
	out, _ := defs[section].(map[string]any)
	return out
}

// compile returns the cached schema for key, compiling the node at pointer
// on first use. The compiler is not safe for concurrent use.
func (r *Registry) compile(key, pointer, name, version string) (*Schema, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.cache[key]; ok {
		return s, nil
	}
	compiled, err := r.compiler.Compile(resourceURL + "#" + pointer)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	s := &Schema{name: name, version: version, compiled: compiled}
	r.cache[key] = s
	return s, nil
}

func escape(token string) string {
	return strings.ReplaceAll(strings.ReplaceAll(token, "~", "~0"), "/", "~1")
}
