// Command schema-check validates JSON or YAML entity documents against the
// bifrost schema, either the embedded one or a schema file.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"bifrost/internal/schema"
	"bifrost/pkg/domain"
)

var exitFunc = os.Exit

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("schema-check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var schemaFile, kind, version string
	var describe bool
	fs.StringVar(&schemaFile, "schema", "", "schema document to validate against (default: embedded)")
	fs.StringVar(&kind, "kind", string(domain.KindSample), "entity kind of the documents")
	fs.StringVar(&version, "version", "", "schema version (default: the schema document version)")
	fs.BoolVar(&describe, "describe", false, "print schema version, fingerprint and kinds, then exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	reg, err := loadRegistry(schemaFile)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Schema load failed: %v\n", err)
		return 1
	}
	if describe {
		printDescription(stdout, reg)
		return 0
	}
	if fs.NArg() == 0 {
		_, _ = fmt.Fprintln(stderr, "no documents given")
		return 2
	}

	sch, err := reg.SchemaFor(domain.Kind(kind), version)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Schema lookup failed: %v\n", err)
		return 1
	}
	failed := 0
	for _, path := range fs.Args() {
		if err := checkFile(sch, path); err != nil {
			failed++
			_, _ = fmt.Fprintf(stderr, "%s: %v\n", path, err)
			continue
		}
		_, _ = fmt.Fprintf(stdout, "%s: ok\n", path)
	}
	if failed > 0 {
		_, _ = fmt.Fprintf(stderr, "Schema validation failed for %d of %d files.\n", failed, fs.NArg())
		return 1
	}
	_, _ = fmt.Fprintln(stdout, "Schema validation passed.")
	return 0
}

func loadRegistry(path string) (*schema.Registry, error) {
	if path == "" {
		return schema.Load()
	}
	return schema.LoadFile(path)
}

func printDescription(w io.Writer, reg *schema.Registry) {
	_, _ = fmt.Fprintf(w, "version: %s\nfingerprint: %s\n", reg.DefaultVersion(), reg.Fingerprint())
	for _, kind := range domain.Kinds() {
		versions := reg.Versions(kind)
		if len(versions) == 0 {
			continue
		}
		_, _ = fmt.Fprintf(w, "%s: %s\n", kind, strings.Join(versions, ", "))
	}
}

// checkFile validates a file holding one document or a list of documents.
func checkFile(sch *schema.Schema, path string) error {
	data, err := os.ReadFile(path) // #nosec G304 -- paths are operator supplied
	if err != nil {
		return err
	}
	var raw any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &raw)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		return fmt.Errorf("incompatible format; must be .json, .yml, or .yaml file")
	}
	if err != nil {
		return err
	}

	docs, ok := raw.([]any)
	if !ok {
		docs = []any{raw}
	}
	var errs []error
	for i, item := range docs {
		m, ok := item.(map[string]any)
		if !ok {
			errs = append(errs, fmt.Errorf("document %d: expected object, got %s", i, domain.TypeName(item)))
			continue
		}
		doc, err := domain.NormalizeDocument(m)
		if err != nil {
			errs = append(errs, fmt.Errorf("document %d: %w", i, err))
			continue
		}
		if err := sch.Validate(doc); err != nil {
			errs = append(errs, fmt.Errorf("document %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
