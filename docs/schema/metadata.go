// Package schema exposes the embedded canonical bifrost schema document for
// runtime use.
package schema

import (
	"bytes"
	_ "embed"
	"fmt"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/tailscale/hujson"
)

// DefaultVersion is the schema version used when callers do not pick one.
const DefaultVersion = "v2_1_0"

// Metadata captures the high-level metadata block of the schema document.
type Metadata struct {
	Source string `json:"source"`
	Status string `json:"status"`
}

type headerDoc struct {
	Version  string   `json:"version"`
	Metadata Metadata `json:"metadata"`
}

// Canonical schema document, JSON with comments.
//
//go:embed bifrost.jsonc
var bifrostSchema []byte

var (
	headerOnce sync.Once
	header     headerDoc
	headerErr  error
)

// Bifrost returns the embedded schema document as standard JSON, ready for
// decoding.
func Bifrost() ([]byte, error) {
	return Standardize(bifrostSchema)
}

// Version returns the version declared by the embedded schema document.
func Version() (string, error) {
	loadHeader()
	return header.Version, headerErr
}

// SchemaMetadata returns the metadata block (status, source) of the embedded
// schema document.
func SchemaMetadata() (Metadata, error) {
	loadHeader()
	return header.Metadata, headerErr
}

func loadHeader() {
	headerOnce.Do(func() {
		var raw []byte
		if raw, headerErr = Bifrost(); headerErr != nil {
			return
		}
		headerErr = json.Unmarshal(raw, &header)
	})
}

// Standardize turns a schema document written as JSON with comments and
// trailing commas into standard JSON. src is left untouched.
func Standardize(src []byte) ([]byte, error) {
	out, err := hujson.Standardize(bytes.Clone(src))
	if err != nil {
		return nil, fmt.Errorf("standardize schema: %w", err)
	}
	return out, nil
}
