package domain

import (
	"bytes"
	"fmt"

	json "github.com/goccy/go-json"
)

var jsonMarshal = json.Marshal

// decodeExact decodes JSON keeping number literals so that large integers
// survive normalization.
func decodeExact(b []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	return dec.Decode(v)
}

// MarshalDocument encodes a document in its extended JSON wire form.
func MarshalDocument(d Document) ([]byte, error) {
	if d == nil {
		d = Document{}
	}
	b, err := jsonMarshal(map[string]any(d))
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return b, nil
}

// UnmarshalDocument decodes extended JSON into a normalized Document.
func UnmarshalDocument(b []byte) (Document, error) {
	var m map[string]any
	if err := decodeExact(b, &m); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	doc, err := NormalizeDocument(m)
	if err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// MarshalValue encodes any normalized value, used for diagnostics and
// payload columns.
func MarshalValue(v any) ([]byte, error) {
	return jsonMarshal(v)
}
