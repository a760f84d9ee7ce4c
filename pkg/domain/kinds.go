// Package domain defines the document kinds, identifiers, references and
// persistence contract shared by the bifrost entity model.
package domain

import "strings"

// Kind identifies the type of document stored by bifrost.
type Kind string

// Supported document kinds. Each kind is persisted in the collection returned
// by Kind.Collection.
const (
	// KindSample identifies a sample (genomic sample) document.
	KindSample Kind = "sample"
	// KindComponent identifies a processing component (pipeline) document.
	KindComponent Kind = "component"
	// KindRun identifies a run (collection of samples) document.
	KindRun Kind = "run"
	// KindHost identifies a host organism document.
	KindHost Kind = "host"
	// KindSampleComponent identifies the result of a component on a sample.
	KindSampleComponent Kind = "sample_component"
	// KindRunComponent identifies the result of a component on a run.
	KindRunComponent Kind = "run_component"
	// KindBioDB identifies a biological database used by components.
	KindBioDB Kind = "biodb"
	// KindCategory identifies a named category block.
	KindCategory Kind = "category"
)

var knownKinds = []Kind{
	KindSample,
	KindComponent,
	KindRun,
	KindHost,
	KindSampleComponent,
	KindRunComponent,
	KindBioDB,
	KindCategory,
}

// Kinds returns every supported kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, len(knownKinds))
	copy(out, knownKinds)
	return out
}

// Valid reports whether k is a supported kind.
func (k Kind) Valid() bool {
	for _, known := range knownKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Collection returns the store collection name for the kind.
func (k Kind) Collection() string {
	return Pluralize(string(k))
}

// Pluralize turns a singular name into its collection form: sample -> samples,
// property -> properties.
func Pluralize(name string) string {
	if strings.HasSuffix(name, "y") {
		return name[:len(name)-1] + "ies"
	}
	return name + "s"
}
