package core

import (
	"go/types"
	"path/filepath"
	"runtime"
	"testing"

	"golang.org/x/tools/go/packages"
)

// TestDocumentStoreImplementationsHardening ensures only sanctioned persistence packages
// provide concrete implementations of the domain.DocumentStore interface.
func TestDocumentStoreImplementationsHardening(t *testing.T) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedTypes, Tests: true}
	pkgs, err := packages.Load(cfg, "bifrost/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	var documentStore *types.Interface
	for _, p := range pkgs {
		if p.PkgPath == "bifrost/pkg/domain" {
			obj := p.Types.Scope().Lookup("DocumentStore")
			if obj == nil {
				t.Fatalf("domain.DocumentStore not found")
			}
			iface, ok := obj.Type().Underlying().(*types.Interface)
			if !ok {
				t.Fatalf("domain.DocumentStore is not an interface")
			}
			documentStore = iface
		}
	}
	if documentStore == nil {
		t.Fatalf("failed to resolve DocumentStore interface")
	}
	allowed := map[string]struct{}{
		"bifrost/internal/infra/persistence/memory":   {},
		"bifrost/internal/infra/persistence/sqldoc":   {},
		"bifrost/internal/infra/persistence/sqlite":   {},
		"bifrost/internal/infra/persistence/postgres": {},
		"bifrost/internal/infra/persistence/bolt":     {},
		"bifrost/internal/core":                       {}, // fault-injecting test doubles
	}
	var unexpected []string
	for _, p := range pkgs {
		if p.Types == nil || p.Types.Scope() == nil {
			continue
		}
		for _, name := range p.Types.Scope().Names() {
			obj := p.Types.Scope().Lookup(name)
			named, ok := obj.Type().(*types.Named)
			if !ok {
				continue
			}
			st, ok := named.Underlying().(*types.Struct)
			if !ok || st.NumFields() == 0 && named.NumMethods() == 0 {
				continue
			}
			if types.Implements(types.NewPointer(named), documentStore) {
				if _, ok := allowed[p.PkgPath]; !ok {
					unexpected = append(unexpected, p.PkgPath+"."+name)
				}
			}
		}
	}
	if len(unexpected) > 0 {
		_, file, line, _ := runtime.Caller(0)
		t.Fatalf("unexpected DocumentStore implementations (update allowed list intentionally if adding a new backend):\nfile=%s:%d\n%s", filepath.Base(file), line, unexpected)
	}
}
