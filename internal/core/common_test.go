package core

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bifrost/pkg/domain"
)

func TestGroupFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.txt")
	require.NoError(t, os.WriteFile(path, []byte("reads: 120\ncontigs: 42\n"), 0o600))
	pattern := regexp.MustCompile(`(?m)^contigs: (\d+)$`)

	value, ok, err := GroupFromFile(pattern, path, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "42", value)

	_, ok, err = GroupFromFile(regexp.MustCompile(`n50: (\d+)`), path, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok = GroupFromBuffer(pattern, "contigs: 1", 2)
	assert.False(t, ok)

	_, _, err = GroupFromFile(pattern, filepath.Join(t.TempDir(), "missing"), 1)
	assert.Error(t, err)
}

func TestYAMLRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, WriteYAML(path, map[string]any{
		"name":    "assembly",
		"threads": 4,
		"inputs":  []string{"r1.fq", "r2.fq"},
	}))

	got, err := ReadYAML(path)
	require.NoError(t, err)
	assert.Equal(t, "assembly", got["name"])
	assert.Equal(t, 4, got["threads"])
	assert.Equal(t, []any{"r1.fq", "r2.fq"}, got["inputs"])

	empty := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	got, err = ReadYAML(empty)
	require.NoError(t, err)
	assert.Empty(t, got)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("- a\n- b\n"), 0o600))
	_, err = ReadYAML(bad)
	assert.Error(t, err)
}

func TestJSONKeyCleaner(t *testing.T) {
	testCases := map[string]string{
		"report.txt":               "report_txt",
		"/data/run 1/quast.report": "quast_report",
		"plain":                    "plain",
		"my file.v2.tsv":           "my_file_v2_tsv",
	}
	for in, want := range testCases {
		assert.Equal(t, want, JSONKeyCleaner(in), in)
	}
}

func TestMaskForTests(t *testing.T) {
	doc := domain.Document{
		"_id":  map[string]any{"$oid": "000000000000000000000001"},
		"name": "S1",
		"metadata": map[string]any{
			"created_at": map[string]any{"$date": "2024-01-01T00:00:00.000Z"},
		},
		"components": []any{
			map[string]any{"_id": map[string]any{"$oid": "000000000000000000000002"}, "name": "A"},
		},
	}
	MaskForTests(doc)
	assert.Equal(t, domain.Document{
		"_id":  map[string]any{"$oid": Masked},
		"name": "S1",
		"metadata": map[string]any{
			"created_at": map[string]any{"$date": Masked},
		},
		"components": []any{
			map[string]any{"_id": map[string]any{"$oid": Masked}, "name": "A"},
		},
	}, doc)
}
