package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"gopkg.in/yaml.v3"
)

// LoadFixture reads a fixture file. The path is relative to the test
// package directory.
func LoadFixture(t testing.TB, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to load fixture from %s: %v", path, err)
	}
	return data
}

// LoadFixtureYAML decodes a YAML fixture into dest.
func LoadFixtureYAML(t testing.TB, path string, dest any) {
	t.Helper()

	if err := yaml.Unmarshal(LoadFixture(t, path), dest); err != nil {
		t.Fatalf("failed to decode YAML fixture %s: %v", path, err)
	}
}

// AssertGolden compares actual with testdata/golden/<name><suffix>.
// Trailing newlines are ignored. Run the tests with -update to rewrite the
// golden files.
func AssertGolden(t testing.TB, name, suffix string, actual []byte) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir(filepath.Join("testdata", "golden")),
		goldie.WithNameSuffix(suffix),
		goldie.WithEqualFn(func(actual, expected []byte) bool {
			return bytes.Equal(bytes.TrimRight(actual, "\n"), bytes.TrimRight(expected, "\n"))
		}),
	)
	g.Assert(t, name, actual)
}

// FixturePath is filename under the package testdata directory.
func FixturePath(filename string) string {
	return filepath.Join("testdata", filename)
}
