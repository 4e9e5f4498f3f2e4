// Copyright 2025 The OpenCohort Community
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package codelist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNew(t *testing.T) {
	cl := New("statins", []string{"b", "a", "a"}, nil)

	assert.Equal(t, "statins", cl.Name())
	assert.Equal(t, 2, cl.Len(), "duplicates collapse")
	assert.True(t, cl.Contains("a"))
	assert.False(t, cl.Contains("c"))
	assert.False(t, cl.HasCategories())
	assert.Equal(t, []string{"a", "b"}, cl.Codes())

	_, ok := cl.CategoryOf("a")
	assert.False(t, ok)
}

func TestNew_withCategories(t *testing.T) {
	cl := New("ethnicity", []string{"a", "b"}, map[string]string{"a": "White"})

	assert.True(t, cl.HasCategories())

	category, ok := cl.CategoryOf("a")
	assert.True(t, ok)
	assert.Equal(t, "White", category)

	_, ok = cl.CategoryOf("b")
	assert.False(t, ok, "code without a mapped category")
}

func TestFromCSV(t *testing.T) {
	dir := t.TempDir()

	t.Run("codes only", func(t *testing.T) {
		path := writeFile(t, dir, "chd.csv", "code,term\n123,angina\n456,mi\n")

		cl, err := FromCSV("chd_cod", path, "code", "")

		require.NoError(t, err)
		assert.Equal(t, []string{"123", "456"}, cl.Codes())
		assert.False(t, cl.HasCategories())
	})

	t.Run("with category column", func(t *testing.T) {
		path := writeFile(t, dir, "eth.csv", "code,Label_6\n111,White\n222,Asian\n")

		cl, err := FromCSV("ethnicity5", path, "code", "Label_6")

		require.NoError(t, err)
		require.True(t, cl.HasCategories())
		category, ok := cl.CategoryOf("222")
		assert.True(t, ok)
		assert.Equal(t, "Asian", category)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := FromCSV("chd_cod", filepath.Join(dir, "absent.csv"), "code", "")
		assert.ErrorContains(t, err, "chd_cod")
	})

	t.Run("missing code column", func(t *testing.T) {
		path := writeFile(t, dir, "nocol.csv", "snomed,term\n123,angina\n")

		_, err := FromCSV("chd_cod", path, "code", "")
		assert.ErrorContains(t, err, `no column "code"`)
	})

	t.Run("missing category column", func(t *testing.T) {
		path := writeFile(t, dir, "nocat.csv", "code,term\n123,angina\n")

		_, err := FromCSV("ethnicity5", path, "code", "Label_6")
		assert.ErrorContains(t, err, `no column "Label_6"`)
	})

	t.Run("empty code cell", func(t *testing.T) {
		path := writeFile(t, dir, "empty.csv", "code,term\n123,angina\n,mi\n")

		_, err := FromCSV("chd_cod", path, "code", "")
		assert.ErrorContains(t, err, "line 3: empty code")
	})
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid", func(t *testing.T) {
		path := writeFile(t, dir, "codelists.yaml", `codelists:
  - name: chd_cod
    file: chd.csv
    column: code
  - name: ethnicity5
    file: eth.csv
    column: code
    category_column: Label_6
`)

		manifest, err := LoadManifest(path)

		require.NoError(t, err)
		require.Len(t, manifest.Codelists, 2)
		assert.Equal(t, ManifestEntry{Name: "chd_cod", File: "chd.csv", Column: "code"}, manifest.Codelists[0])
		assert.Equal(t, "Label_6", manifest.Codelists[1].CategoryColumn)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadManifest(filepath.Join(dir, "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("no codelists", func(t *testing.T) {
		path := writeFile(t, dir, "empty.yaml", "codelists: []\n")

		_, err := LoadManifest(path)
		assert.ErrorContains(t, err, "no codelists")
	})

	t.Run("incomplete entry", func(t *testing.T) {
		path := writeFile(t, dir, "incomplete.yaml", `codelists:
  - name: chd_cod
    file: chd.csv
`)

		_, err := LoadManifest(path)
		assert.ErrorContains(t, err, "entry 1")
	})
}

func TestManifestResolve(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "chd.csv", "code\n123\n")

	t.Run("resolves relative to base dir", func(t *testing.T) {
		manifest := &Manifest{Codelists: []ManifestEntry{
			{Name: "chd_cod", File: "chd.csv", Column: "code"},
		}}

		set, err := manifest.Resolve(dir)

		require.NoError(t, err)
		cl, err := set.Get("chd_cod")
		require.NoError(t, err)
		assert.True(t, cl.Contains("123"))
	})

	t.Run("duplicate name", func(t *testing.T) {
		manifest := &Manifest{Codelists: []ManifestEntry{
			{Name: "chd_cod", File: "chd.csv", Column: "code"},
			{Name: "chd_cod", File: "chd.csv", Column: "code"},
		}}

		_, err := manifest.Resolve(dir)
		assert.ErrorContains(t, err, "listed twice")
	})

	t.Run("load failure aborts", func(t *testing.T) {
		manifest := &Manifest{Codelists: []ManifestEntry{
			{Name: "chd_cod", File: "chd.csv", Column: "code"},
			{Name: "pad_cod", File: "absent.csv", Column: "code"},
		}}

		_, err := manifest.Resolve(dir)
		assert.ErrorContains(t, err, "pad_cod")
	})
}

func TestSetGet_unknown(t *testing.T) {
	_, err := Set{}.Get("nope")
	assert.ErrorContains(t, err, `"nope" not found`)
}
