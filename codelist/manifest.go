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
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
)

// ManifestEntry describes one codelist source: the CSV file, the column
// holding the codes and an optional category column.
type ManifestEntry struct {
	Name           string `yaml:"name"`
	File           string `yaml:"file"`
	Column         string `yaml:"column"`
	CategoryColumn string `yaml:"category_column,omitempty"`
}

// A Manifest lists all codelist sources of a study.
type Manifest struct {
	Codelists []ManifestEntry `yaml:"codelists"`
}

// LoadManifest reads a YAML manifest from path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("codelist manifest: %w", err)
	}

	manifest := Manifest{}
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("codelist manifest %s: %w", path, err)
	}
	if len(manifest.Codelists) == 0 {
		return nil, fmt.Errorf("codelist manifest %s: no codelists listed", path)
	}
	for i, entry := range manifest.Codelists {
		if entry.Name == "" || entry.File == "" || entry.Column == "" {
			return nil, fmt.Errorf("codelist manifest %s: entry %d: name, file and column are required", path, i+1)
		}
	}
	return &manifest, nil
}

// A Set holds resolved codelists by name.
type Set map[string]*Codelist

// Get returns the codelist registered under name.
func (s Set) Get(name string) (*Codelist, error) {
	codelist, ok := s[name]
	if !ok {
		return nil, fmt.Errorf("codelist %q not found", name)
	}
	return codelist, nil
}

// Resolve loads every codelist listed in the manifest. Relative file paths
// are resolved against baseDir. Any load failure aborts the whole resolve.
func (m *Manifest) Resolve(baseDir string) (Set, error) {
	set := make(Set, len(m.Codelists))
	for _, entry := range m.Codelists {
		if _, ok := set[entry.Name]; ok {
			return nil, fmt.Errorf("codelist %q listed twice", entry.Name)
		}
		path := entry.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		codelist, err := FromCSV(entry.Name, path, entry.Column, entry.CategoryColumn)
		if err != nil {
			return nil, err
		}
		set[entry.Name] = codelist
	}
	return set, nil
}
