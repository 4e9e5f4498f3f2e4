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

// Package codelist loads named sets of clinical and drug codes from CSV
// files. A codelist is immutable once loaded; lookups never touch the
// filesystem again.
package codelist

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
)

// A Codelist is a named, read-only set of coding-system codes with an
// optional code-to-category mapping.
type Codelist struct {
	name       string
	codes      map[string]struct{}
	categories map[string]string
}

// New creates a Codelist from in-memory codes. The categories map may be
// nil for codelists without a category column.
func New(name string, codes []string, categories map[string]string) *Codelist {
	set := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		set[code] = struct{}{}
	}
	var cats map[string]string
	if categories != nil {
		cats = make(map[string]string, len(categories))
		for code, category := range categories {
			cats[code] = category
		}
	}
	return &Codelist{name: name, codes: set, categories: cats}
}

// Name returns the name under which the codelist was registered.
func (c *Codelist) Name() string { return c.name }

// Len returns the number of codes in the codelist.
func (c *Codelist) Len() int { return len(c.codes) }

// Contains reports whether code is a member of the codelist.
func (c *Codelist) Contains(code string) bool {
	_, ok := c.codes[code]
	return ok
}

// HasCategories reports whether the codelist carries a category mapping.
func (c *Codelist) HasCategories() bool { return c.categories != nil }

// CategoryOf returns the category label for code. The second return value
// is false if the codelist has no category column or the code is unknown.
func (c *Codelist) CategoryOf(code string) (string, bool) {
	if c.categories == nil {
		return "", false
	}
	category, ok := c.categories[code]
	return category, ok
}

// Codes returns the codes in lexical order.
func (c *Codelist) Codes() []string {
	codes := make([]string, 0, len(c.codes))
	for code := range c.codes {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// FromCSV loads a codelist from the CSV file at path. codeColumn names the
// header of the column holding the codes. If categoryColumn is non-empty
// the corresponding column is loaded as the code-to-category mapping.
// Missing files, missing columns and empty code cells are load errors.
func FromCSV(name, path, codeColumn, categoryColumn string) (*Codelist, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("codelist %s: %w", name, err)
	}
	defer file.Close()

	return fromReader(name, path, codeColumn, categoryColumn, file)
}

func fromReader(name, path, codeColumn, categoryColumn string, r io.Reader) (*Codelist, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("codelist %s: reading header of %s: %w", name, path, err)
	}

	codeIdx := -1
	categoryIdx := -1
	for i, column := range header {
		if column == codeColumn {
			codeIdx = i
		}
		if categoryColumn != "" && column == categoryColumn {
			categoryIdx = i
		}
	}
	if codeIdx < 0 {
		return nil, fmt.Errorf("codelist %s: %s has no column %q", name, path, codeColumn)
	}
	if categoryColumn != "" && categoryIdx < 0 {
		return nil, fmt.Errorf("codelist %s: %s has no column %q", name, path, categoryColumn)
	}

	codes := make(map[string]struct{})
	var categories map[string]string
	if categoryColumn != "" {
		categories = make(map[string]string)
	}
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("codelist %s: %s line %d: %w", name, path, line, err)
		}
		code := record[codeIdx]
		if code == "" {
			return nil, fmt.Errorf("codelist %s: %s line %d: empty code", name, path, line)
		}
		codes[code] = struct{}{}
		if categories != nil {
			categories[code] = record[categoryIdx]
		}
	}

	return &Codelist{name: name, codes: codes, categories: categories}, nil
}
