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

// Package store reads and writes dataset snapshots. Two backends exist: a
// directory of CSV files and a single SQLite file.
package store

import (
	"path/filepath"
	"strings"

	"github.com/opencohort/cohortctl/query"
)

// A Store holds one dataset snapshot.
type Store interface {
	// Read loads the whole snapshot. Missing or malformed inputs are
	// load errors, absent cell values are not.
	Read() (query.Tables, error)
	// Write replaces the snapshot.
	Write(t query.Tables) error
	// Close releases any underlying resources.
	Close() error
}

// Open selects a backend by path: files with a .db or .sqlite extension
// open the SQLite backend, everything else is treated as a CSV directory.
func Open(path string) (Store, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite":
		return OpenSQLite(path)
	default:
		return NewCSVDir(path), nil
	}
}
