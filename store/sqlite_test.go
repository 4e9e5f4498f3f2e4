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

package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencohort/cohortctl/query"
)

func openSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "dataset.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteRoundTrip(t *testing.T) {
	s := openSQLite(t)
	tables := sampleTables()

	require.NoError(t, s.Write(tables))
	read, err := s.Read()

	require.NoError(t, err)
	assert.Equal(t, tables, read)
}

func TestSQLiteRead_empty(t *testing.T) {
	s := openSQLite(t)

	tables, err := s.Read()

	require.NoError(t, err)
	assert.Empty(t, tables.Patients)
	assert.Empty(t, tables.Registrations)
	assert.Empty(t, tables.Addresses)
	assert.Empty(t, tables.Events)
	assert.Empty(t, tables.Medications)
}

// Write replaces the whole snapshot, rows do not accumulate.
func TestSQLiteWrite_replaces(t *testing.T) {
	s := openSQLite(t)
	tables := sampleTables()

	require.NoError(t, s.Write(tables))
	require.NoError(t, s.Write(tables))
	read, err := s.Read()

	require.NoError(t, err)
	assert.Len(t, read.Patients, len(tables.Patients))
	assert.Len(t, read.Medications, len(tables.Medications))
}

func TestSQLite_nullColumns(t *testing.T) {
	s := openSQLite(t)
	tables := query.Tables{
		Patients: []query.Patient{
			{ID: "p1", Sex: "female", DateOfBirth: date(1970, 3, 5)},
		},
		Addresses: []query.Address{
			{PatientID: "p1"},
		},
		Events: []query.ClinicalEvent{
			{PatientID: "p1", Date: date(2018, 1, 1), SNOMEDCTCode: "123"},
		},
	}

	require.NoError(t, s.Write(tables))
	read, err := s.Read()

	require.NoError(t, err)
	require.Len(t, read.Patients, 1)
	assert.Nil(t, read.Patients[0].DateOfDeath)
	require.Len(t, read.Addresses, 1)
	assert.Nil(t, read.Addresses[0].StartDate)
	assert.Nil(t, read.Addresses[0].IMDRounded)
	assert.Nil(t, read.Addresses[0].RuralUrbanClassification)
	require.Len(t, read.Events, 1)
	assert.Nil(t, read.Events[0].NumericValue)
}

// Roundtripping between the two backends preserves the dataset.
func TestBackendsAgree(t *testing.T) {
	tables := sampleTables()

	csvStore := NewCSVDir(t.TempDir())
	require.NoError(t, csvStore.Write(tables))
	fromCSV, err := csvStore.Read()
	require.NoError(t, err)

	sqliteStore := openSQLite(t)
	require.NoError(t, sqliteStore.Write(fromCSV))
	fromSQLite, err := sqliteStore.Read()
	require.NoError(t, err)

	assert.Equal(t, fromCSV, fromSQLite)
}
