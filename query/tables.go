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

// Package query provides the column-expression algebra the cohort and
// measure definitions are written in. An expression is a pure function of
// one patient's records and an evaluation interval; absent values make
// predicates false rather than erroring.
package query

import (
	"sort"
	"time"
)

// Patient is one row of the patient demographics table.
type Patient struct {
	ID          string
	Sex         string
	DateOfBirth time.Time
	DateOfDeath *time.Time
}

// PracticeRegistration is one row of the practice registration history.
// A nil EndDate means the registration is still open.
type PracticeRegistration struct {
	PatientID        string
	StartDate        time.Time
	EndDate          *time.Time
	PracticePseudoID int
	PracticeRegion   string
}

// Address is one row of the address history. IMDRounded is the rounded
// index-of-multiple-deprivation rank; it and the rural/urban classification
// may be absent.
type Address struct {
	PatientID                string
	StartDate                *time.Time
	EndDate                  *time.Time
	IMDRounded               *int
	RuralUrbanClassification *int
}

// ClinicalEvent is one coded observation or diagnosis.
type ClinicalEvent struct {
	PatientID    string
	Date         time.Time
	SNOMEDCTCode string
	NumericValue *float64
}

// Medication is one dispensing record.
type Medication struct {
	PatientID string
	Date      time.Time
	DMDCode   string
}

// Tables is a flat snapshot of all row sources.
type Tables struct {
	Patients      []Patient
	Registrations []PracticeRegistration
	Addresses     []Address
	Events        []ClinicalEvent
	Medications   []Medication
}

// PatientRecord bundles every row belonging to one patient. Expressions
// are evaluated against a single record at a time.
type PatientRecord struct {
	Patient       Patient
	Registrations []PracticeRegistration
	Addresses     []Address
	Events        []ClinicalEvent
	Medications   []Medication
}

// Dataset is the per-patient view of a snapshot.
type Dataset struct {
	Patients []*PatientRecord
}

// BuildDataset groups flat table rows by patient. Rows referencing a
// patient id without a demographics row are dropped. Patients are ordered
// by id so evaluation output is deterministic.
func BuildDataset(t Tables) *Dataset {
	byID := make(map[string]*PatientRecord, len(t.Patients))
	records := make([]*PatientRecord, 0, len(t.Patients))
	for _, p := range t.Patients {
		record := &PatientRecord{Patient: p}
		byID[p.ID] = record
		records = append(records, record)
	}
	for _, r := range t.Registrations {
		if record, ok := byID[r.PatientID]; ok {
			record.Registrations = append(record.Registrations, r)
		}
	}
	for _, a := range t.Addresses {
		if record, ok := byID[a.PatientID]; ok {
			record.Addresses = append(record.Addresses, a)
		}
	}
	for _, e := range t.Events {
		if record, ok := byID[e.PatientID]; ok {
			record.Events = append(record.Events, e)
		}
	}
	for _, m := range t.Medications {
		if record, ok := byID[m.PatientID]; ok {
			record.Medications = append(record.Medications, m)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Patient.ID < records[j].Patient.ID
	})
	return &Dataset{Patients: records}
}
