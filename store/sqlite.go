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
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/opencohort/cohortctl/query"
)

// SQLite stores the dataset as five tables in one SQLite file. Dates are
// stored as ISO-8601 text.
type SQLite struct {
	db   *sql.DB
	path string
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS patients (
		patient_id TEXT PRIMARY KEY,
		sex TEXT NOT NULL,
		date_of_birth TEXT NOT NULL,
		date_of_death TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS practice_registrations (
		patient_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT,
		practice_pseudo_id INTEGER NOT NULL,
		practice_nuts1_region_name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS addresses (
		patient_id TEXT NOT NULL,
		start_date TEXT,
		end_date TEXT,
		imd_rounded INTEGER,
		rural_urban_classification INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS clinical_events (
		patient_id TEXT NOT NULL,
		date TEXT NOT NULL,
		snomedct_code TEXT NOT NULL,
		numeric_value REAL
	)`,
	`CREATE TABLE IF NOT EXISTS medications (
		patient_id TEXT NOT NULL,
		date TEXT NOT NULL,
		dmd_code TEXT NOT NULL
	)`,
}

// OpenSQLite opens (and if necessary initialises) the SQLite store at
// path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", path, err)
	}
	for _, stmt := range sqliteSchema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("dataset %s: init schema: %w", path, err)
		}
	}
	return &SQLite{db: db, path: path}, nil
}

// Close releases the database handle.
func (s *SQLite) Close() error { return s.db.Close() }

// Read loads the whole snapshot.
func (s *SQLite) Read() (query.Tables, error) {
	t := query.Tables{}

	rows, err := s.db.Query(`SELECT patient_id, sex, date_of_birth, date_of_death FROM patients ORDER BY patient_id`)
	if err != nil {
		return query.Tables{}, s.wrap("patients", err)
	}
	for rows.Next() {
		var p query.Patient
		var dob string
		var dod sql.NullString
		if err := rows.Scan(&p.ID, &p.Sex, &dob, &dod); err != nil {
			rows.Close()
			return query.Tables{}, s.wrap("patients", err)
		}
		birth, err := parseSQLDate(dob)
		if err != nil || birth == nil {
			rows.Close()
			return query.Tables{}, s.wrap("patients", fmt.Errorf("date_of_birth %q", dob))
		}
		p.DateOfBirth = *birth
		if p.DateOfDeath, err = parseSQLNullDate(dod); err != nil {
			rows.Close()
			return query.Tables{}, s.wrap("patients", err)
		}
		t.Patients = append(t.Patients, p)
	}
	if err := rows.Err(); err != nil {
		return query.Tables{}, s.wrap("patients", err)
	}
	rows.Close()

	rows, err = s.db.Query(`SELECT patient_id, start_date, end_date, practice_pseudo_id, practice_nuts1_region_name FROM practice_registrations`)
	if err != nil {
		return query.Tables{}, s.wrap("practice_registrations", err)
	}
	for rows.Next() {
		var r query.PracticeRegistration
		var start string
		var end sql.NullString
		if err := rows.Scan(&r.PatientID, &start, &end, &r.PracticePseudoID, &r.PracticeRegion); err != nil {
			rows.Close()
			return query.Tables{}, s.wrap("practice_registrations", err)
		}
		startDate, err := parseSQLDate(start)
		if err != nil || startDate == nil {
			rows.Close()
			return query.Tables{}, s.wrap("practice_registrations", fmt.Errorf("start_date %q", start))
		}
		r.StartDate = *startDate
		if r.EndDate, err = parseSQLNullDate(end); err != nil {
			rows.Close()
			return query.Tables{}, s.wrap("practice_registrations", err)
		}
		t.Registrations = append(t.Registrations, r)
	}
	if err := rows.Err(); err != nil {
		return query.Tables{}, s.wrap("practice_registrations", err)
	}
	rows.Close()

	rows, err = s.db.Query(`SELECT patient_id, start_date, end_date, imd_rounded, rural_urban_classification FROM addresses`)
	if err != nil {
		return query.Tables{}, s.wrap("addresses", err)
	}
	for rows.Next() {
		var a query.Address
		var start, end sql.NullString
		var imd, ruralUrban sql.NullInt64
		if err := rows.Scan(&a.PatientID, &start, &end, &imd, &ruralUrban); err != nil {
			rows.Close()
			return query.Tables{}, s.wrap("addresses", err)
		}
		if a.StartDate, err = parseSQLNullDate(start); err != nil {
			rows.Close()
			return query.Tables{}, s.wrap("addresses", err)
		}
		if a.EndDate, err = parseSQLNullDate(end); err != nil {
			rows.Close()
			return query.Tables{}, s.wrap("addresses", err)
		}
		a.IMDRounded = nullInt(imd)
		a.RuralUrbanClassification = nullInt(ruralUrban)
		t.Addresses = append(t.Addresses, a)
	}
	if err := rows.Err(); err != nil {
		return query.Tables{}, s.wrap("addresses", err)
	}
	rows.Close()

	rows, err = s.db.Query(`SELECT patient_id, date, snomedct_code, numeric_value FROM clinical_events`)
	if err != nil {
		return query.Tables{}, s.wrap("clinical_events", err)
	}
	for rows.Next() {
		var e query.ClinicalEvent
		var date string
		var value sql.NullFloat64
		if err := rows.Scan(&e.PatientID, &date, &e.SNOMEDCTCode, &value); err != nil {
			rows.Close()
			return query.Tables{}, s.wrap("clinical_events", err)
		}
		d, err := parseSQLDate(date)
		if err != nil || d == nil {
			rows.Close()
			return query.Tables{}, s.wrap("clinical_events", fmt.Errorf("date %q", date))
		}
		e.Date = *d
		if value.Valid {
			v := value.Float64
			e.NumericValue = &v
		}
		t.Events = append(t.Events, e)
	}
	if err := rows.Err(); err != nil {
		return query.Tables{}, s.wrap("clinical_events", err)
	}
	rows.Close()

	rows, err = s.db.Query(`SELECT patient_id, date, dmd_code FROM medications`)
	if err != nil {
		return query.Tables{}, s.wrap("medications", err)
	}
	for rows.Next() {
		var m query.Medication
		var date string
		if err := rows.Scan(&m.PatientID, &date, &m.DMDCode); err != nil {
			rows.Close()
			return query.Tables{}, s.wrap("medications", err)
		}
		d, err := parseSQLDate(date)
		if err != nil || d == nil {
			rows.Close()
			return query.Tables{}, s.wrap("medications", fmt.Errorf("date %q", date))
		}
		m.Date = *d
		t.Medications = append(t.Medications, m)
	}
	if err := rows.Err(); err != nil {
		return query.Tables{}, s.wrap("medications", err)
	}
	rows.Close()

	return t, nil
}

// Write replaces the snapshot in one transaction.
func (s *SQLite) Write(t query.Tables) error {
	tx, err := s.db.Begin()
	if err != nil {
		return s.wrap("write", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"patients", "practice_registrations", "addresses", "clinical_events", "medications"} {
		if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
			return s.wrap(table, err)
		}
	}

	for _, p := range t.Patients {
		_, err := tx.Exec(
			`INSERT INTO patients (patient_id, sex, date_of_birth, date_of_death) VALUES (?, ?, ?, ?)`,
			p.ID, p.Sex, p.DateOfBirth.Format(dateLayout), sqlDate(p.DateOfDeath),
		)
		if err != nil {
			return s.wrap("patients", err)
		}
	}
	for _, r := range t.Registrations {
		_, err := tx.Exec(
			`INSERT INTO practice_registrations (patient_id, start_date, end_date, practice_pseudo_id, practice_nuts1_region_name) VALUES (?, ?, ?, ?, ?)`,
			r.PatientID, r.StartDate.Format(dateLayout), sqlDate(r.EndDate), r.PracticePseudoID, r.PracticeRegion,
		)
		if err != nil {
			return s.wrap("practice_registrations", err)
		}
	}
	for _, a := range t.Addresses {
		_, err := tx.Exec(
			`INSERT INTO addresses (patient_id, start_date, end_date, imd_rounded, rural_urban_classification) VALUES (?, ?, ?, ?, ?)`,
			a.PatientID, sqlDate(a.StartDate), sqlDate(a.EndDate), sqlInt(a.IMDRounded), sqlInt(a.RuralUrbanClassification),
		)
		if err != nil {
			return s.wrap("addresses", err)
		}
	}
	for _, e := range t.Events {
		_, err := tx.Exec(
			`INSERT INTO clinical_events (patient_id, date, snomedct_code, numeric_value) VALUES (?, ?, ?, ?)`,
			e.PatientID, e.Date.Format(dateLayout), e.SNOMEDCTCode, sqlFloat(e.NumericValue),
		)
		if err != nil {
			return s.wrap("clinical_events", err)
		}
	}
	for _, m := range t.Medications {
		_, err := tx.Exec(
			`INSERT INTO medications (patient_id, date, dmd_code) VALUES (?, ?, ?)`,
			m.PatientID, m.Date.Format(dateLayout), m.DMDCode,
		)
		if err != nil {
			return s.wrap("medications", err)
		}
	}

	return tx.Commit()
}

func (s *SQLite) wrap(table string, err error) error {
	return fmt.Errorf("dataset %s: %s: %w", s.path, table, err)
}

func parseSQLDate(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	d, err := time.ParseInLocation(dateLayout, v, time.UTC)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func parseSQLNullDate(v sql.NullString) (*time.Time, error) {
	if !v.Valid {
		return nil, nil
	}
	return parseSQLDate(v.String)
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func sqlDate(d *time.Time) any {
	if d == nil {
		return nil
	}
	return d.Format(dateLayout)
}

func sqlInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func sqlFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
